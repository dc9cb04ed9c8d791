// Command svyaz is a terminal client for the realtime session: chat,
// presence, calls and notifications of one signed-in user.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"svyaz/internal/call"
	"svyaz/internal/commands"
	"svyaz/internal/config"
	"svyaz/internal/models"
	"svyaz/internal/rest"
	"svyaz/internal/session"
	"svyaz/internal/storage"
	"svyaz/internal/transport"
)

// tokenStore keeps the token a user signed in with between runs.
type tokenStore interface {
	SaveSessionToken(userID, token string) error
	SessionToken(userID string) (string, error)
	DeleteSessionToken(userID string) error
}

// signIn returns a token for userID: the configured one, the stored one if
// the server still accepts it, or a fresh one from the login endpoint.
func signIn(ctx context.Context, cfg *config.Client, tokens tokenStore, fresh bool) (string, error) {
	if cfg.Token != "" && !fresh {
		return cfg.Token, nil
	}

	client := rest.NewClient(ctx, cfg.APIURL, "", cfg.RequestTimeout, cfg.ProfileCacheTTL)
	if !fresh {
		token, err := tokens.SessionToken(cfg.UserID)
		switch {
		case err == nil:
			_, err = client.WithToken(token).Profile(ctx, cfg.UserID)
			var statusErr *rest.StatusError
			if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
				return token, nil
			}
			slog.Info("stored token expired", "user_id", cfg.UserID)
		case !errors.Is(err, models.ErrNotFound):
			return "", err
		}
	}

	resp, err := client.Login(ctx, rest.LoginRequest{UserID: cfg.UserID, Username: cfg.UserID})
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	if err := tokens.SaveSessionToken(cfg.UserID, resp.Token); err != nil {
		return "", err
	}
	return resp.Token, nil
}

func run(ctx context.Context, cfg *config.Client, in io.Reader, out io.Writer) error {
	if cfg.UserID == "" {
		return errors.New("SVYAZ_USER_ID is required")
	}

	bbStorage, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = bbStorage.Close() }()

	peers, err := call.NewPionFactory(cfg.ICEServers)
	if err != nil {
		return err
	}

	sessions := session.NewManager(cfg, transport.NewWebsocketDialer(), peers, call.SampleDevices{})
	defer sessions.Close()

	token, err := signIn(ctx, cfg, bbStorage, false)
	if err != nil {
		return err
	}
	s, err := sessions.Start(ctx, cfg.UserID, token)
	if err != nil && cfg.Token == "" {
		// the stored token may have expired
		slog.Warn("sign in with stored token failed, logging in again", "user_id", cfg.UserID, "error", err)
		if token, err = signIn(ctx, cfg, bbStorage, true); err != nil {
			return err
		}
		s, err = sessions.Start(ctx, cfg.UserID, token)
	}
	if err != nil {
		return err
	}

	console := commands.NewConsole(s, out)
	defer console.Close()

	err = console.Run(ctx, in)
	if errors.Is(err, commands.ErrLogout) {
		sessions.Logout()
		return bbStorage.DeleteSessionToken(cfg.UserID)
	}
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	if err := run(ctx, cfg, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
