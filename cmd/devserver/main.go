// Command devserver runs a development backend for the svyaz client: the
// realtime socket relay plus the REST endpoints the client calls.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	oshttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"svyaz/internal/auth"
	"svyaz/internal/commands"
	"svyaz/internal/config"
	"svyaz/internal/http"
	"svyaz/internal/storage"
	"svyaz/internal/stubs"
	"svyaz/internal/ws"
)

func run(ctx context.Context) error {
	addUser := flag.String("add-user", "", "Username to create on a running server (prints client environment)")
	userID := flag.String("user-id", "", "Id for -add-user, generated when empty")
	seed := flag.Bool("seed", true, "Create the stub accounts on startup")
	flag.Parse()

	cfg, err := config.LoadServer()
	if err != nil {
		return err
	}

	if *addUser != "" {
		return commands.AddUser(os.Stdout, *userID, *addUser, cfg)
	}

	bbStorage, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = bbStorage.Close() }()

	if *seed {
		added, err := stubs.Seed(bbStorage)
		if err != nil {
			return err
		}
		if added > 0 {
			log.Printf("Seeded %d stub users", added)
		}
	}

	authService, err := auth.NewAuthService(ctx, auth.Config{TokenExpiry: cfg.TokenExpiry}, bbStorage)
	if err != nil {
		return err
	}

	hub := ws.NewHub(bbStorage)

	adminServer := http.NewAdminServer(authService, hub, cfg.AdminAddr, cfg.BaseURL)
	apiServer := http.NewAPIServer(authService, hub, bbStorage, cfg.APIAddr)

	g, gCtx := errgroup.WithContext(ctx)

	// Start Admin Server
	g.Go(func() error {
		err := adminServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Start API Server
	g.Go(func() error {
		err := apiServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Wait for context cancellation (signal)
	g.Go(func() error {
		<-gCtx.Done()
		log.Println("Shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Admin server shutdown error: %v", err)
		}
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("API server shutdown error: %v", err)
		}
		return nil
	})

	return g.Wait()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
