// Package auth issues the opaque dev tokens the dev server checks on REST
// requests and socket upgrades.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/c-pro/geche"
	"github.com/google/uuid"

	"svyaz/internal/content"
	"svyaz/internal/models"
	"svyaz/internal/storage"
)

const DefaultTokenExpiry = 12 * time.Hour

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrUserExists   = storage.ErrUserExists
)

type LoginRequest struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type LoginResponse struct {
	Token       string         `json:"token"`
	TokenExpiry int64          `json:"tokenExpiry"`
	Profile     models.Profile `json:"profile"`
}

type Config struct {
	TokenExpiry time.Duration `json:"tokenExpiry"`
}

func (c *Config) Validate() error {
	if c.TokenExpiry < 0 {
		return errors.New("token expiry must not be negative")
	}
	if c.TokenExpiry == 0 {
		c.TokenExpiry = DefaultTokenExpiry
	}
	return nil
}

type Storage interface {
	CreateUser(p models.Profile) error
	UpsertUser(p models.Profile) error
	User(id string) (models.Profile, error)
	ListUsers() ([]models.Profile, error)
	UpsertToken(userID, token string, expiresAt time.Time) error
	DeleteToken(token string) error
	ListTokens() (map[string]storage.DBToken, error)
}

type liveToken struct {
	userID    string
	expiresAt time.Time
}

type AuthService struct {
	Config
	storage    Storage
	users      *geche.Locker[string, models.Profile]
	liveTokens geche.Geche[string, liveToken]
	now        func() time.Time
}

// NewAuthService loads stored users and unexpired tokens.
func NewAuthService(ctx context.Context, config Config, store Storage) (*AuthService, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	as := &AuthService{
		Config:     config,
		storage:    store,
		users:      geche.NewLocker[string, models.Profile](geche.NewMapCache[string, models.Profile]()),
		liveTokens: geche.NewMapTTLCache[string, liveToken](ctx, config.TokenExpiry, time.Minute),
		now:        time.Now,
	}

	users, err := store.ListUsers()
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	tx := as.users.Lock()
	for _, u := range users {
		tx.Set(u.ID, u)
	}
	tx.Unlock()

	tokens, err := store.ListTokens()
	if err != nil {
		return nil, fmt.Errorf("failed to load tokens: %w", err)
	}
	for token, t := range tokens {
		as.liveTokens.Set(token, liveToken{userID: t.UserID, expiresAt: time.UnixMilli(t.ExpiresAt)})
	}

	return as, nil
}

// AddUser creates an account. The id is generated when empty.
func (as *AuthService) AddUser(userID, username string) (models.Profile, error) {
	if err := content.ValidateUsername(username); err != nil {
		return models.Profile{}, err
	}
	if userID == "" {
		userID = uuid.NewString()
	}

	tx := as.users.Lock()
	defer tx.Unlock()
	if _, err := tx.Get(userID); err == nil {
		return models.Profile{}, ErrUserExists
	}

	p := models.Profile{ID: userID, Username: username}
	if err := as.storage.CreateUser(p); err != nil {
		return models.Profile{}, err
	}
	tx.Set(userID, p)
	return p, nil
}

// Login issues a token for req.UserID, creating the account on first login.
// There are no passwords: this service only backs local development.
func (as *AuthService) Login(req LoginRequest) (LoginResponse, error) {
	if req.UserID == "" {
		return LoginResponse{}, errors.New("userId is required")
	}

	tx := as.users.Lock()
	p, err := tx.Get(req.UserID)
	if err != nil || (req.Username != "" && req.Username != p.Username) {
		p = models.Profile{ID: req.UserID, Username: p.Username}
		if req.Username != "" {
			p.Username = req.Username
		}
		if p.Username == "" {
			p.Username = req.UserID
		}
		if err := as.storage.UpsertUser(p); err != nil {
			tx.Unlock()
			return LoginResponse{}, err
		}
		tx.Set(p.ID, p)
	}
	tx.Unlock()

	token := uuid.NewString()
	expiresAt := as.now().Add(as.TokenExpiry)
	if err := as.storage.UpsertToken(p.ID, token, expiresAt); err != nil {
		slog.Error("login failed", "user_id", p.ID, "error", err)
		return LoginResponse{}, fmt.Errorf("failed to store token: %w", err)
	}
	as.liveTokens.Set(token, liveToken{userID: p.ID, expiresAt: expiresAt})

	return LoginResponse{
		Token:       token,
		TokenExpiry: expiresAt.Unix(),
		Profile:     p,
	}, nil
}

func (as *AuthService) Logoff(token string) error {
	if err := as.storage.DeleteToken(token); err != nil {
		return err
	}
	return as.liveTokens.Del(token)
}

// GetUserID returns the owner of a live token.
func (as *AuthService) GetUserID(token string) (string, error) {
	t, err := as.liveTokens.Get(token)
	if err != nil || !as.now().Before(t.expiresAt) {
		return "", ErrUnauthorized
	}
	return t.userID, nil
}

func (as *AuthService) Profile(userID string) (models.Profile, error) {
	tx := as.users.Lock()
	defer tx.Unlock()
	p, err := tx.Get(userID)
	if err != nil {
		return models.Profile{}, models.ErrNotFound
	}
	return p, nil
}

func (as *AuthService) Users() ([]models.Profile, error) {
	return as.storage.ListUsers()
}
