package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// Client holds the settings of the realtime client.
type Client struct {
	SocketURL       string
	APIURL          string
	UserID          string
	Token           string
	DBFile          string
	RequestTimeout  time.Duration
	ProfileCacheTTL time.Duration
	CallTimeout     time.Duration
	ICEServers      []string
}

// Server holds the settings of the development backend.
type Server struct {
	DBFile      string
	AdminAddr   string
	APIAddr     string
	BaseURL     string
	TokenExpiry time.Duration
}

func LoadClient() (*Client, error) {
	requestTimeout, err := time.ParseDuration(getEnv("REQUEST_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("REQUEST_TIMEOUT: %w", err)
	}
	profileTTL, err := time.ParseDuration(getEnv("PROFILE_CACHE_TTL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("PROFILE_CACHE_TTL: %w", err)
	}
	// Zero disables the timeout: a call stays in connecting until someone hangs up.
	callTimeout, err := time.ParseDuration(getEnv("CALL_TIMEOUT", "0s"))
	if err != nil {
		return nil, fmt.Errorf("CALL_TIMEOUT: %w", err)
	}

	cfg := &Client{
		SocketURL:       getEnv("SVYAZ_SOCKET_URL", "ws://localhost:8080/socket"),
		APIURL:          getEnv("SVYAZ_API_URL", "http://localhost:8080"),
		UserID:          os.Getenv("SVYAZ_USER_ID"),
		Token:           os.Getenv("SVYAZ_TOKEN"),
		DBFile:          getEnv("SVYAZ_DB", "svyaz.db"),
		RequestTimeout:  requestTimeout,
		ProfileCacheTTL: profileTTL,
		CallTimeout:     callTimeout,
		ICEServers:      getCSV("ICE_SERVERS", []string{"stun:stun.l.google.com:19302"}),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Client) Validate() error {
	u, err := url.Parse(c.SocketURL)
	if err != nil {
		return fmt.Errorf("SVYAZ_SOCKET_URL is invalid: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("SVYAZ_SOCKET_URL must use ws or wss scheme, got %q", u.Scheme)
	}

	if _, err := url.ParseRequestURI(c.APIURL); err != nil {
		return fmt.Errorf("SVYAZ_API_URL is invalid: %w", err)
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be greater than 0")
	}

	if c.ProfileCacheTTL <= 0 {
		return fmt.Errorf("PROFILE_CACHE_TTL must be greater than 0")
	}

	if c.CallTimeout < 0 {
		return fmt.Errorf("CALL_TIMEOUT must not be negative")
	}

	return nil
}

func LoadServer() (*Server, error) {
	tokenExpiry, err := time.ParseDuration(getEnv("TOKEN_EXPIRY", "24h"))
	if err != nil {
		return nil, err
	}

	cfg := &Server{
		DBFile:      getEnv("DEVSERVER_DB", "devserver.db"),
		AdminAddr:   getEnv("ADMIN_ADDR", "localhost:8081"),
		APIAddr:     getEnv("API_ADDR", ":8080"),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		TokenExpiry: tokenExpiry,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Server) Validate() error {
	if c.DBFile == "" {
		return fmt.Errorf("DEVSERVER_DB is required")
	}

	if c.TokenExpiry <= 0 {
		return fmt.Errorf("TOKEN_EXPIRY must be greater than 0")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getCSV(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return append([]string(nil), fallback...)
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	seen := map[string]struct{}{}
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		result = append(result, item)
	}
	if len(result) == 0 {
		return append([]string(nil), fallback...)
	}
	return result
}
