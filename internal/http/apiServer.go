package http

import (
	"context"
	"log"
	"net/http"
	"sync"

	"svyaz/internal/api"
	"svyaz/internal/auth"
	"svyaz/internal/observability"
	"svyaz/internal/storage"
	"svyaz/internal/ws"
)

type APIServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

// NewAPIHandler builds the REST routes and the socket endpoint.
func NewAPIHandler(authService *auth.AuthService, hub *ws.Hub, store *storage.BboltStorage) http.Handler {
	server := ws.NewServer(authService, hub)
	apiHandlers := api.New(authService, store)

	restMux := http.NewServeMux()
	apiHandlers.Routes(restMux)

	mux := http.NewServeMux()
	mux.Handle("/api/", observability.HTTPMetricsMiddleware(restMux))

	// WebSocket endpoint
	mux.HandleFunc("GET /socket", server.HandleConnections)

	return mux
}

func NewAPIServer(authService *auth.AuthService, hub *ws.Hub, store *storage.BboltStorage, addr string) *APIServer {
	if addr == "" {
		addr = ":8080"
	}

	return &APIServer{
		server: &http.Server{
			Addr:    addr,
			Handler: NewAPIHandler(authService, hub, store),
		},
	}
}

func (s *APIServer) Start() error {
	log.Printf("Server started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
