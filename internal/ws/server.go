package ws

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"svyaz/internal/auth"
	"svyaz/internal/models"
)

type authService interface {
	GetUserID(token string) (string, error)
	Profile(userID string) (models.Profile, error)
}

type Server struct {
	auth     authService
	hub      *Hub
	upgrader *websocket.Upgrader
}

func NewServer(auth authService, hub *Hub) *Server {
	return &Server{
		auth: auth,
		hub:  hub,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // dev server, any origin
			},
		},
	}
}

// HandleConnections upgrades GET /socket?userId=<id>. A token, when sent,
// must belong to that user; without one the user only has to exist.
func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}

	if token := r.Header.Get("token"); token != "" {
		owner, err := s.auth.GetUserID(token)
		if err != nil || owner != userID {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	} else if _, err := s.auth.Profile(userID); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("error upgrading to websocket: %v", err)
		return
	}

	if err := NewConnection(s.hub, conn, userID).Handle(r.Context()); err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		log.Printf("connection of %s closed: %v", userID, err)
	}
}

var _ authService = (*auth.AuthService)(nil)
