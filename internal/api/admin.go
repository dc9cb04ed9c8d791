package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"svyaz/internal/auth"
	"svyaz/internal/models"
)

type onlineLister interface {
	Online() []string
}

type AdminHandler struct {
	authService *auth.AuthService
	hub         onlineLister
	baseURL     string
}

func NewAdminHandler(authService *auth.AuthService, hub onlineLister, baseURL string) *AdminHandler {
	return &AdminHandler{authService: authService, hub: hub, baseURL: baseURL}
}

type AddUserRequest struct {
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username"`
}

type AddUserResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Profile models.Profile `json:"profile"`
	Token   string         `json:"token,omitempty"`
	APIURL  string         `json:"apiUrl,omitempty"`
}

// AddUserHandler creates an account and hands back a token for it so the
// client can be started right away.
func (h *AdminHandler) AddUserHandler(w http.ResponseWriter, r *http.Request) {
	var req AddUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Username == "" {
		http.Error(w, "Username is required", http.StatusBadRequest)
		return
	}

	profile, err := h.authService.AddUser(req.UserID, req.Username)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, auth.ErrUserExists) {
			status = http.StatusConflict
		}
		writeJSON(w, status, AddUserResponse{
			Success: false,
			Message: fmt.Sprintf("Failed to create user: %v", err),
		})
		return
	}

	login, err := h.authService.Login(auth.LoginRequest{UserID: profile.ID})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AddUserResponse{
		Success: true,
		Profile: profile,
		Token:   login.Token,
		APIURL:  h.baseURL,
	})
}

func (h *AdminHandler) OnlineHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.hub.Online())
}
