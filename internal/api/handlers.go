package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"svyaz/internal/auth"
	"svyaz/internal/content"
	"svyaz/internal/models"
)

type Store interface {
	CreateConversation(user1ID, user2ID string) (models.Conversation, error)
	FindConversation(user1ID, user2ID string) (models.Conversation, error)
	ListConversations(userID string) ([]models.Conversation, error)
	ListMessages(user1ID, user2ID string) ([]models.StoredMessage, error)

	ListNotifications(userID string, unreadOnly bool) ([]models.Notification, error)
	MarkNotificationRead(id string) error
	MarkAllNotificationsRead(userID string) (int, error)
	DeleteNotification(id string) error

	CreatePost(authorID, text string) (models.Post, error)
	SetLike(postID, userID string, liked bool) (models.Post, error)
	SetShare(postID, userID string, shared bool) (models.Post, error)
	AddComment(postID, authorID, text string) (models.Comment, models.Post, error)
}

type contextKey struct{}

type API struct {
	auth  *auth.AuthService
	store Store
}

func New(auth *auth.AuthService, store Store) *API {
	return &API{auth: auth, store: store}
}

// Routes registers the REST surface on mux.
func (a *API) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/login", a.LoginHandler)
	mux.HandleFunc("POST /api/logoff", a.LogoffHandler)

	mux.HandleFunc("GET /api/users", a.RequireAuth(a.UsersHandler))
	mux.HandleFunc("GET /api/users/{id}", a.RequireAuth(a.UserHandler))

	mux.HandleFunc("POST /api/conversations", a.RequireAuth(a.CreateConversationHandler))
	mux.HandleFunc("GET /api/conversations/{userId}", a.RequireAuth(a.ConversationsHandler))
	mux.HandleFunc("GET /api/conversations/find/{user1Id}/{user2Id}", a.RequireAuth(a.FindConversationHandler))
	mux.HandleFunc("GET /api/messages/{user1Id}/{user2Id}", a.RequireAuth(a.MessagesHandler))

	mux.HandleFunc("GET /api/notifications/{userId}", a.RequireAuth(a.NotificationsHandler))
	mux.HandleFunc("GET /api/notifications/{userId}/unread", a.RequireAuth(a.UnreadNotificationsHandler))
	mux.HandleFunc("PUT /api/notifications/{id}/read", a.RequireAuth(a.MarkReadHandler))
	mux.HandleFunc("PUT /api/notifications/{userId}/read-all", a.RequireAuth(a.MarkAllReadHandler))
	mux.HandleFunc("DELETE /api/notifications/{id}", a.RequireAuth(a.DeleteNotificationHandler))

	mux.HandleFunc("POST /api/posts", a.RequireAuth(a.CreatePostHandler))
	mux.HandleFunc("POST /api/posts/{id}/like", a.RequireAuth(a.likeHandler(true)))
	mux.HandleFunc("DELETE /api/posts/{id}/like", a.RequireAuth(a.likeHandler(false)))
	mux.HandleFunc("POST /api/posts/{id}/share", a.RequireAuth(a.shareHandler(true)))
	mux.HandleFunc("DELETE /api/posts/{id}/share", a.RequireAuth(a.shareHandler(false)))
	mux.HandleFunc("POST /api/posts/{id}/comments", a.RequireAuth(a.CommentHandler))
}

func (a *API) getToken(r *http.Request) string {
	return r.Header.Get("token")
}

// RequireAuth rejects requests without a live token and passes the caller id
// to the handler through the request context.
func (a *API) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.auth.GetUserID(a.getToken(r))
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, userID)))
	}
}

func caller(r *http.Request) string {
	userID, _ := r.Context().Value(contextKey{}).(string)
	return userID
}

// requireSelf answers 403 unless the path names the caller.
func requireSelf(w http.ResponseWriter, r *http.Request, userID string) bool {
	if userID != caller(r) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, models.ErrNotFound) {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	log.Printf("request failed: %v", err)
	http.Error(w, "Internal error", http.StatusInternalServerError)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (a *API) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if !decode(w, r, &req) {
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		req.UserID = req.Username
	}
	if err := content.ValidateUsername(req.UserID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) LogoffHandler(w http.ResponseWriter, r *http.Request) {
	if token := a.getToken(r); token != "" {
		_ = a.auth.Logoff(token)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) UserHandler(w http.ResponseWriter, r *http.Request) {
	p, err := a.auth.Profile(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) UsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := a.auth.Users()
	if err != nil {
		writeError(w, err)
		return
	}
	if users == nil {
		users = []models.Profile{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (a *API) CreateConversationHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		User1ID string `json:"user1Id"`
		User2ID string `json:"user2Id"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.User1ID == "" || req.User2ID == "" || req.User1ID == req.User2ID {
		http.Error(w, "two distinct users are required", http.StatusBadRequest)
		return
	}
	if me := caller(r); req.User1ID != me && req.User2ID != me {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	conv, err := a.store.CreateConversation(req.User1ID, req.User2ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (a *API) ConversationsHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if !requireSelf(w, r, userID) {
		return
	}
	convs, err := a.store.ListConversations(userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

func (a *API) FindConversationHandler(w http.ResponseWriter, r *http.Request) {
	user1, user2 := r.PathValue("user1Id"), r.PathValue("user2Id")
	if me := caller(r); user1 != me && user2 != me {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	conv, err := a.store.FindConversation(user1, user2)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (a *API) MessagesHandler(w http.ResponseWriter, r *http.Request) {
	user1, user2 := r.PathValue("user1Id"), r.PathValue("user2Id")
	if me := caller(r); user1 != me && user2 != me {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	msgs, err := a.store.ListMessages(user1, user2)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (a *API) notifications(unreadOnly bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.PathValue("userId")
		if !requireSelf(w, r, userID) {
			return
		}
		list, err := a.store.ListNotifications(userID, unreadOnly)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func (a *API) NotificationsHandler(w http.ResponseWriter, r *http.Request) {
	a.notifications(false)(w, r)
}

func (a *API) UnreadNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	a.notifications(true)(w, r)
}

func (a *API) MarkReadHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.store.MarkNotificationRead(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) MarkAllReadHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if !requireSelf(w, r, userID) {
		return
	}
	changed, err := a.store.MarkAllNotificationsRead(userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": changed})
}

func (a *API) DeleteNotificationHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.store.DeleteNotification(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
