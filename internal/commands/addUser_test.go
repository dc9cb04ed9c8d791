package commands

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"svyaz/internal/api"
	"svyaz/internal/config"
	"svyaz/internal/models"
)

func TestAddUser(t *testing.T) {
	var got api.AddUserRequest
	mux := http.NewServeMux()
	mux.HandleFunc("POST /admin/users", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(api.AddUserResponse{
			Success: true,
			Profile: models.Profile{ID: got.UserID, Username: got.Username},
			Token:   "tok",
			APIURL:  "http://localhost:8080",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := &config.Server{AdminAddr: strings.TrimPrefix(srv.URL, "http://")}
	var out bytes.Buffer
	require.NoError(t, AddUser(&out, "dave", "Dave", cfg))

	require.Equal(t, api.AddUserRequest{UserID: "dave", Username: "Dave"}, got)
	require.Contains(t, out.String(), "export SVYAZ_USER_ID=dave")
	require.Contains(t, out.String(), "export SVYAZ_TOKEN=tok")
}

func TestAddUser_Conflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "exists", http.StatusConflict)
	}))
	defer srv.Close()

	cfg := &config.Server{AdminAddr: strings.TrimPrefix(srv.URL, "http://")}
	err := AddUser(&bytes.Buffer{}, "dave", "Dave", cfg)
	require.ErrorContains(t, err, "409")
}
