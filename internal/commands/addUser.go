package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"svyaz/internal/api"
	"svyaz/internal/config"
)

// AddUser asks a running dev server to create an account and prints the
// environment a client needs to sign in as it.
func AddUser(out io.Writer, userID, username string, cfg *config.Server) error {
	// Prepare request
	reqBody, err := json.Marshal(api.AddUserRequest{UserID: userID, Username: username})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("http://%s/admin/users", cfg.AdminAddr)
	resp, err := http.Post(url, "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to call admin API: %w. Is the server running?", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to add user (Status: %d): %s", resp.StatusCode, string(body))
	}

	var result api.AddUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Fprintf(out, "\nUser Created Successfully!\n")
	fmt.Fprintf(out, "Username:          %s\n\n", result.Profile.Username)
	fmt.Fprintf(out, "export SVYAZ_USER_ID=%s\n", result.Profile.ID)
	fmt.Fprintf(out, "export SVYAZ_TOKEN=%s\n", result.Token)
	if result.APIURL != "" {
		fmt.Fprintf(out, "export SVYAZ_API_URL=%s\n", result.APIURL)
	}
	return nil
}
