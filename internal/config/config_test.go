package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadClient_Defaults(t *testing.T) {
	cfg, err := LoadClient()
	require.NoError(t, err)

	require.Equal(t, "ws://localhost:8080/socket", cfg.SocketURL)
	require.Equal(t, 10*time.Second, cfg.RequestTimeout)
	require.Equal(t, time.Duration(0), cfg.CallTimeout)
	require.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.ICEServers)
}

func TestLoadClient_Env(t *testing.T) {
	t.Setenv("SVYAZ_SOCKET_URL", "wss://rt.example.org/socket")
	t.Setenv("SVYAZ_USER_ID", "u1")
	t.Setenv("CALL_TIMEOUT", "45s")
	t.Setenv("ICE_SERVERS", "stun:a:3478, turn:b:3478,stun:a:3478,")

	cfg, err := LoadClient()
	require.NoError(t, err)

	require.Equal(t, "wss://rt.example.org/socket", cfg.SocketURL)
	require.Equal(t, "u1", cfg.UserID)
	require.Equal(t, 45*time.Second, cfg.CallTimeout)
	require.Equal(t, []string{"stun:a:3478", "turn:b:3478"}, cfg.ICEServers)
}

func TestLoadClient_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"http socket scheme", "SVYAZ_SOCKET_URL", "http://localhost/socket"},
		{"bad timeout", "REQUEST_TIMEOUT", "soon"},
		{"zero timeout", "REQUEST_TIMEOUT", "0s"},
		{"negative call timeout", "CALL_TIMEOUT", "-1s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := LoadClient()
			require.Error(t, err)
		})
	}
}

func TestLoadServer(t *testing.T) {
	t.Setenv("TOKEN_EXPIRY", "1h")
	cfg, err := LoadServer()
	require.NoError(t, err)
	require.Equal(t, time.Hour, cfg.TokenExpiry)

	t.Setenv("TOKEN_EXPIRY", "0s")
	_, err = LoadServer()
	require.Error(t, err)
}
