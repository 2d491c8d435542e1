package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	write := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Password != "secret" {
			write(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}
		write(w, http.StatusOK, map[string]string{"access_token": "a1", "refresh_token": "r1"})
	})
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /auth/register", func(w http.ResponseWriter, r *http.Request) {
		write(w, http.StatusOK, map[string]any{"mnemonic": "one two three"})
	})
	mux.HandleFunc("GET /api/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer a1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		write(w, http.StatusOK, map[string]string{"hello": "alice"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, _, err := executeStreams(t, args...)
	return out, err
}

func executeStreams(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := BuildRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

func TestLoginPersistsAcrossInvocations(t *testing.T) {
	srv := fakeServer(t)
	dir := t.TempDir()
	common := []string{"--server", srv.URL, "--store-dir", dir}

	out, err := execute(t, append(common, "login", "alice", "-p", "secret")...)
	require.NoError(t, err)
	assert.Contains(t, out, `"state": "authenticated"`)
	assert.Contains(t, out, `"username": "alice"`)

	out, err = execute(t, append(common, "whoami")...)
	require.NoError(t, err)
	assert.Contains(t, out, `"username": "alice"`)

	out, err = execute(t, append(common, "request", "get", "/api/me")...)
	require.NoError(t, err)
	assert.Contains(t, out, `"hello": "alice"`)

	_, err = execute(t, append(common, "logout")...)
	require.NoError(t, err)

	out, err = execute(t, append(common, "whoami")...)
	require.NoError(t, err)
	assert.Contains(t, out, `"state": "anonymous"`)
}

func TestLoginRejected(t *testing.T) {
	srv := fakeServer(t)
	_, err := execute(t, "--server", srv.URL, "--store", "memory", "login", "alice", "-p", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid credentials")
}

func TestRegisterPrintsNumberedWords(t *testing.T) {
	srv := fakeServer(t)
	out, err := execute(t, "--server", srv.URL, "--store", "memory", "register", "bob", "-p", "pw")
	require.NoError(t, err)
	assert.Equal(t, " 1 one\n 2 two\n 3 three\n", out)
}

func TestRequestRejectsInvalidBody(t *testing.T) {
	srv := fakeServer(t)
	_, err := execute(t, "--server", srv.URL, "--store", "memory", "request", "POST", "/api/me", "{nope")
	require.Error(t, err)
}

func TestUnknownStore(t *testing.T) {
	_, err := execute(t, "--server", "http://127.0.0.1:1", "--store", "floppy", "whoami")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store")
}

func TestMissingServer(t *testing.T) {
	t.Setenv("AUTHSESSION_SERVER", "")
	_, err := execute(t, "--store", "memory", "whoami")
	require.Error(t, err)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessionctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server: https://auth.example.test
timeout: 3s
store:
  kind: bolt
  bolt_path: /tmp/session.db
  seal_key: 000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://auth.example.test", cfg.Server)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, "bolt", cfg.Store.Kind)
	assert.Equal(t, "warn", cfg.LogLevel)

	key, err := cfg.Store.sealKey()
	require.NoError(t, err)
	assert.Len(t, key, 32)
}

func TestSealedStoreRoundTrip(t *testing.T) {
	srv := fakeServer(t)
	dir := t.TempDir()
	t.Setenv("AUTHSESSION_SEAL_KEY", "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	common := []string{"--server", srv.URL, "--store", "bolt", "--store-dir", dir}

	_, err := execute(t, append(common, "login", "alice", "-p", "secret")...)
	require.NoError(t, err)

	out, err := execute(t, append(common, "whoami")...)
	require.NoError(t, err)
	assert.Contains(t, out, `"state": "authenticated"`)

	raw, err := os.ReadFile(filepath.Join(dir, "session.db"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"access":"a1"`)
}

func TestAuditFlagLogsSessionEvents(t *testing.T) {
	srv := fakeServer(t)
	common := []string{"--server", srv.URL, "--store", "memory", "--audit"}

	_, logs, err := executeStreams(t, append(common, "login", "alice", "-p", "secret")...)
	require.NoError(t, err)
	assert.Contains(t, logs, "audit")
	assert.Contains(t, logs, "event_type")
	assert.Contains(t, logs, "login")
	assert.NotContains(t, logs, "secret")

	_, logs, err = executeStreams(t, "--server", srv.URL, "--store", "memory", "login", "alice", "-p", "secret")
	require.NoError(t, err)
	assert.NotContains(t, logs, "event_type")
}
