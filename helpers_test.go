package authsession

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/rvpalivoda/authsession/storage"
)

var testSigningKey = []byte("authsession-test-key")

func accessToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	claims := jwtlib.MapClaims{"sub": sub}
	if !exp.IsZero() {
		claims["exp"] = exp.Unix()
	}
	tok, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(testSigningKey)
	if err != nil {
		t.Fatalf("sign access token: %v", err)
	}
	return tok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

type testEnv struct {
	srv *httptest.Server
	kv  *storage.Memory
}

func newEnv(t *testing.T, mux *http.ServeMux) *testEnv {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, kv: storage.NewMemory()}
}

func (e *testEnv) config() Config {
	cfg := DefaultConfig()
	cfg.HTTP.BaseURL = e.srv.URL
	cfg.Logout.Timeout = time.Second
	cfg.Metrics.Enabled = true
	return cfg
}

func (e *testEnv) build(t *testing.T, cfg Config) *Session {
	t.Helper()
	s, err := New().WithConfig(cfg).WithStore(e.kv).Build(context.Background())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

// seed persists a session directly, as a previous run would have.
func (e *testEnv) seed(t *testing.T, cfg Config, creds Credentials, id Identity) {
	t.Helper()
	ctx := context.Background()
	tokens, _ := json.Marshal(creds)
	if err := e.kv.Set(ctx, cfg.Storage.TokenKey, string(tokens)); err != nil {
		t.Fatalf("seed tokens: %v", err)
	}
	if id.Username != "" {
		raw, _ := json.Marshal(id)
		if err := e.kv.Set(ctx, cfg.Storage.IdentityKey, string(raw)); err != nil {
			t.Fatalf("seed identity: %v", err)
		}
	}
}

func tokenPair(access, refresh string) map[string]string {
	return map[string]string{"access_token": access, "refresh_token": refresh}
}

func zeroLog() zerolog.Logger { return zerolog.Nop() }
