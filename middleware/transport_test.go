package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvpalivoda/authsession"
	"github.com/rvpalivoda/authsession/storage"
)

// api is a fake server whose protected route accepts exactly one access
// credential at a time; /auth/refresh rotates it.
type api struct {
	mu        sync.Mutex
	valid     string
	rotations int
	refreshOK bool

	calls  atomic.Int32
	bodies []string
}

func (a *api) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		defer a.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"access_token": a.valid, "refresh_token": "refresh"})
	})
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		defer a.mu.Unlock()
		if !a.refreshOK {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "expired"})
			return
		}
		a.rotations++
		a.valid = "access-" + string(rune('0'+a.rotations))
		writeJSON(w, http.StatusOK, map[string]string{"access_token": a.valid, "refresh_token": "refresh"})
	})
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		a.calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		a.mu.Lock()
		a.bodies = append(a.bodies, string(body))
		ok := r.Header.Get("Authorization") == "Bearer "+a.valid
		a.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"echo": string(body)})
	})
	return mux
}

// expire invalidates the access credential the client currently holds.
func (a *api) expire() {
	a.mu.Lock()
	a.valid = "rotated-away"
	a.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newSession(t *testing.T, a *api, login bool) (*authsession.Session, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(a.handler())
	t.Cleanup(srv.Close)

	cfg := authsession.DefaultConfig()
	cfg.HTTP.BaseURL = srv.URL
	s, err := authsession.New().WithConfig(cfg).WithStore(storage.NewMemory()).Build(context.Background())
	require.NoError(t, err)
	t.Cleanup(s.Close)

	if login {
		require.NoError(t, s.Login(context.Background(), "alice", "pw", "c"))
	}
	return s, srv
}

func TestTransportSendsBearer(t *testing.T) {
	a := &api{valid: "access-0", refreshOK: true}
	s, srv := newSession(t, a, true)
	client := &http.Client{Transport: NewTransport(s, nil)}

	res, err := client.Get(srv.URL + "/api/me")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.EqualValues(t, 1, a.calls.Load())
}

func TestTransportRenewsAndReplaysBody(t *testing.T) {
	a := &api{valid: "access-0", refreshOK: true}
	s, srv := newSession(t, a, true)
	a.expire()
	client := &http.Client{Transport: NewTransport(s, nil)}

	// strings.Reader bodies get GetBody from http.NewRequest.
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/items", strings.NewReader(`{"n":1}`))
	require.NoError(t, err)
	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.EqualValues(t, 2, a.calls.Load())
	a.mu.Lock()
	assert.Equal(t, []string{`{"n":1}`, `{"n":1}`}, a.bodies)
	assert.Equal(t, 1, a.rotations)
	a.mu.Unlock()

	creds, ok := s.Credentials()
	require.True(t, ok)
	assert.Equal(t, "access-1", creds.Access)
}

func TestTransportDoesNotReplayOneShotBody(t *testing.T) {
	a := &api{valid: "access-0", refreshOK: true}
	s, srv := newSession(t, a, true)
	a.expire()
	client := &http.Client{Transport: NewTransport(s, nil)}

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/items", io.NopCloser(strings.NewReader("x")))
	require.NoError(t, err)
	require.Nil(t, req.GetBody)

	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.EqualValues(t, 1, a.calls.Load())
	a.mu.Lock()
	assert.Zero(t, a.rotations)
	a.mu.Unlock()
}

func TestTransportRenewalFailureReturns401(t *testing.T) {
	a := &api{valid: "access-0", refreshOK: false}
	s, srv := newSession(t, a, true)
	a.expire()
	client := &http.Client{Transport: NewTransport(s, nil)}

	res, err := client.Get(srv.URL + "/api/me")
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, authsession.Anonymous, s.State())
}

func TestTransportAnonymousSendsNoBearer(t *testing.T) {
	a := &api{valid: "access-0"}
	s, srv := newSession(t, a, false)

	var seen atomic.Value
	base := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		seen.Store(r.Header.Get("Authorization"))
		return http.DefaultTransport.RoundTrip(r)
	})
	client := &http.Client{Transport: NewTransport(s, base)}

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/me", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer stale")
	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "", seen.Load())
}

func TestTransportNilSession(t *testing.T) {
	var tr *Transport
	req := httptest.NewRequest(http.MethodGet, "http://example.test/", nil)
	_, err := tr.RoundTrip(req)
	assert.ErrorIs(t, err, authsession.ErrSessionNotReady)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
