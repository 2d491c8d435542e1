package authsession

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

// protectedServer accepts only the access credential in valid and issues
// next on refresh.
type protectedServer struct {
	mu        sync.Mutex
	valid     string
	next      string
	calls     atomic.Int32
	refreshes atomic.Int32
	// gate, when set, holds every protected call until it is closed.
	gate chan struct{}
}

func (p *protectedServer) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/items", func(w http.ResponseWriter, r *http.Request) {
		p.calls.Add(1)
		if p.gate != nil {
			<-p.gate
		}
		p.mu.Lock()
		ok := bearer(r) == p.valid
		p.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "token expired"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": []string{"a", "b"}})
	})
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		p.refreshes.Add(1)
		p.mu.Lock()
		p.valid = p.next
		next := p.next
		p.mu.Unlock()
		writeJSON(w, http.StatusOK, tokenPair(next, "r2"))
	})
	return mux
}

type itemsResponse struct {
	Items []string `json:"items"`
}

func TestGatewayRenewsOnceAndRetriesOnce(t *testing.T) {
	p := &protectedServer{next: accessToken(t, "u", time.Time{})}
	env := newEnv(t, p.mux())
	cfg := env.config()
	env.seed(t, cfg, Credentials{Access: "stale", Refresh: "r1"}, Identity{Username: "u"})
	s := env.build(t, cfg)

	var out itemsResponse
	if err := s.Gateway().Request(context.Background(), http.MethodGet, "/api/items", nil, &out); err != nil {
		t.Fatalf("request: %v", err)
	}
	if len(out.Items) != 2 {
		t.Fatalf("body = %+v", out)
	}
	if got := p.calls.Load(); got != 2 {
		t.Fatalf("protected calls = %d, want 2", got)
	}
	if got := p.refreshes.Load(); got != 1 {
		t.Fatalf("refresh calls = %d, want 1", got)
	}
	if c, _ := s.Credentials(); c.Access != p.next {
		t.Fatalf("session not updated: %+v", c)
	}
	if v := s.metrics.Value(MetricGatewayRetry); v != 1 {
		t.Fatalf("retry metric = %d", v)
	}
}

func TestGatewayRenewalFailureTearsDown(t *testing.T) {
	var protected, refreshes atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/items", func(w http.ResponseWriter, r *http.Request) {
		protected.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "revoked"})
	})
	env := newEnv(t, mux)
	cfg := env.config()
	env.seed(t, cfg, Credentials{Access: "a1", Refresh: "r1"}, Identity{Username: "u"})
	s := env.build(t, cfg)

	err := s.Gateway().Request(context.Background(), http.MethodGet, "/api/items", nil, nil)
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
	if s.IsAuthenticated() || env.kv.Len() != 0 {
		t.Fatal("both stores must be cleared")
	}
	if protected.Load() != 1 || refreshes.Load() != 1 {
		t.Fatalf("calls: protected=%d refresh=%d", protected.Load(), refreshes.Load())
	}
}

func TestGatewayConcurrentUnauthorizedShareRenewal(t *testing.T) {
	// Hold the first two calls so both see the stale credential.
	p := &protectedServer{next: accessToken(t, "u", time.Time{}), gate: make(chan struct{})}
	env := newEnv(t, p.mux())
	cfg := env.config()
	env.seed(t, cfg, Credentials{Access: "stale", Refresh: "r1"}, Identity{Username: "u"})
	s := env.build(t, cfg)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var out itemsResponse
			errs[i] = s.Gateway().Request(context.Background(), http.MethodGet, "/api/items", nil, &out)
		}(i)
	}
	waitFor(t, func() bool { return p.calls.Load() == 2 })
	close(p.gate)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if got := p.refreshes.Load(); got != 1 {
		t.Fatalf("refresh calls = %d, want 1", got)
	}
	if got := p.calls.Load(); got != 4 {
		t.Fatalf("protected calls = %d, want 4", got)
	}
}

func TestGatewayDoesNotLoopOnPersistent401(t *testing.T) {
	var protected atomic.Int32
	p := &protectedServer{next: accessToken(t, "u", time.Time{})}
	mux := p.mux()
	mux.HandleFunc("POST /api/password", func(w http.ResponseWriter, r *http.Request) {
		protected.Add(1)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid password"})
	})
	env := newEnv(t, mux)
	cfg := env.config()
	env.seed(t, cfg, Credentials{Access: "a1", Refresh: "r1"}, Identity{Username: "u"})
	s := env.build(t, cfg)

	err := s.Gateway().Request(context.Background(), http.MethodPost, "/api/password", map[string]string{"x": "y"}, nil)
	var re *RequestError
	if !errors.As(err, &re) || re.Status != http.StatusUnauthorized || re.Message != "invalid password" {
		t.Fatalf("err = %v", err)
	}
	if !errors.Is(err, ErrRequestFailed) {
		t.Fatalf("err = %v, want ErrRequestFailed kind", err)
	}
	if protected.Load() != 2 || p.refreshes.Load() != 1 {
		t.Fatalf("calls: protected=%d refresh=%d", protected.Load(), p.refreshes.Load())
	}
	if !s.IsAuthenticated() {
		t.Fatal("a 401 after a successful renewal must not tear down")
	}
}

func TestGatewayAnonymousUnauthorized(t *testing.T) {
	p := &protectedServer{valid: "x"}
	env := newEnv(t, p.mux())
	s := env.build(t, env.config())

	err := s.Gateway().Request(context.Background(), http.MethodGet, "/api/items", nil, nil)
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("err = %v", err)
	}
	if p.refreshes.Load() != 0 {
		t.Fatal("no renewal without a refresh credential")
	}
}

func TestGatewayErrorKinds(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /fail", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "maintenance"})
	})
	mux.HandleFunc("GET /garbage", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	})
	env := newEnv(t, mux)
	cfg := env.config()
	env.seed(t, cfg, Credentials{Access: "a1", Refresh: "r1"}, Identity{Username: "u"})
	s := env.build(t, cfg)
	ctx := context.Background()

	err := s.Gateway().Request(ctx, http.MethodGet, "/fail", nil, nil)
	var re *RequestError
	if !errors.As(err, &re) || re.Status != http.StatusServiceUnavailable || re.Message != "maintenance" {
		t.Fatalf("err = %v", err)
	}

	var out map[string]any
	if err := s.Gateway().Request(ctx, http.MethodGet, "/garbage", nil, &out); !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("err = %v, want ErrMalformedResponse", err)
	}
	if err := s.Gateway().Request(ctx, http.MethodGet, "/garbage", nil, nil); err != nil {
		t.Fatalf("nil out should discard body: %v", err)
	}

	env.srv.Close()
	if err := s.Gateway().Request(ctx, http.MethodGet, "/fail", nil, nil); !errors.Is(err, ErrNetworkUnavailable) {
		t.Fatalf("err = %v, want ErrNetworkUnavailable", err)
	}
	if !s.IsAuthenticated() {
		t.Fatal("transport failure must not touch the session")
	}
}

func TestGatewayProactiveRenewal(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	current := accessToken(t, "u", clock.Now().Add(5*time.Minute))
	p := &protectedServer{valid: current, next: accessToken(t, "u", clock.Now().Add(time.Hour))}
	env := newEnv(t, p.mux())

	cfg := env.config()
	cfg.Renewal.Proactive = true
	cfg.Renewal.Skew = 30 * time.Second
	env.seed(t, cfg, Credentials{Access: current, Refresh: "r1"}, Identity{Username: "u"})

	s, err := New().WithConfig(cfg).WithStore(env.kv).WithClock(clock).Build(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()

	if err := s.Gateway().Request(ctx, http.MethodGet, "/api/items", nil, nil); err != nil {
		t.Fatalf("request: %v", err)
	}
	if p.refreshes.Load() != 0 {
		t.Fatal("renewed too early")
	}

	clock.Advance(4*time.Minute + 45*time.Second)
	if err := s.Gateway().Request(ctx, http.MethodGet, "/api/items", nil, nil); err != nil {
		t.Fatalf("request: %v", err)
	}
	if got := p.refreshes.Load(); got != 1 {
		t.Fatalf("refresh calls = %d, want 1", got)
	}
	if got := p.calls.Load(); got != 2 {
		t.Fatalf("protected calls = %d, want 2 (no 401 round-trip)", got)
	}

	if err := s.Gateway().Request(ctx, http.MethodGet, "/api/items", nil, nil); err != nil {
		t.Fatalf("request: %v", err)
	}
	if got := p.refreshes.Load(); got != 1 {
		t.Fatalf("refresh calls = %d after renewal, want 1", got)
	}
}

func TestAuthorizeTypedOutcomes(t *testing.T) {
	p := &protectedServer{next: "fresh"}
	env := newEnv(t, p.mux())
	cfg := env.config()
	env.seed(t, cfg, Credentials{Access: "stale", Refresh: "r1"}, Identity{Username: "u"})
	s := env.build(t, cfg)

	var seen []string
	outcome, err := s.Authorize(context.Background(), func(_ context.Context, access string) (Outcome, error) {
		seen = append(seen, access)
		if access == "fresh" {
			return OutcomeDone, nil
		}
		return OutcomeUnauthorized, nil
	})
	if err != nil || outcome != OutcomeDone {
		t.Fatalf("outcome=%v err=%v", outcome, err)
	}
	if len(seen) != 2 || seen[0] != "stale" || seen[1] != "fresh" {
		t.Fatalf("attempts = %v", seen)
	}

	boom := errors.New("boom")
	if _, err := s.Authorize(context.Background(), func(context.Context, string) (Outcome, error) {
		return OutcomeDone, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("attempt error should pass through: %v", err)
	}
}
