package authsession

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"
)

func TestMetricsInc(t *testing.T) {
	tests := []struct {
		name  string
		cfg   MetricsConfig
		id    MetricID
		times int
		want  uint64
	}{
		{name: "disabled", cfg: MetricsConfig{}, id: MetricLoginSuccess, times: 2, want: 0},
		{name: "enabled", cfg: MetricsConfig{Enabled: true}, id: MetricLogout, times: 3, want: 3},
		{name: "out of range", cfg: MetricsConfig{Enabled: true}, id: metricIDCount, times: 1, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMetrics(tt.cfg)
			for range tt.times {
				m.Inc(tt.id)
			}
			if got := m.Value(tt.id); got != tt.want {
				t.Fatalf("Value = %d, want %d", got, tt.want)
			}
		})
	}

	var nilMetrics *Metrics
	nilMetrics.Inc(MetricLogout)
	if nilMetrics.Value(MetricLogout) != 0 || nilMetrics.Enabled() {
		t.Fatal("nil metrics must be inert")
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricRenewSuccess)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricRenewSuccess); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestBucketIndexBoundaries(t *testing.T) {
	cases := map[time.Duration]int{
		0:                      0,
		5 * time.Millisecond:   0,
		6 * time.Millisecond:   1,
		25 * time.Millisecond:  2,
		26 * time.Millisecond:  3,
		100 * time.Millisecond: 4,
		250 * time.Millisecond: 5,
		500 * time.Millisecond: 6,
		501 * time.Millisecond: 7,
		3 * time.Second:        7,
	}
	for d, want := range cases {
		if got := bucketIndex(d); got != want {
			t.Errorf("bucketIndex(%v) = %d, want %d", d, got, want)
		}
	}

	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Observe(MetricRequestLatency, time.Millisecond)
	if len(m.Snapshot().Histograms) != 0 {
		t.Fatal("histogram recorded without EnableLatencyHistograms")
	}
}

func TestMetricsSnapshotConsistency(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginFailure)
	m.Inc(MetricLoginFailure)
	m.Observe(MetricRequestLatency, 2*time.Millisecond)

	snap := m.Snapshot()

	if snap.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("expected MetricLoginSuccess=1 got %d", snap.Counters[MetricLoginSuccess])
	}
	if snap.Counters[MetricLoginFailure] != 2 {
		t.Fatalf("expected MetricLoginFailure=2 got %d", snap.Counters[MetricLoginFailure])
	}
	if len(snap.Histograms[MetricRequestLatency]) != 8 {
		t.Fatalf("expected histogram length 8")
	}
	if snap.Histograms[MetricRequestLatency][0] != 1 {
		t.Fatalf("expected first histogram bucket=1 got %d", snap.Histograms[MetricRequestLatency][0])
	}
}

func TestMetricsOnlyRequestLatencyHasHistogram(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Observe(MetricLoginSuccess, time.Millisecond)

	snap := m.Snapshot()
	if _, ok := snap.Histograms[MetricLoginSuccess]; ok {
		t.Fatal("counters must not carry histograms")
	}
	if _, ok := snap.Counters[MetricRequestLatency]; ok {
		t.Fatal("latency histogram must not appear as a counter")
	}
}

func TestSessionRecordsGatewayLatency(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	env := newEnv(t, mux)
	cfg := env.config()
	cfg.Metrics.EnableLatencyHistograms = true
	s := env.build(t, cfg)

	for i := 0; i < 3; i++ {
		if err := s.Gateway().Request(context.Background(), http.MethodGet, "/ping", nil, nil); err != nil {
			t.Fatalf("request: %v", err)
		}
	}

	var total uint64
	for _, v := range s.MetricsSnapshot().Histograms[MetricRequestLatency] {
		total += v
	}
	if total != 3 {
		t.Fatalf("latency observations = %d, want 3", total)
	}
}

func TestSessionCountsAuthOutcomes(t *testing.T) {
	access := accessToken(t, "alice", time.Time{})
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Password != "right" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, tokenPair(access, "r1"))
	})
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	env := newEnv(t, mux)
	s := env.build(t, env.config())
	ctx := context.Background()

	if err := s.Login(ctx, "alice", "wrong", "c"); err == nil {
		t.Fatal("expected login failure")
	}
	if err := s.Login(ctx, "alice", "right", "c"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := s.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}

	snap := s.MetricsSnapshot()
	want := map[MetricID]uint64{
		MetricLoginFailure:        1,
		MetricLoginSuccess:        1,
		MetricLogout:              1,
		MetricLogoutNotifyFailure: 1,
		MetricRenewSuccess:        0,
	}
	for id, v := range want {
		if snap.Counters[id] != v {
			t.Errorf("counter %d = %d, want %d", id, snap.Counters[id], v)
		}
	}
}
