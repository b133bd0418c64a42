package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"
)

// ErrDisabled is returned by optional dependencies that are not configured.
// It does not fail readiness.
var ErrDisabled = errors.New("disabled")

// Checker represents dependencies that can be probed for readiness.
type Checker interface {
	PingRedis(ctx context.Context, timeout time.Duration) error
	PingUpstream(ctx context.Context, timeout time.Duration) error
	PingJournal(ctx context.Context, timeout time.Duration) error
}

var ready atomic.Bool

func init() {
	ready.Store(true)
}

// SetReady flips the readiness flag. The server clears it when draining.
func SetReady(v bool) {
	ready.Store(v)
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checker         Checker
	RedisTimeout    time.Duration
	UpstreamTimeout time.Duration
	JournalTimeout  time.Duration
	// Breaker reports the upstream circuit state, e.g. "closed".
	Breaker func() string
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes. Redis and the remote
// backend are required; the journal database only when configured.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.Checker == nil {
		http.Error(w, "dependencies unavailable", http.StatusServiceUnavailable)
		return
	}
	ctx := r.Context()
	status := map[string]string{
		"redis":    probe(h.Checker.PingRedis(ctx, orDefault(h.RedisTimeout, 300*time.Millisecond))),
		"upstream": probe(h.Checker.PingUpstream(ctx, orDefault(h.UpstreamTimeout, time.Second))),
		"journal":  probe(h.Checker.PingJournal(ctx, orDefault(h.JournalTimeout, 500*time.Millisecond))),
	}
	if h.Breaker != nil {
		status["breaker"] = h.Breaker()
	}
	healthy := ready.Load()
	for _, key := range []string{"redis", "upstream", "journal"} {
		if v := status[key]; v != "ok" && v != ErrDisabled.Error() {
			healthy = false
		}
	}
	if !ready.Load() {
		status["server"] = "draining"
	}
	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}

func probe(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, ErrDisabled) {
		return ErrDisabled.Error()
	}
	return err.Error()
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
