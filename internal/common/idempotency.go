package common

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// IdempotencyHeader names the request header carrying the client key.
const IdempotencyHeader = "Idempotency-Key"

const pendingMarker = "pending"

// Idem guards mutating session routes against replays. A key is scoped to the
// terminal, method and path, so two terminals can reuse the same key.
type Idem struct {
	R   *redis.Client
	TTL time.Duration
}

func (i Idem) key(r *http.Request, header string) string {
	terminal, _ := TerminalID(r.Context())
	return "idem:" + Sha256Hex(terminal, r.Method, r.URL.Path, header)
}

func (i Idem) ttl() time.Duration {
	if i.TTL <= 0 {
		return 24 * time.Hour
	}
	return i.TTL
}

// Middleware claims the key before running the handler. A replay is answered
// with 409 IDEMPOTENT_REPLAY whose details tell whether the first request is
// still in progress or which status it completed with. Keys of requests that
// ended with an error status are released so the terminal can retry.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
		if header == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		key := i.key(r, header)
		claimed, err := i.R.SetNX(ctx, key, pendingMarker, i.ttl()).Result()
		if err != nil {
			JSONError(w, http.StatusInternalServerError, "INTERNAL", "idempotency store error", map[string]any{"error": err.Error()})
			return
		}
		if !claimed {
			replay(w, i.R.Get(ctx, key).Val())
			return
		}

		rec := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		// the client may be gone already; the outcome must still be recorded
		done, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if rec.code() >= http.StatusBadRequest {
			_ = i.R.Del(done, key).Err()
			return
		}
		_ = i.R.SetArgs(done, key, strconv.Itoa(rec.code()), redis.SetArgs{KeepTTL: true}).Err()
	})
}

func replay(w http.ResponseWriter, stored string) {
	details := map[string]any{"state": "in_progress"}
	if status, err := strconv.Atoi(stored); err == nil {
		details = map[string]any{"state": "completed", "status": status}
	}
	JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "duplicate request", details)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Write(p []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(p)
}

func (s *statusWriter) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func (s *statusWriter) code() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}
