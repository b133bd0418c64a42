// Package ratelimit throttles terminal requests with Redis backed counters.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Backend counts a hit for key and reports whether it is within max hits per window.
type Backend interface {
	Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error)
}

// Backend names accepted by RATE_LIMIT_BACKEND.
const (
	BackendSliding = "sliding"
	BackendFixed   = "fixed"
)

// ParseBackend normalises a backend name. Blank selects the sliding window.
func ParseBackend(name string) (string, error) {
	switch n := strings.ToLower(strings.TrimSpace(name)); n {
	case "", BackendSliding:
		return BackendSliding, nil
	case BackendFixed:
		return BackendFixed, nil
	default:
		return "", fmt.Errorf("unknown rate limit backend %q", name)
	}
}
