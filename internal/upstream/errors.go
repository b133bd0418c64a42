package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/noah-isme/kasir-desk/internal/common"
	"github.com/noah-isme/kasir-desk/internal/resilience"
)

// ErrUnavailable marks transport failures, open breakers and 5xx responses.
var ErrUnavailable = errors.New("remote backend unavailable")

// RemoteError is a 4xx answer of the remote backend. Message and Body are
// relayed to the terminal unchanged.
type RemoteError struct {
	StatusCode int
	Message    string
	Body       json.RawMessage
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote backend rejected request (%d): %s", e.StatusCode, e.Message)
}

func remoteError(status int, body []byte) error {
	re := &RemoteError{StatusCode: status, Message: remoteMessage(status, body)}
	if json.Valid(body) {
		re.Body = json.RawMessage(body)
	}
	switch status {
	case http.StatusNotFound:
		return common.NewAppError("NOT_FOUND", re.Message, http.StatusNotFound, re).WithDetails(re.Body)
	case http.StatusConflict:
		return common.NewAppError("CONFLICT", re.Message, http.StatusConflict, re).WithDetails(re.Body)
	default:
		return common.NewAppError("VALIDATION", re.Message, http.StatusUnprocessableEntity, re).WithDetails(re.Body)
	}
}

func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	wrapped := fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	return common.NewAppError("UPSTREAM_UNAVAILABLE", "remote backend unavailable", http.StatusBadGateway, wrapped)
}

func transportError(op string, err error) error {
	var statusErr *resilience.StatusError
	if errors.As(err, &statusErr) {
		return unavailable(op, fmt.Errorf("%w: %s", err, remoteMessage(statusErr.StatusCode, statusErr.Body)))
	}
	return unavailable(op, err)
}

// remoteMessage extracts the human readable message of an error body. The
// backend answers with {"message": ...} and sometimes {"error": ...}.
func remoteMessage(status int, body []byte) string {
	var payload struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if msg := strings.TrimSpace(payload.Message); msg != "" {
			return msg
		}
		var s string
		if err := json.Unmarshal(payload.Error, &s); err == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(payload.Error, &nested); err == nil && strings.TrimSpace(nested.Message) != "" {
			return strings.TrimSpace(nested.Message)
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) <= 200 && !strings.HasPrefix(text, "<") {
		return text
	}
	return http.StatusText(status)
}
