// Package checkout submits a finished transaction to the remote backend.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kasir-desk/internal/common"
	"github.com/noah-isme/kasir-desk/internal/events"
	"github.com/noah-isme/kasir-desk/internal/obs"
	"github.com/noah-isme/kasir-desk/internal/pricing"
	"github.com/noah-isme/kasir-desk/internal/session"
	"github.com/noah-isme/kasir-desk/internal/tender"
	"github.com/noah-isme/kasir-desk/internal/upstream"
)

var (
	// ErrNotReady is returned when the submit guard rejects the transaction.
	ErrNotReady = errors.New("transaction not ready for submission")
	// ErrAlreadySubmitting is returned for a second submit while one is in flight.
	ErrAlreadySubmitting = tender.ErrAlreadySubmitting
)

// DefaultStaleAfter is how long a submission may stay in flight before a new
// submit treats it as abandoned.
const DefaultStaleAfter = 2 * time.Minute

const interruptedMessage = "previous submission did not complete"

// Submitter posts submissions to the remote backend.
type Submitter interface {
	SubmitSale(ctx context.Context, sub upstream.Submission) (upstream.Receipt, error)
	SubmitPurchase(ctx context.Context, sub upstream.Submission) (upstream.Receipt, error)
}

// Service runs the checkout of a session.
type Service struct {
	sessions   *session.Service
	remote     Submitter
	bus        *events.Bus
	staleAfter time.Duration
	now        func() time.Time
	logger     zerolog.Logger
}

// Config groups Service dependencies.
type Config struct {
	Sessions   *session.Service
	Remote     Submitter
	Bus        *events.Bus
	StaleAfter time.Duration
	Now        func() time.Time
	Logger     *zerolog.Logger
}

// NewService constructs a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Sessions == nil {
		return nil, errors.New("checkout: session service is required")
	}
	if cfg.Remote == nil {
		return nil, errors.New("checkout: submitter is required")
	}
	svc := &Service{
		sessions:   cfg.Sessions,
		remote:     cfg.Remote,
		bus:        cfg.Bus,
		staleAfter: cfg.StaleAfter,
		now:        cfg.Now,
		logger:     zerolog.Nop(),
	}
	if svc.staleAfter <= 0 {
		svc.staleAfter = DefaultStaleAfter
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	if cfg.Logger != nil {
		svc.logger = cfg.Logger.With().Str("component", "checkout").Logger()
	}
	return svc, nil
}

// Result describes an accepted submission.
type Result struct {
	SessionID      uuid.UUID       `json:"session_id"`
	Kind           session.Kind    `json:"kind"`
	Reference      string          `json:"reference"`
	SaleID         string          `json:"sale_id,omitempty"`
	Message        string          `json:"message,omitempty"`
	NetTotal       pricing.Money   `json:"net_total"`
	AmountReceived pricing.Money   `json:"amount_received"`
	Balance        pricing.Money   `json:"balance"`
	Receipt        json.RawMessage `json:"receipt,omitempty"`
}

// Submit checks the submit guard, marks the session as submitting and posts
// it. An accepted session is discarded; a rejected one keeps its cart and
// payments and records the server message.
func (s *Service) Submit(ctx context.Context, id uuid.UUID) (*Result, error) {
	start := s.now()
	var (
		sub  upstream.Submission
		kind session.Kind
	)
	_, err := s.sessions.Transition(ctx, id, func(sess *session.Session) error {
		now := s.now().UTC()
		if sess.Tender.Stale(now, s.staleAfter) {
			s.logger.Warn().Str("session_id", id.String()).Time("started_at", *sess.Tender.SubmitStartedAt).Msg("abandoned submission reset")
			sess.Tender.Fail(interruptedMessage)
		}
		if sess.Tender.Submitting() {
			return ErrAlreadySubmitting
		}
		if ready := sess.Readiness(); !ready.Ready {
			return notReady(ready)
		}
		if err := sess.Tender.BeginSubmit(now); err != nil {
			return err
		}
		kind = sess.Kind
		sub = BuildSubmission(sess, Reference(sess, now))
		return nil
	})
	if err != nil {
		return nil, session.AppError(err)
	}

	payload := events.CheckoutPayload{
		Kind:      string(kind),
		Reference: sub.Reference,
		NetTotal:  sub.NetTotal,
		Received:  sub.AmountReceived,
	}
	s.emit(ctx, events.TopicCheckoutSubmitted, id, payload)

	// The terminal may go away mid-request; the outcome must still be recorded.
	detached := context.WithoutCancel(ctx)
	receipt, err := s.send(detached, kind, sub)
	if err != nil {
		s.fail(detached, id, kind, payload, err, start)
		return nil, err
	}

	if rmErr := s.sessions.Remove(detached, id); rmErr != nil {
		s.logger.Error().Err(rmErr).Str("session_id", id.String()).Msg("discard submitted session")
		if _, tErr := s.sessions.Transition(detached, id, func(sess *session.Session) error {
			sess.Tender.Succeed()
			return nil
		}); tErr != nil {
			s.logger.Error().Err(tErr).Str("session_id", id.String()).Msg("mark session submitted")
		}
	}
	payload.SaleID = receipt.SaleID
	s.emit(detached, events.TopicCheckoutSucceeded, id, payload)
	obs.ObserveCheckout(string(kind), "success", s.now().Sub(start))
	s.logger.Info().
		Str("session_id", id.String()).
		Str("kind", string(kind)).
		Str("sale_id", receipt.SaleID).
		Str("net_total", sub.NetTotal.StringFixed(pricing.Scale)).
		Msg("checkout accepted")

	return &Result{
		SessionID:      id,
		Kind:           kind,
		Reference:      sub.Reference,
		SaleID:         receipt.SaleID,
		Message:        receipt.Message,
		NetTotal:       sub.NetTotal,
		AmountReceived: sub.AmountReceived,
		Balance:        sub.Balance,
		Receipt:        receipt.Raw,
	}, nil
}

func (s *Service) send(ctx context.Context, kind session.Kind, sub upstream.Submission) (upstream.Receipt, error) {
	if kind == session.KindPurchase {
		return s.remote.SubmitPurchase(ctx, sub)
	}
	return s.remote.SubmitSale(ctx, sub)
}

func (s *Service) fail(ctx context.Context, id uuid.UUID, kind session.Kind, payload events.CheckoutPayload, cause error, start time.Time) {
	msg := FailureMessage(cause)
	if _, err := s.sessions.Transition(ctx, id, func(sess *session.Session) error {
		sess.Tender.Fail(msg)
		return nil
	}); err != nil {
		s.logger.Error().Err(err).Str("session_id", id.String()).Msg("record failed submission")
	}
	payload.Error = msg
	s.emit(ctx, events.TopicCheckoutFailed, id, payload)

	result := "rejected"
	if errors.Is(cause, upstream.ErrUnavailable) {
		result = "unavailable"
		s.logger.Error().Err(cause).Str("session_id", id.String()).Msg("checkout failed")
	} else {
		s.logger.Info().Str("session_id", id.String()).Str("reason", msg).Msg("checkout rejected")
	}
	obs.ObserveCheckout(string(kind), result, s.now().Sub(start))
}

// FailureMessage is the text shown to the cashier for a failed submission.
// Messages from the remote backend are passed through unchanged.
func FailureMessage(err error) string {
	var remote *upstream.RemoteError
	if errors.As(err, &remote) && remote.Message != "" {
		return remote.Message
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return err.Error()
}

func notReady(ready tender.Readiness) error {
	return common.NewAppError("NOT_READY", "transaction is not ready for submission", http.StatusConflict,
		fmt.Errorf("%v: %w", ready.Reasons, ErrNotReady)).
		WithDetails(map[string]any{"reasons": ready.Reasons, "remaining": ready.Remaining})
}

func (s *Service) emit(ctx context.Context, topic string, id uuid.UUID, payload any) {
	if s.bus == nil {
		return
	}
	if _, err := s.bus.Emit(ctx, topic, id, payload); err != nil {
		s.logger.Warn().Err(err).Str("topic", topic).Str("session_id", id.String()).Msg("emit checkout event")
	}
}
