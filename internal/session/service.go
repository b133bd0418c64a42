package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kasir-desk/internal/cart"
	"github.com/noah-isme/kasir-desk/internal/events"
	"github.com/noah-isme/kasir-desk/internal/pricing"
	"github.com/noah-isme/kasir-desk/internal/tender"
)

// ChargeResolver looks up an active charge by id.
type ChargeResolver interface {
	Charge(ctx context.Context, id string) (pricing.Charge, error)
}

// Locker serialises work on a key.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Service applies mutations to sessions. Every mutation loads, changes and
// saves the session while holding the session lock.
type Service struct {
	store   Store
	locker  Locker
	lockTTL time.Duration
	charges ChargeResolver
	bus     *events.Bus
	now     func() time.Time
	logger  zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store   Store
	Locker  Locker
	LockTTL time.Duration
	Charges ChargeResolver
	Bus     *events.Bus
	Now     func() time.Time
	Logger  *zerolog.Logger
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("session: store is required")
	}
	if cfg.Locker == nil {
		return nil, errors.New("session: locker is required")
	}
	svc := &Service{
		store:   cfg.Store,
		locker:  cfg.Locker,
		lockTTL: cfg.LockTTL,
		charges: cfg.Charges,
		bus:     cfg.Bus,
		now:     cfg.Now,
		logger:  zerolog.Nop(),
	}
	if svc.lockTTL <= 0 {
		svc.lockTTL = 10 * time.Second
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	if cfg.Logger != nil {
		svc.logger = cfg.Logger.With().Str("component", "session").Logger()
	}
	return svc, nil
}

func lockKey(id uuid.UUID) string {
	return "session:" + id.String()
}

// Open starts a new transaction for a terminal.
func (s *Service) Open(ctx context.Context, terminalID string, kind Kind, meta Context) (*Session, error) {
	now := s.now().UTC()
	sess := &Session{
		ID:         uuid.New(),
		TerminalID: terminalID,
		Kind:       kind,
		Context:    meta,
		Tender:     tender.State{Phase: tender.PhaseIdle},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	s.emit(ctx, events.TopicSessionOpened, sess.ID, map[string]any{"kind": kind, "terminal_id": terminalID})
	return sess, nil
}

// Get loads a session.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	return s.store.Get(ctx, id)
}

// Discard cancels a transaction. A session being submitted cannot be discarded.
func (s *Service) Discard(ctx context.Context, id uuid.UUID) error {
	err := s.locker.WithLock(ctx, lockKey(id), s.lockTTL, func(ctx context.Context) error {
		sess, err := s.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if sess.Tender.Submitting() {
			return tender.ErrAlreadySubmitting
		}
		return s.store.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.emit(ctx, events.TopicSessionDiscarded, id, nil)
	return nil
}

// Remove deletes a session without checks. It is used once a submission was accepted.
func (s *Service) Remove(ctx context.Context, id uuid.UUID) error {
	return s.locker.WithLock(ctx, lockKey(id), s.lockTTL, func(ctx context.Context) error {
		return s.store.Delete(ctx, id)
	})
}

// Update applies an edit. Edits are refused while a submission is in flight
// and clear a previous submission failure.
func (s *Service) Update(ctx context.Context, id uuid.UUID, fn func(*Session) error) (*Session, error) {
	return s.Transition(ctx, id, func(sess *Session) error {
		if sess.Tender.Submitting() {
			return tender.ErrAlreadySubmitting
		}
		if err := fn(sess); err != nil {
			return err
		}
		sess.Tender.Touch()
		return nil
	})
}

// Transition applies fn to the session under the session lock without any
// phase checks. Nothing is saved when fn fails.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, fn func(*Session) error) (*Session, error) {
	var out *Session
	err := s.locker.WithLock(ctx, lockKey(id), s.lockTTL, func(ctx context.Context) error {
		sess, err := s.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(sess); err != nil {
			return err
		}
		sess.UpdatedAt = s.now().UTC()
		if err := s.store.Save(ctx, sess); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		out = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AddLine appends a line to the cart.
func (s *Service) AddLine(ctx context.Context, id uuid.UUID, line cart.Line) (*Session, cart.Line, error) {
	var added cart.Line
	sess, err := s.Update(ctx, id, func(sess *Session) error {
		var err error
		added, err = sess.Cart.Add(line)
		return err
	})
	return sess, added, err
}

// UpdateLine patches a line by identity.
func (s *Service) UpdateLine(ctx context.Context, id, lineID uuid.UUID, patch cart.LinePatch) (*Session, error) {
	return s.Update(ctx, id, func(sess *Session) error {
		_, err := sess.Cart.Update(lineID, patch)
		return err
	})
}

// RemoveLine deletes a line by identity.
func (s *Service) RemoveLine(ctx context.Context, id, lineID uuid.UUID) (*Session, error) {
	return s.Update(ctx, id, func(sess *Session) error {
		return sess.Cart.Remove(lineID)
	})
}

// ClearCart empties the cart and drops the payments taken against it.
func (s *Service) ClearCart(ctx context.Context, id uuid.UUID) (*Session, error) {
	return s.Update(ctx, id, func(sess *Session) error {
		sess.Cart.Clear()
		sess.Tender.Payments = nil
		return nil
	})
}

// DiscountInput sets the cart discount either as an amount or as a percent of
// the subtotal.
type DiscountInput struct {
	Amount  *pricing.Money `json:"amount"`
	Percent *pricing.Money `json:"percent"`
}

// SetDiscount stores the cart discount.
func (s *Service) SetDiscount(ctx context.Context, id uuid.UUID, in DiscountInput) (*Session, error) {
	switch {
	case in.Amount != nil && in.Percent != nil:
		return nil, fmt.Errorf("discount amount and percent are mutually exclusive: %w", cart.ErrInvalidDiscount)
	case in.Amount == nil && in.Percent == nil:
		return nil, fmt.Errorf("discount amount or percent required: %w", cart.ErrInvalidDiscount)
	}
	return s.Update(ctx, id, func(sess *Session) error {
		if in.Percent != nil {
			_, err := sess.Cart.SetDiscountPercent(*in.Percent)
			return err
		}
		return sess.Cart.SetDiscount(*in.Amount)
	})
}

// AddCharge selects an active charge from the catalog.
func (s *Service) AddCharge(ctx context.Context, id uuid.UUID, chargeID string) (*Session, error) {
	if s.charges == nil {
		return nil, errors.New("session: charge catalog not configured")
	}
	charge, err := s.charges.Charge(ctx, chargeID)
	if err != nil {
		return nil, err
	}
	return s.Update(ctx, id, func(sess *Session) error {
		sess.Cart.AddCharge(charge)
		return nil
	})
}

// RemoveCharge deselects a charge.
func (s *Service) RemoveCharge(ctx context.Context, id uuid.UUID, chargeID string) (*Session, error) {
	return s.Update(ctx, id, func(sess *Session) error {
		return sess.Cart.RemoveCharge(chargeID)
	})
}

// AddPayment appends a tender against the current net total.
func (s *Service) AddPayment(ctx context.Context, id uuid.UUID, p tender.Payment) (*Session, error) {
	return s.Update(ctx, id, func(sess *Session) error {
		return sess.Tender.Add(p, sess.Totals().Total)
	})
}

// RemovePayment deletes the tender at index.
func (s *Service) RemovePayment(ctx context.Context, id uuid.UUID, index int) (*Session, error) {
	return s.Update(ctx, id, func(sess *Session) error {
		_, err := sess.Tender.Remove(index)
		return err
	})
}

// UpdateContext changes the transaction metadata.
func (s *Service) UpdateContext(ctx context.Context, id uuid.UUID, patch ContextPatch) (*Session, error) {
	return s.Update(ctx, id, func(sess *Session) error {
		sess.Context = patch.apply(sess.Context)
		return nil
	})
}

func (s *Service) emit(ctx context.Context, topic string, id uuid.UUID, payload any) {
	if s.bus == nil {
		return
	}
	if _, err := s.bus.Emit(ctx, topic, id, payload); err != nil {
		s.logger.Warn().Err(err).Str("topic", topic).Str("session_id", id.String()).Msg("emit session event")
	}
}
