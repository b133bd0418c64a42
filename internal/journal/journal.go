// Package journal records submit attempts and their outcomes in Postgres.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/kasir-desk/internal/events"
	"github.com/noah-isme/kasir-desk/internal/pricing"
)

// ErrStoreUnavailable indicates the journal database is not configured.
var ErrStoreUnavailable = errors.New("journal: store unavailable")

// Entry is one journal row.
type Entry struct {
	ID             uuid.UUID       `json:"id"`
	SessionID      uuid.UUID       `json:"session_id"`
	Topic          string          `json:"topic"`
	Kind           string          `json:"kind,omitempty"`
	Reference      string          `json:"reference,omitempty"`
	NetTotal       *pricing.Money  `json:"net_total,omitempty"`
	AmountReceived *pricing.Money  `json:"amount_received,omitempty"`
	SaleID         *string         `json:"sale_id,omitempty"`
	Error          *string         `json:"error,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// Store persists journal entries.
type Store interface {
	Insert(ctx context.Context, e Entry) error
	ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]Entry, error)
}

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

// Insert writes one entry.
func (s *pgStore) Insert(ctx context.Context, e Entry) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	var netTotal, received any
	if e.NetTotal != nil {
		netTotal = e.NetTotal.String()
	}
	if e.AmountReceived != nil {
		received = e.AmountReceived.String()
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO pos_journal
(id, session_id, topic, kind, reference, net_total, amount_received, sale_id, error, payload, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9, $10, $11)`,
		e.ID, e.SessionID, e.Topic, e.Kind, e.Reference, netTotal, received, e.SaleID, e.Error, []byte(e.Payload), e.OccurredAt)
	return err
}

// ListBySession returns the entries of a session, oldest first.
func (s *pgStore) ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]Entry, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx, `SELECT id, session_id, topic, kind, reference, net_total::text, amount_received::text, sale_id, error, payload, occurred_at
FROM pos_journal WHERE session_id = $1 ORDER BY occurred_at ASC LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var (
			e                  Entry
			netTotal, received *string
			payload            []byte
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Topic, &e.Kind, &e.Reference, &netTotal, &received, &e.SaleID, &e.Error, &payload, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.NetTotal = parseAmount(netTotal)
		e.AmountReceived = parseAmount(received)
		e.Payload = json.RawMessage(payload)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func parseAmount(v *string) *pricing.Money {
	if v == nil {
		return nil
	}
	d, err := decimal.NewFromString(*v)
	if err != nil {
		return nil
	}
	return &d
}

// Journal adapts a Store to events.EventStore.
type Journal struct {
	Store Store
}

// InsertEvent records an emitted event. Checkout events have their totals
// and outcome lifted into columns.
func (j Journal) InsertEvent(ctx context.Context, ev events.Event) error {
	if j.Store == nil {
		return ErrStoreUnavailable
	}
	return j.Store.Insert(ctx, EntryFromEvent(ev))
}

// EntryFromEvent maps an event onto a journal row.
func EntryFromEvent(ev events.Event) Entry {
	e := Entry{
		ID:         ev.ID,
		SessionID:  ev.SessionID,
		Topic:      ev.Topic,
		Payload:    ev.Payload,
		OccurredAt: ev.OccurredAt,
	}
	if len(e.Payload) == 0 {
		e.Payload = json.RawMessage(`{}`)
	}
	if !strings.HasPrefix(ev.Topic, "checkout.") {
		return e
	}
	var p events.CheckoutPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return e
	}
	e.Kind = p.Kind
	e.Reference = p.Reference
	e.NetTotal = &p.NetTotal
	e.AmountReceived = &p.Received
	if p.SaleID != "" {
		e.SaleID = &p.SaleID
	}
	if p.Error != "" {
		e.Error = &p.Error
	}
	return e
}
