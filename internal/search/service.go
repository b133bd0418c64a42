// Package search runs product lookups for a session. Keystrokes are debounced
// and only the newest query of a session may touch its cart.
package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kasir-desk/internal/cart"
	"github.com/noah-isme/kasir-desk/internal/common"
	"github.com/noah-isme/kasir-desk/internal/obs"
	"github.com/noah-isme/kasir-desk/internal/pricing"
	"github.com/noah-isme/kasir-desk/internal/ratelimit"
	"github.com/noah-isme/kasir-desk/internal/session"
	"github.com/noah-isme/kasir-desk/internal/upstream"
)

// ErrSuperseded is returned to a query replaced by a newer one of the same session.
var ErrSuperseded = errors.New("search superseded by a newer query")

// Catalog queries the remote product catalog.
type Catalog interface {
	SearchProducts(ctx context.Context, query string, purchase bool) ([]upstream.Product, error)
}

// Config groups Service dependencies. A zero Debounce searches immediately.
type Config struct {
	Catalog  Catalog
	Sessions *session.Service
	Debounce time.Duration
	Limiter  ratelimit.Backend
	Limit    int
	Window   time.Duration
	Logger   *zerolog.Logger
}

// Service runs debounced searches.
type Service struct {
	catalog  Catalog
	sessions *session.Service
	debounce time.Duration
	limiter  ratelimit.Backend
	limit    int
	window   time.Duration
	logger   zerolog.Logger

	mu       sync.Mutex
	seq      uint64
	inflight map[uuid.UUID]pending
}

type pending struct {
	gen    uint64
	cancel context.CancelFunc
}

// NewService constructs a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("search: catalog is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("search: session service is required")
	}
	svc := &Service{
		catalog:  cfg.Catalog,
		sessions: cfg.Sessions,
		debounce: cfg.Debounce,
		limiter:  cfg.Limiter,
		limit:    cfg.Limit,
		window:   cfg.Window,
		logger:   zerolog.Nop(),
		inflight: make(map[uuid.UUID]pending),
	}
	if svc.window <= 0 {
		svc.window = time.Second
	}
	if cfg.Logger != nil {
		svc.logger = cfg.Logger.With().Str("component", "search").Logger()
	}
	return svc, nil
}

// Query is one search request of a session.
type Query struct {
	SessionID uuid.UUID
	Text      string
	AutoAdd   bool
}

// Result is the answer to the newest query of a session.
type Result struct {
	Query      string             `json:"query"`
	Generation uint64             `json:"generation"`
	Products   []upstream.Product `json:"products"`
	Added      *cart.Line         `json:"added,omitempty"`
	// Session is set when a product was added to the cart.
	Session *session.Session `json:"-"`
}

// Search waits out the debounce window, queries the catalog and, when asked
// to, adds a single match to the cart. A newer query of the same session
// cancels this one, which then fails with ErrSuperseded.
func (s *Service) Search(ctx context.Context, q Query) (*Result, error) {
	text := strings.TrimSpace(q.Text)
	if err := s.allow(ctx, q.SessionID); err != nil {
		return nil, err
	}
	sess, err := s.sessions.Get(ctx, q.SessionID)
	if err != nil {
		return nil, session.AppError(err)
	}

	gen, runCtx, done := s.begin(ctx, q.SessionID)
	defer done()

	if text == "" {
		return &Result{Query: text, Generation: gen, Products: []upstream.Product{}}, nil
	}
	if s.debounce > 0 {
		timer := time.NewTimer(s.debounce)
		select {
		case <-timer.C:
		case <-runCtx.Done():
			timer.Stop()
			return nil, s.interrupted(ctx)
		}
	}

	products, err := s.catalog.SearchProducts(runCtx, text, sess.Kind == session.KindPurchase)
	if !s.current(q.SessionID, gen) {
		return nil, superseded()
	}
	if err != nil {
		if runCtx.Err() != nil {
			return nil, s.interrupted(ctx)
		}
		obs.ObserveSearch("error")
		return nil, err
	}
	if products == nil {
		products = []upstream.Product{}
	}
	res := &Result{Query: text, Generation: gen, Products: products}
	if len(products) == 0 {
		obs.ObserveSearch("empty")
	} else {
		obs.ObserveSearch("hit")
	}

	if q.AutoAdd && len(products) == 1 {
		line, err := LineFromProduct(products[0], sess.Kind == session.KindPurchase, sess.Context.Return)
		if err != nil {
			return nil, session.AppError(err)
		}
		var added cart.Line
		updated, err := s.sessions.Update(ctx, q.SessionID, func(sess *session.Session) error {
			if !s.current(q.SessionID, gen) {
				return ErrSuperseded
			}
			var addErr error
			added, addErr = sess.Cart.Add(line)
			return addErr
		})
		if errors.Is(err, ErrSuperseded) {
			return nil, superseded()
		}
		if err != nil {
			return nil, session.AppError(err)
		}
		res.Added = &added
		res.Session = updated
		s.logger.Debug().Str("session_id", q.SessionID.String()).Str("product_id", added.ProductID).Msg("single match added")
	}
	return res, nil
}

// LineFromProduct turns a catalog hit into a cart line of one unit, or minus
// one unit for returns. Purchases are priced at cost.
func LineFromProduct(p upstream.Product, purchase, isReturn bool) (cart.Line, error) {
	qty := pricing.ParseAmount("1")
	if isReturn {
		qty = qty.Neg()
	}
	price := p.Price
	if purchase && p.Cost.IsPositive() {
		price = p.Cost
	}
	payload := session.ItemPayload{
		ProductID:              p.ID,
		BatchID:                p.BatchID,
		Name:                   p.Name,
		ProductType:            string(cart.ParseProductType(p.ProductType)),
		Price:                  price,
		Quantity:               &qty,
		Cost:                   p.Cost,
		AdditionalCommission:   p.AdditionalCommission,
		ExtraCommission:        p.ExtraCommission,
		FixedCommissionPercent: p.FixedCommissionPercent,
		FixedCommission:        p.FixedCommission,
	}
	return payload.Line()
}

func (s *Service) allow(ctx context.Context, id uuid.UUID) error {
	if s.limiter == nil || s.limit <= 0 {
		return nil
	}
	allowed, _, reset, err := s.limiter.Allow(ctx, "search:"+id.String(), s.window, s.limit)
	if err != nil {
		s.logger.Warn().Err(err).Msg("search rate limiter unavailable")
		return nil
	}
	if !allowed {
		obs.ObserveSearch("limited")
		return common.NewAppError("RATE_LIMITED", "too many searches", http.StatusTooManyRequests, nil).
			WithDetails(map[string]any{"retry_at": reset.UTC()})
	}
	return nil
}

// begin registers a new generation for the session and cancels the previous one.
func (s *Service) begin(parent context.Context, id uuid.UUID) (uint64, context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	s.mu.Lock()
	if prev, ok := s.inflight[id]; ok {
		prev.cancel()
	}
	s.seq++
	gen := s.seq
	s.inflight[id] = pending{gen: gen, cancel: cancel}
	s.mu.Unlock()

	return gen, ctx, func() {
		cancel()
		s.mu.Lock()
		if cur, ok := s.inflight[id]; ok && cur.gen == gen {
			delete(s.inflight, id)
		}
		s.mu.Unlock()
	}
}

func (s *Service) current(id uuid.UUID, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.inflight[id]
	return ok && cur.gen == gen
}

// interrupted distinguishes a caller that went away from a superseded query.
func (s *Service) interrupted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return superseded()
}

func superseded() error {
	obs.ObserveSearch("superseded")
	return common.Conflict("SUPERSEDED", "a newer search replaced this one", fmt.Errorf("search: %w", ErrSuperseded))
}
