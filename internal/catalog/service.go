// Package catalog serves the active charge catalog of the remote backend.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/kasir-desk/internal/common"
	"github.com/noah-isme/kasir-desk/internal/pricing"
)

// ErrChargeNotFound indicates the charge is not in the active catalog.
var ErrChargeNotFound = errors.New("charge not active")

// Fetcher loads the active charges from the remote backend.
type Fetcher interface {
	ActiveCharges(ctx context.Context) ([]pricing.Charge, error)
}

// Service caches the charge catalog and coalesces concurrent misses.
type Service struct {
	fetcher Fetcher
	cache   *Cache
	group   singleflight.Group
	logger  zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Fetcher Fetcher
	Cache   *Cache
	Logger  *zerolog.Logger
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("catalog: fetcher is required")
	}
	svc := &Service{fetcher: cfg.Fetcher, cache: cfg.Cache, logger: zerolog.Nop()}
	if cfg.Logger != nil {
		svc.logger = cfg.Logger.With().Str("component", "catalog").Logger()
	}
	return svc, nil
}

// Active returns the active charges, from cache when possible.
func (s *Service) Active(ctx context.Context) ([]pricing.Charge, error) {
	cached, hit, err := s.cache.Load(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("read charge cache")
	}
	if hit {
		return cached, nil
	}
	return s.load(ctx)
}

// Refresh drops the cached catalog and loads it again.
func (s *Service) Refresh(ctx context.Context) ([]pricing.Charge, error) {
	if err := s.cache.Drop(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("drop charge cache")
	}
	return s.load(ctx)
}

// Charge resolves one active charge by id.
func (s *Service) Charge(ctx context.Context, id string) (pricing.Charge, error) {
	id = strings.TrimSpace(id)
	charges, err := s.Active(ctx)
	if err != nil {
		return pricing.Charge{}, err
	}
	for _, c := range charges {
		if c.ID == id {
			return c, nil
		}
	}
	return pricing.Charge{}, common.NewAppError("CHARGE_NOT_FOUND", fmt.Sprintf("charge %q is not active", id), http.StatusNotFound, ErrChargeNotFound)
}

func (s *Service) load(ctx context.Context) ([]pricing.Charge, error) {
	v, err, shared := s.group.Do(activeChargesKey, func() (any, error) {
		charges, err := s.fetcher.ActiveCharges(ctx)
		if err != nil {
			return nil, err
		}
		if charges == nil {
			charges = []pricing.Charge{}
		}
		if err := s.cache.Store(ctx, charges); err != nil {
			s.logger.Warn().Err(err).Msg("write charge cache")
		}
		return charges, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch active charges: %w", err)
	}
	if shared {
		s.logger.Debug().Msg("charge fetch coalesced")
	}
	return v.([]pricing.Charge), nil
}
