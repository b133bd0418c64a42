// Package app wires the services shared by the api and worker binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kasir-desk/internal/catalog"
	"github.com/noah-isme/kasir-desk/internal/checkout"
	"github.com/noah-isme/kasir-desk/internal/config"
	"github.com/noah-isme/kasir-desk/internal/events"
	"github.com/noah-isme/kasir-desk/internal/health"
	"github.com/noah-isme/kasir-desk/internal/journal"
	"github.com/noah-isme/kasir-desk/internal/ledger"
	"github.com/noah-isme/kasir-desk/internal/lock"
	"github.com/noah-isme/kasir-desk/internal/money"
	"github.com/noah-isme/kasir-desk/internal/notify"
	"github.com/noah-isme/kasir-desk/internal/obs"
	"github.com/noah-isme/kasir-desk/internal/ratelimit"
	"github.com/noah-isme/kasir-desk/internal/resilience"
	"github.com/noah-isme/kasir-desk/internal/search"
	"github.com/noah-isme/kasir-desk/internal/session"
	"github.com/noah-isme/kasir-desk/internal/upstream"
)

// Dependencies enumerates core services shared across modules.
type Dependencies struct {
	Config    *config.Config
	Logger    zerolog.Logger
	Redis     *redis.Client
	DB        *pgxpool.Pool
	Remote    *upstream.Client
	Breaker   *resilience.Breaker
	Tasks     *asynq.Client
	RedisOpt  asynq.RedisConnOpt
	Limiter   ratelimit.Backend
	Formatter *money.Formatter
	Bus       *events.Bus
	Journal   journal.Store

	Catalog  *catalog.Service
	Sessions *session.Service
	Checkout *checkout.Service
	Search   *search.Service
	Ledger   *ledger.Service

	closers []func()
}

// Options toggle optional instrumentation.
type Options struct {
	RedisMetrics bool
}

// NewRedis connects to Redis and instruments the client.
func NewRedis(ctx context.Context, url string, logger zerolog.Logger, opts Options) (*redis.Client, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if opts.RedisMetrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewRemote builds the instrumented client of the remote POS backend.
func NewRemote(cfg *config.Config, logger zerolog.Logger) (*upstream.Client, *resilience.Breaker, error) {
	breaker := resilience.NewBreaker(cfg.BreakerMinRequests, cfg.BreakerFailRatio, cfg.BreakerOpenFor).
		WithTarget("upstream").
		WithLogger(logger)
	client, err := upstream.New(upstream.Config{
		BaseURL:       cfg.UpstreamBaseURL,
		Token:         cfg.UpstreamToken,
		Timeout:       cfg.UpstreamTimeout,
		UploadTimeout: cfg.UploadTimeout,
		MaxAttempts:   cfg.RetryMaxAttempts,
		BaseBackoff:   cfg.RetryBase,
		Breaker:       breaker,
		Logger:        &logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return client, breaker, nil
}

// NewLimiter selects the rate limit backend named by RATE_LIMIT_BACKEND.
func NewLimiter(cfg *config.Config, rdb *redis.Client) (ratelimit.Backend, error) {
	name, err := ratelimit.ParseBackend(cfg.RateLimitBackend)
	if err != nil {
		return nil, err
	}
	if name == ratelimit.BackendFixed {
		store, err := ratelimit.NewRedisStore(rdb, "")
		if err != nil {
			return nil, fmt.Errorf("rate limit store: %w", err)
		}
		return ratelimit.Fixed{Store: store}, nil
	}
	return ratelimit.Sliding{Client: rdb, Prefix: "pos:ratelimit:"}, nil
}

// OpenJournal migrates and connects the journal database. It returns a nil
// store when DATABASE_URL is unset.
func OpenJournal(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, journal.Store, error) {
	if !cfg.JournalEnabled() {
		return nil, nil, nil
	}
	if err := journal.Migrate(cfg.DatabaseURL); err != nil {
		return nil, nil, err
	}
	pool, err := journal.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return pool, journal.NewStore(pool), nil
}

// Build connects the backing stores and constructs every service of the api.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (*Dependencies, error) {
	deps := &Dependencies{Config: cfg, Logger: logger}

	rdb, err := NewRedis(ctx, cfg.RedisURL, logger, opts)
	if err != nil {
		return nil, err
	}
	deps.Redis = rdb
	deps.closers = append(deps.closers, func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	})

	deps.Remote, deps.Breaker, err = NewRemote(cfg, logger)
	if err != nil {
		deps.Close()
		return nil, err
	}

	deps.RedisOpt, err = asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("parse task queue redis url: %w", err)
	}
	deps.Tasks = asynq.NewClient(deps.RedisOpt)
	deps.closers = append(deps.closers, func() {
		if err := deps.Tasks.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	})

	deps.Limiter, err = NewLimiter(cfg, rdb)
	if err != nil {
		deps.Close()
		return nil, err
	}

	pool, store, err := OpenJournal(ctx, cfg)
	if err != nil {
		deps.Close()
		return nil, err
	}
	if pool != nil {
		deps.DB, deps.Journal = pool, store
		deps.closers = append(deps.closers, pool.Close)
	}

	deps.Formatter = money.NewFormatter(money.Settings{
		Symbol:      cfg.CurrencySymbol,
		Locale:      cfg.CurrencyLocale,
		Decimals:    cfg.CurrencyDecimals,
		SymbolAfter: cfg.CurrencySymbolPost,
	})

	deps.Bus = &events.Bus{}
	if deps.Journal != nil {
		deps.Bus.Store = journal.Journal{Store: deps.Journal}
	}
	deps.Bus.Subscribe(obs.EventCounter{})
	deps.Bus.Subscribe(&notify.Enqueuer{
		Client:  deps.Tasks,
		Options: notify.TaskOptions{Queue: cfg.NotifyQueue, MaxRetry: cfg.NotifyMaxRetry},
		Logger:  &logger,
	})

	if err := deps.buildServices(); err != nil {
		deps.Close()
		return nil, err
	}
	return deps, nil
}

func (d *Dependencies) buildServices() error {
	cfg, logger := d.Config, d.Logger
	var err error

	d.Catalog, err = catalog.NewService(catalog.ServiceConfig{
		Fetcher: d.Remote,
		Cache:   catalog.NewCache(d.Redis, cfg.ChargeCacheTTL),
		Logger:  &logger,
	})
	if err != nil {
		return err
	}

	d.Sessions, err = session.NewService(session.ServiceConfig{
		Store:   session.RedisStore{R: d.Redis, TTL: cfg.SessionTTL},
		Locker:  lock.Locker{R: d.Redis, Prefix: "pos:lock:"},
		LockTTL: cfg.LockTTL,
		Charges: d.Catalog,
		Bus:     d.Bus,
		Logger:  &logger,
	})
	if err != nil {
		return err
	}

	d.Checkout, err = checkout.NewService(checkout.Config{
		Sessions: d.Sessions,
		Remote:   d.Remote,
		Bus:      d.Bus,
		Logger:   &logger,
	})
	if err != nil {
		return err
	}

	d.Search, err = search.NewService(search.Config{
		Catalog:  d.Remote,
		Sessions: d.Sessions,
		Debounce: cfg.SearchDebounce,
		Limiter:  d.Limiter,
		Limit:    cfg.SearchRateLimit,
		Window:   cfg.SearchRateWindow,
		Logger:   &logger,
	})
	if err != nil {
		return err
	}

	d.Ledger, err = ledger.NewService(d.Remote)
	return err
}

// Close releases connections in reverse order of creation.
func (d *Dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}

// Readiness probes the dependencies for the health endpoint.
func (d *Dependencies) Readiness() health.Checker {
	return readinessChecker{redis: d.Redis, remote: d.Remote, db: d.DB}
}

type readinessChecker struct {
	redis  *redis.Client
	remote *upstream.Client
	db     *pgxpool.Pool
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func (c readinessChecker) PingUpstream(ctx context.Context, timeout time.Duration) error {
	if c.remote == nil {
		return errors.New("remote backend not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.remote.Ping(ctx)
}

func (c readinessChecker) PingJournal(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return health.ErrDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}
