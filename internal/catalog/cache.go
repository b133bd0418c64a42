package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/kasir-desk/internal/pricing"
)

const activeChargesKey = "pos:catalog:charges:active"

// snapshot is the cached form of the active catalog.
type snapshot struct {
	Charges   []pricing.Charge `json:"charges"`
	FetchedAt time.Time        `json:"fetched_at"`
}

// Cache keeps the last fetched catalog in Redis so every api replica and
// terminal sees the same charge list between refreshes. A nil Cache or one
// without a client never hits.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache returns a cache whose entries live for ttl (5m when unset).
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool { return c != nil && c.client != nil }

// Load returns the cached charges and whether there were any.
func (c *Cache) Load(ctx context.Context) ([]pricing.Charge, bool, error) {
	if !c.enabled() {
		return nil, false, nil
	}
	raw, err := c.client.Get(ctx, activeChargesKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		// unreadable entries are treated as a miss and overwritten
		return nil, false, fmt.Errorf("decode charge snapshot: %w", err)
	}
	return snap.Charges, true, nil
}

// Store replaces the cached charges.
func (c *Cache) Store(ctx context.Context, charges []pricing.Charge) error {
	if !c.enabled() {
		return nil
	}
	raw, err := json.Marshal(snapshot{Charges: charges, FetchedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, activeChargesKey, raw, c.ttl).Err()
}

// Drop forgets the cached charges.
func (c *Cache) Drop(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	return c.client.Del(ctx, activeChargesKey).Err()
}
