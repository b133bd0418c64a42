package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingScript keeps one sorted-set member per admitted hit, scored in unix
// milliseconds. Rejected hits are not recorded, so a terminal hammering the
// search box regains capacity as soon as its oldest admitted hit ages out.
// ARGV is now, cutoff, limit, member, window (ms). Returns {allowed, count,
// oldestScore} with the score as a string.
var slidingScript = redis.NewScript(`
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[2])
local count = redis.call("ZCARD", KEYS[1])
local allowed = 0
if count < tonumber(ARGV[3]) then
  redis.call("ZADD", KEYS[1], ARGV[1], ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call("PEXPIRE", KEYS[1], ARGV[5])
local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
return {allowed, count, oldest[2] or ARGV[1]}
`)

// Sliding is a sliding-log limiter on Redis sorted sets.
type Sliding struct {
	Client *redis.Client
	Prefix string
}

// Allow admits key when fewer than max hits landed within the trailing
// window. reset is when the oldest admitted hit leaves the window.
func (l Sliding) Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error) {
	if l.Client == nil || max <= 0 || window <= 0 {
		return true, max, time.Now().Add(window), nil
	}
	now := time.Now().UnixMilli()
	windowMS := max64(window.Milliseconds(), 1)

	res, err := slidingScript.Run(ctx, l.Client, []string{l.Prefix + key},
		now, now-windowMS, max, uuid.NewString(), windowMS).Slice()
	if err != nil {
		return false, 0, time.Now().Add(window), err
	}
	if len(res) != 3 {
		return false, 0, time.Now().Add(window), fmt.Errorf("sliding limiter: unexpected reply %v", res)
	}
	admitted, _ := res[0].(int64)
	count, _ := res[1].(int64)
	oldest := now
	if raw, ok := res[2].(string); ok {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			oldest = int64(f)
		}
	}
	remaining = max - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return admitted == 1, remaining, time.UnixMilli(oldest + windowMS), nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
