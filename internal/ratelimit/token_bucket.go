package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:submit:"

// bytesPerToken sets the size weighting for submissions: every started
// 512 KiB of document beyond the first token costs one more token.
const bytesPerToken = 512 << 10

// TokenBucket throttles batch submissions per owner using a Redis-backed
// token bucket. Cost scales with document size, so a burst of large
// documents drains an owner's budget faster than small ones.
type TokenBucket struct {
	client   *redis.Client
	capacity int
	refill   float64 // tokens per second
	ttl      time.Duration
}

// NewTokenBucket constructs a bucket with the provided capacity/refill.
func NewTokenBucket(client *redis.Client, capacity int, refillPerSecond float64, ttl time.Duration) *TokenBucket {
	return &TokenBucket{
		client:   client,
		capacity: capacity,
		refill:   refillPerSecond,
		ttl:      ttl,
	}
}

// Cost returns the token price of a document of the given byte size. The
// minimum is one token; size only ever raises the price.
func Cost(docBytes int64) int {
	cost := 1
	if docBytes > bytesPerToken {
		cost += int((docBytes - 1) / bytesPerToken)
	}
	return cost
}

// Allow charges the owner for one submission of docBytes bytes. Returns the
// allowed flag and the remaining token count. A document priced above the
// bucket capacity is rejected outright rather than left to starve.
func (b *TokenBucket) Allow(ctx context.Context, ownerID string, docBytes int64) (bool, float64, error) {
	cost := Cost(docBytes)
	if cost > b.capacity {
		return false, 0, nil
	}
	now := time.Now().UnixMilli()
	res, err := bucketScript.Run(ctx, b.client, []string{keyPrefix + ownerID},
		b.capacity, b.refill, now, b.ttl.Milliseconds(), cost).Result()
	if err != nil {
		return false, 0, err
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) < 2 {
		return false, 0, err
	}
	allowed := arr[0].(int64) == 1
	var tokens float64
	switch v := arr[1].(type) {
	case int64:
		tokens = float64(v)
	case float64:
		tokens = v
	}
	return allowed, tokens, nil
}

var bucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill = tonumber(ARGV[2]) -- tokens per second
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])
local cost = tonumber(ARGV[5])

local data = redis.call('HMGET', key, 'tokens', 'last_ms')
local tokens = tonumber(data[1])
local last = tonumber(data[2])
if tokens == nil then tokens = capacity end
if last == nil then last = now end

local delta = math.max(0, now - last)
local add = delta / 1000 * refill
tokens = math.min(capacity, tokens + add)

local allowed = 0
if tokens >= cost then
  allowed = 1
  tokens = tokens - cost
end

redis.call('HMSET', key, 'tokens', tokens, 'last_ms', now)
if ttl > 0 then redis.call('PEXPIRE', key, ttl) end
return {allowed, tokens}
`)
