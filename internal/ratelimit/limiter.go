// Package ratelimit provides Redis-backed rate limiting using the INCR +
// EXPIRE sliding window algorithm. The chat server uses it to throttle
// message floods per connection and connection churn per client IP. All
// checks fail open: a Redis outage never blocks legitimate traffic.
package ratelimit

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule defines a rate limiting policy: the Redis key prefix, maximum number
// of actions allowed in the window, and the window duration.
type Rule struct {
	Key    string        // Redis key prefix (e.g., "rl:msg:")
	Limit  int           // max count in the window
	Window time.Duration // time window
}

var (
	// RuleMessage allows 10 chat messages per 10 seconds per connection.
	RuleMessage = Rule{Key: "rl:msg:", Limit: 10, Window: 10 * time.Second}

	// RuleConnect allows 5 WebSocket connections per minute per IP.
	RuleConnect = Rule{Key: "rl:conn:", Limit: 5, Window: 1 * time.Minute}
)

// Limiter performs rate limiting checks against Redis.
type Limiter struct {
	client *redis.Client
}

// NewLimiter connects to Redis at addr and returns a ready Limiter. It
// returns an error if the initial ping fails.
func NewLimiter(addr string) (*Limiter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ratelimit: redis connection failed: %w", err)
	}
	return &Limiter{client: client}, nil
}

// Allow checks whether identifier is within the rate limit defined by rule.
// It increments the counter in Redis and sets the expiry on first access.
//
// Returns true if the action is allowed, false if rate limited. On Redis
// errors the method fails open (returns true).
func (l *Limiter) Allow(ctx context.Context, identifier string, rule Rule) bool {
	key := rule.Key + identifier

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("ratelimit: redis INCR error key=%s: %v (failing open)", key, err)
		return true
	}

	// On the first increment, set the expiry to define the window boundary.
	if count == 1 {
		if err := l.client.Expire(ctx, key, rule.Window).Err(); err != nil {
			log.Printf("ratelimit: redis EXPIRE error key=%s: %v (failing open)", key, err)
			// The key exists but has no TTL. Best effort: delete it so it
			// does not throttle the identifier forever.
			l.client.Del(ctx, key)
			return true
		}
	}

	return int(count) <= rule.Limit
}

// Close releases the Redis client.
func (l *Limiter) Close() error {
	return l.client.Close()
}
