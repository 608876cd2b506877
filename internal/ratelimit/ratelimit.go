package ratelimit

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter is a fixed-window counter over redis. The window bucket is derived
// from server time; client timestamps are never trusted.
type Limiter struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Limiter {
	return &Limiter{rdb: rdb}
}

// Allow admits up to limit hits per window for the given key. A redis failure
// admits the request: losing rate limiting only relaxes fairness.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) bool {
	bucket := time.Now().UnixMilli() / window.Milliseconds()
	redisKey := "rl:" + key + ":" + strconv.FormatInt(bucket, 10)

	count, err := l.rdb.Incr(ctx, redisKey).Result()
	if err != nil {
		log.Printf("songvote: rate limit incr: %v", err)
		return true
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, redisKey, window).Err(); err != nil {
			log.Printf("songvote: rate limit expire: %v", err)
		}
	}
	return count <= int64(limit)
}
