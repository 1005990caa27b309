// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package otp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/credguard/internal/platform/config"
	"github.com/taibuivan/credguard/internal/platform/constants"
)

// # Failed-Attempt Throttle

// Throttle tracks rejected OTP submissions per principal.
type Throttle interface {

	/*
		Blocked reports whether userID exhausted its failure budget.

		Returns:
		  - time.Duration: Remaining block time when blocked, else zero
		  - error: Backend failures
	*/
	Blocked(ctx context.Context, userID int64) (time.Duration, error)

	// Fail records one rejected submission.
	Fail(ctx context.Context, userID int64) error

	// Reset forgets all recorded failures.
	Reset(ctx context.Context, userID int64) error
}

// RedisThrottle counts failures in a Redis key that expires one window after
// the most recent failure.
type RedisThrottle struct {
	client      redis.Cmdable
	maxFailures int64
	window      time.Duration
}

// NewRedisThrottle creates a Redis-backed throttle. MaxFailures <= 0 disables
// blocking while still counting.
func NewRedisThrottle(client redis.Cmdable, cfg config.OTP) *RedisThrottle {
	return &RedisThrottle{
		client:      client,
		maxFailures: int64(cfg.MaxFailures),
		window:      cfg.FailureWindow,
	}
}

func (throttle *RedisThrottle) key(userID int64) string {
	return constants.RedisPrefixOTPFailures + strconv.FormatInt(userID, 10)
}

// Blocked implements [Throttle].
func (throttle *RedisThrottle) Blocked(ctx context.Context, userID int64) (time.Duration, error) {
	if throttle.maxFailures <= 0 {
		return 0, nil
	}

	key := throttle.key(userID)

	count, err := throttle.client.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis_otp_throttle_get_failed: %w", err)
	}
	if count < throttle.maxFailures {
		return 0, nil
	}

	ttl, err := throttle.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis_otp_throttle_ttl_failed: %w", err)
	}
	if ttl <= 0 {
		ttl = throttle.window
	}

	return ttl, nil
}

// Fail implements [Throttle] with an INCR + EXPIRE transaction.
func (throttle *RedisThrottle) Fail(ctx context.Context, userID int64) error {
	key := throttle.key(userID)

	_, err := throttle.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, throttle.window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis_otp_throttle_fail_failed: %w", err)
	}

	return nil
}

// Reset implements [Throttle].
func (throttle *RedisThrottle) Reset(ctx context.Context, userID int64) error {
	if err := throttle.client.Del(ctx, throttle.key(userID)).Err(); err != nil {
		return fmt.Errorf("redis_otp_throttle_reset_failed: %w", err)
	}
	return nil
}

// NopThrottle never blocks.
type NopThrottle struct{}

func (NopThrottle) Blocked(context.Context, int64) (time.Duration, error) { return 0, nil }
func (NopThrottle) Fail(context.Context, int64) error                     { return nil }
func (NopThrottle) Reset(context.Context, int64) error                    { return nil }
