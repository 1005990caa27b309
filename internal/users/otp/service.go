// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package otp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/taibuivan/credguard/internal/platform/apperr"
	"github.com/taibuivan/credguard/internal/platform/ctxutil"
	"github.com/taibuivan/credguard/internal/users/account"
)

// Service combines the failed-attempt throttle with the locking validator.
type Service struct {
	validator *Validator
	throttle  Throttle
}

// NewService creates the OTP verification service. A nil throttle disables throttling.
func NewService(validator *Validator, throttle Throttle) *Service {
	if throttle == nil {
		throttle = NopThrottle{}
	}
	return &Service{validator: validator, throttle: throttle}
}

/*
Verify checks the throttle, then validates and advances the counter.

Description: Blocked principals are rejected with RATE_LIMITED before the
locking transaction starts. Replayed counters count as failures; an accepted
counter clears the failure history. Throttle backend errors fail closed.

Returns:
  - *account.User: The principal with the advanced counter
  - error: RATE_LIMITED, [ErrInvalidOneTimePassword], [ErrInvalidIdentifier] or internal failures
*/
func (service *Service) Verify(ctx context.Context, userID, counter int64) (*account.User, error) {
	logger := ctxutil.GetLogger(ctx)

	retryAfter, err := service.throttle.Blocked(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("otp_service_verify_failed: %w", err)
	}
	if retryAfter > 0 {
		logger.Warn("otp_throttled", "user_id", userID, "retry_after", retryAfter)
		return nil, apperr.RateLimited(retrySeconds(retryAfter))
	}

	user, err := service.validator.ValidateAndAdvance(ctx, userID, counter)
	if err != nil {
		if errors.Is(err, ErrInvalidOneTimePassword) {
			if failErr := service.throttle.Fail(ctx, userID); failErr != nil {
				logger.Error("otp_throttle_record_failed", "user_id", userID, "error", failErr)
			}
		}
		return nil, err
	}

	if err := service.throttle.Reset(ctx, userID); err != nil {
		logger.Error("otp_throttle_reset_failed", "user_id", userID, "error", err)
	}

	return user, nil
}

func retrySeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
