// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package otp defends one-time-password verification against replay.

Each principal carries otp_last, the highest counter ever accepted. A
submission is accepted only if its counter is strictly greater, and the
read, the comparison and the write all happen while the principal's row is
exclusively locked, so two concurrent submissions of the same counter can
never both succeed.

# Architecture

  - Validator: the locking compare-and-advance over [account.Store].
  - Throttle: counts rejected submissions per principal (Redis in production).
  - Service: Throttle + Validator, as used by the HTTP layer.
*/
package otp

import (
	"context"
	"errors"
	"fmt"

	"github.com/taibuivan/credguard/internal/platform/apperr"
	"github.com/taibuivan/credguard/internal/platform/ctxutil"
	"github.com/taibuivan/credguard/internal/users/account"
)

var (
	// ErrInvalidOneTimePassword is returned for stale or replayed counters.
	ErrInvalidOneTimePassword = errors.New("invalid one-time password")

	// ErrInvalidIdentifier is returned when no principal has the given id.
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

// Validator validates and advances OTP counters.
type Validator struct {
	store account.Store
}

// NewValidator creates a validator over the principal store.
func NewValidator(store account.Store) *Validator {
	return &Validator{store: store}
}

/*
ValidateAndAdvance accepts counter for userID iff it is greater than the
stored otp_last, and stores it as the new otp_last.

Description: Runs as one transaction holding the principal's row lock from
the read through the write. Rejections roll the transaction back and leave
otp_last unchanged. Other principals are never blocked.

Returns:
  - *account.User: The principal with the advanced counter
  - error: ErrInvalidIdentifier, ErrInvalidOneTimePassword (both wrapped in
    an [apperr.AppError]) or store failures
*/
func (validator *Validator) ValidateAndAdvance(ctx context.Context, userID, counter int64) (*account.User, error) {
	var advanced *account.User

	err := validator.store.WithTx(ctx, func(ctx context.Context, tx account.Tx) error {
		user, err := tx.LockByID(ctx, userID)
		if err != nil {
			if errors.Is(err, account.ErrNotFound) {
				return apperr.InvalidIdentifier().WithCause(ErrInvalidIdentifier)
			}
			return err
		}

		if counter <= user.OTPLast {
			return apperr.InvalidOneTimePassword().WithCause(ErrInvalidOneTimePassword)
		}

		if err := tx.UpdateOTPLast(ctx, userID, counter); err != nil {
			return err
		}

		user.OTPLast = counter
		advanced = user
		return nil
	})

	if err != nil {
		if errors.Is(err, ErrInvalidOneTimePassword) {
			ctxutil.GetLogger(ctx).Warn("otp_replay_rejected", "user_id", userID, "counter", counter)
			return nil, err
		}
		if errors.Is(err, ErrInvalidIdentifier) {
			return nil, err
		}
		return nil, fmt.Errorf("otp_validate_and_advance_failed: %w", err)
	}

	return advanced, nil
}
