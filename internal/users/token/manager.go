// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package token issues, validates and consumes confirmation and reset tokens.

Only the SHA-256 digest of a token is stored on the principal record; the
plaintext leaves the Manager once, for delivery to the user.

# Expiry

A token with no sent-at timestamp was never sent: it is invalid, not
expired. A sent token is expired strictly after sentAt + TTL, so it is still
accepted at the boundary instant.
*/
package token

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/taibuivan/credguard/internal/platform/apperr"
	"github.com/taibuivan/credguard/internal/platform/config"
	"github.com/taibuivan/credguard/internal/platform/constants"
	"github.com/taibuivan/credguard/internal/platform/ctxutil"
	"github.com/taibuivan/credguard/internal/platform/sec"
	"github.com/taibuivan/credguard/internal/users/account"
	"github.com/taibuivan/credguard/internal/users/password"
)

var (
	// ErrInvalidToken marks tokens that match no principal or were never sent.
	ErrInvalidToken = errors.New("token: invalid")

	// ErrTokenExpired marks tokens presented after their validity window.
	ErrTokenExpired = errors.New("token: expired")
)

// Manager handles the token lifecycle. It holds no per-principal state.
type Manager struct {
	store           account.Store
	policy          *password.Policy
	confirmationTTL time.Duration
	resetTTL        time.Duration
	now             func() time.Time
}

// Option customizes a [Manager].
type Option func(*Manager)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(manager *Manager) {
		manager.now = now
	}
}

// NewManager creates a token manager over the principal store.
func NewManager(store account.Store, policy *password.Policy, cfg config.Token, opts ...Option) *Manager {
	manager := &Manager{
		store:           store,
		policy:          policy,
		confirmationTTL: cfg.ConfirmationTTL,
		resetTTL:        cfg.ResetTTL,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(manager)
	}
	return manager
}

// # Issuance

// Generate returns a fresh URL-safe token drawn from crypto/rand.
func (manager *Manager) Generate() (string, error) {
	token, err := sec.GenerateSecureToken(constants.TokenBytes)
	if err != nil {
		return "", fmt.Errorf("token_generate_failed: %w", err)
	}
	return token, nil
}

// AttachConfirmation stores the digest of token on user with sentAt = now (UTC).
// Persisting user is the caller's responsibility.
func (manager *Manager) AttachConfirmation(user *account.User, token string) {
	sentAt := manager.utcNow()
	user.ConfirmationToken = sec.HashToken(token)
	user.ConfirmationSentAt = &sentAt
}

// AttachReset stores the digest of token on user with sentAt = now (UTC).
// Any previous reset token is superseded.
func (manager *Manager) AttachReset(user *account.User, token string) {
	sentAt := manager.utcNow()
	user.ResetToken = sec.HashToken(token)
	user.ResetSentAt = &sentAt
}

/*
IssueConfirmation generates a confirmation token, attaches it to user and
persists only the confirmation token pair.

Returns:
  - string: The plaintext token for delivery
  - error: Generation or storage failures
*/
func (manager *Manager) IssueConfirmation(ctx context.Context, user *account.User) (string, error) {
	token, err := manager.Generate()
	if err != nil {
		return "", err
	}

	manager.AttachConfirmation(user, token)
	if err := manager.store.SetConfirmationToken(ctx, user.ID, user.ConfirmationToken, *user.ConfirmationSentAt); err != nil {
		return "", fmt.Errorf("token_issue_confirmation_failed: %w", err)
	}

	return token, nil
}

// IssueReset generates a reset token, attaches it to user and persists only the reset token pair.
func (manager *Manager) IssueReset(ctx context.Context, user *account.User) (string, error) {
	token, err := manager.Generate()
	if err != nil {
		return "", err
	}

	manager.AttachReset(user, token)
	if err := manager.store.SetResetToken(ctx, user.ID, user.ResetToken, *user.ResetSentAt); err != nil {
		return "", fmt.Errorf("token_issue_reset_failed: %w", err)
	}

	return token, nil
}

// # Consumption

/*
Confirm marks user confirmed and clears its confirmation token.

Description: user is a snapshot returned by [Manager.ValidateConfirmation].
The row is locked and its stored digest must still equal the snapshot's, so
a token consumed or reissued in the meantime yields INVALID_TOKEN.

Returns:
  - *account.User: Confirmed principal
  - error: INVALID_TOKEN, TOKEN_EXPIRED or storage failures
*/
func (manager *Manager) Confirm(ctx context.Context, user *account.User) (*account.User, error) {
	confirmedAt := manager.utcNow()

	var confirmed *account.User
	err := manager.store.WithTx(ctx, func(txCtx context.Context, tx account.Tx) error {
		current, err := tx.LockByID(txCtx, user.ID)
		if err != nil {
			return err
		}
		if err := manager.checkHeld(user.ConfirmationToken, current.ConfirmationToken, current.ConfirmationSentAt, manager.confirmationTTL); err != nil {
			return err
		}
		if err := tx.MarkConfirmed(txCtx, user.ID, confirmedAt); err != nil {
			return err
		}
		confirmed = current
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("token_confirm_failed: %w", err)
	}

	confirmed.ConfirmedAt = &confirmedAt
	confirmed.ConfirmationToken = ""
	confirmed.ConfirmationSentAt = nil

	return confirmed, nil
}

/*
ResetPassword validates newPassword and, when it passes, atomically replaces
the password hash and clears the reset token.

Description: user is a snapshot returned by [Manager.ValidateReset]. Inside
one store transaction the row is locked, the stored reset digest must still
equal the snapshot's and still be within its window, and only then are the
new hash and the cleared token written. Of two requests presenting the same
token, the second sees the cleared digest and gets INVALID_TOKEN. On policy
failure nothing is written and the returned [password.Result] carries the
field errors.

Returns:
  - password.Result: Updated record or field errors
  - error: INVALID_TOKEN, TOKEN_EXPIRED, hashing or storage failures (the transaction is rolled back)
*/
func (manager *Manager) ResetPassword(ctx context.Context, user *account.User, newPassword string) (password.Result, error) {
	result, err := manager.policy.ApplyToRecord(user, newPassword)
	if err != nil || !result.OK() {
		return result, err
	}

	record := result.Record
	err = manager.store.WithTx(ctx, func(txCtx context.Context, tx account.Tx) error {
		current, err := tx.LockByID(txCtx, record.ID)
		if err != nil {
			return err
		}
		if err := manager.checkHeld(user.ResetToken, current.ResetToken, current.ResetSentAt, manager.resetTTL); err != nil {
			return err
		}
		if err := tx.UpdatePasswordHash(txCtx, record.ID, record.PasswordHash); err != nil {
			return err
		}
		return tx.ClearResetToken(txCtx, record.ID)
	})
	if err != nil {
		return password.Result{}, fmt.Errorf("token_reset_password_failed: %w", err)
	}

	record.ResetToken = ""
	record.ResetSentAt = nil

	ctxutil.GetLogger(ctx).Info("password_reset_committed", "user_id", record.ID)

	return result, nil
}

// # Validation

// IsTokenExpired reports whether a token sent at sentAt is past valid, using the manager's clock.
func (manager *Manager) IsTokenExpired(sentAt *time.Time, valid time.Duration) bool {
	return IsExpired(sentAt, valid, manager.now())
}

/*
IsExpired reports whether a token sent at sentAt has outlived valid at now.

An absent sentAt returns false: "never sent" is a distinct condition that
callers must treat as an invalid token. Otherwise the token is expired iff
now > sentAt + valid.
*/
func IsExpired(sentAt *time.Time, valid time.Duration, now time.Time) bool {
	if sentAt == nil {
		return false
	}
	return now.After(sentAt.Add(valid))
}

// ValidateConfirmation resolves a plaintext confirmation token to its principal.
func (manager *Manager) ValidateConfirmation(ctx context.Context, token string) (*account.User, error) {
	user, err := manager.lookup(ctx, token, manager.store.FindByConfirmationToken)
	if err != nil {
		return nil, err
	}
	if err := manager.checkSent(user.ConfirmationSentAt, manager.confirmationTTL); err != nil {
		return nil, err
	}
	return user, nil
}

// ValidateReset resolves a plaintext reset token to its principal.
func (manager *Manager) ValidateReset(ctx context.Context, token string) (*account.User, error) {
	user, err := manager.lookup(ctx, token, manager.store.FindByResetToken)
	if err != nil {
		return nil, err
	}
	if err := manager.checkSent(user.ResetSentAt, manager.resetTTL); err != nil {
		return nil, err
	}
	return user, nil
}

func (manager *Manager) lookup(ctx context.Context, token string, find func(context.Context, string) (*account.User, error)) (*account.User, error) {
	if token == "" {
		return nil, invalidToken()
	}

	user, err := find(ctx, sec.HashToken(token))
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, invalidToken()
		}
		return nil, fmt.Errorf("token_lookup_failed: %w", err)
	}

	return user, nil
}

func (manager *Manager) checkSent(sentAt *time.Time, valid time.Duration) error {
	if sentAt == nil {
		return invalidToken()
	}
	if manager.IsTokenExpired(sentAt, valid) {
		return apperr.TokenExpired("Token has expired").WithCause(ErrTokenExpired)
	}
	return nil
}

// checkHeld re-validates a token against the locked row: the stored digest
// must still be the presented one and still be within its window.
func (manager *Manager) checkHeld(presented, stored string, sentAt *time.Time, valid time.Duration) error {
	if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(stored)) != 1 {
		return invalidToken()
	}
	return manager.checkSent(sentAt, valid)
}

func invalidToken() error {
	return apperr.InvalidToken("Invalid token").WithCause(ErrInvalidToken)
}

func (manager *Manager) utcNow() time.Time {
	return manager.now().UTC()
}
