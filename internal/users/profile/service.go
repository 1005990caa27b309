// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package profile serves the principal-scoped resources under the ownership
prefix (/users/{id}/...).

Every route that names an id is guarded by [middleware.RequireOwner], so
handlers here trust that the path id is the caller's own.
*/
package profile

import (
	"context"
	"fmt"
	"strings"

	"github.com/taibuivan/credguard/internal/platform/apperr"
	"github.com/taibuivan/credguard/internal/platform/ctxutil"
	"github.com/taibuivan/credguard/internal/users/account"
	"github.com/taibuivan/credguard/internal/users/password"
)

// FieldCurrentPassword names the current-password input of a password change.
const FieldCurrentPassword = "current_password"

// Service implements profile use cases.
type Service struct {
	store  account.Store
	policy *password.Policy
}

// NewService constructs a profile [Service].
func NewService(store account.Store, policy *password.Policy) *Service {
	return &Service{store: store, policy: policy}
}

// Get returns the principal with the given id.
func (service *Service) Get(ctx context.Context, id int64) (*account.User, error) {
	user, err := service.store.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("profile_service_get_failed: %w", err)
	}
	return user, nil
}

/*
UpdateDisplayName replaces the principal's display name.

Returns:
  - *account.User: Updated principal
  - error: NotFound or storage failures
*/
func (service *Service) UpdateDisplayName(ctx context.Context, id int64, displayName string) (*account.User, error) {
	if err := service.store.UpdateDisplayName(ctx, id, strings.TrimSpace(displayName)); err != nil {
		return nil, fmt.Errorf("profile_service_update_failed: %w", err)
	}

	user, err := service.store.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("profile_service_update_lookup_failed: %w", err)
	}

	return user, nil
}

/*
ChangePassword replaces the password of an authenticated principal.

Description: The current password must verify first. The new hash and the
removal of any outstanding reset token commit in one transaction, so a reset
link issued before the change can no longer be used.

Returns:
  - error: VALIDATION_ERROR (wrong current password or policy failure), NotFound or storage failures
*/
func (service *Service) ChangePassword(ctx context.Context, id int64, current, next string) error {
	user, err := service.store.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("profile_service_change_password_lookup_failed: %w", err)
	}

	if !service.policy.Verify(current, user.PasswordHash) {
		return wrongCurrentPassword()
	}

	result, err := service.policy.ApplyToRecord(user, next)
	if err != nil {
		return fmt.Errorf("profile_service_change_password_hash_failed: %w", err)
	}
	if !result.OK() {
		return result.Err()
	}

	err = service.store.WithTx(ctx, func(txCtx context.Context, tx account.Tx) error {
		locked, err := tx.LockByID(txCtx, id)
		if err != nil {
			return err
		}
		// The current password was verified against the unlocked read.
		if locked.PasswordHash != user.PasswordHash {
			return wrongCurrentPassword()
		}
		if err := tx.UpdatePasswordHash(txCtx, id, result.Record.PasswordHash); err != nil {
			return err
		}
		return tx.ClearResetToken(txCtx, id)
	})
	if err != nil {
		return fmt.Errorf("profile_service_change_password_failed: %w", err)
	}

	ctxutil.GetLogger(ctx).Info("password_changed", "user_id", id)
	return nil
}

func wrongCurrentPassword() error {
	return apperr.ValidationError("Validation failed", apperr.FieldError{
		Field:   FieldCurrentPassword,
		Message: "Current password is incorrect",
	})
}
