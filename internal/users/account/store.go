// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package account

import (
	"context"
	"time"
)

// # Principal Data Access

// Store defines the persistence contract for principal records.
type Store interface {

	/*
		FindByID returns the principal with the given ID.

		Returns:
		  - *User: Hydrated entity
		  - error: NotFound (wrapping ErrNotFound) or storage failures
	*/
	FindByID(ctx context.Context, id int64) (*User, error)

	// FindByEmail returns the principal registered with email.
	FindByEmail(ctx context.Context, email string) (*User, error)

	// FindByConfirmationToken returns the principal holding the live confirmation token digest.
	FindByConfirmationToken(ctx context.Context, digest string) (*User, error)

	// FindByResetToken returns the principal holding the live reset token digest.
	FindByResetToken(ctx context.Context, digest string) (*User, error)

	/*
		Create persists a brand-new principal and assigns its ID.

		Returns:
		  - error: Conflict if the email is taken, or storage failures
	*/
	Create(ctx context.Context, user *User) error

	// SetConfirmationToken stores a confirmation token digest and its sent-at time.
	SetConfirmationToken(ctx context.Context, id int64, digest string, sentAt time.Time) error

	// SetResetToken stores a reset token digest and its sent-at time, superseding any previous one.
	SetResetToken(ctx context.Context, id int64, digest string, sentAt time.Time) error

	// UpdateDisplayName replaces the display name.
	UpdateDisplayName(ctx context.Context, id int64, displayName string) error

	/*
		WithTx runs fn inside one transaction. If fn returns an error (or the
		commit fails) none of the writes made through tx become visible.
	*/
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

/*
Tx is the transactional view handed to [Store.WithTx] callbacks.

Like the Store writes, each method touches only the columns it names.
*/
type Tx interface {

	/*
		LockByID reads the principal and holds an exclusive lock on its row
		until the transaction ends. Concurrent lockers of the same row wait;
		other rows are unaffected.
	*/
	LockByID(ctx context.Context, id int64) (*User, error)

	// UpdatePasswordHash replaces the stored password hash.
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error

	// MarkConfirmed sets the confirmation time and clears the confirmation token.
	MarkConfirmed(ctx context.Context, id int64, confirmedAt time.Time) error

	// ClearResetToken sets the reset token and its sent-at timestamp to absent.
	ClearResetToken(ctx context.Context, id int64) error

	// UpdateOTPLast stores the last accepted OTP counter.
	UpdateOTPLast(ctx context.Context, id int64, counter int64) error
}
