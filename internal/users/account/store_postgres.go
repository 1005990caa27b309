// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/taibuivan/credguard/internal/platform/database/schema"
	"github.com/taibuivan/credguard/internal/platform/dberr"
	"github.com/taibuivan/credguard/internal/platform/postgres"
)

// # PostgreSQL Store

// PostgresStore implements [Store] on the users.account table.
type PostgresStore struct {
	db postgres.Beginner
}

// NewPostgresStore creates a store over a pgx pool (or any [postgres.Beginner]).
func NewPostgresStore(db postgres.Beginner) *PostgresStore {
	return &PostgresStore{db: db}
}

// cols is shorthand for the users.account schema in query builders.
var cols = schema.UserAccount

func selectByColumn(column string) string {
	return fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`, cols.SelectList(), cols.Table, column)
}

var (
	queryFindByID                = selectByColumn(cols.ID)
	queryFindByEmail             = selectByColumn(cols.Email)
	queryFindByConfirmationToken = selectByColumn(cols.ConfirmationToken)
	queryFindByResetToken        = selectByColumn(cols.ResetToken)

	// FOR UPDATE holds the row lock until the surrounding transaction ends.
	queryLockByID = fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 FOR UPDATE`, cols.SelectList(), cols.Table, cols.ID)

	queryCreate = fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING %s`,
		cols.Table, cols.Email, cols.DisplayName, cols.PasswordHash,
		cols.ConfirmationToken, cols.ConfirmationSentAt, cols.CreatedAt, cols.UpdatedAt,
		cols.ID,
	)

	querySetConfirmationToken = fmt.Sprintf(`UPDATE %s SET %s = $2, %s = $3, %s = $4 WHERE %s = $1`,
		cols.Table, cols.ConfirmationToken, cols.ConfirmationSentAt, cols.UpdatedAt, cols.ID)

	querySetResetToken = fmt.Sprintf(`UPDATE %s SET %s = $2, %s = $3, %s = $4 WHERE %s = $1`,
		cols.Table, cols.ResetToken, cols.ResetSentAt, cols.UpdatedAt, cols.ID)

	queryUpdateDisplayName = fmt.Sprintf(`UPDATE %s SET %s = $2, %s = $3 WHERE %s = $1`,
		cols.Table, cols.DisplayName, cols.UpdatedAt, cols.ID)

	queryMarkConfirmed = fmt.Sprintf(`UPDATE %s SET %s = $2, %s = NULL, %s = NULL, %s = $3 WHERE %s = $1`,
		cols.Table, cols.ConfirmedAt, cols.ConfirmationToken, cols.ConfirmationSentAt, cols.UpdatedAt, cols.ID)

	queryUpdatePasswordHash = fmt.Sprintf(`UPDATE %s SET %s = $2, %s = $3 WHERE %s = $1`,
		cols.Table, cols.PasswordHash, cols.UpdatedAt, cols.ID)

	queryClearResetToken = fmt.Sprintf(`UPDATE %s SET %s = NULL, %s = NULL, %s = $2 WHERE %s = $1`,
		cols.Table, cols.ResetToken, cols.ResetSentAt, cols.UpdatedAt, cols.ID)

	queryUpdateOTPLast = fmt.Sprintf(`UPDATE %s SET %s = $2, %s = $3 WHERE %s = $1`,
		cols.Table, cols.OTPLast, cols.UpdatedAt, cols.ID)
)

// FindByID retrieves a principal by primary key.
func (store *PostgresStore) FindByID(ctx context.Context, id int64) (*User, error) {
	return findOne(ctx, store.db, queryFindByID, "postgres_account_find_by_id_failed", id)
}

// FindByEmail retrieves a principal by its unique email address.
func (store *PostgresStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return findOne(ctx, store.db, queryFindByEmail, "postgres_account_find_by_email_failed", email)
}

// FindByConfirmationToken retrieves the principal holding a confirmation token digest.
func (store *PostgresStore) FindByConfirmationToken(ctx context.Context, digest string) (*User, error) {
	return findOne(ctx, store.db, queryFindByConfirmationToken, "postgres_account_find_by_confirmation_token_failed", digest)
}

// FindByResetToken retrieves the principal holding a reset token digest.
func (store *PostgresStore) FindByResetToken(ctx context.Context, digest string) (*User, error) {
	return findOne(ctx, store.db, queryFindByResetToken, "postgres_account_find_by_reset_token_failed", digest)
}

/*
Create persists a new principal into users.account.

Description: Initializes timestamps when absent and writes back the
database-assigned identity.
*/
func (store *PostgresStore) Create(ctx context.Context, user *User) error {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	err := store.db.QueryRow(ctx, queryCreate,
		user.Email,
		user.DisplayName,
		user.PasswordHash,
		nullString(user.ConfirmationToken),
		user.ConfirmationSentAt,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID)

	if err != nil {
		return dberr.Wrap(err, "User", "postgres_account_create_failed")
	}

	return nil
}

// SetConfirmationToken writes only the confirmation token pair.
func (store *PostgresStore) SetConfirmationToken(ctx context.Context, id int64, digest string, sentAt time.Time) error {
	return execOne(ctx, store.db, querySetConfirmationToken, "postgres_account_set_confirmation_token_failed",
		id, nullString(digest), sentAt, time.Now().UTC())
}

// SetResetToken writes only the reset token pair.
func (store *PostgresStore) SetResetToken(ctx context.Context, id int64, digest string, sentAt time.Time) error {
	return execOne(ctx, store.db, querySetResetToken, "postgres_account_set_reset_token_failed",
		id, nullString(digest), sentAt, time.Now().UTC())
}

func (store *PostgresStore) UpdateDisplayName(ctx context.Context, id int64, displayName string) error {
	return execOne(ctx, store.db, queryUpdateDisplayName, "postgres_account_update_display_name_failed",
		id, displayName, time.Now().UTC())
}

// WithTx runs fn in a single PostgreSQL transaction.
func (store *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return postgres.WithTx(ctx, store.db, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &postgresTx{tx: tx})
	})
}

// # Transactional Writes

type postgresTx struct {
	tx pgx.Tx
}

// LockByID issues SELECT ... FOR UPDATE on the single principal row.
func (ptx *postgresTx) LockByID(ctx context.Context, id int64) (*User, error) {
	return findOne(ctx, ptx.tx, queryLockByID, "postgres_account_lock_by_id_failed", id)
}

func (ptx *postgresTx) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	return execOne(ctx, ptx.tx, queryUpdatePasswordHash, "postgres_account_update_password_hash_failed", id, hash, time.Now().UTC())
}

func (ptx *postgresTx) MarkConfirmed(ctx context.Context, id int64, confirmedAt time.Time) error {
	return execOne(ctx, ptx.tx, queryMarkConfirmed, "postgres_account_mark_confirmed_failed", id, confirmedAt, time.Now().UTC())
}

func (ptx *postgresTx) ClearResetToken(ctx context.Context, id int64) error {
	return execOne(ctx, ptx.tx, queryClearResetToken, "postgres_account_clear_reset_token_failed", id, time.Now().UTC())
}

func (ptx *postgresTx) UpdateOTPLast(ctx context.Context, id int64, counter int64) error {
	return execOne(ctx, ptx.tx, queryUpdateOTPLast, "postgres_account_update_otp_last_failed", id, counter, time.Now().UTC())
}

// # Helpers

func findOne(ctx context.Context, db postgres.DBTX, query, action string, arg any) (*User, error) {
	user, err := scanUser(db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NotFound()
		}
		return nil, dberr.Wrap(err, "User", action)
	}
	return user, nil
}

func execOne(ctx context.Context, db postgres.DBTX, query, action string, args ...any) error {
	tag, err := db.Exec(ctx, query, args...)
	if err != nil {
		return dberr.Wrap(err, "User", action)
	}
	if tag.RowsAffected() == 0 {
		return NotFound()
	}
	return nil
}

func scanUser(row pgx.Row) (*User, error) {
	var (
		user              User
		confirmationToken *string
		resetToken        *string
	)

	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.PasswordHash,
		&confirmationToken,
		&user.ConfirmationSentAt,
		&user.ConfirmedAt,
		&resetToken,
		&user.ResetSentAt,
		&user.OTPLast,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if confirmationToken != nil {
		user.ConfirmationToken = *confirmationToken
	}
	if resetToken != nil {
		user.ResetToken = *resetToken
	}

	return &user, nil
}

// nullString maps the empty "absent" token to SQL NULL.
func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
