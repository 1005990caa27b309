// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package account owns the principal record and its persistence contracts.

The credential components (password policy, token manager, OTP validator)
never cache a [User] across requests: they read and mutate it through a
[Store], and every multi-write change goes through [Store.WithTx].

# Architecture

  - Entity: User, with transient Password input and persisted hash/token/OTP state.
  - Contracts: Store (reads, single-row updates, transactions) and Tx (row lock + writes).
  - Implementations: PostgresStore; accounttest.MemoryStore for tests.
*/
package account

import (
	"errors"
	"fmt"
	"time"

	"github.com/taibuivan/credguard/internal/platform/apperr"
	"github.com/taibuivan/credguard/internal/platform/database/schema"
)

// # Domain Entities

// User is the principal record.
//
// Token fields hold SHA-256 digests; an empty string means no live token.
// A nil timestamp means the event never happened.
type User struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`

	// Password is transient input; it is never persisted or serialized.
	Password     string `json:"-"`
	PasswordHash string `json:"-"`

	ConfirmationToken  string     `json:"-"`
	ConfirmationSentAt *time.Time `json:"-"`
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty"`

	ResetToken  string     `json:"-"`
	ResetSentAt *time.Time `json:"-"`

	// OTPLast is the last accepted one-time-password counter. It never decreases.
	OTPLast int64 `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsConfirmed reports whether the account completed email confirmation.
func (u *User) IsConfirmed() bool {
	return u.ConfirmedAt != nil
}

// Clone returns a deep copy so stores never share timestamps with callers.
func (u *User) Clone() *User {
	clone := *u
	clone.ConfirmationSentAt = cloneTime(u.ConfirmationSentAt)
	clone.ConfirmedAt = cloneTime(u.ConfirmedAt)
	clone.ResetSentAt = cloneTime(u.ResetSentAt)
	return &clone
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// # Hash Field Assignment

// ErrUnknownHashField is returned when the configured hash field is not a
// password column of the record.
var ErrUnknownHashField = errors.New("account: unknown password hash field")

// hashFields maps configurable field names onto the record's hash slot.
var hashFields = map[string]func(*User, string){
	schema.UserAccount.PasswordHash: func(u *User, v string) { u.PasswordHash = v },
	"password_hash":                 func(u *User, v string) { u.PasswordHash = v },
}

// CheckHashField validates a configured hash field name.
func CheckHashField(field string) error {
	if _, ok := hashFields[field]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownHashField, field)
	}
	return nil
}

// SetHashField stores hash in the record field named by field.
func (u *User) SetHashField(field, hash string) error {
	set, ok := hashFields[field]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownHashField, field)
	}
	set(u, hash)
	return nil
}

// # Errors

// ErrNotFound marks lookups that matched no principal. Store errors wrap it
// inside an [apperr.AppError] so both errors.Is and HTTP mapping work.
var ErrNotFound = errors.New("account: user not found")

// NotFound returns the canonical missing-principal error.
func NotFound() error {
	return apperr.NotFound("User").WithCause(ErrNotFound)
}

// # Field Identifiers

// Field names used for validation errors.
const (
	FieldID          = "id"
	FieldEmail       = "email"
	FieldDisplayName = "display_name"
	FieldPassword    = "password"
)
