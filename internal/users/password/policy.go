// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package password implements the password policy: strength validation,
hashing through the configured collaborator, and applying a new password to a
principal record.

Expected failures are values, never panics: [Policy.Validate] returns a
VALIDATION_ERROR and [Policy.ApplyToRecord] returns a [Result] carrying field
errors.
*/
package password

import (
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/taibuivan/credguard/internal/platform/apperr"
	"github.com/taibuivan/credguard/internal/platform/config"
	"github.com/taibuivan/credguard/internal/platform/sec"
	"github.com/taibuivan/credguard/internal/platform/validate"
	"github.com/taibuivan/credguard/internal/users/account"
)

// Field-level messages returned to clients.
const (
	MsgTooCommon = "This password is too common"
)

// # Policy

// Policy validates and hashes passwords. It is immutable after construction
// and safe for concurrent use.
type Policy struct {
	minLength int
	maxLength int
	blacklist map[string]struct{}
	hashField string
	hasher    sec.Hasher
}

/*
NewPolicy builds a policy from explicit configuration.

Parameters:
  - cfg: config.Password (lengths, blacklist, hash field)
  - hasher: sec.Hasher (the hashing collaborator)

Returns:
  - *Policy: Ready-to-use policy
  - error: If the hash field is unknown or the lengths are inconsistent
*/
func NewPolicy(cfg config.Password, hasher sec.Hasher) (*Policy, error) {
	if hasher == nil {
		return nil, fmt.Errorf("password_policy_invalid: hasher is required")
	}
	if cfg.MinLength < 1 || cfg.MaxLength < cfg.MinLength {
		return nil, fmt.Errorf("password_policy_invalid: min %d, max %d", cfg.MinLength, cfg.MaxLength)
	}
	if err := account.CheckHashField(cfg.HashField); err != nil {
		return nil, fmt.Errorf("password_policy_invalid: %w", err)
	}

	blacklist := make(map[string]struct{}, len(cfg.Blacklist))
	for _, entry := range cfg.Blacklist {
		if key := fold(entry); key != "" {
			blacklist[key] = struct{}{}
		}
	}

	return &Policy{
		minLength: cfg.MinLength,
		maxLength: cfg.MaxLength,
		blacklist: blacklist,
		hashField: cfg.HashField,
		hasher:    hasher,
	}, nil
}

// MinLength returns the configured minimum length in characters.
func (policy *Policy) MinLength() int {
	return policy.minLength
}

/*
Validate checks a candidate password against the policy.

Description: The password is NFKC-normalized first so visually identical
inputs validate and hash identically. Length is measured in characters for
the minimum and in bytes for the maximum (the hashing collaborator's input
limit). Blacklist matching is case-insensitive.

Returns:
  - string: The normalized password to hash
  - error: VALIDATION_ERROR with field details when any rule fails
*/
func (policy *Policy) Validate(plain string) (string, error) {
	normalized := normalize(plain)

	v := policy.check(normalized)
	if err := v.Err(); err != nil {
		return "", err
	}

	return normalized, nil
}

func (policy *Policy) check(normalized string) *validate.Validator {
	v := &validate.Validator{}
	v.MinLen(account.FieldPassword, normalized, policy.minLength).
		MaxBytes(account.FieldPassword, normalized, policy.maxLength).
		Custom(account.FieldPassword, policy.isBlacklisted(normalized), MsgTooCommon)
	return v
}

// Hash derives the stored hash for an already validated password.
func (policy *Policy) Hash(validated string) (string, error) {
	hash, err := policy.hasher.Hash(validated)
	if err != nil {
		return "", fmt.Errorf("password_policy_hash_failed: %w", err)
	}
	return hash, nil
}

// Verify compares a plaintext candidate against a stored hash.
func (policy *Policy) Verify(plain, hash string) bool {
	if hash == "" {
		return false
	}
	return policy.hasher.Verify(normalize(plain), hash)
}

// # Record Application

// Result is the outcome of [Policy.ApplyToRecord]: the updated record, or the
// field errors explaining why the password was refused.
type Result struct {
	Record *account.User
	Errors []apperr.FieldError
}

// OK reports whether the password was accepted.
func (r Result) OK() bool {
	return len(r.Errors) == 0
}

// Err converts field errors into a VALIDATION_ERROR, or nil when OK.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	return apperr.ValidationError("Validation failed", r.Errors...)
}

/*
ApplyToRecord validates plain and, when it passes, stores its hash on a copy
of user in the configured hash field.

Description: The input record is never mutated. On policy failure the
returned record has its transient password cleared and the result carries
the field errors; the hash is left untouched.

Returns:
  - Result: Updated record or field errors
  - error: Only for hashing collaborator failures
*/
func (policy *Policy) ApplyToRecord(user *account.User, plain string) (Result, error) {
	next := user.Clone()
	next.Password = ""

	normalized := normalize(plain)
	if v := policy.check(normalized); v.HasErrors() {
		return Result{Record: next, Errors: v.Errors()}, nil
	}

	hash, err := policy.Hash(normalized)
	if err != nil {
		return Result{}, err
	}
	if err := next.SetHashField(policy.hashField, hash); err != nil {
		return Result{}, fmt.Errorf("password_policy_apply_failed: %w", err)
	}

	return Result{Record: next}, nil
}

// # Helpers

func (policy *Policy) isBlacklisted(normalized string) bool {
	_, blocked := policy.blacklist[fold(normalized)]
	return blocked
}

func normalize(plain string) string {
	return norm.NFKC.String(plain)
}

// fold builds the blacklist key. A Caser keeps state, so one is created per call.
func fold(value string) string {
	return cases.Fold().String(norm.NFKC.String(value))
}
