// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package auth implements the account-management use cases on top of the
credential components.

Architecture:

  - Service: Register, Login, Confirm, RequestPasswordReset, ResetPassword, VerifyOTP.
  - Handler: JSON endpoints under /api/v1/auth.
  - Delivery: Hands plaintext tokens to an out-of-band channel.

Passwords go through [password.Policy], tokens through [token.Manager] and
OTP submissions through [otp.Service]; this package only orchestrates them.
*/
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/taibuivan/credguard/internal/platform/apperr"
	"github.com/taibuivan/credguard/internal/platform/constants"
	"github.com/taibuivan/credguard/internal/platform/ctxutil"
	"github.com/taibuivan/credguard/internal/users/account"
	"github.com/taibuivan/credguard/internal/users/otp"
	"github.com/taibuivan/credguard/internal/users/password"
	"github.com/taibuivan/credguard/internal/users/token"
)

// # Contracts & Types

// AccessTokenIssuer signs access tokens. [*sec.TokenService] implements it.
type AccessTokenIssuer interface {
	GenerateAccessToken(userID int64, email string, timeToLive time.Duration) (string, error)
}

// Service implements account-management use cases.
type Service struct {
	store    account.Store
	policy   *password.Policy
	tokens   *token.Manager
	otp      *otp.Service
	issuer   AccessTokenIssuer
	delivery Delivery

	// dummyHash is verified when a login email is unknown so both paths cost one hash check.
	dummyHash string
}

/*
NewService constructs the account-management service.

Returns:
  - *Service: Ready-to-use service
  - error: If the timing-equalization hash cannot be derived
*/
func NewService(
	store account.Store,
	policy *password.Policy,
	tokens *token.Manager,
	otpService *otp.Service,
	issuer AccessTokenIssuer,
	delivery Delivery,
) (*Service, error) {
	dummyHash, err := policy.Hash("credguard-unknown-principal")
	if err != nil {
		return nil, fmt.Errorf("auth_service_init_failed: %w", err)
	}

	return &Service{
		store:     store,
		policy:    policy,
		tokens:    tokens,
		otp:       otpService,
		issuer:    issuer,
		delivery:  delivery,
		dummyHash: dummyHash,
	}, nil
}

// # Registration Flow

// RegisterInput holds the data required to enroll a new principal.
type RegisterInput struct {
	Email       string
	DisplayName string
	Password    string
}

/*
Register validates the password, persists a new principal and issues its
confirmation token.

Parameters:
  - context: context.Context
  - input: RegisterInput

Returns:
  - *account.User: Created principal
  - error: VALIDATION_ERROR (password policy), CONFLICT (email taken) or storage errors
*/
func (service *Service) Register(context context.Context, input RegisterInput) (*account.User, error) {
	email := normalizeEmail(input.Email)

	// Fast path; the unique index still decides races.
	if _, err := service.store.FindByEmail(context, email); err == nil {
		return nil, apperr.Conflict("Email is already registered")
	} else if !errors.Is(err, account.ErrNotFound) {
		return nil, fmt.Errorf("auth_service_register_lookup_failed: %w", err)
	}

	result, err := service.policy.ApplyToRecord(&account.User{
		Email:       email,
		DisplayName: strings.TrimSpace(input.DisplayName),
	}, input.Password)
	if err != nil {
		return nil, fmt.Errorf("auth_service_register_hash_failed: %w", err)
	}
	if !result.OK() {
		return nil, result.Err()
	}

	plain, err := service.tokens.Generate()
	if err != nil {
		return nil, fmt.Errorf("auth_service_register_token_failed: %w", err)
	}

	// The confirmation token is written by the same INSERT as the principal.
	user := result.Record
	service.tokens.AttachConfirmation(user, plain)
	if err := service.store.Create(context, user); err != nil {
		return nil, fmt.Errorf("auth_service_register_failed: %w", err)
	}
	service.deliver(context, user, PurposeConfirmation, plain)

	return user, nil
}

// # Authentication Flow

// LoginSession is the result of a successful login.
type LoginSession struct {
	AccessToken string
	ExpiresIn   time.Duration
	User        *account.User
}

/*
Login verifies credentials through the hashing collaborator and issues an
access token whose uid claim is the principal id.

Returns:
  - *LoginSession: Access token and principal
  - error: UNAUTHORIZED for unknown emails and wrong passwords alike
*/
func (service *Service) Login(context context.Context, email, plain string) (*LoginSession, error) {
	user, err := service.store.FindByEmail(context, normalizeEmail(email))
	if err != nil {
		if !errors.Is(err, account.ErrNotFound) {
			return nil, fmt.Errorf("auth_service_login_lookup_failed: %w", err)
		}
		service.policy.Verify(plain, service.dummyHash)
		return nil, apperr.Unauthorized("Invalid login credentials")
	}

	if !service.policy.Verify(plain, user.PasswordHash) {
		ctxutil.GetLogger(context).Warn("login_password_mismatch", "user_id", user.ID)
		return nil, apperr.Unauthorized("Invalid login credentials")
	}

	accessToken, err := service.issuer.GenerateAccessToken(user.ID, user.Email, constants.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("auth_service_token_generation_failed: %w", err)
	}

	return &LoginSession{
		AccessToken: accessToken,
		ExpiresIn:   constants.AccessTokenTTL,
		User:        user,
	}, nil
}

// # Confirmation Flow

/*
Confirm consumes a confirmation token and marks the principal confirmed.

Returns:
  - *account.User: Confirmed principal
  - error: INVALID_TOKEN, TOKEN_EXPIRED or storage errors
*/
func (service *Service) Confirm(context context.Context, plain string) (*account.User, error) {
	user, err := service.tokens.ValidateConfirmation(context, plain)
	if err != nil {
		return nil, err
	}

	confirmed, err := service.tokens.Confirm(context, user)
	if err != nil {
		return nil, fmt.Errorf("auth_service_confirm_failed: %w", err)
	}

	return confirmed, nil
}

// # Password Recovery

/*
RequestPasswordReset issues a reset token for email when it is registered.

Description: Unknown emails succeed silently so the endpoint cannot be used
to enumerate accounts.
*/
func (service *Service) RequestPasswordReset(context context.Context, email string) error {
	user, err := service.store.FindByEmail(context, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("auth_service_forgot_password_lookup_failed: %w", err)
	}

	plain, err := service.tokens.IssueReset(context, user)
	if err != nil {
		return fmt.Errorf("auth_service_forgot_password_failed: %w", err)
	}
	service.deliver(context, user, PurposeReset, plain)

	return nil
}

/*
ResetPassword consumes a reset token and replaces the password.

Description: The new hash and the cleared token are committed in one
transaction by [token.Manager.ResetPassword].

Returns:
  - error: INVALID_TOKEN, TOKEN_EXPIRED, VALIDATION_ERROR or storage errors
*/
func (service *Service) ResetPassword(context context.Context, plain, newPassword string) error {
	user, err := service.tokens.ValidateReset(context, plain)
	if err != nil {
		return err
	}

	result, err := service.tokens.ResetPassword(context, user, newPassword)
	if err != nil {
		return fmt.Errorf("auth_service_reset_password_failed: %w", err)
	}

	return result.Err()
}

// # One-Time Passwords

// VerifyOTP validates and advances the principal's OTP counter.
func (service *Service) VerifyOTP(context context.Context, userID, counter int64) (*account.User, error) {
	return service.otp.Verify(context, userID, counter)
}

// # Helpers

func (service *Service) deliver(context context.Context, user *account.User, purpose, plain string) {
	if err := service.delivery.Deliver(context, user, purpose, plain); err != nil {
		ctxutil.GetLogger(context).Error("token_delivery_failed",
			"user_id", user.ID,
			"purpose", purpose,
			"error", err,
		)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
