// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

// # Request Fields

const (
	FieldEmail       = "email"
	FieldPassword    = "password"
	FieldDisplayName = "display_name"
	FieldToken       = "token"
	FieldUserID      = "user_id"
	FieldCounter     = "counter"
)

// # Response Fields

const (
	FieldMessage     = "message"
	FieldAccessToken = "access_token"
	FieldTokenType   = "token_type"
	FieldExpiresIn   = "expires_in"
	FieldUser        = "user"
)

// Token purposes passed to [Delivery].
const (
	PurposeConfirmation = "confirmation"
	PurposeReset        = "reset"
)

// displayNameMaxLen bounds the display name in characters.
const displayNameMaxLen = 64
