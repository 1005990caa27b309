// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"log/slog"

	"github.com/taibuivan/credguard/internal/users/account"
)

// Delivery hands a freshly issued plaintext token to its owner (email, SMS, ...).
type Delivery interface {
	Deliver(ctx context.Context, user *account.User, purpose, token string) error
}

// LogDelivery writes issued tokens to the log. The plaintext is included only
// when IncludeToken is set, which is meant for local development.
type LogDelivery struct {
	Logger       *slog.Logger
	IncludeToken bool
}

// Deliver implements [Delivery].
func (delivery LogDelivery) Deliver(_ context.Context, user *account.User, purpose, token string) error {
	attrs := []any{
		slog.Int64("user_id", user.ID),
		slog.String("purpose", purpose),
	}
	if delivery.IncludeToken {
		attrs = append(attrs, slog.String("token", token))
	}

	delivery.Logger.Info("token_issued", attrs...)
	return nil
}
