// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package token_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/taibuivan/credguard/internal/platform/apperr"
	"github.com/taibuivan/credguard/internal/platform/config"
	"github.com/taibuivan/credguard/internal/platform/sec"
	"github.com/taibuivan/credguard/internal/users/account"
	"github.com/taibuivan/credguard/internal/users/account/accounttest"
	"github.com/taibuivan/credguard/internal/users/password"
	"github.com/taibuivan/credguard/internal/users/token"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store   *accounttest.MemoryStore
	policy  *password.Policy
	manager *token.Manager
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	policy, err := password.NewPolicy(config.Password{
		MinLength: 8,
		MaxLength: 72,
		Blacklist: []string{"password123"},
		HashField: "passwordhash",
	}, sec.BcryptHasher{Cost: bcrypt.MinCost})
	require.NoError(t, err)

	f := &fixture{store: accounttest.NewMemoryStore(), policy: policy, now: epoch}
	f.manager = token.NewManager(f.store, policy, config.Token{
		ConfirmationTTL: 24 * time.Hour,
		ResetTTL:        time.Hour,
	}, token.WithClock(func() time.Time { return f.now }))

	return f
}

func TestIsExpired(t *testing.T) {
	sentAt := epoch
	valid := 3600 * time.Second

	tests := []struct {
		name   string
		sentAt *time.Time
		now    time.Time
		want   bool
	}{
		{"never sent", nil, epoch.Add(100 * 365 * 24 * time.Hour), false},
		{"just sent", &sentAt, epoch, false},
		{"exactly at boundary", &sentAt, epoch.Add(valid), false},
		{"one nanosecond past", &sentAt, epoch.Add(valid + time.Nanosecond), true},
		{"one second past", &sentAt, epoch.Add(valid + time.Second), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, token.IsExpired(tt.sentAt, valid, tt.now))
		})
	}
}

func TestManager_Generate(t *testing.T) {
	f := newFixture(t)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := f.manager.Generate()
		require.NoError(t, err)
		assert.NotContains(t, tok, "+")
		assert.NotContains(t, tok, "/")
		assert.False(t, seen[tok], "token collision")
		seen[tok] = true
	}
}

func TestManager_AttachTokens(t *testing.T) {
	f := newFixture(t)
	f.now = epoch.In(time.FixedZone("JST", 9*3600))

	user := &account.User{ID: 1}
	f.manager.AttachConfirmation(user, "plain-confirm")
	f.manager.AttachReset(user, "plain-reset")

	assert.Equal(t, sec.HashToken("plain-confirm"), user.ConfirmationToken)
	assert.Equal(t, sec.HashToken("plain-reset"), user.ResetToken)
	require.NotNil(t, user.ConfirmationSentAt)
	require.NotNil(t, user.ResetSentAt)
	assert.Equal(t, time.UTC, user.ResetSentAt.Location())
	assert.True(t, epoch.Equal(*user.ResetSentAt))
}

func TestManager_ConfirmFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.store.Seed(&account.User{Email: "a@example.com"})

	plain, err := f.manager.IssueConfirmation(ctx, user)
	require.NoError(t, err)

	found, err := f.manager.ValidateConfirmation(ctx, plain)
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	confirmed, err := f.manager.Confirm(ctx, found)
	require.NoError(t, err)
	assert.True(t, confirmed.IsConfirmed())

	stored := f.store.Get(user.ID)
	assert.True(t, stored.IsConfirmed())
	assert.Empty(t, stored.ConfirmationToken)

	_, err = f.manager.ValidateConfirmation(ctx, plain)
	assert.ErrorIs(t, err, token.ErrInvalidToken, "a consumed token is superseded")

	_, err = f.manager.Confirm(ctx, found)
	assert.ErrorIs(t, err, token.ErrInvalidToken, "a snapshot cannot confirm twice")
}

func TestManager_StaleConfirmKeepsResetTokenConsumed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.store.Seed(&account.User{Email: "a@example.com", PasswordHash: "old-hash"})

	confirmPlain, err := f.manager.IssueConfirmation(ctx, user)
	require.NoError(t, err)
	resetPlain, err := f.manager.IssueReset(ctx, user)
	require.NoError(t, err)

	// Read while the reset token is still outstanding.
	stale, err := f.manager.ValidateConfirmation(ctx, confirmPlain)
	require.NoError(t, err)
	require.NotEmpty(t, stale.ResetToken)

	resetting, err := f.manager.ValidateReset(ctx, resetPlain)
	require.NoError(t, err)
	result, err := f.manager.ResetPassword(ctx, resetting, "correct horse battery")
	require.NoError(t, err)
	require.True(t, result.OK())

	_, err = f.manager.Confirm(ctx, stale)
	require.NoError(t, err)

	_, err = f.manager.ValidateReset(ctx, resetPlain)
	assert.ErrorIs(t, err, token.ErrInvalidToken)

	stored := f.store.Get(user.ID)
	assert.True(t, stored.IsConfirmed())
	assert.Empty(t, stored.ResetToken)
	assert.Nil(t, stored.ResetSentAt)
	assert.True(t, f.policy.Verify("correct horse battery", stored.PasswordHash))
}

func TestManager_ValidateReset(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown token", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.manager.ValidateReset(ctx, "nope")
		assert.ErrorIs(t, err, token.ErrInvalidToken)
		assert.True(t, apperr.HasCode(err, apperr.CodeInvalidToken))
	})

	t.Run("empty token", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.manager.ValidateReset(ctx, "")
		assert.ErrorIs(t, err, token.ErrInvalidToken)
	})

	t.Run("token without sent-at is invalid, not expired", func(t *testing.T) {
		f := newFixture(t)
		f.store.Seed(&account.User{Email: "a@example.com", ResetToken: sec.HashToken("orphan")})

		_, err := f.manager.ValidateReset(ctx, "orphan")
		assert.ErrorIs(t, err, token.ErrInvalidToken)
		assert.NotErrorIs(t, err, token.ErrTokenExpired)
	})

	t.Run("valid at boundary, expired after", func(t *testing.T) {
		f := newFixture(t)
		user := f.store.Seed(&account.User{Email: "a@example.com"})
		plain, err := f.manager.IssueReset(ctx, user)
		require.NoError(t, err)

		f.now = epoch.Add(time.Hour)
		_, err = f.manager.ValidateReset(ctx, plain)
		assert.NoError(t, err)

		f.now = epoch.Add(time.Hour + time.Second)
		_, err = f.manager.ValidateReset(ctx, plain)
		assert.ErrorIs(t, err, token.ErrTokenExpired)
		assert.True(t, apperr.HasCode(err, apperr.CodeTokenExpired))
	})

	t.Run("reissue supersedes the previous token", func(t *testing.T) {
		f := newFixture(t)
		user := f.store.Seed(&account.User{Email: "a@example.com"})

		first, err := f.manager.IssueReset(ctx, user)
		require.NoError(t, err)
		second, err := f.manager.IssueReset(ctx, user)
		require.NoError(t, err)

		_, err = f.manager.ValidateReset(ctx, first)
		assert.ErrorIs(t, err, token.ErrInvalidToken)
		_, err = f.manager.ValidateReset(ctx, second)
		assert.NoError(t, err)
	})
}

func TestManager_ResetPassword(t *testing.T) {
	ctx := context.Background()

	seedWithReset := func(t *testing.T, f *fixture) *account.User {
		t.Helper()
		user := f.store.Seed(&account.User{Email: "a@example.com", PasswordHash: "old-hash"})
		_, err := f.manager.IssueReset(ctx, user)
		require.NoError(t, err)
		return f.store.Get(user.ID)
	}

	t.Run("success writes hash and clears token together", func(t *testing.T) {
		f := newFixture(t)
		user := seedWithReset(t, f)

		result, err := f.manager.ResetPassword(ctx, user, "correct horse battery")
		require.NoError(t, err)
		require.True(t, result.OK())
		assert.Empty(t, result.Record.ResetToken)
		assert.Nil(t, result.Record.ResetSentAt)

		stored := f.store.Get(user.ID)
		assert.True(t, f.policy.Verify("correct horse battery", stored.PasswordHash))
		assert.Empty(t, stored.ResetToken)
		assert.Nil(t, stored.ResetSentAt)
	})

	t.Run("policy failure writes nothing", func(t *testing.T) {
		f := newFixture(t)
		user := seedWithReset(t, f)

		result, err := f.manager.ResetPassword(ctx, user, "password123")
		require.NoError(t, err)
		require.False(t, result.OK())
		assert.Equal(t, password.MsgTooCommon, result.Errors[0].Message)

		stored := f.store.Get(user.ID)
		assert.Equal(t, "old-hash", stored.PasswordHash)
		assert.Equal(t, user.ResetToken, stored.ResetToken)
		assert.NotNil(t, stored.ResetSentAt)
	})

	t.Run("failed token clear rolls back the hash write", func(t *testing.T) {
		f := newFixture(t)
		user := seedWithReset(t, f)
		f.store.FailOn(accounttest.OpClearResetToken, errors.New("disk full"))

		_, err := f.manager.ResetPassword(ctx, user, "correct horse battery")
		require.Error(t, err)

		stored := f.store.Get(user.ID)
		assert.Equal(t, "old-hash", stored.PasswordHash)
		assert.Equal(t, user.ResetToken, stored.ResetToken)
		assert.NotNil(t, stored.ResetSentAt)
	})

	t.Run("failed commit leaves no partial state", func(t *testing.T) {
		f := newFixture(t)
		user := seedWithReset(t, f)
		f.store.FailOn(accounttest.OpCommit, errors.New("serialization failure"))

		_, err := f.manager.ResetPassword(ctx, user, "correct horse battery")
		require.Error(t, err)

		stored := f.store.Get(user.ID)
		assert.Equal(t, "old-hash", stored.PasswordHash)
		assert.NotEmpty(t, stored.ResetToken)
	})

	t.Run("reissue after validation rejects the old snapshot", func(t *testing.T) {
		f := newFixture(t)
		user := seedWithReset(t, f)

		fresh, err := f.manager.IssueReset(ctx, f.store.Get(user.ID))
		require.NoError(t, err)

		_, err = f.manager.ResetPassword(ctx, user, "correct horse battery")
		require.ErrorIs(t, err, token.ErrInvalidToken)
		assert.True(t, apperr.HasCode(err, apperr.CodeInvalidToken))

		stored := f.store.Get(user.ID)
		assert.Equal(t, "old-hash", stored.PasswordHash)
		_, err = f.manager.ValidateReset(ctx, fresh)
		assert.NoError(t, err, "the reissued token stays live")
	})

	t.Run("expiry is checked again under the lock", func(t *testing.T) {
		f := newFixture(t)
		user := seedWithReset(t, f)

		f.now = epoch.Add(time.Hour + time.Second)
		_, err := f.manager.ResetPassword(ctx, user, "correct horse battery")
		require.ErrorIs(t, err, token.ErrTokenExpired)
		assert.Equal(t, "old-hash", f.store.Get(user.ID).PasswordHash)
	})
}

func TestManager_ResetPassword_ConcurrentSameToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.store.Seed(&account.User{Email: "a@example.com", PasswordHash: "old-hash"})

	plain, err := f.manager.IssueReset(ctx, user)
	require.NoError(t, err)

	const workers = 8
	snapshots := make([]*account.User, workers)
	for i := range snapshots {
		snapshots[i], err = f.manager.ValidateReset(ctx, plain)
		require.NoError(t, err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
	)
	for i, snapshot := range snapshots {
		wg.Add(1)
		go func(i int, snapshot *account.User) {
			defer wg.Done()

			next := fmt.Sprintf("correct horse %d", i)
			result, err := f.manager.ResetPassword(ctx, snapshot, next)
			if err != nil {
				assert.ErrorIs(t, err, token.ErrInvalidToken)
				return
			}
			assert.True(t, result.OK())

			mu.Lock()
			winners = append(winners, next)
			mu.Unlock()
		}(i, snapshot)
	}
	wg.Wait()

	require.Len(t, winners, 1, "a reset token is spent exactly once")

	stored := f.store.Get(user.ID)
	assert.True(t, f.policy.Verify(winners[0], stored.PasswordHash))
	assert.Empty(t, stored.ResetToken)
}
