// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package otp_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/credguard/internal/platform/apperr"
	"github.com/taibuivan/credguard/internal/users/otp"
)

// memoryThrottle is a fixed-budget throttle kept in memory.
type memoryThrottle struct {
	mu          sync.Mutex
	max         int
	failures    map[int64]int
	blockedErr  error
	resetCalled bool
}

func newMemoryThrottle(max int) *memoryThrottle {
	return &memoryThrottle{max: max, failures: make(map[int64]int)}
}

func (m *memoryThrottle) Blocked(_ context.Context, userID int64) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blockedErr != nil {
		return 0, m.blockedErr
	}
	if m.failures[userID] >= m.max {
		return 90 * time.Second, nil
	}
	return 0, nil
}

func (m *memoryThrottle) Fail(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[userID]++
	return nil
}

func (m *memoryThrottle) Reset(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failures, userID)
	m.resetCalled = true
	return nil
}

func TestService_Verify(t *testing.T) {
	ctx := context.Background()

	t.Run("replays count toward the block", func(t *testing.T) {
		store, user := seeded(5)
		throttle := newMemoryThrottle(2)
		service := otp.NewService(otp.NewValidator(store), throttle)

		for i := 0; i < 2; i++ {
			_, err := service.Verify(ctx, user.ID, 5)
			require.ErrorIs(t, err, otp.ErrInvalidOneTimePassword)
		}

		_, err := service.Verify(ctx, user.ID, 6)
		ae := apperr.As(err)
		require.NotNil(t, ae)
		assert.Equal(t, apperr.CodeRateLimited, ae.Code)
		assert.Equal(t, int64(5), store.Get(user.ID).OTPLast, "blocked submissions never reach the store")
	})

	t.Run("success clears failures", func(t *testing.T) {
		store, user := seeded(5)
		throttle := newMemoryThrottle(3)
		service := otp.NewService(otp.NewValidator(store), throttle)

		_, err := service.Verify(ctx, user.ID, 4)
		require.Error(t, err)

		updated, err := service.Verify(ctx, user.ID, 6)
		require.NoError(t, err)
		assert.Equal(t, int64(6), updated.OTPLast)
		assert.True(t, throttle.resetCalled)
		assert.Zero(t, throttle.failures[user.ID])
	})

	t.Run("unknown principal is not counted", func(t *testing.T) {
		store, _ := seeded(0)
		throttle := newMemoryThrottle(1)
		service := otp.NewService(otp.NewValidator(store), throttle)

		_, err := service.Verify(ctx, 404, 1)
		require.ErrorIs(t, err, otp.ErrInvalidIdentifier)
		assert.Zero(t, throttle.failures[404])
	})

	t.Run("throttle outage fails closed", func(t *testing.T) {
		store, user := seeded(5)
		throttle := newMemoryThrottle(3)
		throttle.blockedErr = errors.New("redis down")
		service := otp.NewService(otp.NewValidator(store), throttle)

		_, err := service.Verify(ctx, user.ID, 6)
		require.Error(t, err)
		assert.Equal(t, int64(5), store.Get(user.ID).OTPLast)
	})

	t.Run("nil throttle disables throttling", func(t *testing.T) {
		store, user := seeded(5)
		service := otp.NewService(otp.NewValidator(store), nil)

		for i := 0; i < 10; i++ {
			_, err := service.Verify(ctx, user.ID, 5)
			require.ErrorIs(t, err, otp.ErrInvalidOneTimePassword)
		}
	})
}
