// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package profile_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/taibuivan/credguard/internal/platform/apperr"
	"github.com/taibuivan/credguard/internal/platform/config"
	"github.com/taibuivan/credguard/internal/platform/ctxutil"
	"github.com/taibuivan/credguard/internal/platform/sec"
	"github.com/taibuivan/credguard/internal/users/account"
	"github.com/taibuivan/credguard/internal/users/account/accounttest"
	"github.com/taibuivan/credguard/internal/users/password"
	"github.com/taibuivan/credguard/internal/users/profile"
)

type fixture struct {
	store   *accounttest.MemoryStore
	policy  *password.Policy
	service *profile.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	policy, err := password.NewPolicy(config.Password{
		MinLength: 8,
		MaxLength: 72,
		HashField: "passwordhash",
	}, sec.BcryptHasher{Cost: bcrypt.MinCost})
	require.NoError(t, err)

	store := accounttest.NewMemoryStore()
	return &fixture{store: store, policy: policy, service: profile.NewService(store, policy)}
}

func (f *fixture) seed(t *testing.T, id int64, plain string) *account.User {
	t.Helper()

	hash, err := f.policy.Hash(plain)
	require.NoError(t, err)

	return f.store.Seed(&account.User{
		ID:           id,
		Email:        fmt.Sprintf("user%d@example.com", id),
		DisplayName:  "Reader",
		PasswordHash: hash,
	})
}

// # Service

func TestService_ChangePassword(t *testing.T) {
	f := newFixture(t)
	user := f.seed(t, 1, "correct horse")

	require.NoError(t, f.store.SetResetToken(context.Background(), user.ID, sec.HashToken("outstanding"), time.Now().UTC()))

	t.Run("wrong current password", func(t *testing.T) {
		err := f.service.ChangePassword(context.Background(), user.ID, "wrong horse", "battery staple")
		require.True(t, apperr.HasCode(err, apperr.CodeValidation))
		assert.Equal(t, profile.FieldCurrentPassword, apperr.As(err).Details[0].Field)
	})

	t.Run("policy failure", func(t *testing.T) {
		err := f.service.ChangePassword(context.Background(), user.ID, "correct horse", "short")
		require.True(t, apperr.HasCode(err, apperr.CodeValidation))
		assert.Equal(t, account.FieldPassword, apperr.As(err).Details[0].Field)
		assert.True(t, f.policy.Verify("correct horse", f.store.Get(user.ID).PasswordHash))
	})

	t.Run("commit failure keeps old password", func(t *testing.T) {
		f.store.FailOn(accounttest.OpCommit, errors.New("connection reset"))
		defer f.store.FailOn(accounttest.OpCommit, nil)

		err := f.service.ChangePassword(context.Background(), user.ID, "correct horse", "battery staple")
		require.Error(t, err)

		stored := f.store.Get(user.ID)
		assert.True(t, f.policy.Verify("correct horse", stored.PasswordHash))
		assert.NotEmpty(t, stored.ResetToken)
	})

	t.Run("success clears outstanding reset", func(t *testing.T) {
		require.NoError(t, f.service.ChangePassword(context.Background(), user.ID, "correct horse", "battery staple"))

		stored := f.store.Get(user.ID)
		assert.True(t, f.policy.Verify("battery staple", stored.PasswordHash))
		assert.Empty(t, stored.ResetToken)
		assert.Nil(t, stored.ResetSentAt)
	})
}

func TestService_UpdateDisplayName(t *testing.T) {
	f := newFixture(t)
	user := f.seed(t, 1, "correct horse")

	updated, err := f.service.UpdateDisplayName(context.Background(), user.ID, "  Night Owl ")
	require.NoError(t, err)
	assert.Equal(t, "Night Owl", updated.DisplayName)
	assert.Equal(t, "Night Owl", f.store.Get(user.ID).DisplayName)
	assert.Equal(t, user.PasswordHash, f.store.Get(user.ID).PasswordHash)

	_, err = f.service.UpdateDisplayName(context.Background(), 404, "Ghost")
	assert.ErrorIs(t, err, account.ErrNotFound)
}

func TestService_UpdateDisplayNameKeepsClearedResetToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seed(t, 1, "correct horse")
	require.NoError(t, f.store.SetResetToken(ctx, user.ID, sec.HashToken("outstanding"), time.Now().UTC()))

	// Read before the password change commits.
	stale, err := f.service.Get(ctx, user.ID)
	require.NoError(t, err)
	require.NotEmpty(t, stale.ResetToken)

	require.NoError(t, f.service.ChangePassword(ctx, user.ID, "correct horse", "battery staple"))

	_, err = f.service.UpdateDisplayName(ctx, stale.ID, "Night Owl")
	require.NoError(t, err)

	stored := f.store.Get(user.ID)
	assert.Equal(t, "Night Owl", stored.DisplayName)
	assert.Empty(t, stored.ResetToken)
	assert.Nil(t, stored.ResetSentAt)
	assert.True(t, f.policy.Verify("battery staple", stored.PasswordHash))
}

// # Routes

func newRouter(f *fixture, ownership config.Ownership) http.Handler {
	router := chi.NewRouter()
	router.Mount(ownership.Prefix, profile.NewHandler(f.service, ownership).Routes())
	return router
}

func serve(handler http.Handler, principal int64, method, path, body string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(method, path, strings.NewReader(body))
	if principal != 0 {
		request = request.WithContext(ctxutil.WithAuthUser(request.Context(), &sec.AuthClaims{UserID: principal}))
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func TestRoutes_Ownership(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 1, "correct horse")
	f.seed(t, 10, "correct horse")

	ownership := config.Ownership{Prefix: "/users", CheckShow: true, FallbackPath: "/users"}
	router := newRouter(f, ownership)

	tests := []struct {
		name         string
		principal    int64
		method       string
		path         string
		body         string
		wantStatus   int
		wantLocation string
	}{
		{"own edit page", 1, http.MethodGet, "/users/1/edit", "", http.StatusOK, ""},
		{"foreign edit page", 1, http.MethodGet, "/users/10/edit", "", http.StatusFound, "/users"},
		{"own show", 1, http.MethodGet, "/users/1", "", http.StatusOK, ""},
		{"foreign show checked", 1, http.MethodGet, "/users/10", "", http.StatusFound, "/users"},
		{"leading zero", 1, http.MethodGet, "/users/01/edit", "", http.StatusFound, "/users"},
		{"foreign update", 1, http.MethodPatch, "/users/10/edit", `{"display_name":"Hijack"}`, http.StatusFound, "/users"},
		{"own update", 10, http.MethodPatch, "/users/10/edit", `{"display_name":"Owner"}`, http.StatusOK, ""},
		{"anonymous edit", 0, http.MethodGet, "/users/1/edit", "", http.StatusFound, "/users"},
		{"index", 10, http.MethodGet, "/users", "", http.StatusOK, ""},
		{"anonymous index", 0, http.MethodGet, "/users", "", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := serve(router, tt.principal, tt.method, tt.path, tt.body)

			assert.Equal(t, tt.wantStatus, recorder.Code)
			assert.Equal(t, tt.wantLocation, recorder.Header().Get("Location"))
			if tt.wantStatus == http.StatusFound {
				assert.Empty(t, recorder.Body.String(), "guarded handler must not run")
			}
		})
	}

	assert.Equal(t, "Owner", f.store.Get(10).DisplayName, "redirected update was not applied")
}

func TestRoutes_UncheckedShow(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 2, "correct horse")

	router := newRouter(f, config.Ownership{Prefix: "/users", CheckShow: false, FallbackPath: "/home"})

	assert.Equal(t, http.StatusOK, serve(router, 1, http.MethodGet, "/users/2", "").Code)
	assert.Equal(t, http.StatusOK, serve(router, 0, http.MethodGet, "/users/2", "").Code)

	recorder := serve(router, 1, http.MethodGet, "/users/2/edit", "")
	assert.Equal(t, http.StatusFound, recorder.Code)
	assert.Equal(t, "/home", recorder.Header().Get("Location"))
}

func TestRoutes_ChangePassword(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 1, "correct horse")
	router := newRouter(f, config.Ownership{Prefix: "/users", CheckShow: true, FallbackPath: "/users"})

	recorder := serve(router, 1, http.MethodPut, "/users/1/password", `{"password":"battery staple"}`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = serve(router, 1, http.MethodPut, "/users/1/password",
		`{"current_password":"correct horse","password":"battery staple"}`)
	assert.Equal(t, http.StatusNoContent, recorder.Code)
	assert.True(t, f.policy.Verify("battery staple", f.store.Get(1).PasswordHash))
}
