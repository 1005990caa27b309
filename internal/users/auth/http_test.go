// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/credguard/internal/platform/apperr"
	"github.com/taibuivan/credguard/internal/users/auth"
)

type envelope struct {
	Data    json.RawMessage     `json:"data"`
	Error   string              `json:"error"`
	Code    string              `json:"code"`
	Details []apperr.FieldError `json:"details"`
}

func post(t *testing.T, handler http.Handler, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	request := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	var decoded envelope
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &decoded), recorder.Body.String())
	return recorder, decoded
}

func TestHandler_Register(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"created", `{"email":"reader@example.com","password":"correct horse","display_name":"Reader"}`, http.StatusCreated, ""},
		{"malformed json", `{"email":`, http.StatusBadRequest, apperr.CodeValidation},
		{"unknown field", `{"email":"reader@example.com","password":"correct horse","admin":true}`, http.StatusBadRequest, apperr.CodeValidation},
		{"missing email", `{"password":"correct horse"}`, http.StatusBadRequest, apperr.CodeValidation},
		{"invalid email", `{"email":"nope","password":"correct horse"}`, http.StatusBadRequest, apperr.CodeValidation},
		{"weak password", `{"email":"reader@example.com","password":"short"}`, http.StatusBadRequest, apperr.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			router := auth.NewHandler(f.service).Routes()

			recorder, body := post(t, router, "/register", tt.body)

			assert.Equal(t, tt.wantStatus, recorder.Code)
			assert.Equal(t, tt.wantCode, body.Code)
			if tt.wantStatus == http.StatusCreated {
				assert.NotContains(t, string(body.Data), "password", "hashes are never serialized")
				assert.NotContains(t, string(body.Data), "token")
			}
		})
	}
}

func TestHandler_RegisterDuplicate(t *testing.T) {
	f := newFixture(t)
	router := auth.NewHandler(f.service).Routes()
	payload := `{"email":"reader@example.com","password":"correct horse"}`

	first, _ := post(t, router, "/register", payload)
	require.Equal(t, http.StatusCreated, first.Code)

	second, body := post(t, router, "/register", payload)
	assert.Equal(t, http.StatusConflict, second.Code)
	assert.Equal(t, apperr.CodeConflict, body.Code)
}

func TestHandler_LoginFlow(t *testing.T) {
	f := newFixture(t)
	f.register(t, "reader@example.com", "correct horse")
	router := auth.NewHandler(f.service).Routes()

	recorder, body := post(t, router, "/login", `{"email":"reader@example.com","password":"correct horse"}`)
	require.Equal(t, http.StatusOK, recorder.Code)

	var session map[string]any
	require.NoError(t, json.Unmarshal(body.Data, &session))
	assert.Equal(t, "signed:reader@example.com", session[auth.FieldAccessToken])
	assert.Equal(t, "Bearer", session[auth.FieldTokenType])
	assert.EqualValues(t, 900, session[auth.FieldExpiresIn])

	recorder, body = post(t, router, "/login", `{"email":"reader@example.com","password":"wrong horse"}`)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Equal(t, apperr.CodeUnauthorized, body.Code)
}

func TestHandler_ConfirmFlow(t *testing.T) {
	f := newFixture(t)
	f.register(t, "reader@example.com", "correct horse")
	router := auth.NewHandler(f.service).Routes()

	recorder, body := post(t, router, "/confirm", `{"token":""}`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, apperr.CodeValidation, body.Code)

	recorder, body = post(t, router, "/confirm", `{"token":"not-a-real-token"}`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, apperr.CodeInvalidToken, body.Code)

	plain := f.delivery.last(auth.PurposeConfirmation)
	recorder, body = post(t, router, "/confirm", `{"token":"`+plain+`"}`)
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, string(body.Data), "confirmed_at")
}

func TestHandler_PasswordRecovery(t *testing.T) {
	f := newFixture(t)
	f.register(t, "reader@example.com", "correct horse")
	router := auth.NewHandler(f.service).Routes()

	known, _ := post(t, router, "/forgot-password", `{"email":"reader@example.com"}`)
	unknown, _ := post(t, router, "/forgot-password", `{"email":"ghost@example.com"}`)
	assert.Equal(t, http.StatusAccepted, known.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String(), "responses do not reveal registration")

	plain := f.delivery.last(auth.PurposeReset)
	require.NotEmpty(t, plain)

	recorder, body := post(t, router, "/reset-password", `{"token":"`+plain+`","password":"short"}`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, apperr.CodeValidation, body.Code)
	require.NotEmpty(t, body.Details)
	assert.Equal(t, "password", body.Details[0].Field)

	recorder, _ = post(t, router, "/reset-password", `{"token":"`+plain+`","password":"battery staple"}`)
	assert.Equal(t, http.StatusOK, recorder.Code)

	recorder, body = post(t, router, "/reset-password", `{"token":"`+plain+`","password":"battery staple"}`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, apperr.CodeInvalidToken, body.Code)
}

func TestHandler_VerifyOTP(t *testing.T) {
	f := newFixture(t)
	user := f.register(t, "reader@example.com", "correct horse")
	router := auth.NewHandler(f.service).Routes()

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"advance", `{"user_id":` + itoa(user.ID) + `,"counter":6}`, http.StatusOK, ""},
		{"replay", `{"user_id":` + itoa(user.ID) + `,"counter":6}`, http.StatusUnauthorized, apperr.CodeInvalidOTP},
		{"stale", `{"user_id":` + itoa(user.ID) + `,"counter":5}`, http.StatusUnauthorized, apperr.CodeInvalidOTP},
		{"unknown principal", `{"user_id":9999,"counter":7}`, http.StatusNotFound, apperr.CodeInvalidIdentity},
		{"non positive counter", `{"user_id":` + itoa(user.ID) + `,"counter":0}`, http.StatusBadRequest, apperr.CodeValidation},
	}

	// Cases share one principal and run in order.
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder, body := post(t, router, "/otp/verify", tt.body)

			assert.Equal(t, tt.wantStatus, recorder.Code)
			assert.Equal(t, tt.wantCode, body.Code)
		})
	}
}

func itoa(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
