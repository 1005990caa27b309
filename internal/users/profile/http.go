// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package profile

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/credguard/internal/platform/config"
	"github.com/taibuivan/credguard/internal/platform/middleware"
	requestutil "github.com/taibuivan/credguard/internal/platform/request"
	"github.com/taibuivan/credguard/internal/platform/respond"
	"github.com/taibuivan/credguard/internal/platform/validate"
	"github.com/taibuivan/credguard/internal/users/account"
)

const displayNameMaxLen = 64

// Handler implements the profile HTTP endpoints.
type Handler struct {
	profileService *Service
	ownership      config.Ownership
}

// NewHandler constructs a new [Handler].
func NewHandler(service *Service, ownership config.Ownership) *Handler {
	return &Handler{profileService: service, ownership: ownership}
}

// Routes returns a [chi.Router] for the ownership prefix.
//
// The router must be mounted at the configured prefix: the ownership guard
// reads the id from the full request path. Anonymous requests to id routes
// are redirected by the guard like any other mismatch.
//
// # Endpoints
//   - GET   /              : Current principal (ownership fallback target).
//   - GET   /{id}          : Show a principal.
//   - GET   /{id}/edit     : Editable profile fields.
//   - PATCH /{id}/edit     : Update the display name.
//   - PUT   /{id}/password : Change the password.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.With(middleware.RequireAuth).Get("/", handler.current)

	router.Group(func(owned chi.Router) {
		owned.Use(middleware.RequireOwner(handler.ownership))

		owned.Get("/{id}", handler.show)
		owned.Get("/{id}/edit", handler.edit)
		owned.Patch("/{id}/edit", handler.update)
		owned.Put("/{id}/password", handler.changePassword)
	})

	return router
}

type updateRequest struct {
	DisplayName string `json:"display_name"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	Password        string `json:"password"`
}

type editView struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// current handles GET /users.
func (handler *Handler) current(writer http.ResponseWriter, request *http.Request) {
	id, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.profileService.Get(request.Context(), id)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, user)
}

// show handles GET /users/{id}.
func (handler *Handler) show(writer http.ResponseWriter, request *http.Request) {
	id, err := requestutil.Int64Param(request, account.FieldID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.profileService.Get(request.Context(), id)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, user)
}

// edit handles GET /users/{id}/edit.
func (handler *Handler) edit(writer http.ResponseWriter, request *http.Request) {
	id, err := requestutil.Int64Param(request, account.FieldID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.profileService.Get(request.Context(), id)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, editView{Email: user.Email, DisplayName: user.DisplayName})
}

/*
Update handles PATCH /users/{id}/edit.

Response:
  - 200: User: Updated principal
  - 400: VALIDATION_ERROR
  - 302: Path id is not the caller's (ownership guard)
*/
func (handler *Handler) update(writer http.ResponseWriter, request *http.Request) {
	id, err := requestutil.Int64Param(request, account.FieldID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input updateRequest
	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	v := &validate.Validator{}
	v.Required(account.FieldDisplayName, input.DisplayName).
		MaxLen(account.FieldDisplayName, input.DisplayName, displayNameMaxLen)
	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.profileService.UpdateDisplayName(request.Context(), id, input.DisplayName)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, user)
}

/*
ChangePassword handles PUT /users/{id}/password.

Response:
  - 204: Password changed
  - 400: VALIDATION_ERROR (wrong current password or policy failure)
*/
func (handler *Handler) changePassword(writer http.ResponseWriter, request *http.Request) {
	id, err := requestutil.Int64Param(request, account.FieldID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input changePasswordRequest
	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if input.CurrentPassword == "" {
		respond.Error(writer, request, validate.RequiredError(FieldCurrentPassword, "This field is required"))
		return
	}

	if err := handler.profileService.ChangePassword(request.Context(), id, input.CurrentPassword, input.Password); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}
