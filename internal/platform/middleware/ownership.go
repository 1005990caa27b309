// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/taibuivan/credguard/internal/platform/config"
	"github.com/taibuivan/credguard/internal/platform/ctxutil"
	"github.com/taibuivan/credguard/internal/platform/respond"
)

// # Resource Ownership

/*
OwnershipCheck holds the inputs of one ownership decision.

The candidate id is the path segment right after Prefix. It must equal the
base-10 rendering of PrincipalID exactly: "10" never matches 1, and neither
do "01" or "+1".
*/
type OwnershipCheck struct {
	PrincipalID   int64
	Authenticated bool
	Method        string
	Path          string
	Prefix        string

	// CheckShow subjects read ("show") routes to the check. Write routes are always checked.
	CheckShow bool
}

// Allowed reports whether the request may proceed.
func (check OwnershipCheck) Allowed() bool {
	candidate, hasAction, ok := ownerSegment(check.Path, check.Prefix)
	if !ok {
		return false
	}

	if !check.CheckShow && isShowRoute(check.Method, hasAction) {
		return true
	}

	return check.Authenticated && candidate == strconv.FormatInt(check.PrincipalID, 10)
}

// ownerSegment strips prefix from path and returns the id segment, whether
// an action segment follows it, and whether path is under prefix at all.
func ownerSegment(path, prefix string) (candidate string, hasAction bool, ok bool) {
	prefix = strings.TrimSuffix(prefix, "/")

	rest, found := strings.CutPrefix(path, prefix)
	if !found || !strings.HasPrefix(rest, "/") {
		return "", false, false
	}

	candidate, tail, _ := strings.Cut(rest[1:], "/")
	if candidate == "" {
		return "", false, false
	}

	return candidate, tail != "", true
}

// isShowRoute reports whether a request reads a single resource.
func isShowRoute(method string, hasAction bool) bool {
	return !hasAction && (method == http.MethodGet || method == http.MethodHead)
}

/*
RequireOwner halts requests whose path id is not the authenticated principal's.

On mismatch the response is a 302 redirect to the configured fallback path
and no downstream handler runs. Must be registered AFTER [Authenticate].
*/
func RequireOwner(cfg config.Ownership) func(http.Handler) http.Handler {
	fallback := cfg.FallbackPath
	if fallback == "" {
		fallback = cfg.Prefix
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			check := OwnershipCheck{
				Method:    request.Method,
				Path:      request.URL.Path,
				Prefix:    cfg.Prefix,
				CheckShow: cfg.CheckShow,
			}
			check.PrincipalID, check.Authenticated = ctxutil.PrincipalID(request.Context())

			if !check.Allowed() {
				ctxutil.GetLogger(request.Context()).Warn("ownership_check_failed",
					"principal_id", check.PrincipalID,
					"path", check.Path,
				)
				respond.Redirect(writer, request, fallback)
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}
