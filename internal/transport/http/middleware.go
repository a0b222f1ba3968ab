// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/opentrusty/farmgate/internal/identity"
	"github.com/opentrusty/farmgate/internal/observability/logger"
	"github.com/opentrusty/farmgate/internal/requestctx"
)

// Tenant Context Principles:
// 1. The tenant a request may act on is derived from the authenticated principal only
// 2. A request context is populated exactly once, by AuthMiddleware
// 3. Handlers read the snapshot; they never reload or mutate the principal
//
// Anti-Patterns (FORBIDDEN):
// - Tenant IDs taken from headers to widen access
// - Treating a missing home tenant as platform privilege (levels decide that)

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			slog.DebugContext(r.Context(), "http_request_start",
				logger.RequestID(middleware.GetReqID(r.Context())),
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
				logger.RemoteAddr(r.RemoteAddr),
			)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				slog.InfoContext(r.Context(), "http_request_end",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.RemoteAddr(r.RemoteAddr),
					logger.UserAgent(r.UserAgent()),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start).Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// AuthMiddleware verifies the bearer token, loads the principal and attaches
// an immutable TenantContext to the request.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		principalID, err := h.tokens.Verify(raw)
		if err != nil {
			slog.DebugContext(r.Context(), "bearer token rejected", logger.Error(err))
			respondError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		p, err := h.principals.GetByID(r.Context(), principalID)
		if err != nil {
			if errors.Is(err, identity.ErrPrincipalNotFound) {
				respondError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			slog.ErrorContext(r.Context(), "failed to load principal",
				logger.PrincipalID(principalID),
				logger.Error(err),
			)
			respondError(w, http.StatusInternalServerError, "failed to load principal")
			return
		}

		if r.Header.Get("X-Tenant-ID") != "" {
			slog.WarnContext(r.Context(), "tenant header supplied on authenticated route",
				logger.PrincipalID(principalID),
			)
			respondError(w, http.StatusBadRequest, "X-Tenant-ID header is not allowed; tenant is derived from the principal")
			return
		}

		ctx := requestctx.WithTenantContext(r.Context(), requestctx.New(p))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireActive rejects inactive principals before any handler runs
func RequireActive(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc, ok := requestctx.FromContext(r.Context())
		if !ok || !tc.Active() {
			respondError(w, http.StatusUnauthorized, "principal is inactive")
			return
		}
		next.ServeHTTP(w, r)
	})
}
