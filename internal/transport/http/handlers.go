// @title farmgate API
// @version 1.0.0
// @description Multi-tenant farm access-control core

// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/opentrusty/farmgate/internal/authz"
	"github.com/opentrusty/farmgate/internal/grant"
	"github.com/opentrusty/farmgate/internal/identity"
	"github.com/opentrusty/farmgate/internal/observability/logger"
	"github.com/opentrusty/farmgate/internal/rbac"
	"github.com/opentrusty/farmgate/internal/requestctx"
	"github.com/opentrusty/farmgate/internal/tenant"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	principals identity.Repository
	identity   *identity.Service
	tenants    *tenant.Service
	grants     *grant.Service
	graph      *rbac.Graph
	engine     *authz.Engine
	tokens     *TokenAuthority
	validate   *validator.Validate
	now        func() time.Time
}

// Deps are the services the HTTP boundary delegates to
type Deps struct {
	Principals identity.Repository
	Identity   *identity.Service
	Tenants    *tenant.Service
	Grants     *grant.Service
	Graph      *rbac.Graph
	Engine     *authz.Engine
	Tokens     *TokenAuthority
	// Now defaults to time.Now. Handlers read the clock once per request.
	Now func() time.Time
}

// NewHandler creates a new HTTP handler
func NewHandler(d Deps) *Handler {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Handler{
		principals: d.Principals,
		identity:   d.Identity,
		tenants:    d.Tenants,
		grants:     d.Grants,
		graph:      d.Graph,
		engine:     d.Engine,
		tokens:     d.Tokens,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		now:        now,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter, requestTimeout time.Duration) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", h.HealthCheck)
	r.Post("/signup", h.Signup)

	r.Group(func(r chi.Router) {
		r.Use(h.AuthMiddleware)
		r.Use(RequireActive)

		r.Get("/me/grants", h.ListMyGrants)

		r.Route("/tenants/{tenantID}", func(r chi.Router) {
			r.Get("/access", h.CheckAccess)
			r.Get("/grants", h.ListTenantGrants)
			r.Put("/grants/{professionalID}", h.UpsertGrant)
			r.Delete("/grants/{professionalID}", h.RevokeGrant)
			r.Post("/delegates", h.AddDelegate)
		})

		r.Route("/principals/{principalID}", func(r chi.Router) {
			r.Get("/permissions", h.ListPrincipalPermissions)
			r.Put("/roles/{roleName}", h.AssignRole)
			r.Delete("/roles/{roleName}", h.RevokeRole)
			r.Put("/permissions/{permissionName}", h.GrantPermission)
			r.Delete("/permissions/{permissionName}", h.RevokePermission)
			r.Post("/activate", h.ActivatePrincipal)
			r.Post("/deactivate", h.DeactivatePrincipal)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/principals", h.RegisterPrincipal)
			r.Post("/tenants/{tenantID}/suspend", h.SuspendTenant)
			r.Post("/tenants/{tenantID}/reactivate", h.ReactivateTenant)
			r.Post("/grants/sweep", h.SweepGrants)
		})
	})

	return r
}

// HealthCheck returns the health status
// @Summary Health Check
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "farmgate",
	})
}

// SignupRequest represents a new farm account
type SignupRequest struct {
	TenantName  string `json:"tenant_name" validate:"required,max=200" example:"Green Acres"`
	Username    string `json:"username" validate:"required,max=100" example:"jdoe"`
	Email       string `json:"email" validate:"omitempty,email" example:"owner@example.com"`
	DisplayName string `json:"display_name" validate:"max=200"`
	FarmName    string `json:"farm_name" validate:"max=200"`
	Phone       string `json:"phone" validate:"max=50"`
}

// Signup creates a tenant together with its owner
// @Summary Sign up
// @Tags Tenant
// @Accept json
// @Produce json
// @Param request body SignupRequest true "Account"
// @Success 201 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /signup [post]
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !h.decode(w, r, &req) {
		return
	}

	t, owner, err := h.tenants.Signup(r.Context(), tenant.SignupRequest{
		TenantName:  req.TenantName,
		Username:    req.Username,
		Email:       req.Email,
		DisplayName: req.DisplayName,
		FarmName:    req.FarmName,
		Phone:       req.Phone,
	}, h.now())
	if err != nil {
		respondServiceError(r, w, err, "failed to sign up")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"tenant":    tenantResponse(t),
		"principal": principalResponse(owner),
	})
}

// decode reads a JSON body into dst and validates it. It writes the error
// response and returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field()+" failed "+fe.Tag())
			}
			respondError(w, http.StatusBadRequest, "validation failed: "+strings.Join(fields, ", "))
			return false
		}
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func tenantContext(r *http.Request) requestctx.TenantContext {
	tc, _ := requestctx.FromContext(r.Context())
	return tc
}

// respondDecision writes the response for a denied decision. It returns true
// when the decision allowed the request and nothing was written.
func respondDecision(r *http.Request, w http.ResponseWriter, d authz.Decision) bool {
	if d.Allowed {
		return true
	}
	switch d.Reason {
	case authz.ReasonPrincipalInactive:
		respondError(w, http.StatusUnauthorized, string(d.Reason))
	case authz.ReasonEvaluationFailed:
		slog.ErrorContext(r.Context(), "authorization evaluation failed", logger.Error(d.Err))
		respondError(w, http.StatusServiceUnavailable, string(d.Reason))
	default:
		respondError(w, http.StatusForbidden, string(d.Reason))
	}
	return false
}

// statusForError maps domain errors onto HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, identity.ErrPrincipalNotFound),
		errors.Is(err, tenant.ErrTenantNotFound),
		errors.Is(err, grant.ErrNotFound),
		errors.Is(err, rbac.ErrRoleNotFound),
		errors.Is(err, rbac.ErrPermissionNotFound):
		return http.StatusNotFound
	case errors.Is(err, grant.ErrInvalidArgument),
		errors.Is(err, grant.ErrUnknownCapability),
		errors.Is(err, tenant.ErrInvalidTenant),
		errors.Is(err, rbac.ErrInvalidRole),
		errors.Is(err, identity.ErrInvalidLevel),
		errors.Is(err, identity.ErrHomeTenantRequired),
		errors.Is(err, identity.ErrHomeTenantNotAllowed),
		errors.Is(err, identity.ErrAttributesMismatch):
		return http.StatusBadRequest
	case errors.Is(err, identity.ErrCapacityExceeded),
		errors.Is(err, identity.ErrPrincipalAlreadyExists),
		errors.Is(err, tenant.ErrTenantAlreadyExists),
		errors.Is(err, tenant.ErrTenantSuspended),
		errors.Is(err, rbac.ErrRoleAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, tenant.ErrNotPermitted),
		errors.Is(err, identity.ErrNotPermitted),
		errors.Is(err, rbac.ErrSystemRole):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func respondServiceError(r *http.Request, w http.ResponseWriter, err error, fallback string) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), fallback, logger.Error(err))
		respondError(w, status, fallback)
		return
	}
	respondError(w, status, err.Error())
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
