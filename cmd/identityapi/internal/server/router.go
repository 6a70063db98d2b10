package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	orgsvc "github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/services/organization"
	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/telemetry"
)

// RouterOptions controls the construction of the identity HTTP router.
// Service, Users and Schemas are required; the rest is optional.
type RouterOptions struct {
	Service       *orgsvc.Service
	Users         *orgsvc.UserService
	Schemas       *SchemaSet
	Limiter       *RateLimiter
	Metrics       *telemetry.ServerMetrics
	CORSOptions   *cors.Options
	Middleware    []func(http.Handler) http.Handler
	HealthHandler http.HandlerFunc
}

// DefaultCORSOptions returns the shared development CORS policy.
func DefaultCORSOptions() cors.Options {
	return cors.Options{
		AllowedOrigins: []string{
			"http://localhost:5173",
			"http://127.0.0.1:5173",
		},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", UserIDHeader},
		ExposedHeaders: []string{"Retry-After"},
		MaxAge:         300,
	}
}

func defaultHealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// NewRouter assembles a chi.Router with shared middleware, the CORS policy
// and every identity route mounted.
func NewRouter(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	corsCfg := DefaultCORSOptions()
	if opts.CORSOptions != nil {
		corsCfg = *opts.CORSOptions
	}
	r.Use(cors.Handler(corsCfg))

	if opts.Metrics != nil {
		r.Use(MetricsMiddleware(opts.Metrics))
	}
	for _, mw := range opts.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	healthHandler := opts.HealthHandler
	if healthHandler == nil {
		healthHandler = defaultHealthHandler
	}
	r.Get("/health", healthHandler)

	h := &handlers{svc: opts.Service, users: opts.Users, schemas: opts.Schemas}
	r.Get("/permissions", h.listPermissions)

	r.Group(func(r chi.Router) {
		r.Use(RequireCaller)

		r.Post("/users", h.createUser)
		r.Get("/users/me", h.getMe)
		r.Put("/users/me", h.updateMe)
		r.Post("/users/me/deactivate", h.deactivateMe)
		r.Post("/users/me/activate", h.activateMe)
		r.Get("/users/me/organizations", h.listMyOrganizations)
		r.Get("/users/{userID}", h.getUser)

		r.Post("/organizations", h.createOrganization)
		r.Route("/organizations/{orgID}", func(r chi.Router) {
			r.Get("/", h.getOrganization)
			r.Put("/", h.updateOrganization)
			r.Put("/logo", h.updateLogo)
			r.Put("/banner", h.updateBanner)
			r.Post("/deactivate", h.deactivateOrganization)
			r.Post("/activate", h.activateOrganization)

			r.Get("/members", h.listMembers)
			r.Delete("/members/{userID}", h.removeMember)
			r.Get("/members/{userID}/roles", h.getMemberRoles)
			r.Post("/members/{userID}/roles/{roleID}", h.assignRole)
			r.Delete("/members/{userID}/roles/{roleID}", h.revokeRole)

			r.Get("/roles", h.listRoles)
			r.Post("/roles", h.createRole)
			r.Get("/roles/{roleID}", h.getRole)
			r.Put("/roles/{roleID}", h.updateRole)
			r.Delete("/roles/{roleID}", h.deleteRole)
			r.Put("/roles/{roleID}/permissions", h.updateRolePermissions)

			r.Get("/invitations", h.listInvitations)
			r.Post("/invitations", h.createInvitation)
			r.Get("/invitations/{invitationID}", h.getInvitation)

			// Token guessing is throttled per caller.
			r.Group(func(r chi.Router) {
				if opts.Limiter != nil {
					r.Use(opts.Limiter.Middleware)
				}
				r.Post("/invitations/{invitationID}/accept", h.acceptInvitation)
				r.Post("/invitations/{invitationID}/reject", h.rejectInvitation)
			})
		})
	})

	return r
}

// NewH2CHandler wraps the router with an h2c server to provide HTTP/2 over
// cleartext.
func NewH2CHandler(opts RouterOptions) http.Handler {
	return h2c.NewHandler(NewRouter(opts), &http2.Server{})
}
