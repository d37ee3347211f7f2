package http

import (
	"net/http"

	"github.com/erinder/internal/application/reminder"
	"github.com/erinder/internal/config"
	jwtinfra "github.com/erinder/internal/infrastructure/jwt"
	"github.com/erinder/internal/transport/http/handler"
	appmiddleware "github.com/erinder/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Deps holds all dependencies for the router.
type Deps struct {
	ReminderRepo ReminderRepository
	Codes        handler.CodeManager
	// JWTVerifier is nil when no public key is configured; reminder routes are then open.
	JWTVerifier *jwtinfra.Verifier
	Logger      *zap.Logger
	// Done stops background work such as limiter cleanup.
	Done <-chan struct{}
}

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(appmiddleware.RequestLogger(deps.Logger.Named("http")))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var authMw func(http.Handler) http.Handler
	if deps.JWTVerifier != nil {
		authMw = appmiddleware.Auth(deps.JWTVerifier)
	} else {
		authMw = func(next http.Handler) http.Handler { return next }
	}

	// 5 requests/second, burst of 10, on verification endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10, cfg.TrustProxyHeaders, deps.Done)

	reminderSvc := reminder.NewService(deps.ReminderRepo)

	healthH := handler.NewHealthHandler()
	verifyH := handler.NewVerificationHandler(deps.Codes)
	reminderH := handler.NewReminderHandler(reminderSvc)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.Post("/health-check/{action}", healthH.Ping)
		r.With(sensitiveRL.Limit).Post("/verification/send", verifyH.Send)
		r.With(sensitiveRL.Limit).Post("/verification/verify", verifyH.Verify)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.With(sensitiveRL.Limit).Get("/verification/status", verifyH.Status)
			r.Get("/reminders", reminderH.List)
			r.Post("/reminders", reminderH.Create)
			r.Delete("/reminders", reminderH.DeleteAll)
			r.Get("/reminders/{id}", reminderH.Get)
			r.Put("/reminders/{id}", reminderH.Update)
			r.Delete("/reminders/{id}", reminderH.Delete)
		})
	})

	return r
}
