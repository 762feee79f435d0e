package rest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	limiterlib "github.com/ulule/limiter/v3"

	errors "github.com/frahmantamala/client-portal/internal"
	"github.com/frahmantamala/client-portal/internal/auth"
	usermodel "github.com/frahmantamala/client-portal/internal/core/datamodel/user"
	"github.com/frahmantamala/client-portal/internal/notification"
	"github.com/frahmantamala/client-portal/internal/payment"
	"github.com/frahmantamala/client-portal/internal/transport"
	"github.com/frahmantamala/client-portal/internal/transport/middleware"
	"github.com/frahmantamala/client-portal/internal/transport/swagger"
	"github.com/frahmantamala/client-portal/internal/user"
)

// Handlers groups everything the router mounts. Nil handlers and limiters are skipped.
type Handlers struct {
	Health       *HealthHandler
	Auth         *auth.Handler
	User         *user.Handler
	Payment      *payment.Handler
	Webhook      *payment.WebhookHandler
	Notification *notification.Handler
	Docs         *swagger.Document

	LoginLimiter   *limiterlib.Limiter
	WebhookLimiter *limiterlib.Limiter
}

func RegisterAllRoutes(router *chi.Mux, h Handlers, logger *slog.Logger) {
	base := transport.NewBaseHandler(logger)

	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		base.HandleError(w, errors.NewNotFoundError("route not found", errors.ErrCodeNotFound))
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		base.HandleError(w, &errors.AppError{
			Type:       errors.ErrorTypeValidation,
			Code:       errors.ErrCodeMethodNotAllowed,
			Message:    "method not allowed",
			StatusCode: http.StatusMethodNotAllowed,
		})
	})

	if h.Docs != nil {
		router.Method(http.MethodGet, swagger.DocumentPath, h.Docs)
		router.Handle("/swagger/*", swagger.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		if h.Health != nil {
			r.Get("/ping", h.Health.Ping)
			r.Get("/health", h.Health.Health)
		}

		if h.Webhook != nil {
			r.With(limit(h.WebhookLimiter, "webhook", logger)...).
				Post("/payments/webhook", h.Webhook.HandleWebhook)
		}

		if h.Auth == nil {
			return
		}

		r.With(limit(h.LoginLimiter, "login", logger)...).
			Post("/auth/login", h.Auth.Login)

		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)

			if h.User != nil {
				pr.Get("/users/me", h.User.GetCurrentUser)
			}

			if h.Payment != nil {
				pr.Post("/payments", h.Payment.Create)
				pr.Get("/payments", h.Payment.List)
				pr.Get("/payments/stats", h.Payment.Stats)
				pr.Get("/payments/success", h.Payment.Success)
				pr.Get("/payments/cancel", h.Payment.Cancel)
				pr.Get("/payments/{id}", h.Payment.Get)

				pr.Group(func(ar chi.Router) {
					ar.Use(h.Auth.RequireRole(usermodel.RoleAdmin))
					ar.Get("/admin/payments/{id}/gateway-session", h.Payment.GatewaySession)
				})
			}

			if h.Notification != nil {
				pr.Get("/notifications", h.Notification.List)
				pr.Get("/notifications/unread-count", h.Notification.UnreadCount)
				pr.Post("/notifications/read", h.Notification.MarkRead)
			}
		})
	})
}

func limit(lim *limiterlib.Limiter, route string, logger *slog.Logger) []func(http.Handler) http.Handler {
	if lim == nil {
		return nil
	}
	return []func(http.Handler) http.Handler{middleware.RateLimit(lim, route, logger)}
}
