package paywall

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/paywall/internal/config"
	"github.com/magabrotheeeer/paywall/internal/http/handlers/admin/processorder"
	"github.com/magabrotheeeer/paywall/internal/http/handlers/auth/devicelist"
	"github.com/magabrotheeeer/paywall/internal/http/handlers/auth/deviceremove"
	"github.com/magabrotheeeer/paywall/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/paywall/internal/http/handlers/auth/register"
	"github.com/magabrotheeeer/paywall/internal/http/handlers/health"
	"github.com/magabrotheeeer/paywall/internal/http/handlers/payment/createorder"
	"github.com/magabrotheeeer/paywall/internal/http/handlers/payment/notify"
	"github.com/magabrotheeeer/paywall/internal/http/handlers/payment/orderget"
	"github.com/magabrotheeeer/paywall/internal/http/handlers/payment/orderlist"
	"github.com/magabrotheeeer/paywall/internal/http/handlers/subscription/access"
	"github.com/magabrotheeeer/paywall/internal/http/handlers/subscription/cancel"
	"github.com/magabrotheeeer/paywall/internal/http/handlers/subscription/status"
	"github.com/magabrotheeeer/paywall/internal/http/handlers/subscription/trial"
	"github.com/magabrotheeeer/paywall/internal/http/middlewarectx"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, cfg config.HTTPServer, svc Services) {
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	limit := middlewarectx.RateLimitMiddleware(logger, cfg.RateLimit, cfg.RateBurst)

	// Открытые конечные точки
	r.Post("/auth/register", register.New(logger, svc.Auth).ServeHTTP)
	r.With(limit).Post("/auth/login", login.New(logger, svc.Auth).ServeHTTP)
	// Уведомления шлюза, подлинность проверяется подписью
	r.Post("/payment/notify", notify.New(logger, svc.Payments).ServeHTTP)

	// Группа с JWT аутентификацией
	r.Group(func(r chi.Router) {
		r.Use(middlewarectx.JWTMiddleware(svc.Auth, logger))

		r.Get("/auth/devices", devicelist.New(logger, svc.Devices).ServeHTTP)
		r.Delete("/auth/devices/{id}", deviceremove.New(logger, svc.Devices).ServeHTTP)

		r.With(limit).Post("/payment/create-order", createorder.New(logger, svc.Orders).ServeHTTP)
		r.Get("/payment/order/{orderId}", orderget.New(logger, svc.Orders).ServeHTTP)
		r.Get("/payment/orders", orderlist.New(logger, svc.Orders).ServeHTTP)

		r.Get("/subscription/status", status.New(logger, svc.Subscription).ServeHTTP)
		r.Post("/subscription/cancel", cancel.New(logger, svc.Subscription).ServeHTTP)
		r.Post("/subscription/trial", trial.New(logger, svc.Subscription).ServeHTTP)
		r.With(middlewarectx.SubscriptionStatusMiddleware(logger, svc.Subscription)).
			Get("/subscription/access", access.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.AdminOnly(logger))
			r.Post("/admin/orders/{orderId}/process", processorder.New(logger, svc.Orders).ServeHTTP)
		})
	})

	r.Get("/health", health.New(logger, svc.DB).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
