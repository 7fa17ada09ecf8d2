package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/paywall/internal/http/response"
	"github.com/magabrotheeeer/paywall/internal/lib/sl"
	"github.com/magabrotheeeer/paywall/internal/models"
)

// SubscriptionService определяет интерфейс для получения текущей подписки.
type SubscriptionService interface {
	GetActive(ctx context.Context, accountID string) (*models.Subscription, error)
}

// SubscriptionStatusMiddleware пропускает запрос, только если у учётной записи есть
// действующая подписка (в том числе пробная или отменённая, но не истёкшая).
func SubscriptionStatusMiddleware(log *slog.Logger, subService SubscriptionService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID, ok := AccountIDFrom(r.Context())
			if !ok {
				log.Error("account identification missing")
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.Error("account identification missing"))
				return
			}

			sub, err := subService.GetActive(r.Context(), accountID)
			if err != nil {
				log.Error("failed to get subscription", sl.Account(accountID), sl.Err(err))
				w.WriteHeader(http.StatusInternalServerError)
				render.JSON(w, r, response.Error("internal service error"))
				return
			}

			if sub == nil {
				log.Info("no active subscription, access denied", sl.Account(accountID))
				w.WriteHeader(http.StatusForbidden)
				render.JSON(w, r, response.Error("subscription required"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
