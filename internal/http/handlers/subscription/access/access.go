// Package access отвечает на проверку доступа к платному контенту.
// Сама проверка выполняется middleware SubscriptionStatusMiddleware.
package access

import (
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/paywall/internal/http/response"
)

// ServeHTTP godoc
// @Summary Проверка доступа
// @Tags Subscription
// @Produce  json
// @Success 200 {object} response.Response "Доступ есть"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 403 {object} response.ErrorResponse "Нет действующей подписки"
// @Router /subscription/access [get]
// @Security BearerAuth
func ServeHTTP(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, response.OKWithData(map[string]any{"hasAccess": true}))
}
