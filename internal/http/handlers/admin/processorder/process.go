// Package processorder реализует ручную обработку заказа администратором,
// когда уведомление шлюза так и не пришло.
package processorder

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/paywall/internal/http/middlewarectx"
	"github.com/magabrotheeeer/paywall/internal/http/response"
	"github.com/magabrotheeeer/paywall/internal/lib/sl"
	"github.com/magabrotheeeer/paywall/internal/models"
)

// Service описывает интерфейс ручной обработки заказа.
type Service interface {
	ProcessPendingOrder(ctx context.Context, orderID int64) (*models.PaymentOrder, error)
}

// Handler обрабатывает запросы на ручную обработку заказа.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Обработать заказ вручную
// @Description Переводит заказ в paid и продлевает подписку. Для оплаченного заказа ничего не меняет.
// @Tags Admin
// @Produce  json
// @Param orderId path int true "ID заказа"
// @Success 200 {object} response.Response "Заказ обработан"
// @Failure 400 {object} response.ErrorResponse "Некорректный id"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 403 {object} response.ErrorResponse "Нужна роль admin"
// @Failure 404 {object} response.ErrorResponse "Заказ не найден"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /admin/orders/{orderId}/process [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.processorder"

	adminID, _ := middlewarectx.AccountIDFrom(r.Context())
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("admin_id", adminID),
	)

	id, err := strconv.ParseInt(chi.URLParam(r, "orderId"), 10, 64)
	if err != nil || id <= 0 {
		log.Warn("failed to decode order id from url", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid order id"))
		return
	}

	o, err := h.service.ProcessPendingOrder(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrOrderNotFound) {
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("order not found"))
			return
		}
		log.Error("failed to process order", sl.Order(id), sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	log.Info("order processed by admin", sl.Order(id))
	render.JSON(w, r, response.OKWithData(o))
}
