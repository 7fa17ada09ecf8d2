// Package createorder обрабатывает покупку плана: создаёт заказ и возвращает
// адрес страницы оплаты в платёжном шлюзе.
package createorder

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/paywall/internal/http/middlewarectx"
	"github.com/magabrotheeeer/paywall/internal/http/response"
	"github.com/magabrotheeeer/paywall/internal/lib/sl"
	"github.com/magabrotheeeer/paywall/internal/models"
	"github.com/magabrotheeeer/paywall/internal/services/order"
)

// Request представляет запрос на покупку плана.
type Request struct {
	PlanType string `json:"planType" validate:"required"`
}

// Response ответ с созданным заказом.
type Response struct {
	Success    bool   `json:"success" example:"true"`
	OrderID    int64  `json:"orderId" example:"42"`
	Amount     string `json:"amount" example:"29.00"`
	PlanName   string `json:"planName" example:"Месячная подписка"`
	PaymentURL string `json:"paymentUrl" example:"https://pay.example.com/42"`
}

// Service определяет интерфейс оформления заказа.
type Service interface {
	Checkout(ctx context.Context, accountID, planID string) (*order.CheckoutResult, error)
}

// Handler обрабатывает запросы на создание заказа.
type Handler struct {
	log      *slog.Logger        // Логгер для записи информации и ошибок
	service  Service             // Сервис заказов
	validate *validator.Validate // Валидатор структуры входящих данных
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Создать заказ
// @Description Создаёт заказ на выбранный план и регистрирует его в платёжном шлюзе.
// @Tags Payments
// @Accept  json
// @Produce  json
// @Param request body Request true "Тип плана"
// @Success 200 {object} Response "Заказ создан"
// @Failure 400 {object} response.ErrorResponse "Неизвестный план или некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 429 {object} response.ErrorResponse "Слишком много запросов"
// @Failure 502 {object} response.ErrorResponse "Платёжный шлюз недоступен"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /payment/create-order [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.createorder"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	accountID, ok := middlewarectx.AccountIDFrom(r.Context())
	if !ok {
		log.Error("account id not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Warn("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	res, err := h.service.Checkout(r.Context(), accountID, req.PlanType)
	switch {
	case errors.Is(err, models.ErrInvalidPlan):
		log.Info("unknown plan requested", slog.String("plan", req.PlanType))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid plan type"))
		return
	case errors.Is(err, models.ErrGatewayUnavailable), errors.Is(err, models.ErrGatewayRejected):
		log.Error("payment gateway failed", sl.Account(accountID), sl.Err(err))
		w.WriteHeader(http.StatusBadGateway)
		render.JSON(w, r, response.Error("payment service is temporarily unavailable, please try again"))
		return
	case err != nil:
		log.Error("failed to create order", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	log.Info("order created", sl.Order(res.Order.ID), slog.String("plan", res.Plan.ID))
	render.JSON(w, r, Response{
		Success:    true,
		OrderID:    res.Order.ID,
		Amount:     models.FormatAmount(res.Order.Amount),
		PlanName:   res.Plan.Name,
		PaymentURL: res.PaymentURL,
	})
}
