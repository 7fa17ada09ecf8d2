// Package notify принимает асинхронные уведомления платёжного шлюза.
//
// Шлюз присылает form-encoded параметры и ждёт в ответ ровно "success" или "fail"
// текстом. На любой ответ, кроме "success", шлюз повторяет доставку.
package notify

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/paywall/internal/lib/sign"
	"github.com/magabrotheeeer/paywall/internal/lib/sl"
	"github.com/magabrotheeeer/paywall/internal/services/payment"
)

// maxBodyBytes ограничение размера тела уведомления.
const maxBodyBytes = 64 << 10

// Processor обрабатывает параметры уведомления и возвращает ответ для шлюза.
type Processor interface {
	HandleNotification(ctx context.Context, params map[string]string) string
}

// Handler обрабатывает уведомления шлюза.
type Handler struct {
	log       *slog.Logger
	processor Processor
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, processor Processor) *Handler {
	return &Handler{log: log, processor: processor}
}

// ServeHTTP godoc
// @Summary Уведомление об оплате
// @Description Вызывается платёжным шлюзом. Ответ всегда 200 с телом success или fail.
// @Tags Payments
// @Accept  x-www-form-urlencoded
// @Produce  plain
// @Success 200 {string} string "success или fail"
// @Router /payment/notify [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.notify"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		log.Warn("failed to parse notification form", sl.Err(err))
		render.PlainText(w, r, payment.ReplyFail)
		return
	}

	render.PlainText(w, r, h.processor.HandleNotification(r.Context(), sign.FromValues(r.Form)))
}
