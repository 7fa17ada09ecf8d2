// Package deviceremove реализует HTTP-обработчик отвязки устройства.
package deviceremove

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

// Service описывает интерфейс удаления привязки устройства.
type Service interface {
	RemoveDevice(ctx context.Context, accountID string, bindingID int64) error
}

// Handler обрабатывает запросы на отвязку устройства.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Отвязать устройство
// @Description Освобождает место в лимите устройств. Чужое устройство неотличимо от отсутствующего.
// @Tags Auth
// @Produce  json
// @Param id path int true "ID привязки"
// @Success 200 {object} response.Response "Устройство отвязано"
// @Failure 400 {object} response.ErrorResponse "Некорректный id"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Устройство не найдено"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /auth/devices/{id} [delete]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.deviceremove"

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

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		log.Warn("failed to decode id from url", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid device id"))
		return
	}

	if err := h.service.RemoveDevice(r.Context(), accountID, id); err != nil {
		if errors.Is(err, models.ErrDeviceNotFound) {
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("device not found"))
			return
		}
		log.Error("failed to remove device", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	log.Info("device removed", sl.Account(accountID), slog.Int64("binding_id", id))
	render.JSON(w, r, response.OKWithData(map[string]any{"removed": id}))
}
