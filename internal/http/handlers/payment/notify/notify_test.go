package notify

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/paywall/internal/services/payment"
)

type ProcessorMock struct {
	mock.Mock
}

func (m *ProcessorMock) HandleNotification(ctx context.Context, params map[string]string) string {
	return m.Called(ctx, params).String(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestNotifyHandler(t *testing.T) {
	form := url.Values{
		"trade_order_id": {"PW1_1743496200000"},
		"total_fee":      {"29.00"},
		"status":         {"OD"},
		"hash":           {"abc"},
	}

	tests := []struct {
		name  string
		reply string
	}{
		{name: "processed", reply: payment.ReplySuccess},
		{name: "rejected", reply: payment.ReplyFail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := new(ProcessorMock)
			proc.On("HandleNotification", mock.Anything, map[string]string{
				"trade_order_id": "PW1_1743496200000",
				"total_fee":      "29.00",
				"status":         "OD",
				"hash":           "abc",
			}).Return(tt.reply).Once()

			req := httptest.NewRequest(http.MethodPost, "/payment/notify", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			w := httptest.NewRecorder()

			New(newNoopLogger(), proc).ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.reply, w.Body.String())
			assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
			proc.AssertExpectations(t)
		})
	}
}

func TestNotifyHandler_MalformedForm(t *testing.T) {
	proc := new(ProcessorMock)

	req := httptest.NewRequest(http.MethodPost, "/payment/notify", strings.NewReader("%zz"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	New(newNoopLogger(), proc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, payment.ReplyFail, w.Body.String())
	proc.AssertNotCalled(t, "HandleNotification", mock.Anything, mock.Anything)
}
