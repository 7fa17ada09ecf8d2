package processorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/paywall/internal/models"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) ProcessPendingOrder(ctx context.Context, orderID int64) (*models.PaymentOrder, error) {
	args := m.Called(ctx, orderID)
	o, _ := args.Get(0).(*models.PaymentOrder)
	return o, args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestProcessOrderHandler(t *testing.T) {
	tests := []struct {
		name       string
		orderID    string
		setupMock  func(*MockService)
		wantStatus int
		wantBody   string
	}{
		{
			name:    "processed",
			orderID: "42",
			setupMock: func(m *MockService) {
				m.On("ProcessPendingOrder", mock.Anything, int64(42)).
					Return(&models.PaymentOrder{ID: 42, Status: models.OrderStatusPaid}, nil).Once()
			},
			wantStatus: http.StatusOK,
			wantBody:   `"status":"paid"`,
		},
		{
			name:       "bad id",
			orderID:    "x",
			setupMock:  func(_ *MockService) {},
			wantStatus: http.StatusBadRequest,
			wantBody:   "invalid order id",
		},
		{
			name:    "missing order",
			orderID: "43",
			setupMock: func(m *MockService) {
				m.On("ProcessPendingOrder", mock.Anything, int64(43)).
					Return(nil, fmt.Errorf("services.order.ProcessPendingOrder: %w", models.ErrOrderNotFound)).Once()
			},
			wantStatus: http.StatusNotFound,
			wantBody:   "order not found",
		},
		{
			name:    "storage error",
			orderID: "44",
			setupMock: func(m *MockService) {
				m.On("ProcessPendingOrder", mock.Anything, int64(44)).Return(nil, errors.New("db down")).Once()
			},
			wantStatus: http.StatusInternalServerError,
			wantBody:   "internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			req := httptest.NewRequest(http.MethodPost, "/admin/orders/"+tt.orderID+"/process", nil)
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("orderId", tt.orderID)
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
			w := httptest.NewRecorder()

			New(newNoopLogger(), svc).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
			svc.AssertExpectations(t)
		})
	}
}
