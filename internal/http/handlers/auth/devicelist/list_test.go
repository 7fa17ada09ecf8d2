package devicelist

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/paywall/internal/http/middlewarectx"
	"github.com/magabrotheeeer/paywall/internal/models"
)

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) ListDevices(ctx context.Context, accountID string) ([]*models.DeviceBinding, error) {
	args := m.Called(ctx, accountID)
	devices, _ := args.Get(0).([]*models.DeviceBinding)
	return devices, args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestDeviceListHandler(t *testing.T) {
	seen := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	devices := []*models.DeviceBinding{
		{ID: 1, AccountID: "acc-1", Fingerprint: "fp-1", Label: "phone", LastUsedAt: seen, CreatedAt: seen},
	}

	tests := []struct {
		name       string
		accountID  string
		setupMock  func(*ServiceMock)
		wantStatus int
		wantBody   string
	}{
		{
			name:      "success",
			accountID: "acc-1",
			setupMock: func(m *ServiceMock) {
				m.On("ListDevices", mock.Anything, "acc-1").Return(devices, nil).Once()
			},
			wantStatus: http.StatusOK,
			wantBody:   `"deviceId":"fp-1"`,
		},
		{
			name:       "unauthorized",
			setupMock:  func(_ *ServiceMock) {},
			wantStatus: http.StatusUnauthorized,
			wantBody:   "unauthorized",
		},
		{
			name:      "storage error",
			accountID: "acc-1",
			setupMock: func(m *ServiceMock) {
				m.On("ListDevices", mock.Anything, "acc-1").Return(nil, errors.New("db down")).Once()
			},
			wantStatus: http.StatusInternalServerError,
			wantBody:   "internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			tt.setupMock(svc)

			req := httptest.NewRequest(http.MethodGet, "/auth/devices", nil)
			if tt.accountID != "" {
				req = req.WithContext(context.WithValue(req.Context(), middlewarectx.AccountID, tt.accountID))
			}
			w := httptest.NewRecorder()

			New(newNoopLogger(), svc).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
			assert.NotContains(t, w.Body.String(), "acc-1")
			svc.AssertExpectations(t)
		})
	}
}
