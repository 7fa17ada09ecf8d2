package trial

import (
	"context"
	"errors"
	"fmt"
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

type MockService struct {
	mock.Mock
}

func (m *MockService) StartTrial(ctx context.Context, accountID string) (*models.Subscription, error) {
	args := m.Called(ctx, accountID)
	sub, _ := args.Get(0).(*models.Subscription)
	return sub, args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestTrialHandler(t *testing.T) {
	start := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		accountID  string
		setupMock  func(*MockService)
		wantStatus int
		wantBody   string
	}{
		{
			name:      "trial opened",
			accountID: "acc-1",
			setupMock: func(m *MockService) {
				m.On("StartTrial", mock.Anything, "acc-1").Return(&models.Subscription{
					PlanID: models.PlanTrial, Status: models.SubscriptionStatusTrial,
					StartDate: start, EndDate: start.AddDate(0, 0, 3),
				}, nil).Once()
			},
			wantStatus: http.StatusCreated,
			wantBody:   `"endDate":"2025-04-04T09:00:00Z"`,
		},
		{
			name:      "already used",
			accountID: "acc-1",
			setupMock: func(m *MockService) {
				m.On("StartTrial", mock.Anything, "acc-1").
					Return(nil, fmt.Errorf("services.subscription.StartTrial: %w", models.ErrTrialUsed)).Once()
			},
			wantStatus: http.StatusConflict,
			wantBody:   "trial already used",
		},
		{
			name:       "unauthorized",
			setupMock:  func(_ *MockService) {},
			wantStatus: http.StatusUnauthorized,
			wantBody:   "unauthorized",
		},
		{
			name:      "storage error",
			accountID: "acc-1",
			setupMock: func(m *MockService) {
				m.On("StartTrial", mock.Anything, "acc-1").Return(nil, errors.New("db down")).Once()
			},
			wantStatus: http.StatusInternalServerError,
			wantBody:   "internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			req := httptest.NewRequest(http.MethodPost, "/subscription/trial", nil)
			if tt.accountID != "" {
				req = req.WithContext(context.WithValue(req.Context(), middlewarectx.AccountID, tt.accountID))
			}
			w := httptest.NewRecorder()

			New(newNoopLogger(), svc).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
			svc.AssertExpectations(t)
		})
	}
}
