package sender

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/paywall/internal/lib/smtp"
)

type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Connect() (smtp.Client, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(smtp.Client), args.Error(1)
}

func (m *MockTransport) GetSMTPUser() string {
	args := m.Called()
	return args.String(0)
}

type MockSMTPClient struct {
	mock.Mock
}

func (m *MockSMTPClient) Mail(from string) error {
	return m.Called(from).Error(0)
}

func (m *MockSMTPClient) Rcpt(to string) error {
	return m.Called(to).Error(0)
}

func (m *MockSMTPClient) Data() (io.WriteCloser, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.WriteCloser), args.Error(1)
}

func (m *MockSMTPClient) Close() error {
	return m.Called().Error(0)
}

func (m *MockSMTPClient) Quit() error {
	return m.Called().Error(0)
}

// bufferWriter собирает тело письма.
type bufferWriter struct {
	bytes.Buffer
	closeErr error
}

func (w *bufferWriter) Close() error { return w.closeErr }

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func expectDelivery(tr *MockTransport, client *MockSMTPClient, w *bufferWriter, to string) {
	tr.On("GetSMTPUser").Return("noreply@example.com")
	tr.On("Connect").Return(client, nil).Once()
	client.On("Mail", "noreply@example.com").Return(nil).Once()
	client.On("Rcpt", to).Return(nil).Once()
	client.On("Data").Return(w, nil).Once()
	client.On("Quit").Return(nil).Once()
	client.On("Close").Return(nil).Once()
}

const paidBody = `{"order_id":42,"account_id":"acc-1","email":"user@example.com","plan_id":"monthly","amount":2900,"end_date":"2025-05-02T08:30:00Z"}`

func TestService_SendPaymentReceived(t *testing.T) {
	tr := new(MockTransport)
	client := new(MockSMTPClient)
	w := &bufferWriter{}
	expectDelivery(tr, client, w, "user@example.com")

	svc := NewService(tr, newNoopLogger())
	require.NoError(t, svc.SendPaymentReceived([]byte(paidBody)))

	msg := w.String()
	assert.Contains(t, msg, "To: user@example.com")
	assert.Contains(t, msg, "From: noreply@example.com")
	assert.Contains(t, msg, "№42")
	assert.Contains(t, msg, "29.00")
	assert.Contains(t, msg, "Месячная подписка")
	assert.Contains(t, msg, "02.05.2025")
	tr.AssertExpectations(t)
	client.AssertExpectations(t)
}

func TestService_SendExpiringReminder(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantSubject string
	}{
		{
			name:        "paid plan",
			body:        `{"account_id":"acc-1","email":"user@example.com","plan_id":"yearly","end_date":"2025-05-02T08:30:00Z"}`,
			wantSubject: "Subject: Подписка заканчивается завтра",
		},
		{
			name:        "trial",
			body:        `{"account_id":"acc-1","email":"user@example.com","plan_id":"trial","end_date":"2025-05-02T08:30:00Z"}`,
			wantSubject: "Subject: Пробный период заканчивается завтра",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := new(MockTransport)
			client := new(MockSMTPClient)
			w := &bufferWriter{}
			expectDelivery(tr, client, w, "user@example.com")

			svc := NewService(tr, newNoopLogger())
			require.NoError(t, svc.SendExpiringReminder([]byte(tt.body)))

			assert.Contains(t, w.String(), tt.wantSubject)
			assert.Contains(t, w.String(), "02.05.2025 08:30")
			client.AssertExpectations(t)
		})
	}
}

func TestService_SendErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setupMocks func(tr *MockTransport, client *MockSMTPClient)
		errContain string
	}{
		{
			name:       "invalid JSON",
			body:       `invalid json`,
			setupMocks: func(_ *MockTransport, _ *MockSMTPClient) {},
			errContain: "SendPaymentReceived",
		},
		{
			name:       "no recipient",
			body:       `{"order_id":42,"plan_id":"monthly","amount":2900}`,
			setupMocks: func(_ *MockTransport, _ *MockSMTPClient) {},
			errContain: "without recipient",
		},
		{
			name: "SMTP connection error",
			body: paidBody,
			setupMocks: func(tr *MockTransport, _ *MockSMTPClient) {
				tr.On("GetSMTPUser").Return("noreply@example.com")
				tr.On("Connect").Return(nil, errors.New("connection refused")).Once()
			},
			errContain: "connection refused",
		},
		{
			name: "recipient rejected",
			body: paidBody,
			setupMocks: func(tr *MockTransport, client *MockSMTPClient) {
				tr.On("GetSMTPUser").Return("noreply@example.com")
				tr.On("Connect").Return(client, nil).Once()
				client.On("Mail", "noreply@example.com").Return(nil).Once()
				client.On("Rcpt", "user@example.com").Return(errors.New("550 mailbox unavailable")).Once()
				client.On("Close").Return(nil).Once()
			},
			errContain: "550",
		},
		{
			name: "data close fails",
			body: paidBody,
			setupMocks: func(tr *MockTransport, client *MockSMTPClient) {
				tr.On("GetSMTPUser").Return("noreply@example.com")
				tr.On("Connect").Return(client, nil).Once()
				client.On("Mail", "noreply@example.com").Return(nil).Once()
				client.On("Rcpt", "user@example.com").Return(nil).Once()
				client.On("Data").Return(&bufferWriter{closeErr: errors.New("452 too much mail")}, nil).Once()
				client.On("Close").Return(nil).Once()
			},
			errContain: "452",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := new(MockTransport)
			client := new(MockSMTPClient)
			tt.setupMocks(tr, client)

			svc := NewService(tr, newNoopLogger())
			err := svc.SendPaymentReceived([]byte(tt.body))

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContain)
			tr.AssertExpectations(t)
			client.AssertExpectations(t)
		})
	}
}
