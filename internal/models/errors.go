package models

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPlan          = errors.New("invalid plan")
	ErrOrderNotFound        = errors.New("order not found")
	ErrDeviceLimitExceeded  = errors.New("device limit exceeded")
	ErrDeviceNotFound       = errors.New("device not found")
	ErrTrialUsed            = errors.New("trial already used")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrAccountExists        = errors.New("account already exists")
	ErrAccountNotFound      = errors.New("account not found")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrGatewayUnavailable   = errors.New("payment gateway unavailable")
	ErrGatewayRejected      = errors.New("payment gateway rejected request")
)

// GatewayRejectedError ответ шлюза с ненулевым кодом ошибки.
type GatewayRejectedError struct {
	Code   int
	Reason string
}

func (e *GatewayRejectedError) Error() string {
	return fmt.Sprintf("payment gateway rejected request: errcode=%d: %s", e.Code, e.Reason)
}

// Is позволяет сравнивать через errors.Is(err, ErrGatewayRejected).
func (e *GatewayRejectedError) Is(target error) bool {
	return target == ErrGatewayRejected
}
