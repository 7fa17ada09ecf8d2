package models

import "time"

// MaxDevicesPerAccount лимит одновременно привязанных устройств для не-администратора.
const MaxDevicesPerAccount = 2

// DeviceBinding привязка клиентского устройства к учётной записи.
type DeviceBinding struct {
	ID          int64     `json:"id"`
	AccountID   string    `json:"-"`
	Fingerprint string    `json:"deviceId"`
	Label       string    `json:"deviceName"`
	LastUsedAt  time.Time `json:"lastUsedAt"`
	CreatedAt   time.Time `json:"createdAt"`
}
