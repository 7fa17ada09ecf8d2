// Package models содержит доменные структуры сервиса: учётную запись,
// платёжный заказ, подписку, привязку устройства и тарифный план.
// Структуры используются в бизнес‑логике и при работе с хранилищем.
package models

import "time"

const (
	// RoleUser роль обычного пользователя.
	RoleUser = "user"
	// RoleAdmin роль администратора, на неё не распространяется лимит устройств.
	RoleAdmin = "admin"
)

// Account представляет зарегистрированную учётную запись.
type Account struct {
	ID           string    // Уникальный идентификатор (uuid)
	Email        string    // Электронная почта, уникальна
	PasswordHash string    // bcrypt-хэш пароля
	Role         string    // user или admin
	TrialUsed    bool      // Пробный период уже использован, сбрасывается никогда
	CreatedAt    time.Time // Дата регистрации
}

// IsAdmin сообщает, является ли учётная запись администраторской.
func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}
