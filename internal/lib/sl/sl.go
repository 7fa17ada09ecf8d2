// Package sl содержит вспомогательные функции для структурированных полей slog:
// ошибку и идентификаторы, по которым потом ищут записи о заказах и учётных записях.
package sl

import "log/slog"

// Err возвращает slog.Attr с ключом "error" и текстом ошибки.
//
// Пример:
//
//	log.Error("failed to settle order", sl.Err(err))
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.String("error", err.Error())
}

// Account идентификатор учётной записи.
func Account(id string) slog.Attr {
	return slog.String("account_id", id)
}

// Order идентификатор заказа.
func Order(id int64) slog.Attr {
	return slog.Int64("order_id", id)
}
