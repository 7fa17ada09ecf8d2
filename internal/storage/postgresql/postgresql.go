// Package postgresql реализует storage.Storage поверх PostgreSQL
// (database/sql с драйвером pgx). Схема создаётся миграциями из каталога migrations.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/magabrotheeeer/paywall/internal/storage"
)

const uniqueViolation = "23505"

// DBTX общая часть *sql.DB и *sql.Tx, которой пользуются запросы.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var _ storage.Storage = (*Storage)(nil)

// Storage инкапсулирует соединение с базой данных PostgreSQL.
type Storage struct {
	*repo
	db *sql.DB
}

// New открывает пул соединений и проверяет доступность базы.
func New(ctx context.Context, storageConnectionString string) (*Storage, error) {
	const op = "storage.postgresql.New"

	db, err := sql.Open("pgx", storageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{repo: &repo{q: db}, db: db}, nil
}

// DB возвращает пул соединений, нужен для запуска миграций.
func (s *Storage) DB() *sql.DB {
	return s.db
}

// Close закрывает пул соединений.
func (s *Storage) Close() error {
	return s.db.Close()
}

// WithTx начинает транзакцию, выполняет fn и коммитит её при успехе.
// При ошибке или панике транзакция откатывается, паника пробрасывается дальше.
func (s *Storage) WithTx(ctx context.Context, fn storage.TxFunc) (err error) {
	const op = "storage.postgresql.WithTx"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if commitErr := tx.Commit(); commitErr != nil {
			err = fmt.Errorf("%s: %w", op, commitErr)
		}
	}()

	return fn(ctx, &repo{q: tx})
}

// repo выполняет запросы через q: пул вне транзакции или *sql.Tx внутри неё.
type repo struct {
	q DBTX
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
