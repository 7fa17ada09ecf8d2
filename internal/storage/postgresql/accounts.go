package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/magabrotheeeer/paywall/internal/models"
)

func (r *repo) CreateAccount(ctx context.Context, acc *models.Account) error {
	const op = "storage.postgresql.CreateAccount"

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO accounts (id, email, password_hash, role, trial_used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		acc.ID, strings.ToLower(strings.TrimSpace(acc.Email)), acc.PasswordHash, acc.Role, acc.TrialUsed, acc.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrAccountExists
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

const selectAccount = `SELECT id, email, password_hash, role, trial_used, created_at FROM accounts`

func scanAccount(row *sql.Row) (*models.Account, error) {
	var acc models.Account
	err := row.Scan(&acc.ID, &acc.Email, &acc.PasswordHash, &acc.Role, &acc.TrialUsed, &acc.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (r *repo) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	const op = "storage.postgresql.GetAccountByEmail"

	acc, err := scanAccount(r.q.QueryRowContext(ctx, selectAccount+` WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email))))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return acc, nil
}

func (r *repo) GetAccountByID(ctx context.Context, id string) (*models.Account, error) {
	const op = "storage.postgresql.GetAccountByID"

	acc, err := scanAccount(r.q.QueryRowContext(ctx, selectAccount+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return acc, nil
}

func (r *repo) LockAccount(ctx context.Context, id string) error {
	const op = "storage.postgresql.LockAccount"

	var locked string
	err := r.q.QueryRowContext(ctx, `SELECT id FROM accounts WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *repo) ConsumeTrial(ctx context.Context, id string) (bool, error) {
	const op = "storage.postgresql.ConsumeTrial"

	res, err := r.q.ExecContext(ctx, `UPDATE accounts SET trial_used = TRUE WHERE id = $1 AND trial_used = FALSE`, id)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if n == 1 {
		return true, nil
	}

	if _, err := r.GetAccountByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}
