package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/paywall/internal/models"
)

const selectSubscription = `SELECT id, account_id, plan_id, status, start_date, end_date, auto_renew, created_at, updated_at FROM subscriptions`

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var s models.Subscription
	err := row.Scan(&s.ID, &s.AccountID, &s.PlanID, &s.Status, &s.StartDate, &s.EndDate, &s.AutoRenew, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repo) GetCurrentSubscription(ctx context.Context, accountID string, now time.Time) (*models.Subscription, error) {
	const op = "storage.postgresql.GetCurrentSubscription"

	s, err := scanSubscription(r.q.QueryRowContext(ctx, selectSubscription+`
		WHERE account_id = $1 AND status IN ($2, $3, $4) AND end_date > $5
		ORDER BY end_date DESC, id DESC
		LIMIT 1`,
		accountID,
		models.SubscriptionStatusActive, models.SubscriptionStatusTrial, models.SubscriptionStatusCancelled,
		now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

func (r *repo) GetLatestSubscription(ctx context.Context, accountID string) (*models.Subscription, error) {
	const op = "storage.postgresql.GetLatestSubscription"

	s, err := scanSubscription(r.q.QueryRowContext(ctx, selectSubscription+`
		WHERE account_id = $1 ORDER BY end_date DESC, id DESC LIMIT 1`, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

func (r *repo) GetSubscription(ctx context.Context, id int64) (*models.Subscription, error) {
	const op = "storage.postgresql.GetSubscription"

	s, err := scanSubscription(r.q.QueryRowContext(ctx, selectSubscription+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

func (r *repo) CreateSubscription(ctx context.Context, sub *models.Subscription) (int64, error) {
	const op = "storage.postgresql.CreateSubscription"

	var id int64
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO subscriptions (account_id, plan_id, status, start_date, end_date, auto_renew, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		sub.AccountID, sub.PlanID, sub.Status, sub.StartDate, sub.EndDate, sub.AutoRenew, sub.CreatedAt, sub.UpdatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

func (r *repo) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	const op = "storage.postgresql.UpdateSubscription"

	res, err := r.q.ExecContext(ctx, `
		UPDATE subscriptions
		SET plan_id = $2, status = $3, end_date = $4, auto_renew = $5, updated_at = $6
		WHERE id = $1`,
		sub.ID, sub.PlanID, sub.Status, sub.EndDate, sub.AutoRenew, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return models.ErrSubscriptionNotFound
	}
	return nil
}

func (r *repo) ExpireSubscriptions(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.postgresql.ExpireSubscriptions"

	res, err := r.q.ExecContext(ctx, `
		UPDATE subscriptions SET status = $1, updated_at = $2
		WHERE status IN ($3, $4) AND end_date <= $2`,
		models.SubscriptionStatusExpired, now, models.SubscriptionStatusActive, models.SubscriptionStatusTrial)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

func (r *repo) ListSubscriptionsExpiringBetween(ctx context.Context, from, to time.Time) ([]models.ExpiringSubscription, error) {
	const op = "storage.postgresql.ListSubscriptionsExpiringBetween"

	rows, err := r.q.QueryContext(ctx, `
		SELECT s.id, s.account_id, a.email, s.plan_id, s.end_date
		FROM subscriptions s
		JOIN accounts a ON a.id = s.account_id
		WHERE s.status IN ($1, $2) AND s.end_date >= $3 AND s.end_date < $4
		ORDER BY s.id`,
		models.SubscriptionStatusActive, models.SubscriptionStatusTrial, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	res := make([]models.ExpiringSubscription, 0)
	for rows.Next() {
		var e models.ExpiringSubscription
		if err := rows.Scan(&e.SubscriptionID, &e.AccountID, &e.Email, &e.PlanID, &e.EndDate); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		res = append(res, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}
