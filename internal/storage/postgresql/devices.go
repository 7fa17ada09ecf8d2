package postgresql

import (
	"context"
	"fmt"
	"time"

	"github.com/magabrotheeeer/paywall/internal/models"
)

func (r *repo) ListDevices(ctx context.Context, accountID string) ([]*models.DeviceBinding, error) {
	const op = "storage.postgresql.ListDevices"

	rows, err := r.q.QueryContext(ctx, `
		SELECT id, account_id, fingerprint, label, last_used_at, created_at
		FROM device_bindings WHERE account_id = $1 ORDER BY id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	res := make([]*models.DeviceBinding, 0)
	for rows.Next() {
		var d models.DeviceBinding
		if err := rows.Scan(&d.ID, &d.AccountID, &d.Fingerprint, &d.Label, &d.LastUsedAt, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		res = append(res, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

func (r *repo) CreateDevice(ctx context.Context, d *models.DeviceBinding) (int64, error) {
	const op = "storage.postgresql.CreateDevice"

	var id int64
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO device_bindings (account_id, fingerprint, label, last_used_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		d.AccountID, d.Fingerprint, d.Label, d.LastUsedAt, d.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

func (r *repo) TouchDevice(ctx context.Context, id int64, at time.Time) error {
	const op = "storage.postgresql.TouchDevice"

	res, err := r.q.ExecContext(ctx, `UPDATE device_bindings SET last_used_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return models.ErrDeviceNotFound
	}
	return nil
}

func (r *repo) DeleteDevice(ctx context.Context, accountID string, id int64) (bool, error) {
	const op = "storage.postgresql.DeleteDevice"

	res, err := r.q.ExecContext(ctx, `DELETE FROM device_bindings WHERE id = $1 AND account_id = $2`, id, accountID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n == 1, nil
}
