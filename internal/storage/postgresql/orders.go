package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/paywall/internal/models"
)

func (r *repo) CreateOrder(ctx context.Context, order *models.PaymentOrder) (int64, error) {
	const op = "storage.postgresql.CreateOrder"

	var id int64
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO payment_orders (account_id, plan_id, amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		order.AccountID, order.PlanID, order.Amount, models.OrderStatusPending, order.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

func (r *repo) SetOrderTradeNo(ctx context.Context, id int64, tradeNo string) error {
	const op = "storage.postgresql.SetOrderTradeNo"

	res, err := r.q.ExecContext(ctx, `UPDATE payment_orders SET trade_no = $2 WHERE id = $1 AND trade_no IS NULL`, id, tradeNo)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		if _, err := r.GetOrder(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%s: order %d already has trade number", op, id)
	}
	return nil
}

const selectOrder = `SELECT id, account_id, plan_id, amount, status, COALESCE(trade_no, ''), created_at, paid_at FROM payment_orders`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.PaymentOrder, error) {
	var (
		o      models.PaymentOrder
		paidAt sql.NullTime
	)
	if err := row.Scan(&o.ID, &o.AccountID, &o.PlanID, &o.Amount, &o.Status, &o.TradeNo, &o.CreatedAt, &paidAt); err != nil {
		return nil, err
	}
	if paidAt.Valid {
		t := paidAt.Time
		o.PaidAt = &t
	}
	return &o, nil
}

func (r *repo) GetOrder(ctx context.Context, id int64) (*models.PaymentOrder, error) {
	const op = "storage.postgresql.GetOrder"

	o, err := scanOrder(r.q.QueryRowContext(ctx, selectOrder+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return o, nil
}

func (r *repo) MarkOrderPaid(ctx context.Context, id int64, paidAt time.Time) (bool, error) {
	const op = "storage.postgresql.MarkOrderPaid"

	res, err := r.q.ExecContext(ctx, `
		UPDATE payment_orders SET status = $2, paid_at = $3
		WHERE id = $1 AND status = $4`,
		id, models.OrderStatusPaid, paidAt, models.OrderStatusPending)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n == 1, nil
}

func (r *repo) listOrders(ctx context.Context, op, query string, args ...any) ([]*models.PaymentOrder, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	res := make([]*models.PaymentOrder, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		res = append(res, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

func (r *repo) ListOrdersByAccount(ctx context.Context, accountID string) ([]*models.PaymentOrder, error) {
	return r.listOrders(ctx, "storage.postgresql.ListOrdersByAccount",
		selectOrder+` WHERE account_id = $1 ORDER BY id DESC`, accountID)
}

func (r *repo) ListPaidOrdersSince(ctx context.Context, since time.Time) ([]*models.PaymentOrder, error) {
	return r.listOrders(ctx, "storage.postgresql.ListPaidOrdersSince",
		selectOrder+` WHERE status = $1 AND paid_at >= $2 ORDER BY id`, models.OrderStatusPaid, since)
}

func (r *repo) ListPendingOrdersBefore(ctx context.Context, before time.Time) ([]*models.PaymentOrder, error) {
	return r.listOrders(ctx, "storage.postgresql.ListPendingOrdersBefore",
		selectOrder+` WHERE status = $1 AND created_at < $2 ORDER BY id`, models.OrderStatusPending, before)
}
