package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/parking-payments/internal/domain"
	"github.com/Dhoini/parking-payments/internal/repository"
	"github.com/Dhoini/parking-payments/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const orderColumns = `
	id, session_id, client_id, sum::text, authorized, paid, refund_request,
	refunded_sum::text, paid_card_pan, created_at, authorized_at, paid_at`

// PostgresOrderRepository реализация репозитория заказов через PostgreSQL
type PostgresOrderRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewPostgresOrderRepository создает новый репозиторий заказов
func NewPostgresOrderRepository(db *pgxpool.Pool, log *logger.Logger) *PostgresOrderRepository {
	return &PostgresOrderRepository{
		db:  db,
		log: log,
	}
}

// GetByID возвращает заказ по ID
func (r *PostgresOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	o, err := scanOrder(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}

// ListBySession возвращает заказы сессии в порядке создания
func (r *PostgresOrderRepository) ListBySession(ctx context.Context, sessionID int64) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE session_id = $1 ORDER BY created_at, id`
	return r.list(ctx, query, sessionID)
}

// ListAwaitingConfirmation возвращает авторизованные неоплаченные заказы
func (r *PostgresOrderRepository) ListAwaitingConfirmation(ctx context.Context, authorizedBefore time.Time) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE authorized AND NOT paid AND authorized_at < $1
		ORDER BY authorized_at`
	return r.list(ctx, query, authorizedBefore)
}

// Create создает новый заказ
func (r *PostgresOrderRepository) Create(ctx context.Context, o *domain.Order) error {
	query := `
		INSERT INTO orders (
			id, session_id, client_id, sum, authorized, paid, refund_request,
			refunded_sum, paid_card_pan, created_at, authorized_at, paid_at
		) VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8::numeric, $9, $10, $11, $12)
	`

	_, err := r.db.Exec(ctx, query,
		o.ID,
		o.SessionID,
		o.ClientID,
		o.Sum.String(),
		o.Authorized,
		o.Paid,
		o.RefundRequest,
		o.RefundedSum.String(),
		o.PaidCardPan,
		o.CreatedAt,
		o.AuthorizedAt,
		o.PaidAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	r.log.Debugw("Order created", "orderID", o.ID, "sum", o.Sum.String())
	return nil
}

// Update обновляет заказ
func (r *PostgresOrderRepository) Update(ctx context.Context, o *domain.Order) error {
	query := `
		UPDATE orders SET
			authorized = $2,
			paid = $3,
			refund_request = $4,
			refunded_sum = $5::numeric,
			paid_card_pan = $6,
			authorized_at = $7,
			paid_at = $8
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query,
		o.ID,
		o.Authorized,
		o.Paid,
		o.RefundRequest,
		o.RefundedSum.String(),
		o.PaidCardPan,
		o.AuthorizedAt,
		o.PaidAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete удаляет заказ вместе с историей платежей
func (r *PostgresOrderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *PostgresOrderRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Order, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}
	return orders, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o                domain.Order
		sum, refundedSum string
	)
	err := row.Scan(
		&o.ID,
		&o.SessionID,
		&o.ClientID,
		&sum,
		&o.Authorized,
		&o.Paid,
		&o.RefundRequest,
		&refundedSum,
		&o.PaidCardPan,
		&o.CreatedAt,
		&o.AuthorizedAt,
		&o.PaidAt,
	)
	if err != nil {
		return nil, err
	}
	if o.Sum, err = decimal.NewFromString(sum); err != nil {
		return nil, fmt.Errorf("invalid sum %q: %w", sum, err)
	}
	if o.RefundedSum, err = decimal.NewFromString(refundedSum); err != nil {
		return nil, fmt.Errorf("invalid refunded_sum %q: %w", refundedSum, err)
	}
	return &o, nil
}
