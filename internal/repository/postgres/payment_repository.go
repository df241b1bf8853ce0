package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dhoini/parking-payments/internal/domain"
	"github.com/Dhoini/parking-payments/internal/repository"
	"github.com/Dhoini/parking-payments/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const paymentColumns = `
	id, COALESCE(payment_id, ''), order_id, status, error_code, error_category,
	error_message, error_description, payment_url, created_at, updated_at`

// PostgresPaymentRepository реализация репозитория платежей через PostgreSQL
type PostgresPaymentRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewPostgresPaymentRepository создает новый репозиторий платежей
func NewPostgresPaymentRepository(db *pgxpool.Pool, log *logger.Logger) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{
		db:  db,
		log: log,
	}
}

// GetByPaymentID возвращает платеж по идентификатору эквайринга
func (r *PostgresPaymentRepository) GetByPaymentID(ctx context.Context, paymentID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE payment_id = $1`

	p, err := scanPayment(r.db.QueryRow(ctx, query, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

// ListByOrder возвращает платежи заказа, самый свежий первым
func (r *PostgresPaymentRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []*domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}
	return payments, nil
}

// Create создает новый платеж
func (r *PostgresPaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	query := `
		INSERT INTO payments (
			id, payment_id, order_id, status, error_code, error_category,
			error_message, error_description, payment_url, created_at, updated_at
		) VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.Exec(ctx, query,
		p.ID, p.PaymentID, p.OrderID, string(p.Status),
		p.ErrorCode, p.ErrorCategory, p.ErrorMessage, p.ErrorDescription,
		p.PaymentURL, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// Update обновляет платеж
func (r *PostgresPaymentRepository) Update(ctx context.Context, p *domain.Payment) error {
	query := `
		UPDATE payments SET
			payment_id = NULLIF($2, ''),
			status = $3,
			error_code = $4,
			error_category = $5,
			error_message = $6,
			error_description = $7,
			payment_url = $8,
			updated_at = $9
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query,
		p.ID, p.PaymentID, string(p.Status),
		p.ErrorCode, p.ErrorCategory, p.ErrorMessage, p.ErrorDescription,
		p.PaymentURL, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var (
		p      domain.Payment
		status string
	)
	err := row.Scan(
		&p.ID, &p.PaymentID, &p.OrderID, &status,
		&p.ErrorCode, &p.ErrorCategory, &p.ErrorMessage, &p.ErrorDescription,
		&p.PaymentURL, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = domain.PaymentStatus(status)
	return &p, nil
}
