package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dhoini/parking-payments/internal/domain"
	"github.com/Dhoini/parking-payments/internal/repository"
	"github.com/Dhoini/parking-payments/pkg/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

const sessionColumns = `
	id, vendor_session_id, parking_id, client_id, debt::text, state, client_state,
	started_at, updated_at, completed_at, is_suspended, suspended_at,
	try_refund, target_refund_sum::text, current_refund_sum::text, created_at`

// PostgresSessionRepository реализация репозитория сессий через PostgreSQL
type PostgresSessionRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewPostgresSessionRepository создает новый репозиторий сессий через PostgreSQL
func NewPostgresSessionRepository(db *pgxpool.Pool, log *logger.Logger) *PostgresSessionRepository {
	return &PostgresSessionRepository{
		db:  db,
		log: log,
	}
}

// GetByID возвращает сессию по ID
func (r *PostgresSessionRepository) GetByID(ctx context.Context, id int64) (*domain.ParkingSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM parking_sessions WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByVendorSessionID ищет сессию по идентификатору вендора
func (r *PostgresSessionRepository) GetByVendorSessionID(ctx context.Context, parkingID int64, vendorSessionID string) (*domain.ParkingSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM parking_sessions WHERE parking_id = $1 AND vendor_session_id = $2`
	return r.getOne(ctx, query, parkingID, vendorSessionID)
}

// Create создает новую сессию
func (r *PostgresSessionRepository) Create(ctx context.Context, s *domain.ParkingSession) error {
	s.ResolveClientStatus()
	query := `
		INSERT INTO parking_sessions (
			vendor_session_id, parking_id, client_id, debt, state, client_state,
			started_at, updated_at, completed_at, is_suspended, suspended_at,
			try_refund, target_refund_sum, current_refund_sum
		) VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10, $11, $12, $13::numeric, $14::numeric)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(ctx, query,
		s.VendorSessionID,
		s.ParkingID,
		s.ClientID,
		s.Debt.String(),
		int(s.State),
		int(s.ClientState),
		s.StartedAt,
		s.UpdatedAt,
		s.CompletedAt,
		s.IsSuspended,
		s.SuspendedAt,
		s.TryRefund,
		s.TargetRefundSum.String(),
		s.CurrentRefundSum.String(),
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to create session: %w", err)
	}

	r.log.Debugw("Session created", "sessionID", s.ID, "vendorSessionID", s.VendorSessionID)
	return nil
}

// Update обновляет сессию
func (r *PostgresSessionRepository) Update(ctx context.Context, s *domain.ParkingSession) error {
	s.ResolveClientStatus()
	query := `
		UPDATE parking_sessions SET
			client_id = $2,
			debt = $3::numeric,
			state = $4,
			client_state = $5,
			updated_at = $6,
			completed_at = $7,
			is_suspended = $8,
			suspended_at = $9,
			try_refund = $10,
			target_refund_sum = $11::numeric,
			current_refund_sum = $12::numeric
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query,
		s.ID,
		s.ClientID,
		s.Debt.String(),
		int(s.State),
		int(s.ClientState),
		s.UpdatedAt,
		s.CompletedAt,
		s.IsSuspended,
		s.SuspendedAt,
		s.TryRefund,
		s.TargetRefundSum.String(),
		s.CurrentRefundSum.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListBillable возвращает сессии, которые еще не отменены и не закрыты
func (r *PostgresSessionRepository) ListBillable(ctx context.Context) ([]int64, error) {
	return r.listIDs(ctx, `SELECT id FROM parking_sessions WHERE state NOT IN ($1, $2) ORDER BY id`,
		int(domain.SessionCanceled), int(domain.SessionClosed))
}

// ListRefundPending возвращает сессии, ожидающие возврата
func (r *PostgresSessionRepository) ListRefundPending(ctx context.Context) ([]int64, error) {
	return r.listIDs(ctx, `SELECT id FROM parking_sessions WHERE try_refund ORDER BY id`)
}

func (r *PostgresSessionRepository) listIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to collect session ids: %w", err)
	}
	return ids, nil
}

func (r *PostgresSessionRepository) getOne(ctx context.Context, query string, args ...any) (*domain.ParkingSession, error) {
	s, err := scanSession(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

func scanSession(row pgx.Row) (*domain.ParkingSession, error) {
	var (
		s                           domain.ParkingSession
		state, clientState          int
		debt, targetSum, currentSum string
	)
	err := row.Scan(
		&s.ID,
		&s.VendorSessionID,
		&s.ParkingID,
		&s.ClientID,
		&debt,
		&state,
		&clientState,
		&s.StartedAt,
		&s.UpdatedAt,
		&s.CompletedAt,
		&s.IsSuspended,
		&s.SuspendedAt,
		&s.TryRefund,
		&targetSum,
		&currentSum,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.State = domain.SessionState(state)
	s.ClientState = domain.ClientState(clientState)
	if s.Debt, err = decimal.NewFromString(debt); err != nil {
		return nil, fmt.Errorf("invalid debt %q: %w", debt, err)
	}
	if s.TargetRefundSum, err = decimal.NewFromString(targetSum); err != nil {
		return nil, fmt.Errorf("invalid target_refund_sum %q: %w", targetSum, err)
	}
	if s.CurrentRefundSum, err = decimal.NewFromString(currentSum); err != nil {
		return nil, fmt.Errorf("invalid current_refund_sum %q: %w", currentSum, err)
	}
	return &s, nil
}
