package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/parking-payments/internal/domain"
	"github.com/Dhoini/parking-payments/internal/repository"
	"github.com/Dhoini/parking-payments/pkg/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresParkingRepository чтение парковок
type PostgresParkingRepository struct {
	db *pgxpool.Pool
}

func NewPostgresParkingRepository(db *pgxpool.Pool) *PostgresParkingRepository {
	return &PostgresParkingRepository{db: db}
}

// GetByID возвращает парковку с политикой максимального долга
func (r *PostgresParkingRepository) GetByID(ctx context.Context, id int64) (*domain.Parking, error) {
	var (
		p       domain.Parking
		maxDebt string
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, name, vendor_id, max_client_debt::text FROM parkings WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.VendorID, &maxDebt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get parking: %w", err)
	}
	if p.MaxClientDebt, err = decimal.NewFromString(maxDebt); err != nil {
		return nil, fmt.Errorf("invalid max_client_debt %q: %w", maxDebt, err)
	}
	return &p, nil
}

// PostgresVendorRepository чтение вендоров
type PostgresVendorRepository struct {
	db *pgxpool.Pool
}

func NewPostgresVendorRepository(db *pgxpool.Pool) *PostgresVendorRepository {
	return &PostgresVendorRepository{db: db}
}

// GetByName возвращает вендора по имени из заголовка запроса
func (r *PostgresVendorRepository) GetByName(ctx context.Context, name string) (*domain.Vendor, error) {
	var v domain.Vendor
	err := r.db.QueryRow(ctx, `SELECT id, name, secret FROM vendors WHERE name = $1`, name).
		Scan(&v.ID, &v.Name, &v.Secret)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get vendor: %w", err)
	}
	return &v, nil
}

// PostgresCardRepository хранение привязанных карт
type PostgresCardRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

func NewPostgresCardRepository(db *pgxpool.Pool, log *logger.Logger) *PostgresCardRepository {
	return &PostgresCardRepository{db: db, log: log}
}

// Save создает или обновляет карту. Новая карта по умолчанию снимает флаг с остальных.
func (r *PostgresCardRepository) Save(ctx context.Context, c *domain.CreditCard) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if c.IsDefault {
			if _, err := tx.Exec(ctx,
				`UPDATE credit_cards SET is_default = FALSE WHERE client_id = $1 AND card_id <> $2`,
				c.ClientID, c.CardID,
			); err != nil {
				return fmt.Errorf("failed to reset default card: %w", err)
			}
		}

		err := tx.QueryRow(ctx, `
			INSERT INTO credit_cards (client_id, card_id, pan, exp_date, rebill_id, is_default, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (client_id, card_id) DO UPDATE SET
				pan = EXCLUDED.pan,
				exp_date = EXCLUDED.exp_date,
				rebill_id = CASE WHEN EXCLUDED.rebill_id <> '' THEN EXCLUDED.rebill_id ELSE credit_cards.rebill_id END,
				is_default = EXCLUDED.is_default
			RETURNING id
		`, c.ClientID, c.CardID, c.Pan, c.ExpDate, c.RebillID, c.IsDefault, c.CreatedAt).Scan(&c.ID)
		if err != nil {
			return fmt.Errorf("failed to save card: %w", err)
		}
		return nil
	})
}

// GetDefault возвращает карту клиента по умолчанию
func (r *PostgresCardRepository) GetDefault(ctx context.Context, clientID int64) (*domain.CreditCard, error) {
	var c domain.CreditCard
	err := r.db.QueryRow(ctx, `
		SELECT id, client_id, card_id, pan, exp_date, rebill_id, is_default, created_at
		FROM credit_cards
		WHERE client_id = $1 AND is_default
		ORDER BY created_at DESC
		LIMIT 1
	`, clientID).Scan(&c.ID, &c.ClientID, &c.CardID, &c.Pan, &c.ExpDate, &c.RebillID, &c.IsDefault, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get default card: %w", err)
	}
	return &c, nil
}
