package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nimbuswallet/golang_services/internal/acceleration_service/repository"
	"github.com/nimbuswallet/golang_services/internal/core_domain"
)

type pgTransactionRepository struct {
	db *pgxpool.Pool
}

// NewPgTransactionRepository creates a new instance for PostgreSQL.
//
// Expected schema:
//
//	CREATE TABLE pending_transactions (
//	    id             TEXT PRIMARY KEY,
//	    chain          TEXT NOT NULL,
//	    direction      TEXT NOT NULL,
//	    status         TEXT NOT NULL,
//	    fee            NUMERIC(78, 0) NOT NULL, -- smallest fee unit, fits 256-bit values
//	    submitted_at   TIMESTAMPTZ NOT NULL,
//	    replacement_id TEXT,
//	    created_at     TIMESTAMPTZ NOT NULL,
//	    updated_at     TIMESTAMPTZ NOT NULL
//	);
func NewPgTransactionRepository(db *pgxpool.Pool) repository.TransactionRepository {
	return &pgTransactionRepository{db: db}
}

func (r *pgTransactionRepository) Create(ctx context.Context, tx *core_domain.Transaction) error {
	now := time.Now().UTC()
	tx.CreatedAt = now
	tx.UpdatedAt = now

	query := `
		INSERT INTO pending_transactions (
			id, chain, direction, status, fee, submitted_at, replacement_id,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Exec(ctx, query,
		tx.ID, tx.Chain, tx.Direction, tx.Status, tx.Fee.String(), tx.SubmittedAt,
		tx.ReplacementID, tx.CreatedAt, tx.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return fmt.Errorf("transaction %s: %w", tx.ID, repository.ErrAlreadyTracked)
		}
		return fmt.Errorf("failed to insert transaction %s: %w", tx.ID, err)
	}
	return nil
}

func (r *pgTransactionRepository) GetByID(ctx context.Context, id string) (*core_domain.Transaction, error) {
	tx := &core_domain.Transaction{}
	var feeStr string

	query := `
		SELECT id, chain, direction, status, fee, submitted_at, replacement_id,
		       created_at, updated_at
		FROM pending_transactions WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, id).Scan(
		&tx.ID, &tx.Chain, &tx.Direction, &tx.Status, &feeStr, &tx.SubmittedAt,
		&tx.ReplacementID, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to query transaction %s: %w", id, err)
	}

	fee, ok := new(big.Int).SetString(feeStr, 10)
	if !ok {
		return nil, fmt.Errorf("transaction %s has malformed fee %q", id, feeStr)
	}
	tx.Fee = fee
	return tx, nil
}

func (r *pgTransactionRepository) Update(ctx context.Context, tx *core_domain.Transaction) error {
	now := time.Now().UTC()

	query := `
		UPDATE pending_transactions
		SET status = $2, fee = $3, replacement_id = $4, updated_at = $5
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, tx.ID, tx.Status, tx.Fee.String(), tx.ReplacementID, now)
	if err != nil {
		return fmt.Errorf("failed to update transaction %s: %w", tx.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrTransactionNotFound
	}

	tx.UpdatedAt = now
	return nil
}
