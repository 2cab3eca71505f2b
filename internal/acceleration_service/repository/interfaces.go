package repository

import (
	"context"
	"errors"

	"github.com/nimbuswallet/golang_services/internal/core_domain"
)

var (
	// ErrTransactionNotFound indicates the requested transaction is not tracked.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrAlreadyTracked indicates a Create for an id that is already stored.
	ErrAlreadyTracked = errors.New("transaction already tracked")
)

// TransactionRepository is the single source of truth for transaction
// lifecycle records. Implementations must return snapshots: mutating a
// returned record must not affect the stored one. The lifecycle controller
// is the only component that writes through this interface.
type TransactionRepository interface {
	// Create stores a new record. It fails if the id is already tracked.
	Create(ctx context.Context, tx *core_domain.Transaction) error
	// GetByID returns a snapshot of the record, or ErrTransactionNotFound.
	GetByID(ctx context.Context, id string) (*core_domain.Transaction, error)
	// Update overwrites the stored record, or ErrTransactionNotFound.
	Update(ctx context.Context, tx *core_domain.Transaction) error
}
