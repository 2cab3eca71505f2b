package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nimbuswallet/golang_services/internal/acceleration_service/repository"
	"github.com/nimbuswallet/golang_services/internal/core_domain"
)

// memoryTransactionRepository keeps lifecycle records in a map guarded by a
// RWMutex. All reads and writes go through Clone so callers only ever hold
// snapshots.
type memoryTransactionRepository struct {
	mu  sync.RWMutex
	txs map[string]*core_domain.Transaction
}

// NewMemoryTransactionRepository creates an empty in-memory store.
func NewMemoryTransactionRepository() repository.TransactionRepository {
	return &memoryTransactionRepository{
		txs: make(map[string]*core_domain.Transaction),
	}
}

func (r *memoryTransactionRepository) Create(ctx context.Context, tx *core_domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.txs[tx.ID]; exists {
		return fmt.Errorf("transaction %s: %w", tx.ID, repository.ErrAlreadyTracked)
	}

	now := time.Now().UTC()
	stored := tx.Clone()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.txs[tx.ID] = stored

	tx.CreatedAt = now
	tx.UpdatedAt = now
	return nil
}

func (r *memoryTransactionRepository) GetByID(ctx context.Context, id string) (*core_domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tx, ok := r.txs[id]
	if !ok {
		return nil, repository.ErrTransactionNotFound
	}
	return tx.Clone(), nil
}

func (r *memoryTransactionRepository) Update(ctx context.Context, tx *core_domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.txs[tx.ID]
	if !ok {
		return repository.ErrTransactionNotFound
	}

	updated := tx.Clone()
	updated.CreatedAt = stored.CreatedAt
	updated.UpdatedAt = time.Now().UTC()
	r.txs[tx.ID] = updated
	return nil
}
