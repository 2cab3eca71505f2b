package submitter

import (
	"context"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nimbuswallet/golang_services/internal/acceleration_service/domain"
	"github.com/nimbuswallet/golang_services/internal/core_domain"
)

// SubmitCall records one SubmitReplacement invocation on the mock.
type SubmitCall struct {
	OriginalTxID string
	Action       core_domain.ReplacementAction
	Fee          *big.Int
}

// MockSubmitter is an in-process stand-in for the submission service, used
// in development mode and in tests.
type MockSubmitter struct {
	logger *slog.Logger
	delay  time.Duration

	mu       sync.Mutex
	failWith error
	calls    []SubmitCall
}

// NewMockSubmitter creates a mock. failWith, when non-nil, is returned from
// every SubmitReplacement call until cleared via SetFailWith(nil).
func NewMockSubmitter(logger *slog.Logger, failWith error, delay time.Duration) *MockSubmitter {
	return &MockSubmitter{
		logger:   logger.With("submitter", "mock"),
		failWith: failWith,
		delay:    delay,
	}
}

// SetFailWith changes the forced failure for subsequent calls.
func (m *MockSubmitter) SetFailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// Calls returns a copy of the recorded invocations.
func (m *MockSubmitter) Calls() []SubmitCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SubmitCall, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MockSubmitter) SubmitReplacement(ctx context.Context, originalTxID string, action core_domain.ReplacementAction, fee *big.Int) (string, error) {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", &domain.SubmissionError{Err: ctx.Err()}
		}
	}

	m.mu.Lock()
	m.calls = append(m.calls, SubmitCall{
		OriginalTxID: originalTxID,
		Action:       action,
		Fee:          new(big.Int).Set(fee),
	})
	failWith := m.failWith
	m.mu.Unlock()

	if failWith != nil {
		m.logger.WarnContext(ctx, "Mock submitter failing as configured", "original_tx_id", originalTxID, "error", failWith)
		return "", failWith
	}

	newTxID := "mock-" + uuid.NewString()
	m.logger.InfoContext(ctx, "Mock submitter accepted replacement",
		"original_tx_id", originalTxID, "action", action, "fee", fee.String(), "replacement_tx_id", newTxID)
	return newTxID, nil
}
