package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbuswallet/golang_services/internal/acceleration_service/domain"
	"github.com/nimbuswallet/golang_services/internal/acceleration_service/repository"
	"github.com/nimbuswallet/golang_services/internal/acceleration_service/repository/memory"
	"github.com/nimbuswallet/golang_services/internal/acceleration_service/submitter"
	"github.com/nimbuswallet/golang_services/internal/core_domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type capturingPublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
}

func (p *capturingPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

type fixture struct {
	controller *LifecycleController
	mock       *submitter.MockSubmitter
	publisher  *capturingPublisher
	now        time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := memory.NewMemoryTransactionRepository()
	mock := submitter.NewMockSubmitter(discardLogger(), nil, 0)
	publisher := &capturingPublisher{}
	controller := NewLifecycleController(repo, mock, publisher, discardLogger())

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	controller.now = func() time.Time { return now }

	return &fixture{controller: controller, mock: mock, publisher: publisher, now: now}
}

func (f *fixture) registerPending(t *testing.T, id string, chain core_domain.Chain, fee int64, elapsed time.Duration) {
	t.Helper()
	tx := &core_domain.Transaction{
		ID:          id,
		Chain:       chain,
		Direction:   core_domain.DirectionSend,
		Fee:         big.NewInt(fee),
		SubmittedAt: f.now.Add(-elapsed),
	}
	require.NoError(t, f.controller.Register(context.Background(), tx))
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Unknown chain.
	err := f.controller.Register(ctx, &core_domain.Transaction{
		ID: "tx-1", Chain: "dogecoin", Direction: core_domain.DirectionSend, Fee: big.NewInt(1), SubmittedAt: f.now,
	})
	var unknownErr *domain.UnknownChainError
	require.ErrorAs(t, err, &unknownErr)

	// Receive direction.
	err = f.controller.Register(ctx, &core_domain.Transaction{
		ID: "tx-1", Chain: core_domain.ChainEthereum, Direction: core_domain.DirectionReceive, Fee: big.NewInt(1), SubmittedAt: f.now,
	})
	assert.ErrorIs(t, err, ErrNotOutgoing)

	// Missing fee.
	err = f.controller.Register(ctx, &core_domain.Transaction{
		ID: "tx-1", Chain: core_domain.ChainEthereum, Direction: core_domain.DirectionSend, SubmittedAt: f.now,
	})
	assert.ErrorIs(t, err, ErrMissingFee)
}

// Scenario from the acceptance checklist: EVM chain, 10% bump, fee 100,
// 6 minutes elapsed against a 10 minute cancel floor.
func TestSpeedUpScenario_EVMChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerPending(t, "tx-1", core_domain.ChainEthereum, 100, 6*time.Minute)

	verdict, minFee, err := f.controller.Eligibility(ctx, "tx-1")
	require.NoError(t, err)
	require.True(t, verdict.Eligible)
	assert.True(t, verdict.CanSpeedUp)
	assert.False(t, verdict.CanCancel)
	require.NotNil(t, minFee)
	assert.Equal(t, int64(110), minFee.Int64())

	// 105 is below the 110 minimum.
	_, err = f.controller.RequestSpeedUp(ctx, "tx-1", big.NewInt(105))
	var feeErr *domain.FeeTooLowError
	require.ErrorAs(t, err, &feeErr)
	assert.Equal(t, int64(110), feeErr.Minimum.Int64())

	// Record untouched by the failed request.
	tx, err := f.controller.Get(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, core_domain.StatusPending, tx.Status)
	assert.Nil(t, tx.ReplacementID)

	// Exactly the minimum succeeds.
	updated, err := f.controller.RequestSpeedUp(ctx, "tx-1", big.NewInt(110))
	require.NoError(t, err)
	assert.Equal(t, core_domain.StatusAccelerating, updated.Status)
	require.NotNil(t, updated.ReplacementID)

	// Replacement was announced on the event plane.
	require.Len(t, f.publisher.subjects, 1)
	assert.Equal(t, SubjectReplacementSubmitted, f.publisher.subjects[0])
}

func TestRequestCancel_UsesChainMandatedMinimumFee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerPending(t, "tx-1", core_domain.ChainEthereum, 100, time.Hour)

	updated, err := f.controller.RequestCancel(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, core_domain.StatusCancelling, updated.Status)
	require.NotNil(t, updated.ReplacementID)

	calls := f.mock.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, core_domain.ActionCancel, calls[0].Action)
	assert.Equal(t, int64(110), calls[0].Fee.Int64())
}

func TestRequestCancel_BeforeElapsedFloor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerPending(t, "tx-1", core_domain.ChainEthereum, 100, 6*time.Minute)

	_, err := f.controller.RequestCancel(ctx, "tx-1")
	var ineligibleErr *domain.IneligibleError
	require.ErrorAs(t, err, &ineligibleErr)
	assert.Equal(t, domain.ReasonCancelTooEarly, ineligibleErr.Reason)
	assert.Empty(t, f.mock.Calls(), "nothing should reach the submission service")
}

func TestSecondReplacementRequestFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerPending(t, "tx-1", core_domain.ChainEthereum, 100, time.Hour)

	first, err := f.controller.RequestSpeedUp(ctx, "tx-1", big.NewInt(110))
	require.NoError(t, err)
	firstReplacement := *first.ReplacementID

	// Second speed-up while accelerating.
	_, err = f.controller.RequestSpeedUp(ctx, "tx-1", big.NewInt(200))
	assert.ErrorIs(t, err, domain.ErrReplacementInProgress)

	// Cancel while accelerating fails the same way.
	_, err = f.controller.RequestCancel(ctx, "tx-1")
	assert.ErrorIs(t, err, domain.ErrReplacementInProgress)

	// The original replacement reference was not overwritten.
	tx, err := f.controller.Get(ctx, "tx-1")
	require.NoError(t, err)
	require.NotNil(t, tx.ReplacementID)
	assert.Equal(t, firstReplacement, *tx.ReplacementID)
}

func TestUnsupportedChain_BothActionsIneligible(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerPending(t, "tx-1", core_domain.ChainSolana, 100, 48*time.Hour)

	verdict, minFee, err := f.controller.Eligibility(ctx, "tx-1")
	require.NoError(t, err)
	assert.False(t, verdict.Eligible)
	assert.Equal(t, domain.ReasonNoReplacementSupport, verdict.Reason)
	assert.Nil(t, minFee)

	var ineligibleErr *domain.IneligibleError
	_, err = f.controller.RequestSpeedUp(ctx, "tx-1", big.NewInt(1000))
	require.ErrorAs(t, err, &ineligibleErr)
	_, err = f.controller.RequestCancel(ctx, "tx-1")
	require.ErrorAs(t, err, &ineligibleErr)
}

func TestSubmissionFailure_LeavesRecordPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerPending(t, "tx-1", core_domain.ChainEthereum, 100, time.Hour)

	f.mock.SetFailWith(&domain.SubmissionError{Err: errors.New("broadcast timeout")})

	_, err := f.controller.RequestSpeedUp(ctx, "tx-1", big.NewInt(110))
	var subErr *domain.SubmissionError
	require.ErrorAs(t, err, &subErr)

	tx, err := f.controller.Get(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, core_domain.StatusPending, tx.Status)
	assert.Nil(t, tx.ReplacementID)

	// Safe to retry after the transient failure clears.
	f.mock.SetFailWith(nil)
	updated, err := f.controller.RequestSpeedUp(ctx, "tx-1", big.NewInt(110))
	require.NoError(t, err)
	assert.Equal(t, core_domain.StatusAccelerating, updated.Status)
}

func TestOnConfirmed_Transitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// pending -> confirmed (normal confirmation, no replacement).
	f.registerPending(t, "tx-1", core_domain.ChainEthereum, 100, time.Minute)
	require.NoError(t, f.controller.OnConfirmed(ctx, "tx-1"))
	tx, _ := f.controller.Get(ctx, "tx-1")
	assert.Equal(t, core_domain.StatusConfirmed, tx.Status)

	// Idempotent: a second confirmation is a no-op, never an error.
	require.NoError(t, f.controller.OnConfirmed(ctx, "tx-1"))
	tx, _ = f.controller.Get(ctx, "tx-1")
	assert.Equal(t, core_domain.StatusConfirmed, tx.Status)

	// accelerating -> confirmed.
	f.registerPending(t, "tx-2", core_domain.ChainEthereum, 100, time.Hour)
	_, err := f.controller.RequestSpeedUp(ctx, "tx-2", big.NewInt(110))
	require.NoError(t, err)
	require.NoError(t, f.controller.OnConfirmed(ctx, "tx-2"))
	tx, _ = f.controller.Get(ctx, "tx-2")
	assert.Equal(t, core_domain.StatusConfirmed, tx.Status)

	// cancelling -> cancelled: the cancellation replacement landed.
	f.registerPending(t, "tx-3", core_domain.ChainEthereum, 100, time.Hour)
	_, err = f.controller.RequestCancel(ctx, "tx-3")
	require.NoError(t, err)
	require.NoError(t, f.controller.OnConfirmed(ctx, "tx-3"))
	tx, _ = f.controller.Get(ctx, "tx-3")
	assert.Equal(t, core_domain.StatusCancelled, tx.Status)
}

func TestOnDropped_Transitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// pending -> dropped.
	f.registerPending(t, "tx-1", core_domain.ChainEthereum, 100, time.Minute)
	require.NoError(t, f.controller.OnDropped(ctx, "tx-1"))
	tx, _ := f.controller.Get(ctx, "tx-1")
	assert.Equal(t, core_domain.StatusDropped, tx.Status)

	// Duplicate drop is tolerated.
	require.NoError(t, f.controller.OnDropped(ctx, "tx-1"))

	// Drop while accelerating is an invalid transition; status unchanged.
	f.registerPending(t, "tx-2", core_domain.ChainEthereum, 100, time.Hour)
	_, err := f.controller.RequestSpeedUp(ctx, "tx-2", big.NewInt(110))
	require.NoError(t, err)
	err = f.controller.OnDropped(ctx, "tx-2")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	tx, _ = f.controller.Get(ctx, "tx-2")
	assert.Equal(t, core_domain.StatusAccelerating, tx.Status)

	// Drop after confirmation is likewise invalid.
	require.NoError(t, f.controller.OnConfirmed(ctx, "tx-2"))
	assert.ErrorIs(t, f.controller.OnDropped(ctx, "tx-2"), domain.ErrInvalidTransition)
}

func TestOnConfirmed_UnknownTransaction(t *testing.T) {
	f := newFixture(t)
	err := f.controller.OnConfirmed(context.Background(), "never-seen")
	assert.ErrorIs(t, err, repository.ErrTransactionNotFound)
}

func TestConcurrentRequests_OnlyOneReplacementCommits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerPending(t, "tx-1", core_domain.ChainEthereum, 100, time.Hour)

	const attempts = 8
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.controller.RequestSpeedUp(ctx, "tx-1", big.NewInt(110))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var successes, inProgress int
	for err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, domain.ErrReplacementInProgress):
			inProgress++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, inProgress)
	assert.Len(t, f.mock.Calls(), 1, "only one request may reach the submission service")
}
