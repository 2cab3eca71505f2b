package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/nimbuswallet/golang_services/internal/acceleration_service/domain"
	"github.com/nimbuswallet/golang_services/internal/acceleration_service/repository"
	"github.com/nimbuswallet/golang_services/internal/acceleration_service/submitter"
	"github.com/nimbuswallet/golang_services/internal/core_domain"
)

// SubjectReplacementSubmitted carries committed replacements to downstream
// consumers (notification center, indexers).
const SubjectReplacementSubmitted = "tx.replacements.submitted"

// ErrNotOutgoing rejects registration of anything but a send transaction;
// incoming transfers never participate in acceleration.
var ErrNotOutgoing = errors.New("only outgoing (send) transactions can be tracked for acceleration")

// ErrMissingFee rejects registration without a positive original fee.
var ErrMissingFee = errors.New("transaction fee is required and must be positive")

// EventPublisher is the outbound half of the event plane. The NATS client
// satisfies it; tests may pass nil to skip publishing.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// LifecycleController owns every state transition of tracked transactions.
// All mutations run under a per-transaction lock covering the whole
// validate-then-transition sequence, so a user command and an incoming
// confirmation can never interleave on the same record. Reads stay
// lock-free: they operate on repository snapshots and the controller
// re-validates at commit time, rejecting stale requests instead of
// trusting an earlier verdict.
type LifecycleController struct {
	repo      repository.TransactionRepository
	submitter submitter.ReplacementSubmitter
	publisher EventPublisher
	logger    *slog.Logger
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*txLock
}

type txLock struct {
	mu   sync.Mutex
	refs int
}

// NewLifecycleController creates a controller. publisher may be nil, in
// which case committed replacements are not announced on the event plane.
func NewLifecycleController(
	repo repository.TransactionRepository,
	sub submitter.ReplacementSubmitter,
	publisher EventPublisher,
	logger *slog.Logger,
) *LifecycleController {
	return &LifecycleController{
		repo:      repo,
		submitter: sub,
		publisher: publisher,
		logger:    logger.With("component", "lifecycle_controller"),
		now:       time.Now,
		locks:     make(map[string]*txLock),
	}
}

// lockTx acquires the mutual-exclusion scope for one transaction id and
// returns the release func. Lock entries are reference-counted so the arena
// does not grow with every id ever seen.
func (c *LifecycleController) lockTx(id string) func() {
	c.mu.Lock()
	l, ok := c.locks[id]
	if !ok {
		l = &txLock{}
		c.locks[id] = l
	}
	l.refs++
	c.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		c.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, id)
		}
		c.mu.Unlock()
	}
}

// Register starts tracking a freshly broadcast outgoing transaction. Status
// is forced to pending and any replacement reference is discarded.
func (c *LifecycleController) Register(ctx context.Context, tx *core_domain.Transaction) error {
	if _, err := domain.CapabilitiesFor(tx.Chain); err != nil {
		return err
	}
	if tx.Direction != core_domain.DirectionSend {
		return ErrNotOutgoing
	}
	if tx.Fee == nil || tx.Fee.Sign() <= 0 {
		return ErrMissingFee
	}

	tx.Status = core_domain.StatusPending
	tx.ReplacementID = nil
	if err := c.repo.Create(ctx, tx); err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "Transaction registered", "tx_id", tx.ID, "chain", tx.Chain, "fee", tx.Fee.String())
	return nil
}

// Get returns a read-only snapshot of the record.
func (c *LifecycleController) Get(ctx context.Context, txID string) (*core_domain.Transaction, error) {
	return c.repo.GetByID(ctx, txID)
}

// Eligibility evaluates the transaction without taking the lock. When the
// verdict is eligible the minimum valid replacement fee is returned as a
// preview; otherwise it is nil. The verdict may be stale by the time the
// caller submits a request; the request path re-validates.
func (c *LifecycleController) Eligibility(ctx context.Context, txID string) (domain.Verdict, *big.Int, error) {
	tx, err := c.repo.GetByID(ctx, txID)
	if err != nil {
		return domain.Verdict{}, nil, err
	}

	verdict, err := domain.Evaluate(tx, c.now())
	if err != nil {
		return domain.Verdict{}, nil, err
	}
	if !verdict.Eligible {
		return verdict, nil, nil
	}

	cap, err := domain.CapabilitiesFor(tx.Chain)
	if err != nil {
		return domain.Verdict{}, nil, err
	}
	return verdict, domain.MinimumReplacementFee(tx.Fee, cap), nil
}

// RequestSpeedUp commits a fee-bump replacement for txID. The proposed fee
// is validated against the chain's minimum-increment rule; the external
// submission service provides the replacement transaction id. On any
// failure the record is left unchanged.
func (c *LifecycleController) RequestSpeedUp(ctx context.Context, txID string, proposedFee *big.Int) (*core_domain.Transaction, error) {
	unlock := c.lockTx(txID)
	defer unlock()

	tx, err := c.repo.GetByID(ctx, txID)
	if err != nil {
		return nil, err
	}

	if err := c.checkReplaceable(tx, core_domain.ActionSpeedUp); err != nil {
		c.countRequest(tx.Chain, core_domain.ActionSpeedUp, err)
		return nil, err
	}

	cap, err := domain.CapabilitiesFor(tx.Chain)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateProposedFee(proposedFee, tx.Fee, cap); err != nil {
		c.countRequest(tx.Chain, core_domain.ActionSpeedUp, err)
		return nil, err
	}

	return c.commitReplacement(ctx, tx, core_domain.ActionSpeedUp, proposedFee, core_domain.StatusAccelerating)
}

// RequestCancel commits a cancellation replacement (zero-value self-transfer
// broadcast by the submission service) at the chain-mandated minimum fee.
// The caller does not choose the fee.
func (c *LifecycleController) RequestCancel(ctx context.Context, txID string) (*core_domain.Transaction, error) {
	unlock := c.lockTx(txID)
	defer unlock()

	tx, err := c.repo.GetByID(ctx, txID)
	if err != nil {
		return nil, err
	}

	if err := c.checkReplaceable(tx, core_domain.ActionCancel); err != nil {
		c.countRequest(tx.Chain, core_domain.ActionCancel, err)
		return nil, err
	}

	cap, err := domain.CapabilitiesFor(tx.Chain)
	if err != nil {
		return nil, err
	}
	cancelFee := domain.MinimumReplacementFee(tx.Fee, cap)

	return c.commitReplacement(ctx, tx, core_domain.ActionCancel, cancelFee, core_domain.StatusCancelling)
}

// checkReplaceable re-validates eligibility at commit time, under the lock.
func (c *LifecycleController) checkReplaceable(tx *core_domain.Transaction, action core_domain.ReplacementAction) error {
	// A record already mid-replacement gets the dedicated error so the
	// caller polls status instead of retrying.
	if tx.Status == core_domain.StatusAccelerating || tx.Status == core_domain.StatusCancelling {
		return domain.ErrReplacementInProgress
	}

	verdict, err := domain.Evaluate(tx, c.now())
	if err != nil {
		return err
	}
	if !verdict.Eligible {
		return &domain.IneligibleError{Reason: verdict.Reason}
	}
	if action == core_domain.ActionSpeedUp && !verdict.CanSpeedUp {
		return &domain.IneligibleError{Reason: domain.ReasonNoReplacementSupport}
	}
	if action == core_domain.ActionCancel && !verdict.CanCancel {
		return &domain.IneligibleError{Reason: domain.ReasonCancelTooEarly}
	}
	return nil
}

type replacementSubmittedEvent struct {
	OriginalTxID    string `json:"original_tx_id"`
	ReplacementTxID string `json:"replacement_tx_id"`
	Chain           string `json:"chain"`
	Action          string `json:"action"`
	Fee             string `json:"fee"`
}

func (c *LifecycleController) commitReplacement(
	ctx context.Context,
	tx *core_domain.Transaction,
	action core_domain.ReplacementAction,
	fee *big.Int,
	nextStatus core_domain.TxStatus,
) (*core_domain.Transaction, error) {
	start := time.Now()
	newTxID, err := c.submitter.SubmitReplacement(ctx, tx.ID, action, fee)
	submissionDurationHist.WithLabelValues(string(action)).Observe(time.Since(start).Seconds())
	if err != nil {
		var subErr *domain.SubmissionError
		if !errors.As(err, &subErr) {
			err = &domain.SubmissionError{Err: err}
		}
		c.logger.WarnContext(ctx, "Replacement submission failed, record unchanged",
			"tx_id", tx.ID, "action", action, "error", err)
		c.countRequest(tx.Chain, action, err)
		return nil, err
	}

	tx.Status = nextStatus
	tx.ReplacementID = &newTxID
	if err := c.repo.Update(ctx, tx); err != nil {
		// Broadcast went out but the record didn't take the transition;
		// the confirmation event for newTxID will still resolve it.
		c.logger.ErrorContext(ctx, "Failed to persist replacement transition",
			"tx_id", tx.ID, "replacement_tx_id", newTxID, "error", err)
		c.countRequest(tx.Chain, action, err)
		return nil, err
	}

	c.countRequest(tx.Chain, action, nil)
	c.logger.InfoContext(ctx, "Replacement committed",
		"tx_id", tx.ID, "replacement_tx_id", newTxID, "action", action, "status", tx.Status, "fee", fee.String())

	c.publishSubmitted(ctx, tx, newTxID, action, fee)
	return tx, nil
}

func (c *LifecycleController) publishSubmitted(ctx context.Context, tx *core_domain.Transaction, newTxID string, action core_domain.ReplacementAction, fee *big.Int) {
	if c.publisher == nil {
		return
	}
	payload, err := json.Marshal(replacementSubmittedEvent{
		OriginalTxID:    tx.ID,
		ReplacementTxID: newTxID,
		Chain:           string(tx.Chain),
		Action:          string(action),
		Fee:             fee.String(),
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to marshal replacement event", "tx_id", tx.ID, "error", err)
		return
	}
	// Best effort: the replacement is already committed, a missed
	// announcement must not fail the request.
	if err := c.publisher.Publish(ctx, SubjectReplacementSubmitted, payload); err != nil {
		c.logger.WarnContext(ctx, "Failed to publish replacement event", "tx_id", tx.ID, "error", err)
	}
}

// OnConfirmed applies an external confirmation notification. It is
// idempotent: repeated notifications for an already-resolved record are
// no-ops. A record in cancelling resolves to cancelled (the confirmation is
// the cancellation replacement landing), otherwise to confirmed.
func (c *LifecycleController) OnConfirmed(ctx context.Context, txID string) error {
	unlock := c.lockTx(txID)
	defer unlock()

	tx, err := c.repo.GetByID(ctx, txID)
	if err != nil {
		lifecycleEventsCounter.WithLabelValues("confirmed", "unknown_tx").Inc()
		return err
	}

	var next core_domain.TxStatus
	switch tx.Status {
	case core_domain.StatusPending, core_domain.StatusAccelerating:
		next = core_domain.StatusConfirmed
	case core_domain.StatusCancelling:
		next = core_domain.StatusCancelled
	case core_domain.StatusConfirmed, core_domain.StatusCancelled:
		lifecycleEventsCounter.WithLabelValues("confirmed", "duplicate").Inc()
		c.logger.DebugContext(ctx, "Duplicate confirmation ignored", "tx_id", txID, "status", tx.Status)
		return nil
	default: // dropped
		lifecycleEventsCounter.WithLabelValues("confirmed", "invalid_transition").Inc()
		return domain.ErrInvalidTransition
	}

	tx.Status = next
	if err := c.repo.Update(ctx, tx); err != nil {
		lifecycleEventsCounter.WithLabelValues("confirmed", "error").Inc()
		return err
	}

	lifecycleEventsCounter.WithLabelValues("confirmed", "applied").Inc()
	c.logger.InfoContext(ctx, "Transaction confirmed", "tx_id", txID, "status", next)
	return nil
}

// OnDropped applies a network-eviction notification. Only a plain pending
// transaction can drop; accelerating and cancelling records resolve solely
// via confirmation of their replacement, so a drop there signals an
// out-of-order notification.
func (c *LifecycleController) OnDropped(ctx context.Context, txID string) error {
	unlock := c.lockTx(txID)
	defer unlock()

	tx, err := c.repo.GetByID(ctx, txID)
	if err != nil {
		lifecycleEventsCounter.WithLabelValues("dropped", "unknown_tx").Inc()
		return err
	}

	switch tx.Status {
	case core_domain.StatusPending:
		tx.Status = core_domain.StatusDropped
	case core_domain.StatusDropped:
		lifecycleEventsCounter.WithLabelValues("dropped", "duplicate").Inc()
		c.logger.DebugContext(ctx, "Duplicate drop ignored", "tx_id", txID)
		return nil
	default:
		lifecycleEventsCounter.WithLabelValues("dropped", "invalid_transition").Inc()
		return domain.ErrInvalidTransition
	}

	if err := c.repo.Update(ctx, tx); err != nil {
		lifecycleEventsCounter.WithLabelValues("dropped", "error").Inc()
		return err
	}

	lifecycleEventsCounter.WithLabelValues("dropped", "applied").Inc()
	c.logger.InfoContext(ctx, "Transaction dropped by network", "tx_id", txID)
	return nil
}

func (c *LifecycleController) countRequest(chain core_domain.Chain, action core_domain.ReplacementAction, err error) {
	outcome := "success"
	if err != nil {
		var ineligibleErr *domain.IneligibleError
		var feeErr *domain.FeeTooLowError
		var subErr *domain.SubmissionError
		switch {
		case errors.Is(err, domain.ErrReplacementInProgress):
			outcome = "in_progress"
		case errors.As(err, &ineligibleErr):
			outcome = "ineligible"
		case errors.As(err, &feeErr):
			outcome = "fee_too_low"
		case errors.As(err, &subErr):
			outcome = "submission_error"
		default:
			outcome = "error"
		}
	}
	replacementRequestsCounter.WithLabelValues(string(chain), string(action), outcome).Inc()
}
