package domain

import (
	"time"

	"github.com/nimbuswallet/golang_services/internal/core_domain"
)

// Verdict is the result of an eligibility evaluation. When Eligible is
// false, Reason explains why; when true, CanSpeedUp and CanCancel vary
// independently (a chain may in principle allow one and not the other, and
// the elapsed-time floor gates only cancel).
type Verdict struct {
	Eligible   bool
	Reason     IneligibilityReason
	CanSpeedUp bool
	CanCancel  bool
}

// Evaluate is a pure function of (transaction, capability, now): no hidden
// state, safe to re-run on every poll. The controller re-evaluates at commit
// time under the transaction lock, so a stale verdict is never trusted.
func Evaluate(tx *core_domain.Transaction, now time.Time) (Verdict, error) {
	cap, err := CapabilitiesFor(tx.Chain)
	if err != nil {
		return Verdict{}, err
	}

	if !cap.SupportsReplacement {
		return Verdict{Reason: ReasonNoReplacementSupport}, nil
	}
	if tx.Status.IsTerminal() {
		return Verdict{Reason: ReasonAlreadyTerminal}, nil
	}
	// Accelerating and cancelling records already carry a replacement
	// reference; they are immutable to callers until resolved.
	if tx.ReplacementID != nil || tx.Status != core_domain.StatusPending {
		return Verdict{Reason: ReasonAlreadyReplaced}, nil
	}

	elapsed := now.Sub(tx.SubmittedAt)
	if elapsed < 0 {
		elapsed = 0
	}

	return Verdict{
		Eligible:   true,
		CanSpeedUp: true,
		CanCancel:  elapsed >= cap.MinElapsedBeforeCancel,
	}, nil
}
