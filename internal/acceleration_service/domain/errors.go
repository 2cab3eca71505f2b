package domain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/nimbuswallet/golang_services/internal/core_domain"
)

var (
	// ErrReplacementInProgress indicates a replacement is already in flight
	// for the transaction; at most one is allowed per original.
	ErrReplacementInProgress = errors.New("replacement already in progress")
	// ErrInvalidTransition indicates an out-of-order or duplicate external
	// notification; the controller logs and drops these.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
)

// UnknownChainError is returned for chain values outside the supported set.
// It is a programmer error, not a policy rejection.
type UnknownChainError struct {
	Chain core_domain.Chain
}

func (e *UnknownChainError) Error() string {
	return fmt.Sprintf("unknown chain: %q", e.Chain)
}

// IneligibilityReason explains why a transaction cannot be replaced.
type IneligibilityReason string

const (
	ReasonNoReplacementSupport IneligibilityReason = "no_replacement_support"
	ReasonAlreadyTerminal      IneligibilityReason = "already_terminal"
	ReasonAlreadyReplaced      IneligibilityReason = "already_replaced"
	// ReasonCancelTooEarly applies only to cancel requests made before the
	// chain's elapsed-time floor.
	ReasonCancelTooEarly IneligibilityReason = "cancel_too_early"
)

// IneligibleError is a policy rejection; the reason is surfaced verbatim to
// the caller for display.
type IneligibleError struct {
	Reason IneligibilityReason
}

func (e *IneligibleError) Error() string {
	return fmt.Sprintf("transaction not eligible for replacement: %s", e.Reason)
}

// FeeTooLowError carries the computed minimum so the caller can retry with
// a valid fee.
type FeeTooLowError struct {
	Proposed *big.Int
	Minimum  *big.Int
}

func (e *FeeTooLowError) Error() string {
	return fmt.Sprintf("proposed fee %s below minimum replacement fee %s", e.Proposed, e.Minimum)
}

// SubmissionError wraps a network/broadcast failure from the external
// submission service. The original transaction stays pending, so the
// request is safe to retry.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("replacement submission failed: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}
