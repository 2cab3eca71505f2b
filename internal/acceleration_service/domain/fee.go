package domain

import (
	"math/big"
)

var feeBase = big.NewInt(100)

// MinimumReplacementFee returns the smallest valid replacement fee:
// originalFee * (100 + MinFeeBumpPercent) / 100, rounded up. Fees are
// integers in the chain's smallest unit, so ceiling division is all the
// rounding there is; no floating point touches fee arithmetic.
func MinimumReplacementFee(originalFee *big.Int, cap ChainCapability) *big.Int {
	bumped := new(big.Int).Mul(originalFee, big.NewInt(100+cap.MinFeeBumpPercent))
	bumped.Add(bumped, big.NewInt(99))
	return bumped.Div(bumped, feeBase)
}

// ValidateProposedFee checks a caller-proposed replacement fee against the
// chain's minimum-increment rule. On rejection the returned FeeTooLowError
// carries the computed minimum so the caller can retry.
func ValidateProposedFee(proposed, originalFee *big.Int, cap ChainCapability) error {
	min := MinimumReplacementFee(originalFee, cap)
	if proposed == nil || proposed.Cmp(min) < 0 {
		return &FeeTooLowError{Proposed: proposed, Minimum: min}
	}
	return nil
}
