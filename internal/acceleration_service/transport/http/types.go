package http

import "time"

// RegisterTransactionRequest registers a freshly broadcast outgoing
// transaction for tracking. Fee is a decimal string in the chain's smallest
// fee unit.
type RegisterTransactionRequest struct {
	TxID        string    `json:"tx_id" validate:"required"`
	Chain       string    `json:"chain" validate:"required"`
	Direction   string    `json:"direction" validate:"omitempty,oneof=send receive"`
	Fee         string    `json:"fee" validate:"required"`
	SubmittedAt time.Time `json:"submitted_at" validate:"required"`
}

// SpeedUpRequest carries the caller-proposed replacement fee.
type SpeedUpRequest struct {
	ProposedFee string `json:"proposed_fee" validate:"required"`
}

// TransactionResponse is the read model of a tracked transaction.
type TransactionResponse struct {
	TxID          string    `json:"tx_id"`
	Chain         string    `json:"chain"`
	Status        string    `json:"status"`
	Fee           string    `json:"fee"`
	FeeUnit       string    `json:"fee_unit,omitempty"`
	SubmittedAt   time.Time `json:"submitted_at"`
	Elapsed       string    `json:"elapsed"`
	ReplacementID *string   `json:"replacement_id,omitempty"`
}

// EligibilityResponse carries the verdict plus a minimum-fee preview when
// the transaction is eligible.
type EligibilityResponse struct {
	Eligible   bool   `json:"eligible"`
	Reason     string `json:"reason,omitempty"`
	CanSpeedUp bool   `json:"can_speed_up"`
	CanCancel  bool   `json:"can_cancel"`
	MinimumFee string `json:"minimum_fee,omitempty"`
	FeeUnit    string `json:"fee_unit,omitempty"`
}

// ErrorResponse is the uniform error body. MinimumFee is set on fee-too-low
// rejections so the caller can retry without a second round trip.
type ErrorResponse struct {
	Error      string `json:"error"`
	Reason     string `json:"reason,omitempty"`
	MinimumFee string `json:"minimum_fee,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
}
