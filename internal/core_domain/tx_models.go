package core_domain

import (
	"database/sql/driver"
	"fmt"
	"math/big"
	"time"
)

// Chain identifies a supported network. The set is closed; anything outside
// it is rejected by the capability table.
type Chain string

const (
	ChainBitcoin  Chain = "bitcoin"
	ChainEthereum Chain = "ethereum"
	ChainPolygon  Chain = "polygon"
	ChainBSC      Chain = "bsc"
	ChainTron     Chain = "tron"
	ChainSolana   Chain = "solana"
)

// Value implements the driver.Valuer interface for Chain.
func (c Chain) Value() (driver.Value, error) {
	return string(c), nil
}

// Scan implements the sql.Scanner interface for Chain.
func (c *Chain) Scan(value interface{}) error {
	strVal, ok := value.(string)
	if !ok {
		bytesVal, ok := value.([]byte)
		if !ok {
			return fmt.Errorf("failed to scan Chain: value is not string or []byte, it is %T", value)
		}
		strVal = string(bytesVal)
	}
	*c = Chain(strVal)
	switch *c {
	case ChainBitcoin, ChainEthereum, ChainPolygon, ChainBSC, ChainTron, ChainSolana:
		return nil
	default:
		return fmt.Errorf("unknown Chain value: %s", strVal)
	}
}

// Direction marks a transfer as outgoing or incoming. Only outgoing
// transfers participate in acceleration.
type Direction string

const (
	DirectionSend    Direction = "send"
	DirectionReceive Direction = "receive"
)

// TxStatus defines the lifecycle states of a tracked transaction.
type TxStatus string

const (
	StatusPending      TxStatus = "pending"
	StatusAccelerating TxStatus = "accelerating" // speed-up replacement broadcast, awaiting confirmation
	StatusCancelling   TxStatus = "cancelling"   // cancellation replacement broadcast, awaiting confirmation
	StatusConfirmed    TxStatus = "confirmed"
	StatusCancelled    TxStatus = "cancelled"
	StatusDropped      TxStatus = "dropped" // evicted by the network without a replacement
)

// IsTerminal reports whether no further lifecycle transition is possible.
func (s TxStatus) IsTerminal() bool {
	switch s {
	case StatusConfirmed, StatusCancelled, StatusDropped:
		return true
	default:
		return false
	}
}

// Value implements the driver.Valuer interface for TxStatus.
func (s TxStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// Scan implements the sql.Scanner interface for TxStatus.
func (s *TxStatus) Scan(value interface{}) error {
	strVal, ok := value.(string)
	if !ok {
		bytesVal, ok := value.([]byte)
		if !ok {
			return fmt.Errorf("failed to scan TxStatus: value is not string or []byte, it is %T", value)
		}
		strVal = string(bytesVal)
	}
	*s = TxStatus(strVal)
	switch *s {
	case StatusPending, StatusAccelerating, StatusCancelling, StatusConfirmed, StatusCancelled, StatusDropped:
		return nil
	default:
		return fmt.Errorf("unknown TxStatus value: %s", strVal)
	}
}

// ReplacementAction is what the caller wants done with a pending transaction.
type ReplacementAction string

const (
	ActionSpeedUp ReplacementAction = "speed_up"
	ActionCancel  ReplacementAction = "cancel"
)

// Transaction represents one outgoing transfer tracked by the acceleration
// service. Fee is denominated in the chain's smallest indivisible unit;
// conversion to display units happens at the presentation boundary.
type Transaction struct {
	ID          string    `json:"id"` // chain-scoped transaction identifier
	Chain       Chain     `json:"chain"`
	Direction   Direction `json:"direction"`
	Status      TxStatus  `json:"status"`
	Fee         *big.Int  `json:"fee"`
	SubmittedAt time.Time `json:"submitted_at"`
	// ReplacementID references the transaction that superseded this one.
	// A record carrying it is immutable from the caller's perspective:
	// replacement chains are flattened, never nested.
	ReplacementID *string   `json:"replacement_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers can hold read-only snapshots while
// the lifecycle controller remains the only writer.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	cp := *t
	if t.Fee != nil {
		cp.Fee = new(big.Int).Set(t.Fee)
	}
	if t.ReplacementID != nil {
		id := *t.ReplacementID
		cp.ReplacementID = &id
	}
	return &cp
}

// ReplacementIntent is the ephemeral value produced when a caller requests a
// speed-up or cancel. It is consumed immediately by the lifecycle controller
// and never persisted standalone. ProposedFee is required for speed-up and
// ignored for cancel (cancel always uses the chain-mandated minimum).
type ReplacementIntent struct {
	TxID        string            `json:"tx_id"`
	Action      ReplacementAction `json:"action"`
	ProposedFee *big.Int          `json:"proposed_fee,omitempty"`
}
