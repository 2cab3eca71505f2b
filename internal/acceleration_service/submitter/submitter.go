package submitter

import (
	"context"
	"math/big"

	"github.com/nimbuswallet/golang_services/internal/core_domain"
)

// ReplacementSubmitter is the narrow interface to the external transaction
// submission service. It signs and broadcasts the replacement and returns
// the new transaction identifier; it never touches lifecycle state.
type ReplacementSubmitter interface {
	SubmitReplacement(ctx context.Context, originalTxID string, action core_domain.ReplacementAction, fee *big.Int) (string, error)
}
