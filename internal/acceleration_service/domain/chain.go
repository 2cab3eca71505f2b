package domain

import (
	"time"

	"github.com/nimbuswallet/golang_services/internal/core_domain"
)

// ChainCapability holds the static per-chain replacement facts. Records are
// immutable reference data, loaded once and never mutated at runtime.
type ChainCapability struct {
	Chain               core_domain.Chain
	SupportsReplacement bool
	// MinFeeBumpPercent is the minimum fee increase a replacement must
	// offer over the original, e.g. 10 means replacement >= original * 1.10.
	MinFeeBumpPercent int64
	// MinElapsedBeforeCancel is how long a transaction must have been
	// pending before cancellation is allowed, so we don't start a fee race
	// against a transaction that may confirm imminently. Speed-up has no
	// such floor.
	MinElapsedBeforeCancel time.Duration
	// FeeUnit names the smallest indivisible fee denomination all fee
	// arithmetic is performed in.
	FeeUnit string
}

// Account-model chains without a replacement primitive (no sequence skip, no
// mempool replacement channel) get SupportsReplacement: false.
var chainCapabilities = map[core_domain.Chain]ChainCapability{
	core_domain.ChainBitcoin: {
		Chain:                  core_domain.ChainBitcoin,
		SupportsReplacement:    true,
		MinFeeBumpPercent:      25,
		MinElapsedBeforeCancel: 20 * time.Minute,
		FeeUnit:                "satoshi",
	},
	core_domain.ChainEthereum: {
		Chain:                  core_domain.ChainEthereum,
		SupportsReplacement:    true,
		MinFeeBumpPercent:      10,
		MinElapsedBeforeCancel: 10 * time.Minute,
		FeeUnit:                "wei",
	},
	core_domain.ChainPolygon: {
		Chain:                  core_domain.ChainPolygon,
		SupportsReplacement:    true,
		MinFeeBumpPercent:      10,
		MinElapsedBeforeCancel: 5 * time.Minute,
		FeeUnit:                "wei",
	},
	core_domain.ChainBSC: {
		Chain:                  core_domain.ChainBSC,
		SupportsReplacement:    true,
		MinFeeBumpPercent:      10,
		MinElapsedBeforeCancel: 5 * time.Minute,
		FeeUnit:                "wei",
	},
	core_domain.ChainTron: {
		Chain:               core_domain.ChainTron,
		SupportsReplacement: false,
		FeeUnit:             "sun",
	},
	core_domain.ChainSolana: {
		Chain:               core_domain.ChainSolana,
		SupportsReplacement: false,
		FeeUnit:             "lamport",
	},
}

// CapabilitiesFor returns the capability record for chain. It is total over
// the closed chain set and returns UnknownChainError for anything else.
func CapabilitiesFor(chain core_domain.Chain) (ChainCapability, error) {
	cap, ok := chainCapabilities[chain]
	if !ok {
		return ChainCapability{}, &UnknownChainError{Chain: chain}
	}
	return cap, nil
}
