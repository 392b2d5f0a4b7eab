// Package engine contains the composition pipeline actors. Each actor is a
// long-running task consuming one stage of TxCompose messages from the event
// bus and emitting the next stage with an owned copy of the candidate:
// Encode -> Estimate -> Sign -> Broadcast.
package engine

import (
	"context"

	"github.com/Gaon3/loom/internal/compose"
	"github.com/ethereum/go-ethereum/common"
)

// GasEstimator refines a candidate's gas estimate, typically by EVM
// simulation. Implementations live outside this core; the estimator actor
// falls back to the plan's own pre-estimate when none is configured or when
// estimation fails.
type GasEstimator interface {
	EstimateGas(ctx context.Context, data *compose.TxComposeData) (uint64, error)
}

// SignerBackend turns an unsigned transaction intent into broadcast-ready
// bytes. The private key never enters the pipeline.
type SignerBackend interface {
	Address() common.Address
	Sign(ctx context.Context, req *compose.TxRequest) ([]byte, error)
}

// Relay accepts an ordered bundle of raw transactions for inclusion at the
// given target block.
type Relay interface {
	SubmitBundle(ctx context.Context, block uint64, txs [][]byte) error
}
