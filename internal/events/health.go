package events

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// HealthEventKind tags the health event variants.
type HealthEventKind uint8

const (
	// HealthPoolSwapError reports a failed swap execution against a pool.
	HealthPoolSwapError HealthEventKind = iota
	// HealthStateUpdateLag reports delayed market state; carried for
	// forward compatibility, consumers may ignore it.
	HealthStateUpdateLag
)

// SwapError describes one failed swap execution.
type SwapError struct {
	Pool   common.Address
	Msg    string
	Amount *uint256.Int
}

// HealthEvent is a runtime health report. SwapError is set for
// HealthPoolSwapError.
type HealthEvent struct {
	Kind      HealthEventKind
	SwapError *SwapError
}

// NewPoolSwapError builds a pool swap error event.
func NewPoolSwapError(pool common.Address, msg string, amount *uint256.Int) HealthEvent {
	return HealthEvent{
		Kind:      HealthPoolSwapError,
		SwapError: &SwapError{Pool: pool, Msg: msg, Amount: amount},
	}
}

// BlockEvent announces a new chain head. The estimator uses it to roll its
// selection window.
type BlockEvent struct {
	Number    uint64
	Hash      common.Hash
	Timestamp uint64
}
