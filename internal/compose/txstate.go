// Package compose models one candidate trade on its way from discovered plan
// to broadcast-ready bytes: the per-sub-transaction states of its bundle, the
// candidate record itself, the pipeline messages that move it between stages
// and the selector that decides which candidates are worth carrying forward.
package compose

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// ErrNotReadyForBroadcast is returned when wire bytes are requested from a
// state that still needs signing.
var ErrNotReadyForBroadcast = errors.New("compose: not ready for broadcast")

// TxRequest is an unsigned transaction intent, handed to a signer backend
// which replaces it with ready-to-broadcast bytes.
type TxRequest struct {
	From      common.Address
	To        *common.Address
	Nonce     uint64
	Gas       uint64
	GasFeeCap *uint256.Int
	GasTipCap *uint256.Int
	Value     *uint256.Int
	Data      []byte
}

// TxStateKind tags the TxState variants.
type TxStateKind uint8

const (
	// TxStateStuffing is a mempool transaction the candidate is bundled around.
	TxStateStuffing TxStateKind = iota
	// TxStateSignatureRequired is an unsigned intent awaiting an external signer.
	TxStateSignatureRequired
	// TxStateReadyForBroadcast is a signed backrun transaction.
	TxStateReadyForBroadcast
	// TxStateReadyForBroadcastStuffing is a re-encoded stuffing transaction.
	TxStateReadyForBroadcastStuffing
)

func (k TxStateKind) String() string {
	switch k {
	case TxStateStuffing:
		return "stuffing"
	case TxStateSignatureRequired:
		return "signature_required"
	case TxStateReadyForBroadcast:
		return "ready_for_broadcast"
	case TxStateReadyForBroadcastStuffing:
		return "ready_for_broadcast_stuffing"
	default:
		return "unknown"
	}
}

// TxState is one sub-transaction of a candidate bundle. Exactly one of the
// payload fields is set, according to Kind.
type TxState struct {
	Kind    TxStateKind
	Tx      *types.Transaction // TxStateStuffing
	Request *TxRequest         // TxStateSignatureRequired
	Raw     []byte             // TxStateReadyForBroadcast*
}

// NewStuffingState wraps a mempool transaction.
func NewStuffingState(tx *types.Transaction) TxState {
	return TxState{Kind: TxStateStuffing, Tx: tx}
}

// NewSignatureRequiredState wraps an unsigned intent.
func NewSignatureRequiredState(req *TxRequest) TxState {
	return TxState{Kind: TxStateSignatureRequired, Request: req}
}

// NewReadyForBroadcastState wraps signed backrun bytes.
func NewReadyForBroadcastState(raw []byte) TxState {
	return TxState{Kind: TxStateReadyForBroadcast, Raw: raw}
}

// NewReadyForBroadcastStuffingState wraps re-encoded stuffing bytes.
func NewReadyForBroadcastStuffingState(raw []byte) TxState {
	return TxState{Kind: TxStateReadyForBroadcastStuffing, Raw: raw}
}

// Rlp returns the canonical wire encoding of this state. A stuffing
// transaction is encoded on the fly, ready states return their bytes, and a
// state that still needs signing fails with ErrNotReadyForBroadcast. This is
// a query: the state itself is never mutated.
func (s TxState) Rlp() ([]byte, error) {
	switch s.Kind {
	case TxStateStuffing:
		if s.Tx == nil {
			return nil, fmt.Errorf("compose: stuffing state without transaction: %w", ErrNotReadyForBroadcast)
		}
		raw, err := s.Tx.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("compose: encode stuffing tx: %w", err)
		}
		return raw, nil
	case TxStateReadyForBroadcast, TxStateReadyForBroadcastStuffing:
		out := make([]byte, len(s.Raw))
		copy(out, s.Raw)
		return out, nil
	default:
		return nil, ErrNotReadyForBroadcast
	}
}

// RlpStateKind tags the RlpState variants.
type RlpStateKind uint8

const (
	// RlpStateNone carries no bytes; Unwrap yields an empty value.
	RlpStateNone RlpStateKind = iota
	// RlpStateStuffing is an encoded stuffing transaction.
	RlpStateStuffing
	// RlpStateBackrun is the encoded backrun transaction itself.
	RlpStateBackrun
)

// RlpState is the serialized counterpart of a TxState, tagged by role so
// that submitters can filter before unwrapping.
type RlpState struct {
	Kind RlpStateKind
	Raw  []byte
}

// NewRlpStuffing wraps encoded stuffing bytes.
func NewRlpStuffing(raw []byte) RlpState {
	return RlpState{Kind: RlpStateStuffing, Raw: raw}
}

// NewRlpBackrun wraps encoded backrun bytes.
func NewRlpBackrun(raw []byte) RlpState {
	return RlpState{Kind: RlpStateBackrun, Raw: raw}
}

// IsNone reports whether this entry carries no payload.
func (r RlpState) IsNone() bool {
	return r.Kind == RlpStateNone
}

// Unwrap returns the carried bytes. A none entry yields an empty value rather
// than failing; callers filter by Kind first.
func (r RlpState) Unwrap() []byte {
	if r.Kind == RlpStateNone {
		return []byte{}
	}
	out := make([]byte, len(r.Raw))
	copy(out, r.Raw)
	return out
}
