package compose

import (
	"github.com/Gaon3/loom/internal/money"
	"github.com/Gaon3/loom/internal/swap"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// Signer identifies the account a candidate will be signed with. The private
// key stays with the signer backend; the record only carries the identity.
type Signer struct {
	Address common.Address
	Name    string
}

// Opcodes is the low-level call program executed by the backrun transaction,
// already ABI-encoded for the multicall contract.
type Opcodes []byte

// AccountState mirrors the account fields of a prestate/state-diff trace
// entry. Nil fields were not touched.
type AccountState struct {
	Balance *uint256.Int
	Nonce   *uint64
	Code    []byte
	Storage map[common.Hash]common.Hash
}

// StateUpdate maps touched accounts to their state, one map per traced
// transaction. Snapshots are shared read-only between pipeline stages.
type StateUpdate map[common.Address]AccountState

// TxComposeData is one trading candidate. It is produced fresh by discovery
// and cloned, not mutated in place, as it advances between pipeline stages:
// every stage message carries its own owned copy, so consumers always observe
// a consistent snapshot.
type TxComposeData struct {
	Signer         *Signer
	Nonce          uint64
	ETHBalance     *uint256.Int
	Value          *uint256.Int
	Gas            uint64
	GasFee         *uint256.Int
	PriorityGasFee *uint256.Int

	// StuffingTxHashes are the mempool transactions this candidate is
	// bundled around; StuffingTxs carries their bodies when known.
	StuffingTxHashes []common.Hash
	StuffingTxs      []*types.Transaction

	Block          uint64
	BlockTimestamp uint64

	Swap    swap.Swap
	Opcodes Opcodes

	TxBundle  []TxState
	RlpBundle []RlpState

	Prestate        StateUpdate
	Poststate       StateUpdate
	PoststateUpdate []StateUpdate

	// Origin is a free-form provenance tag set by the producer.
	Origin string

	TipsPct *money.BPS
	Tips    *uint256.Int
}

// NewTxComposeData returns a candidate with the default state: all optional
// fields empty, all numeric fields zero and the empty plan.
func NewTxComposeData() *TxComposeData {
	return &TxComposeData{
		ETHBalance:     uint256.NewInt(0),
		Value:          uint256.NewInt(0),
		GasFee:         uint256.NewInt(0),
		PriorityGasFee: uint256.NewInt(0),
		Swap:           swap.None(),
	}
}

// Clone returns an owned copy for the next pipeline stage. Slices and
// scalar-valued fields are copied; transaction bodies and state snapshots are
// immutable and shared.
func (d *TxComposeData) Clone() *TxComposeData {
	if d == nil {
		return nil
	}
	out := *d
	out.ETHBalance = cloneU256(d.ETHBalance)
	out.Value = cloneU256(d.Value)
	out.GasFee = cloneU256(d.GasFee)
	out.PriorityGasFee = cloneU256(d.PriorityGasFee)
	out.Tips = cloneU256(d.Tips)
	if d.Signer != nil {
		signer := *d.Signer
		out.Signer = &signer
	}
	if d.TipsPct != nil {
		pct := *d.TipsPct
		out.TipsPct = &pct
	}
	out.StuffingTxHashes = append([]common.Hash(nil), d.StuffingTxHashes...)
	out.StuffingTxs = append([]*types.Transaction(nil), d.StuffingTxs...)
	out.Opcodes = append(Opcodes(nil), d.Opcodes...)
	out.TxBundle = append([]TxState(nil), d.TxBundle...)
	out.RlpBundle = append([]RlpState(nil), d.RlpBundle...)
	out.PoststateUpdate = append([]StateUpdate(nil), d.PoststateUpdate...)
	return &out
}

func cloneU256(v *uint256.Int) *uint256.Int {
	if v == nil {
		return nil
	}
	return new(uint256.Int).Set(v)
}

// SameStuffing reports whether this candidate references exactly the same set
// of surrounding mempool transactions as the given hashes. Order does not
// matter and two empty sets are the same.
func (d *TxComposeData) SameStuffing(others []common.Hash) bool {
	if len(d.StuffingTxHashes) != len(others) {
		return false
	}
	if len(others) == 0 {
		return true
	}
	own := make(map[common.Hash]struct{}, len(d.StuffingTxHashes))
	for _, h := range d.StuffingTxHashes {
		own[h] = struct{}{}
	}
	for _, h := range others {
		if _, ok := own[h]; !ok {
			return false
		}
	}
	return true
}

// CrossPools reports whether any pool touched by this candidate's plan is
// also in the given set, i.e. the two candidates compete for the same
// liquidity.
func (d *TxComposeData) CrossPools(others []common.Address) bool {
	if len(others) == 0 {
		return false
	}
	set := make(map[common.Address]struct{}, len(others))
	for _, a := range others {
		set[a] = struct{}{}
	}
	for _, a := range d.Swap.PoolAddresses() {
		if _, ok := set[a]; ok {
			return true
		}
	}
	return false
}

// FirstStuffingHash returns the first stuffing hash, the zero hash when the
// candidate stands alone.
func (d *TxComposeData) FirstStuffingHash() common.Hash {
	if len(d.StuffingTxHashes) == 0 {
		return common.Hash{}
	}
	return d.StuffingTxHashes[0]
}

// TipsGasRatio is tips per unit of gas, zero when gas is zero.
func (d *TxComposeData) TipsGasRatio() *uint256.Int {
	if d.Gas == 0 {
		return uint256.NewInt(0)
	}
	tips := d.Tips
	if tips == nil {
		tips = uint256.NewInt(0)
	}
	return new(uint256.Int).Div(tips, uint256.NewInt(d.Gas))
}

// ProfitETHGasRatio is settlement-asset profit per unit of gas, zero when gas
// is zero.
func (d *TxComposeData) ProfitETHGasRatio() *uint256.Int {
	if d.Gas == 0 {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).Div(d.Swap.AbsProfitETH(), uint256.NewInt(d.Gas))
}

// StageKind tags the pipeline stage a TxCompose message denotes.
type StageKind uint8

const (
	// StageEncode: plan finalized, bundle not yet built.
	StageEncode StageKind = iota
	// StageEstimate: gas/profit estimation requested.
	StageEstimate
	// StageSign: signing requested.
	StageSign
	// StageBroadcast: ready to submit.
	StageBroadcast
)

func (k StageKind) String() string {
	switch k {
	case StageEncode:
		return "encode"
	case StageEstimate:
		return "estimate"
	case StageSign:
		return "sign"
	case StageBroadcast:
		return "broadcast"
	default:
		return "unknown"
	}
}

// TxCompose is the pipeline message: a stage tag around one candidate. The
// payload is immutable per message; stage transitions emit a new message with
// an updated copy of the data.
type TxCompose struct {
	Stage StageKind
	Data  *TxComposeData
}

// Encode wraps data in an encode-stage message.
func Encode(data *TxComposeData) TxCompose {
	return TxCompose{Stage: StageEncode, Data: data}
}

// Estimate wraps data in an estimate-stage message.
func Estimate(data *TxComposeData) TxCompose {
	return TxCompose{Stage: StageEstimate, Data: data}
}

// Sign wraps data in a sign-stage message.
func Sign(data *TxComposeData) TxCompose {
	return TxCompose{Stage: StageSign, Data: data}
}

// Broadcast wraps data in a broadcast-stage message.
func Broadcast(data *TxComposeData) TxCompose {
	return TxCompose{Stage: StageBroadcast, Data: data}
}
