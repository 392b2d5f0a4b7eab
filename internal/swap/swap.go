package swap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Gaon3/loom/internal/market"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ErrNoFirstToken is returned by FirstTokens when a plan has no entry token.
var ErrNoFirstToken = errors.New("swap: no first token")

// Kind tags the Swap variants.
type Kind uint8

const (
	// KindNone is the empty plan; every valuation is zero.
	KindNone Kind = iota
	// KindBackrunLine is a single composite swap path.
	KindBackrunLine
	// KindBackrunSteps is a paired two-sided backrun, valued jointly.
	KindBackrunSteps
	// KindMultiple is a composite of independently valued sub-plans.
	KindMultiple
)

// Swap is a trade plan: one of the four Kind variants. The zero value is the
// empty plan. Valuation methods are total over every variant; they never fail
// and value unknown or empty data to zero.
type Swap struct {
	kind     Kind
	line     *Line
	open     *Step
	close    *Step
	children []Swap
}

// None returns the empty plan.
func None() Swap {
	return Swap{kind: KindNone}
}

// NewBackrunLine wraps a single swap line. A nil line is the empty plan.
func NewBackrunLine(line *Line) Swap {
	if line == nil {
		return None()
	}
	return Swap{kind: KindBackrunLine, line: line}
}

// NewBackrunSteps wraps a paired two-sided backrun.
func NewBackrunSteps(open, close *Step) Swap {
	if open == nil || close == nil {
		return None()
	}
	return Swap{kind: KindBackrunSteps, open: open, close: close}
}

// NewMultiple wraps a composite of sub-plans. The children slice is not
// copied; callers hand over ownership.
func NewMultiple(children []Swap) Swap {
	return Swap{kind: KindMultiple, children: children}
}

// Kind returns the variant tag.
func (s Swap) Kind() Kind { return s.kind }

// Line returns the swap line of a KindBackrunLine plan, nil otherwise.
func (s Swap) Line() *Line { return s.line }

// Steps returns the open/close steps of a KindBackrunSteps plan.
func (s Swap) Steps() (*Step, *Step) { return s.open, s.close }

// Children returns the sub-plans of a KindMultiple plan.
func (s Swap) Children() []Swap { return s.children }

// AbsProfit is the plan's profit in its output asset. Multiple sums its
// children; the paired variant uses the joint step rule.
func (s Swap) AbsProfit() *uint256.Int {
	switch s.kind {
	case KindBackrunLine:
		return s.line.AbsProfit()
	case KindBackrunSteps:
		return StepsAbsProfit(s.open, s.close)
	case KindMultiple:
		total := uint256.NewInt(0)
		for _, child := range s.children {
			total.Add(total, child.AbsProfit())
		}
		return total
	case KindNone:
		return uint256.NewInt(0)
	default:
		return uint256.NewInt(0)
	}
}

// AbsProfitETH is the plan's profit converted to the settlement asset (wei).
func (s Swap) AbsProfitETH() *uint256.Int {
	switch s.kind {
	case KindBackrunLine:
		return s.line.AbsProfitETH()
	case KindBackrunSteps:
		return StepsAbsProfitETH(s.open, s.close)
	case KindMultiple:
		total := uint256.NewInt(0)
		for _, child := range s.children {
			total.Add(total, child.AbsProfitETH())
		}
		return total
	case KindNone:
		return uint256.NewInt(0)
	default:
		return uint256.NewInt(0)
	}
}

// PreEstimateGas sums the per-leg gas estimates across the plan. Missing
// estimates count as zero.
func (s Swap) PreEstimateGas() uint64 {
	switch s.kind {
	case KindBackrunLine:
		if s.line == nil {
			return 0
		}
		return s.line.GasUsed
	case KindBackrunSteps:
		return s.open.GasUsed() + s.close.GasUsed()
	case KindMultiple:
		var total uint64
		for _, child := range s.children {
			total += child.PreEstimateGas()
		}
		return total
	case KindNone:
		return 0
	default:
		return 0
	}
}

// PoolAddresses returns every pool the plan touches, in traversal order.
// Duplicates are kept; callers that need a set dedup themselves. For the
// paired variant only the opening step's pools are reported, matching how the
// two sides contend for the same liquidity.
func (s Swap) PoolAddresses() []common.Address {
	switch s.kind {
	case KindBackrunLine:
		if s.line == nil {
			return nil
		}
		return append([]common.Address(nil), s.line.Pools...)
	case KindBackrunSteps:
		var out []common.Address
		if s.open != nil {
			for _, line := range s.open.Lines {
				if line != nil {
					out = append(out, line.Pools...)
				}
			}
		}
		return out
	case KindMultiple:
		var out []common.Address
		for _, child := range s.children {
			out = append(out, child.PoolAddresses()...)
		}
		return out
	case KindNone:
		return nil
	default:
		return nil
	}
}

// FirstToken returns the entry token of the plan. The second return value is
// false for the empty plan, for composites and for plans whose line/step has
// no path.
func (s Swap) FirstToken() (*market.Token, bool) {
	switch s.kind {
	case KindBackrunLine:
		t := s.line.FirstToken()
		return t, t != nil
	case KindBackrunSteps:
		t := s.open.FirstToken()
		return t, t != nil
	case KindMultiple:
		return nil, false
	case KindNone:
		return nil, false
	default:
		return nil, false
	}
}

// FirstTokens returns the entry tokens of the plan. For Multiple it is the
// deduplicated (by address) list across children; children without an entry
// token are skipped rather than failing the whole call. For the other
// variants a missing entry token is ErrNoFirstToken.
func (s Swap) FirstTokens() ([]*market.Token, error) {
	switch s.kind {
	case KindBackrunLine, KindBackrunSteps:
		t, ok := s.FirstToken()
		if !ok {
			return nil, ErrNoFirstToken
		}
		return []*market.Token{t}, nil
	case KindMultiple:
		seen := make(map[common.Address]struct{})
		var out []*market.Token
		for _, child := range s.children {
			t, ok := child.FirstToken()
			if !ok {
				continue
			}
			if _, dup := seen[t.Address]; dup {
				continue
			}
			seen[t.Address] = struct{}{}
			out = append(out, t)
		}
		return out, nil
	case KindNone:
		return nil, ErrNoFirstToken
	default:
		return nil, ErrNoFirstToken
	}
}

func (s Swap) String() string {
	switch s.kind {
	case KindBackrunLine:
		return s.line.String()
	case KindBackrunSteps:
		return fmt.Sprintf("%s %s", s.open, s.close)
	case KindMultiple:
		parts := make([]string, 0, len(s.children))
		for _, child := range s.children {
			parts = append(parts, child.String())
		}
		return fmt.Sprintf("MULTIPLE_SWAP[%s]", strings.Join(parts, ", "))
	case KindNone:
		return "UNKNOWN_SWAP_TYPE"
	default:
		return "UNKNOWN_SWAP_TYPE"
	}
}
