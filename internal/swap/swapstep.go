package swap

import (
	"fmt"

	"github.com/Gaon3/loom/internal/market"
	"github.com/holiman/uint256"
)

// Step is one side of a paired backrun: an ordered set of swap lines that are
// executed together. Two steps form a unit whose profit is only defined
// jointly, see StepsAbsProfit.
type Step struct {
	Lines []*Line
}

// NewStep creates a step over the given lines.
func NewStep(lines ...*Line) *Step {
	return &Step{Lines: lines}
}

// FirstToken returns the entry token of the first line, nil when empty.
func (s *Step) FirstToken() *market.Token {
	if s == nil || len(s.Lines) == 0 {
		return nil
	}
	return s.Lines[0].FirstToken()
}

// TotalIn sums AmountIn over all lines.
func (s *Step) TotalIn() *uint256.Int {
	total := uint256.NewInt(0)
	if s == nil {
		return total
	}
	for _, l := range s.Lines {
		if l != nil && l.AmountIn != nil {
			total.Add(total, l.AmountIn)
		}
	}
	return total
}

// TotalOut sums AmountOut over all lines.
func (s *Step) TotalOut() *uint256.Int {
	total := uint256.NewInt(0)
	if s == nil {
		return total
	}
	for _, l := range s.Lines {
		if l != nil && l.AmountOut != nil {
			total.Add(total, l.AmountOut)
		}
	}
	return total
}

// GasUsed sums the per-line gas estimates, missing estimates count as zero.
func (s *Step) GasUsed() uint64 {
	if s == nil {
		return 0
	}
	var total uint64
	for _, l := range s.Lines {
		if l != nil {
			total += l.GasUsed
		}
	}
	return total
}

func (s *Step) String() string {
	if s == nil || len(s.Lines) == 0 {
		return "EMPTY_SWAP_STEP"
	}
	return fmt.Sprintf("STEP(%d lines, %s)", len(s.Lines), s.Lines[0])
}

// StepsAbsProfit is the paired-step profit rule: the profit of executing both
// sides as one unit, i.e. what the closing step returns minus what the opening
// step spends, in the opening step's entry token. It is zero when either side
// is empty or the two sides do not start in the same token.
func StepsAbsProfit(open, close *Step) *uint256.Int {
	if open == nil || close == nil || len(open.Lines) == 0 || len(close.Lines) == 0 {
		return uint256.NewInt(0)
	}
	openToken, closeToken := open.FirstToken(), close.FirstToken()
	if openToken == nil || closeToken == nil || openToken.Address != closeToken.Address {
		return uint256.NewInt(0)
	}
	in, out := open.TotalIn(), close.TotalOut()
	if out.Cmp(in) <= 0 {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).Sub(out, in)
}

// StepsAbsProfitETH converts StepsAbsProfit to wei via the opening step's
// entry token. Unknown prices value to zero.
func StepsAbsProfitETH(open, close *Step) *uint256.Int {
	profit := StepsAbsProfit(open, close)
	if profit.IsZero() {
		return profit
	}
	token := open.FirstToken()
	if token == nil {
		return uint256.NewInt(0)
	}
	value, ok := token.CalcETHValue(profit)
	if !ok {
		return uint256.NewInt(0)
	}
	return value
}
