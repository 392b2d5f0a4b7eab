package swap

import (
	"testing"

	"github.com/Gaon3/loom/internal/market"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func addr(b byte) common.Address {
	return common.Address{19: b}
}

func weth() *market.Token {
	return market.NewToken(addr(1), "WETH", 18)
}

// line builds a WETH-entry line with the given amounts.
func line(in, out uint64, pools ...common.Address) *Line {
	return &Line{
		Path:      []*market.Token{weth(), market.NewToken(addr(2), "USDC", 6), weth()},
		Pools:     pools,
		AmountIn:  uint256.NewInt(in),
		AmountOut: uint256.NewInt(out),
	}
}

func TestLineAbsProfit(t *testing.T) {
	tests := []struct {
		name     string
		line     *Line
		expected uint64
	}{
		{"profitable", line(100, 150), 50},
		{"break even", line(100, 100), 0},
		{"loss clamps to zero", line(150, 100), 0},
		{"nil line", nil, 0},
		{"missing amounts", &Line{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.line.AbsProfit()
			if got.Cmp(uint256.NewInt(tt.expected)) != 0 {
				t.Errorf("got %v, want %d", got, tt.expected)
			}
		})
	}
}

func TestLineAbsProfitETH(t *testing.T) {
	// WETH entry: profit passes through unchanged.
	l := line(100, 150)
	if got := l.AbsProfitETH(); got.Cmp(uint256.NewInt(50)) != 0 {
		t.Errorf("WETH profit = %v, want 50", got)
	}

	// Entry token without a price values to zero rather than failing.
	unpriced := &Line{
		Path:      []*market.Token{market.NewToken(addr(3), "DAI", 18)},
		AmountIn:  uint256.NewInt(100),
		AmountOut: uint256.NewInt(150),
	}
	if got := unpriced.AbsProfitETH(); !got.IsZero() {
		t.Errorf("unpriced profit = %v, want 0", got)
	}

	// Empty path with zero profit stays zero.
	if got := (&Line{}).AbsProfitETH(); !got.IsZero() {
		t.Errorf("empty line profit = %v, want 0", got)
	}
}

func TestStepsAbsProfit(t *testing.T) {
	entry := weth()
	other := market.NewToken(addr(5), "USDT", 6)

	mkStep := func(token *market.Token, in, out uint64) *Step {
		return NewStep(&Line{
			Path:      []*market.Token{token},
			AmountIn:  uint256.NewInt(in),
			AmountOut: uint256.NewInt(out),
		})
	}

	tests := []struct {
		name     string
		open     *Step
		close    *Step
		expected uint64
	}{
		// Joint rule: close output minus open input. Per-side losses do
		// not matter when the pair nets out positive.
		{"joint profit", mkStep(entry, 100, 40), mkStep(entry, 0, 130), 30},
		{"joint loss clamps", mkStep(entry, 100, 40), mkStep(entry, 0, 90), 0},
		{"break even", mkStep(entry, 100, 0), mkStep(entry, 0, 100), 0},
		{"entry token mismatch", mkStep(entry, 100, 40), mkStep(other, 0, 500), 0},
		{"empty open side", NewStep(), mkStep(entry, 0, 130), 0},
		{"nil close side", mkStep(entry, 100, 40), nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StepsAbsProfit(tt.open, tt.close)
			if got.Cmp(uint256.NewInt(tt.expected)) != 0 {
				t.Errorf("got %v, want %d", got, tt.expected)
			}
		})
	}
}

func TestStepTotals(t *testing.T) {
	s := NewStep(line(100, 150), line(30, 20), nil)
	if got := s.TotalIn(); got.Cmp(uint256.NewInt(130)) != 0 {
		t.Errorf("TotalIn = %v, want 130", got)
	}
	if got := s.TotalOut(); got.Cmp(uint256.NewInt(170)) != 0 {
		t.Errorf("TotalOut = %v, want 170", got)
	}
}

func TestSwapAbsProfitByKind(t *testing.T) {
	entry := weth()
	open := NewStep(&Line{Path: []*market.Token{entry}, AmountIn: uint256.NewInt(100), AmountOut: uint256.NewInt(0)})
	clos := NewStep(&Line{Path: []*market.Token{entry}, AmountIn: uint256.NewInt(0), AmountOut: uint256.NewInt(170)})

	tests := []struct {
		name     string
		swap     Swap
		expected uint64
	}{
		{"none", None(), 0},
		{"zero value", Swap{}, 0},
		{"backrun line", NewBackrunLine(line(100, 150)), 50},
		{"backrun steps", NewBackrunSteps(open, clos), 70},
		{"multiple sums children", NewMultiple([]Swap{
			NewBackrunLine(line(100, 150)),
			NewBackrunSteps(open, clos),
			None(),
		}), 120},
		{"nil line is none", NewBackrunLine(nil), 0},
		{"half pair is none", NewBackrunSteps(open, nil), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.swap.AbsProfit()
			if got.Cmp(uint256.NewInt(tt.expected)) != 0 {
				t.Errorf("AbsProfit = %v, want %d", got, tt.expected)
			}
		})
	}
}

func TestSwapPreEstimateGas(t *testing.T) {
	l := line(100, 150)
	l.GasUsed = 120000

	open := NewStep(&Line{GasUsed: 100000})
	clos := NewStep(&Line{GasUsed: 80000})

	tests := []struct {
		name     string
		swap     Swap
		expected uint64
	}{
		{"none", None(), 0},
		{"line", NewBackrunLine(l), 120000},
		{"steps sum both sides", NewBackrunSteps(open, clos), 180000},
		{"multiple", NewMultiple([]Swap{NewBackrunLine(l), NewBackrunSteps(open, clos)}), 300000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.swap.PreEstimateGas(); got != tt.expected {
				t.Errorf("PreEstimateGas = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestSwapPoolAddresses(t *testing.T) {
	l := line(100, 150, addr(20), addr(21))

	open := NewStep(&Line{Pools: []common.Address{addr(30)}})
	clos := NewStep(&Line{Pools: []common.Address{addr(31)}})

	tests := []struct {
		name     string
		swap     Swap
		expected []common.Address
	}{
		{"none", None(), nil},
		{"line", NewBackrunLine(l), []common.Address{addr(20), addr(21)}},
		// The paired variant reports only the opening side.
		{"steps report open side", NewBackrunSteps(open, clos), []common.Address{addr(30)}},
		{"multiple concatenates", NewMultiple([]Swap{
			NewBackrunLine(l),
			NewBackrunSteps(open, clos),
		}), []common.Address{addr(20), addr(21), addr(30)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.swap.PoolAddresses()
			if len(got) != len(tt.expected) {
				t.Fatalf("got %v, want %v", got, tt.expected)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("pool %d = %v, want %v", i, got[i], tt.expected[i])
				}
			}
		})
	}
}

func TestSwapFirstTokens(t *testing.T) {
	entry := weth()
	other := market.NewToken(addr(5), "USDT", 6)

	lineFor := func(tok *market.Token) *Line {
		return &Line{Path: []*market.Token{tok}, AmountIn: uint256.NewInt(1), AmountOut: uint256.NewInt(1)}
	}

	t.Run("none errors", func(t *testing.T) {
		if _, err := None().FirstTokens(); err != ErrNoFirstToken {
			t.Errorf("err = %v, want ErrNoFirstToken", err)
		}
	})

	t.Run("line", func(t *testing.T) {
		tokens, err := NewBackrunLine(lineFor(entry)).FirstTokens()
		if err != nil {
			t.Fatal(err)
		}
		if len(tokens) != 1 || tokens[0].Address != entry.Address {
			t.Errorf("got %v, want [WETH]", tokens)
		}
	})

	t.Run("multiple dedupes and skips empty children", func(t *testing.T) {
		s := NewMultiple([]Swap{
			NewBackrunLine(lineFor(entry)),
			NewBackrunLine(lineFor(entry)),
			NewBackrunLine(lineFor(other)),
			None(),
		})
		tokens, err := s.FirstTokens()
		if err != nil {
			t.Fatal(err)
		}
		if len(tokens) != 2 {
			t.Fatalf("got %d tokens, want 2", len(tokens))
		}
		if tokens[0].Address != entry.Address || tokens[1].Address != other.Address {
			t.Errorf("got %v, want [WETH USDT]", tokens)
		}
	})
}

func TestSwapString(t *testing.T) {
	if got := None().String(); got != "UNKNOWN_SWAP_TYPE" {
		t.Errorf("None String = %q", got)
	}
	got := NewMultiple([]Swap{None()}).String()
	if got != "MULTIPLE_SWAP[UNKNOWN_SWAP_TYPE]" {
		t.Errorf("Multiple String = %q", got)
	}
}
