// Package swap models composite trade plans and the valuation algebra over
// them: absolute profit, profit in the settlement asset, pre-simulation gas
// estimates and the pool/token sets a plan touches. All valuation functions
// are pure and total; an empty or unknown plan values to zero.
package swap

import (
	"fmt"
	"strings"

	"github.com/Gaon3/loom/internal/market"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Line is a single composite swap path: token[0] -> pool[0] -> token[1] ...
// The amounts and the gas estimate are filled in by the path search and the
// simulator; a zero GasUsed means "not simulated yet".
type Line struct {
	// Path is the token route, one entry longer than Pools.
	Path []*market.Token
	// Pools are the pools traversed, in execution order.
	Pools []common.Address

	AmountIn  *uint256.Int
	AmountOut *uint256.Int
	GasUsed   uint64
}

// FirstToken returns the entry token of the path, nil for an empty path.
func (l *Line) FirstToken() *market.Token {
	if l == nil || len(l.Path) == 0 {
		return nil
	}
	return l.Path[0]
}

// AbsProfit returns AmountOut - AmountIn in the entry token, clamped at zero.
func (l *Line) AbsProfit() *uint256.Int {
	if l == nil || l.AmountIn == nil || l.AmountOut == nil {
		return uint256.NewInt(0)
	}
	if l.AmountOut.Cmp(l.AmountIn) <= 0 {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).Sub(l.AmountOut, l.AmountIn)
}

// AbsProfitETH converts AbsProfit to wei using the entry token's ETH price.
// A missing token or price values to zero rather than failing.
func (l *Line) AbsProfitETH() *uint256.Int {
	profit := l.AbsProfit()
	if profit.IsZero() {
		return profit
	}
	token := l.FirstToken()
	if token == nil {
		return uint256.NewInt(0)
	}
	value, ok := token.CalcETHValue(profit)
	if !ok {
		return uint256.NewInt(0)
	}
	return value
}

// String renders the line as its token route, e.g. "WETH->USDC->WETH".
func (l *Line) String() string {
	if l == nil || len(l.Path) == 0 {
		return "EMPTY_SWAP_LINE"
	}
	symbols := make([]string, 0, len(l.Path))
	for _, t := range l.Path {
		if t == nil {
			symbols = append(symbols, "?")
			continue
		}
		symbols = append(symbols, t.Symbol)
	}
	return fmt.Sprintf("%s [pools=%d gas=%d]", strings.Join(symbols, "->"), len(l.Pools), l.GasUsed)
}
