package market

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Token represents an ERC-20 token referenced by swap paths.
// Tokens are shared read-only between components; the ETH price is set once
// at construction (or refreshed by replacing the registry entry) and never
// mutated through this package.
type Token struct {
	Address  common.Address
	Symbol   string
	Decimals uint8

	// ethPrice is the wei value of one whole token, nil when unknown.
	ethPrice *uint256.Int
}

// NewToken creates a token without a known ETH price.
func NewToken(address common.Address, symbol string, decimals uint8) *Token {
	return &Token{Address: address, Symbol: symbol, Decimals: decimals}
}

// NewTokenWithPrice creates a token with a known ETH price (wei per whole token).
func NewTokenWithPrice(address common.Address, symbol string, decimals uint8, ethPrice *uint256.Int) *Token {
	t := NewToken(address, symbol, decimals)
	if ethPrice != nil {
		t.ethPrice = new(uint256.Int).Set(ethPrice)
	}
	return t
}

// IsWETH reports whether this token is the settlement asset itself.
func (t *Token) IsWETH() bool {
	return t.Symbol == "WETH"
}

// CalcETHValue converts an amount of this token (in base units) to wei.
// Returns false when no ETH price is known.
func (t *Token) CalcETHValue(amount *uint256.Int) (*uint256.Int, bool) {
	if amount == nil {
		return uint256.NewInt(0), true
	}
	if t.IsWETH() {
		return new(uint256.Int).Set(amount), true
	}
	if t.ethPrice == nil {
		return nil, false
	}
	value := new(uint256.Int).Mul(amount, t.ethPrice)
	value.Div(value, pow10(t.Decimals))
	return value, true
}

func pow10(n uint8) *uint256.Int {
	r := uint256.NewInt(1)
	ten := uint256.NewInt(10)
	for i := uint8(0); i < n; i++ {
		r.Mul(r, ten)
	}
	return r
}
