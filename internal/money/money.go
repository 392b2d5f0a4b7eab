// Package money provides fixed-point arithmetic for financial parameters.
// Uses int64 with fixed scaling to avoid floating-point precision issues
// in comparisons that decide real money.
package money

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// Scale factors for different precisions
const (
	BPSScale int64 = 10000 // basis points: 100% = 10000
	WeiScale int64 = 1e9   // gwei to wei
)

// BPS represents basis points (1 bps = 0.01% = 0.0001).
type BPS int64

// Gwei represents gas price in gwei.
type Gwei int64

// --- BPS Constructors ---

// NewBPS creates BPS from a percentage (e.g., 0.5 for 0.5% = 50 bps).
func NewBPS(percent float64) BPS {
	return BPS(percent * 100)
}

// NewBPSFromInt creates BPS directly from basis points.
func NewBPSFromInt(bps int64) BPS {
	return BPS(bps)
}

// --- BPS Arithmetic ---

// Add returns a + b.
func (a BPS) Add(b BPS) BPS {
	return a + b
}

// Sub returns a - b.
func (a BPS) Sub(b BPS) BPS {
	return a - b
}

// Abs returns absolute value.
func (a BPS) Abs() BPS {
	if a < 0 {
		return -a
	}
	return a
}

// ApplyTo scales value by a/10000 using exact integer arithmetic.
// A nil or non-positive input yields zero.
func (a BPS) ApplyTo(value *uint256.Int) *uint256.Int {
	if value == nil || a <= 0 {
		return uint256.NewInt(0)
	}
	out := new(uint256.Int).Mul(value, uint256.NewInt(uint64(a)))
	return out.Div(out, uint256.NewInt(uint64(BPSScale)))
}

// --- BPS Comparison ---

// IsPositive returns true if > 0.
func (a BPS) IsPositive() bool {
	return a > 0
}

// GreaterThan returns a > b.
func (a BPS) GreaterThan(b BPS) bool {
	return a > b
}

// Valid reports whether the value lies in [0, 10000].
func (a BPS) Valid() bool {
	return a >= 0 && int64(a) <= BPSScale
}

// --- BPS Conversion ---

// Float64 returns the percentage as float (e.g., 50 bps = 0.5).
func (a BPS) Float64() float64 {
	return float64(a) / 100.0
}

// Percent returns as percentage string (e.g., "0.50%").
func (a BPS) Percent() string {
	return fmt.Sprintf("%.2f%%", float64(a)/100.0)
}

// String returns basis points as string (e.g., "50 bps").
func (a BPS) String() string {
	return fmt.Sprintf("%d bps", int64(a))
}

// Int64 returns raw basis points value.
func (a BPS) Int64() int64 {
	return int64(a)
}

// --- Gwei ---

// NewGwei creates Gwei from a float.
func NewGwei(gwei float64) Gwei {
	return Gwei(gwei)
}

// ToWei converts gwei to wei as int64.
func (g Gwei) ToWei() int64 {
	return int64(g) * WeiScale
}

// Wei converts gwei to wei as an exact integer. Non-positive values yield zero.
func (g Gwei) Wei() *uint256.Int {
	if g <= 0 {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).Mul(uint256.NewInt(uint64(g)), uint256.NewInt(uint64(WeiScale)))
}

// Float64 returns gwei as float.
func (g Gwei) Float64() float64 {
	return float64(g)
}

// String returns formatted string.
func (g Gwei) String() string {
	return fmt.Sprintf("%.1f gwei", float64(g))
}

// WeiToGwei converts an exact wei amount to gwei as a float using the full
// width of the value. For metrics and logs only; amounts above 2^53 wei
// lose precision but not magnitude.
func WeiToGwei(wei *uint256.Int) float64 {
	if wei == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(wei.ToBig()).Float64()
	return f / float64(WeiScale)
}
