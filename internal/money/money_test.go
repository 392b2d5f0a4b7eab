package money

import (
	"math"
	"testing"

	"github.com/holiman/uint256"
)

func TestBPSArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		a        BPS
		b        BPS
		op       string
		expected BPS
	}{
		{"add", NewBPSFromInt(100), NewBPSFromInt(50), "add", NewBPSFromInt(150)},
		{"add zero", NewBPSFromInt(100), NewBPSFromInt(0), "add", NewBPSFromInt(100)},
		{"sub", NewBPSFromInt(100), NewBPSFromInt(30), "sub", NewBPSFromInt(70)},
		{"sub to negative", NewBPSFromInt(30), NewBPSFromInt(100), "sub", NewBPSFromInt(-70)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var result BPS
			switch tt.op {
			case "add":
				result = tt.a.Add(tt.b)
			case "sub":
				result = tt.a.Sub(tt.b)
			}
			if result != tt.expected {
				t.Errorf("got %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestBPSApplyTo(t *testing.T) {
	tests := []struct {
		name     string
		bps      BPS
		value    *uint256.Int
		expected *uint256.Int
	}{
		{"90% of 10000", NewBPSFromInt(9000), uint256.NewInt(10000), uint256.NewInt(9000)},
		{"1% of 10000", NewBPSFromInt(100), uint256.NewInt(10000), uint256.NewInt(100)},
		{"100% keeps value", NewBPSFromInt(10000), uint256.NewInt(12345), uint256.NewInt(12345)},
		{"rounds down", NewBPSFromInt(1), uint256.NewInt(9999), uint256.NewInt(0)},
		{"zero bps", NewBPSFromInt(0), uint256.NewInt(10000), uint256.NewInt(0)},
		{"negative bps", NewBPSFromInt(-100), uint256.NewInt(10000), uint256.NewInt(0)},
		{"nil value", NewBPSFromInt(100), nil, uint256.NewInt(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.bps.ApplyTo(tt.value)
			if result.Cmp(tt.expected) != 0 {
				t.Errorf("got %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestBPSApplyToLargeValue(t *testing.T) {
	// 2^200 scaled by 50% must not overflow 64-bit intermediate math.
	value := new(uint256.Int).Lsh(uint256.NewInt(1), 200)
	want := new(uint256.Int).Lsh(uint256.NewInt(1), 199)

	got := NewBPSFromInt(5000).ApplyTo(value)
	if got.Cmp(want) != 0 {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestBPSValid(t *testing.T) {
	tests := []struct {
		bps   BPS
		valid bool
	}{
		{NewBPSFromInt(0), true},
		{NewBPSFromInt(5000), true},
		{NewBPSFromInt(10000), true},
		{NewBPSFromInt(10001), false},
		{NewBPSFromInt(-1), false},
	}

	for _, tt := range tests {
		if got := tt.bps.Valid(); got != tt.valid {
			t.Errorf("%v.Valid() = %v, want %v", tt.bps, got, tt.valid)
		}
	}
}

func TestBPSStrings(t *testing.T) {
	if got := NewBPSFromInt(50).Percent(); got != "0.50%" {
		t.Errorf("Percent() = %q, want %q", got, "0.50%")
	}
	if got := NewBPSFromInt(50).String(); got != "50 bps" {
		t.Errorf("String() = %q, want %q", got, "50 bps")
	}
	if got := NewBPS(0.5); got != NewBPSFromInt(50) {
		t.Errorf("NewBPS(0.5) = %v, want 50 bps", got)
	}
}

func TestGweiWei(t *testing.T) {
	tests := []struct {
		name     string
		gwei     Gwei
		expected *uint256.Int
	}{
		{"one gwei", NewGwei(1), uint256.NewInt(1e9)},
		{"thirty gwei", NewGwei(30), uint256.NewInt(30e9)},
		{"zero", NewGwei(0), uint256.NewInt(0)},
		{"negative clamps", Gwei(-5), uint256.NewInt(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.gwei.Wei(); got.Cmp(tt.expected) != 0 {
				t.Errorf("got %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestWeiToGwei(t *testing.T) {
	if got := WeiToGwei(nil); got != 0 {
		t.Errorf("WeiToGwei(nil) = %v, want 0", got)
	}
	if got := WeiToGwei(uint256.NewInt(1e9)); got != 1 {
		t.Errorf("WeiToGwei(1e9 wei) = %v, want 1", got)
	}
	if got := WeiToGwei(uint256.NewInt(5e8)); got != 0.5 {
		t.Errorf("WeiToGwei(5e8 wei) = %v, want 0.5", got)
	}

	// Amounts past 64 bits must keep their magnitude instead of being
	// truncated to the low word.
	huge := new(uint256.Int).Lsh(uint256.NewInt(1), 70)
	want := math.Ldexp(1, 70) / 1e9
	if got := WeiToGwei(huge); got != want {
		t.Errorf("WeiToGwei(2^70 wei) = %v, want %v", got, want)
	}
}
