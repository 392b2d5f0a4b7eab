package market

import (
	"testing"

	"github.com/Gaon3/loom/internal/platform/observability"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func testMarket() *Market {
	return NewMarket(observability.NewLogger("error", "text"))
}

func addr(b byte) common.Address {
	return common.Address{19: b}
}

func TestMarketAddAndGetPool(t *testing.T) {
	m := testMarket()
	pool := NewPool(addr(1), ProtocolUniswapV2, addr(10), addr(11))
	m.AddPool(pool)

	got, ok := m.GetPool(addr(1))
	if !ok {
		t.Fatal("pool not found after AddPool")
	}
	if got.Protocol != ProtocolUniswapV2 {
		t.Errorf("protocol = %v, want %v", got.Protocol, ProtocolUniswapV2)
	}
	if !got.Enabled {
		t.Error("new pool should start enabled")
	}

	if _, ok := m.GetPool(addr(2)); ok {
		t.Error("unknown pool should not be found")
	}
}

func TestMarketGetPoolReturnsSnapshot(t *testing.T) {
	m := testMarket()
	m.AddPool(NewPool(addr(1), ProtocolUniswapV3, addr(10), addr(11)))

	snapshot, _ := m.GetPool(addr(1))
	snapshot.Enabled = false

	if !m.IsPoolEnabled(addr(1)) {
		t.Error("mutating the returned pool must not affect the market")
	}
}

func TestMarketSetPoolEnabled(t *testing.T) {
	m := testMarket()
	m.AddPool(NewPool(addr(1), ProtocolCurve, addr(10), addr(11)))

	m.SetPoolEnabled(addr(1), false)
	if m.IsPoolEnabled(addr(1)) {
		t.Error("pool should be disabled")
	}

	// Idempotent: disabling twice stays disabled.
	m.SetPoolEnabled(addr(1), false)
	if m.IsPoolEnabled(addr(1)) {
		t.Error("pool should stay disabled")
	}

	m.SetPoolEnabled(addr(1), true)
	if !m.IsPoolEnabled(addr(1)) {
		t.Error("pool should be re-enabled")
	}

	// Unknown pool is a no-op, not a panic.
	m.SetPoolEnabled(addr(99), false)
}

func TestMarketDisabledPools(t *testing.T) {
	m := testMarket()
	m.AddPool(NewPool(addr(1), ProtocolUniswapV2, addr(10), addr(11)))
	m.AddPool(NewPool(addr(2), ProtocolUniswapV2, addr(10), addr(12)))
	m.AddPool(NewPool(addr(3), ProtocolUniswapV3, addr(11), addr(12)))

	m.SetPoolEnabled(addr(2), false)

	disabled := m.DisabledPools()
	if len(disabled) != 1 || disabled[0] != addr(2) {
		t.Errorf("DisabledPools() = %v, want [%v]", disabled, addr(2))
	}
	if m.PoolCount() != 3 {
		t.Errorf("PoolCount() = %d, want 3", m.PoolCount())
	}
}

func TestMarketTokens(t *testing.T) {
	m := testMarket()
	m.AddToken(NewToken(addr(10), "USDC", 6))

	if tok := m.GetToken(addr(10)); tok == nil || tok.Symbol != "USDC" {
		t.Errorf("GetToken = %v, want USDC", tok)
	}
	if tok := m.GetToken(addr(11)); tok != nil {
		t.Errorf("unknown token should be nil, got %v", tok)
	}
}

func TestTokenCalcETHValue(t *testing.T) {
	weth := NewToken(addr(1), "WETH", 18)
	// 1 whole USDC (6 decimals) worth 5e14 wei.
	usdc := NewTokenWithPrice(addr(2), "USDC", 6, uint256.NewInt(500000000000000))
	unpriced := NewToken(addr(3), "DAI", 18)

	tests := []struct {
		name     string
		token    *Token
		amount   *uint256.Int
		expected *uint256.Int
		ok       bool
	}{
		{"weth passes through", weth, uint256.NewInt(1234), uint256.NewInt(1234), true},
		{"usdc converts", usdc, uint256.NewInt(2000000), uint256.NewInt(1000000000000000), true},
		{"usdc fractional rounds down", usdc, uint256.NewInt(1), uint256.NewInt(500000000), true},
		{"unpriced fails", unpriced, uint256.NewInt(1000), nil, false},
		{"nil amount is zero", usdc, nil, uint256.NewInt(0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.token.CalcETHValue(tt.amount)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && got.Cmp(tt.expected) != 0 {
				t.Errorf("got %v, want %v", got, tt.expected)
			}
		})
	}
}
