package engine

import (
	"math/big"
	"testing"
	"time"

	"github.com/Gaon3/loom/internal/compose"
	"github.com/Gaon3/loom/internal/events"
	"github.com/Gaon3/loom/internal/market"
	"github.com/Gaon3/loom/internal/platform/observability"
	"github.com/Gaon3/loom/internal/swap"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// Shared fixtures for the actor tests. Every actor test drives its actor
// through real buses and observes the next stage on an output subscription.

func testLogger() *observability.Logger {
	return observability.NewLogger("error", "text")
}

func testMetrics(t *testing.T) *observability.Metrics {
	t.Helper()
	metrics, err := observability.NewMetrics("test", false)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return metrics
}

func testAddr(b byte) common.Address {
	return common.Address{19: b}
}

// profitLine builds a WETH round trip with the given amounts, so its absolute
// profit is already denominated in wei.
func profitLine(in, out, gasUsed uint64, pools ...common.Address) swap.Swap {
	weth := market.NewToken(testAddr(0xee), "WETH", 18)
	path := make([]*market.Token, len(pools)+1)
	for i := range path {
		path[i] = weth
	}
	return swap.NewBackrunLine(&swap.Line{
		Path:      path,
		Pools:     pools,
		AmountIn:  uint256.NewInt(in),
		AmountOut: uint256.NewInt(out),
		GasUsed:   gasUsed,
	})
}

func stuffingTx(nonce uint64) *types.Transaction {
	to := testAddr(0xaa)
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: big.NewInt(1),
		Gas:      21000,
		To:       &to,
		Value:    big.NewInt(0),
	})
}

func recvCompose(t *testing.T, sub *events.Subscription[compose.TxCompose]) compose.TxCompose {
	t.Helper()
	select {
	case msg, ok := <-sub.C():
		if !ok {
			t.Fatal("output bus closed while waiting for a message")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a pipeline message")
	}
	return compose.TxCompose{}
}

func expectNoCompose(t *testing.T, sub *events.Subscription[compose.TxCompose], wait time.Duration) {
	t.Helper()
	select {
	case msg, ok := <-sub.C():
		if ok {
			t.Fatalf("unexpected %s message for origin %q", msg.Stage, msg.Data.Origin)
		}
	case <-time.After(wait):
	}
}
