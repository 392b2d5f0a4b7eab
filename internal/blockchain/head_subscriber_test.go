package blockchain

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/Gaon3/loom/internal/events"
	"github.com/Gaon3/loom/internal/platform/observability"
	"github.com/ethereum/go-ethereum/core/types"
)

func testSubscriber(t *testing.T, bus *events.Bus[events.BlockEvent]) *HeadSubscriber {
	t.Helper()
	metrics, err := observability.NewMetrics("test", false)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	sub, err := NewHeadSubscriber(HeadSubscriberConfig{
		WebSocketURLs: []string{"ws://localhost:8546"},
		Bus:           bus,
		Logger:        observability.NewLogger("error", "text"),
		Metrics:       metrics,
	})
	if err != nil {
		t.Fatalf("NewHeadSubscriber: %v", err)
	}
	return sub
}

func header(number uint64) *types.Header {
	return &types.Header{Number: new(big.Int).SetUint64(number), Time: number * 12}
}

func TestNewHeadSubscriberValidation(t *testing.T) {
	bus := events.NewBus[events.BlockEvent]()
	defer bus.Close()

	if _, err := NewHeadSubscriber(HeadSubscriberConfig{Bus: bus}); err == nil {
		t.Error("no WebSocket URLs must fail")
	}
	if _, err := NewHeadSubscriber(HeadSubscriberConfig{WebSocketURLs: []string{"ws://x"}}); err == nil {
		t.Error("no bus must fail")
	}
}

func TestNewHeadSubscriberDefaults(t *testing.T) {
	bus := events.NewBus[events.BlockEvent]()
	defer bus.Close()

	sub := testSubscriber(t, bus)
	if sub.reconnect != DefaultReconnectConfig() {
		t.Errorf("reconnect = %+v, want defaults", sub.reconnect)
	}
	if sub.pollInterval != 12*time.Second {
		t.Errorf("poll interval = %v, want 12s", sub.pollInterval)
	}
	if sub.maxWSErrors != 3 {
		t.Errorf("max ws errors = %d, want 3", sub.maxWSErrors)
	}
}

func TestHandleHeaderPublishesNewHeads(t *testing.T) {
	bus := events.NewBus[events.BlockEvent]()
	defer bus.Close()
	recv := bus.Subscribe(16)

	sub := testSubscriber(t, bus)
	ctx := context.Background()

	sub.handleHeader(ctx, header(100))
	event, err := recv.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if event.Number != 100 || event.Timestamp != 1200 {
		t.Errorf("event = %+v, want block 100 at time 1200", event)
	}
	if sub.LastBlockNumber() != 100 {
		t.Errorf("last block = %d, want 100", sub.LastBlockNumber())
	}
}

func TestHandleHeaderSkipsOldAndDegenerateHeads(t *testing.T) {
	bus := events.NewBus[events.BlockEvent]()
	defer bus.Close()
	recv := bus.Subscribe(16)

	sub := testSubscriber(t, bus)
	ctx := context.Background()

	sub.handleHeader(ctx, header(100))
	if _, err := recv.Recv(ctx); err != nil {
		t.Fatalf("Recv: %v", err)
	}

	// A duplicate, an older head, a nil header and a zero-number header all
	// publish nothing.
	sub.handleHeader(ctx, header(100))
	sub.handleHeader(ctx, header(99))
	sub.handleHeader(ctx, nil)
	sub.handleHeader(ctx, &types.Header{})
	sub.handleHeader(ctx, header(0))

	select {
	case event := <-recv.C():
		t.Fatalf("unexpected event for block %d", event.Number)
	case <-time.After(50 * time.Millisecond):
	}
	if sub.LastBlockNumber() != 100 {
		t.Errorf("last block = %d, want 100", sub.LastBlockNumber())
	}
}

func TestReconnectDelayBacksOffExponentially(t *testing.T) {
	bus := events.NewBus[events.BlockEvent]()
	defer bus.Close()

	sub := testSubscriber(t, bus)
	sub.reconnect = ReconnectConfig{BaseDelay: time.Second, MaxDelay: 30 * time.Second}

	for _, tt := range []struct {
		attempts int
		want     time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{10, 30 * time.Second},
	} {
		sub.attempts = tt.attempts
		if got := sub.reconnectDelay(); got != tt.want {
			t.Errorf("attempts %d: delay = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

func TestReconnectDelayJitterStaysInBand(t *testing.T) {
	bus := events.NewBus[events.BlockEvent]()
	defer bus.Close()

	sub := testSubscriber(t, bus)
	sub.reconnect = ReconnectConfig{BaseDelay: time.Second, MaxDelay: 30 * time.Second, Jitter: 0.2}
	sub.attempts = 2

	for i := 0; i < 100; i++ {
		got := sub.reconnectDelay()
		if got < 3200*time.Millisecond || got > 4800*time.Millisecond {
			t.Fatalf("jittered delay = %v, want within [3.2s, 4.8s]", got)
		}
	}
}
