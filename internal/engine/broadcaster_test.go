package engine

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gaon3/loom/internal/compose"
	"github.com/Gaon3/loom/internal/events"
	"github.com/Gaon3/loom/internal/platform/resilience"
	"github.com/Gaon3/loom/internal/platform/worker"
)

type submission struct {
	block uint64
	txs   [][]byte
}

type relayStub struct {
	calls atomic.Int64
	mu    sync.Mutex
	err   error
	ch    chan submission
}

func newRelayStub(err error) *relayStub {
	return &relayStub{err: err, ch: make(chan submission, 16)}
}

func (r *relayStub) SubmitBundle(_ context.Context, block uint64, txs [][]byte) error {
	r.calls.Add(1)
	r.mu.Lock()
	err := r.err
	r.mu.Unlock()
	r.ch <- submission{block: block, txs: txs}
	return err
}

func (r *relayStub) setErr(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func (r *relayStub) wait(t *testing.T) submission {
	t.Helper()
	select {
	case s := <-r.ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a relay submission")
	}
	return submission{}
}

func startBroadcaster(t *testing.T, relay Relay) *events.Bus[compose.TxCompose] {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	in := events.NewBus[compose.TxCompose]()
	pool := worker.NewPool(ctx, 2, 16)

	b := NewBroadcaster(BroadcasterConfig{
		Sub:      in.Subscribe(16),
		Relay:    relay,
		Breaker:  resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "relay"}),
		Encoders: pool,
		Logger:   testLogger(),
		Metrics:  testMetrics(t),
		Retry: &resilience.RetryConfig{
			MaxAttempts: 1,
			BaseDelay:   time.Millisecond,
			MaxDelay:    time.Millisecond,
		},
	})

	done := make(chan error, 1)
	go func() {
		done <- b.Run(ctx)
	}()

	t.Cleanup(func() {
		in.Close()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("broadcaster Run returned %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("broadcaster did not exit after bus close")
		}
		cancel()
		pool.Close()
	})
	return in
}

func broadcastCandidate() *compose.TxComposeData {
	data := compose.NewTxComposeData()
	data.Origin = "test"
	data.Block = 123
	data.Gas = 180000
	data.Swap = profitLine(100, 140, 150000, testAddr(1))
	data.TxBundle = []compose.TxState{
		compose.NewStuffingState(stuffingTx(1)),
		compose.NewReadyForBroadcastState([]byte{0xbe, 0xef}),
	}
	return data
}

func TestBroadcasterSubmitsBundleInOrder(t *testing.T) {
	relay := newRelayStub(nil)
	in := startBroadcaster(t, relay)

	data := broadcastCandidate()
	wantFirst, err := data.TxBundle[0].Tx.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	in.Publish(compose.Broadcast(data))

	got := relay.wait(t)
	if got.block != 123 {
		t.Errorf("target block = %d, want 123", got.block)
	}
	if len(got.txs) != 2 {
		t.Fatalf("submitted %d txs, want 2", len(got.txs))
	}
	if !bytes.Equal(got.txs[0], wantFirst) {
		t.Error("stuffing tx bytes not first in the submitted bundle")
	}
	if !bytes.Equal(got.txs[1], []byte{0xbe, 0xef}) {
		t.Error("backrun bytes not last in the submitted bundle")
	}
}

func TestBroadcasterSkipsUnencodableEntries(t *testing.T) {
	relay := newRelayStub(nil)
	in := startBroadcaster(t, relay)

	// An unsigned intent reaching the broadcaster cannot be encoded; it is
	// skipped rather than poisoning the rest of the bundle.
	data := broadcastCandidate()
	data.TxBundle = append(data.TxBundle, compose.NewSignatureRequiredState(&compose.TxRequest{Nonce: 9}))

	in.Publish(compose.Broadcast(data))

	got := relay.wait(t)
	if len(got.txs) != 2 {
		t.Fatalf("submitted %d txs, want 2 (the unsigned intent skipped)", len(got.txs))
	}
}

func TestEncodeBundleTagsEntriesByKind(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool := worker.NewPool(ctx, 2, 16)
	defer pool.Close()

	b := NewBroadcaster(BroadcasterConfig{
		Encoders: pool,
		Logger:   testLogger(),
		Metrics:  testMetrics(t),
	})

	bundle := []compose.TxState{
		compose.NewStuffingState(stuffingTx(1)),
		compose.NewReadyForBroadcastState([]byte{0xbe, 0xef}),
		compose.NewSignatureRequiredState(&compose.TxRequest{Nonce: 9}),
	}
	encoded := b.encodeBundle(bundle)

	if len(encoded) != 3 {
		t.Fatalf("encoded %d entries, want 3", len(encoded))
	}
	if encoded[0].Kind != compose.RlpStateStuffing {
		t.Errorf("encoded[0].Kind = %v, want stuffing", encoded[0].Kind)
	}
	if encoded[1].Kind != compose.RlpStateBackrun {
		t.Errorf("encoded[1].Kind = %v, want backrun", encoded[1].Kind)
	}
	if !encoded[2].IsNone() {
		t.Error("unsigned intent should leave a none entry in the encoded bundle")
	}
}

func TestBroadcasterDoesNotMutatePayload(t *testing.T) {
	relay := newRelayStub(nil)
	in := startBroadcaster(t, relay)

	// The published payload is shared with every subscriber on the bus;
	// the broadcaster must work on its own clone.
	data := broadcastCandidate()
	in.Publish(compose.Broadcast(data))
	relay.wait(t)

	if data.RlpBundle != nil {
		t.Error("broadcaster wrote the encoded bundle into the shared payload")
	}
}

func TestBroadcasterDropsEmptyBundle(t *testing.T) {
	relay := newRelayStub(nil)
	in := startBroadcaster(t, relay)

	data := broadcastCandidate()
	data.TxBundle = []compose.TxState{
		compose.NewSignatureRequiredState(&compose.TxRequest{Nonce: 9}),
	}

	in.Publish(compose.Broadcast(data))

	time.Sleep(100 * time.Millisecond)
	if calls := relay.calls.Load(); calls != 0 {
		t.Errorf("relay called %d times for an empty bundle, want 0", calls)
	}
}

func TestBroadcasterIgnoresOtherStages(t *testing.T) {
	relay := newRelayStub(nil)
	in := startBroadcaster(t, relay)

	in.Publish(compose.Sign(broadcastCandidate()))

	time.Sleep(100 * time.Millisecond)
	if calls := relay.calls.Load(); calls != 0 {
		t.Errorf("relay called %d times for a sign-stage message, want 0", calls)
	}
}

func TestBroadcasterSurvivesRelayFailure(t *testing.T) {
	relay := newRelayStub(errors.New("execution reverted"))
	in := startBroadcaster(t, relay)

	in.Publish(compose.Broadcast(broadcastCandidate()))
	relay.wait(t)

	// A revert is not retried.
	time.Sleep(50 * time.Millisecond)
	if calls := relay.calls.Load(); calls != 1 {
		t.Errorf("relay called %d times, want 1 (reverts are permanent)", calls)
	}

	// The actor keeps serving later candidates.
	relay.setErr(nil)
	in.Publish(compose.Broadcast(broadcastCandidate()))
	if got := relay.wait(t); got.block != 123 {
		t.Errorf("target block = %d, want 123", got.block)
	}
}
