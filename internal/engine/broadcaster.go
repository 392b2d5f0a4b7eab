package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Gaon3/loom/internal/compose"
	"github.com/Gaon3/loom/internal/events"
	"github.com/Gaon3/loom/internal/notification"
	"github.com/Gaon3/loom/internal/platform/observability"
	"github.com/Gaon3/loom/internal/platform/resilience"
	"github.com/Gaon3/loom/internal/platform/worker"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/google/uuid"
)

// Broadcaster consumes broadcast-stage candidates, encodes the transaction
// bundle to raw wire bytes and hands it to the relay. Relay submission runs
// behind a circuit breaker so a failing relay stops burning candidates.
type Broadcaster struct {
	sub      *events.Subscription[compose.TxCompose]
	relay    Relay
	breaker  *resilience.CircuitBreaker
	encoders *worker.Pool
	notifier notification.Publisher
	logger   *observability.Logger
	metrics  *observability.Metrics
	retryCfg resilience.RetryConfig
}

// BroadcasterConfig holds the broadcaster's collaborators.
type BroadcasterConfig struct {
	Sub      *events.Subscription[compose.TxCompose]
	Relay    Relay
	Breaker  *resilience.CircuitBreaker
	Encoders *worker.Pool
	Notifier notification.Publisher
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	Retry    *resilience.RetryConfig
}

// NewBroadcaster creates the broadcaster actor.
func NewBroadcaster(cfg BroadcasterConfig) *Broadcaster {
	retryCfg := resilience.DefaultRetryConfig()
	if cfg.Retry != nil {
		retryCfg = *cfg.Retry
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notification.NewNoopPublisher(cfg.Logger)
	}
	return &Broadcaster{
		sub:      cfg.Sub,
		relay:    cfg.Relay,
		breaker:  cfg.Breaker,
		encoders: cfg.Encoders,
		notifier: notifier,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		retryCfg: retryCfg,
	}
}

// Run is the broadcaster loop.
func (b *Broadcaster) Run(ctx context.Context) error {
	for {
		msg, err := b.sub.Recv(ctx)
		if err != nil {
			var lagged *events.LaggedError
			switch {
			case errors.As(err, &lagged):
				b.logger.Warn("broadcaster lagged", "missed", lagged.Missed)
				b.metrics.RecordError(ctx, "broadcaster_lag")
				continue
			case errors.Is(err, events.ErrBusClosed):
				return nil
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return nil
			default:
				b.logger.LogError(ctx, "broadcaster receive failed", err)
				continue
			}
		}
		if msg.Stage != compose.StageBroadcast {
			continue
		}
		b.handle(ctx, msg.Data)
	}
}

func (b *Broadcaster) handle(ctx context.Context, data *compose.TxComposeData) {
	started := time.Now()
	defer func() {
		b.metrics.RecordCandidate(ctx, compose.StageBroadcast.String(), time.Since(started))
	}()

	// The received payload is shared with every other subscriber.
	data = data.Clone()
	data.RlpBundle = b.encodeBundle(data.TxBundle)

	raw := make([][]byte, 0, len(data.RlpBundle))
	for _, state := range data.RlpBundle {
		if state.IsNone() {
			continue
		}
		raw = append(raw, state.Unwrap())
	}
	if len(raw) == 0 {
		b.logger.Warn("empty bundle after encoding, nothing to submit", "origin", data.Origin)
		return
	}

	submitStart := time.Now()
	err := b.breaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.RetryIf(ctx, b.retryCfg, resilience.IsRetryable, func(ctx context.Context) error {
			return b.relay.SubmitBundle(ctx, data.Block, raw)
		})
	})
	b.metrics.RecordRelaySubmission(ctx, err == nil, time.Since(submitStart))
	b.metrics.SetCircuitBreakerState(ctx, b.breaker.Name(), b.breaker.StateInt())

	if err != nil {
		b.logger.LogError(ctx, "bundle submission failed", err,
			"origin", data.Origin,
			"block", data.Block,
			"txs", len(raw),
		)
		return
	}

	b.logger.Info("bundle submitted",
		"origin", data.Origin,
		"block", data.Block,
		"txs", len(raw),
		"gas", data.Gas,
	)
	b.notify(ctx, data, len(raw))
}

// encodeBundle turns every bundle entry into raw bytes through the worker
// pool. Results come back in completion order, so jobs carry their index and
// the bundle is reassembled positionally. Entries that fail to encode become
// the none state and are skipped at submission.
func (b *Broadcaster) encodeBundle(bundle []compose.TxState) []compose.RlpState {
	out := make([]compose.RlpState, len(bundle))

	jobs := make([]worker.Job, 0, len(bundle))
	for i, state := range bundle {
		state := state
		jobs = append(jobs, worker.Job{
			ID: strconv.Itoa(i),
			Execute: func(context.Context) (interface{}, error) {
				return state.Rlp()
			},
		})
	}

	for _, res := range b.encoders.SubmitAndWait(jobs) {
		idx, convErr := strconv.Atoi(res.JobID)
		if convErr != nil || idx < 0 || idx >= len(bundle) {
			continue
		}
		if res.Err != nil {
			b.logger.Warn("bundle entry not encodable", "index", idx, "error", res.Err)
			continue
		}
		raw, ok := res.Value.([]byte)
		if !ok {
			continue
		}
		switch bundle[idx].Kind {
		case compose.TxStateStuffing, compose.TxStateReadyForBroadcastStuffing:
			out[idx] = compose.NewRlpStuffing(raw)
		default:
			out[idx] = compose.NewRlpBackrun(raw)
		}
	}

	return out
}

func (b *Broadcaster) notify(ctx context.Context, data *compose.TxComposeData, txCount int) {
	summary := notification.CandidateSummary{
		ID:        uuid.NewString(),
		Origin:    data.Origin,
		Block:     data.Block,
		TxCount:   txCount,
		Gas:       data.Gas,
		Swap:      data.Swap.String(),
		Timestamp: time.Now().UTC(),
	}
	if profit := data.Swap.AbsProfitETH(); profit != nil && !profit.IsZero() {
		summary.ProfitWei = profit.Dec()
	}
	if data.Tips != nil {
		summary.TipsWei = data.Tips.Dec()
	}
	if err := b.notifier.PublishCandidate(ctx, summary); err != nil {
		b.logger.Warn("candidate notification failed", "error", err)
	}
}

// EthSendRelay submits bundle transactions one by one through a plain
// Ethereum JSON-RPC endpoint. It is the fallback for chains without a
// private bundle relay; inclusion and ordering are then up to the public
// mempool.
type EthSendRelay struct {
	client *ethclient.Client
	logger *observability.Logger
}

// NewEthSendRelay wraps an ethclient as a Relay.
func NewEthSendRelay(client *ethclient.Client, logger *observability.Logger) *EthSendRelay {
	return &EthSendRelay{client: client, logger: logger}
}

// SubmitBundle decodes and sends each raw transaction in order. The first
// send failure aborts the rest of the bundle.
func (r *EthSendRelay) SubmitBundle(ctx context.Context, _ uint64, txs [][]byte) error {
	for i, raw := range txs {
		var tx types.Transaction
		if err := tx.UnmarshalBinary(raw); err != nil {
			return fmt.Errorf("decode bundle tx %d: %w", i, err)
		}
		if err := r.client.SendTransaction(ctx, &tx); err != nil {
			return fmt.Errorf("send bundle tx %d (%s): %w", i, tx.Hash().Hex(), err)
		}
		r.logger.Debug("transaction sent", "index", i, "hash", tx.Hash().Hex())
	}
	return nil
}
