package engine

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/Gaon3/loom/internal/compose"
	"github.com/Gaon3/loom/internal/events"
	"github.com/Gaon3/loom/internal/platform/cache"
	"github.com/Gaon3/loom/internal/platform/observability"
	"github.com/ethereum/go-ethereum/crypto"
)

// DefaultDedupeTTL bounds how long an already-seen candidate shape keeps
// suppressing rediscoveries; two blocks is plenty.
const DefaultDedupeTTL = 24 * time.Second

// Encoder consumes encode-stage candidates, drops rediscoveries of the same
// opportunity and builds the transaction bundle around the stuffing
// transactions, then emits the estimate stage.
type Encoder struct {
	sub       *events.Subscription[compose.TxCompose]
	out       *events.Bus[compose.TxCompose]
	dedupe    cache.Cache
	logger    *observability.Logger
	metrics   *observability.Metrics
	dedupeTTL time.Duration
}

// EncoderConfig holds the encoder's collaborators.
type EncoderConfig struct {
	Sub     *events.Subscription[compose.TxCompose]
	Out     *events.Bus[compose.TxCompose]
	Dedupe  cache.Cache
	Logger  *observability.Logger
	Metrics *observability.Metrics
	// DedupeTTL overrides the dedupe window, 0 means default.
	DedupeTTL time.Duration
}

// NewEncoder creates the encoder actor.
func NewEncoder(cfg EncoderConfig) *Encoder {
	ttl := cfg.DedupeTTL
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	return &Encoder{
		sub:       cfg.Sub,
		out:       cfg.Out,
		dedupe:    cfg.Dedupe,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		dedupeTTL: ttl,
	}
}

// Run is the encoder loop.
func (e *Encoder) Run(ctx context.Context) error {
	for {
		msg, err := e.sub.Recv(ctx)
		if err != nil {
			var lagged *events.LaggedError
			switch {
			case errors.As(err, &lagged):
				e.logger.Warn("encoder lagged", "missed", lagged.Missed)
				e.metrics.RecordError(ctx, "encoder_lag")
				continue
			case errors.Is(err, events.ErrBusClosed):
				return nil
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return nil
			default:
				e.logger.LogError(ctx, "encoder receive failed", err)
				continue
			}
		}
		if msg.Stage != compose.StageEncode {
			continue
		}
		e.handle(ctx, msg.Data)
	}
}

func (e *Encoder) handle(ctx context.Context, data *compose.TxComposeData) {
	started := time.Now()
	defer func() {
		e.metrics.RecordCandidate(ctx, compose.StageEncode.String(), time.Since(started))
	}()

	if e.isDuplicate(ctx, data) {
		e.logger.Debug("duplicate candidate dropped",
			"origin", data.Origin,
			"stuffing", data.FirstStuffingHash().Hex(),
		)
		e.metrics.RecordError(ctx, "duplicate_candidate")
		return
	}

	next := data.Clone()
	next.TxBundle = e.buildBundle(next)

	e.out.Publish(compose.Estimate(next))
	e.logger.Debug("candidate encoded",
		"origin", next.Origin,
		"block", next.Block,
		"bundle_size", len(next.TxBundle),
		"swap", next.Swap.String(),
	)
}

// buildBundle assembles the per-sub-transaction states: the stuffing
// transactions in mempool order followed by the unsigned backrun intent.
func (e *Encoder) buildBundle(data *compose.TxComposeData) []compose.TxState {
	bundle := make([]compose.TxState, 0, len(data.StuffingTxs)+1)
	for _, tx := range data.StuffingTxs {
		bundle = append(bundle, compose.NewStuffingState(tx))
	}

	req := &compose.TxRequest{
		Nonce:     data.Nonce,
		Gas:       data.Gas,
		GasFeeCap: data.GasFee,
		GasTipCap: data.PriorityGasFee,
		Value:     data.Value,
		Data:      data.Opcodes,
	}
	if data.Signer != nil {
		req.From = data.Signer.Address
	}
	bundle = append(bundle, compose.NewSignatureRequiredState(req))
	return bundle
}

// isDuplicate records the candidate's shape in the dedupe cache and reports
// whether it was already there. Without a cache every candidate is fresh.
func (e *Encoder) isDuplicate(ctx context.Context, data *compose.TxComposeData) bool {
	if e.dedupe == nil {
		return false
	}
	key := dedupeKey(data)
	if _, err := e.dedupe.Get(ctx, key); err == nil {
		e.metrics.RecordCacheHit(ctx, "dedupe")
		return true
	}
	e.metrics.RecordCacheMiss(ctx, "dedupe")
	if err := e.dedupe.Set(ctx, key, []byte{1}, e.dedupeTTL); err != nil {
		e.logger.LogError(ctx, "dedupe cache set failed", err)
	}
	return false
}

// dedupeKey hashes the stuffing set and the touched pools: two candidates
// over the same transactions and the same liquidity are the same opportunity.
func dedupeKey(data *compose.TxComposeData) string {
	hashes := append([]byte(nil), []byte("compose:")...)

	stuffing := make([][]byte, 0, len(data.StuffingTxHashes))
	for _, h := range data.StuffingTxHashes {
		stuffing = append(stuffing, h.Bytes())
	}
	sort.Slice(stuffing, func(i, j int) bool {
		return string(stuffing[i]) < string(stuffing[j])
	})
	for _, b := range stuffing {
		hashes = append(hashes, b...)
	}
	for _, pool := range data.Swap.PoolAddresses() {
		hashes = append(hashes, pool.Bytes()...)
	}
	return string(crypto.Keccak256(hashes))
}
