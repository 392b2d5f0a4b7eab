package engine

import (
	"context"
	"time"

	"github.com/Gaon3/loom/internal/compose"
	"github.com/Gaon3/loom/internal/events"
	"github.com/Gaon3/loom/internal/money"
	"github.com/Gaon3/loom/internal/platform/observability"
	"golang.org/x/sync/semaphore"
)

// Estimator consumes estimate-stage candidates, fills in the gas estimate,
// derives the tip from the configured tip percentage and runs each candidate
// through the per-window best-candidate selector. Accepted candidates move on
// to signing; the rest are dropped here, protecting the expensive stages.
//
// The selection window is one block: every chain head event replaces the
// selector with a fresh one. The selector is only touched from the actor
// loop, so it needs no synchronization.
type Estimator struct {
	sub       *events.Subscription[compose.TxCompose]
	blocks    *events.Subscription[events.BlockEvent]
	out       *events.Bus[compose.TxCompose]
	gas       GasEstimator
	sem       *semaphore.Weighted
	logger    *observability.Logger
	metrics   *observability.Metrics
	tolerance money.BPS

	selector    *compose.TxComposeBest
	windowBlock uint64
	estimated   chan estimated
}

type estimated struct {
	data *compose.TxComposeData
	gas  uint64
}

// EstimatorConfig holds the estimator's collaborators.
type EstimatorConfig struct {
	Sub    *events.Subscription[compose.TxCompose]
	Blocks *events.Subscription[events.BlockEvent]
	Out    *events.Bus[compose.TxCompose]
	// Gas is optional; without it the plan's pre-estimate is used.
	Gas     GasEstimator
	Logger  *observability.Logger
	Metrics *observability.Metrics
	// Tolerance is the selector's tolerance band in basis points,
	// 0 disables the band.
	Tolerance money.BPS
	// MaxInflight caps concurrent gas estimation calls.
	MaxInflight int64
}

// NewEstimator creates the estimator actor.
func NewEstimator(cfg EstimatorConfig) *Estimator {
	inflight := cfg.MaxInflight
	if inflight <= 0 {
		inflight = 4
	}
	e := &Estimator{
		sub:       cfg.Sub,
		blocks:    cfg.Blocks,
		out:       cfg.Out,
		gas:       cfg.Gas,
		sem:       semaphore.NewWeighted(inflight),
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		tolerance: cfg.Tolerance,
		estimated: make(chan estimated, 64),
	}
	e.selector = e.newSelector()
	return e
}

func (e *Estimator) newSelector() *compose.TxComposeBest {
	if e.tolerance > 0 {
		return compose.NewTxComposeBestWithPct(e.tolerance)
	}
	return compose.NewTxComposeBest()
}

// Run is the estimator loop: it multiplexes candidate messages, chain head
// events and finished gas estimations. Lag on either subscription is logged
// and the loop continues.
func (e *Estimator) Run(ctx context.Context) error {
	for {
		e.reportLag(ctx)

		select {
		case <-ctx.Done():
			return nil

		case blk, ok := <-e.blocks.C():
			if !ok {
				e.logger.Info("block event bus closed, estimator exiting")
				return nil
			}
			e.rollWindow(blk)

		case msg, ok := <-e.sub.C():
			if !ok {
				e.logger.Info("compose bus closed, estimator exiting")
				return nil
			}
			if msg.Stage != compose.StageEstimate {
				continue
			}
			e.handle(ctx, msg.Data)

		case res := <-e.estimated:
			e.finish(ctx, res)
		}
	}
}

func (e *Estimator) reportLag(ctx context.Context) {
	if missed := e.sub.TakeLagged(); missed > 0 {
		e.logger.Warn("estimator lagged on candidates", "missed", missed)
		e.metrics.RecordError(ctx, "estimator_lag")
	}
	if missed := e.blocks.TakeLagged(); missed > 0 {
		e.logger.Warn("estimator lagged on blocks", "missed", missed)
		e.metrics.RecordError(ctx, "estimator_lag")
	}
}

// rollWindow resets the selection window on a new chain head. Bests from the
// previous block no longer compete.
func (e *Estimator) rollWindow(blk events.BlockEvent) {
	e.selector = e.newSelector()
	e.windowBlock = blk.Number
	e.logger.Debug("selection window rolled", "block", blk.Number)
}

func (e *Estimator) handle(ctx context.Context, data *compose.TxComposeData) {
	// Stale candidates from a previous window are not worth estimating.
	if e.windowBlock != 0 && data.Block != 0 && data.Block < e.windowBlock {
		e.logger.Debug("stale candidate dropped", "candidate_block", data.Block, "window", e.windowBlock)
		e.metrics.RecordError(ctx, "stale_candidate")
		return
	}

	if e.gas == nil {
		e.finish(ctx, estimated{data: data, gas: e.fallbackGas(data)})
		return
	}

	// Estimation goes out of the loop; the result funnels back through
	// e.estimated so the selector stays single-owner.
	go func() {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer e.sem.Release(1)

		gas, err := e.gas.EstimateGas(ctx, data)
		if err != nil {
			e.logger.LogError(ctx, "gas estimation failed, using pre-estimate", err, "origin", data.Origin)
			gas = e.fallbackGas(data)
		}
		select {
		case e.estimated <- estimated{data: data, gas: gas}:
		case <-ctx.Done():
		}
	}()
}

func (e *Estimator) fallbackGas(data *compose.TxComposeData) uint64 {
	if data.Gas != 0 {
		return data.Gas
	}
	return data.Swap.PreEstimateGas()
}

// finish applies the estimate, derives tips and consults the selector.
func (e *Estimator) finish(ctx context.Context, res estimated) {
	started := time.Now()

	data := res.data.Clone()
	data.Gas = res.gas

	profitETH := data.Swap.AbsProfitETH()
	if data.Tips == nil && data.TipsPct != nil {
		data.Tips = data.TipsPct.ApplyTo(profitETH)
	}

	accepted := e.selector.Check(data)
	profitGwei := money.WeiToGwei(profitETH)
	e.metrics.RecordSelection(ctx, accepted, profitGwei)
	e.metrics.RecordCandidate(ctx, compose.StageEstimate.String(), time.Since(started))

	if !accepted {
		e.logger.Debug("candidate rejected by selector",
			"origin", data.Origin,
			"profit_eth", profitETH,
			"gas", data.Gas,
		)
		return
	}

	e.out.Publish(compose.Sign(data))
	e.logger.Info("candidate accepted",
		"origin", data.Origin,
		"block", data.Block,
		"profit_eth", profitETH,
		"tips", data.Tips,
		"gas", data.Gas,
	)
}
