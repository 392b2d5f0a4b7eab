// Package monitor contains the long-running health tasks of the engine.
package monitor

import (
	"context"
	"errors"

	"github.com/Gaon3/loom/internal/events"
	"github.com/Gaon3/loom/internal/market"
	"github.com/Gaon3/loom/internal/platform/observability"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// DefaultDisableThreshold is the error count at which a pool is disabled.
const DefaultDisableThreshold = 100

// PoolHealthMonitor consumes health events and disables pools that keep
// failing. The per-pool error counter is owned by the monitor goroutine
// alone: it is never reset and never shared, so it needs no locking.
//
// The disable is a one-shot transition fired when the count reaches the
// threshold exactly; later errors for an already-disabled pool only produce
// diagnostics. Re-enabling a pool is an operational action outside this
// component.
type PoolHealthMonitor struct {
	market    *market.Market
	sub       *events.Subscription[events.HealthEvent]
	logger    *observability.Logger
	metrics   *observability.Metrics
	threshold int
}

// Config holds the monitor's collaborators.
type Config struct {
	Market  *market.Market
	Sub     *events.Subscription[events.HealthEvent]
	Logger  *observability.Logger
	Metrics *observability.Metrics
	// Threshold overrides the disable threshold, 0 means default.
	Threshold int
}

// NewPoolHealthMonitor creates the monitor.
func NewPoolHealthMonitor(cfg Config) *PoolHealthMonitor {
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = DefaultDisableThreshold
	}
	return &PoolHealthMonitor{
		market:    cfg.Market,
		sub:       cfg.Sub,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		threshold: threshold,
	}
}

// Run is the monitor loop. Lag is logged and the loop continues; a closed bus
// or cancelled context ends the loop cleanly.
func (m *PoolHealthMonitor) Run(ctx context.Context) error {
	poolErrors := make(map[common.Address]int)

	for {
		event, err := m.sub.Recv(ctx)
		if err != nil {
			var lagged *events.LaggedError
			switch {
			case errors.As(err, &lagged):
				m.logger.Warn("health monitor lagged", "missed", lagged.Missed)
				m.metrics.RecordError(ctx, "health_monitor_lag")
				continue
			case errors.Is(err, events.ErrBusClosed):
				m.logger.Info("health event bus closed, monitor exiting")
				return nil
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return nil
			default:
				m.logger.LogError(ctx, "health event receive failed", err)
				continue
			}
		}

		m.handle(ctx, event, poolErrors)
	}
}

func (m *PoolHealthMonitor) handle(ctx context.Context, event events.HealthEvent, poolErrors map[common.Address]int) {
	switch event.Kind {
	case events.HealthPoolSwapError:
		m.handleSwapError(ctx, event.SwapError, poolErrors)
	default:
		// Other health kinds carry no action for this monitor.
		m.metrics.RecordHealthEvent(ctx, "ignored")
	}
}

func (m *PoolHealthMonitor) handleSwapError(ctx context.Context, swapErr *events.SwapError, poolErrors map[common.Address]int) {
	if swapErr == nil {
		return
	}
	m.metrics.RecordHealthEvent(ctx, "pool_swap_error")
	m.logger.Debug("pool swap error",
		"pool", swapErr.Pool.Hex(),
		"msg", swapErr.Msg,
		"amount", amountAttr(swapErr.Amount),
	)

	poolErrors[swapErr.Pool]++
	count := poolErrors[swapErr.Pool]

	if count == m.threshold {
		m.market.SetPoolEnabled(swapErr.Pool, false)
		m.metrics.RecordPoolDisabled(ctx, swapErr.Pool.Hex())

		// The lookup only enriches the diagnostic; the disable already
		// happened either way.
		if pool, ok := m.market.GetPool(swapErr.Pool); ok {
			m.logger.Error("disabling pool",
				"protocol", string(pool.Protocol),
				"pool", swapErr.Pool.Hex(),
				"msg", swapErr.Msg,
				"amount", amountAttr(swapErr.Amount),
			)
		} else {
			m.logger.Error("disabling pool (not found in market)",
				"pool", swapErr.Pool.Hex(),
				"msg", swapErr.Msg,
				"amount", amountAttr(swapErr.Amount),
			)
		}
		return
	}

	if count > m.threshold {
		m.logger.Error("pool already disabled",
			"pool", swapErr.Pool.Hex(),
			"errors", count,
			"msg", swapErr.Msg,
		)
	}
}

// amountAttr renders the optional swap amount for logging. The amount is
// absent on many error paths, and slog's text marshalling of *uint256.Int
// dereferences it, so nil must be rendered here.
func amountAttr(a *uint256.Int) string {
	if a == nil {
		return "none"
	}
	return a.Dec()
}
