package notification

import (
	"context"

	"github.com/Gaon3/loom/internal/platform/observability"
)

// NoopPublisher logs candidate summaries instead of publishing them.
// Use this when SNS is not configured (local development, testing).
type NoopPublisher struct {
	logger *observability.Logger
}

// NewNoopPublisher creates a publisher that only logs candidates.
func NewNoopPublisher(logger *observability.Logger) *NoopPublisher {
	return &NoopPublisher{logger: logger}
}

// PublishCandidate logs the candidate instead of publishing to SNS.
func (p *NoopPublisher) PublishCandidate(_ context.Context, summary CandidateSummary) error {
	if p.logger != nil {
		p.logger.Info("candidate submitted (SNS disabled)",
			"origin", summary.Origin,
			"block", summary.Block,
			"txs", summary.TxCount,
			"swap", summary.Swap,
			"profit_wei", summary.ProfitWei,
		)
	}
	return nil
}
