// Package notification publishes submitted-candidate summaries to external
// sinks so operators can follow the engine without tailing logs.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gaon3/loom/internal/platform/aws"
	"github.com/Gaon3/loom/internal/platform/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CandidateSummary is the wire form of a submitted candidate.
type CandidateSummary struct {
	ID        string    `json:"id"`
	Origin    string    `json:"origin"`
	Block     uint64    `json:"block"`
	TxCount   int       `json:"txCount"`
	Gas       uint64    `json:"gas"`
	Swap      string    `json:"swap"`
	ProfitWei string    `json:"profitWei,omitempty"`
	TipsWei   string    `json:"tipsWei,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ToJSON serializes the summary.
func (s CandidateSummary) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

// Publisher delivers candidate summaries to a sink.
type Publisher interface {
	PublishCandidate(ctx context.Context, summary CandidateSummary) error
}

// SNSPublisher publishes candidate summaries to an SNS topic.
type SNSPublisher struct {
	snsClient *aws.SNSClient
	topicARN  string
	logger    *observability.Logger
	tracer    observability.Tracer
}

// SNSPublisherConfig holds SNS publisher configuration.
type SNSPublisherConfig struct {
	SNSClient *aws.SNSClient
	TopicARN  string
	Logger    *observability.Logger
	Tracer    observability.Tracer
}

// NewSNSPublisher creates a new SNS candidate publisher.
func NewSNSPublisher(cfg SNSPublisherConfig) (*SNSPublisher, error) {
	if cfg.SNSClient == nil {
		return nil, fmt.Errorf("SNS client is required")
	}
	if cfg.TopicARN == "" {
		return nil, fmt.Errorf("SNS topic ARN is required")
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoopTracer()
	}

	return &SNSPublisher{
		snsClient: cfg.SNSClient,
		topicARN:  cfg.TopicARN,
		logger:    cfg.Logger,
		tracer:    cfg.Tracer,
	}, nil
}

// PublishCandidate publishes a candidate summary to SNS.
func (p *SNSPublisher) PublishCandidate(ctx context.Context, summary CandidateSummary) error {
	ctx, span := p.tracer.StartSpan(
		ctx,
		"SNSPublisher.PublishCandidate",
		observability.WithSpanKind(trace.SpanKindProducer),
		observability.WithAttributes(
			attribute.String("origin", summary.Origin),
			attribute.Int64("block", int64(summary.Block)),
			attribute.String("topic_arn", p.topicARN),
		),
	)
	defer span.End()

	payload, err := summary.ToJSON()
	if err != nil {
		span.NoticeError(err)
		return fmt.Errorf("failed to marshal candidate summary: %w", err)
	}

	// Message attributes let subscribers filter without parsing the body.
	attributes := map[string]string{
		"origin": summary.Origin,
		"block":  fmt.Sprintf("%d", summary.Block),
	}
	if summary.ProfitWei != "" {
		attributes["profitWei"] = summary.ProfitWei
	}

	if err := p.snsClient.Publish(ctx, p.topicARN, string(payload), attributes); err != nil {
		span.NoticeError(err)
		if p.logger != nil {
			p.logger.LogError(ctx, "failed to publish to SNS", err,
				"origin", summary.Origin,
				"topic_arn", p.topicARN,
			)
		}
		return fmt.Errorf("SNS publish failed: %w", err)
	}

	if p.logger != nil {
		p.logger.Info("published candidate to SNS",
			"origin", summary.Origin,
			"block", summary.Block,
			"topic_arn", p.topicARN,
		)
	}

	return nil
}

// CircuitBreakerState returns the current circuit breaker state.
func (p *SNSPublisher) CircuitBreakerState() string {
	return p.snsClient.CircuitBreakerState().String()
}

// ResetCircuitBreaker manually resets the circuit breaker.
func (p *SNSPublisher) ResetCircuitBreaker() {
	p.snsClient.ResetCircuitBreaker()
	if p.logger != nil {
		p.logger.Info("reset SNS circuit breaker")
	}
}
