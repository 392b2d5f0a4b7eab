package blockchain

import (
	"context"
	"fmt"
	"math/big"
	"math/rand"
	"time"

	"github.com/Gaon3/loom/internal/events"
	"github.com/Gaon3/loom/internal/platform/observability"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ReconnectConfig holds reconnection backoff parameters.
type ReconnectConfig struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Jitter    float64
}

// DefaultReconnectConfig returns the default reconnection backoff.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		BaseDelay: 1 * time.Second,
		MaxDelay:  30 * time.Second,
		Jitter:    0.2,
	}
}

// HeadSubscriber follows new chain heads over WebSocket and publishes a
// BlockEvent per head. When the WebSocket keeps failing it falls back to
// polling a ClientPool over HTTP, and it backfills heads missed across
// reconnects so downstream never sees a silent gap.
type HeadSubscriber struct {
	wsURLs       []string
	urlIdx       int
	client       *ethclient.Client
	bus          *events.Bus[events.BlockEvent]
	pool         *ClientPool
	logger       *observability.Logger
	metrics      *observability.Metrics
	reconnect    ReconnectConfig
	pollInterval time.Duration
	maxWSErrors  int

	lastBlock uint64
	attempts  int
}

// HeadSubscriberConfig holds head subscriber configuration.
type HeadSubscriberConfig struct {
	WebSocketURLs []string
	Bus           *events.Bus[events.BlockEvent]
	ClientPool    *ClientPool
	Logger        *observability.Logger
	Metrics       *observability.Metrics
	Reconnect     ReconnectConfig
	PollInterval  time.Duration
	MaxWSErrors   int
}

// NewHeadSubscriber creates a head subscriber.
func NewHeadSubscriber(cfg HeadSubscriberConfig) (*HeadSubscriber, error) {
	if len(cfg.WebSocketURLs) == 0 {
		return nil, fmt.Errorf("at least one WebSocket URL is required")
	}
	if cfg.Bus == nil {
		return nil, fmt.Errorf("block event bus is required")
	}
	if cfg.Reconnect.MaxDelay == 0 {
		cfg.Reconnect = DefaultReconnectConfig()
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 12 * time.Second
	}
	if cfg.MaxWSErrors == 0 {
		cfg.MaxWSErrors = 3
	}

	return &HeadSubscriber{
		wsURLs:       cfg.WebSocketURLs,
		bus:          cfg.Bus,
		pool:         cfg.ClientPool,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		reconnect:    cfg.Reconnect,
		pollInterval: cfg.PollInterval,
		maxWSErrors:  cfg.MaxWSErrors,
	}, nil
}

// Run drives the subscription until ctx is cancelled.
func (h *HeadSubscriber) Run(ctx context.Context) error {
	wsErrors := 0

	for {
		if ctx.Err() != nil {
			h.disconnect()
			return nil
		}

		err := h.streamHeads(ctx)
		if err == nil || ctx.Err() != nil {
			h.disconnect()
			return nil
		}

		h.logger.LogError(ctx, "head subscription lost", err, "attempts", h.attempts)
		h.disconnect()
		wsErrors++

		if h.pool != nil && wsErrors >= h.maxWSErrors {
			h.logger.Warn("falling back to HTTP head polling", "ws_errors", wsErrors)
			if pollErr := h.pollHeads(ctx); pollErr != nil && ctx.Err() == nil {
				h.logger.LogError(ctx, "HTTP head polling failed", pollErr)
			}
			if ctx.Err() != nil {
				return nil
			}
			// Polling exits to retry the WebSocket.
			wsErrors = 0
			continue
		}

		delay := h.reconnectDelay()
		h.attempts++
		h.metrics.RecordWebSocketReconnection(ctx, h.attempts)
		h.logger.Info("reconnecting after delay", "delay_seconds", delay.Seconds(), "attempts", h.attempts)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil
		}
	}
}

// streamHeads connects to the current WebSocket URL and publishes heads until
// the subscription breaks.
func (h *HeadSubscriber) streamHeads(ctx context.Context) error {
	url := h.wsURLs[h.urlIdx]
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		h.urlIdx = (h.urlIdx + 1) % len(h.wsURLs)
		return fmt.Errorf("dial %s: %w", url, err)
	}
	h.client = client

	headers := make(chan *types.Header, 16)
	sub, err := client.SubscribeNewHead(ctx, headers)
	if err != nil {
		h.urlIdx = (h.urlIdx + 1) % len(h.wsURLs)
		return fmt.Errorf("subscribe new heads on %s: %w", url, err)
	}
	defer sub.Unsubscribe()

	h.attempts = 0
	h.logger.Info("subscribed to new block headers", "url", url)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Err():
			if err != nil {
				return fmt.Errorf("subscription error: %w", err)
			}
			return fmt.Errorf("subscription closed")
		case header := <-headers:
			h.handleHeader(ctx, header)
		}
	}
}

// pollHeads follows the chain over HTTP until the poll interval elapses a few
// times without errors, then returns so the caller can retry the WebSocket.
func (h *HeadSubscriber) pollHeads(ctx context.Context) error {
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	// Roughly a minute of polling before trying the WebSocket again.
	rounds := int(time.Minute / h.pollInterval)
	if rounds < 1 {
		rounds = 1
	}

	for i := 0; i < rounds; i++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			number, err := h.pool.BlockNumber(ctx)
			if err != nil {
				return fmt.Errorf("poll block number: %w", err)
			}
			if number <= h.lastBlock {
				continue
			}
			header, err := h.pool.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
			if err != nil {
				return fmt.Errorf("poll header %d: %w", number, err)
			}
			h.handleHeader(ctx, header)
		}
	}
	return nil
}

func (h *HeadSubscriber) handleHeader(ctx context.Context, header *types.Header) {
	if header == nil || header.Number == nil {
		return
	}
	number := header.Number.Uint64()
	if number == 0 || number <= h.lastBlock {
		return
	}

	if h.lastBlock > 0 && number > h.lastBlock+1 && h.pool != nil {
		h.backfill(ctx, h.lastBlock+1, number-1)
	}

	h.lastBlock = number
	h.publish(ctx, events.BlockEvent{
		Number:    number,
		Hash:      header.Hash(),
		Timestamp: header.Time,
	})
}

// backfill fetches the headers missed between two observed heads and
// publishes them in order.
func (h *HeadSubscriber) backfill(ctx context.Context, from, to uint64) {
	h.logger.Warn("block gap detected, backfilling", "from", from, "to", to)

	for number := from; number <= to; number++ {
		if ctx.Err() != nil {
			return
		}
		header, err := h.pool.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
		if err != nil {
			h.logger.LogError(ctx, "gap backfill failed", err, "block", number)
			return
		}
		h.publish(ctx, events.BlockEvent{
			Number:    header.Number.Uint64(),
			Hash:      header.Hash(),
			Timestamp: header.Time,
		})
	}
}

func (h *HeadSubscriber) publish(ctx context.Context, event events.BlockEvent) {
	delivered := h.bus.Publish(event)
	dropped := h.bus.SubscriberCount() - delivered

	h.metrics.RecordBlockReceived(ctx, event.Number)
	h.metrics.RecordBusPublish(ctx, "blocks", dropped)

	h.logger.Debug("new block",
		"block_number", event.Number,
		"block_hash", event.Hash.Hex(),
		"delivered", delivered,
	)
}

func (h *HeadSubscriber) disconnect() {
	if h.client != nil {
		h.client.Close()
		h.client = nil
	}
}

// LastBlockNumber returns the highest head published so far.
func (h *HeadSubscriber) LastBlockNumber() uint64 {
	return h.lastBlock
}

func (h *HeadSubscriber) reconnectDelay() time.Duration {
	delay := h.reconnect.BaseDelay
	for i := 0; i < h.attempts && delay < h.reconnect.MaxDelay; i++ {
		delay *= 2
	}
	if delay > h.reconnect.MaxDelay {
		delay = h.reconnect.MaxDelay
	}
	if h.reconnect.Jitter > 0 {
		delay = time.Duration(float64(delay) * (1.0 + (rand.Float64()*2-1)*h.reconnect.Jitter))
	}
	return delay
}
