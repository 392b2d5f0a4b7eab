// Package blockchain connects the engine to Ethereum nodes: an RPC client
// pool with health tracking, and a head subscriber that turns new chain
// heads into block events.
package blockchain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Gaon3/loom/internal/platform/observability"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// RPCEndpoint is a single Ethereum RPC endpoint with health state.
type RPCEndpoint struct {
	URL     string
	Client  *ethclient.Client
	healthy atomic.Bool
}

// ClientPool manages multiple RPC endpoints with health tracking and
// round-robin failover.
type ClientPool struct {
	endpoints      []*RPCEndpoint
	current        int
	mu             sync.RWMutex
	logger         *observability.Logger
	metrics        *observability.Metrics
	healthCheckTTL time.Duration
}

// ClientPoolConfig holds client pool configuration.
type ClientPoolConfig struct {
	URLs           []string
	Logger         *observability.Logger
	Metrics        *observability.Metrics
	HealthCheckTTL time.Duration
}

// NewClientPool dials all configured endpoints and starts background health
// checks bound to ctx. At least one endpoint must come up.
func NewClientPool(ctx context.Context, cfg ClientPoolConfig) (*ClientPool, error) {
	if len(cfg.URLs) == 0 {
		return nil, fmt.Errorf("at least one RPC endpoint is required")
	}
	if cfg.HealthCheckTTL == 0 {
		cfg.HealthCheckTTL = 30 * time.Second
	}

	endpoints := make([]*RPCEndpoint, 0, len(cfg.URLs))
	for _, url := range cfg.URLs {
		endpoint := &RPCEndpoint{URL: url}
		client, err := ethclient.DialContext(ctx, url)
		if err != nil {
			cfg.Logger.LogError(ctx, "failed to connect to RPC endpoint", err, "url", url)
			endpoints = append(endpoints, endpoint)
			continue
		}
		endpoint.Client = client
		endpoint.healthy.Store(true)
		endpoints = append(endpoints, endpoint)
		cfg.Logger.Info("connected to RPC endpoint", "url", url)
	}

	hasHealthy := false
	for _, ep := range endpoints {
		if ep.healthy.Load() {
			hasHealthy = true
			break
		}
	}
	if !hasHealthy {
		return nil, fmt.Errorf("no healthy RPC endpoints available")
	}

	pool := &ClientPool{
		endpoints:      endpoints,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		healthCheckTTL: cfg.HealthCheckTTL,
	}
	go pool.runHealthChecks(ctx)

	return pool, nil
}

// GetClient returns the next healthy client using round-robin selection.
func (cp *ClientPool) GetClient() (*ethclient.Client, error) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	for attempts := 0; attempts < len(cp.endpoints); attempts++ {
		endpoint := cp.endpoints[cp.current]
		cp.current = (cp.current + 1) % len(cp.endpoints)
		if endpoint.healthy.Load() && endpoint.Client != nil {
			return endpoint.Client, nil
		}
	}

	return nil, fmt.Errorf("no healthy RPC endpoints available")
}

// MarkUnhealthy flags an endpoint so GetClient skips it until the next
// successful health check.
func (cp *ClientPool) MarkUnhealthy(url string) {
	cp.mu.RLock()
	defer cp.mu.RUnlock()

	for _, endpoint := range cp.endpoints {
		if endpoint.URL == url {
			if endpoint.healthy.Swap(false) {
				cp.logger.Warn("marking RPC endpoint as unhealthy", "url", url)
			}
			return
		}
	}
}

func (cp *ClientPool) runHealthChecks(ctx context.Context) {
	ticker := time.NewTicker(cp.healthCheckTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, cp.healthCheckTTL)
			cp.mu.RLock()
			endpoints := cp.endpoints
			cp.mu.RUnlock()
			for _, endpoint := range endpoints {
				cp.checkEndpoint(checkCtx, endpoint)
			}
			cancel()
		}
	}
}

// checkEndpoint probes an endpoint with eth_blockNumber, reconnecting dropped
// clients. Context errors do not flip health state.
func (cp *ClientPool) checkEndpoint(ctx context.Context, endpoint *RPCEndpoint) {
	if endpoint.Client == nil {
		client, err := ethclient.DialContext(ctx, endpoint.URL)
		if err != nil {
			endpoint.healthy.Store(false)
			return
		}
		endpoint.Client = client
		cp.logger.Info("reconnected to RPC endpoint", "url", endpoint.URL)
	}

	if _, err := endpoint.Client.BlockNumber(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		if endpoint.healthy.Swap(false) {
			cp.logger.LogError(ctx, "RPC endpoint health check failed", err, "url", endpoint.URL)
			if cp.metrics != nil {
				cp.metrics.RecordError(ctx, "rpc_endpoint_unhealthy")
			}
		}
		endpoint.Client.Close()
		endpoint.Client = nil
		return
	}

	if !endpoint.healthy.Swap(true) {
		cp.logger.Info("RPC endpoint is now healthy", "url", endpoint.URL)
	}
}

// HealthyEndpointCount returns the number of healthy endpoints.
func (cp *ClientPool) HealthyEndpointCount() int {
	cp.mu.RLock()
	defer cp.mu.RUnlock()

	count := 0
	for _, endpoint := range cp.endpoints {
		if endpoint.healthy.Load() {
			count++
		}
	}
	return count
}

// BlockNumber returns the latest block number from a healthy endpoint.
func (cp *ClientPool) BlockNumber(ctx context.Context) (uint64, error) {
	client, err := cp.GetClient()
	if err != nil {
		return 0, err
	}
	return client.BlockNumber(ctx)
}

// HeaderByNumber returns a block header from a healthy endpoint.
func (cp *ClientPool) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	client, err := cp.GetClient()
	if err != nil {
		return nil, err
	}
	return client.HeaderByNumber(ctx, number)
}

// Close closes all client connections.
func (cp *ClientPool) Close() {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	for _, endpoint := range cp.endpoints {
		if endpoint.Client != nil {
			endpoint.Client.Close()
		}
	}
	cp.logger.Info("closed all RPC client connections")
}
