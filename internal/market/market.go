// Package market holds the shared registry of pools and tokens the engine
// trades against. The registry is read concurrently by discovery and valuation
// and mutated only through its serialized write path.
package market

import (
	"sync"

	"github.com/Gaon3/loom/internal/platform/observability"
	"github.com/ethereum/go-ethereum/common"
)

// Market is the shared market state. A single *Market handle is passed to
// every actor; the embedded RWMutex enforces the single-writer /
// multiple-reader discipline.
type Market struct {
	mu     sync.RWMutex
	pools  map[common.Address]*Pool
	tokens map[common.Address]*Token
	logger *observability.Logger
}

// NewMarket creates an empty market registry.
func NewMarket(logger *observability.Logger) *Market {
	return &Market{
		pools:  make(map[common.Address]*Pool),
		tokens: make(map[common.Address]*Token),
		logger: logger,
	}
}

// AddPool registers a pool. An existing entry for the same address is
// replaced; the new entry keeps the enabled flag it arrives with.
func (m *Market) AddPool(pool *Pool) {
	if pool == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[pool.Address] = pool
}

// GetPool returns a snapshot of the pool at address. The second return value
// is false when the pool is unknown; absence is not an error.
func (m *Market) GetPool(address common.Address) (Pool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pool, ok := m.pools[address]
	if !ok {
		return Pool{}, false
	}
	return *pool, true
}

// SetPoolEnabled sets the enabled flag of a pool. The operation is idempotent:
// setting the current value again changes nothing beyond a debug line, and
// setting the flag on an unknown pool is a no-op.
func (m *Market) SetPoolEnabled(address common.Address, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pool, ok := m.pools[address]
	if !ok {
		if m.logger != nil {
			m.logger.Debug("set pool enabled: pool not found", "pool", address.Hex(), "enabled", enabled)
		}
		return
	}
	if pool.Enabled == enabled {
		if m.logger != nil {
			m.logger.Debug("set pool enabled: no change", "pool", address.Hex(), "enabled", enabled)
		}
		return
	}
	pool.Enabled = enabled
	if m.logger != nil {
		m.logger.Info("pool enabled flag changed", "pool", address.Hex(), "protocol", string(pool.Protocol), "enabled", enabled)
	}
}

// IsPoolEnabled reports whether the pool exists and is enabled.
func (m *Market) IsPoolEnabled(address common.Address) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pool, ok := m.pools[address]
	return ok && pool.Enabled
}

// AddToken registers a token, replacing any existing entry.
func (m *Market) AddToken(token *Token) {
	if token == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token.Address] = token
}

// GetToken returns the token at address, nil when unknown.
func (m *Market) GetToken(address common.Address) *Token {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokens[address]
}

// PoolCount returns the number of registered pools.
func (m *Market) PoolCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pools)
}

// DisabledPools returns the addresses of all disabled pools.
func (m *Market) DisabledPools() []common.Address {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []common.Address
	for addr, pool := range m.pools {
		if !pool.Enabled {
			out = append(out, addr)
		}
	}
	return out
}
