package market

import (
	"github.com/ethereum/go-ethereum/common"
)

// Protocol identifies the AMM protocol a pool belongs to.
type Protocol string

const (
	ProtocolUniswapV2 Protocol = "uniswap_v2"
	ProtocolUniswapV3 Protocol = "uniswap_v3"
	ProtocolCurve     Protocol = "curve"
	ProtocolUnknown   Protocol = "unknown"
)

// Pool is a liquidity pool known to the market. The Enabled flag is the only
// field mutated after registration, and only through Market's write path.
type Pool struct {
	Address  common.Address
	Protocol Protocol
	Token0   common.Address
	Token1   common.Address
	Enabled  bool
}

// NewPool creates an enabled pool.
func NewPool(address common.Address, protocol Protocol, token0, token1 common.Address) *Pool {
	if protocol == "" {
		protocol = ProtocolUnknown
	}
	return &Pool{
		Address:  address,
		Protocol: protocol,
		Token0:   token0,
		Token1:   token1,
		Enabled:  true,
	}
}
