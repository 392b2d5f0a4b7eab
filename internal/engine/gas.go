package engine

import (
	"context"
	"fmt"

	"github.com/Gaon3/loom/internal/blockchain"
	"github.com/Gaon3/loom/internal/compose"
	"github.com/ethereum/go-ethereum"
)

// RPCGasEstimator estimates gas for a candidate's unsigned transaction
// through eth_estimateGas on a pooled RPC endpoint.
type RPCGasEstimator struct {
	pool *blockchain.ClientPool
}

// NewRPCGasEstimator creates an estimator over the client pool.
func NewRPCGasEstimator(pool *blockchain.ClientPool) *RPCGasEstimator {
	return &RPCGasEstimator{pool: pool}
}

// EstimateGas estimates the candidate's own transaction, the one still
// awaiting a signature. Stuffing transactions keep the gas they were mined
// with and are not re-estimated.
func (r *RPCGasEstimator) EstimateGas(ctx context.Context, data *compose.TxComposeData) (uint64, error) {
	var req *compose.TxRequest
	for _, state := range data.TxBundle {
		if state.Kind == compose.TxStateSignatureRequired {
			req = state.Request
			break
		}
	}
	if req == nil {
		return 0, fmt.Errorf("engine: no unsigned transaction in bundle")
	}

	client, err := r.pool.GetClient()
	if err != nil {
		return 0, err
	}

	msg := ethereum.CallMsg{
		From: req.From,
		To:   req.To,
		Data: req.Data,
	}
	if req.GasFeeCap != nil {
		msg.GasFeeCap = req.GasFeeCap.ToBig()
	}
	if req.GasTipCap != nil {
		msg.GasTipCap = req.GasTipCap.ToBig()
	}
	if req.Value != nil {
		msg.Value = req.Value.ToBig()
	}

	return client.EstimateGas(ctx, msg)
}
