package engine

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/Gaon3/loom/internal/compose"
	"github.com/Gaon3/loom/internal/events"
	"github.com/Gaon3/loom/internal/platform/observability"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer consumes sign-stage candidates and replaces every
// signature-required bundle entry with broadcast-ready bytes from the signer
// backend, then emits the broadcast stage. A candidate that cannot be fully
// signed is dropped; broadcasting a half-signed bundle is never correct.
type Signer struct {
	sub     *events.Subscription[compose.TxCompose]
	out     *events.Bus[compose.TxCompose]
	backend SignerBackend
	logger  *observability.Logger
	metrics *observability.Metrics
}

// SignerConfig holds the signer actor's collaborators.
type SignerConfig struct {
	Sub     *events.Subscription[compose.TxCompose]
	Out     *events.Bus[compose.TxCompose]
	Backend SignerBackend
	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// NewSigner creates the signer actor.
func NewSigner(cfg SignerConfig) *Signer {
	return &Signer{
		sub:     cfg.Sub,
		out:     cfg.Out,
		backend: cfg.Backend,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// Run is the signer loop.
func (s *Signer) Run(ctx context.Context) error {
	for {
		msg, err := s.sub.Recv(ctx)
		if err != nil {
			var lagged *events.LaggedError
			switch {
			case errors.As(err, &lagged):
				s.logger.Warn("signer lagged", "missed", lagged.Missed)
				s.metrics.RecordError(ctx, "signer_lag")
				continue
			case errors.Is(err, events.ErrBusClosed):
				return nil
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return nil
			default:
				s.logger.LogError(ctx, "signer receive failed", err)
				continue
			}
		}
		if msg.Stage != compose.StageSign {
			continue
		}
		s.handle(ctx, msg.Data)
	}
}

func (s *Signer) handle(ctx context.Context, data *compose.TxComposeData) {
	started := time.Now()
	defer func() {
		s.metrics.RecordCandidate(ctx, compose.StageSign.String(), time.Since(started))
	}()

	next := data.Clone()
	for i, state := range next.TxBundle {
		if state.Kind != compose.TxStateSignatureRequired {
			continue
		}
		raw, err := s.backend.Sign(ctx, state.Request)
		if err != nil {
			s.logger.LogError(ctx, "signing failed, candidate dropped", err,
				"origin", next.Origin,
				"bundle_index", i,
			)
			s.metrics.RecordError(ctx, "sign_failed")
			return
		}
		next.TxBundle[i] = compose.NewReadyForBroadcastState(raw)
	}

	s.out.Publish(compose.Broadcast(next))
	s.logger.Debug("candidate signed", "origin", next.Origin, "signer", s.backend.Address().Hex())
}

// LocalSigner is a SignerBackend over an in-process private key. It signs
// dynamic-fee transactions for one chain.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
}

// NewLocalSigner creates a signer from a hex-encoded private key.
func NewLocalSigner(privateKeyHex string, chainID *big.Int) (*LocalSigner, error) {
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &LocalSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
	}, nil
}

// Address returns the signing account.
func (l *LocalSigner) Address() common.Address {
	return l.address
}

// Sign builds, signs and encodes a dynamic-fee transaction for the request.
func (l *LocalSigner) Sign(_ context.Context, req *compose.TxRequest) ([]byte, error) {
	if req == nil {
		return nil, errors.New("engine: nil tx request")
	}
	inner := &types.DynamicFeeTx{
		ChainID:   l.chainID,
		Nonce:     req.Nonce,
		To:        req.To,
		Gas:       req.Gas,
		GasFeeCap: big.NewInt(0),
		GasTipCap: big.NewInt(0),
		Value:     big.NewInt(0),
		Data:      req.Data,
	}
	if req.GasFeeCap != nil {
		inner.GasFeeCap = req.GasFeeCap.ToBig()
	}
	if req.GasTipCap != nil {
		inner.GasTipCap = req.GasTipCap.ToBig()
	}
	if req.Value != nil {
		inner.Value = req.Value.ToBig()
	}

	tx, err := types.SignNewTx(l.key, types.LatestSignerForChainID(l.chainID), inner)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode signed tx: %w", err)
	}
	return raw, nil
}
