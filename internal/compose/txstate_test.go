package compose

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func legacyTx(nonce uint64) *types.Transaction {
	to := common.Address{19: 0xaa}
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: big.NewInt(1),
		Gas:      21000,
		To:       &to,
		Value:    big.NewInt(0),
	})
}

func TestTxStateRlp(t *testing.T) {
	tx := legacyTx(1)
	wantTx, err := tx.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	t.Run("stuffing encodes the envelope", func(t *testing.T) {
		raw, err := NewStuffingState(tx).Rlp()
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(raw, wantTx) {
			t.Error("stuffing bytes differ from MarshalBinary")
		}
	})

	t.Run("signature required is not broadcastable", func(t *testing.T) {
		state := NewSignatureRequiredState(&TxRequest{Nonce: 1})
		if _, err := state.Rlp(); !errors.Is(err, ErrNotReadyForBroadcast) {
			t.Errorf("err = %v, want ErrNotReadyForBroadcast", err)
		}
	})

	t.Run("ready states return their bytes", func(t *testing.T) {
		raw := []byte{0x01, 0x02, 0x03}
		for _, state := range []TxState{
			NewReadyForBroadcastState(raw),
			NewReadyForBroadcastStuffingState(raw),
		} {
			got, err := state.Rlp()
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, raw) {
				t.Errorf("got %x, want %x", got, raw)
			}
		}
	})

	t.Run("ready bytes are copied", func(t *testing.T) {
		raw := []byte{0x01, 0x02}
		state := NewReadyForBroadcastState(raw)
		got, _ := state.Rlp()
		got[0] = 0xff
		again, _ := state.Rlp()
		if again[0] != 0x01 {
			t.Error("Rlp must return an owned copy")
		}
	})
}

func TestRlpStateUnwrap(t *testing.T) {
	tests := []struct {
		name     string
		state    RlpState
		expected []byte
		none     bool
	}{
		{"none unwraps to empty", RlpState{}, []byte{}, true},
		{"stuffing", NewRlpStuffing([]byte{0xaa}), []byte{0xaa}, false},
		{"backrun", NewRlpBackrun([]byte{0xbb}), []byte{0xbb}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsNone(); got != tt.none {
				t.Errorf("IsNone = %v, want %v", got, tt.none)
			}
			got := tt.state.Unwrap()
			if got == nil {
				t.Fatal("Unwrap must never return nil")
			}
			if !bytes.Equal(got, tt.expected) {
				t.Errorf("got %x, want %x", got, tt.expected)
			}
		})
	}
}
