// Package ledger defines the append-only ledger the sequencer anchors
// commitments and reveals on. Implementations live in the memledger (in
// process) and web3 (EVM chain) subpackages.
package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/vocdoni/commit-reveal-sequencer/types"
)

var (
	// ErrTxNotFound is returned when the ledger does not know the transaction.
	ErrTxNotFound = fmt.Errorf("transaction not found")
	// ErrUnavailable is returned when the ledger cannot be reached.
	ErrUnavailable = fmt.Errorf("ledger unavailable")
)

// TxStatus is the execution status of a ledger transaction.
type TxStatus string

const (
	TxStatusSuccess TxStatus = "success"
	TxStatusFailed  TxStatus = "failed"
	TxStatusPending TxStatus = "pending"
)

// TxInfo describes a transaction as seen by the ledger.
type TxInfo struct {
	Hash          common.Hash
	Status        TxStatus
	BlockNumber   uint64
	Confirmations uint64
	GasUsed       uint64
}

// Ledger is an append-only, externally verifiable log.
type Ledger interface {
	// Submit anchors the payload and returns the transaction reference once
	// it is included in a block.
	Submit(ctx context.Context, payload []byte) (*types.TxRef, error)
	// Transaction returns the ledger view of the transaction. It returns
	// ErrTxNotFound if the ledger does not know the hash and ErrUnavailable
	// (wrapped) if the ledger cannot be queried.
	Transaction(ctx context.Context, hash common.Hash) (*TxInfo, error)
	// Address returns the account that signs the anchored transactions.
	Address() common.Address
}

// Signer holds the key used to authorize ledger transactions.
type Signer interface {
	CurrentAddress() common.Address
	SignTx(tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error)
}

// Payload is the content anchored on the ledger for a commitment or a reveal.
// Commitment payloads carry the hash only; reveal payloads carry the opened
// choice and salt so anyone can recompute the hash.
type Payload struct {
	Kind       types.TxKind   `cbor:"0,keyasint"`
	ElectionID uuid.UUID      `cbor:"1,keyasint"`
	Commitment common.Hash    `cbor:"2,keyasint"`
	Choice     string         `cbor:"3,keyasint,omitempty"`
	Salt       types.HexBytes `cbor:"4,keyasint,omitempty"`
}

var payloadEncMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("invalid cbor encoding options: %v", err))
	}
	return em
}()

// Marshal encodes the payload with deterministic CBOR.
func (p *Payload) Marshal() ([]byte, error) {
	return payloadEncMode.Marshal(p)
}

// Unmarshal decodes a payload previously encoded with Marshal.
func (p *Payload) Unmarshal(data []byte) error {
	return cbor.Unmarshal(data, p)
}
