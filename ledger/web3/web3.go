// Package web3 implements a ledger on an EVM chain. Every payload is anchored
// as the calldata of an EIP-1559 transaction sent to a fixed anchor address,
// so the chain itself keeps the append-only log and anyone can read it back.
package web3

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/vocdoni/commit-reveal-sequencer/ledger"
	"github.com/vocdoni/commit-reveal-sequencer/types"
	"go.vocdoni.io/dvote/log"
)

// gasMargin is added, in percent, to the estimated gas of every transaction.
const gasMargin = 20

// Backend is the chain access needed by the ledger. The rpc pool client and
// the go-ethereum clients implement it.
type Backend interface {
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionByHash(ctx context.Context, hash common.Hash) (*ethtypes.Transaction, bool, error)
}

// Ledger anchors payloads on an EVM chain.
type Ledger struct {
	backend Backend
	signer  ledger.Signer
	chainID *big.Int
	anchor  common.Address

	// serializes nonce assignment
	sendMu sync.Mutex
}

// New returns a ledger sending transactions signed by signer to the anchor
// address. If anchor is the zero address, transactions are sent to the signer
// address itself.
func New(ctx context.Context, backend Backend, signer ledger.Signer, anchor common.Address) (*Ledger, error) {
	if backend == nil || signer == nil {
		return nil, fmt.Errorf("backend and signer are required")
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not get chain id: %w", err)
	}
	if anchor == (common.Address{}) {
		anchor = signer.CurrentAddress()
	}
	log.Infow("web3 ledger ready",
		"chainID", chainID.String(),
		"account", signer.CurrentAddress().Hex(),
		"anchor", anchor.Hex())
	return &Ledger{
		backend: backend,
		signer:  signer,
		chainID: chainID,
		anchor:  anchor,
	}, nil
}

// Address implements ledger.Ledger.
func (l *Ledger) Address() common.Address {
	return l.signer.CurrentAddress()
}

// Submit implements ledger.Ledger. It returns once the transaction is mined.
// If ctx expires after the transaction was sent, the caller rolls back its
// reservation but the transaction may still be mined; verification then
// reports such an orphan as unknown.
func (l *Ledger) Submit(ctx context.Context, payload []byte) (*types.TxRef, error) {
	tx, err := l.send(ctx, payload)
	if err != nil {
		return nil, err
	}
	log.Debugw("anchor transaction sent", "tx", tx.Hash().Hex(), "nonce", tx.Nonce())
	receipt, err := bind.WaitMined(ctx, l.backend, tx)
	if err != nil {
		log.Warnw("anchor transaction not mined in time", "tx", tx.Hash().Hex(), "error", err.Error())
		return nil, fmt.Errorf("%w: waiting for %s: %w", ledger.ErrUnavailable, tx.Hash().Hex(), err)
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("anchor transaction %s failed", tx.Hash().Hex())
	}
	return &types.TxRef{
		Hash:        receipt.TxHash,
		BlockNumber: receipt.BlockNumber.Uint64(),
	}, nil
}

// send builds, signs and sends the anchor transaction.
func (l *Ledger) send(ctx context.Context, payload []byte) (*ethtypes.Transaction, error) {
	l.sendMu.Lock()
	defer l.sendMu.Unlock()

	from := l.signer.CurrentAddress()
	nonce, err := l.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get nonce: %w", ledger.ErrUnavailable, err)
	}
	tip, err := l.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get gas tip cap: %w", ledger.ErrUnavailable, err)
	}
	head, err := l.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get head: %w", ledger.ErrUnavailable, err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}
	gas, err := l.backend.EstimateGas(ctx, ethereum.CallMsg{
		From: from,
		To:   &l.anchor,
		Data: payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to estimate gas: %w", err)
	}
	gas += gas * gasMargin / 100

	tx, err := l.signer.SignTx(ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   l.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &l.anchor,
		Data:      payload,
	}), l.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := l.backend.SendTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("%w: failed to send transaction: %w", ledger.ErrUnavailable, err)
	}
	return tx, nil
}

// Transaction implements ledger.Ledger.
func (l *Ledger) Transaction(ctx context.Context, hash common.Hash) (*ledger.TxInfo, error) {
	receipt, err := l.backend.TransactionReceipt(ctx, hash)
	if err != nil {
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("%w: %w", ledger.ErrUnavailable, err)
		}
		// not mined, it might still be in the pool
		_, pending, err := l.backend.TransactionByHash(ctx, hash)
		switch {
		case errors.Is(err, ethereum.NotFound):
			return nil, ledger.ErrTxNotFound
		case err != nil:
			return nil, fmt.Errorf("%w: %w", ledger.ErrUnavailable, err)
		case pending:
			return &ledger.TxInfo{Hash: hash, Status: ledger.TxStatusPending}, nil
		default:
			return nil, ledger.ErrTxNotFound
		}
	}
	head, err := l.backend.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ledger.ErrUnavailable, err)
	}
	info := &ledger.TxInfo{
		Hash:        hash,
		Status:      ledger.TxStatusFailed,
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}
	if receipt.Status == ethtypes.ReceiptStatusSuccessful {
		info.Status = ledger.TxStatusSuccess
	}
	if head >= info.BlockNumber {
		info.Confirmations = head - info.BlockNumber + 1
	}
	return info, nil
}
