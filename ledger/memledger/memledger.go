// Package memledger implements an in-process ledger. Every submission is
// mined in its own block immediately, which makes it suitable for development
// nodes and tests. Failures can be injected to exercise rollback paths.
package memledger

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vocdoni/commit-reveal-sequencer/ledger"
	"github.com/vocdoni/commit-reveal-sequencer/types"
)

const (
	baseGas       = 21000
	calldataGas   = 16
	defaultSender = "0x000000000000000000000000000000000000c0de"
)

type tx struct {
	payload []byte
	block   uint64
	gasUsed uint64
}

// Ledger is an append-only in-memory chain.
type Ledger struct {
	mu          sync.Mutex
	address     common.Address
	height      uint64
	txs         map[common.Hash]*tx
	failNext    int
	unavailable bool
	delay       time.Duration
}

// New returns an empty ledger. Transactions are attributed to address, or to a
// fixed development address if it is the zero address.
func New(address common.Address) *Ledger {
	if address == (common.Address{}) {
		address = common.HexToAddress(defaultSender)
	}
	return &Ledger{
		address: address,
		txs:     make(map[common.Hash]*tx),
	}
}

// Address implements ledger.Ledger.
func (l *Ledger) Address() common.Address {
	return l.address
}

// Submit implements ledger.Ledger.
func (l *Ledger) Submit(ctx context.Context, payload []byte) (*types.TxRef, error) {
	l.mu.Lock()
	delay := l.delay
	l.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("submission aborted: %w", ctx.Err())
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("submission aborted: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.unavailable {
		return nil, ledger.ErrUnavailable
	}
	if l.failNext > 0 {
		l.failNext--
		return nil, fmt.Errorf("%w: injected submission failure", ledger.ErrUnavailable)
	}
	l.height++
	heightBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(heightBytes, l.height)
	hash := crypto.Keccak256Hash(heightBytes, l.address.Bytes(), payload)
	l.txs[hash] = &tx{
		payload: append([]byte(nil), payload...),
		block:   l.height,
		gasUsed: baseGas + calldataGas*uint64(len(payload)),
	}
	return &types.TxRef{Hash: hash, BlockNumber: l.height}, nil
}

// Transaction implements ledger.Ledger.
func (l *Ledger) Transaction(ctx context.Context, hash common.Hash) (*ledger.TxInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ledger.ErrUnavailable, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.unavailable {
		return nil, ledger.ErrUnavailable
	}
	t, ok := l.txs[hash]
	if !ok {
		return nil, ledger.ErrTxNotFound
	}
	return &ledger.TxInfo{
		Hash:          hash,
		Status:        ledger.TxStatusSuccess,
		BlockNumber:   t.block,
		Confirmations: l.height - t.block + 1,
		GasUsed:       t.gasUsed,
	}, nil
}

// Payload returns the raw payload anchored by the transaction.
func (l *Ledger) Payload(hash common.Hash) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.txs[hash]
	if !ok {
		return nil, ledger.ErrTxNotFound
	}
	return append([]byte(nil), t.payload...), nil
}

// Height returns the number of the last block.
func (l *Ledger) Height() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.height
}

// FailSubmissions makes the next n submissions fail.
func (l *Ledger) FailSubmissions(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failNext = n
}

// SetUnavailable makes every call fail with ledger.ErrUnavailable until it is
// called again with false.
func (l *Ledger) SetUnavailable(unavailable bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unavailable = unavailable
}

// SetDelay sets the time every submission takes before being mined.
func (l *Ledger) SetDelay(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.delay = d
}
