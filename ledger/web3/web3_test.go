package web3

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
	"github.com/vocdoni/commit-reveal-sequencer/crypto/ethereum"
	"github.com/vocdoni/commit-reveal-sequencer/ledger"
	"github.com/vocdoni/commit-reveal-sequencer/types"
	"github.com/vocdoni/commit-reveal-sequencer/web3/rpc"
)

// newSimulatedChain starts a simulated chain that mines a block every 50ms,
// with a funded account.
func newSimulatedChain(t *testing.T) (*simulated.Backend, *ethereum.SignKeys) {
	keys := ethereum.NewSignKeys()
	if err := keys.Generate(); err != nil {
		t.Fatal(err)
	}
	balance := new(big.Int).Mul(big.NewInt(1e18), big.NewInt(100))
	backend := simulated.NewBackend(ethtypes.GenesisAlloc{
		keys.Address(): {Balance: balance},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				backend.Commit()
			}
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = backend.Close()
	})
	return backend, keys
}

func TestSubmitAndLookup(t *testing.T) {
	c := qt.New(t)
	backend, keys := newSimulatedChain(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	anchor := common.HexToAddress("0x00000000000000000000000000000000000a0c40")
	l, err := New(ctx, backend.Client(), keys, anchor)
	c.Assert(err, qt.IsNil)
	c.Assert(l.Address(), qt.Equals, keys.Address())

	payload := &ledger.Payload{
		Kind:       types.TxKindCommit,
		ElectionID: uuid.New(),
		Commitment: common.HexToHash("0x1234"),
	}
	data, err := payload.Marshal()
	c.Assert(err, qt.IsNil)

	ref, err := l.Submit(ctx, data)
	c.Assert(err, qt.IsNil)
	c.Assert(ref.BlockNumber > 0, qt.IsTrue)

	info, err := l.Transaction(ctx, ref.Hash)
	c.Assert(err, qt.IsNil)
	c.Assert(info.Status, qt.Equals, ledger.TxStatusSuccess)
	c.Assert(info.BlockNumber, qt.Equals, ref.BlockNumber)
	c.Assert(info.Confirmations >= 1, qt.IsTrue)
	c.Assert(info.GasUsed > 21000, qt.IsTrue)

	// the payload can be read back from the chain
	tx, _, err := backend.Client().TransactionByHash(ctx, ref.Hash)
	c.Assert(err, qt.IsNil)
	c.Assert(*tx.To(), qt.Equals, anchor)
	decoded := &ledger.Payload{}
	c.Assert(decoded.Unmarshal(tx.Data()), qt.IsNil)
	c.Assert(decoded.ElectionID, qt.Equals, payload.ElectionID)
	c.Assert(decoded.Commitment, qt.Equals, payload.Commitment)

	_, err = l.Transaction(ctx, common.HexToHash("0xdeadbeef"))
	c.Assert(err, qt.Equals, ledger.ErrTxNotFound)
}

func TestSubmitThroughPool(t *testing.T) {
	c := qt.New(t)
	backend, keys := newSimulatedChain(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool := rpc.NewWeb3Pool()
	chainID, err := pool.AddClient(ctx, "simulated", backend.Client())
	c.Assert(err, qt.IsNil)
	cli, err := pool.Client(chainID)
	c.Assert(err, qt.IsNil)

	// zero anchor sends the transactions to the signer itself
	l, err := New(ctx, cli, keys, common.Address{})
	c.Assert(err, qt.IsNil)

	first, err := l.Submit(ctx, []byte("first"))
	c.Assert(err, qt.IsNil)
	second, err := l.Submit(ctx, []byte("second"))
	c.Assert(err, qt.IsNil)
	c.Assert(second.Hash, qt.Not(qt.Equals), first.Hash)
	c.Assert(second.BlockNumber >= first.BlockNumber, qt.IsTrue)

	info, err := l.Transaction(ctx, first.Hash)
	c.Assert(err, qt.IsNil)
	c.Assert(info.Status, qt.Equals, ledger.TxStatusSuccess)
}
