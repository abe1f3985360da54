package verify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/commit-reveal-sequencer/election"
	"github.com/vocdoni/commit-reveal-sequencer/ledger/memledger"
	"github.com/vocdoni/commit-reveal-sequencer/registry"
	"github.com/vocdoni/commit-reveal-sequencer/storage"
	"github.com/vocdoni/commit-reveal-sequencer/types"
	"github.com/vocdoni/commit-reveal-sequencer/voting"
	"go.vocdoni.io/dvote/db/metadb"
)

func TestVerify(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	stg := storage.New(metadb.NewTest(t))
	machine := election.New(stg)
	now := time.Now()
	machine.SetClock(func() time.Time { return now })
	reg := registry.New(stg, machine)
	l := memledger.New(common.Address{})
	engine := voting.New(stg, machine, reg, l, time.Second)
	svc := New(stg, l)

	e, err := machine.Create(ctx, &types.ElectionSetup{
		Name:       "Verifiable",
		Candidates: []types.Candidate{{Name: "Alice"}, {Name: "Bob"}},
		StartTime:  now.Add(-time.Minute),
		EndTime:    now.Add(time.Hour),
	})
	c.Assert(err, qt.IsNil)
	wallets := []common.Address{
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		common.HexToAddress("0x2222222222222222222222222222222222222222"),
	}
	for i, w := range wallets {
		_, err := reg.Register(ctx, e.ID, []string{"ana", "ben"}[i], w)
		c.Assert(err, qt.IsNil)
	}
	_, err = machine.Open(ctx, e.ID)
	c.Assert(err, qt.IsNil)

	receipt, err := engine.Commit(ctx, &voting.CommitRequest{ElectionID: e.ID, WalletAddress: wallets[0], Choice: "Alice"})
	c.Assert(err, qt.IsNil)
	_, err = engine.Commit(ctx, &voting.CommitRequest{ElectionID: e.ID, WalletAddress: wallets[1], Choice: "Bob"})
	c.Assert(err, qt.IsNil)

	// commitment transaction
	res, err := svc.Verify(ctx, receipt.TransactionHash)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Verified, qt.IsTrue)
	c.Assert(res.Status, qt.Equals, StatusConfirmed)
	c.Assert(res.Kind, qt.Equals, types.TxKindCommit)
	c.Assert(*res.ElectionID, qt.Equals, e.ID)
	c.Assert(res.ElectionName, qt.Equals, "Verifiable")
	c.Assert(res.BlockNumber, qt.Equals, receipt.BlockNumber)
	c.Assert(res.Confirmations, qt.Equals, uint64(2))
	c.Assert(*res.Commitment, qt.Equals, receipt.Commitment)
	c.Assert(res.InclusionProof, qt.IsNotNil)
	ok, err := storage.VerifyInclusion(res.InclusionProof)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)

	// reveal transaction
	_, err = machine.Close(ctx, e.ID)
	c.Assert(err, qt.IsNil)
	now = now.Add(2 * time.Hour)
	reveal, err := engine.Reveal(ctx, &voting.RevealRequest{
		ElectionID: e.ID, WalletAddress: wallets[0], Choice: "Alice", Salt: receipt.Salt,
	})
	c.Assert(err, qt.IsNil)
	res, err = svc.Verify(ctx, reveal.Tx.Hash)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Verified, qt.IsTrue)
	c.Assert(res.Kind, qt.Equals, types.TxKindReveal)
	c.Assert(*res.Commitment, qt.Equals, receipt.Commitment)

	// unknown to the ledger
	res, err = svc.Verify(ctx, common.HexToHash("0xbad"))
	c.Assert(err, qt.IsNil)
	c.Assert(res.Verified, qt.IsFalse)
	c.Assert(res.Status, qt.Equals, StatusNotFound)

	// on the ledger but not anchored by the sequencer
	foreign, err := l.Submit(ctx, []byte("foreign"))
	c.Assert(err, qt.IsNil)
	res, err = svc.Verify(ctx, foreign.Hash)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Verified, qt.IsFalse)
	c.Assert(res.Status, qt.Equals, StatusUnknown)
	c.Assert(res.BlockNumber, qt.Equals, foreign.BlockNumber)

	// the ledger is down: error, not a negative result
	l.SetUnavailable(true)
	_, err = svc.Verify(ctx, receipt.TransactionHash)
	c.Assert(errors.Is(err, types.ErrLedgerUnavailable), qt.IsTrue)
}

func TestVerifyMismatch(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	stg := storage.New(metadb.NewTest(t))
	l := memledger.New(common.Address{})
	svc := New(stg, l)

	// an index entry pointing to a commitment anchored by another transaction
	ref, err := l.Submit(ctx, []byte("payload"))
	c.Assert(err, qt.IsNil)
	e := &types.Election{Name: "x", Status: types.StatusOpen}
	e.ID[0] = 1
	c.Assert(stg.SetElection(e), qt.IsNil)
	c.Assert(stg.SetCommitment(&types.Commitment{
		ElectionID: e.ID,
		VoterID:    "v",
		Hash:       common.HexToHash("0x01"),
		Tx:         &types.TxRef{Hash: common.HexToHash("0x02"), BlockNumber: 1},
	}), qt.IsNil)
	c.Assert(stg.SetTxIndex(ref.Hash, &types.TxIndexEntry{ElectionID: e.ID, VoterID: "v", Kind: types.TxKindCommit}), qt.IsNil)

	res, err := svc.Verify(ctx, ref.Hash)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Verified, qt.IsFalse)
	c.Assert(res.Status, qt.Equals, StatusMismatch)
	c.Assert(res.ElectionName, qt.Equals, "x")
}
