package registry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
	"github.com/vocdoni/commit-reveal-sequencer/election"
	"github.com/vocdoni/commit-reveal-sequencer/storage"
	"github.com/vocdoni/commit-reveal-sequencer/types"
	"go.vocdoni.io/dvote/db/metadb"
)

var (
	wallet1 = common.HexToAddress("0x1111111111111111111111111111111111111111")
	wallet2 = common.HexToAddress("0x2222222222222222222222222222222222222222")
	wallet3 = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func newTestRegistry(t *testing.T) (*Registry, *election.Machine, *types.Election) {
	stg := storage.New(metadb.NewTest(t))
	m := election.New(stg)
	e, err := m.Create(context.Background(), &types.ElectionSetup{
		Name:       "registry",
		Candidates: []types.Candidate{{Name: "Alice"}, {Name: "Bob"}},
		StartTime:  time.Now(),
		EndTime:    time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}
	return New(stg, m), m, e
}

func TestRegister(t *testing.T) {
	c := qt.New(t)
	r, m, e := newTestRegistry(t)
	ctx := context.Background()

	v, err := r.Register(ctx, e.ID, " voter1 ", wallet1)
	c.Assert(err, qt.IsNil)
	c.Assert(v.VoterID, qt.Equals, "voter1")
	c.Assert(v.Eligible, qt.IsTrue)

	// idempotent
	_, err = r.Register(ctx, e.ID, "voter1", wallet1)
	c.Assert(err, qt.IsNil)
	stored, err := m.Election(e.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.TotalVoters, qt.Equals, uint64(1))

	// one wallet, one voter
	_, err = r.Register(ctx, e.ID, "voter2", wallet1)
	c.Assert(errors.Is(err, types.ErrDuplicateWallet), qt.IsTrue)

	// the same wallet is fine in another election
	other, err := m.Create(ctx, &types.ElectionSetup{
		Name:       "other",
		Candidates: []types.Candidate{{Name: "Alice"}, {Name: "Bob"}},
		StartTime:  time.Now(),
		EndTime:    time.Now().Add(time.Hour),
	})
	c.Assert(err, qt.IsNil)
	_, err = r.Register(ctx, other.ID, "voter2", wallet1)
	c.Assert(err, qt.IsNil)

	// wallet update releases the old wallet
	_, err = r.Register(ctx, e.ID, "voter1", wallet2)
	c.Assert(err, qt.IsNil)
	c.Assert(r.IsEligible(ctx, e.ID, wallet1), qt.IsFalse)
	c.Assert(r.IsEligible(ctx, e.ID, wallet2), qt.IsTrue)
	_, err = r.Register(ctx, e.ID, "voter2", wallet1)
	c.Assert(err, qt.IsNil)

	_, err = r.Register(ctx, e.ID, "", wallet3)
	c.Assert(errors.Is(err, types.ErrInvalidVoter), qt.IsTrue)
	_, err = r.Register(ctx, e.ID, "voter3", common.Address{})
	c.Assert(errors.Is(err, types.ErrInvalidVoter), qt.IsTrue)
	_, err = r.Register(ctx, uuid.New(), "voter3", wallet3)
	c.Assert(errors.Is(err, types.ErrNotFound), qt.IsTrue)

	voters, err := r.Voters(e.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(voters, qt.HasLen, 2)
}

func TestRegisterPhases(t *testing.T) {
	c := qt.New(t)
	r, m, e := newTestRegistry(t)
	ctx := context.Background()

	_, err := m.Open(ctx, e.ID)
	c.Assert(err, qt.IsNil)
	_, err = r.Register(ctx, e.ID, "voter1", wallet1)
	c.Assert(err, qt.IsNil)

	_, err = m.Close(ctx, e.ID)
	c.Assert(err, qt.IsNil)
	_, err = r.Register(ctx, e.ID, "voter2", wallet2)
	c.Assert(errors.Is(err, types.ErrRegistrationClosed), qt.IsTrue)
	_, err = r.BulkRegister(ctx, e.ID, []types.VoterEntry{{VoterID: "voter2", WalletAddress: wallet2.Hex()}})
	c.Assert(errors.Is(err, types.ErrRegistrationClosed), qt.IsTrue)
}

func TestMarks(t *testing.T) {
	c := qt.New(t)
	r, _, e := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Register(ctx, e.ID, "voter1", wallet1)
	c.Assert(err, qt.IsNil)

	c.Assert(r.MarkRevealed(e.ID, "voter1"), qt.ErrorMatches, ".*no commitment")
	c.Assert(r.MarkCommitted(e.ID, "voter1"), qt.IsNil)
	c.Assert(r.MarkCommitted(e.ID, "voter1"), qt.Equals, types.ErrAlreadyCommitted)

	// a committed voter keeps its wallet
	_, err = r.Register(ctx, e.ID, "voter1", wallet2)
	c.Assert(errors.Is(err, types.ErrAlreadyCommitted), qt.IsTrue)
	_, err = r.Register(ctx, e.ID, "voter1", wallet1)
	c.Assert(err, qt.IsNil)

	c.Assert(r.MarkRevealed(e.ID, "voter1"), qt.IsNil)
	c.Assert(r.MarkRevealed(e.ID, "voter1"), qt.Equals, types.ErrAlreadyRevealed)
	c.Assert(r.UnmarkCommitted(e.ID, "voter1"), qt.IsNotNil)

	c.Assert(r.UnmarkRevealed(e.ID, "voter1"), qt.IsNil)
	c.Assert(r.UnmarkCommitted(e.ID, "voter1"), qt.IsNil)
	v, err := r.Voter(e.ID, "voter1")
	c.Assert(err, qt.IsNil)
	c.Assert(v.Committed, qt.IsFalse)
	c.Assert(v.Revealed, qt.IsFalse)

	c.Assert(r.MarkCommitted(e.ID, "unknown"), qt.Equals, types.ErrNotFound)
}

func TestBulkRegister(t *testing.T) {
	c := qt.New(t)
	r, m, e := newTestRegistry(t)
	ctx := context.Background()

	results, err := r.BulkRegister(ctx, e.ID, []types.VoterEntry{
		{VoterID: "voter1", WalletAddress: wallet1.Hex()},
		{VoterID: "voter2", WalletAddress: "not-a-wallet"},
		{VoterID: "voter3", WalletAddress: wallet1.Hex()},
		{VoterID: "", WalletAddress: wallet2.Hex()},
		{VoterID: "voter4", WalletAddress: " " + strings.ToLower(wallet3.Hex()) + " "},
	})
	c.Assert(err, qt.IsNil)
	c.Assert(results, qt.HasLen, 5)
	c.Assert(results[0].Success, qt.IsTrue)
	c.Assert(results[1].Success, qt.IsFalse)
	c.Assert(results[1].Error, qt.Contains, "invalid wallet address")
	c.Assert(results[2].Success, qt.IsFalse)
	c.Assert(results[2].Error, qt.Contains, types.ErrDuplicateWallet.Error())
	c.Assert(results[3].Success, qt.IsFalse)
	c.Assert(results[4].Success, qt.IsTrue)

	stored, err := m.Election(e.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.TotalVoters, qt.Equals, uint64(2))

	_, err = r.BulkRegister(ctx, uuid.New(), nil)
	c.Assert(errors.Is(err, types.ErrNotFound), qt.IsTrue)
}

func TestIsEligible(t *testing.T) {
	c := qt.New(t)
	r, _, e := newTestRegistry(t)
	ctx := context.Background()

	c.Assert(r.IsEligible(ctx, e.ID, wallet1), qt.IsFalse)
	c.Assert(r.IsEligible(ctx, uuid.New(), wallet1), qt.IsFalse)
	_, err := r.Register(ctx, e.ID, "voter1", wallet1)
	c.Assert(err, qt.IsNil)
	c.Assert(r.IsEligible(ctx, e.ID, wallet1), qt.IsTrue)

	v, err := r.VoterByWallet(e.ID, wallet1)
	c.Assert(err, qt.IsNil)
	c.Assert(v.VoterID, qt.Equals, "voter1")
}

func TestParseCSV(t *testing.T) {
	c := qt.New(t)
	input := "VoterID,WalletAddress\nvoter1, " + wallet1.Hex() + "\n\n  \nvoter2,0xabc\nvoter3\n# comment\nvoter4 ," + wallet2.Hex() + "  \n"
	entries, err := ParseCSV(strings.NewReader(input))
	c.Assert(err, qt.IsNil)
	c.Assert(entries, qt.DeepEquals, []types.VoterEntry{
		{VoterID: "voter1", WalletAddress: wallet1.Hex()},
		{VoterID: "voter2", WalletAddress: "0xabc"},
		{VoterID: "voter3"},
		{VoterID: "voter4", WalletAddress: wallet2.Hex()},
	})
}
