package election

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
	"github.com/vocdoni/commit-reveal-sequencer/storage"
	"github.com/vocdoni/commit-reveal-sequencer/tally"
	"github.com/vocdoni/commit-reveal-sequencer/types"
	"go.vocdoni.io/dvote/db/metadb"
)

func newTestMachine(t *testing.T) (*Machine, *storage.Storage) {
	stg := storage.New(metadb.NewTest(t))
	return New(stg), stg
}

func testSetup(start time.Time) *types.ElectionSetup {
	return &types.ElectionSetup{
		Name:       "Board election",
		Candidates: []types.Candidate{{Name: "Alice", Party: "Blue"}, {Name: "Bob"}},
		StartTime:  start,
		EndTime:    start.Add(time.Hour),
		CreatedBy:  "admin",
	}
}

func TestCreate(t *testing.T) {
	c := qt.New(t)
	m, _ := newTestMachine(t)
	ctx := context.Background()

	e, err := m.Create(ctx, testSetup(time.Now()))
	c.Assert(err, qt.IsNil)
	c.Assert(e.Status, qt.Equals, types.StatusCreated)
	c.Assert(e.Candidates[1].Party, qt.Equals, types.DefaultParty)

	stored, err := m.Election(e.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Name, qt.Equals, "Board election")
	c.Assert(stored.CreatedBy, qt.Equals, "admin")

	// invalid setups
	bad := testSetup(time.Now())
	bad.EndTime = bad.StartTime
	_, err = m.Create(ctx, bad)
	c.Assert(errors.Is(err, types.ErrInvalidElection), qt.IsTrue)

	bad = testSetup(time.Now())
	bad.Candidates = []types.Candidate{{Name: "Alice"}, {Name: " Alice "}}
	_, err = m.Create(ctx, bad)
	c.Assert(errors.Is(err, types.ErrInvalidElection), qt.IsTrue)

	bad = testSetup(time.Now())
	bad.Candidates = []types.Candidate{{Name: "Alice"}, {Name: "  "}}
	_, err = m.Create(ctx, bad)
	c.Assert(errors.Is(err, types.ErrInvalidElection), qt.IsTrue)

	list, err := m.List()
	c.Assert(err, qt.IsNil)
	c.Assert(list, qt.HasLen, 1)
}

func TestLifecycle(t *testing.T) {
	c := qt.New(t)
	m, _ := newTestMachine(t)
	ctx := context.Background()

	_, err := m.Open(ctx, uuid.New())
	c.Assert(err, qt.Equals, types.ErrNotFound)

	e, err := m.Create(ctx, testSetup(time.Now()))
	c.Assert(err, qt.IsNil)

	// no skipping
	_, err = m.Close(ctx, e.ID)
	c.Assert(errors.Is(err, types.ErrInvalidTransition), qt.IsTrue)
	_, err = m.Tally(ctx, e.ID)
	c.Assert(errors.Is(err, types.ErrInvalidTransition), qt.IsTrue)

	e, err = m.Open(ctx, e.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(e.Status, qt.Equals, types.StatusOpen)
	c.Assert(e.OpenedAt, qt.IsNotNil)

	_, err = m.TallyResult(e.ID)
	c.Assert(errors.Is(err, types.ErrNotFound), qt.IsTrue)

	e, err = m.Close(ctx, e.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(e.Status, qt.Equals, types.StatusClosed)
	c.Assert(e.CommitmentRoot, qt.Not(qt.HasLen), 0)

	// no regression
	_, err = m.Open(ctx, e.ID)
	c.Assert(errors.Is(err, types.ErrInvalidTransition), qt.IsTrue)

	result, err := m.Tally(ctx, e.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(result.Counts, qt.DeepEquals, map[string]uint64{"Alice": 0, "Bob": 0})

	stored, err := m.TallyResult(e.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Counts, qt.DeepEquals, result.Counts)

	for _, fn := range []func(context.Context, uuid.UUID) (*types.Election, error){m.Open, m.Close} {
		_, err = fn(ctx, e.ID)
		c.Assert(errors.Is(err, types.ErrInvalidTransition), qt.IsTrue)
	}
	_, err = m.Tally(ctx, e.ID)
	c.Assert(errors.Is(err, types.ErrInvalidTransition), qt.IsTrue)

	e, err = m.Election(e.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(e.Status, qt.Equals, types.StatusTallied)
	c.Assert(e.TalliedAt, qt.IsNotNil)
}

func TestSetCandidates(t *testing.T) {
	c := qt.New(t)
	m, _ := newTestMachine(t)
	ctx := context.Background()

	e, err := m.Create(ctx, testSetup(time.Now()))
	c.Assert(err, qt.IsNil)

	e, err = m.SetCandidates(ctx, e.ID, []types.Candidate{{Name: "Carol"}, {Name: "Dave", Party: "Red"}})
	c.Assert(err, qt.IsNil)
	c.Assert(e.Candidates, qt.DeepEquals, []types.Candidate{
		{Name: "Carol", Party: types.DefaultParty},
		{Name: "Dave", Party: "Red"},
	})

	_, err = m.SetCandidates(ctx, e.ID, []types.Candidate{{Name: "Carol"}})
	c.Assert(errors.Is(err, types.ErrInvalidElection), qt.IsTrue)

	_, err = m.Open(ctx, e.ID)
	c.Assert(err, qt.IsNil)
	_, err = m.SetCandidates(ctx, e.ID, []types.Candidate{{Name: "Erin"}, {Name: "Frank"}})
	c.Assert(errors.Is(err, types.ErrInvalidTransition), qt.IsTrue)
}

func TestConcurrentTransitions(t *testing.T) {
	c := qt.New(t)
	m, _ := newTestMachine(t)
	ctx := context.Background()

	e, err := m.Create(ctx, testSetup(time.Now()))
	c.Assert(err, qt.IsNil)

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		invalid   int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Open(ctx, e.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, types.ErrInvalidTransition):
				invalid++
			}
		}()
	}
	wg.Wait()
	c.Assert(succeeded, qt.Equals, 1)
	c.Assert(invalid, qt.Equals, workers-1)
}

func TestGuard(t *testing.T) {
	c := qt.New(t)
	m, _ := newTestMachine(t)

	id := uuid.New()
	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- m.Guard(context.Background(), id, func() error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	// the same election blocks until the context is done
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := m.Guard(ctx, id, func() error { return nil })
	c.Assert(err, qt.Equals, context.DeadlineExceeded)

	// other elections do not contend
	called := false
	err = m.Guard(context.Background(), uuid.New(), func() error {
		called = true
		return nil
	})
	c.Assert(err, qt.IsNil)
	c.Assert(called, qt.IsTrue)

	close(release)
	c.Assert(<-done, qt.IsNil)
	c.Assert(m.Guard(context.Background(), id, func() error { return nil }), qt.IsNil)
}

func TestPendingSubmissions(t *testing.T) {
	c := qt.New(t)
	m, _ := newTestMachine(t)
	ctx := context.Background()

	e, err := m.Create(ctx, testSetup(time.Now()))
	c.Assert(err, qt.IsNil)
	_, err = m.Open(ctx, e.ID)
	c.Assert(err, qt.IsNil)

	c.Assert(m.Guard(ctx, e.ID, func() error {
		m.Reserve(e.ID)
		return nil
	}), qt.IsNil)
	c.Assert(m.InFlight(e.ID), qt.Equals, int64(1))

	_, err = m.Close(ctx, e.ID)
	c.Assert(errors.Is(err, types.ErrPendingSubmissions), qt.IsTrue)
	e, err = m.Election(e.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(e.Status, qt.Equals, types.StatusOpen)

	m.Settle(e.ID)
	c.Assert(m.InFlight(e.ID), qt.Equals, int64(0))
	_, err = m.Close(ctx, e.ID)
	c.Assert(err, qt.IsNil)

	m.Reserve(e.ID)
	_, err = m.Tally(ctx, e.ID)
	c.Assert(errors.Is(err, types.ErrPendingSubmissions), qt.IsTrue)
	m.Settle(e.ID)
	_, err = m.Tally(ctx, e.ID)
	c.Assert(err, qt.IsNil)
}

func TestTallyRejections(t *testing.T) {
	c := qt.New(t)
	m, stg := newTestMachine(t)
	ctx := context.Background()

	e, err := m.Create(ctx, testSetup(time.Now()))
	c.Assert(err, qt.IsNil)
	_, err = m.Open(ctx, e.ID)
	c.Assert(err, qt.IsNil)
	_, err = m.Close(ctx, e.ID)
	c.Assert(err, qt.IsNil)

	for voter, choice := range map[string]string{"v1": "Alice", "v2": "Alice", "v3": "Bob", "v4": "Mallory"} {
		c.Assert(stg.SetReveal(&types.Reveal{ElectionID: e.ID, VoterID: voter, Choice: choice}), qt.IsNil)
	}
	// pending reveals are not counted
	c.Assert(stg.SetReveal(&types.Reveal{ElectionID: e.ID, VoterID: "v5", Choice: "Bob", Pending: true}), qt.IsNil)

	result, err := m.Tally(ctx, e.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(result.Counts, qt.DeepEquals, map[string]uint64{"Alice": 2, "Bob": 1})
	c.Assert(result.Sum(), qt.Equals, uint64(3))
	c.Assert(result.TotalRevealed, qt.Equals, uint64(4))
	c.Assert(result.Rejected, qt.Equals, uint64(1))

	records, err := stg.AuditRecords(e.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(records, qt.HasLen, 1)
	c.Assert(records[0].VoterID, qt.Equals, "v4")
	c.Assert(records[0].Kind, qt.Equals, types.AuditUnknownCandidate)
}

func TestTallyRetryKeepsAuditRecords(t *testing.T) {
	c := qt.New(t)
	m, stg := newTestMachine(t)
	ctx := context.Background()

	e, err := m.Create(ctx, testSetup(time.Now()))
	c.Assert(err, qt.IsNil)
	_, err = m.Open(ctx, e.ID)
	c.Assert(err, qt.IsNil)
	_, err = m.Close(ctx, e.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(stg.SetReveal(&types.Reveal{ElectionID: e.ID, VoterID: "v1", Choice: "Alice"}), qt.IsNil)
	c.Assert(stg.SetReveal(&types.Reveal{ElectionID: e.ID, VoterID: "v2", Choice: "Mallory"}), qt.IsNil)

	// a previous attempt stored the tally and its audit record, but the
	// election status was never updated
	closed, err := stg.Election(e.ID)
	c.Assert(err, qt.IsNil)
	previous, rejections := tally.Compute(closed, mustReveals(c, stg, e), time.Now())
	c.Assert(rejections, qt.HasLen, 1)
	c.Assert(stg.SetTally(previous), qt.IsNil)
	c.Assert(stg.AddAuditRecord(&types.AuditRecord{
		ElectionID: e.ID,
		VoterID:    "v2",
		Kind:       types.AuditUnknownCandidate,
		Detail:     rejections[0].Err.Error(),
	}), qt.IsNil)

	result, err := m.Tally(ctx, e.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(result.Counts, qt.DeepEquals, previous.Counts)
	c.Assert(result.Timestamp.Equal(previous.Timestamp), qt.IsTrue)

	records, err := stg.AuditRecords(e.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(records, qt.HasLen, 1)
	c.Assert(records[0].VoterID, qt.Equals, "v2")

	got, err := stg.Election(e.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Status, qt.Equals, types.StatusTallied)
}

func mustReveals(c *qt.C, stg *storage.Storage, e *types.Election) []*types.Reveal {
	reveals, err := stg.Reveals(e.ID)
	c.Assert(err, qt.IsNil)
	return reveals
}

func TestClock(t *testing.T) {
	c := qt.New(t)
	m, _ := newTestMachine(t)
	fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("x", 3600))
	m.SetClock(func() time.Time { return fixed })
	c.Assert(m.Now().Equal(fixed), qt.IsTrue)
	c.Assert(m.Now().Location(), qt.Equals, time.UTC)
}
