package service

import (
	"context"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/commit-reveal-sequencer/election"
	"github.com/vocdoni/commit-reveal-sequencer/storage"
	"github.com/vocdoni/commit-reveal-sequencer/types"
	"go.vocdoni.io/dvote/db/metadb"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (tc *testClock) set(t time.Time) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.now = t
}

func (tc *testClock) get() time.Time {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.now
}

func TestWindowMonitor(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	start := time.Date(2024, 11, 5, 8, 0, 0, 0, time.UTC)
	clock := &testClock{now: start.Add(10 * time.Minute)}

	machine := election.New(storage.New(metadb.NewTest(t)))
	machine.SetClock(clock.get)

	newElection := func(name string, end time.Time) *types.Election {
		e, err := machine.Create(ctx, &types.ElectionSetup{
			Name:       name,
			Candidates: []types.Candidate{{Name: "Alice"}, {Name: "Bob"}},
			StartTime:  start,
			EndTime:    end,
		})
		c.Assert(err, qt.IsNil)
		return e
	}
	short := newElection("short", start.Add(time.Hour))
	long := newElection("long", start.Add(3*time.Hour))
	created := newElection("never opened", start.Add(time.Hour))
	for _, e := range []*types.Election{short, long} {
		_, err := machine.Open(ctx, e.ID)
		c.Assert(err, qt.IsNil)
	}

	monitor := NewWindowMonitor(machine, time.Hour)

	// nothing expired yet
	n, err := monitor.CloseExpired(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 0)

	// an election with in-flight submissions is postponed
	clock.set(start.Add(2 * time.Hour))
	machine.Reserve(short.ID)
	n, err = monitor.CloseExpired(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 0)
	machine.Settle(short.ID)

	n, err = monitor.CloseExpired(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 1)

	status := func(id *types.Election) types.ElectionStatus {
		e, err := machine.Election(id.ID)
		c.Assert(err, qt.IsNil)
		return e.Status
	}
	c.Assert(status(short), qt.Equals, types.StatusClosed)
	c.Assert(status(long), qt.Equals, types.StatusOpen)
	c.Assert(status(created), qt.Equals, types.StatusCreated)

	t.Run("background loop", func(t *testing.T) {
		c := qt.New(t)
		monitor := NewWindowMonitor(machine, 20*time.Millisecond)
		c.Assert(monitor.Start(ctx), qt.IsNil)
		defer monitor.Stop()
		c.Assert(monitor.Start(ctx), qt.ErrorMatches, "service already running")

		clock.set(start.Add(4 * time.Hour))
		closed := false
		for i := 0; i < 100 && !closed; i++ {
			time.Sleep(20 * time.Millisecond)
			closed = status(long) == types.StatusClosed
		}
		c.Assert(closed, qt.IsTrue)
	})

	c.Assert(NewWindowMonitor(machine, 0).Start(ctx), qt.ErrorMatches, "invalid monitor interval .*")
}
