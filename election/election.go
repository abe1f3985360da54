// Package election implements the lifecycle state machine of the elections.
// An election moves Created -> Open -> Closed -> Tallied, never skipping nor
// reversing a phase.
//
// Every transition and every phase dependent acceptance of an election runs
// inside its exclusive scope (see Machine.Guard), so concurrent callers observe
// the status either before or after a transition and at most one transition
// succeeds. Scopes are per election, unrelated elections never contend.
package election

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vocdoni/commit-reveal-sequencer/storage"
	"github.com/vocdoni/commit-reveal-sequencer/tally"
	"github.com/vocdoni/commit-reveal-sequencer/types"
	"go.vocdoni.io/dvote/log"
)

// Machine owns the canonical record of the elections.
type Machine struct {
	stg   *storage.Storage
	arena *arena

	clockMu sync.RWMutex
	clock   func() time.Time
}

// New creates a state machine over the storage.
func New(stg *storage.Storage) *Machine {
	return &Machine{
		stg:   stg,
		arena: newArena(),
		clock: time.Now,
	}
}

// SetClock replaces the function used to read the current time.
func (m *Machine) SetClock(clock func() time.Time) {
	m.clockMu.Lock()
	defer m.clockMu.Unlock()
	m.clock = clock
}

// Now returns the current time in UTC according to the machine clock.
func (m *Machine) Now() time.Time {
	m.clockMu.RLock()
	defer m.clockMu.RUnlock()
	return m.clock().UTC()
}

// Guard runs fn with exclusive access to the election. Guard is not
// reentrant: fn must not call Guard for the same election, nor any Machine
// method documented as acquiring the scope. It returns the context error if
// the scope could not be acquired before the context is done.
func (m *Machine) Guard(ctx context.Context, id uuid.UUID, fn func() error) error {
	return m.arena.guard(ctx, id, func(*scope) error { return fn() })
}

// Reserve registers a ledger submission in flight for the election. It must be
// called inside the election scope and balanced with Settle.
func (m *Machine) Reserve(id uuid.UUID) {
	m.arena.add(id, 1)
}

// Settle marks a ledger submission reserved with Reserve as finished.
func (m *Machine) Settle(id uuid.UUID) {
	m.arena.add(id, -1)
}

// InFlight returns the number of ledger submissions in flight for the election.
func (m *Machine) InFlight(id uuid.UUID) int64 {
	return m.arena.inFlight(id)
}

// Create validates the setup and stores a new election in the Created status.
func (m *Machine) Create(_ context.Context, setup *types.ElectionSetup) (*types.Election, error) {
	if setup == nil {
		return nil, fmt.Errorf("%w: missing setup", types.ErrInvalidElection)
	}
	if err := setup.Validate(); err != nil {
		return nil, err
	}
	e := &types.Election{
		ID:          uuid.New(),
		Name:        setup.Name,
		Description: setup.Description,
		Candidates:  setup.Candidates,
		StartTime:   setup.StartTime,
		EndTime:     setup.EndTime,
		Status:      types.StatusCreated,
		CreatedBy:   setup.CreatedBy,
		CreatedAt:   m.Now(),
	}
	if err := m.stg.SetElection(e); err != nil {
		return nil, fmt.Errorf("could not store election: %w", err)
	}
	log.Infow("election created",
		"electionID", e.ID.String(),
		"name", e.Name,
		"candidates", len(e.Candidates),
		"start", e.StartTime,
		"end", e.EndTime)
	return e, nil
}

// SetCandidates replaces the candidate list. Candidates can only change while
// the election is Created. Acquires the election scope.
func (m *Machine) SetCandidates(ctx context.Context, id uuid.UUID, candidates []types.Candidate) (*types.Election, error) {
	normalized, err := types.NormalizeCandidates(candidates)
	if err != nil {
		return nil, err
	}
	var e *types.Election
	err = m.Guard(ctx, id, func() error {
		var err error
		if e, err = m.stg.Election(id); err != nil {
			return err
		}
		if e.Status != types.StatusCreated {
			return fmt.Errorf("%w: candidates are immutable once the election is %s",
				types.ErrInvalidTransition, e.Status)
		}
		e.Candidates = normalized
		return m.stg.SetElection(e)
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Open moves the election from Created to Open. Acquires the election scope.
func (m *Machine) Open(ctx context.Context, id uuid.UUID) (*types.Election, error) {
	return m.transition(ctx, id, types.StatusOpen, func(e *types.Election, now time.Time) error {
		e.OpenedAt = &now
		return nil
	})
}

// Close moves the election from Open to Closed and fixes the root of its
// commitment tree. No commitment is accepted afterwards, even if the end time
// has not been reached. It fails with types.ErrPendingSubmissions while
// commitments are still being anchored. Acquires the election scope.
func (m *Machine) Close(ctx context.Context, id uuid.UUID) (*types.Election, error) {
	return m.transition(ctx, id, types.StatusClosed, func(e *types.Election, now time.Time) error {
		if n := m.InFlight(id); n > 0 {
			return fmt.Errorf("%w: %d commitments", types.ErrPendingSubmissions, n)
		}
		root, err := m.stg.CommitmentRoot(id)
		if err != nil {
			return err
		}
		e.ClosedAt = &now
		e.CommitmentRoot = root
		return nil
	})
}

// Tally moves the election from Closed to Tallied. It counts the finalized
// reveals, stores the tally once and records every rejected reveal as an audit
// record. It fails with types.ErrPendingSubmissions while reveals are still
// being anchored. Acquires the election scope.
func (m *Machine) Tally(ctx context.Context, id uuid.UUID) (*types.Tally, error) {
	var result *types.Tally
	_, err := m.transition(ctx, id, types.StatusTallied, func(e *types.Election, now time.Time) error {
		if n := m.InFlight(id); n > 0 {
			return fmt.Errorf("%w: %d reveals", types.ErrPendingSubmissions, n)
		}
		reveals, err := m.stg.Reveals(id)
		if err != nil {
			return fmt.Errorf("could not load reveals: %w", err)
		}
		t, rejections := tally.Compute(e, reveals, now)
		switch err := m.stg.SetTally(t); {
		case errors.Is(err, types.ErrTallyExists):
			// stored by a previous attempt that failed to update the status
			if t, err = m.stg.Tally(id); err != nil {
				return err
			}
		case err != nil:
			return fmt.Errorf("could not store tally: %w", err)
		}
		if err := m.auditRejections(id, rejections, now); err != nil {
			return err
		}
		e.TalliedAt = &now
		result = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Infow("election tallied",
		"electionID", id.String(),
		"revealed", result.TotalRevealed,
		"rejected", result.Rejected)
	return result, nil
}

// auditRejections stores an audit record for every rejected reveal that does
// not have one yet, so a retried Tally does not duplicate them.
func (m *Machine) auditRejections(id uuid.UUID, rejections []tally.Rejection, now time.Time) error {
	if len(rejections) == 0 {
		return nil
	}
	records, err := m.stg.AuditRecords(id)
	if err != nil {
		return fmt.Errorf("could not load audit records: %w", err)
	}
	audited := make(map[string]bool, len(records))
	for _, r := range records {
		if r.Kind == types.AuditUnknownCandidate {
			audited[r.VoterID] = true
		}
	}
	for _, r := range rejections {
		if audited[r.VoterID] {
			continue
		}
		log.Warnw("reveal excluded from tally",
			"electionID", id.String(),
			"voterID", r.VoterID,
			"error", r.Err.Error())
		if err := m.stg.AddAuditRecord(&types.AuditRecord{
			ElectionID: id,
			VoterID:    r.VoterID,
			Kind:       types.AuditUnknownCandidate,
			Detail:     r.Err.Error(),
			Timestamp:  now,
		}); err != nil {
			return fmt.Errorf("could not store audit record: %w", err)
		}
	}
	return nil
}

// transition moves the election to the status next to its current one, if
// that is target. apply is called inside the election scope before storing.
func (m *Machine) transition(ctx context.Context, id uuid.UUID, target types.ElectionStatus,
	apply func(e *types.Election, now time.Time) error,
) (*types.Election, error) {
	var e *types.Election
	err := m.Guard(ctx, id, func() error {
		var err error
		if e, err = m.stg.Election(id); err != nil {
			return err
		}
		next, ok := e.Status.Next()
		if !ok || next != target {
			return fmt.Errorf("%w: cannot move from %s to %s", types.ErrInvalidTransition, e.Status, target)
		}
		if err := apply(e, m.Now()); err != nil {
			return err
		}
		e.Status = target
		return m.stg.SetElection(e)
	})
	if err != nil {
		return nil, err
	}
	log.Infow("election status changed", "electionID", id.String(), "status", e.Status.String())
	return e, nil
}

// AdjustCounters adds the deltas to the aggregate counters of the election.
// It must be called inside the election scope.
func (m *Machine) AdjustCounters(id uuid.UUID, voters, committed, revealed int64) error {
	e, err := m.stg.Election(id)
	if err != nil {
		return err
	}
	e.TotalVoters = addDelta(e.TotalVoters, voters)
	e.VotesCommitted = addDelta(e.VotesCommitted, committed)
	e.VotesRevealed = addDelta(e.VotesRevealed, revealed)
	return m.stg.SetElection(e)
}

func addDelta(v uint64, delta int64) uint64 {
	if delta < 0 && uint64(-delta) > v {
		return 0
	}
	return uint64(int64(v) + delta)
}

// Election returns the election record.
func (m *Machine) Election(id uuid.UUID) (*types.Election, error) {
	return m.stg.Election(id)
}

// List returns every election sorted by creation time.
func (m *Machine) List() ([]*types.Election, error) {
	return m.stg.ListElections()
}

// TallyResult returns the stored tally of a Tallied election.
func (m *Machine) TallyResult(id uuid.UUID) (*types.Tally, error) {
	e, err := m.stg.Election(id)
	if err != nil {
		return nil, err
	}
	if e.Status != types.StatusTallied {
		return nil, fmt.Errorf("%w: election is %s", types.ErrNotFound, e.Status)
	}
	return m.stg.Tally(id)
}
