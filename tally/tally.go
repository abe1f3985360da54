// Package tally aggregates the revealed votes of an election into per
// candidate counts. The computation is deterministic: the same set of reveals
// always produces the same counts, regardless of their order.
package tally

import (
	"errors"
	"fmt"
	"maps"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/vocdoni/commit-reveal-sequencer/storage"
	"github.com/vocdoni/commit-reveal-sequencer/types"
)

// ErrMismatch is returned by Recount when the recomputed counts differ from the
// stored tally.
var ErrMismatch = errors.New("recomputed tally does not match the stored one")

// Rejection is a reveal excluded from the count.
type Rejection struct {
	VoterID string
	Choice  string
	Err     error
}

// Compute counts the finalized reveals of the election. Every declared
// candidate gets an entry, even with zero votes. Reveals naming an unknown
// candidate are excluded and returned as rejections, sorted by voter id.
// Pending reveals are ignored.
func Compute(election *types.Election, reveals []*types.Reveal, timestamp time.Time) (*types.Tally, []Rejection) {
	counts := make(map[string]uint64, len(election.Candidates))
	for _, c := range election.Candidates {
		counts[c.Name] = 0
	}
	var (
		revealed   uint64
		rejections []Rejection
	)
	for _, r := range reveals {
		if r == nil || r.Pending {
			continue
		}
		revealed++
		if !election.HasCandidate(r.Choice) {
			rejections = append(rejections, Rejection{
				VoterID: r.VoterID,
				Choice:  r.Choice,
				Err:     fmt.Errorf("%w: %q", types.ErrUnknownCandidate, r.Choice),
			})
			continue
		}
		counts[r.Choice]++
	}
	sort.Slice(rejections, func(i, j int) bool {
		return rejections[i].VoterID < rejections[j].VoterID
	})
	return &types.Tally{
		ElectionID:     election.ID,
		Counts:         counts,
		TotalRevealed:  revealed,
		Rejected:       uint64(len(rejections)),
		CommitmentRoot: election.CommitmentRoot,
		Timestamp:      timestamp,
	}, rejections
}

// Recount recomputes the tally of an election from its stored reveals and
// checks it against the stored tally. It returns the recomputed tally.
func Recount(stg *storage.Storage, electionID uuid.UUID) (*types.Tally, error) {
	election, err := stg.Election(electionID)
	if err != nil {
		return nil, fmt.Errorf("could not load election: %w", err)
	}
	stored, err := stg.Tally(electionID)
	if err != nil {
		return nil, fmt.Errorf("could not load tally: %w", err)
	}
	reveals, err := stg.Reveals(electionID)
	if err != nil {
		return nil, fmt.Errorf("could not load reveals: %w", err)
	}
	recomputed, _ := Compute(election, reveals, stored.Timestamp)
	if !maps.Equal(recomputed.Counts, stored.Counts) || recomputed.Rejected != stored.Rejected {
		return recomputed, ErrMismatch
	}
	return recomputed, nil
}
