package storage

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/vocdoni/commit-reveal-sequencer/types"
)

// Tally returns the stored tally of the election.
func (s *Storage) Tally(electionID uuid.UUID) (*types.Tally, error) {
	t := &types.Tally{}
	if err := s.getArtifact(tallyPrefix, electionID[:], t); err != nil {
		return nil, err
	}
	return t, nil
}

// SetTally stores the tally of an election. A tally is written once, further
// calls return types.ErrTallyExists.
func (s *Storage) SetTally(t *types.Tally) error {
	if t == nil {
		return fmt.Errorf("nil tally")
	}
	exists, err := s.hasArtifact(tallyPrefix, t.ElectionID[:])
	if err != nil {
		return err
	}
	if exists {
		return types.ErrTallyExists
	}
	return s.setArtifact(tallyPrefix, t.ElectionID[:], t)
}
