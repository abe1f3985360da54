package storage

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/vocdoni/commit-reveal-sequencer/types"
)

// Election retrieves the election from the storage. It returns ErrNotFound if
// the election does not exist.
func (s *Storage) Election(id uuid.UUID) (*types.Election, error) {
	e := &types.Election{}
	if err := s.getArtifact(electionPrefix, id[:], e); err != nil {
		return nil, err
	}
	return e, nil
}

// SetElection stores the election, replacing any previous version.
func (s *Storage) SetElection(e *types.Election) error {
	if e == nil {
		return fmt.Errorf("nil election")
	}
	if e.ID == uuid.Nil {
		return fmt.Errorf("election without id")
	}
	return s.setArtifact(electionPrefix, e.ID[:], e)
}

// ListElections returns every stored election sorted by creation time.
func (s *Storage) ListElections() ([]*types.Election, error) {
	elections, err := listArtifacts[types.Election](s, electionPrefix, nil)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(elections, func(i, j int) bool {
		return elections[i].CreatedAt.Before(elections[j].CreatedAt)
	})
	return elections, nil
}
