package storage

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/vocdoni/commit-reveal-sequencer/types"
)

// Commitment returns the commitment of the voter in the election.
func (s *Storage) Commitment(electionID uuid.UUID, voterID string) (*types.Commitment, error) {
	c := &types.Commitment{}
	if err := s.getArtifact(commitmentPrefix, electionKey(electionID, []byte(voterID)), c); err != nil {
		return nil, err
	}
	return c, nil
}

// SetCommitment stores the commitment, replacing any previous version.
func (s *Storage) SetCommitment(c *types.Commitment) error {
	if c == nil {
		return fmt.Errorf("nil commitment")
	}
	return s.setArtifact(commitmentPrefix, electionKey(c.ElectionID, []byte(c.VoterID)), c)
}

// DeleteCommitment removes the commitment of the voter. Only used to roll
// back a reservation whose ledger submission failed.
func (s *Storage) DeleteCommitment(electionID uuid.UUID, voterID string) error {
	return s.deleteArtifact(commitmentPrefix, electionKey(electionID, []byte(voterID)))
}

// Commitments returns every commitment of the election, pending ones included.
func (s *Storage) Commitments(electionID uuid.UUID) ([]*types.Commitment, error) {
	return listArtifacts[types.Commitment](s, commitmentPrefix, electionID[:])
}

// Reveal returns the reveal of the voter in the election.
func (s *Storage) Reveal(electionID uuid.UUID, voterID string) (*types.Reveal, error) {
	r := &types.Reveal{}
	if err := s.getArtifact(revealPrefix, electionKey(electionID, []byte(voterID)), r); err != nil {
		return nil, err
	}
	return r, nil
}

// SetReveal stores the reveal, replacing any previous version.
func (s *Storage) SetReveal(r *types.Reveal) error {
	if r == nil {
		return fmt.Errorf("nil reveal")
	}
	return s.setArtifact(revealPrefix, electionKey(r.ElectionID, []byte(r.VoterID)), r)
}

// DeleteReveal removes the reveal of the voter. Only used to roll back a
// reservation whose ledger submission failed.
func (s *Storage) DeleteReveal(electionID uuid.UUID, voterID string) error {
	return s.deleteArtifact(revealPrefix, electionKey(electionID, []byte(voterID)))
}

// Reveals returns every reveal of the election, pending ones included.
func (s *Storage) Reveals(electionID uuid.UUID) ([]*types.Reveal, error) {
	return listArtifacts[types.Reveal](s, revealPrefix, electionID[:])
}
