package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// ElectionStatus is the lifecycle phase of an election. Phases only move
// forward: Created -> Open -> Closed -> Tallied.
type ElectionStatus uint8

const (
	StatusCreated ElectionStatus = iota
	StatusOpen
	StatusClosed
	StatusTallied
)

var statusNames = map[ElectionStatus]string{
	StatusCreated: "created",
	StatusOpen:    "open",
	StatusClosed:  "closed",
	StatusTallied: "tallied",
}

// String returns the lowercase name of the status.
func (s ElectionStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(s))
}

// Next returns the only status reachable from s. It returns false if s is the
// final status.
func (s ElectionStatus) Next() (ElectionStatus, bool) {
	if s >= StatusTallied {
		return s, false
	}
	return s + 1, true
}

// MarshalJSON encodes the status as its name.
func (s ElectionStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a status name.
func (s *ElectionStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for st, n := range statusNames {
		if strings.EqualFold(n, name) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown election status %q", name)
}

// DefaultParty is assigned to candidates registered without a party label.
const DefaultParty = "Independent"

// Candidate is an option voters can choose. Names are unique within an
// election.
type Candidate struct {
	Name  string `json:"name"  cbor:"0,keyasint,omitempty"`
	Party string `json:"party" cbor:"1,keyasint,omitempty"`
}

// Election is the canonical record of an election. It is only mutated through
// the election state machine.
type Election struct {
	ID             uuid.UUID      `json:"id"                       cbor:"0,keyasint"`
	Name           string         `json:"name"                     cbor:"1,keyasint,omitempty"`
	Description    string         `json:"description"              cbor:"2,keyasint,omitempty"`
	Candidates     []Candidate    `json:"candidates"               cbor:"3,keyasint,omitempty"`
	StartTime      time.Time      `json:"startTime"                cbor:"4,keyasint"`
	EndTime        time.Time      `json:"endTime"                  cbor:"5,keyasint"`
	Status         ElectionStatus `json:"status"                   cbor:"6,keyasint"`
	TotalVoters    uint64         `json:"totalVoters"              cbor:"7,keyasint"`
	VotesCommitted uint64         `json:"votesCommitted"           cbor:"8,keyasint"`
	VotesRevealed  uint64         `json:"votesRevealed"            cbor:"9,keyasint"`
	CreatedBy      string         `json:"createdBy,omitempty"      cbor:"10,keyasint,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"                cbor:"11,keyasint"`
	OpenedAt       *time.Time     `json:"openedAt,omitempty"       cbor:"12,keyasint,omitempty"`
	ClosedAt       *time.Time     `json:"closedAt,omitempty"       cbor:"13,keyasint,omitempty"`
	TalliedAt      *time.Time     `json:"talliedAt,omitempty"      cbor:"14,keyasint,omitempty"`
	CommitmentRoot HexBytes       `json:"commitmentRoot,omitempty" cbor:"15,keyasint,omitempty"`
}

// HasCandidate reports whether name matches a declared candidate.
func (e *Election) HasCandidate(name string) bool {
	for _, c := range e.Candidates {
		if c.Name == name {
			return true
		}
	}
	return false
}

// InCommitWindow reports whether t falls inside [StartTime, EndTime).
func (e *Election) InCommitWindow(t time.Time) bool {
	return !t.Before(e.StartTime) && t.Before(e.EndTime)
}

// ElectionSetup holds the parameters to create a new election.
type ElectionSetup struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Candidates  []Candidate `json:"candidates"`
	StartTime   time.Time   `json:"startTime"`
	EndTime     time.Time   `json:"endTime"`
	CreatedBy   string      `json:"createdBy,omitempty"`
}

// Validate checks the setup and normalizes candidate names and parties. At
// least two uniquely named candidates are required and the end time must be
// strictly after the start time.
func (s *ElectionSetup) Validate() error {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidElection)
	}
	if s.StartTime.IsZero() || s.EndTime.IsZero() {
		return fmt.Errorf("%w: missing start or end time", ErrInvalidElection)
	}
	if !s.EndTime.After(s.StartTime) {
		return fmt.Errorf("%w: end time must be after start time", ErrInvalidElection)
	}
	candidates, err := NormalizeCandidates(s.Candidates)
	if err != nil {
		return err
	}
	s.Candidates = candidates
	s.StartTime = s.StartTime.UTC()
	s.EndTime = s.EndTime.UTC()
	return nil
}

// NormalizeCandidates trims names, drops blank entries, assigns the default
// party and rejects duplicates or lists with fewer than two candidates.
func NormalizeCandidates(in []Candidate) ([]Candidate, error) {
	seen := make(map[string]struct{}, len(in))
	out := make([]Candidate, 0, len(in))
	for _, c := range in {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			return nil, fmt.Errorf("%w: duplicated candidate %q", ErrInvalidElection, name)
		}
		seen[name] = struct{}{}
		party := strings.TrimSpace(c.Party)
		if party == "" {
			party = DefaultParty
		}
		out = append(out, Candidate{Name: name, Party: party})
	}
	if len(out) < 2 {
		return nil, fmt.Errorf("%w: at least 2 valid candidates are required", ErrInvalidElection)
	}
	return out, nil
}

// Tally is the final per-candidate count of an election. It is computed from
// the revealed votes and written once.
type Tally struct {
	ElectionID     uuid.UUID         `json:"electionId"               cbor:"0,keyasint"`
	Counts         map[string]uint64 `json:"tallies"                  cbor:"1,keyasint"`
	TotalRevealed  uint64            `json:"totalRevealed"            cbor:"2,keyasint"`
	Rejected       uint64            `json:"rejected"                 cbor:"3,keyasint"`
	CommitmentRoot HexBytes          `json:"commitmentRoot,omitempty" cbor:"4,keyasint,omitempty"`
	Timestamp      time.Time         `json:"timestamp"                cbor:"5,keyasint"`
}

// Sum returns the sum of all the candidate counts.
func (t *Tally) Sum() uint64 {
	var sum uint64
	for _, n := range t.Counts {
		sum += n
	}
	return sum
}

// AuditKind classifies audit records.
type AuditKind string

const (
	AuditInvalidReveal    AuditKind = "invalid_reveal"
	AuditUnknownCandidate AuditKind = "unknown_candidate"
)

// AuditRecord keeps track of rejected reveals so they are never dropped
// without a trace.
type AuditRecord struct {
	ElectionID    uuid.UUID      `json:"electionId"              cbor:"0,keyasint"`
	VoterID       string         `json:"voterId"                 cbor:"1,keyasint"`
	Kind          AuditKind      `json:"kind"                    cbor:"2,keyasint"`
	Detail        string         `json:"detail"                  cbor:"3,keyasint,omitempty"`
	WalletAddress common.Address `json:"walletAddress,omitempty" cbor:"4,keyasint,omitempty"`
	Timestamp     time.Time      `json:"timestamp"               cbor:"5,keyasint"`
}
