package api

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/vocdoni/commit-reveal-sequencer/types"
)

// ElectionsResponse lists the known elections sorted by creation time.
type ElectionsResponse struct {
	Elections []*types.Election `json:"elections"`
}

// CandidatesRequest replaces the candidate list of an election.
type CandidatesRequest struct {
	Candidates []types.Candidate `json:"candidates"`
}

// BulkRegisterRequest registers a list of voters in an election.
type BulkRegisterRequest struct {
	ElectionID uuid.UUID          `json:"electionId"`
	Voters     []types.VoterEntry `json:"voters"`
}

// BulkRegisterResponse reports the outcome of every registration entry.
type BulkRegisterResponse struct {
	ElectionID uuid.UUID                  `json:"electionId"`
	Registered int                        `json:"registered"`
	Failed     int                        `json:"failed"`
	Results    []types.RegistrationResult `json:"results"`
}

// VotersResponse lists the voters of an election.
type VotersResponse struct {
	ElectionID uuid.UUID            `json:"electionId"`
	Voters     []*types.VoterRecord `json:"voters"`
}

// EligibilityResponse reports whether a wallet may vote in an election.
type EligibilityResponse struct {
	ElectionID    uuid.UUID      `json:"electionId"`
	WalletAddress common.Address `json:"walletAddress"`
	Eligible      bool           `json:"eligible"`
	VoterID       string         `json:"voterId,omitempty"`
	Committed     bool           `json:"committed"`
	Revealed      bool           `json:"revealed"`
}

// RevealResponse is returned once a reveal is anchored on the ledger.
type RevealResponse struct {
	ElectionID      uuid.UUID   `json:"electionId"`
	VoterID         string      `json:"voterId"`
	Choice          string      `json:"choice"`
	TransactionHash common.Hash `json:"transactionHash"`
	BlockNumber     uint64      `json:"blockNumber"`
	Timestamp       time.Time   `json:"timestamp"`
}

// CheckRevealResponse reports whether an opening matches the stored
// commitment.
type CheckRevealResponse struct {
	Valid bool `json:"valid"`
}

// AuditResponse lists the audit records of an election.
// RecountResponse is the result of recounting a stored tally.
type RecountResponse struct {
	Stored     *types.Tally `json:"stored"`
	Recomputed *types.Tally `json:"recomputed"`
	Matches    bool         `json:"matches"`
}

type AuditResponse struct {
	ElectionID uuid.UUID            `json:"electionId"`
	Records    []*types.AuditRecord `json:"records"`
}
