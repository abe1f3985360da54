package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// VoterRecord binds a voter identity to a wallet within an election and keeps
// track of its participation. Committed implies Eligible and Revealed implies
// Committed.
type VoterRecord struct {
	ElectionID    uuid.UUID      `json:"electionId"    cbor:"0,keyasint"`
	VoterID       string         `json:"voterId"       cbor:"1,keyasint"`
	WalletAddress common.Address `json:"walletAddress" cbor:"2,keyasint"`
	Eligible      bool           `json:"eligible"      cbor:"3,keyasint"`
	Committed     bool           `json:"committed"     cbor:"4,keyasint"`
	Revealed      bool           `json:"revealed"      cbor:"5,keyasint"`
}

// VoterEntry is a single row of a (bulk) registration request.
type VoterEntry struct {
	VoterID       string `json:"voterId"`
	WalletAddress string `json:"walletAddress"`
}

// RegistrationResult reports the outcome of registering a single entry.
type RegistrationResult struct {
	VoterID       string `json:"voterId"`
	WalletAddress string `json:"walletAddress"`
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
}
