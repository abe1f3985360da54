package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// TxRef references a transaction anchored on the ledger.
type TxRef struct {
	Hash        common.Hash `json:"transactionHash" cbor:"0,keyasint"`
	BlockNumber uint64      `json:"blockNumber"     cbor:"1,keyasint"`
}

// Commitment is the binding hash of a voter choice. The salt used to build the
// hash is never stored here.
type Commitment struct {
	ElectionID    uuid.UUID      `json:"electionId"           cbor:"0,keyasint"`
	VoterID       string         `json:"voterId"              cbor:"1,keyasint"`
	WalletAddress common.Address `json:"walletAddress"        cbor:"2,keyasint"`
	Hash          common.Hash    `json:"commitment"           cbor:"3,keyasint"`
	Timestamp     time.Time      `json:"timestamp"            cbor:"4,keyasint"`
	Submitter     common.Address `json:"submitter"            cbor:"5,keyasint"`
	Tx            *TxRef         `json:"tx,omitempty"         cbor:"6,keyasint,omitempty"`
	Pending       bool           `json:"pending,omitempty"    cbor:"7,keyasint,omitempty"`
}

// Reveal discloses the choice and salt of a previously committed vote.
type Reveal struct {
	ElectionID uuid.UUID `json:"electionId"        cbor:"0,keyasint"`
	VoterID    string    `json:"voterId"           cbor:"1,keyasint"`
	Choice     string    `json:"choice"            cbor:"2,keyasint"`
	Salt       HexBytes  `json:"salt"              cbor:"3,keyasint"`
	Timestamp  time.Time `json:"timestamp"         cbor:"4,keyasint"`
	Tx         *TxRef    `json:"tx,omitempty"      cbor:"5,keyasint,omitempty"`
	Pending    bool      `json:"pending,omitempty" cbor:"6,keyasint,omitempty"`
}

// CommitmentReceipt is returned to the voter once the commitment is anchored.
// It is the only place where the salt travels back to the voter, so losing it
// forfeits the ability to reveal the vote.
type CommitmentReceipt struct {
	ElectionID      uuid.UUID      `json:"electionId"`
	VoterID         string         `json:"voterId"`
	WalletAddress   common.Address `json:"walletAddress"`
	Commitment      common.Hash    `json:"commitment"`
	Salt            HexBytes       `json:"salt"`
	TransactionHash common.Hash    `json:"transactionHash"`
	BlockNumber     uint64         `json:"blockNumber"`
	Timestamp       time.Time      `json:"timestamp"`
}

// TxKind identifies which artifact a ledger transaction anchors.
type TxKind string

const (
	TxKindCommit TxKind = "commit"
	TxKindReveal TxKind = "reveal"
)

// TxIndexEntry maps a ledger transaction to the local artifact it anchors.
type TxIndexEntry struct {
	ElectionID uuid.UUID `json:"electionId" cbor:"0,keyasint"`
	VoterID    string    `json:"voterId"    cbor:"1,keyasint"`
	Kind       TxKind    `json:"kind"       cbor:"2,keyasint"`
}

// InclusionProof proves a commitment is a leaf of the election commitment
// tree.
type InclusionProof struct {
	Root     HexBytes `json:"root"`
	Key      HexBytes `json:"key"`
	Value    HexBytes `json:"value"`
	Siblings HexBytes `json:"siblings"`
}

// VerificationResult is the outcome of verifying a transaction reference.
type VerificationResult struct {
	Verified        bool            `json:"verified"`
	Status          string          `json:"status"`
	Kind            TxKind          `json:"kind,omitempty"`
	ElectionID      *uuid.UUID      `json:"electionId,omitempty"`
	ElectionName    string          `json:"electionName,omitempty"`
	TransactionHash common.Hash     `json:"transactionHash"`
	BlockNumber     uint64          `json:"blockNumber"`
	Confirmations   uint64          `json:"confirmations"`
	GasUsed         uint64          `json:"gasUsed"`
	Commitment      *common.Hash    `json:"commitment,omitempty"`
	InclusionProof  *InclusionProof `json:"inclusionProof,omitempty"`
}
