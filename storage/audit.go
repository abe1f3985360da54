package storage

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/vocdoni/commit-reveal-sequencer/types"
	"github.com/vocdoni/commit-reveal-sequencer/util"
)

// AddAuditRecord appends an audit record. Records are never modified nor
// deleted.
func (s *Storage) AddAuditRecord(r *types.AuditRecord) error {
	if r == nil {
		return fmt.Errorf("nil audit record")
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	suffix := append(timeKey(r.Timestamp), util.RandomBytes(4)...)
	return s.setArtifact(auditPrefix, electionKey(r.ElectionID, suffix), r)
}

// AuditRecords returns the audit records of the election in insertion order.
func (s *Storage) AuditRecords(electionID uuid.UUID) ([]*types.AuditRecord, error) {
	return listArtifacts[types.AuditRecord](s, auditPrefix, electionID[:])
}

// SetTxIndex maps a ledger transaction hash to the artifact it anchors.
func (s *Storage) SetTxIndex(hash common.Hash, entry *types.TxIndexEntry) error {
	if entry == nil {
		return fmt.Errorf("nil tx index entry")
	}
	return s.setArtifact(txIndexPrefix, hash.Bytes(), entry)
}

// TxIndex returns the artifact reference anchored by the transaction hash.
func (s *Storage) TxIndex(hash common.Hash) (*types.TxIndexEntry, error) {
	entry := &types.TxIndexEntry{}
	if err := s.getArtifact(txIndexPrefix, hash.Bytes(), entry); err != nil {
		return nil, err
	}
	return entry, nil
}
