// Package verify reconciles ledger transactions with the stored commitments
// and reveals. A negative verification is a result, not an error: errors are
// only returned when the ledger cannot be queried.
package verify

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/commit-reveal-sequencer/commitment"
	"github.com/vocdoni/commit-reveal-sequencer/ledger"
	"github.com/vocdoni/commit-reveal-sequencer/storage"
	"github.com/vocdoni/commit-reveal-sequencer/types"
	"go.vocdoni.io/dvote/log"
	"golang.org/x/sync/errgroup"
)

// Verification statuses.
const (
	StatusConfirmed = "confirmed"
	StatusPending   = "pending"
	StatusFailed    = "failed"
	StatusNotFound  = "not_found"
	StatusUnknown   = "unknown"
	StatusMismatch  = "mismatch"
)

// Service is the verification service.
type Service struct {
	stg    *storage.Storage
	ledger ledger.Ledger
}

// New creates the verification service.
func New(stg *storage.Storage, l ledger.Ledger) *Service {
	return &Service{stg: stg, ledger: l}
}

// Verify looks up the transaction on the ledger and cross references it with
// the artifact it anchors. The result is verified only if the ledger reports
// the transaction as successful, the local artifact points to it and, for
// commitments, the commitment is included in the election commitment tree. It
// returns an error wrapping types.ErrLedgerUnavailable if the ledger cannot be
// queried.
func (s *Service) Verify(ctx context.Context, hash common.Hash) (*types.VerificationResult, error) {
	var (
		info  *ledger.TxInfo
		entry *types.TxIndexEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		info, err = s.ledger.Transaction(gctx, hash)
		if errors.Is(err, ledger.ErrTxNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", types.ErrLedgerUnavailable, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		entry, err = s.stg.TxIndex(hash)
		if errors.Is(err, types.ErrNotFound) {
			return nil
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &types.VerificationResult{TransactionHash: hash}
	if info == nil {
		result.Status = StatusNotFound
		return result, nil
	}
	result.BlockNumber = info.BlockNumber
	result.Confirmations = info.Confirmations
	result.GasUsed = info.GasUsed
	if entry == nil {
		result.Status = StatusUnknown
		return result, nil
	}
	result.Kind = entry.Kind
	result.ElectionID = &entry.ElectionID
	if e, err := s.stg.Election(entry.ElectionID); err == nil {
		result.ElectionName = e.Name
	} else {
		log.Warnw("indexed transaction of unknown election",
			"tx", hash.Hex(),
			"electionID", entry.ElectionID.String())
	}

	matched, err := s.crossReference(entry, hash, result)
	if err != nil {
		return nil, err
	}
	switch {
	case !matched:
		result.Status = StatusMismatch
	case info.Status == ledger.TxStatusPending:
		result.Status = StatusPending
	case info.Status == ledger.TxStatusFailed:
		result.Status = StatusFailed
	default:
		result.Status = StatusConfirmed
		result.Verified = true
	}
	return result, nil
}

// crossReference checks that the artifact referenced by the index entry is
// anchored by hash, filling the commitment and inclusion proof of the result.
func (s *Service) crossReference(entry *types.TxIndexEntry, hash common.Hash, result *types.VerificationResult) (bool, error) {
	c, err := s.stg.Commitment(entry.ElectionID, entry.VoterID)
	if errors.Is(err, types.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	committed := c.Hash
	result.Commitment = &committed

	switch entry.Kind {
	case types.TxKindCommit:
		if c.Pending || c.Tx == nil || c.Tx.Hash != hash {
			return false, nil
		}
	case types.TxKindReveal:
		r, err := s.stg.Reveal(entry.ElectionID, entry.VoterID)
		if errors.Is(err, types.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if r.Pending || r.Tx == nil || r.Tx.Hash != hash {
			return false, nil
		}
		if !commitment.Verify(r.Choice, r.Salt, c.Hash) {
			return false, nil
		}
	default:
		return false, nil
	}

	proof, err := s.stg.CommitmentProof(entry.ElectionID, c.WalletAddress)
	if errors.Is(err, types.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if common.BytesToHash(proof.Value) != c.Hash {
		return false, nil
	}
	ok, err := storage.VerifyInclusion(proof)
	if err != nil || !ok {
		return false, err
	}
	result.InclusionProof = proof
	return true, nil
}
