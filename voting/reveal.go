package voting

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/vocdoni/commit-reveal-sequencer/commitment"
	"github.com/vocdoni/commit-reveal-sequencer/ledger"
	"github.com/vocdoni/commit-reveal-sequencer/types"
	"go.vocdoni.io/dvote/log"
)

// Reveal opens the commitment of a voter. The election must be Closed and
// its end time reached. If the choice and salt do not rebuild the stored
// commitment it fails with types.ErrInvalidReveal, the attempt is kept as an
// audit record and the voter may retry. Accepted reveals are anchored on the
// ledger.
func (e *Engine) Reveal(ctx context.Context, req *RevealRequest) (*types.Reveal, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: empty request", types.ErrInvalidVoter)
	}
	var (
		record    *types.Reveal
		committed *types.Commitment
	)
	err := e.machine.Guard(ctx, req.ElectionID, func() error {
		el, err := e.stg.Election(req.ElectionID)
		if err != nil {
			return err
		}
		now := e.machine.Now()
		if el.Status != types.StatusClosed {
			return fmt.Errorf("%w: election is %s", types.ErrElectionNotClosed, el.Status)
		}
		if now.Before(el.EndTime) {
			return fmt.Errorf("%w: reveal phase starts at %s", types.ErrElectionNotClosed, el.EndTime)
		}
		voter, err := e.resolveVoter(req.ElectionID, req.VoterID, req.WalletAddress)
		if err != nil {
			return err
		}
		if voter.Revealed {
			return types.ErrAlreadyRevealed
		}
		stored, err := e.finalizedCommitment(req.ElectionID, voter.VoterID)
		if err != nil {
			return err
		}
		if !commitment.Verify(req.Choice, req.Salt, stored.Hash) {
			log.Warnw("reveal does not match commitment",
				"electionID", req.ElectionID.String(),
				"voterID", voter.VoterID)
			if err := e.stg.AddAuditRecord(&types.AuditRecord{
				ElectionID:    req.ElectionID,
				VoterID:       voter.VoterID,
				Kind:          types.AuditInvalidReveal,
				Detail:        fmt.Sprintf("opening does not match commitment %s", stored.Hash.Hex()),
				WalletAddress: voter.WalletAddress,
				Timestamp:     now,
			}); err != nil {
				log.Errorw(err, "could not store audit record")
			}
			return types.ErrInvalidReveal
		}
		if err := e.registry.MarkRevealed(req.ElectionID, voter.VoterID); err != nil {
			return err
		}
		record = &types.Reveal{
			ElectionID: req.ElectionID,
			VoterID:    voter.VoterID,
			Choice:     req.Choice,
			Salt:       req.Salt,
			Timestamp:  now,
			Pending:    true,
		}
		if err := e.stg.SetReveal(record); err != nil {
			if uerr := e.registry.UnmarkRevealed(req.ElectionID, voter.VoterID); uerr != nil {
				log.Errorw(uerr, "could not unmark revealed voter")
			}
			return fmt.Errorf("could not store reveal: %w", err)
		}
		committed = stored
		e.machine.Reserve(req.ElectionID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	ref, err := e.submit(ctx, &ledger.Payload{
		Kind:       types.TxKindReveal,
		ElectionID: record.ElectionID,
		Commitment: committed.Hash,
		Choice:     record.Choice,
		Salt:       record.Salt,
	})
	if err != nil {
		log.Warnw("reveal submission failed, rolling back",
			"electionID", record.ElectionID.String(),
			"voterID", record.VoterID,
			"error", err.Error())
		if rerr := e.settle(ctx, record.ElectionID, func() error {
			return e.rollbackReveal(record)
		}); rerr != nil {
			log.Errorw(rerr, "could not roll back reveal")
		}
		return nil, fmt.Errorf("%w: %w", types.ErrLedgerSubmissionFailed, err)
	}

	if err := e.settle(ctx, record.ElectionID, func() error {
		return e.finalizeReveal(record, ref)
	}); err != nil {
		log.Errorw(err, fmt.Sprintf("could not finalize reveal of voter %s", record.VoterID))
		return nil, fmt.Errorf("could not finalize reveal: %w", err)
	}
	log.Infow("vote revealed",
		"electionID", record.ElectionID.String(),
		"voterID", record.VoterID,
		"tx", ref.Hash.Hex(),
		"block", ref.BlockNumber)
	return record, nil
}

// CheckReveal reports whether choice and salt open the stored commitment of
// the voter, without changing any state. It is meant for audits and is
// allowed once the election is Closed or Tallied.
func (e *Engine) CheckReveal(_ context.Context, req *RevealRequest) (bool, error) {
	if req == nil {
		return false, fmt.Errorf("%w: empty request", types.ErrInvalidVoter)
	}
	el, err := e.stg.Election(req.ElectionID)
	if err != nil {
		return false, err
	}
	if el.Status != types.StatusClosed && el.Status != types.StatusTallied {
		return false, fmt.Errorf("%w: election is %s", types.ErrElectionNotClosed, el.Status)
	}
	voter, err := e.resolveVoter(req.ElectionID, req.VoterID, req.WalletAddress)
	if err != nil {
		return false, err
	}
	stored, err := e.finalizedCommitment(req.ElectionID, voter.VoterID)
	if err != nil {
		return false, err
	}
	return commitment.Verify(req.Choice, req.Salt, stored.Hash), nil
}

// finalizedCommitment returns the commitment of the voter if it has been
// anchored on the ledger.
func (e *Engine) finalizedCommitment(electionID uuid.UUID, voterID string) (*types.Commitment, error) {
	c, err := e.stg.Commitment(electionID, voterID)
	if err != nil {
		return nil, err
	}
	if c.Pending || c.Tx == nil {
		return nil, fmt.Errorf("%w: commitment not anchored yet", types.ErrNotFound)
	}
	return c, nil
}

// finalizeReveal must be called inside the election scope.
func (e *Engine) finalizeReveal(record *types.Reveal, ref *types.TxRef) error {
	record.Tx = ref
	record.Pending = false
	if err := e.stg.SetReveal(record); err != nil {
		return err
	}
	if err := e.stg.SetTxIndex(ref.Hash, &types.TxIndexEntry{
		ElectionID: record.ElectionID,
		VoterID:    record.VoterID,
		Kind:       types.TxKindReveal,
	}); err != nil {
		return err
	}
	return e.machine.AdjustCounters(record.ElectionID, 0, 0, 1)
}

// rollbackReveal must be called inside the election scope.
func (e *Engine) rollbackReveal(record *types.Reveal) error {
	if err := e.stg.DeleteReveal(record.ElectionID, record.VoterID); err != nil {
		return err
	}
	return e.registry.UnmarkRevealed(record.ElectionID, record.VoterID)
}
