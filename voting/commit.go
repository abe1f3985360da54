package voting

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/vocdoni/commit-reveal-sequencer/commitment"
	"github.com/vocdoni/commit-reveal-sequencer/ledger"
	"github.com/vocdoni/commit-reveal-sequencer/types"
	"go.vocdoni.io/dvote/log"
)

// Commit accepts the commitment of a voter and anchors it on the ledger. The
// election must be Open and the current time inside its commit window, the
// voter must be eligible, bound to the wallet and must not have committed
// before. The returned receipt is the only place where the salt is handed
// back; it is neither stored nor logged.
func (e *Engine) Commit(ctx context.Context, req *CommitRequest) (*types.CommitmentReceipt, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: empty request", types.ErrInvalidVoter)
	}
	if strings.TrimSpace(req.Choice) == "" {
		return nil, fmt.Errorf("%w: empty choice", types.ErrUnknownCandidate)
	}
	salt := req.Salt
	switch {
	case len(salt) == 0:
		salt = commitment.NewSalt()
	case !commitment.ValidSalt(salt):
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", types.ErrInvalidSalt, commitment.SaltSize, len(salt))
	}
	// the choice is hashed as sent, Reveal checks the opening byte for byte
	hash := commitment.Build(req.Choice, salt)

	var record *types.Commitment
	err := e.machine.Guard(ctx, req.ElectionID, func() error {
		el, err := e.stg.Election(req.ElectionID)
		if err != nil {
			return err
		}
		now := e.machine.Now()
		if el.Status != types.StatusOpen {
			return fmt.Errorf("%w: election is %s", types.ErrElectionNotOpen, el.Status)
		}
		if !el.InCommitWindow(now) {
			return fmt.Errorf("%w: outside of the voting window", types.ErrElectionNotOpen)
		}
		voter, err := e.resolveVoter(req.ElectionID, req.VoterID, req.WalletAddress)
		if err != nil {
			if isNotFound(err) {
				return fmt.Errorf("%w: voter is not registered", types.ErrNotEligible)
			}
			return err
		}
		if !voter.Eligible || !e.registry.IsEligible(ctx, req.ElectionID, voter.WalletAddress) {
			return types.ErrNotEligible
		}
		if err := e.registry.MarkCommitted(req.ElectionID, voter.VoterID); err != nil {
			return err
		}
		record = &types.Commitment{
			ElectionID:    req.ElectionID,
			VoterID:       voter.VoterID,
			WalletAddress: voter.WalletAddress,
			Hash:          hash,
			Timestamp:     now,
			Submitter:     e.ledger.Address(),
			Pending:       true,
		}
		if err := e.stg.SetCommitment(record); err != nil {
			if uerr := e.registry.UnmarkCommitted(req.ElectionID, voter.VoterID); uerr != nil {
				log.Errorw(uerr, "could not unmark committed voter")
			}
			return fmt.Errorf("could not store commitment: %w", err)
		}
		e.machine.Reserve(req.ElectionID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	ref, err := e.submit(ctx, &ledger.Payload{
		Kind:       types.TxKindCommit,
		ElectionID: record.ElectionID,
		Commitment: record.Hash,
	})
	if err != nil {
		log.Warnw("commitment submission failed, rolling back",
			"electionID", record.ElectionID.String(),
			"voterID", record.VoterID,
			"error", err.Error())
		if rerr := e.settle(ctx, record.ElectionID, func() error {
			return e.rollbackCommit(record)
		}); rerr != nil {
			log.Errorw(rerr, "could not roll back commitment")
		}
		return nil, fmt.Errorf("%w: %w", types.ErrLedgerSubmissionFailed, err)
	}

	if err := e.settle(ctx, record.ElectionID, func() error {
		return e.finalizeCommit(record, ref)
	}); err != nil {
		log.Errorw(err, fmt.Sprintf("could not finalize commitment of voter %s", record.VoterID))
		return nil, fmt.Errorf("could not finalize commitment: %w", err)
	}
	log.Infow("vote committed",
		"electionID", record.ElectionID.String(),
		"voterID", record.VoterID,
		"commitment", record.Hash.Hex(),
		"tx", ref.Hash.Hex(),
		"block", ref.BlockNumber)

	return &types.CommitmentReceipt{
		ElectionID:      record.ElectionID,
		VoterID:         record.VoterID,
		WalletAddress:   record.WalletAddress,
		Commitment:      record.Hash,
		Salt:            salt,
		TransactionHash: ref.Hash,
		BlockNumber:     ref.BlockNumber,
		Timestamp:       record.Timestamp,
	}, nil
}

// finalizeCommit must be called inside the election scope.
func (e *Engine) finalizeCommit(record *types.Commitment, ref *types.TxRef) error {
	record.Tx = ref
	record.Pending = false
	if err := e.stg.SetCommitment(record); err != nil {
		return err
	}
	if err := e.stg.SetTxIndex(ref.Hash, &types.TxIndexEntry{
		ElectionID: record.ElectionID,
		VoterID:    record.VoterID,
		Kind:       types.TxKindCommit,
	}); err != nil {
		return err
	}
	if err := e.stg.AddCommitmentLeaf(record.ElectionID, record.WalletAddress, record.Hash); err != nil {
		return err
	}
	return e.machine.AdjustCounters(record.ElectionID, 0, 1, 0)
}

// rollbackCommit must be called inside the election scope.
func (e *Engine) rollbackCommit(record *types.Commitment) error {
	if err := e.stg.DeleteCommitment(record.ElectionID, record.VoterID); err != nil {
		return err
	}
	return e.registry.UnmarkCommitted(record.ElectionID, record.VoterID)
}

// settle runs fn inside the election scope and releases the in flight
// reservation. The scope is acquired regardless of the cancellation of ctx.
func (e *Engine) settle(ctx context.Context, electionID uuid.UUID, fn func() error) error {
	return e.machine.Guard(context.WithoutCancel(ctx), electionID, func() error {
		defer e.machine.Settle(electionID)
		return fn()
	})
}
