// Package registry keeps the eligibility of the voters. Each election maps
// voter identities to a wallet address (one wallet per voter and election) and
// tracks whether the voter has committed and revealed a vote.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/vocdoni/commit-reveal-sequencer/election"
	"github.com/vocdoni/commit-reveal-sequencer/storage"
	"github.com/vocdoni/commit-reveal-sequencer/types"
	"go.vocdoni.io/dvote/log"
)

// Registry is the eligibility registry.
type Registry struct {
	stg     *storage.Storage
	machine *election.Machine
}

// New returns a registry over the storage. The machine provides the election
// scopes used to serialize registrations.
func New(stg *storage.Storage, machine *election.Machine) *Registry {
	return &Registry{stg: stg, machine: machine}
}

// ParseWallet parses a hex encoded wallet address.
func ParseWallet(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: invalid wallet address %q", types.ErrInvalidVoter, s)
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: zero wallet address", types.ErrInvalidVoter)
	}
	return addr, nil
}

// Register binds voterID to wallet in the election and marks it eligible. It
// is an idempotent upsert, legal while the election is Created or Open. It
// fails with types.ErrDuplicateWallet if the wallet is bound to another voter
// of the election. A voter that already committed cannot change its wallet.
// Acquires the election scope.
func (r *Registry) Register(ctx context.Context, electionID uuid.UUID, voterID string, wallet common.Address) (*types.VoterRecord, error) {
	voterID = strings.TrimSpace(voterID)
	if voterID == "" {
		return nil, fmt.Errorf("%w: empty voter id", types.ErrInvalidVoter)
	}
	if wallet == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero wallet address", types.ErrInvalidVoter)
	}
	var record *types.VoterRecord
	err := r.machine.Guard(ctx, electionID, func() error {
		var err error
		record, err = r.register(electionID, voterID, wallet)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// register must be called inside the election scope.
func (r *Registry) register(electionID uuid.UUID, voterID string, wallet common.Address) (*types.VoterRecord, error) {
	e, err := r.stg.Election(electionID)
	if err != nil {
		return nil, err
	}
	if e.Status != types.StatusCreated && e.Status != types.StatusOpen {
		return nil, fmt.Errorf("%w: election is %s", types.ErrRegistrationClosed, e.Status)
	}

	bound, err := r.stg.VoterIDByWallet(electionID, wallet)
	switch {
	case err == nil && bound != voterID:
		return nil, fmt.Errorf("%w: %s", types.ErrDuplicateWallet, wallet.Hex())
	case err != nil && !errors.Is(err, types.ErrNotFound):
		return nil, err
	}

	current, err := r.stg.Voter(electionID, voterID)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return nil, err
	}
	if current == nil {
		record := &types.VoterRecord{
			ElectionID:    electionID,
			VoterID:       voterID,
			WalletAddress: wallet,
			Eligible:      true,
		}
		if err := r.stg.SetVoter(record, nil); err != nil {
			return nil, fmt.Errorf("could not store voter: %w", err)
		}
		if err := r.machine.AdjustCounters(electionID, 1, 0, 0); err != nil {
			return nil, fmt.Errorf("could not update election counters: %w", err)
		}
		log.Debugw("voter registered", "electionID", electionID.String(), "voterID", voterID)
		return record, nil
	}

	if current.WalletAddress == wallet && current.Eligible {
		return current, nil
	}
	if current.WalletAddress != wallet && current.Committed {
		return nil, fmt.Errorf("%w: wallet of a voter that already committed cannot change", types.ErrAlreadyCommitted)
	}
	previous := current.WalletAddress
	current.WalletAddress = wallet
	current.Eligible = true
	if err := r.stg.SetVoter(current, &previous); err != nil {
		return nil, fmt.Errorf("could not store voter: %w", err)
	}
	log.Debugw("voter updated", "electionID", electionID.String(), "voterID", voterID)
	return current, nil
}

// BulkRegister registers every entry and reports the outcome of each one.
// Valid entries are stored even if others fail, the batch is never atomic. An
// error is only returned if the election cannot accept registrations at all.
// Acquires the election scope once per entry.
func (r *Registry) BulkRegister(ctx context.Context, electionID uuid.UUID, entries []types.VoterEntry) ([]types.RegistrationResult, error) {
	e, err := r.stg.Election(electionID)
	if err != nil {
		return nil, err
	}
	if e.Status != types.StatusCreated && e.Status != types.StatusOpen {
		return nil, fmt.Errorf("%w: election is %s", types.ErrRegistrationClosed, e.Status)
	}
	results := make([]types.RegistrationResult, 0, len(entries))
	var failed int
	for _, entry := range entries {
		res := types.RegistrationResult{
			VoterID:       strings.TrimSpace(entry.VoterID),
			WalletAddress: strings.TrimSpace(entry.WalletAddress),
		}
		wallet, err := ParseWallet(entry.WalletAddress)
		if err == nil {
			_, err = r.Register(ctx, electionID, entry.VoterID, wallet)
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return results, ctxErr
			}
			res.Error = err.Error()
			failed++
		} else {
			res.Success = true
		}
		results = append(results, res)
	}
	log.Infow("bulk registration",
		"electionID", electionID.String(),
		"entries", len(entries),
		"failed", failed)
	return results, nil
}

// IsEligible reports whether the wallet belongs to an eligible voter of the
// election. Unknown wallets are not eligible.
func (r *Registry) IsEligible(_ context.Context, electionID uuid.UUID, wallet common.Address) bool {
	v, err := r.VoterByWallet(electionID, wallet)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			log.Warnw("could not check eligibility",
				"electionID", electionID.String(),
				"wallet", wallet.Hex(),
				"error", err.Error())
		}
		return false
	}
	return v.Eligible
}

// Voter returns the voter record.
func (r *Registry) Voter(electionID uuid.UUID, voterID string) (*types.VoterRecord, error) {
	return r.stg.Voter(electionID, voterID)
}

// VoterByWallet returns the voter record bound to the wallet.
func (r *Registry) VoterByWallet(electionID uuid.UUID, wallet common.Address) (*types.VoterRecord, error) {
	voterID, err := r.stg.VoterIDByWallet(electionID, wallet)
	if err != nil {
		return nil, err
	}
	return r.stg.Voter(electionID, voterID)
}

// Voters returns every voter of the election.
func (r *Registry) Voters(electionID uuid.UUID) ([]*types.VoterRecord, error) {
	if _, err := r.stg.Election(electionID); err != nil {
		return nil, err
	}
	return r.stg.Voters(electionID)
}

// MarkCommitted flags the voter as committed. It is the one voter one vote
// enforcement point and fails with types.ErrAlreadyCommitted on repeat. It must
// be called inside the election scope.
func (r *Registry) MarkCommitted(electionID uuid.UUID, voterID string) error {
	return r.update(electionID, voterID, func(v *types.VoterRecord) error {
		if !v.Eligible {
			return types.ErrNotEligible
		}
		if v.Committed {
			return types.ErrAlreadyCommitted
		}
		v.Committed = true
		return nil
	})
}

// MarkRevealed flags the voter as revealed. It fails with
// types.ErrAlreadyRevealed on repeat. It must be called inside the election
// scope.
func (r *Registry) MarkRevealed(electionID uuid.UUID, voterID string) error {
	return r.update(electionID, voterID, func(v *types.VoterRecord) error {
		if !v.Committed {
			return fmt.Errorf("%w: voter has no commitment", types.ErrNotFound)
		}
		if v.Revealed {
			return types.ErrAlreadyRevealed
		}
		v.Revealed = true
		return nil
	})
}

// UnmarkCommitted clears the committed flag. It is only used to roll back a
// commitment whose ledger submission failed, inside the election scope.
func (r *Registry) UnmarkCommitted(electionID uuid.UUID, voterID string) error {
	return r.update(electionID, voterID, func(v *types.VoterRecord) error {
		if v.Revealed {
			return fmt.Errorf("cannot unmark committed: voter already revealed")
		}
		v.Committed = false
		return nil
	})
}

// UnmarkRevealed clears the revealed flag. It is only used to roll back a
// reveal whose ledger submission failed, inside the election scope.
func (r *Registry) UnmarkRevealed(electionID uuid.UUID, voterID string) error {
	return r.update(electionID, voterID, func(v *types.VoterRecord) error {
		v.Revealed = false
		return nil
	})
}

func (r *Registry) update(electionID uuid.UUID, voterID string, fn func(*types.VoterRecord) error) error {
	v, err := r.stg.Voter(electionID, voterID)
	if err != nil {
		return err
	}
	if err := fn(v); err != nil {
		return err
	}
	return r.stg.SetVoter(v, nil)
}
