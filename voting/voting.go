// Package voting implements the commit and reveal operations. Both follow the
// same pattern: the local state is reserved inside the election scope, the
// artifact is anchored on the ledger outside of it, and the reservation is
// then either finalized with the transaction reference or rolled back, so a
// failed submission can always be retried.
package voting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/vocdoni/commit-reveal-sequencer/election"
	"github.com/vocdoni/commit-reveal-sequencer/ledger"
	"github.com/vocdoni/commit-reveal-sequencer/registry"
	"github.com/vocdoni/commit-reveal-sequencer/storage"
	"github.com/vocdoni/commit-reveal-sequencer/types"
	"go.vocdoni.io/dvote/log"
)

// DefaultLedgerTimeout is the time a ledger submission may take before the
// reservation is rolled back.
const DefaultLedgerTimeout = 30 * time.Second

// CommitRequest holds the parameters of a commitment. The voter is identified
// by VoterID if set, otherwise by the wallet. Salt is optional, a new one is
// generated if it is empty. A non empty salt must be 32 bytes long.
type CommitRequest struct {
	ElectionID    uuid.UUID      `json:"electionId"`
	VoterID       string         `json:"voterId,omitempty"`
	WalletAddress common.Address `json:"walletAddress"`
	Choice        string         `json:"choice"`
	Salt          types.HexBytes `json:"salt,omitempty"`
}

// RevealRequest holds the opening of a commitment. The voter is identified by
// VoterID if set, otherwise by the wallet.
type RevealRequest struct {
	ElectionID    uuid.UUID      `json:"electionId"`
	VoterID       string         `json:"voterId,omitempty"`
	WalletAddress common.Address `json:"walletAddress,omitempty"`
	Choice        string         `json:"choice"`
	Salt          types.HexBytes `json:"salt"`
}

// Engine accepts commitments and reveals.
type Engine struct {
	stg      *storage.Storage
	machine  *election.Machine
	registry *registry.Registry
	ledger   ledger.Ledger
	timeout  time.Duration
}

// New creates the engine. A non positive timeout selects
// DefaultLedgerTimeout.
func New(stg *storage.Storage, machine *election.Machine, reg *registry.Registry,
	l ledger.Ledger, timeout time.Duration,
) *Engine {
	if timeout <= 0 {
		timeout = DefaultLedgerTimeout
	}
	return &Engine{
		stg:      stg,
		machine:  machine,
		registry: reg,
		ledger:   l,
		timeout:  timeout,
	}
}

// resolveVoter returns the voter record addressed by the request. It must be
// called inside the election scope.
func (e *Engine) resolveVoter(electionID uuid.UUID, voterID string, wallet common.Address) (*types.VoterRecord, error) {
	if voterID != "" {
		v, err := e.registry.Voter(electionID, voterID)
		if err != nil {
			return nil, err
		}
		if wallet != (common.Address{}) && v.WalletAddress != wallet {
			return nil, fmt.Errorf("%w: wallet is not bound to the voter", types.ErrNotEligible)
		}
		return v, nil
	}
	if wallet == (common.Address{}) {
		return nil, fmt.Errorf("%w: missing voter id and wallet", types.ErrInvalidVoter)
	}
	return e.registry.VoterByWallet(electionID, wallet)
}

// submit anchors the payload with the engine timeout. The submission does not
// inherit the cancellation of ctx, once the reservation is made it either
// completes or times out.
func (e *Engine) submit(ctx context.Context, payload *ledger.Payload) (*types.TxRef, error) {
	data, err := payload.Marshal()
	if err != nil {
		return nil, fmt.Errorf("could not encode payload: %w", err)
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()
	return e.ledger.Submit(sctx, data)
}

// Commitment returns the stored commitment of the voter.
func (e *Engine) Commitment(electionID uuid.UUID, voterID string) (*types.Commitment, error) {
	return e.stg.Commitment(electionID, voterID)
}

// RecoverPending rolls back every reservation left behind by submissions that
// never finished, such as after a crash. It must only be called before the
// engine starts serving requests.
func (e *Engine) RecoverPending(ctx context.Context) (int, error) {
	elections, err := e.stg.ListElections()
	if err != nil {
		return 0, err
	}
	var recovered int
	for _, el := range elections {
		err := e.machine.Guard(ctx, el.ID, func() error {
			commitments, err := e.stg.Commitments(el.ID)
			if err != nil {
				return err
			}
			for _, c := range commitments {
				if !c.Pending {
					continue
				}
				if err := e.rollbackCommit(c); err != nil {
					return err
				}
				recovered++
			}
			reveals, err := e.stg.Reveals(el.ID)
			if err != nil {
				return err
			}
			for _, r := range reveals {
				if !r.Pending {
					continue
				}
				if err := e.rollbackReveal(r); err != nil {
					return err
				}
				recovered++
			}
			return nil
		})
		if err != nil {
			return recovered, fmt.Errorf("could not recover election %s: %w", el.ID, err)
		}
	}
	if recovered > 0 {
		log.Warnw("rolled back unfinished submissions", "count", recovered)
	}
	return recovered, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, types.ErrNotFound)
}
