package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/vocdoni/commit-reveal-sequencer/types"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// Voter returns the voter record of voterID in the election.
func (s *Storage) Voter(electionID uuid.UUID, voterID string) (*types.VoterRecord, error) {
	v := &types.VoterRecord{}
	if err := s.getArtifact(voterPrefix, electionKey(electionID, []byte(voterID)), v); err != nil {
		return nil, err
	}
	return v, nil
}

// VoterIDByWallet returns the voter id bound to the wallet in the election.
func (s *Storage) VoterIDByWallet(electionID uuid.UUID, wallet common.Address) (string, error) {
	var voterID string
	if err := s.getArtifact(walletPrefix, electionKey(electionID, wallet.Bytes()), &voterID); err != nil {
		return "", err
	}
	return voterID, nil
}

// SetVoter stores the voter record and its wallet index entry atomically. If
// previousWallet is not nil and differs from the current wallet, its index
// entry is removed.
func (s *Storage) SetVoter(v *types.VoterRecord, previousWallet *common.Address) error {
	if v == nil {
		return fmt.Errorf("nil voter record")
	}
	wTx := s.db.WriteTx()
	if err := setArtifactTx(wTx, voterPrefix, electionKey(v.ElectionID, []byte(v.VoterID)), v); err != nil {
		wTx.Discard()
		return err
	}
	if err := setArtifactTx(wTx, walletPrefix, electionKey(v.ElectionID, v.WalletAddress.Bytes()), v.VoterID); err != nil {
		wTx.Discard()
		return err
	}
	if previousWallet != nil && *previousWallet != v.WalletAddress {
		oldKey := electionKey(v.ElectionID, previousWallet.Bytes())
		if err := prefixeddb.NewPrefixedWriteTx(wTx, walletPrefix).Delete(oldKey); err != nil {
			wTx.Discard()
			return err
		}
	}
	return wTx.Commit()
}

// Voters returns every voter record of the election.
func (s *Storage) Voters(electionID uuid.UUID) ([]*types.VoterRecord, error) {
	return listArtifacts[types.VoterRecord](s, voterPrefix, electionID[:])
}
