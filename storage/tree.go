package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/vocdoni/arbo"
	"github.com/vocdoni/commit-reveal-sequencer/types"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

const (
	// CommitmentTreeMaxLevels is the number of levels of the commitment
	// trees. Leaves are keyed by wallet address, so 160 levels fit a 20 byte
	// key.
	CommitmentTreeMaxLevels = 160
)

// CommitmentTreeHashFunction is the hash function used by the commitment
// trees.
var CommitmentTreeHashFunction = arbo.HashFunctionSha256

// commitmentTree returns the (cached) commitment merkle tree of the election.
func (s *Storage) commitmentTree(electionID uuid.UUID) (*arbo.Tree, error) {
	s.treesLock.Lock()
	defer s.treesLock.Unlock()
	if tree, ok := s.trees[electionID]; ok {
		return tree, nil
	}
	prefix := append(append([]byte{}, treePrefix...), electionID[:]...)
	tree, err := arbo.NewTree(arbo.Config{
		Database:     prefixeddb.NewPrefixedDatabase(s.db, prefix),
		MaxLevels:    CommitmentTreeMaxLevels,
		HashFunction: CommitmentTreeHashFunction,
	})
	if err != nil {
		return nil, fmt.Errorf("could not open commitment tree: %w", err)
	}
	s.trees[electionID] = tree
	return tree, nil
}

// AddCommitmentLeaf adds the commitment hash of wallet to the election
// commitment tree.
func (s *Storage) AddCommitmentLeaf(electionID uuid.UUID, wallet common.Address, hash common.Hash) error {
	tree, err := s.commitmentTree(electionID)
	if err != nil {
		return err
	}
	if err := tree.Add(wallet.Bytes(), hash.Bytes()); err != nil {
		return fmt.Errorf("could not add commitment leaf: %w", err)
	}
	return nil
}

// CommitmentRoot returns the current root of the election commitment tree.
func (s *Storage) CommitmentRoot(electionID uuid.UUID) (types.HexBytes, error) {
	tree, err := s.commitmentTree(electionID)
	if err != nil {
		return nil, err
	}
	root, err := tree.Root()
	if err != nil {
		return nil, fmt.Errorf("could not get commitment root: %w", err)
	}
	return root, nil
}

// CommitmentProof generates the inclusion proof of the wallet commitment in the
// election commitment tree. It returns ErrNotFound if the wallet has no leaf.
func (s *Storage) CommitmentProof(electionID uuid.UUID, wallet common.Address) (*types.InclusionProof, error) {
	tree, err := s.commitmentTree(electionID)
	if err != nil {
		return nil, err
	}
	root, err := tree.Root()
	if err != nil {
		return nil, fmt.Errorf("could not get commitment root: %w", err)
	}
	leafKey, leafValue, siblings, exists, err := tree.GenProof(wallet.Bytes())
	if err != nil {
		return nil, fmt.Errorf("could not generate proof: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}
	return &types.InclusionProof{
		Root:     root,
		Key:      leafKey,
		Value:    leafValue,
		Siblings: siblings,
	}, nil
}

// VerifyInclusion checks the inclusion proof against its root.
func VerifyInclusion(proof *types.InclusionProof) (bool, error) {
	if proof == nil {
		return false, fmt.Errorf("nil proof")
	}
	return arbo.CheckProof(CommitmentTreeHashFunction, proof.Key, proof.Value, proof.Root, proof.Siblings)
}
