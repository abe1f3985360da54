// Package commitment builds and verifies the commit-reveal commitments. A
// commitment is keccak256(choice || salt), where the salt is a 32 byte random
// value held by the voter. Since the salt has a fixed size, the concatenation
// is unambiguous for any choice string.
package commitment

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vocdoni/commit-reveal-sequencer/types"
	"github.com/vocdoni/commit-reveal-sequencer/util"
)

// SaltSize is the size in bytes of a commitment salt (256 bits).
const SaltSize = 32

// NewSalt returns a fresh salt drawn from a cryptographically secure source.
func NewSalt() types.HexBytes {
	return util.RandomBytes(SaltSize)
}

// ValidSalt reports whether salt has the expected size.
func ValidSalt(salt []byte) bool {
	return len(salt) == SaltSize
}

// Build returns the commitment hash of choice and salt. It is pure: the same
// inputs always produce the same hash.
func Build(choice string, salt []byte) common.Hash {
	return crypto.Keccak256Hash([]byte(choice), salt)
}

// Verify reports whether choice and salt open the commitment hash.
func Verify(choice string, salt []byte, hash common.Hash) bool {
	if !ValidSalt(salt) {
		return false
	}
	return Build(choice, salt) == hash
}
