package commitment

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	qt "github.com/frankban/quicktest"
)

func TestBuildDeterministic(t *testing.T) {
	c := qt.New(t)

	salt := NewSalt()
	c.Assert(len(salt), qt.Equals, SaltSize)

	h1 := Build("Alice", salt)
	h2 := Build("Alice", salt)
	c.Assert(h1, qt.Equals, h2)

	// keccak256(encodePacked(choice, salt))
	packed := append([]byte("Alice"), salt...)
	c.Assert(h1, qt.Equals, crypto.Keccak256Hash(packed))
}

func TestBuildInputsChangeHash(t *testing.T) {
	c := qt.New(t)

	salt := NewSalt()
	other := NewSalt()
	c.Assert(bytes.Equal(salt, other), qt.IsFalse)

	c.Assert(Build("Alice", salt), qt.Not(qt.Equals), Build("Alice", other))
	c.Assert(Build("Alice", salt), qt.Not(qt.Equals), Build("Bob", salt))

	// flipping a single bit of the salt changes the hash
	flipped := bytes.Clone(salt)
	flipped[0] ^= 0x01
	c.Assert(Build("Alice", salt), qt.Not(qt.Equals), Build("Alice", flipped))
}

func TestVerify(t *testing.T) {
	c := qt.New(t)

	salt := NewSalt()
	hash := Build("Bob", salt)

	c.Assert(Verify("Bob", salt, hash), qt.IsTrue)
	c.Assert(Verify("Alice", salt, hash), qt.IsFalse)
	c.Assert(Verify("Bob", NewSalt(), hash), qt.IsFalse)
	// short salts never verify, even if the hash would match
	short := salt[:16]
	c.Assert(Verify("Bob", short, Build("Bob", short)), qt.IsFalse)
	c.Assert(ValidSalt(short), qt.IsFalse)
}
