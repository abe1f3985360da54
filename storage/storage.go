// storage package contains every record of the election sequencer. It is a
// prefixed key-value store over a dvote database where each artifact kind
// lives under its own prefix:
//   - 'e/' for elections
//   - 'v/' for voter records (election + voter id)
//   - 'w/' for the wallet index (election + wallet -> voter id)
//   - 'c/' for commitments (election + voter id)
//   - 'r/' for reveals (election + voter id)
//   - 't/' for tallies (write once)
//   - 'x/' for the ledger transaction index
//   - 'a/' for audit records (append only)
//   - 'ct/' for the per election commitment merkle trees
//
// Artifacts are encoded with deterministic CBOR. Storage does not enforce the
// election rules, callers are expected to serialize writes per election.
package storage

import (
	"sync"

	"github.com/google/uuid"
	"github.com/vocdoni/arbo"
	"github.com/vocdoni/commit-reveal-sequencer/types"
	"go.vocdoni.io/dvote/log"
	"go.vocdoni.io/dvote/db"
)

var (
	// Prefixes for the keys in the database.
	electionPrefix   = []byte("e/")
	voterPrefix      = []byte("v/")
	walletPrefix     = []byte("w/")
	commitmentPrefix = []byte("c/")
	revealPrefix     = []byte("r/")
	tallyPrefix      = []byte("t/")
	txIndexPrefix    = []byte("x/")
	auditPrefix      = []byte("a/")
	treePrefix       = []byte("ct/")
)

// ErrNotFound is returned when the requested artifact does not exist.
var ErrNotFound = types.ErrNotFound

// Storage wraps the database and the loaded commitment trees.
type Storage struct {
	db db.Database

	treesLock sync.Mutex
	trees     map[uuid.UUID]*arbo.Tree
}

// New creates a new Storage instance.
func New(db db.Database) *Storage {
	return &Storage{
		db:    db,
		trees: make(map[uuid.UUID]*arbo.Tree),
	}
}

// Close closes the storage.
func (s *Storage) Close() {
	if err := s.db.Close(); err != nil {
		log.Warnw("failed to close storage", "error", err.Error())
	}
}
