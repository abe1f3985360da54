package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

var encMode = func() cbor.EncMode {
	encOpts := cbor.CoreDetEncOptions()
	encOpts.Time = cbor.TimeRFC3339Nano
	em, err := encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("invalid cbor encoding options: %v", err))
	}
	return em
}()

// Artifact encoding/decoding
func encodeArtifact(a any) ([]byte, error) {
	data, err := encMode.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	return data, nil
}

func decodeArtifact(data []byte, out any) error {
	if err := cbor.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode artifact: %w", err)
	}
	return nil
}

// electionKey returns the election id followed by the suffix.
func electionKey(electionID uuid.UUID, suffix []byte) []byte {
	key := make([]byte, 0, len(electionID)+len(suffix))
	key = append(key, electionID[:]...)
	return append(key, suffix...)
}

// timeKey returns a big endian representation of t, so keys sort by time.
func timeKey(t time.Time) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(t.UnixNano()))
	return b
}

// getArtifact decodes the artifact stored under prefix+key into out. Returns
// ErrNotFound if the key does not exist.
func (s *Storage) getArtifact(prefix, key []byte, out any) error {
	data, err := prefixeddb.NewPrefixedReader(s.db, prefix).Get(key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	return decodeArtifact(data, out)
}

// setArtifact encodes and stores the artifact under prefix+key.
func (s *Storage) setArtifact(prefix, key []byte, artifact any) error {
	wTx := s.db.WriteTx()
	if err := setArtifactTx(wTx, prefix, key, artifact); err != nil {
		wTx.Discard()
		return err
	}
	return wTx.Commit()
}

// setArtifactTx stores the artifact inside an already open write transaction,
// so several artifacts can be committed atomically.
func setArtifactTx(wTx db.WriteTx, prefix, key []byte, artifact any) error {
	data, err := encodeArtifact(artifact)
	if err != nil {
		return err
	}
	return prefixeddb.NewPrefixedWriteTx(wTx, prefix).Set(key, data)
}

// deleteArtifact removes the artifact stored under prefix+key.
func (s *Storage) deleteArtifact(prefix, key []byte) error {
	wTx := s.db.WriteTx()
	if err := prefixeddb.NewPrefixedWriteTx(wTx, prefix).Delete(key); err != nil {
		wTx.Discard()
		return err
	}
	return wTx.Commit()
}

// hasArtifact reports whether prefix+key exists.
func (s *Storage) hasArtifact(prefix, key []byte) (bool, error) {
	if _, err := prefixeddb.NewPrefixedReader(s.db, prefix).Get(key); err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// iterateArtifacts calls fn with the raw value of every artifact under
// prefix+sub. The value is only valid during the callback.
func (s *Storage) iterateArtifacts(prefix, sub []byte, fn func(value []byte) bool) error {
	return prefixeddb.NewPrefixedReader(s.db, prefix).Iterate(sub, func(_, v []byte) bool {
		return fn(v)
	})
}

// listArtifacts decodes every artifact under prefix+sub.
func listArtifacts[T any](s *Storage, prefix, sub []byte) ([]*T, error) {
	var (
		list      []*T
		decodeErr error
	)
	if err := s.iterateArtifacts(prefix, sub, func(v []byte) bool {
		item := new(T)
		if err := decodeArtifact(v, item); err != nil {
			decodeErr = err
			return false
		}
		list = append(list, item)
		return true
	}); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return list, nil
}
