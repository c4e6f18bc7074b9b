// Package storage provides the versioned, Merkle-verifiable key-value
// store underneath the state machine. The committed store is shared
// between the block pipeline (writer) and the query surface (readers);
// block processing happens in overlays and reaches the store only through
// Commit, exactly once per block.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tendermint/tendermint/crypto/merkle"
	dbm "github.com/tendermint/tm-db"

	"github.com/ordsys/sequencer/codec"
	"github.com/ordsys/sequencer/types"
)

// metaPrefix keys carry store bookkeeping (committed version, historic
// roots). They are excluded from the app hash to avoid self-reference.
const metaPrefix = "meta/"

// Store wraps the physical database with versioning and root hashing.
type Store struct {
	mtx sync.RWMutex
	db  dbm.DB

	version uint64
	root    []byte
}

// NewStore opens the store and loads the committed version, if any.
func NewStore(db dbm.DB) (*Store, error) {
	s := &Store{db: db}
	raw, err := db.Get([]byte(codec.MetaVersionKey))
	if err != nil {
		return nil, fmt.Errorf("loading store version: %w", err)
	}
	if raw == nil {
		return s, nil
	}
	version, err := codec.DecodeCounter(raw)
	if err != nil {
		// Corrupt persisted state is the one fatal decode failure.
		return nil, fmt.Errorf("corrupt store version: %w", err)
	}
	s.version = version
	root, err := db.Get(codec.MetaRootKey(version))
	if err != nil {
		return nil, fmt.Errorf("loading root hash: %w", err)
	}
	s.root = root
	return s, nil
}

// Version returns the last committed height.
func (s *Store) Version() uint64 {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.version
}

// RootHash returns the app hash of the last committed height.
func (s *Store) RootHash() []byte {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return append([]byte(nil), s.root...)
}

// RootAt returns the app hash recorded for an earlier height.
func (s *Store) RootAt(height uint64) ([]byte, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	raw, err := s.db.Get(codec.MetaRootKey(height))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: no root for height %d", types.ErrPastHeight, height)
	}
	return raw, nil
}

// Get reads a committed value. nil means absent.
func (s *Store) Get(key []byte) ([]byte, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.db.Get(key)
}

// Range iterates committed keys under prefix in ascending order.
func (s *Store) Range(prefix []byte) (Iterator, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	it, err := s.db.Iterator(prefix, codec.PrefixEnd(prefix))
	if err != nil {
		return nil, err
	}
	return &dbIterator{it: it}, nil
}

// NewOverlay opens a block overlay over the committed state.
func (s *Store) NewOverlay() *Overlay {
	return NewOverlay(s)
}

// Commit folds the overlay into the database as the given height and
// returns the new root hash. The overlay must have been created by
// NewOverlay on this store.
func (s *Store) Commit(o *Overlay, height uint64) ([]byte, error) {
	if o.parent != ReadState(s) {
		return nil, errors.New("commit: overlay does not belong to this store")
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()
	for _, p := range o.pairs() {
		if p.entry.deleted {
			if err := batch.Delete([]byte(p.key)); err != nil {
				return nil, err
			}
		} else {
			if err := batch.Set([]byte(p.key), p.entry.value); err != nil {
				return nil, err
			}
		}
	}
	if err := batch.Write(); err != nil {
		return nil, fmt.Errorf("writing commit batch: %w", err)
	}

	root, err := s.computeRoot()
	if err != nil {
		return nil, err
	}
	if err := s.db.Set([]byte(codec.MetaVersionKey), codec.EncodeCounter(height)); err != nil {
		return nil, err
	}
	if err := s.db.Set(codec.MetaRootKey(height), root); err != nil {
		return nil, err
	}
	s.version = height
	s.root = root
	return append([]byte(nil), root...), nil
}

// leafBytes is the canonical leaf encoding hashed into the root.
func leafBytes(key, value []byte) []byte {
	w := codec.NewWriter()
	w.LenBytes(key)
	w.LenBytes(value)
	return w.Bytes()
}

// computeRoot hashes every non-meta pair in key order. Iteration order is
// the database's ascending key order, so every validator hashes the same
// leaf sequence. Caller holds the write lock.
func (s *Store) computeRoot() ([]byte, error) {
	leaves, _, err := s.collectLeaves(nil)
	if err != nil {
		return nil, err
	}
	return merkle.HashFromByteSlices(leaves), nil
}

// collectLeaves walks the full non-meta key space. When target is
// non-nil, the returned index is the leaf position of that key, or -1.
func (s *Store) collectLeaves(target []byte) ([][]byte, int, error) {
	it, err := s.db.Iterator(nil, nil)
	if err != nil {
		return nil, -1, err
	}
	defer it.Close()
	var leaves [][]byte
	idx := -1
	for ; it.Valid(); it.Next() {
		if strings.HasPrefix(string(it.Key()), metaPrefix) {
			continue
		}
		if target != nil && bytes.Equal(it.Key(), target) {
			idx = len(leaves)
		}
		leaves = append(leaves, leafBytes(it.Key(), it.Value()))
	}
	if err := it.Error(); err != nil {
		return nil, -1, err
	}
	return leaves, idx, nil
}

// ValueProof is a Merkle inclusion proof for one committed key.
type ValueProof struct {
	Proof *merkle.Proof
	Leaf  []byte
}

// ProveKey builds an inclusion proof for key against the current root.
// Fails when the key is absent.
func (s *Store) ProveKey(key []byte) (*ValueProof, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	leaves, idx, err := s.collectLeaves(key)
	if err != nil {
		return nil, err
	}
	if idx < 0 {
		return nil, fmt.Errorf("cannot prove absent key %q", key)
	}
	_, proofs := merkle.ProofsFromByteSlices(leaves)
	return &ValueProof{Proof: proofs[idx], Leaf: leaves[idx]}, nil
}
