// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

// Package batchstore is a disposable, host-local index of batches a
// dynhb-node has already received from the engine, kept purely so the host
// CLI's replay/inspect commands have something to read back without
// re-running consensus. This is not engine state: it persists already
// committed, immutable output the host has already seen, the same way a
// block explorer persists blocks without being part of consensus.
package batchstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/hbft-labs/dynhb/common"
)

// Store wraps a pebble database keyed by (era, hb_epoch).
type Store struct {
	db *pebble.DB
}

// Open opens (creating if necessary) a batchstore at dir.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("batchstore: open %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Record is the JSON-serializable view of one committed batch the host
// keeps around for replay; it intentionally does not round-trip the
// engine's internal types, only what an external reader needs.
type Record struct {
	Era           uint64   `json:"era"`
	HBEpoch       uint64   `json:"hb_epoch"`
	Senders       []string `json:"senders"`
	ChangeKind    string   `json:"change_kind"`
	NumValidators int      `json:"num_validators"`
}

func key(era, hbEpoch uint64) []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[:8], era)
	binary.BigEndian.PutUint64(b[8:], hbEpoch)
	return b
}

// Put stores rec, keyed by (era, hb_epoch).
func (s *Store) Put(era, hbEpoch uint64, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("batchstore: marshal record: %w", err)
	}
	if err := s.db.Set(key(era, hbEpoch), data, pebble.Sync); err != nil {
		return fmt.Errorf("batchstore: put: %w", err)
	}
	return nil
}

// Get retrieves the record stored for (era, hbEpoch), if any.
func (s *Store) Get(era, hbEpoch uint64) (Record, bool, error) {
	data, closer, err := s.db.Get(key(era, hbEpoch))
	if err == pebble.ErrNotFound {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("batchstore: get: %w", err)
	}
	defer closer.Close()
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false, fmt.Errorf("batchstore: unmarshal record: %w", err)
	}
	return rec, true, nil
}

// Replay iterates every stored record in (era, hb_epoch) order, calling fn
// for each until it returns false or the iterator is exhausted.
func (s *Store) Replay(fn func(era, hbEpoch uint64, rec Record) bool) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return fmt.Errorf("batchstore: new iterator: %w", err)
	}
	defer iter.Close()
	for valid := iter.First(); valid; valid = iter.Next() {
		k := iter.Key()
		if len(k) != 16 {
			continue
		}
		era := binary.BigEndian.Uint64(k[:8])
		hbEpoch := binary.BigEndian.Uint64(k[8:])
		var rec Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return fmt.Errorf("batchstore: unmarshal record: %w", err)
		}
		if !fn(era, hbEpoch, rec) {
			break
		}
	}
	return iter.Error()
}

// SendersToHex renders a batch's sender ids as hex strings for Record.
func SendersToHex(ids []common.NodeID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Hex()
	}
	return out
}
