// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package batchstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hbft-labs/dynhb/common"
)

func TestPutGetRoundTrip(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "batches"))
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.Get(0, 0)
	require.NoError(t, err)
	require.False(t, ok)

	rec := Record{
		Era:           1,
		HBEpoch:       2,
		Senders:       []string{"0x0a", "0x0b"},
		ChangeKind:    "none",
		NumValidators: 4,
	}
	require.NoError(t, store.Put(1, 2, rec))

	got, ok, err := store.Get(1, 2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rec, got)
}

func TestReplayOrdersByEraThenEpoch(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "batches"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put(0, 1, Record{Era: 0, HBEpoch: 1}))
	require.NoError(t, store.Put(1, 0, Record{Era: 1, HBEpoch: 0}))
	require.NoError(t, store.Put(0, 0, Record{Era: 0, HBEpoch: 0}))

	var seen [][2]uint64
	require.NoError(t, store.Replay(func(era, hbEpoch uint64, rec Record) bool {
		seen = append(seen, [2]uint64{era, hbEpoch})
		return true
	}))
	require.Equal(t, [][2]uint64{{0, 0}, {0, 1}, {1, 0}}, seen)
}

func TestReplayStopsWhenFnReturnsFalse(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "batches"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put(0, 0, Record{}))
	require.NoError(t, store.Put(0, 1, Record{}))

	count := 0
	require.NoError(t, store.Replay(func(era, hbEpoch uint64, rec Record) bool {
		count++
		return false
	}))
	require.Equal(t, 1, count)
}

func TestSendersToHex(t *testing.T) {
	ids := []common.NodeID{common.HexToNodeID("0x0a"), common.HexToNodeID("0x0b")}
	hex := SendersToHex(ids)
	require.Equal(t, []string{ids[0].Hex(), ids[1].Hex()}, hex)
}
