// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hbft-labs/dynhb/common"
	"github.com/hbft-labs/dynhb/internal/discovery"
)

func TestUpsertSelfAppendsWhenAbsent(t *testing.T) {
	id := common.HexToNodeID("0x0a")
	existing := []discovery.Peer{{NodeIDHex: "0x0b", Address: "10.0.0.2:30400"}}

	got := upsertSelf(existing, id, "10.0.0.1:30400")
	require.Len(t, got, 2)
	require.Contains(t, got, discovery.Peer{NodeIDHex: id.Hex(), Address: "10.0.0.1:30400"})
}

func TestUpsertSelfReplacesStaleEntry(t *testing.T) {
	id := common.HexToNodeID("0x0a")
	existing := []discovery.Peer{
		{NodeIDHex: id.Hex(), Address: "old:1"},
		{NodeIDHex: "0x0b", Address: "10.0.0.2:30400"},
	}

	got := upsertSelf(existing, id, "new:2")
	require.Len(t, got, 2)
	require.Contains(t, got, discovery.Peer{NodeIDHex: id.Hex(), Address: "new:2"})
	require.NotContains(t, got, discovery.Peer{NodeIDHex: id.Hex(), Address: "old:1"})
}
