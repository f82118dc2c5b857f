// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package discovery

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTXTPeers(t *testing.T) {
	peers := parseTXTPeers(`"0x0a=10.0.0.1:30400,0x0b=10.0.0.2:30400"`)
	require.Equal(t, []Peer{
		{NodeIDHex: "0x0a", Address: "10.0.0.1:30400"},
		{NodeIDHex: "0x0b", Address: "10.0.0.2:30400"},
	}, peers)
}

func TestParseTXTPeersSkipsMalformedEntries(t *testing.T) {
	peers := parseTXTPeers(`"0x0a=10.0.0.1:30400, garbage-no-equals ,0x0b=10.0.0.2:30400"`)
	require.Equal(t, []Peer{
		{NodeIDHex: "0x0a", Address: "10.0.0.1:30400"},
		{NodeIDHex: "0x0b", Address: "10.0.0.2:30400"},
	}, peers)
}

func TestParseTXTPeersEmpty(t *testing.T) {
	require.Empty(t, parseTXTPeers(`""`))
}

func TestEnsureTrailingDot(t *testing.T) {
	require.Equal(t, "example.com.", ensureTrailingDot("example.com"))
	require.Equal(t, "example.com.", ensureTrailingDot("example.com."))
}
