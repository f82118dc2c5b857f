// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

// Package common holds the small value types shared across the dynamic
// consensus engine: node identifiers and content hashes.
package common

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
)

// NodeIDLength is the size in bytes of a NodeID, matching the teacher's
// common.Address convention.
const NodeIDLength = 20

// NodeID is an opaque, totally-ordered validator identifier. It is cheap to
// copy and compares byte-wise, which is the total order the spec requires
// for deterministic map iteration.
type NodeID [NodeIDLength]byte

// BytesToNodeID right-aligns b into a NodeID, truncating from the left if
// b is longer than NodeIDLength.
func BytesToNodeID(b []byte) NodeID {
	var id NodeID
	if len(b) > NodeIDLength {
		b = b[len(b)-NodeIDLength:]
	}
	copy(id[NodeIDLength-len(b):], b)
	return id
}

// HexToNodeID parses a hex string (with or without 0x prefix) into a NodeID.
func HexToNodeID(s string) NodeID {
	return BytesToNodeID(FromHex(s))
}

// FromHex decodes a hex string, accepting an optional "0x" prefix.
func FromHex(s string) []byte {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}

// Bytes returns a copy of the id as a byte slice.
func (n NodeID) Bytes() []byte { return n[:] }

// Hex returns the "0x"-prefixed hex encoding of the id.
func (n NodeID) Hex() string { return "0x" + hex.EncodeToString(n[:]) }

// String implements fmt.Stringer.
func (n NodeID) String() string { return n.Hex() }

// Less reports whether n sorts strictly before other, giving NodeID the
// total order every "N-order" requirement in the spec relies on.
func (n NodeID) Less(other NodeID) bool { return bytes.Compare(n[:], other[:]) < 0 }

// Compare returns -1, 0 or 1 as n is less than, equal to, or greater than
// other, matching the contract of slices.SortFunc / cmp.Compare.
func (n NodeID) Compare(other NodeID) int { return bytes.Compare(n[:], other[:]) }

// IsZero reports whether n is the zero NodeID.
func (n NodeID) IsZero() bool { return n == NodeID{} }

// MarshalText implements encoding.TextMarshaler.
func (n NodeID) MarshalText() ([]byte, error) { return []byte(n.Hex()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *NodeID) UnmarshalText(text []byte) error {
	b := FromHex(string(text))
	if len(b) != NodeIDLength {
		return fmt.Errorf("common: invalid NodeID length %d, want %d", len(b), NodeIDLength)
	}
	copy(n[:], b)
	return nil
}

// Hash is a fixed-size content hash, used for block/batch references.
type Hash [32]byte

// BytesToHash right-aligns b into a Hash.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > len(h) {
		b = b[len(b)-len(h):]
	}
	copy(h[len(h)-len(b):], b)
	return h
}

// Hex returns the "0x"-prefixed hex encoding of the hash.
func (h Hash) Hex() string { return "0x" + hex.EncodeToString(h[:]) }

// String implements fmt.Stringer.
func (h Hash) String() string { return h.Hex() }

// ErrInvalidLength is returned by parsers fed the wrong number of bytes.
var ErrInvalidLength = errors.New("common: invalid byte length")
