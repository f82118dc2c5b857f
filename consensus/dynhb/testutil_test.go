// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package dynhb

import (
	"github.com/hbft-labs/dynhb/common"
	"github.com/hbft-labs/dynhb/crypto"
)

// blob is the simplest possible Contribution: an opaque byte string, used
// throughout the test suite so tests can assert on exact contribution
// bytes without depending on any particular application payload.
type blob []byte

func (b blob) Marshal() []byte { return []byte(b) }

func unmarshalBlob(b []byte) (blob, error) { return blob(b), nil }

// testNode is one fixture validator: its identity, keys, and node id.
type testNode struct {
	id common.NodeID
	sk crypto.SecretKey
	pk crypto.PublicKey
}

func newTestNodes(n int) []testNode {
	nodes := make([]testNode, n)
	for i := 0; i < n; i++ {
		sk, err := crypto.GenerateSecretKey()
		if err != nil {
			panic(err)
		}
		var id common.NodeID
		id[common.NodeIDLength-1] = byte(i + 1)
		nodes[i] = testNode{id: id, sk: sk, pk: sk.PublicKey()}
	}
	return nodes
}

func pubKeyMap(nodes []testNode) PubKeyMap {
	m := make(PubKeyMap, len(nodes))
	for _, n := range nodes {
		m[n.id] = n.pk
	}
	return m
}

// newTestNetwork builds n genesis engines. BuildFirstNode's 1-of-1
// threshold set does not fit n>1, so instead every engine shares one
// freshly generated (f, n) set, f = keys.NumFaulty(), built directly with
// crypto.GenerateThresholdShares, as if a prior out-of-band DKG had already
// produced it — exactly what NetworkInfo models for an already-established
// era.
func newTestNetwork(n int) ([]testNode, []*DynamicEngine[blob]) {
	nodes := newTestNodes(n)
	keys := pubKeyMap(nodes)
	threshold := keys.NumFaulty()
	shares, pks, err := crypto.GenerateThresholdShares(threshold, n)
	if err != nil {
		panic(err)
	}

	engines := make([]*DynamicEngine[blob], n)
	for i, node := range nodes {
		share := shares[i]
		e, err := NewBuilder[blob](node.id, node.sk, unmarshalBlob).
			Validators(keys).
			Build(pks, &share)
		if err != nil {
			panic(err)
		}
		engines[i] = e
	}
	return nodes, engines
}
