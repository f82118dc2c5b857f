// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package dynhb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// runFullKeyGen drives n KeyGenState instances (one per node) through a
// complete Part/Ack exchange, returning them once every instance is ready.
// It is the fixture test scenario 3 ("a four-node DKG completes when every
// node's Part is acknowledged by the rest") is built on.
func runFullKeyGen(t *testing.T, n int) ([]testNode, []*KeyGenState) {
	t.Helper()
	nodes := newTestNodes(n)
	keys := pubKeyMap(nodes)
	participants := keys.Keys()
	threshold := keys.NumFaulty()

	states := make([]*KeyGenState, n)
	parts := make([]struct {
		dealer int
		msg    SignedKeyGenMsg
	}, 0, n)

	for i, node := range nodes {
		kg, part, err := NewKeyGenState(node.id, participants, threshold, keys)
		require.NoError(t, err)
		states[i] = kg
		skm := SignedKeyGenMsg{Era: 0, Sender: node.id, Message: NewPartMessage(part)}
		skm.Signature = node.sk.Sign(canonicalKeyGenMsgBytes(skm.Message))
		parts = append(parts, struct {
			dealer int
			msg    SignedKeyGenMsg
		}{i, skm})
	}

	// Deliver every Part to every instance, collecting the Acks it
	// produces, then deliver every Ack to every instance.
	var acks []SignedKeyGenMsg
	for _, p := range parts {
		dealerID := nodes[p.dealer].id
		for i := range states {
			outcome := states[i].HandlePart(dealerID, p.msg.Message.Part)
			require.Nil(t, outcome.Fault)
			require.NotNil(t, outcome.Ack)
			skm := SignedKeyGenMsg{Era: 0, Sender: nodes[i].id, Message: NewAckMessage(*outcome.Ack)}
			skm.Signature = nodes[i].sk.Sign(canonicalKeyGenMsgBytes(skm.Message))
			acks = append(acks, skm)
		}
	}
	for _, a := range acks {
		for i := range states {
			outcome := states[i].HandleAck(a.Sender, a.Message.Ack)
			require.Nil(t, outcome.Fault)
		}
	}
	return nodes, states
}

func TestKeyGenStateBecomesReadyAfterFullExchange(t *testing.T) {
	_, states := runFullKeyGen(t, 4)
	for i, kg := range states {
		require.True(t, kg.IsReady(), "node %d should be ready once every dealer is acknowledged", i)
	}
}

func TestKeyGenStateGenerateProducesConsistentShares(t *testing.T) {
	_, states := runFullKeyGen(t, 4)

	pks0, _, err := states[0].Generate()
	require.NoError(t, err)
	for i := 1; i < len(states); i++ {
		pksI, _, err := states[i].Generate()
		require.NoError(t, err)
		require.True(t, pks0.Equal(pksI), "every node must derive the same joint public commitment")
	}
}

func TestHandlePartRejectsMismatchedDealer(t *testing.T) {
	nodes := newTestNodes(4)
	keys := pubKeyMap(nodes)
	participants := keys.Keys()
	threshold := keys.NumFaulty()

	kgA, partA, err := NewKeyGenState(nodes[0].id, participants, threshold, keys)
	require.NoError(t, err)

	outcome := kgA.HandlePart(nodes[1].id, partA)
	require.NotNil(t, outcome.Fault, "a Part claiming a different dealer than its sender must be rejected")
}

func TestKeyGenStateNotReadyBelowTwoThirds(t *testing.T) {
	nodes := newTestNodes(7)
	keys := pubKeyMap(nodes)
	participants := keys.Keys()
	threshold := keys.NumFaulty()

	states := make([]*KeyGenState, len(nodes))

	type partMsg struct {
		dealerIdx int
		part      SignedKeyGenMsg
	}
	var parts []partMsg
	for i, node := range nodes {
		kg, part, err := NewKeyGenState(node.id, participants, threshold, keys)
		require.NoError(t, err)
		states[i] = kg
		skm := SignedKeyGenMsg{Era: 0, Sender: node.id, Message: NewPartMessage(part)}
		skm.Signature = node.sk.Sign(canonicalKeyGenMsgBytes(skm.Message))
		parts = append(parts, partMsg{i, skm})
	}

	// Only the first two dealers' Parts get acknowledged at all — far
	// short of the 2/3-of-participants bound KeyGenState enforces beyond
	// the underlying DKG's own readiness.
	var acks []SignedKeyGenMsg
	for _, p := range parts[:2] {
		dealerID := nodes[p.dealerIdx].id
		for i := range states {
			outcome := states[i].HandlePart(dealerID, p.part.Message.Part)
			require.Nil(t, outcome.Fault)
			skm := SignedKeyGenMsg{Era: 0, Sender: nodes[i].id, Message: NewAckMessage(*outcome.Ack)}
			acks = append(acks, skm)
		}
	}
	for _, a := range acks {
		for i := range states {
			states[i].HandleAck(a.Sender, a.Message.Ack)
		}
	}

	for i, kg := range states {
		require.False(t, kg.IsReady(), "node %d must not be ready with only 2 of 7 dealers complete", i)
	}
}
