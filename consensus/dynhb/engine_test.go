// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package dynhb

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hbft-labs/dynhb/common"
	"github.com/hbft-labs/dynhb/internal/honeybadger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type routedMessage struct {
	from common.NodeID
	to   common.NodeID
	msg  Message
}

// proposeAll drives one full round: every engine proposes, and every
// message the round produces — broadcasts and unicasts alike — is routed
// until the queue drains. It stands in for the host's network fan-out loop
// so tests can assert purely on what each engine's Batches looked like.
func proposeAll(t *testing.T, engines []*DynamicEngine[blob], payload func(i int) blob) map[common.NodeID][]Batch[blob] {
	t.Helper()
	byID := make(map[common.NodeID]*DynamicEngine[blob], len(engines))
	for _, e := range engines {
		byID[e.OurID()] = e
	}
	result := make(map[common.NodeID][]Batch[blob])
	var queue []routedMessage

	record := func(owner common.NodeID, step Step[blob]) {
		result[owner] = append(result[owner], step.Batches...)
		for _, out := range step.Messages {
			if out.Target.All {
				for id := range byID {
					if id == owner {
						continue
					}
					queue = append(queue, routedMessage{owner, id, out.Message})
				}
			} else {
				queue = append(queue, routedMessage{owner, out.Target.NodeID, out.Message})
			}
		}
	}

	for i, e := range engines {
		step, err := e.Propose(payload(i))
		require.NoError(t, err)
		record(e.OurID(), step)
	}
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		step, err := byID[item.to].HandleMessage(item.from, item.msg)
		require.NoError(t, err)
		record(item.to, step)
	}
	return result
}

func TestFourNodesCommitOneBatchPerEpoch(t *testing.T) {
	nodes, engines := newTestNetwork(4)
	batches := proposeAll(t, engines, func(i int) blob { return nil })

	for _, node := range nodes {
		bs := batches[node.id]
		require.Len(t, bs, 1, "each node should see exactly one batch for epoch 0")
		require.Equal(t, uint64(0), bs[0].Epoch.HBEpoch)
		require.Equal(t, Era(0), bs[0].Epoch.Era)
		require.Len(t, bs[0].Contributions, 4)
		require.Equal(t, ChangeStateNone, bs[0].Change.Kind)
	}
}

func TestVoteToAddStartsDKGForMembershipChange(t *testing.T) {
	nodes, engines := newTestNetwork(4)

	newcomer := newTestNodes(1)[0]
	newcomer.id[common.NodeIDLength-1] = 99

	// Two of the four validators vote to add the newcomer (f=1, so 2 votes win).
	engines[0].VoteToAdd(newcomer.id, newcomer.pk)
	engines[1].VoteToAdd(newcomer.id, newcomer.pk)

	batches := proposeAll(t, engines, func(i int) blob { return nil })
	for _, node := range nodes {
		require.Len(t, batches[node.id], 1)
		require.Equal(t, ChangeStateInProgress, batches[node.id][0].Change.Kind)
		require.Equal(t, ChangeNodeChange, batches[node.id][0].Change.Change.Kind)
	}
	for _, e := range engines {
		require.NotNil(t, e.keyGen, "every node should have started its own DKG instance")
	}
}

func TestSecondChangeWhileInProgress(t *testing.T) {
	nodes, engines := newTestNetwork(4)

	memberA := newTestNodes(1)[0]
	memberA.id[common.NodeIDLength-1] = 91
	memberB := newTestNodes(1)[0]
	memberB.id[common.NodeIDLength-1] = 92

	// Two different NodeChanges are proposed in the same round: one wins
	// by a 2-vote majority, the other never accumulates enough votes while
	// the winner's DKG is in progress, and no second DKG is ever started.
	engines[0].VoteToAdd(memberA.id, memberA.pk)
	engines[1].VoteToAdd(memberA.id, memberA.pk)
	engines[2].VoteToAdd(memberB.id, memberB.pk)

	batches := proposeAll(t, engines, func(i int) blob { return nil })
	for _, node := range nodes {
		require.Equal(t, ChangeStateInProgress, batches[node.id][0].Change.Kind)
		require.True(t, batches[node.id][0].Change.Change.PubKeys[memberA.id].Equal(memberA.pk))
		_, hasB := batches[node.id][0].Change.Change.PubKeys[memberB.id]
		require.False(t, hasB, "the non-winning change must not take effect")
	}

	// A further round must not start a second DKG: key_gen_state is
	// already occupied, and the ComputeWinner check is skipped entirely
	// while a change is in progress.
	batches2 := proposeAll(t, engines, func(i int) blob { return nil })
	for _, node := range nodes {
		if len(batches2[node.id]) == 0 {
			continue
		}
		require.NotEqual(t, ChangeStateComplete, batches2[node.id][0].Change.Kind)
	}
}

func TestEncryptionScheduleChangeCompletesImmediatelyAndBumpsEra(t *testing.T) {
	nodes, engines := newTestNetwork(4)

	engines[0].VoteForEncryptionSchedule(EncryptionSchedule{Mode: EncryptNever})
	engines[1].VoteForEncryptionSchedule(EncryptionSchedule{Mode: EncryptNever})

	batches := proposeAll(t, engines, func(i int) blob { return nil })
	for _, node := range nodes {
		require.Len(t, batches[node.id], 1)
		require.Equal(t, ChangeStateComplete, batches[node.id][0].Change.Kind)
		require.Equal(t, ChangeEncryptionSchedule, batches[node.id][0].Change.Change.Kind)
	}
	for _, e := range engines {
		require.Equal(t, Era(1), e.Era(), "an encryption-schedule completion still bumps era")
		require.Equal(t, EncryptNever, e.params.EncryptionSchedule.Mode)
	}
}

func TestHandleMessageFaultsOnFutureEra(t *testing.T) {
	_, engines := newTestNetwork(4)
	msg := NewHoneyBadgerMessage(7, honeybadger.Message{Epoch: 0})
	step, err := engines[0].HandleMessage(engines[1].OurID(), msg)
	require.NoError(t, err)
	require.Len(t, step.Faults.Faults, 1)
	require.Equal(t, FaultUnexpectedDhbMessageEra, step.Faults.Faults[0].Kind)
}

func TestHandleMessageSilentlyDropsPastEra(t *testing.T) {
	_, engines := newTestNetwork(4)
	engines[0].era = 5
	msg := NewHoneyBadgerMessage(2, honeybadger.Message{Epoch: 0})
	step, err := engines[0].HandleMessage(engines[1].OurID(), msg)
	require.NoError(t, err)
	require.Empty(t, step.Faults.Faults, "a message from an era that has already closed is not the sender's fault")
}

func TestHandleMessageFaultsHoneyBadgerFromNonValidator(t *testing.T) {
	_, engines := newTestNetwork(4)
	impostor := newTestNodes(1)[0]
	impostor.id[common.NodeIDLength-1] = 99
	msg := NewHoneyBadgerMessage(engines[0].Era(), honeybadger.Message{Epoch: 0})
	step, err := engines[0].HandleMessage(impostor.id, msg)
	require.NoError(t, err)
	require.Len(t, step.Faults.Faults, 1)
	require.Equal(t, FaultUnknownSender, step.Faults.Faults[0].Kind)
}

func TestShouldProposeAfterQuorumOfPeersHaveProposed(t *testing.T) {
	nodes, engines := newTestNetwork(4)
	require.False(t, engines[3].ShouldPropose())

	for i := 0; i < 2; i++ {
		step, err := engines[i].Propose(nil)
		require.NoError(t, err)
		for _, out := range step.Messages {
			if out.Target.All {
				_, err := engines[3].HandleMessage(nodes[i].id, out.Message)
				require.NoError(t, err)
			}
		}
	}
	require.True(t, engines[3].ShouldPropose(), "node 3 has seen 2 > f=1 proposals and should catch up")
}
