// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package dynhb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hbft-labs/dynhb/crypto"
)

func TestPendingVotesSuperseded(t *testing.T) {
	nodes := newTestNodes(4)
	vc := NewVoteCounter(nodes[0].id, 0)

	scheduleA := NewEncryptionScheduleChange(EncryptionSchedule{Mode: EncryptAlways})
	scheduleB := NewEncryptionScheduleChange(EncryptionSchedule{Mode: EncryptNever})

	first := vc.SignVoteFor(scheduleA, nodes[0].sk)
	require.Len(t, vc.PendingVotes(), 1)
	require.True(t, vc.PendingVotes()[0].Vote.Change.Equal(scheduleA))

	second := vc.SignVoteFor(scheduleB, nodes[0].sk)
	require.Greater(t, second.Vote.Num, first.Vote.Num)
	require.Len(t, vc.PendingVotes(), 1, "re-voting must supersede, not accumulate")
	require.True(t, vc.PendingVotes()[0].Vote.Change.Equal(scheduleB))
}

func TestPendingVoteRejectsForgedSignature(t *testing.T) {
	nodes := newTestNodes(4)
	keys := pubKeyMap(nodes)
	vc := NewVoteCounter(nodes[0].id, 0)

	change := NewEncryptionScheduleChange(EncryptionSchedule{Mode: EncryptNever})
	impostorKey, err := crypto.GenerateSecretKey()
	require.NoError(t, err)

	vote := Vote{Change: change, Era: 0, Num: 0}
	forged := SignedVote{
		Vote:      vote,
		Voter:     nodes[1].id,
		Signature: impostorKey.Sign(canonicalVoteBytes(vote)),
	}

	// nodes[2] is the one who actually transmitted this message to us; the
	// forged Voter field names nodes[1] instead. The fault must land on
	// the real sender, not the framed name inside the payload.
	attacker := nodes[2].id
	log := vc.AddPendingVote(attacker, forged, keys)
	require.Len(t, log.Faults, 1)
	require.Equal(t, FaultInvalidVoteSignature, log.Faults[0].Kind)
	require.Equal(t, attacker, log.Faults[0].Node)
	require.Empty(t, vc.PendingVotes())
}

func TestPendingVoteRejectsUnknownSender(t *testing.T) {
	nodes := newTestNodes(4)
	keys := pubKeyMap(nodes[:3])
	vc := NewVoteCounter(nodes[0].id, 0)

	change := NewEncryptionScheduleChange(EncryptionSchedule{Mode: EncryptNever})
	sv := vc.SignVoteFor(change, nodes[3].sk)
	sv.Voter = nodes[3].id

	log := vc.AddPendingVote(nodes[3].id, sv, keys)
	require.Len(t, log.Faults, 1)
	require.Equal(t, FaultUnknownSender, log.Faults[0].Kind)
	require.Equal(t, nodes[3].id, log.Faults[0].Node)
}

func TestCommittedVotesOverwritePerVoterAndComputeWinner(t *testing.T) {
	nodes := newTestNodes(4) // f = 1, winner needs > 1, i.e. >= 2 votes
	keys := pubKeyMap(nodes)
	vc := NewVoteCounter(nodes[0].id, 0)

	changeA := NewEncryptionScheduleChange(EncryptionSchedule{Mode: EncryptAlways})
	changeB := NewEncryptionScheduleChange(EncryptionSchedule{Mode: EncryptNever})

	require.Nil(t, vc.ComputeWinner(keys))

	vc.AddCommittedVote(nodes[0].id, changeA)
	require.Nil(t, vc.ComputeWinner(keys), "a single vote must not win with f=1")

	vc.AddCommittedVote(nodes[1].id, changeA)
	winner := vc.ComputeWinner(keys)
	require.NotNil(t, winner)
	require.True(t, winner.Equal(changeA))

	// nodes[0] changes its mind; its earlier vote for changeA no longer
	// counts, dropping changeA below the threshold again.
	vc.AddCommittedVote(nodes[0].id, changeB)
	require.Nil(t, vc.ComputeWinner(keys))
}

func TestAddCommittedVotesRejectsBadSignatures(t *testing.T) {
	nodes := newTestNodes(4)
	keys := pubKeyMap(nodes)
	vc := NewVoteCounter(nodes[0].id, 0)

	change := NewEncryptionScheduleChange(EncryptionSchedule{Mode: EncryptNever})
	good := vc.SignVoteFor(change, nodes[1].sk)
	good.Voter = nodes[1].id

	bad := good
	bad.Signature = nodes[2].sk.Sign([]byte("not the vote"))
	bad.Voter = nodes[2].id

	// Both votes arrived piggybacked on nodes[3]'s contribution; the fault
	// must land on nodes[3], the proposer that carried the bad vote, not on
	// nodes[2], the name the vote's own (forgeable) Voter field claims.
	proposer := nodes[3].id
	log := vc.AddCommittedVotes(proposer, []SignedVote{good, bad}, keys)
	require.Len(t, log.Faults, 1)
	require.Equal(t, FaultInvalidCommittedVote, log.Faults[0].Kind)
	require.Equal(t, proposer, log.Faults[0].Node)
}
