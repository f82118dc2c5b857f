// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package dynhb

import (
	"sort"

	"github.com/hbft-labs/dynhb/common"
	"github.com/hbft-labs/dynhb/crypto"
	"github.com/hbft-labs/dynhb/wire"
)

// VoteCounter tracks, for one era, the votes validators have cast toward a
// proposed Change. Pending votes are ones this node has seen gossiped or
// proposed itself but that have not yet appeared in a committed batch;
// committed votes are the authoritative record once consensus has ordered
// them. A validator's later vote (higher Num) supersedes its earlier one in
// both stores — re-voting, not accumulating, is how a validator changes its
// mind.
type VoteCounter struct {
	era       Era
	ourID     common.NodeID
	nextNum   uint64
	pending   map[common.NodeID]SignedVote
	committed map[common.NodeID]Change
}

// NewVoteCounter creates an empty counter for the given era.
func NewVoteCounter(ourID common.NodeID, era Era) *VoteCounter {
	return &VoteCounter{
		era:       era,
		ourID:     ourID,
		pending:   make(map[common.NodeID]SignedVote),
		committed: make(map[common.NodeID]Change),
	}
}

// Era returns the era this counter is tracking votes for.
func (vc *VoteCounter) Era() Era { return vc.era }

// canonicalVoteBytes returns the bytes a vote's signature covers.
func canonicalVoteBytes(v Vote) []byte {
	w := wire.NewWriter()
	w.Uint64(uint64(v.Era)).Uint64(v.Num)
	encodeChange(w, v.Change)
	return w.Bytes()
}

func encodeChange(w *wire.Writer, c Change) {
	w.Uint64(uint64(c.Kind))
	switch c.Kind {
	case ChangeNodeChange:
		ids := c.PubKeys.Keys()
		w.Uint64(uint64(len(ids)))
		for _, id := range ids {
			w.BytesField(id[:])
			w.BytesField(c.PubKeys[id].Bytes())
		}
	case ChangeEncryptionSchedule:
		w.Uint64(uint64(c.Schedule.Mode))
		w.Uint64(c.Schedule.N)
	}
}

// SignVoteFor builds, signs, and records this node's own vote for change,
// returning the SignedVote to gossip and piggyback on the next
// contribution.
func (vc *VoteCounter) SignVoteFor(change Change, sk crypto.SecretKey) SignedVote {
	vote := Vote{Change: change, Era: vc.era, Num: vc.nextNum}
	vc.nextNum++
	sig := sk.Sign(canonicalVoteBytes(vote))
	sv := SignedVote{Vote: vote, Voter: vc.ourID, Signature: sig}
	vc.pending[vc.ourID] = sv
	return sv
}

// AddPendingVote validates and records a vote gossiped by sender, the peer
// that transmitted this message to us. pubKeys is the current era's
// validator identity keys, used to verify the signature. A vote for the
// wrong era, from an unknown claimed voter, or with an invalid signature is
// logged as a Fault against sender — never against sv.Voter, a field the
// message itself carries and so cannot be trusted to name the real
// culprit — and otherwise discarded; it never aborts processing of
// anything else.
func (vc *VoteCounter) AddPendingVote(sender common.NodeID, sv SignedVote, pubKeys PubKeyMap) FaultLog {
	var log FaultLog
	if sv.Vote.Era != vc.era {
		log.Append(sender, FaultUnexpectedDhbMessageEra, "vote era does not match current era")
		return log
	}
	pk, ok := pubKeys[sv.Voter]
	if !ok {
		log.Append(sender, FaultUnknownSender, "vote from unknown validator")
		return log
	}
	if !crypto.VerifyCached(pk, sv.Signature, canonicalVoteBytes(sv.Vote)) {
		log.Append(sender, FaultInvalidVoteSignature, "vote signature does not verify")
		return log
	}
	if existing, ok := vc.pending[sv.Voter]; ok && existing.Vote.Num >= sv.Vote.Num {
		return log
	}
	vc.pending[sv.Voter] = sv
	return log
}

// PendingVotes returns every pending vote, ordered by voter, for
// piggybacking on the next proposed contribution.
func (vc *VoteCounter) PendingVotes() []SignedVote {
	voters := make([]common.NodeID, 0, len(vc.pending))
	for id := range vc.pending {
		voters = append(voters, id)
	}
	sort.Slice(voters, func(i, j int) bool { return voters[i].Less(voters[j]) })
	out := make([]SignedVote, 0, len(voters))
	for _, id := range voters {
		out = append(out, vc.pending[id])
	}
	return out
}

// AddCommittedVote records change as voter's latest committed vote,
// superseding any earlier one. Committed votes arrive already ordered by
// consensus, so no signature check or Num comparison is needed here — the
// caller (AddCommittedVotes) is responsible for that before promoting a
// pending vote to committed.
func (vc *VoteCounter) AddCommittedVote(voter common.NodeID, change Change) {
	vc.committed[voter] = change
	delete(vc.pending, voter)
}

// AddCommittedVotes validates and commits every vote piggybacked on
// proposer's just-finalized contribution, in the order given. Faults land
// on proposer, the batch contributor that carried these votes into
// consensus, never on sv.Voter: a malicious proposer could otherwise frame
// an innocent validator simply by naming it in a forged vote's Voter field.
func (vc *VoteCounter) AddCommittedVotes(proposer common.NodeID, votes []SignedVote, pubKeys PubKeyMap) FaultLog {
	var log FaultLog
	for _, sv := range votes {
		if sv.Vote.Era != vc.era {
			log.Append(proposer, FaultUnexpectedDhbMessageEra, "committed vote era does not match current era")
			continue
		}
		pk, ok := pubKeys[sv.Voter]
		if !ok {
			log.Append(proposer, FaultUnknownSender, "committed vote from unknown validator")
			continue
		}
		if !crypto.VerifyCached(pk, sv.Signature, canonicalVoteBytes(sv.Vote)) {
			log.Append(proposer, FaultInvalidCommittedVote, "committed vote signature does not verify")
			continue
		}
		vc.AddCommittedVote(sv.Voter, sv.Vote.Change)
	}
	return log
}

// ComputeWinner returns a Change with strictly more than f committed
// votes, if one exists, where f is derived from pubKeys. Committed votes
// are walked in ascending voter NodeID order, so when more than one Change
// exceeds f (with n=4 and f=1, two Changes can hold two votes each) every
// node returns the same one: the Change whose lowest voter id sorts first.
func (vc *VoteCounter) ComputeWinner(pubKeys PubKeyMap) *Change {
	f := pubKeys.NumFaulty()
	voters := make([]common.NodeID, 0, len(vc.committed))
	for id := range vc.committed {
		voters = append(voters, id)
	}
	sort.Slice(voters, func(i, j int) bool { return voters[i].Less(voters[j]) })
	counts := make([]Change, 0)
	tally := make([]int, 0)
	for _, voter := range voters {
		change := vc.committed[voter]
		found := false
		for i, c := range counts {
			if c.Equal(change) {
				tally[i]++
				found = true
				break
			}
		}
		if !found {
			counts = append(counts, change)
			tally = append(tally, 1)
		}
	}
	for i, n := range tally {
		if n > f {
			c := counts[i]
			return &c
		}
	}
	return nil
}
