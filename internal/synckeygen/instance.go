// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

// Package synckeygen is the narrow, swappable stand-in for the synchronous
// distributed key generation collaborator. Inventing a new DKG is out of
// scope; this package implements a real, if simplified, Pedersen-style
// joint sharing: each participant deals its own independent Shamir sharing
// of a fresh secret (a Part), every recipient verifies and acknowledges its
// share (an Ack), and once enough dealers are acknowledged the joint secret
// is the sum of the accepted dealers' secrets — additive because Shamir
// sharing is linear in the dealt secret. The one real-world corner cut is
// that each Part carries its shares in the clear rather than encrypted
// under the recipient's long-term key; that encryption step is exactly the
// "already solved, out of scope" threshold-crypto capability the engine
// treats as an opaque collaborator.
package synckeygen

import (
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/hbft-labs/dynhb/common"
	"github.com/hbft-labs/dynhb/crypto"
)

// Part is one dealer's contribution: a Shamir (threshold, n) sharing of a
// fresh secret, with a share addressed to every participant and a public
// commitment set recipients use to catch a mistransmitted share.
type Part struct {
	Dealer               common.NodeID
	Threshold            int
	MasterCommitment     [32]byte
	ShareCommitments     map[uint64][32]byte
	SharesToParticipants map[common.NodeID][]byte
}

// Ack is a participant's acknowledgement that it received and validated the
// share a dealer's Part addressed to it.
type Ack struct {
	Acker common.NodeID
	Dealer common.NodeID
	Valid  bool
}

// PartOutcome is the result of handling a Part: either a fault (the Part
// was malformed or a duplicate), or an Ack to broadcast in response, which
// is nil if the part was accepted silently without requiring one (never
// the case in this implementation, but kept for parity with designs where
// some parts need no ack).
type PartOutcome struct {
	Fault error
	Ack   *Ack
}

// AckOutcome is the result of handling an Ack.
type AckOutcome struct {
	Fault error
}

type partRecord struct {
	part     Part
	ourShare crypto.SecretKeyShare
}

// Instance runs one key-generation session among a fixed set of
// participants for a candidate validator set.
type Instance struct {
	ourID           common.NodeID
	participants    []common.NodeID
	threshold       int
	candidatePubKeys map[common.NodeID]crypto.PublicKey

	parts map[common.NodeID]partRecord
	acks  map[common.NodeID]map[common.NodeID]bool
}

// New creates an Instance and this node's own Part to broadcast.
// candidatePubKeys is the new validator set's long-term identity keys —
// the "new pub_keys" the core engine later verifies key-gen messages
// against during the transition, exposed back out via CandidatePubKeys.
func New(ourID common.NodeID, participants []common.NodeID, threshold int, candidatePubKeys map[common.NodeID]crypto.PublicKey) (*Instance, Part, error) {
	sorted := append([]common.NodeID(nil), participants...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	shares, pks, err := crypto.GenerateThresholdShares(threshold, len(sorted))
	if err != nil {
		return nil, Part{}, fmt.Errorf("synckeygen: %w", err)
	}

	commitments := make(map[uint64][32]byte, len(sorted))
	sharesTo := make(map[common.NodeID][]byte, len(sorted))
	for i, id := range sorted {
		idx := uint64(i + 1)
		c, ok := pks.ShareCommitment(idx)
		if !ok {
			return nil, Part{}, fmt.Errorf("synckeygen: missing commitment for index %d", idx)
		}
		commitments[idx] = c
		b := shares[i].Bytes()
		sharesTo[id] = b[:]
	}

	part := Part{
		Dealer:               ourID,
		Threshold:            threshold,
		MasterCommitment:     pks.MasterCommitment(),
		ShareCommitments:     commitments,
		SharesToParticipants: sharesTo,
	}

	inst := &Instance{
		ourID:            ourID,
		participants:     sorted,
		threshold:        threshold,
		candidatePubKeys: candidatePubKeys,
		parts:            make(map[common.NodeID]partRecord),
		acks:             make(map[common.NodeID]map[common.NodeID]bool),
	}
	return inst, part, nil
}

// CandidatePubKeys returns the long-term identity keys of the validator set
// this DKG run is generating shares for.
func (kg *Instance) CandidatePubKeys() map[common.NodeID]crypto.PublicKey {
	return kg.candidatePubKeys
}

// Threshold returns the (threshold, n) scheme's threshold.
func (kg *Instance) Threshold() int { return kg.threshold }

// NumParticipants returns the session's participant count.
func (kg *Instance) NumParticipants() int { return len(kg.participants) }

func (kg *Instance) ourIndex() (uint64, bool) {
	for i, id := range kg.participants {
		if id == kg.ourID {
			return uint64(i + 1), true
		}
	}
	return 0, false
}

// HandlePart processes a Part from sender.
func (kg *Instance) HandlePart(sender common.NodeID, part Part) PartOutcome {
	if part.Dealer != sender {
		return PartOutcome{Fault: fmt.Errorf("synckeygen: part dealer %s does not match sender %s", part.Dealer.Hex(), sender.Hex())}
	}
	if _, dup := kg.parts[sender]; dup {
		return PartOutcome{Fault: fmt.Errorf("synckeygen: duplicate part from %s", sender.Hex())}
	}
	found := false
	for _, p := range kg.participants {
		if p == sender {
			found = true
			break
		}
	}
	if !found {
		return PartOutcome{Fault: fmt.Errorf("synckeygen: part from non-participant %s", sender.Hex())}
	}

	idx, ok := kg.ourIndex()
	if !ok {
		return PartOutcome{Fault: fmt.Errorf("synckeygen: we are not a participant in this session")}
	}
	shareBytes, ok := part.SharesToParticipants[kg.ourID]
	if !ok {
		return PartOutcome{Fault: fmt.Errorf("synckeygen: part from %s carries no share for us", sender.Hex())}
	}
	share, err := crypto.SecretKeyShareFromBytes(idx, shareBytes)
	if err != nil {
		return PartOutcome{Fault: fmt.Errorf("synckeygen: %w", err)}
	}
	pks := crypto.NewThresholdPublicKeySet(part.Threshold, part.MasterCommitment, part.ShareCommitments)
	if !pks.VerifyShareCommitment(idx, share) {
		return PartOutcome{Fault: fmt.Errorf("synckeygen: share from %s fails its own commitment", sender.Hex())}
	}

	kg.parts[sender] = partRecord{part: part, ourShare: share}
	ack := Ack{Acker: kg.ourID, Dealer: sender, Valid: true}
	kg.recordAck(ack)
	return PartOutcome{Ack: &ack}
}

// HandleAck processes an Ack from sender.
func (kg *Instance) HandleAck(sender common.NodeID, ack Ack) AckOutcome {
	if ack.Acker != sender {
		return AckOutcome{Fault: fmt.Errorf("synckeygen: ack acker %s does not match sender %s", ack.Acker.Hex(), sender.Hex())}
	}
	if _, haveDealer := kg.parts[ack.Dealer]; !haveDealer {
		return AckOutcome{Fault: fmt.Errorf("synckeygen: ack for unknown dealer %s", ack.Dealer.Hex())}
	}
	kg.recordAck(ack)
	return AckOutcome{}
}

func (kg *Instance) recordAck(ack Ack) {
	m := kg.acks[ack.Dealer]
	if m == nil {
		m = make(map[common.NodeID]bool)
		kg.acks[ack.Dealer] = m
	}
	m[ack.Acker] = ack.Valid
}

func (kg *Instance) isDealerComplete(dealer common.NodeID) bool {
	valid := 0
	for _, ok := range kg.acks[dealer] {
		if ok {
			valid++
		}
	}
	return valid > kg.threshold
}

// CountComplete returns the number of dealers whose Part has been
// acknowledged by more than threshold participants.
func (kg *Instance) CountComplete() int {
	n := 0
	for dealer := range kg.parts {
		if kg.isDealerComplete(dealer) {
			n++
		}
	}
	return n
}

// IsReady is the DKG's own internal readiness predicate: enough dealers
// have completed that the joint secret can be safely derived. Callers that
// need the stricter two-thirds-of-participants bound apply it on top of
// this, per the engine's KeyGenState.
func (kg *Instance) IsReady() bool {
	return kg.CountComplete() > kg.threshold
}

// qualifiedDealers returns the completed dealers in ascending order.
func (kg *Instance) qualifiedDealers() []common.NodeID {
	out := make([]common.NodeID, 0, len(kg.parts))
	for dealer := range kg.parts {
		if kg.isDealerComplete(dealer) {
			out = append(out, dealer)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Generate combines every qualified dealer's contribution into the joint
// threshold key set and this node's final secret share. It is only valid
// to call once IsReady reports true.
func (kg *Instance) Generate() (crypto.ThresholdPublicKeySet, crypto.SecretKeyShare, error) {
	dealers := kg.qualifiedDealers()
	if len(dealers) == 0 {
		return crypto.ThresholdPublicKeySet{}, crypto.SecretKeyShare{}, fmt.Errorf("synckeygen: no qualified dealers")
	}

	shares := make([]crypto.SecretKeyShare, 0, len(dealers))
	h := sha256.New()
	for _, d := range dealers {
		rec := kg.parts[d]
		shares = append(shares, rec.ourShare)
		h.Write(d[:])
		h.Write(rec.part.MasterCommitment[:])
	}
	finalShare, err := crypto.AddShares(shares...)
	if err != nil {
		return crypto.ThresholdPublicKeySet{}, crypto.SecretKeyShare{}, fmt.Errorf("synckeygen: %w", err)
	}
	var master [32]byte
	copy(master[:], h.Sum(nil))
	pks := crypto.NewMasterOnlyThresholdKeySet(kg.threshold, master)
	return pks, finalShare, nil
}
