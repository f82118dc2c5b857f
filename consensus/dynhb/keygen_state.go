// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package dynhb

import (
	"github.com/hbft-labs/dynhb/common"
	"github.com/hbft-labs/dynhb/crypto"
	"github.com/hbft-labs/dynhb/internal/synckeygen"
)

// maxKeyGenMessagesPerSender bounds how many Part/Ack messages a single
// validator may contribute to one DKG run, so a misbehaving validator
// cannot force unbounded bookkeeping by flooding key-gen traffic.
const maxKeyGenMessagesPerSender = 256

// KeyGenState wraps one running DKG instance for a candidate validator set,
// tracking per-sender message counts so a misbehaving validator can be
// flagged, and layering a stricter readiness bound on top of the DKG's own.
type KeyGenState struct {
	instance *synckeygen.Instance
	msgCount map[common.NodeID]int
}

// NewKeyGenState starts a DKG run for the candidate validator set and
// returns the state plus this node's own Part to broadcast.
func NewKeyGenState(ourID common.NodeID, participants []common.NodeID, threshold int, candidatePubKeys map[common.NodeID]crypto.PublicKey) (*KeyGenState, synckeygen.Part, error) {
	inst, part, err := synckeygen.New(ourID, participants, threshold, candidatePubKeys)
	if err != nil {
		return nil, synckeygen.Part{}, err
	}
	return &KeyGenState{instance: inst, msgCount: make(map[common.NodeID]int)}, part, nil
}

// PublicKeys returns the candidate validator set's long-term identity
// keys — the "new pub_keys" a SignedKeyGenMsg may alternatively be
// verified against during a transition (see verifyKeyGenSignature).
func (kg *KeyGenState) PublicKeys() PubKeyMap {
	out := make(PubKeyMap, len(kg.instance.CandidatePubKeys()))
	for id, pk := range kg.instance.CandidatePubKeys() {
		out[id] = pk
	}
	return out
}

// CountMessages increments and returns sender's key-gen message count for
// this run, used to enforce maxKeyGenMessagesPerSender.
func (kg *KeyGenState) CountMessages(sender common.NodeID) int {
	kg.msgCount[sender]++
	return kg.msgCount[sender]
}

// IsReady reports whether the DKG has both reached its own internal
// readiness and strictly more than two-thirds of participants have a
// complete (threshold-acknowledged) dealer — a bound stricter than the
// DKG's own, so a just-barely-ready run still waits for broader
// participation before the engine commits to it.
func (kg *KeyGenState) IsReady() bool {
	n := kg.instance.NumParticipants()
	return kg.instance.IsReady() && kg.instance.CountComplete()*3 > 2*n
}

// HandlePart forwards a Part to the underlying DKG instance.
func (kg *KeyGenState) HandlePart(sender common.NodeID, part synckeygen.Part) synckeygen.PartOutcome {
	return kg.instance.HandlePart(sender, part)
}

// HandleAck forwards an Ack to the underlying DKG instance.
func (kg *KeyGenState) HandleAck(sender common.NodeID, ack synckeygen.Ack) synckeygen.AckOutcome {
	return kg.instance.HandleAck(sender, ack)
}

// Generate finalizes the DKG run once IsReady is true.
func (kg *KeyGenState) Generate() (crypto.ThresholdPublicKeySet, crypto.SecretKeyShare, error) {
	return kg.instance.Generate()
}
