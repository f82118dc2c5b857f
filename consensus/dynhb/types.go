// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package dynhb

import (
	"sort"

	"github.com/hbft-labs/dynhb/common"
	"github.com/hbft-labs/dynhb/crypto"
	"github.com/hbft-labs/dynhb/internal/honeybadger"
	"github.com/hbft-labs/dynhb/internal/synckeygen"
)

// Contribution is the user payload the engine carries opaquely through
// consensus. The only thing the engine ever needs from it is a canonical
// byte encoding, used both for signing and as the atomic-broadcast black
// box's wire payload.
type Contribution interface {
	Marshal() []byte
}

// Params mirrors the atomic-broadcast collaborator's tunables, re-exported
// so callers never need to import internal/honeybadger directly.
type Params = honeybadger.Params

// EncryptionSchedule controls how often a contribution is wrapped before
// being proposed.
type EncryptionSchedule = honeybadger.EncryptionSchedule

// SubsetHandlingStrategy controls how the broadcast collaborator would
// assemble an epoch's contributions.
type SubsetHandlingStrategy = honeybadger.SubsetHandlingStrategy

const (
	EncryptAlways       = honeybadger.EncryptAlways
	EncryptNever        = honeybadger.EncryptNever
	EncryptEveryNEpochs = honeybadger.EncryptEveryNEpochs

	SubsetAll         = honeybadger.SubsetAll
	SubsetIncremental = honeybadger.SubsetIncremental
)

// PubKeyMap is the current (or candidate) validator set's long-term
// identity keys. Go maps have no defined iteration order, so every place
// the spec calls for an "N-order" walk of the validator set goes through
// Keys, which sorts explicitly.
type PubKeyMap map[common.NodeID]crypto.PublicKey

// Keys returns the map's keys in ascending order.
func (m PubKeyMap) Keys() []common.NodeID {
	out := make([]common.NodeID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Len returns the number of validators in the map.
func (m PubKeyMap) Len() int { return len(m) }

// NumFaulty returns f, the maximum number of Byzantine validators the set
// can tolerate: floor((n-1)/3).
func (m PubKeyMap) NumFaulty() int { return (len(m) - 1) / 3 }

// Clone returns a shallow copy, used wherever a snapshot must outlive
// mutation of the live map.
func (m PubKeyMap) Clone() PubKeyMap {
	out := make(PubKeyMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Era is the validator-set generation number: it only advances when a
// membership or encryption-schedule change completes.
type Era uint64

// Epoch is the externally observed, strictly monotonic round counter:
// era plus the atomic-broadcast collaborator's internal epoch within it.
type Epoch struct {
	Era      Era
	HBEpoch  uint64
}

// Less reports whether e sorts before other in the total (era, hb_epoch)
// order.
func (e Epoch) Less(other Epoch) bool {
	if e.Era != other.Era {
		return e.Era < other.Era
	}
	return e.HBEpoch < other.HBEpoch
}

// Scalar returns the single strictly increasing integer external observers
// see: era plus the atomic-broadcast collaborator's internal epoch within
// it. An era that completes a change always resumes one past this value,
// never merely one past the era alone, since many hb_epochs can elapse
// within an era before a vote or DKG finishes.
func (e Epoch) Scalar() uint64 { return uint64(e.Era) + e.HBEpoch }

// NetworkInfo is the immutable, shared-by-reference snapshot of "who is in
// this era and what are its threshold keys." Every Batch and JoinPlan
// carries a pointer to one rather than copying it.
type NetworkInfo struct {
	OurID                 common.NodeID
	Validators            PubKeyMap
	ThresholdPublicKeySet crypto.ThresholdPublicKeySet
	OurSecretShare        *crypto.SecretKeyShare
}

// IsValidator reports whether id is a member of this era's validator set.
func (ni *NetworkInfo) IsValidator(id common.NodeID) bool {
	_, ok := ni.Validators[id]
	return ok
}

// NumValidators returns the validator set's size.
func (ni *NetworkInfo) NumValidators() int { return ni.Validators.Len() }

// NumFaulty returns f for this era's validator set.
func (ni *NetworkInfo) NumFaulty() int { return ni.Validators.NumFaulty() }

// ChangeKind distinguishes the two things a Change can propose.
type ChangeKind int

const (
	// ChangeNodeChange proposes a new validator set, requiring a DKG run
	// before it can complete.
	ChangeNodeChange ChangeKind = iota
	// ChangeEncryptionSchedule proposes a new encryption schedule, which
	// completes immediately without a DKG.
	ChangeEncryptionSchedule
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeNodeChange:
		return "node-change"
	case ChangeEncryptionSchedule:
		return "encryption-schedule"
	default:
		return "unknown"
	}
}

// Change is a proposed modification to consensus membership or behavior.
// It is a closed, two-variant sum type: exactly one of PubKeys (for
// ChangeNodeChange) or Schedule (for ChangeEncryptionSchedule) is set,
// selected by Kind.
type Change struct {
	Kind     ChangeKind
	PubKeys  PubKeyMap
	Schedule EncryptionSchedule
}

// NewNodeChange builds a Change proposing a new validator set.
func NewNodeChange(pubKeys PubKeyMap) Change {
	return Change{Kind: ChangeNodeChange, PubKeys: pubKeys.Clone()}
}

// NewEncryptionScheduleChange builds a Change proposing a new encryption
// schedule.
func NewEncryptionScheduleChange(schedule EncryptionSchedule) Change {
	return Change{Kind: ChangeEncryptionSchedule, Schedule: schedule}
}

// Equal reports whether c and other propose the identical change.
func (c Change) Equal(other Change) bool {
	if c.Kind != other.Kind {
		return false
	}
	switch c.Kind {
	case ChangeNodeChange:
		if len(c.PubKeys) != len(other.PubKeys) {
			return false
		}
		for id, pk := range c.PubKeys {
			opk, ok := other.PubKeys[id]
			if !ok || !pk.Equal(opk) {
				return false
			}
		}
		return true
	case ChangeEncryptionSchedule:
		return c.Schedule == other.Schedule
	default:
		return false
	}
}

// ChangeStateKind distinguishes the three states a proposed change can be
// in for a given era.
type ChangeStateKind int

const (
	// ChangeStateNone means no change is in progress or freshly completed.
	ChangeStateNone ChangeStateKind = iota
	// ChangeStateInProgress means a NodeChange won the vote and its DKG is
	// running.
	ChangeStateInProgress
	// ChangeStateComplete means a change completed in the era that just
	// closed, and is reported once in the following Batch/JoinPlan.
	ChangeStateComplete
)

func (k ChangeStateKind) String() string {
	switch k {
	case ChangeStateNone:
		return "none"
	case ChangeStateInProgress:
		return "in-progress"
	case ChangeStateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// ChangeState reports, for the era that just closed, whether a change is
// mid-flight or has just completed. The zero value is ChangeStateNone.
type ChangeState struct {
	Kind   ChangeStateKind
	Change Change
}

// NoChange is the ChangeStateNone value.
func NoChange() ChangeState { return ChangeState{Kind: ChangeStateNone} }

// InProgress builds a ChangeStateInProgress value.
func InProgress(c Change) ChangeState { return ChangeState{Kind: ChangeStateInProgress, Change: c} }

// Complete builds a ChangeStateComplete value.
func Complete(c Change) ChangeState { return ChangeState{Kind: ChangeStateComplete, Change: c} }

// Vote is what a validator signs to support a proposed Change.
type Vote struct {
	Change Change
	Era    Era
	Num    uint64
}

// SignedVote pairs a Vote with the voter's identity and signature over its
// canonical encoding.
type SignedVote struct {
	Vote      Vote
	Voter     common.NodeID
	Signature crypto.Signature
}

// KeyGenMessageKind distinguishes the DKG collaborator's two message
// shapes.
type KeyGenMessageKind int

const (
	KeyGenPart KeyGenMessageKind = iota
	KeyGenAck
)

// KeyGenMessage is a closed, two-variant sum type wrapping the DKG
// collaborator's Part/Ack messages for transport inside the engine's
// signed, piggybacked channel.
type KeyGenMessage struct {
	Kind KeyGenMessageKind
	Part synckeygen.Part
	Ack  synckeygen.Ack
}

// NewPartMessage wraps a DKG Part.
func NewPartMessage(p synckeygen.Part) KeyGenMessage {
	return KeyGenMessage{Kind: KeyGenPart, Part: p}
}

// NewAckMessage wraps a DKG Ack.
func NewAckMessage(a synckeygen.Ack) KeyGenMessage {
	return KeyGenMessage{Kind: KeyGenAck, Ack: a}
}

// SignedKeyGenMsg pairs a KeyGenMessage with the era it was issued for, the
// sender, and a signature over its canonical encoding.
type SignedKeyGenMsg struct {
	Era       Era
	Sender    common.NodeID
	Message   KeyGenMessage
	Signature crypto.Signature
}

// InternalContribution is what actually gets proposed to the atomic
// broadcast collaborator each round: the caller's own contribution,
// piggybacked with any votes and key-gen messages this node wants to
// gossip, so membership changes share the exact same total order as user
// payloads.
type InternalContribution[C Contribution] struct {
	Contribution  C
	Votes         []SignedVote
	KeyGenMessages []SignedKeyGenMsg
}

// Batch is one epoch's committed output.
type Batch[C Contribution] struct {
	Epoch         Epoch
	Contributions map[common.NodeID]C
	Change        ChangeState
	NetworkInfo   *NetworkInfo
	Params        Params
}

// Senders returns the batch's contributors in ascending NodeID order.
func (b Batch[C]) Senders() []common.NodeID {
	out := make([]common.NodeID, 0, len(b.Contributions))
	for id := range b.Contributions {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// JoinPlan is what a running node hands a newcomer so it can build its own
// engine instance without replaying history: the era to join at, whether a
// change is mid-flight, and the validator set's public material.
type JoinPlan struct {
	Era                   Era
	Change                ChangeState
	Validators            PubKeyMap
	ThresholdPublicKeySet crypto.ThresholdPublicKeySet
	Params                Params
}

// JoinPlan derives the JoinPlan a newcomer would need to pick up right
// after this batch. The joining era is the one the engine resumes at once a
// change completes: one past the batch's epoch scalar (era plus hb_epoch),
// so the newcomer starts fresh, not mid-epoch. Validators, threshold key
// set and params are copied from this batch, i.e. from the era it closes.
func (b Batch[C]) JoinPlan() JoinPlan {
	return JoinPlan{
		Era:                   Era(b.Epoch.Scalar() + 1),
		Change:                b.Change,
		Validators:            b.NetworkInfo.Validators.Clone(),
		ThresholdPublicKeySet: b.NetworkInfo.ThresholdPublicKeySet,
		Params:                b.Params,
	}
}
