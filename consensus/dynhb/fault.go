// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package dynhb

import "github.com/hbft-labs/dynhb/common"

// FaultKind enumerates every way a remote node's message can be
// attributable misbehavior rather than a local failure. Faults are logged
// and the offending message is dropped; they never abort processing of the
// rest of a batch, matching the engine's Fault/Error split (a bad message
// from node X must never stop honest nodes Y and Z's messages in the same
// batch from being processed).
type FaultKind int

const (
	FaultUnknownSender FaultKind = iota
	FaultUnexpectedDhbMessageEra
	FaultInvalidKeyGenMessageSignature
	FaultUnexpectedKeyGenMessage
	FaultTooManyKeyGenMessages
	FaultInvalidKeyGenMessageEra
	FaultUnexpectedKeyGenPart
	FaultUnexpectedKeyGenAck
	FaultSyncKeyGenPart
	FaultSyncKeyGenAck
	FaultInvalidVoteSignature
	FaultInvalidCommittedVote
	FaultHoneyBadger
)

func (k FaultKind) String() string {
	switch k {
	case FaultUnknownSender:
		return "unknown-sender"
	case FaultUnexpectedDhbMessageEra:
		return "unexpected-dhb-message-era"
	case FaultInvalidKeyGenMessageSignature:
		return "invalid-key-gen-message-signature"
	case FaultUnexpectedKeyGenMessage:
		return "unexpected-key-gen-message"
	case FaultTooManyKeyGenMessages:
		return "too-many-key-gen-messages"
	case FaultInvalidKeyGenMessageEra:
		return "invalid-key-gen-message-era"
	case FaultUnexpectedKeyGenPart:
		return "unexpected-key-gen-part"
	case FaultUnexpectedKeyGenAck:
		return "unexpected-key-gen-ack"
	case FaultSyncKeyGenPart:
		return "sync-key-gen-part"
	case FaultSyncKeyGenAck:
		return "sync-key-gen-ack"
	case FaultInvalidVoteSignature:
		return "invalid-vote-signature"
	case FaultInvalidCommittedVote:
		return "invalid-committed-vote"
	case FaultHoneyBadger:
		return "honey-badger"
	default:
		return "unknown-fault"
	}
}

// Fault attributes a FaultKind to the node responsible for it, plus an
// optional underlying reason for logging.
type Fault struct {
	Node   common.NodeID
	Kind   FaultKind
	Reason string
}

// FaultLog accumulates the faults observed while processing one input or
// message, mirroring the teacher's pattern of returning an accumulated log
// rather than aborting on the first bad actor.
type FaultLog struct {
	Faults []Fault
}

// Append records a fault.
func (f *FaultLog) Append(node common.NodeID, kind FaultKind, reason string) {
	f.Faults = append(f.Faults, Fault{Node: node, Kind: kind, Reason: reason})
}

// IsEmpty reports whether no faults were recorded.
func (f *FaultLog) IsEmpty() bool { return len(f.Faults) == 0 }

// Merge appends other's faults onto f.
func (f *FaultLog) Merge(other FaultLog) {
	f.Faults = append(f.Faults, other.Faults...)
}
