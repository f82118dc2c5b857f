// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package dynhb

import (
	"github.com/hbft-labs/dynhb/common"
	"github.com/hbft-labs/dynhb/internal/honeybadger"
)

// MessageKind distinguishes the three wire message shapes a running engine
// ever sends or receives.
type MessageKind int

const (
	// MessageHoneyBadger carries a message for the atomic-broadcast
	// collaborator, tagged with the era it belongs to.
	MessageHoneyBadger MessageKind = iota
	// MessageKeyGen carries a standalone signed DKG Part/Ack, gossiped
	// ahead of the next batch so a slow key-gen round does not wait on it.
	MessageKeyGen
	// MessageSignedVote carries a standalone signed vote, gossiped the
	// same way.
	MessageSignedVote
)

// Message is the closed, three-variant sum type every Message the engine
// exchanges with a peer belongs to. Exactly one of the payload fields is
// meaningful, selected by Kind.
type Message struct {
	Kind        MessageKind
	Era         Era
	HoneyBadger honeybadger.Message
	KeyGen      SignedKeyGenMsg
	Vote        SignedVote
}

// NewHoneyBadgerMessage wraps a message for the atomic-broadcast
// collaborator.
func NewHoneyBadgerMessage(era Era, msg honeybadger.Message) Message {
	return Message{Kind: MessageHoneyBadger, Era: era, HoneyBadger: msg}
}

// NewKeyGenMessage wraps a standalone signed key-gen message.
func NewKeyGenMessage(era Era, msg SignedKeyGenMsg) Message {
	return Message{Kind: MessageKeyGen, Era: era, KeyGen: msg}
}

// NewVoteMessage wraps a standalone signed vote.
func NewVoteMessage(vote SignedVote) Message {
	return Message{Kind: MessageSignedVote, Era: vote.Vote.Era, Vote: vote}
}

// Target names the recipient(s) of an outbound Message: either every
// current validator, or one specific node (used for unicasting key-gen
// Acks back to the dealer they acknowledge).
type Target struct {
	All    bool
	NodeID common.NodeID
}

// AllTarget is the broadcast target.
func AllTarget() Target { return Target{All: true} }

// UnicastTarget addresses a single recipient.
func UnicastTarget(id common.NodeID) Target { return Target{NodeID: id} }

// OutMessage pairs a Message with where it should go.
type OutMessage struct {
	Target  Target
	Message Message
}
