// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

// Package dynhb is the deterministic, single-threaded core of a
// dynamic-membership Honey Badger BFT engine. It performs no I/O, starts no
// goroutines, and owns no timers — every method call is a pure function of
// the engine's current state and its argument, returning whatever messages
// and batches that one call produced. All scheduling, retry, and fan-out
// belongs to the host driving it (see cmd/dynhb-node), never to this
// package.
package dynhb

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/hbft-labs/dynhb/common"
	"github.com/hbft-labs/dynhb/crypto"
	"github.com/hbft-labs/dynhb/internal/honeybadger"
	"github.com/hbft-labs/dynhb/internal/xlog"
)

// Step is everything one call into the engine produced: messages to send
// and batches that committed.
type Step[C Contribution] struct {
	Messages []OutMessage
	Batches  []Batch[C]
	Faults   FaultLog
}

func (s *Step[C]) broadcast(msg Message) {
	s.Messages = append(s.Messages, OutMessage{Target: AllTarget(), Message: msg})
}

func (s *Step[C]) unicast(to common.NodeID, msg Message) {
	s.Messages = append(s.Messages, OutMessage{Target: UnicastTarget(to), Message: msg})
}

// DynamicEngine is one validator's view of the protocol: the atomic
// broadcast collaborator for the current era, the vote counter tracking
// support for a membership or schedule change, and — while one is running
// — the DKG state for the change that won the vote.
type DynamicEngine[C Contribution] struct {
	ourID     common.NodeID
	secretKey crypto.SecretKey
	unmarshal func([]byte) (C, error)

	era         Era
	netInfo     *NetworkInfo
	params      Params
	hb          *honeybadger.Instance
	voteCounter *VoteCounter

	keyGen        *KeyGenState
	pendingChange Change
	ourKeyGenMsgs []SignedKeyGenMsg

	terminated bool
}

// OurID returns this engine's own validator identity.
func (e *DynamicEngine[C]) OurID() common.NodeID { return e.ourID }

// Era returns the current era.
func (e *DynamicEngine[C]) Era() Era { return e.era }

// NetworkInfo returns the current era's validator-set snapshot.
func (e *DynamicEngine[C]) NetworkInfo() *NetworkInfo { return e.netInfo }

// Terminated reports whether this engine has permanently stopped (it
// never does on its own; a host can mark a local shutdown by not calling
// it further — Terminated exists for symmetry with the capability pattern
// other consensus engines in this family expose).
func (e *DynamicEngine[C]) Terminated() bool { return e.terminated }

// ShouldPropose reports whether this node is lagging the quorum and should
// propose (even an empty) contribution to avoid stalling the round: it has
// not yet proposed this epoch, and strictly more than f peers already have.
func (e *DynamicEngine[C]) ShouldPropose() bool {
	return !e.hb.HasInput() && e.hb.ReceivedProposals() > e.netInfo.NumFaulty()
}

// VoteToAdd signs and broadcasts a vote proposing to add id (with its
// long-term key pk) to the validator set. A no-op if we are not ourselves a
// current validator: only validators may vote.
func (e *DynamicEngine[C]) VoteToAdd(id common.NodeID, pk crypto.PublicKey) Step[C] {
	next := e.netInfo.Validators.Clone()
	next[id] = pk
	return e.voteFor(NewNodeChange(next))
}

// VoteToRemove signs and broadcasts a vote proposing to remove id from the
// validator set. A no-op if we are not ourselves a current validator.
func (e *DynamicEngine[C]) VoteToRemove(id common.NodeID) Step[C] {
	next := e.netInfo.Validators.Clone()
	delete(next, id)
	return e.voteFor(NewNodeChange(next))
}

// VoteForEncryptionSchedule signs and broadcasts a vote proposing a new
// encryption schedule. A no-op if we are not ourselves a current validator.
func (e *DynamicEngine[C]) VoteForEncryptionSchedule(schedule EncryptionSchedule) Step[C] {
	return e.voteFor(NewEncryptionScheduleChange(schedule))
}

// voteFor signs, queues for piggyback, and eagerly broadcasts a vote for
// change, so vote progress does not wait on this node's next proposed
// contribution to reach peers.
func (e *DynamicEngine[C]) voteFor(change Change) Step[C] {
	var step Step[C]
	if !e.netInfo.IsValidator(e.ourID) {
		return step
	}
	sv := e.voteCounter.SignVoteFor(change, e.secretKey)
	step.broadcast(NewVoteMessage(sv))
	return step
}

// Propose submits contribution for the current epoch, piggybacking every
// pending vote and key-gen message this node has queued for gossip.
func (e *DynamicEngine[C]) Propose(contribution C) (Step[C], error) {
	if e.terminated {
		return Step[C]{}, ErrAlreadyTerminated
	}
	ic := InternalContribution[C]{
		Contribution:   contribution,
		Votes:          e.voteCounter.PendingVotes(),
		KeyGenMessages: e.ourKeyGenMsgs,
	}
	e.ourKeyGenMsgs = nil

	payload := encodeInternalContribution(ic)
	hbStep, err := e.hb.Propose(payload)
	if err != nil {
		return Step[C]{}, fmt.Errorf("%w: %w", ErrProposeHoneyBadger, err)
	}
	return e.applyHBStep(hbStep)
}

// HandleMessage processes one wire message from sender.
func (e *DynamicEngine[C]) HandleMessage(sender common.NodeID, msg Message) (Step[C], error) {
	if e.terminated {
		return Step[C]{}, ErrAlreadyTerminated
	}
	var step Step[C]
	switch {
	case msg.Era > e.era:
		step.Faults.Append(sender, FaultUnexpectedDhbMessageEra, "message era is ahead of current era")
		return step, nil
	case msg.Era < e.era:
		// A message from an era that has already closed. The sender is
		// not at fault — it is simply behind, or this is a slow straggler
		// from our own past — so it is dropped silently.
		return step, nil
	}
	switch msg.Kind {
	case MessageHoneyBadger:
		if !e.netInfo.IsValidator(sender) {
			step.Faults.Append(sender, FaultUnknownSender, "honey badger message from non-validator")
			return step, nil
		}
		hbStep, err := e.hb.HandleMessage(sender, msg.HoneyBadger)
		if err != nil {
			step.Faults.Append(sender, FaultHoneyBadger, err.Error())
			return step, nil
		}
		return e.applyHBStep(hbStep)
	case MessageKeyGen:
		e.handleStandaloneKeyGen(sender, msg.KeyGen, &step)
		return step, nil
	case MessageSignedVote:
		log := e.voteCounter.AddPendingVote(sender, msg.Vote, e.netInfo.Validators)
		step.Faults.Merge(log)
		return step, nil
	default:
		return step, fmt.Errorf("dynhb: unknown message kind %d", msg.Kind)
	}
}

func (e *DynamicEngine[C]) handleStandaloneKeyGen(sender common.NodeID, skm SignedKeyGenMsg, step *Step[C]) {
	if e.keyGen == nil {
		step.Faults.Append(sender, FaultUnexpectedKeyGenMessage, "no key generation is in progress")
		return
	}
	if e.keyGen.CountMessages(sender) > maxKeyGenMessagesPerSender {
		step.Faults.Append(sender, FaultTooManyKeyGenMessages, "sender exceeded per-run key-gen message quota")
		return
	}
	if !e.verifyKeyGenSignature(sender, skm) {
		step.Faults.Append(sender, FaultInvalidKeyGenMessageSignature, "key-gen message signature does not verify")
		return
	}
	e.applyKeyGenMessage(sender, skm, step)
}

// verifyKeyGenSignature checks a key-gen message's signature against either
// the current era's validator keys or, if a DKG is running, the candidate
// validator set it is generating keys for — the two-tier check needed
// because the sender may be a brand-new validator who is not yet in
// e.netInfo.Validators.
func (e *DynamicEngine[C]) verifyKeyGenSignature(sender common.NodeID, skm SignedKeyGenMsg) bool {
	bytesToVerify := canonicalKeyGenMsgBytes(skm.Message)
	if pk, ok := e.netInfo.Validators[sender]; ok {
		if crypto.VerifyCached(pk, skm.Signature, bytesToVerify) {
			return true
		}
	}
	if e.keyGen != nil {
		if pk, ok := e.keyGen.PublicKeys()[sender]; ok {
			if crypto.VerifyCached(pk, skm.Signature, bytesToVerify) {
				return true
			}
		}
	}
	return false
}

func (e *DynamicEngine[C]) applyKeyGenMessage(sender common.NodeID, skm SignedKeyGenMsg, step *Step[C]) {
	switch skm.Message.Kind {
	case KeyGenPart:
		outcome := e.keyGen.HandlePart(sender, skm.Message.Part)
		if outcome.Fault != nil {
			step.Faults.Append(sender, FaultSyncKeyGenPart, outcome.Fault.Error())
			return
		}
		if outcome.Ack != nil {
			ackMsg := e.signKeyGenMessage(NewAckMessage(*outcome.Ack))
			e.ourKeyGenMsgs = append(e.ourKeyGenMsgs, ackMsg)
			step.unicast(skm.Message.Part.Dealer, NewKeyGenMessage(e.era, ackMsg))
		}
	case KeyGenAck:
		outcome := e.keyGen.HandleAck(sender, skm.Message.Ack)
		if outcome.Fault != nil {
			step.Faults.Append(sender, FaultSyncKeyGenAck, outcome.Fault.Error())
		}
	}
}

func (e *DynamicEngine[C]) signKeyGenMessage(msg KeyGenMessage) SignedKeyGenMsg {
	sig := e.secretKey.Sign(canonicalKeyGenMsgBytes(msg))
	return SignedKeyGenMsg{Era: e.era, Sender: e.ourID, Message: msg, Signature: sig}
}

// applyHBStep translates one honeybadger.Step into a dynhb Step, running
// every newly committed batch through processOutput — the heart of the
// engine, where votes land, key-gen messages get routed, and a completed
// change takes effect for the next era.
func (e *DynamicEngine[C]) applyHBStep(hbStep honeybadger.Step) (Step[C], error) {
	var step Step[C]
	for _, m := range hbStep.Messages {
		wrapped := NewHoneyBadgerMessage(e.era, m.Message)
		if m.Target.All {
			step.broadcast(wrapped)
		} else {
			step.unicast(m.Target.NodeID, wrapped)
		}
	}
	for _, b := range hbStep.Batches {
		out, err := e.processOutput(b)
		if err != nil {
			return step, err
		}
		step.Batches = append(step.Batches, out.batch)
		step.Faults.Merge(out.faults)
		step.Messages = append(step.Messages, out.messages...)
	}
	return step, nil
}

type processedOutput[C Contribution] struct {
	batch    Batch[C]
	faults   FaultLog
	messages []OutMessage
}

// processOutput consumes one closed honeybadger epoch: it decodes every
// sender's contribution, commits the votes and key-gen messages piggybacked
// on it, decides whether a change just completed, and — only after
// building this era's Batch — applies any era-advancing side effect
// (restarting the broadcast collaborator, rotating NetworkInfo) so the
// Batch it returns still describes the era it closed, not the one that
// follows.
func (e *DynamicEngine[C]) processOutput(raw honeybadger.Batch) (processedOutput[C], error) {
	var out processedOutput[C]

	contributions := make(map[common.NodeID]C, len(raw.Contributions))
	var allKeyGen []SignedKeyGenMsg

	for _, sender := range raw.Senders() {
		envelope, err := decodeInternalContribution(raw.Contributions[sender])
		if err != nil {
			out.faults.Append(sender, FaultUnknownSender, err.Error())
			continue
		}
		c, err := e.unmarshal(envelope.contribBytes)
		if err != nil {
			out.faults.Append(sender, FaultUnknownSender, "contribution failed to decode")
			continue
		}
		contributions[sender] = c
		// Faults for piggybacked votes are tagged to sender, the batch
		// contributor that carried them, never to the claimed voter inside
		// the (forgeable) vote payload itself.
		out.faults.Merge(e.voteCounter.AddCommittedVotes(sender, envelope.votes, e.netInfo.Validators))
		allKeyGen = append(allKeyGen, envelope.keyGenMessages...)
	}

	for _, skm := range allKeyGen {
		if skm.Era != e.era {
			out.faults.Append(skm.Sender, FaultInvalidKeyGenMessageEra, "piggybacked key-gen message era mismatch")
			continue
		}
		if e.keyGen == nil {
			out.faults.Append(skm.Sender, FaultUnexpectedKeyGenMessage, "no key generation is in progress")
			continue
		}
		if e.keyGen.CountMessages(skm.Sender) > maxKeyGenMessagesPerSender {
			out.faults.Append(skm.Sender, FaultTooManyKeyGenMessages, "sender exceeded per-run key-gen message quota")
			continue
		}
		if !e.verifyKeyGenSignature(skm.Sender, skm) {
			out.faults.Append(skm.Sender, FaultInvalidKeyGenMessageSignature, "key-gen message signature does not verify")
			continue
		}
		var step Step[C]
		e.applyKeyGenMessage(skm.Sender, skm, &step)
		out.messages = append(out.messages, step.Messages...)
		out.faults.Merge(step.Faults)
	}

	// The new era always starts one past the rebased external epoch this
	// batch just closed at, never merely the old era plus one: several
	// honey-badger epochs may have elapsed within the current era before a
	// vote or DKG completes, and epoch must stay strictly increasing.
	nextEra := Era(Epoch{Era: e.era, HBEpoch: raw.Epoch}.Scalar() + 1)

	changeState := NoChange()
	if e.keyGen != nil && e.keyGen.IsReady() {
		pks, share, err := e.keyGen.Generate()
		if err != nil {
			return out, fmt.Errorf("%w: %w", ErrSyncKeyGen, err)
		}
		changeState = Complete(e.pendingChange)
		out.batch = e.buildBatch(raw.Epoch, contributions, changeState)
		added, removed := diffValidators(e.netInfo.Validators, e.pendingChange.PubKeys)
		e.restartEra(nextEra, e.pendingChange.PubKeys, pks, &share, e.params)
		e.keyGen = nil
		xlog.Info("dynhb: node change completed", "era", uint64(e.era), "added", len(added), "removed", len(removed))
		return out, nil
	}

	if e.keyGen == nil {
		if winner := e.voteCounter.ComputeWinner(e.netInfo.Validators); winner != nil {
			switch winner.Kind {
			case ChangeNodeChange:
				changeState = InProgress(*winner)
				out.batch = e.buildBatch(raw.Epoch, contributions, changeState)
				kgStep, err := e.startKeyGen(*winner)
				if err != nil {
					return out, err
				}
				out.messages = append(out.messages, kgStep.Messages...)
				return out, nil
			case ChangeEncryptionSchedule:
				changeState = Complete(*winner)
				out.batch = e.buildBatch(raw.Epoch, contributions, changeState)
				newParams := e.params
				newParams.EncryptionSchedule = winner.Schedule
				e.restartEra(nextEra, e.netInfo.Validators, e.netInfo.ThresholdPublicKeySet, e.netInfo.OurSecretShare, newParams)
				return out, nil
			}
		}
	}

	out.batch = e.buildBatch(raw.Epoch, contributions, changeState)
	return out, nil
}

func (e *DynamicEngine[C]) buildBatch(hbEpoch uint64, contributions map[common.NodeID]C, changeState ChangeState) Batch[C] {
	return Batch[C]{
		Epoch:         Epoch{Era: e.era, HBEpoch: hbEpoch},
		Contributions: contributions,
		Change:        changeState,
		NetworkInfo:   e.netInfo,
		Params:        e.params,
	}
}

// startKeyGen begins a DKG run for a candidate validator set that just won
// the vote, eagerly broadcasting our own Part so a slow run does not wait on
// our next proposed contribution to carry it. A no-op if we are not
// ourselves a member of the candidate set: only candidates need a share of
// the new key.
func (e *DynamicEngine[C]) startKeyGen(winner Change) (Step[C], error) {
	var step Step[C]
	if _, ok := winner.PubKeys[e.ourID]; !ok {
		return step, nil
	}
	participants := winner.PubKeys.Keys()
	threshold := winner.PubKeys.NumFaulty()
	kg, part, err := NewKeyGenState(e.ourID, participants, threshold, winner.PubKeys)
	if err != nil {
		return step, fmt.Errorf("%w: %w", ErrSyncKeyGen, err)
	}
	e.keyGen = kg
	e.pendingChange = winner
	partMsg := e.signKeyGenMessage(NewPartMessage(part))
	e.ourKeyGenMsgs = append(e.ourKeyGenMsgs, partMsg)
	step.broadcast(NewKeyGenMessage(e.era, partMsg))
	return step, nil
}

// restartEra rotates the engine onto a new era: a fresh NetworkInfo, a
// fresh atomic-broadcast collaborator instance at hb_epoch 0, and a fresh
// vote counter — votes and key-gen progress belong to the era that closed,
// never to the one that follows.
func (e *DynamicEngine[C]) restartEra(newEra Era, validators PubKeyMap, pks crypto.ThresholdPublicKeySet, share *crypto.SecretKeyShare, params Params) {
	e.era = newEra
	e.netInfo = &NetworkInfo{
		OurID:                 e.ourID,
		Validators:            validators.Clone(),
		ThresholdPublicKeySet: pks,
		OurSecretShare:        share,
	}
	e.params = params
	e.hb = honeybadger.New(e.ourID, validators.Keys(), uint64(newEra), 0, params)
	e.voteCounter = NewVoteCounter(e.ourID, newEra)
	e.ourKeyGenMsgs = nil

	xlog.Info("dynhb: era advanced", "era", uint64(newEra), "validators", len(validators))
}

// diffValidators reports which ids a NodeChange adds and removes, for
// fault/log messages: the engine itself never branches on the diff, only
// logs it, so a plain set difference is all that's needed.
func diffValidators(old, next PubKeyMap) (added, removed []common.NodeID) {
	oldSet := mapset.NewThreadUnsafeSet(old.Keys()...)
	newSet := mapset.NewThreadUnsafeSet(next.Keys()...)
	return newSet.Difference(oldSet).ToSlice(), oldSet.Difference(newSet).ToSlice()
}
