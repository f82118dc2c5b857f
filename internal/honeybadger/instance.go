// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package honeybadger

import (
	"fmt"
	"sort"

	"github.com/hbft-labs/dynhb/common"
)

// Target names the recipient(s) of an outbound Message.
type Target struct {
	All    bool
	NodeID common.NodeID
}

// AllTarget is the broadcast target.
func AllTarget() Target { return Target{All: true} }

// UnicastTarget addresses a single recipient.
func UnicastTarget(id common.NodeID) Target { return Target{NodeID: id} }

// Message is the only message type this black box emits or accepts: a
// proposal broadcast by its sender for a specific epoch. A real asynchronous
// atomic broadcast protocol would carry many more message kinds (echo,
// ready, coin shares, ...); this stand-in collapses them all into "here is
// my proposal" since determinism, not liveness under partial delivery, is
// what the rest of the engine is being tested against.
type Message struct {
	Epoch    uint64
	Proposal []byte
}

// OutMessage pairs a Message with where it should go.
type OutMessage struct {
	Target  Target
	Message Message
}

// Batch is one epoch's committed output: every proposal received for that
// epoch, keyed by sender.
type Batch struct {
	Epoch         uint64
	Contributions map[common.NodeID][]byte
}

// Senders returns the batch's contributors in ascending NodeID order.
func (b Batch) Senders() []common.NodeID {
	out := make([]common.NodeID, 0, len(b.Contributions))
	for id := range b.Contributions {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Step is the result of feeding input into an Instance: zero or more
// messages to send, and zero or more batches that just completed.
type Step struct {
	Messages []OutMessage
	Batches  []Batch
}

func (s *Step) broadcast(msg Message) {
	s.Messages = append(s.Messages, OutMessage{Target: AllTarget(), Message: msg})
}

// Instance is one run of the atomic-broadcast black box for a fixed
// validator set (a "session", identified by sessionID — the engine passes
// its era). It holds no network connection and performs no I/O: the host
// calls Propose/HandleMessage and is responsible for actually delivering
// the Messages a Step returns.
type Instance struct {
	ourID      common.NodeID
	validators []common.NodeID
	sessionID  uint64
	params     Params

	epoch     uint64
	hasInput  bool
	proposals map[common.NodeID][]byte
	future    map[uint64]map[common.NodeID][]byte
}

// New creates an Instance for the given validator set, starting at
// startEpoch. validators need not be pre-sorted.
func New(ourID common.NodeID, validators []common.NodeID, sessionID uint64, startEpoch uint64, params Params) *Instance {
	sorted := append([]common.NodeID(nil), validators...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })
	return &Instance{
		ourID:      ourID,
		validators: sorted,
		sessionID:  sessionID,
		params:     params,
		epoch:      startEpoch,
		proposals:  make(map[common.NodeID][]byte),
		future:     make(map[uint64]map[common.NodeID][]byte),
	}
}

// SessionID returns the session (era) this instance was built for.
func (hb *Instance) SessionID() uint64 { return hb.sessionID }

// Epoch returns the current, not-yet-output epoch.
func (hb *Instance) Epoch() uint64 { return hb.epoch }

// HasInput reports whether we have already proposed for the current epoch.
func (hb *Instance) HasInput() bool { return hb.hasInput }

// NumValidators returns the size of the validator set.
func (hb *Instance) NumValidators() int { return len(hb.validators) }

// IsValidator reports whether id is a member of this session's validator set.
func (hb *Instance) IsValidator(id common.NodeID) bool {
	for _, v := range hb.validators {
		if v == id {
			return true
		}
	}
	return false
}

// ReceivedProposals returns the number of proposals received from other
// validators for the current epoch (our own proposal, if any, excluded).
func (hb *Instance) ReceivedProposals() int {
	n := len(hb.proposals)
	if _, ok := hb.proposals[hb.ourID]; ok {
		n--
	}
	return n
}

// Propose submits our contribution for the current epoch.
func (hb *Instance) Propose(payload []byte) (Step, error) {
	if hb.hasInput {
		return Step{}, fmt.Errorf("honeybadger: already proposed for epoch %d", hb.epoch)
	}
	hb.hasInput = true
	hb.proposals[hb.ourID] = payload

	var step Step
	step.broadcast(Message{Epoch: hb.epoch, Proposal: payload})
	hb.tryFinalize(&step)
	return step, nil
}

// HandleMessage processes a Message received from sender.
func (hb *Instance) HandleMessage(sender common.NodeID, msg Message) (Step, error) {
	if !hb.IsValidator(sender) {
		return Step{}, fmt.Errorf("honeybadger: message from non-validator %s", sender.Hex())
	}
	var step Step
	switch {
	case msg.Epoch < hb.epoch:
		// stale, already finalized; ignore.
	case msg.Epoch == hb.epoch:
		if _, dup := hb.proposals[sender]; !dup {
			hb.proposals[sender] = msg.Proposal
		}
		hb.tryFinalize(&step)
	case msg.Epoch <= hb.epoch+hb.params.MaxFutureEpochs:
		bucket := hb.future[msg.Epoch]
		if bucket == nil {
			bucket = make(map[common.NodeID][]byte)
			hb.future[msg.Epoch] = bucket
		}
		if _, dup := bucket[sender]; !dup {
			bucket[sender] = msg.Proposal
		}
	default:
		return Step{}, fmt.Errorf("honeybadger: message for epoch %d exceeds max_future_epochs beyond %d", msg.Epoch, hb.epoch)
	}
	return step, nil
}

// tryFinalize closes out the current epoch once every validator's proposal
// has arrived, then pulls in any buffered future messages and repeats —
// covering the case where late deliveries let several epochs complete in
// one call.
func (hb *Instance) tryFinalize(step *Step) {
	for len(hb.proposals) >= len(hb.validators) && len(hb.validators) > 0 {
		contributions := make(map[common.NodeID][]byte, len(hb.proposals))
		for k, v := range hb.proposals {
			contributions[k] = v
		}
		step.Batches = append(step.Batches, Batch{Epoch: hb.epoch, Contributions: contributions})

		hb.epoch++
		hb.hasInput = false
		hb.proposals = hb.future[hb.epoch]
		if hb.proposals == nil {
			hb.proposals = make(map[common.NodeID][]byte)
		}
		delete(hb.future, hb.epoch)
	}
}
