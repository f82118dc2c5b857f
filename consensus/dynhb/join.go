// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package dynhb

import (
	"github.com/hbft-labs/dynhb/common"
	"github.com/hbft-labs/dynhb/crypto"
	"github.com/hbft-labs/dynhb/internal/honeybadger"
)

// NewJoining builds an engine for a node that just joined via a JoinPlan
// handed to it by an already-running validator, skipping the need to
// replay history. If the plan's Change is InProgress, the only kind that
// can be (an EncryptionSchedule change always completes immediately, never
// leaving a JoinPlan observing it mid-flight), the newcomer starts its own
// DKG instance for that same candidate set rather than waiting to observe
// one: it is itself one of the candidate validators the running DKG is
// generating keys for, so it must participate from the start.
func NewJoining[C Contribution](plan JoinPlan, ourID common.NodeID, secretKey crypto.SecretKey, ourShare *crypto.SecretKeyShare, unmarshal func([]byte) (C, error)) (*DynamicEngine[C], []SignedKeyGenMsg, error) {
	if err := validateJoinPlan(plan); err != nil {
		return nil, nil, err
	}
	netInfo := &NetworkInfo{
		OurID:                 ourID,
		Validators:            plan.Validators.Clone(),
		ThresholdPublicKeySet: plan.ThresholdPublicKeySet,
		OurSecretShare:        ourShare,
	}
	e := &DynamicEngine[C]{
		ourID:       ourID,
		secretKey:   secretKey,
		unmarshal:   unmarshal,
		era:         plan.Era,
		netInfo:     netInfo,
		params:      plan.Params,
		hb:          honeybadger.New(ourID, plan.Validators.Keys(), uint64(plan.Era), 0, plan.Params),
		voteCounter: NewVoteCounter(ourID, plan.Era),
	}

	var toSend []SignedKeyGenMsg
	if plan.Change.Kind == ChangeStateInProgress && plan.Change.Change.Kind == ChangeNodeChange {
		if _, err := e.startKeyGen(plan.Change.Change); err != nil {
			return nil, nil, err
		}
		toSend = e.ourKeyGenMsgs
		e.ourKeyGenMsgs = nil
	}
	return e, toSend, nil
}

// validateJoinPlan checks that a change the plan reports as already
// complete is actually consistent with the plan's own validator set and
// params, rejecting a corrupted or tampered plan before it ever seeds a new
// engine instance.
func validateJoinPlan(plan JoinPlan) error {
	if plan.Change.Kind != ChangeStateComplete {
		return nil
	}
	switch plan.Change.Change.Kind {
	case ChangeNodeChange:
		if !NewNodeChange(plan.Validators).Equal(plan.Change.Change) {
			return ErrInvalidJoinPlan
		}
	case ChangeEncryptionSchedule:
		if plan.Change.Change.Schedule != plan.Params.EncryptionSchedule {
			return ErrInvalidJoinPlan
		}
	}
	return nil
}
