// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package dynhb

import "errors"

// Local failures the engine returns to its caller. These are distinct from
// Fault: an Error means this node itself could not make progress (a local
// signing failure, a malformed local input), never an accusation against a
// peer.
var (
	ErrInvalidJoinPlan          = errors.New("dynhb: invalid join plan")
	ErrSerializeVote            = errors.New("dynhb: failed to serialize vote")
	ErrSerializeKeyGenMessage   = errors.New("dynhb: failed to serialize key-gen message")
	ErrSyncKeyGen               = errors.New("dynhb: sync key-gen failure")
	ErrProposeHoneyBadger       = errors.New("dynhb: failed to propose to honey badger")
	ErrHandleHoneyBadgerMessage = errors.New("dynhb: failed to handle honey badger message")
	ErrUnknownSender            = errors.New("dynhb: message from unknown sender")
	ErrAlreadyTerminated        = errors.New("dynhb: engine already terminated")
	ErrNotAValidator            = errors.New("dynhb: we are not a validator in this era")
)
