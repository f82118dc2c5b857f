// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package main

// textPayload is the dynhb-node binary's chosen application contribution
// type: an opaque line of operator-supplied text. A real deployment would
// swap this for its own domain payload; the engine itself is generic over
// any type implementing dynhb.Contribution.
type textPayload []byte

func (t textPayload) Marshal() []byte { return []byte(t) }

func unmarshalTextPayload(b []byte) (textPayload, error) { return textPayload(b), nil }
