// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package main

import (
	"encoding/json"
	"fmt"

	"github.com/hbft-labs/dynhb/common"
	"github.com/hbft-labs/dynhb/consensus/dynhb"
	"github.com/hbft-labs/dynhb/crypto"
)

// joinPlanView is the non-canonical JSON rendering of a dynhb.JoinPlan: the
// wire/canonical form lives in the engine itself and is never produced
// here, this is purely what the CLI reads and writes on disk.
type joinPlanView struct {
	Era        uint64            `json:"era"`
	ChangeKind string            `json:"change_kind"`
	Candidates map[string]string `json:"candidates,omitempty"`
	Validators map[string]string `json:"validators"`
	Threshold  int               `json:"threshold"`
	Master     string            `json:"master_commitment"`
	Params     dynhb.Params      `json:"params"`
}

func pubKeyMapView(m dynhb.PubKeyMap) map[string]string {
	out := make(map[string]string, len(m))
	for _, id := range m.Keys() {
		out[id.Hex()] = "0x" + hexEncode(m[id].Bytes())
	}
	return out
}

func hexEncode(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hexDigits[v>>4]
		out[i*2+1] = hexDigits[v&0xf]
	}
	return string(out)
}

func parsePubKeyMapView(v map[string]string) (dynhb.PubKeyMap, error) {
	out := make(dynhb.PubKeyMap, len(v))
	for idHex, pkHex := range v {
		pk, err := crypto.PublicKeyFromBytes(common.FromHex(pkHex))
		if err != nil {
			return nil, fmt.Errorf("validator %s: %w", idHex, err)
		}
		out[common.HexToNodeID(idHex)] = pk
	}
	return out, nil
}

func newJoinPlanView(plan dynhb.JoinPlan) joinPlanView {
	view := joinPlanView{
		Era:        uint64(plan.Era),
		ChangeKind: plan.Change.Kind.String(),
		Validators: pubKeyMapView(plan.Validators),
		Threshold:  plan.ThresholdPublicKeySet.Threshold(),
		Params:     plan.Params,
	}
	master := plan.ThresholdPublicKeySet.MasterCommitment()
	view.Master = "0x" + hexEncode(master[:])
	if plan.Change.Kind == dynhb.ChangeStateInProgress && plan.Change.Change.Kind == dynhb.ChangeNodeChange {
		view.Candidates = pubKeyMapView(plan.Change.Change.PubKeys)
	}
	return view
}

func (v joinPlanView) toJoinPlan() (dynhb.JoinPlan, error) {
	validators, err := parsePubKeyMapView(v.Validators)
	if err != nil {
		return dynhb.JoinPlan{}, err
	}
	var master [32]byte
	copy(master[:], common.FromHex(v.Master))

	change := dynhb.NoChange()
	switch v.ChangeKind {
	case "in-progress":
		candidates, err := parsePubKeyMapView(v.Candidates)
		if err != nil {
			return dynhb.JoinPlan{}, err
		}
		change = dynhb.InProgress(dynhb.NewNodeChange(candidates))
	case "complete":
		change = dynhb.Complete(dynhb.NewNodeChange(validators))
	}

	return dynhb.JoinPlan{
		Era:                   dynhb.Era(v.Era),
		Change:                change,
		Validators:            validators,
		ThresholdPublicKeySet: crypto.NewMasterOnlyThresholdKeySet(v.Threshold, master),
		Params:                v.Params,
	}, nil
}

func marshalJoinPlan(plan dynhb.JoinPlan) ([]byte, error) {
	return json.MarshalIndent(newJoinPlanView(plan), "", "  ")
}

func unmarshalJoinPlan(data []byte) (dynhb.JoinPlan, error) {
	var view joinPlanView
	if err := json.Unmarshal(data, &view); err != nil {
		return dynhb.JoinPlan{}, fmt.Errorf("parsing join plan: %w", err)
	}
	return view.toJoinPlan()
}
