// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hbft-labs/dynhb/common"
	"github.com/hbft-labs/dynhb/consensus/dynhb"
	"github.com/hbft-labs/dynhb/crypto"
)

func genesisValidators(t *testing.T, n int) dynhb.PubKeyMap {
	t.Helper()
	out := make(dynhb.PubKeyMap, n)
	for i := 0; i < n; i++ {
		sk, err := crypto.GenerateSecretKey()
		require.NoError(t, err)
		id := common.BytesToNodeID([]byte{byte(i + 1)})
		out[id] = sk.PublicKey()
	}
	return out
}

func TestJoinPlanRoundTripNoChange(t *testing.T) {
	validators := genesisValidators(t, 4)
	_, pks, err := crypto.GenerateThresholdShares(2, 4)
	require.NoError(t, err)

	plan := dynhb.JoinPlan{
		Era:                   3,
		Change:                dynhb.NoChange(),
		Validators:            validators,
		ThresholdPublicKeySet: pks,
		Params:                dynhb.Params{MaxFutureEpochs: 3},
	}

	data, err := marshalJoinPlan(plan)
	require.NoError(t, err)

	got, err := unmarshalJoinPlan(data)
	require.NoError(t, err)

	require.Equal(t, plan.Era, got.Era)
	require.Equal(t, dynhb.ChangeStateNone, got.Change.Kind)
	require.Equal(t, len(plan.Validators), len(got.Validators))
	require.Equal(t, plan.ThresholdPublicKeySet.Threshold(), got.ThresholdPublicKeySet.Threshold())
	require.True(t, plan.ThresholdPublicKeySet.Equal(got.ThresholdPublicKeySet))
	for id, pk := range plan.Validators {
		gotPK, ok := got.Validators[id]
		require.True(t, ok)
		require.True(t, pk.Equal(gotPK))
	}
}

func TestJoinPlanRoundTripInProgress(t *testing.T) {
	validators := genesisValidators(t, 3)
	candidates := genesisValidators(t, 4)
	_, pks, err := crypto.GenerateThresholdShares(1, 3)
	require.NoError(t, err)

	plan := dynhb.JoinPlan{
		Era:                   1,
		Change:                dynhb.InProgress(dynhb.NewNodeChange(candidates)),
		Validators:            validators,
		ThresholdPublicKeySet: pks,
		Params:                dynhb.Params{MaxFutureEpochs: 1},
	}

	data, err := marshalJoinPlan(plan)
	require.NoError(t, err)

	got, err := unmarshalJoinPlan(data)
	require.NoError(t, err)

	require.Equal(t, dynhb.ChangeStateInProgress, got.Change.Kind)
	require.Equal(t, dynhb.ChangeNodeChange, got.Change.Change.Kind)
	require.Equal(t, len(candidates), len(got.Change.Change.PubKeys))
	for id, pk := range candidates {
		gotPK, ok := got.Change.Change.PubKeys[id]
		require.True(t, ok)
		require.True(t, pk.Equal(gotPK))
	}
}

func TestUnmarshalJoinPlanRejectsGarbage(t *testing.T) {
	_, err := unmarshalJoinPlan([]byte("not json"))
	require.Error(t, err)
}
