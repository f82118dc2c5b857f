// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package main

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	lvl, err := parseLevel("debug")
	require.NoError(t, err)
	require.Equal(t, zapcore.DebugLevel, lvl)

	lvl, err = parseLevel("error")
	require.NoError(t, err)
	require.Equal(t, zapcore.ErrorLevel, lvl)

	_, err = parseLevel("not-a-level")
	require.Error(t, err)
}

func TestParseEraEpoch(t *testing.T) {
	era, hbEpoch, err := parseEraEpoch("7", "42")
	require.NoError(t, err)
	require.Equal(t, uint64(7), era)
	require.Equal(t, uint64(42), hbEpoch)

	_, _, err = parseEraEpoch("not-a-number", "0")
	require.Error(t, err)

	_, _, err = parseEraEpoch("0", "not-a-number")
	require.Error(t, err)
}
