// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package main

import (
	"fmt"
	"strconv"

	"go.uber.org/zap/zapcore"
)

func parseLevel(s string) (zapcore.Level, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unrecognized log level %q: %w", s, err)
	}
	return level, nil
}

func parseEraEpoch(eraStr, hbEpochStr string) (uint64, uint64, error) {
	era, err := strconv.ParseUint(eraStr, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid era %q: %w", eraStr, err)
	}
	hbEpoch, err := strconv.ParseUint(hbEpochStr, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid hb-epoch %q: %w", hbEpochStr, err)
	}
	return era, hbEpoch, nil
}
