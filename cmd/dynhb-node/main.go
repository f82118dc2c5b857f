// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/hbft-labs/dynhb/internal/xlog"
)

var (
	configFlag = &cli.StringFlag{
		Name:     "config",
		Aliases:  []string{"c"},
		Usage:    "path to a .toml or .yaml node configuration file",
		Required: true,
	}
	idFlag = &cli.StringFlag{
		Name:     "id",
		Usage:    "hex-encoded node id, must be one of the genesis validators",
		Required: true,
	}
	secretKeyFlag = &cli.StringFlag{
		Name:     "secret-key-file",
		Usage:    "path to a file holding the node's 32-byte identity secret key",
		Required: true,
	}
)

func main() {
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		xlog.Debug(fmt.Sprintf(format, args...))
	})); err != nil {
		xlog.Warn("failed to set GOMAXPROCS from cgroup limits", "err", err)
	}

	app := &cli.App{
		Name:  "dynhb-node",
		Usage: "run and inspect a dynamic Honey Badger BFT validator",
		Commands: []*cli.Command{
			runCmd,
			exportJoinPlanCmd,
			inspectCmd,
			replayCmd,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "dynhb-node:", err)
		os.Exit(1)
	}
}

func mustXlogLevel(level string) {
	if lvl, err := parseLevel(level); err == nil {
		xlog.SetLevel(lvl)
	}
}
