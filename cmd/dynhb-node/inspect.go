// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/hbft-labs/dynhb/internal/hostd/batchstore"
)

var inspectCmd = &cli.Command{
	Name:      "inspect",
	Usage:     "print one batchstore record in detail",
	ArgsUsage: "<data-dir> <era> <hb-epoch>",
	Action: func(c *cli.Context) error {
		if c.Args().Len() != 3 {
			return fmt.Errorf("inspect requires <data-dir> <era> <hb-epoch>")
		}
		store, err := batchstore.Open(filepath.Join(c.Args().Get(0), "batches"))
		if err != nil {
			return err
		}
		defer store.Close()

		era, hbEpoch, err := parseEraEpoch(c.Args().Get(1), c.Args().Get(2))
		if err != nil {
			return err
		}
		rec, ok, err := store.Get(era, hbEpoch)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no record for era %d hb_epoch %d", era, hbEpoch)
		}
		printRecord(rec, colorEnabled())
		return nil
	},
}

var replayCmd = &cli.Command{
	Name:      "replay",
	Usage:     "print every stored batch record in commit order",
	ArgsUsage: "<data-dir>",
	Action: func(c *cli.Context) error {
		if c.Args().Len() != 1 {
			return fmt.Errorf("replay requires <data-dir>")
		}
		store, err := batchstore.Open(filepath.Join(c.Args().Get(0), "batches"))
		if err != nil {
			return err
		}
		defer store.Close()

		enabled := colorEnabled()
		return store.Replay(func(era, hbEpoch uint64, rec batchstore.Record) bool {
			printRecord(rec, enabled)
			return true
		})
	},
}

// colorEnabled mirrors the teacher's TTY-gated console coloring: plain text
// when stdout is redirected to a file or pipe.
func colorEnabled() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

func printRecord(rec batchstore.Record, colorize bool) {
	header := fmt.Sprintf("era=%d hb_epoch=%d", rec.Era, rec.HBEpoch)
	kind := rec.ChangeKind
	if colorize {
		header = color.CyanString(header)
		switch kind {
		case "complete":
			kind = color.GreenString(kind)
		case "in-progress":
			kind = color.YellowString(kind)
		default:
			kind = color.New(color.Faint).Sprint(kind)
		}
	}
	fmt.Printf("%s change=%s validators=%d senders=%v\n", header, kind, rec.NumValidators, rec.Senders)
}
