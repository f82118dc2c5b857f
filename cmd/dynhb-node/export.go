// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package main

import (
	"fmt"
	"path/filepath"

	"github.com/cespare/cp"
	"github.com/urfave/cli/v2"
)

var exportJoinPlanCmd = &cli.Command{
	Name:      "export-joinplan",
	Usage:     "copy the node's latest published join plan into a bootstrap directory a newcomer watches",
	ArgsUsage: "<data-dir> <bootstrap-dir>",
	Action: func(c *cli.Context) error {
		if c.Args().Len() != 2 {
			return fmt.Errorf("export-joinplan requires <data-dir> <bootstrap-dir>")
		}
		dataDir, bootstrapDir := c.Args().Get(0), c.Args().Get(1)
		src := filepath.Join(dataDir, "joinplan.json")
		dst := filepath.Join(bootstrapDir, "joinplan.json")
		if err := cp.CopyFile(dst, src); err != nil {
			return fmt.Errorf("export-joinplan: %w", err)
		}
		fmt.Println("wrote", dst)
		return nil
	},
}
