// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/Sanchoz2022/realityctl/lib/cli"
)

func revisionsCommand() *cli.Command {
	var (
		common commonFlags
		show   string
	)

	return &cli.Command{
		Name:    "revisions",
		Summary: "List tracked config revisions",
		Description: "Revisions lists every tracked config generation with its status:\n" +
			"active, backup (restorable), or discarded (archived compressed for\n" +
			"inspection). --show dumps a revision's config content to stdout.",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("revisions", pflag.ContinueOnError)
			common.register(flagSet)
			flagSet.StringVar(&show, "show", "", "print the config content of the given revision ID")
			return flagSet
		},
		Run: func(args []string) error {
			cfg, logger, err := common.setup()
			if err != nil {
				return err
			}
			deps, err := buildDeps(cfg, logger)
			if err != nil {
				return err
			}

			if show != "" {
				content, err := deps.Store.ReadContent(show)
				if err != nil {
					return err
				}
				os.Stdout.Write(content)
				return nil
			}

			revisions := deps.Store.Revisions()
			if len(revisions) == 0 {
				fmt.Println("no revisions tracked yet")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tCREATED\tCAUSE")
			for _, revision := range revisions {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					revision.ID,
					revision.Status,
					revision.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
					revision.Cause)
			}
			return tw.Flush()
		},
	}
}
