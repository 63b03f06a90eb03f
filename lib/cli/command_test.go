// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestExecuteDispatchesSubcommand(t *testing.T) {
	var ran []string
	root := &Command{
		Name: "realityctl",
		Subcommands: []*Command{
			{Name: "status", Run: func(args []string) error {
				ran = append(ran, "status")
				return nil
			}},
			{Name: "sync", Run: func(args []string) error {
				ran = append(ran, "sync")
				return nil
			}},
		},
	}

	if err := root.Execute([]string{"sync"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(ran) != 1 || ran[0] != "sync" {
		t.Errorf("ran = %v, want [sync]", ran)
	}
}

func TestExecuteUnknownCommand(t *testing.T) {
	root := &Command{
		Name:        "realityctl",
		Subcommands: []*Command{{Name: "status"}},
	}

	err := root.Execute([]string{"staats"})
	if err == nil {
		t.Fatal("Execute accepted unknown command")
	}
	if !strings.Contains(err.Error(), "staats") {
		t.Errorf("error %q does not name the unknown command", err)
	}
}

func TestExecuteParsesFlags(t *testing.T) {
	var force bool
	cmd := &Command{
		Name: "sync",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("sync", pflag.ContinueOnError)
			fs.BoolVar(&force, "force", false, "overwrite drifted values")
			return fs
		},
		Run: func(args []string) error { return nil },
	}

	if err := cmd.Execute([]string{"--force"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !force {
		t.Error("--force not parsed")
	}
}

func TestExecuteBadFlagPointsAtHelp(t *testing.T) {
	cmd := &Command{
		Name: "sync",
		Flags: func() *pflag.FlagSet {
			return pflag.NewFlagSet("sync", pflag.ContinueOnError)
		},
		Run: func(args []string) error { return nil },
	}

	err := cmd.Execute([]string{"--no-such-flag"})
	if err == nil {
		t.Fatal("Execute accepted unknown flag")
	}
	if !strings.Contains(err.Error(), "--help") {
		t.Errorf("error %q does not point at --help", err)
	}
}

func TestPrintHelpListsSubcommands(t *testing.T) {
	root := &Command{
		Name:    "realityctl",
		Summary: "Reality identity reconciler",
		Subcommands: []*Command{
			{Name: "reconcile", Summary: "rotate and apply the Reality identity"},
			{Name: "rollback", Summary: "restore the most recent backup"},
		},
	}

	var out strings.Builder
	root.PrintHelp(&out)
	help := out.String()
	for _, want := range []string{"reconcile", "rollback", "Commands:"} {
		if !strings.Contains(help, want) {
			t.Errorf("help output missing %q:\n%s", want, help)
		}
	}
}
