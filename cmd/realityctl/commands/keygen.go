// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/Sanchoz2022/realityctl/lib/cli"
	"github.com/Sanchoz2022/realityctl/lib/keygen"
)

func keygenCommand() *cli.Command {
	var common commonFlags

	return &cli.Command{
		Name:    "keygen",
		Summary: "Generate a Reality keypair and short ID without applying them",
		Description: "Keygen drives the Xray executable to produce a fresh X25519 keypair\n" +
			"and a random short ID, and prints them. Nothing on the system changes;\n" +
			"use 'reconcile --rotate-keys' to actually deploy new material.",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
			common.register(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			cfg, logger, err := common.setup()
			if err != nil {
				return err
			}

			pair, err := keygen.New(cfg.Service.XrayBinary, logger).Generate(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("private key:  %s\n", pair.PrivateKey)
			fmt.Printf("public key:   %s\n", pair.PublicKey)
			fmt.Printf("short id:     %s\n", keygen.DeriveShortID())
			return nil
		},
	}
}
