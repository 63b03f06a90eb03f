// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/Sanchoz2022/realityctl/lib/cli"
	"github.com/Sanchoz2022/realityctl/lib/envstore"
	"github.com/Sanchoz2022/realityctl/lib/vless"
	"github.com/Sanchoz2022/realityctl/lib/xrayconf"
)

func linkCommand() *cli.Command {
	var (
		common commonFlags
		uuid   string
		port   int
		label  string
	)

	return &cli.Command{
		Name:    "link",
		Summary: "Render a VLESS Reality share link for a client",
		Description: "Link builds the vless:// URL a client app imports, from the deployed\n" +
			"identity: public key and server IP from the credential store, SNI and\n" +
			"short ID from the active config.",
		Examples: []cli.Example{
			{Command: "realityctl link --uuid 11111111-2222-3333-4444-555555555555 --label phone"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("link", pflag.ContinueOnError)
			common.register(flagSet)
			flagSet.StringVar(&uuid, "uuid", "", "client UUID (required)")
			flagSet.IntVar(&port, "port", 0, "inbound port (default: the primary profile)")
			flagSet.StringVar(&label, "label", "", "connection name shown in the client app")
			return flagSet
		},
		Run: func(args []string) error {
			cfg, logger, err := common.setup()
			if err != nil {
				return err
			}
			if uuid == "" {
				return fmt.Errorf("--uuid is required")
			}
			deps, err := buildDeps(cfg, logger)
			if err != nil {
				return err
			}

			values, err := deps.Env.Read()
			if err != nil {
				return err
			}
			publicKey := values[envstore.KeyPublicKey]
			if publicKey == "" {
				return fmt.Errorf("credential store has no public key; run 'realityctl reconcile' first")
			}
			address := values[envstore.KeyServerIP]
			if address == "" {
				address = cfg.Reality.ServerIP
			}
			if address == "" {
				return fmt.Errorf("no server address: set reality.server_ip or sync the credential store")
			}

			if port == 0 {
				for _, profile := range cfg.Reality.ListenProfiles {
					if profile.Primary {
						port = profile.Port
					}
				}
			}

			// The first non-wildcard short ID from the active config.
			shortID := ""
			if data, err := os.ReadFile(cfg.Paths.ActiveConfig); err == nil {
				if document, err := xrayconf.Parse(data); err == nil {
					for _, id := range document.ShortIDs() {
						if id != "" {
							shortID = id
							break
						}
					}
				}
			}

			link, err := vless.Link(vless.Params{
				UUID:      uuid,
				Address:   address,
				Port:      port,
				SNI:       cfg.Reality.DestSNI(),
				PublicKey: publicKey,
				ShortID:   shortID,
				Label:     label,
			})
			if err != nil {
				return err
			}
			fmt.Println(link)
			return nil
		},
	}
}
