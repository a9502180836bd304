package main

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/solvent/service/config"
)

func configCommands() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage the default network and RPC endpoint",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show the stored settings and the resolved target",
				Action: func(c *cli.Context) error {
					store, err := settingsStore(c)
					if err != nil {
						return err
					}
					settings, err := store.Load()
					if err != nil && !errors.Is(err, config.ErrNoConfigFile) {
						return err
					}
					target, err := settings.Resolve(c.String("network"), c.String("rpc"))
					if err != nil {
						return err
					}

					if c.Bool("json") {
						return outputJSON(c.App.Writer, map[string]interface{}{
							"path":     store.Path(),
							"settings": settings,
							"network":  target.Network,
							"rpc_url":  target.RPCURL(),
						})
					}

					w := c.App.Writer
					fmt.Fprintf(w, "Config file: %s\n", store.Path())
					if settings.IsEmpty() {
						fmt.Fprintln(w, "  (no settings saved)")
					} else {
						fmt.Fprintf(w, "  network: %s\n", valueOrDash(string(settings.Network)))
						fmt.Fprintf(w, "  rpc:     %s\n", valueOrDash(settings.RPC))
					}
					fmt.Fprintf(w, "\nResolved network: %s\n", target.Network)
					fmt.Fprintf(w, "Resolved RPC:     %s\n", target.Label())
					return nil
				},
			},
			{
				Name:      "set-rpc",
				Usage:     "Set the default RPC endpoint",
				ArgsUsage: "URL",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("requires exactly one argument: RPC URL")
					}
					store, err := settingsStore(c)
					if err != nil {
						return err
					}
					if err := store.SetRPC(c.Args().First()); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "✓ RPC endpoint set to %s\n", c.Args().First())
					return nil
				},
			},
			{
				Name:      "set-network",
				Usage:     "Set the default network",
				ArgsUsage: "NETWORK",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("requires exactly one argument: network (devnet, mainnet-beta)")
					}
					store, err := settingsStore(c)
					if err != nil {
						return err
					}
					if err := store.SetNetwork(c.Args().First()); err != nil {
						return err
					}
					settings, err := store.Load()
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "✓ Network set to %s\n", settings.Network)
					return nil
				},
			},
			{
				Name:      "clear",
				Usage:     "Clear a stored setting (rpc, network or all)",
				ArgsUsage: "[KEY]",
				Action: func(c *cli.Context) error {
					key := "all"
					if c.NArg() > 0 {
						key = c.Args().First()
					}
					store, err := settingsStore(c)
					if err != nil {
						return err
					}
					if err := store.Clear(key); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "✓ Cleared %s\n", key)
					return nil
				},
			},
		},
	}
}

func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
