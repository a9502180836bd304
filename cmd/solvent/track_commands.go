package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/solvent/client"
	"github.com/brojonat/solvent/service/rent"
	"github.com/brojonat/solvent/service/watch"
)

func ownerFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "owner",
		Aliases: []string{"o"},
		Value:   "cli",
		Usage:   "Owner ID the tracked address belongs to",
		EnvVars: []string{"SOLVENT_OWNER"},
	}
}

func apiClient(c *cli.Context) *client.Client {
	return client.NewClient(c.String("server-url"), nil, newLogger(c))
}

func trackCommands() *cli.Command {
	return &cli.Command{
		Name:  "track",
		Usage: "Manage fee payers watched by the solvent server",
		Subcommands: []*cli.Command{
			trackAddCommand(),
			trackRemoveCommand(),
			trackListCommand(),
			trackSnapshotCommand(),
		},
	}
}

func trackAddCommand() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Start watching a fee payer on a schedule",
		ArgsUsage: "ADDRESS",
		Flags: []cli.Flag{
			ownerFlag(),
			&cli.DurationFlag{
				Name:    "interval",
				Aliases: []string{"i"},
				Usage:   "Time between scheduled scans (server default when unset)",
			},
		},
		Action: func(c *cli.Context) error {
			address, err := feePayerArg(c)
			if err != nil {
				return err
			}
			req := client.TrackRequest{
				Address: address.String(),
				Network: c.String("network"),
				OwnerID: c.String("owner"),
			}
			if d := c.Duration("interval"); d > 0 {
				req.Interval = d.String()
			}

			tracked, err := apiClient(c).Track(c.Context, req)
			if err != nil {
				return fmt.Errorf("failed to track address: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, tracked)
			}
			fmt.Fprintf(c.App.Writer, "✓ Now tracking %s on %s\n", tracked.Address, tracked.Network)
			fmt.Fprintf(c.App.Writer, "  Owner: %s\n", tracked.OwnerID)
			return nil
		},
	}
}

func trackRemoveCommand() *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Aliases:   []string{"rm"},
		Usage:     "Stop watching a fee payer",
		ArgsUsage: "ADDRESS",
		Flags: []cli.Flag{
			ownerFlag(),
		},
		Action: func(c *cli.Context) error {
			address, err := feePayerArg(c)
			if err != nil {
				return err
			}
			if err := apiClient(c).Untrack(c.Context, address.String(), c.String("owner")); err != nil {
				return fmt.Errorf("failed to untrack address: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, map[string]string{
					"address": address.String(),
					"status":  "untracked",
				})
			}
			fmt.Fprintf(c.App.Writer, "✓ Stopped tracking %s\n", address)
			return nil
		},
	}
}

func trackListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List tracked fee payers",
		Flags: []cli.Flag{
			ownerFlag(),
		},
		Action: func(c *cli.Context) error {
			tracked, err := apiClient(c).ListTracked(c.Context, c.String("owner"))
			if err != nil {
				return fmt.Errorf("failed to list tracked addresses: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, tracked)
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ADDRESS\tNETWORK\tOWNER\tCREATED")
			for _, t := range tracked {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					t.Address,
					t.Network,
					t.OwnerID,
					t.CreatedAt.Format(time.RFC3339),
				)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d tracked address(es)\n", len(tracked))
			return nil
		},
	}
}

func trackSnapshotCommand() *cli.Command {
	return &cli.Command{
		Name:      "snapshot",
		Usage:     "Show the latest scheduled scan of a tracked fee payer",
		ArgsUsage: "ADDRESS",
		Action: func(c *cli.Context) error {
			address, err := feePayerArg(c)
			if err != nil {
				return err
			}
			snap, err := apiClient(c).LatestSnapshot(c.Context, address.String(), c.String("network"))
			if err != nil {
				return fmt.Errorf("failed to get snapshot: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, snap)
			}

			w := c.App.Writer
			fmt.Fprintf(w, "%s (%s)\n", watch.ShortAddress(snap.Address), snap.Network)
			fmt.Fprintf(w, "  Scanned:     %s\n", snap.ScannedAt.Format(time.RFC3339))
			fmt.Fprintf(w, "  Accounts:    %d\n", snap.TotalAccounts)
			fmt.Fprintf(w, "  Closeable:   %d\n", snap.CloseableCount)
			fmt.Fprintf(w, "  Reclaimable: %d (%s)\n", snap.ReclaimableCount, rent.FormatSOL(snap.ReclaimableLamports))
			fmt.Fprintf(w, "  Rent locked: %s\n", rent.FormatSOL(snap.TotalRentLamports))
			return nil
		},
	}
}
