package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/solvent/service/db"
)

func dbCommands() *cli.Command {
	return &cli.Command{
		Name:  "db",
		Usage: "Database operations (requires --database-url)",
		Subcommands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Manage the database schema",
				Subcommands: []*cli.Command{
					migrateUpCommand(),
					migrateDownCommand(),
					migrateStatusCommand(),
				},
			},
			auditCommand(),
			trackedCommand(),
		},
	}
}

func databaseURL(c *cli.Context) (string, error) {
	url := c.String("database-url")
	if url == "" {
		return "", fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}
	return url, nil
}

func getStore(c *cli.Context) (*db.Store, func(), error) {
	url, err := databaseURL(c)
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(c.Context, url)
	if err != nil {
		return nil, nil, err
	}
	return db.NewStore(pool, nil), pool.Close, nil
}

func migrateUpCommand() *cli.Command {
	return &cli.Command{
		Name:  "up",
		Usage: "Apply all pending migrations",
		Action: func(c *cli.Context) error {
			url, err := databaseURL(c)
			if err != nil {
				return err
			}
			if err := db.RunMigrations(url); err != nil {
				return err
			}
			return printMigrationVersion(c, url)
		},
	}
}

func migrateDownCommand() *cli.Command {
	return &cli.Command{
		Name:  "down",
		Usage: "Roll back migrations",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "steps",
				Value: 1,
				Usage: "Number of migrations to roll back",
			},
		},
		Action: func(c *cli.Context) error {
			url, err := databaseURL(c)
			if err != nil {
				return err
			}
			if err := db.MigrateDown(url, c.Int("steps")); err != nil {
				return err
			}
			return printMigrationVersion(c, url)
		},
	}
}

func migrateStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the applied schema version",
		Action: func(c *cli.Context) error {
			url, err := databaseURL(c)
			if err != nil {
				return err
			}
			return printMigrationVersion(c, url)
		},
	}
}

func printMigrationVersion(c *cli.Context, url string) error {
	version, dirty, err := db.MigrationVersion(url)
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return outputJSON(c.App.Writer, map[string]interface{}{
			"version": version,
			"dirty":   dirty,
		})
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	fmt.Fprintf(c.App.Writer, "Schema version: %d (%s)\n", version, state)
	return nil
}

func auditCommand() *cli.Command {
	return &cli.Command{
		Name:      "audit",
		Usage:     "List recorded reclaim attempts",
		ArgsUsage: "[ACCOUNT]",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Value:   50,
				Usage:   "Maximum number of entries to show",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			entries, err := store.ListAudit(c.Context, c.Args().First(), c.Int("limit"))
			if err != nil {
				return fmt.Errorf("failed to list audit entries: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, entries)
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tACTION\tACCOUNT\tNETWORK\tDETAILS\tSIGNATURE")
			for _, e := range entries {
				sig := "-"
				if e.Signature != nil {
					sig = *e.Signature
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.CreatedAt.Format(time.RFC3339),
					e.Action,
					e.Account,
					e.Network,
					e.Details,
					sig,
				)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d entries\n", len(entries))
			return nil
		},
	}
}

func trackedCommand() *cli.Command {
	return &cli.Command{
		Name:  "tracked",
		Usage: "List tracked addresses straight from the database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "owner",
				Usage: "Only show addresses tracked by this owner",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			tracked, err := store.ListTrackedAddresses(c.Context, c.String("owner"))
			if err != nil {
				return fmt.Errorf("failed to list tracked addresses: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, tracked)
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ADDRESS\tNETWORK\tOWNER\tCREATED")
			for _, t := range tracked {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.Address, t.Network, t.OwnerID, t.CreatedAt.Format(time.RFC3339))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d tracked address(es)\n", len(tracked))
			return nil
		},
	}
}
