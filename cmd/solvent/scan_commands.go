package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/solvent/service/rent"
	"github.com/brojonat/solvent/service/watch"
)

func limitFlag() *cli.IntFlag {
	return &cli.IntFlag{
		Name:    "limit",
		Aliases: []string{"l"},
		Value:   rent.DefaultScanLimit,
		Usage:   "Maximum number of transactions to scan",
	}
}

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:      "scan",
		Usage:     "Scan a fee payer for sponsored accounts and show rent statistics",
		ArgsUsage: "ADDRESS",
		Flags: []cli.Flag{
			limitFlag(),
		},
		Action: func(c *cli.Context) error {
			report, _, err := analyze(c, c.Int("limit"))
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, map[string]interface{}{
					"fee_payer":    report.FeePayer.String(),
					"network":      report.Network,
					"transactions": report.Transactions,
					"creations":    report.Creations,
					"stats":        report.Stats,
					"scanned_at":   report.ScannedAt,
				})
			}

			w := c.App.Writer
			fmt.Fprintf(w, "\nSponsored accounts for %s (%s)\n", report.FeePayer, report.Network)
			fmt.Fprintf(w, "Transactions scanned:  %d\n", report.Transactions)
			fmt.Fprintf(w, "Account creations:     %d\n\n", report.Creations)
			fmt.Fprint(w, report.Stats.String())
			return nil
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:      "list",
		Aliases:   []string{"ls"},
		Usage:     "List the sponsored accounts of a fee payer",
		ArgsUsage: "ADDRESS",
		Flags: []cli.Flag{
			limitFlag(),
			&cli.StringFlag{
				Name:    "filter",
				Aliases: []string{"f"},
				Value:   string(rent.FilterAll),
				Usage:   "Which accounts to show (all, reclaimable, closeable)",
			},
			&cli.StringFlag{
				Name:  "jq",
				Usage: "jq expression evaluated per account; accounts where it is false or null are dropped",
			},
		},
		Action: func(c *cli.Context) error {
			f, err := rent.ParseFilter(c.String("filter"))
			if err != nil {
				return err
			}
			code, err := compileJQ(c.String("jq"))
			if err != nil {
				return err
			}

			report, _, err := analyze(c, c.Int("limit"))
			if err != nil {
				return err
			}

			accounts, err := filterJQ(code, rent.FilterAccounts(report.Accounts, f))
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, accounts)
			}

			if len(accounts) == 0 {
				fmt.Fprintln(c.App.Writer, "No accounts found")
				return nil
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ADDRESS\tTYPE\tOWNER\tRENT\tBALANCE\tCLASSIFICATION\tSTATUS\tCREATED")
			var total uint64
			for _, acct := range accounts {
				created := "-"
				if !acct.CreatedAt.IsZero() {
					created = acct.CreatedAt.UTC().Format(time.DateOnly)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
					acct.Address,
					acct.Type,
					watch.ShortAddress(acct.Owner.String()),
					rent.FormatSOL(acct.RentLamports),
					acct.TokenBalance,
					acct.Classification,
					acct.Status,
					created,
				)
				total += acct.RentLamports
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d account(s), %s\n", len(accounts), rent.FormatSOL(total))
			return nil
		},
	}
}
