package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"

	"github.com/brojonat/solvent/service/db"
	natspkg "github.com/brojonat/solvent/service/nats"
	"github.com/brojonat/solvent/service/rent"
	"github.com/brojonat/solvent/service/solana"
)

const (
	previewLimit = 10
	rule         = "═══════════════════════════════════════════"
)

func reclaimCommand() *cli.Command {
	return &cli.Command{
		Name:      "reclaim",
		Usage:     "Close reclaimable sponsored accounts and return their rent",
		ArgsUsage: "[ADDRESS]",
		Description: `Closes empty token accounts whose close authority is the fee payer.

ADDRESS defaults to the public key of --keypair. Without --dry-run the
keypair is required and must be the close authority of the accounts.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "keypair",
				Aliases: []string{"k"},
				Usage:   "Path to the fee payer keypair JSON file",
				EnvVars: []string{"SOLVENT_KEYPAIR"},
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Simulate the reclaim without sending transactions",
			},
			&cli.IntFlag{
				Name:    "batch-size",
				Aliases: []string{"b"},
				Value:   rent.DefaultBatchSize,
				Usage:   "Maximum number of accounts to close in this run",
			},
			&cli.StringFlag{
				Name:  "destination",
				Usage: "Address that receives the reclaimed rent (default: the signer)",
			},
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "Skip the confirmation prompt",
			},
			limitFlag(),
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "Publish reclaim events to this NATS server",
				EnvVars: []string{"NATS_URL"},
			},
		},
		Action: func(c *cli.Context) error {
			dryRun := c.Bool("dry-run")
			jsonOutput := c.Bool("json")
			logger := newLogger(c)

			var signer solanago.PrivateKey
			if path := c.String("keypair"); path != "" {
				key, err := solana.LoadKeypair(path)
				if err != nil {
					return err
				}
				signer = key
			} else if !dryRun {
				return fmt.Errorf("--keypair is required unless --dry-run is set")
			}

			feePayer, err := reclaimFeePayer(c, signer)
			if err != nil {
				return err
			}

			var destination *solanago.PublicKey
			if d := c.String("destination"); d != "" {
				pk, err := rent.ParseAddress(d)
				if err != nil {
					return fmt.Errorf("invalid destination: %w", err)
				}
				destination = &pk
			}

			target, err := resolveTarget(c)
			if err != nil {
				return err
			}

			out := c.App.Writer
			if !jsonOutput {
				mode := "LIVE"
				if dryRun {
					mode = "DRY RUN (no transactions)"
				}
				fmt.Fprintf(out, "🧪 SOLVENT - Rent Reclaimer\n\n")
				fmt.Fprintf(out, "Fee Payer: %s\n", feePayer)
				fmt.Fprintf(out, "Network:   %s\n", target.Network)
				fmt.Fprintf(out, "Mode:      %s\n\n", mode)
			}

			report, _, err := analyzeAddress(c, feePayer, c.Int("limit"))
			if err != nil {
				return err
			}

			eligible := rent.ReclaimableAccounts(report.Accounts)
			if len(eligible) == 0 {
				if jsonOutput {
					return outputJSON(out, reclaimOutput{
						FeePayer: feePayer.String(),
						Network:  target.Network,
						DryRun:   dryRun,
						Results:  []rent.ReclaimResult{},
					})
				}
				fmt.Fprintln(out, "No accounts available for reclaim")
				return nil
			}

			if !jsonOutput {
				printPreview(out, eligible, c.Int("batch-size"))
			}

			if !dryRun && !c.Bool("yes") {
				ok, err := confirm(c.App.Reader, c.App.ErrWriter, "Proceed with reclaim? (y/n) ")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(c.App.ErrWriter, "Reclaim cancelled")
					return nil
				}
			}

			results, err := commandPipeline(c).Reclaim(c.Context, target, report.Accounts, signer, rent.ReclaimOptions{
				DryRun:      dryRun,
				BatchSize:   c.Int("batch-size"),
				Destination: destination,
			})
			if err != nil {
				return fmt.Errorf("reclaim failed: %w", err)
			}

			sinks, closeSinks := openReclaimSinks(c, logger)
			defer closeSinks()
			recordOutcomes(c.Context, results, feePayer.String(), string(target.Network), sinks, logger)

			summary := rent.Summarize(results)
			if jsonOutput {
				return outputJSON(out, reclaimOutput{
					FeePayer: feePayer.String(),
					Network:  target.Network,
					DryRun:   dryRun,
					Results:  results,
					Summary:  summary,
				})
			}
			printResults(out, results, summary, dryRun)
			return nil
		},
	}
}

type reclaimOutput struct {
	FeePayer string               `json:"fee_payer"`
	Network  solana.Network       `json:"network"`
	DryRun   bool                 `json:"dry_run"`
	Results  []rent.ReclaimResult `json:"results"`
	Summary  rent.ReclaimSummary  `json:"summary"`
}

// reclaimFeePayer takes the ADDRESS argument or falls back to the signer.
func reclaimFeePayer(c *cli.Context, signer solanago.PrivateKey) (solanago.PublicKey, error) {
	switch {
	case c.NArg() > 1:
		return solanago.PublicKey{}, fmt.Errorf("expected at most one argument: fee payer address")
	case c.NArg() == 1:
		feePayer, err := rent.ParseAddress(c.Args().First())
		if err != nil {
			return solanago.PublicKey{}, err
		}
		if len(signer) > 0 && !signer.PublicKey().Equals(feePayer) {
			return solanago.PublicKey{}, fmt.Errorf("keypair %s does not match fee payer %s", signer.PublicKey(), feePayer)
		}
		return feePayer, nil
	case len(signer) > 0:
		return signer.PublicKey(), nil
	default:
		return solanago.PublicKey{}, fmt.Errorf("fee payer address is required when no keypair is given")
	}
}

func printPreview(w io.Writer, eligible []rent.SponsoredAccount, batchSize int) {
	var total uint64
	for _, acct := range eligible {
		total += acct.RentLamports
	}
	fmt.Fprintf(w, "\nFound %d accounts to reclaim (%s)\n", len(eligible), rent.FormatSOL(total))
	for i, acct := range eligible {
		if i == previewLimit {
			fmt.Fprintf(w, "  ... and %d more\n", len(eligible)-previewLimit)
			break
		}
		fmt.Fprintf(w, "  %s  %s\n", acct.Address, rent.FormatSOL(acct.RentLamports))
	}
	if batchSize > 0 && len(eligible) > batchSize {
		fmt.Fprintf(w, "Processing the first %d this run (--batch-size)\n", batchSize)
	}
	fmt.Fprintln(w)
}

func printResults(w io.Writer, results []rent.ReclaimResult, summary rent.ReclaimSummary, dryRun bool) {
	for _, res := range results {
		switch {
		case !res.Success:
			fmt.Fprintf(w, "✗ %s  %s\n", res.Account, *res.Error)
		case res.Signature != nil:
			fmt.Fprintf(w, "✓ %s  %s  %s\n", res.Account, rent.FormatSOL(res.RentReclaimed), res.Signature)
		default:
			fmt.Fprintf(w, "✓ %s  %s\n", res.Account, rent.FormatSOL(res.RentReclaimed))
		}
	}

	title := "RECLAIM COMPLETE"
	if dryRun {
		title = "[DRY RUN] " + title
	}
	fmt.Fprintf(w, "\n%s\n%s\n%s\n", rule, title, rule)
	fmt.Fprintf(w, "Accounts processed: %d\n", summary.Processed)
	fmt.Fprintf(w, "Successful:         %d\n", summary.Succeeded)
	fmt.Fprintf(w, "Failed:             %d\n", summary.Failed)
	fmt.Fprintf(w, "Total reclaimed:    %s\n", rent.FormatSOL(summary.TotalReclaimed))
}

// confirm asks prompt on w and reads a y/yes answer from r.
func confirm(r io.Reader, w io.Writer, prompt string) (bool, error) {
	fmt.Fprint(w, prompt)
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return false, fmt.Errorf("failed to read confirmation: %w", err)
		}
		return false, nil
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes", nil
}

type auditRecorder interface {
	RecordAudit(ctx context.Context, entry db.AuditEntry) (*db.AuditEntry, error)
}

// reclaimSinks receive reclaim outcomes; either may be nil.
type reclaimSinks struct {
	audit     auditRecorder
	publisher natspkg.Publisher
}

// openReclaimSinks connects the audit log and event publisher that are
// configured. Connection failures are logged; the reclaim has already happened.
func openReclaimSinks(c *cli.Context, logger *slog.Logger) (reclaimSinks, func()) {
	var sinks reclaimSinks
	var closers []func()

	if url := c.String("database-url"); url != "" {
		pool, err := db.NewPool(c.Context, url)
		if err != nil {
			logger.Warn("audit log unavailable", "error", err)
		} else {
			sinks.audit = db.NewStore(pool, nil)
			closers = append(closers, pool.Close)
		}
	}
	if url := c.String("nats-url"); url != "" {
		pub, err := natspkg.NewPublisher(url, nil, logger)
		if err != nil {
			logger.Warn("reclaim events unavailable", "error", err)
		} else {
			sinks.publisher = pub
			closers = append(closers, func() { _ = pub.Close() })
		}
	}
	return sinks, func() {
		for _, fn := range closers {
			fn()
		}
	}
}

// recordOutcomes writes one audit entry and one event per result.
func recordOutcomes(ctx context.Context, results []rent.ReclaimResult, feePayer, network string, sinks reclaimSinks, logger *slog.Logger) {
	for _, res := range results {
		if sinks.audit != nil {
			if _, err := sinks.audit.RecordAudit(ctx, auditEntry(res, network)); err != nil {
				logger.Warn("failed to record audit entry", "account", res.Account.String(), "error", err)
			}
		}
		if sinks.publisher != nil {
			if err := sinks.publisher.PublishReclaim(ctx, natspkg.FromReclaimResult(feePayer, network, res)); err != nil {
				logger.Warn("failed to publish reclaim event", "account", res.Account.String(), "error", err)
			}
		}
	}
}

func auditEntry(res rent.ReclaimResult, network string) db.AuditEntry {
	action := "reclaim"
	if res.DryRun {
		action = "reclaim_dry_run"
	}
	details := "reclaimed " + rent.FormatSOL(res.RentReclaimed)
	if !res.Success && res.Error != nil {
		details = "failed: " + *res.Error
	}
	entry := db.AuditEntry{
		Action:  action,
		Account: res.Account.String(),
		Network: network,
		Details: details,
	}
	if res.Signature != nil {
		sig := res.Signature.String()
		entry.Signature = &sig
	}
	return entry
}
