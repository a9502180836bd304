package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/solvent/service/rent"
	"github.com/brojonat/solvent/service/watch"
)

const minLocalWatchInterval = 10 * time.Second

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Rescan a fee payer on an interval and report new closeable accounts",
		ArgsUsage: "ADDRESS",
		Flags: []cli.Flag{
			limitFlag(),
			&cli.DurationFlag{
				Name:    "interval",
				Aliases: []string{"i"},
				Value:   time.Minute,
				Usage:   "Time between scans (minimum 10s)",
			},
			&cli.IntFlag{
				Name:  "max-scans",
				Usage: "Stop after this many scans (0 runs until interrupted)",
			},
		},
		Action: func(c *cli.Context) error {
			feePayer, err := feePayerArg(c)
			if err != nil {
				return err
			}
			interval := c.Duration("interval")
			if interval < minLocalWatchInterval {
				return fmt.Errorf("interval must be at least %s, got %s", minLocalWatchInterval, interval)
			}
			target, err := resolveTarget(c)
			if err != nil {
				return err
			}

			logger := newLogger(c)
			svc := newPipeline(rent.DefaultOptions(), logger)
			limit := c.Int("limit")
			maxScans := c.Int("max-scans")
			jsonOutput := c.Bool("json")
			out := c.App.Writer

			sigCtx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithCancel(sigCtx)
			defer cancel()

			onTick := func(t watch.Tick) {
				if t.Skipped {
					return
				}
				if jsonOutput {
					if err := outputJSON(out, newTickOutput(t)); err != nil {
						logger.Warn("failed to write tick", "error", err)
					}
				} else {
					printTick(c, t)
				}
				if maxScans > 0 && t.Number >= maxScans {
					cancel()
				}
			}

			watcher := watch.NewWatcher(func(ctx context.Context) (*rent.Report, error) {
				return svc.Analyze(ctx, target, feePayer, limit)
			}, interval, onTick, logger)

			if !jsonOutput {
				fmt.Fprintf(out, "👀 Watching %s on %s every %s (Ctrl+C to stop)\n", feePayer, target.Network, interval)
			}
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

type tickOutput struct {
	Scan     int             `json:"scan"`
	Snapshot *watch.Snapshot `json:"snapshot,omitempty"`
	Alert    *watch.Alert    `json:"alert,omitempty"`
	Closed   int             `json:"closed"`
	Error    string          `json:"error,omitempty"`
}

func newTickOutput(t watch.Tick) tickOutput {
	out := tickOutput{Scan: t.Number, Alert: t.Alert, Closed: t.Closed}
	if t.Err != nil {
		out.Error = t.Err.Error()
	} else {
		snap := t.Snapshot
		out.Snapshot = &snap
	}
	return out
}

func printTick(c *cli.Context, t watch.Tick) {
	out := c.App.Writer
	if t.Err != nil {
		fmt.Fprintf(c.App.ErrWriter, "scan %d failed: %v\n", t.Number, t.Err)
		return
	}
	fmt.Fprintln(out, watch.FormatStatusLine(t.Snapshot))
	if t.Alert != nil {
		fmt.Fprintf(out, "🚨 %s\n", watch.FormatAlert(t.Alert))
	}
	if t.Closed > 0 {
		fmt.Fprintf(out, "✓ %d account(s) closed since the last scan\n", t.Closed)
	}
}
