package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"

	"github.com/brojonat/solvent/service/config"
	"github.com/brojonat/solvent/service/rent"
	"github.com/brojonat/solvent/service/solana"
)

// pipeline is the part of rent.Service the commands drive.
type pipeline interface {
	Analyze(ctx context.Context, target solana.Target, feePayer solanago.PublicKey, limit int) (*rent.Report, error)
	Reclaim(ctx context.Context, target solana.Target, accounts []rent.SponsoredAccount, signer solanago.PrivateKey, opts rent.ReclaimOptions) ([]rent.ReclaimResult, error)
}

// newPipeline builds the pipeline for a command; tests replace it.
var newPipeline = func(opts rent.Options, logger *slog.Logger) pipeline {
	return rent.NewService(rent.LedgerDialer(nil, logger), opts, nil, logger)
}

// commandPipeline returns a pipeline that reports progress on stderr unless
// JSON output was requested.
func commandPipeline(c *cli.Context) pipeline {
	opts := rent.DefaultOptions()
	if !c.Bool("json") {
		errw := c.App.ErrWriter
		opts.Progress = func(stage string, done, total int) {
			if total > 0 {
				fmt.Fprintf(errw, "  %s: %d/%d\n", stage, done, total)
				return
			}
			fmt.Fprintf(errw, "  %s: %d\n", stage, done)
		}
	}
	return newPipeline(opts, newLogger(c))
}

// newLogger writes text logs to stderr at the --log-level threshold.
func newLogger(c *cli.Context) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.String("log-level")) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{Level: level}))
}

// settingsStore opens the persisted CLI settings.
func settingsStore(c *cli.Context) (*config.FileStore, error) {
	path := c.String("config-file")
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return config.NewFileStore(path), nil
}

// resolveTarget combines --network/--rpc with the stored settings.
func resolveTarget(c *cli.Context) (solana.Target, error) {
	store, err := settingsStore(c)
	if err != nil {
		return solana.Target{}, err
	}
	settings, err := store.Load()
	if err != nil && !errors.Is(err, config.ErrNoConfigFile) {
		return solana.Target{}, err
	}
	return settings.Resolve(c.String("network"), c.String("rpc"))
}

// feePayerArg parses the single ADDRESS argument.
func feePayerArg(c *cli.Context) (solanago.PublicKey, error) {
	if c.NArg() != 1 {
		return solanago.PublicKey{}, fmt.Errorf("requires exactly one argument: fee payer address")
	}
	return rent.ParseAddress(c.Args().First())
}

// analyze runs scan, classify and aggregate for the ADDRESS argument.
func analyze(c *cli.Context, limit int) (*rent.Report, solana.Target, error) {
	feePayer, err := feePayerArg(c)
	if err != nil {
		return nil, solana.Target{}, err
	}
	return analyzeAddress(c, feePayer, limit)
}

func analyzeAddress(c *cli.Context, feePayer solanago.PublicKey, limit int) (*rent.Report, solana.Target, error) {
	target, err := resolveTarget(c)
	if err != nil {
		return nil, solana.Target{}, err
	}
	if !c.Bool("json") {
		fmt.Fprintf(c.App.ErrWriter, "Scanning %s on %s (%s)...\n", feePayer, target.Network, target.Label())
	}
	report, err := commandPipeline(c).Analyze(c.Context, target, feePayer, limit)
	if err != nil {
		return nil, target, fmt.Errorf("scan failed: %w", err)
	}
	return report, target, nil
}

func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// compileJQ compiles a jq predicate; an empty expression yields nil.
func compileJQ(expr string) (*gojq.Code, error) {
	if expr == "" {
		return nil, nil
	}
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jq filter %q: %w", expr, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq filter %q: %w", expr, err)
	}
	return code, nil
}

// filterJQ keeps the accounts for which code yields a truthy first result.
// A nil code keeps everything.
func filterJQ(code *gojq.Code, accounts []rent.SponsoredAccount) ([]rent.SponsoredAccount, error) {
	if code == nil {
		return accounts, nil
	}
	out := make([]rent.SponsoredAccount, 0, len(accounts))
	for _, acct := range accounts {
		data, err := json.Marshal(acct)
		if err != nil {
			return nil, fmt.Errorf("failed to encode account %s: %w", acct.Address, err)
		}
		var input interface{}
		if err := json.Unmarshal(data, &input); err != nil {
			return nil, fmt.Errorf("failed to decode account %s: %w", acct.Address, err)
		}

		iter := code.Run(input)
		v, ok := iter.Next()
		if !ok {
			continue
		}
		if err, isErr := v.(error); isErr {
			return nil, fmt.Errorf("jq filter failed on %s: %w", acct.Address, err)
		}
		if isTruthy(v) {
			out = append(out, acct)
		}
	}
	return out, nil
}

// isTruthy follows jq semantics: only false and null are falsy.
func isTruthy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	default:
		return true
	}
}
