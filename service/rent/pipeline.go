package rent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/brojonat/solvent/service/metrics"
	"github.com/brojonat/solvent/service/solana"
)

// Report is the result of scanning, classifying and aggregating one fee payer.
type Report struct {
	FeePayer     solanago.PublicKey `json:"fee_payer"`
	Network      solana.Network     `json:"network,omitempty"`
	Transactions int                `json:"transactions"`
	Creations    int                `json:"creations"`
	Accounts     []SponsoredAccount `json:"accounts"`
	Stats        RentStats          `json:"stats"`
	ScannedAt    time.Time          `json:"scanned_at"`
}

// Pipeline wires the scanner, classifier and reclaimer to a single ledger.
type Pipeline struct {
	scanner    *Scanner
	classifier *Classifier
	reclaimer  *Reclaimer
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewPipeline creates a pipeline over ledger. If metrics is nil, no metrics are recorded.
func NewPipeline(ledger Ledger, opts Options, m *metrics.Metrics, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		scanner:    NewScanner(ledger, opts, m, logger),
		classifier: NewClassifier(ledger, opts, m, logger),
		reclaimer:  NewReclaimer(ledger, opts, m, logger),
		logger:     logger,
		metrics:    m,
	}
}

// Scanner returns the pipeline's history scanner.
func (p *Pipeline) Scanner() *Scanner { return p.scanner }

// Classifier returns the pipeline's account classifier.
func (p *Pipeline) Classifier() *Classifier { return p.classifier }

// Analyze scans up to limit transactions of feePayer, classifies every creation
// found and aggregates the result.
func (p *Pipeline) Analyze(ctx context.Context, feePayer solanago.PublicKey, limit int) (*Report, error) {
	start := time.Now()
	scan, err := p.scanner.Scan(ctx, feePayer, limit)
	p.stage("scan", start, err)
	if err != nil {
		return nil, err
	}

	start = time.Now()
	accounts := p.classifier.ClassifyAll(ctx, scan.Creations, feePayer)
	err = ctx.Err()
	p.stage("classify", start, err)
	if err != nil {
		return nil, err
	}

	return &Report{
		FeePayer:     feePayer,
		Transactions: scan.Transactions,
		Creations:    len(scan.Creations),
		Accounts:     accounts,
		Stats:        Aggregate(accounts),
		ScannedAt:    scan.ScannedAt,
	}, nil
}

// Reclaim closes eligible accounts. See Reclaimer.Reclaim.
func (p *Pipeline) Reclaim(ctx context.Context, accounts []SponsoredAccount, signer solanago.PrivateKey, opts ReclaimOptions) ([]ReclaimResult, error) {
	start := time.Now()
	results, err := p.reclaimer.Reclaim(ctx, accounts, signer, opts)
	p.stage("reclaim", start, err)
	return results, err
}

func (p *Pipeline) stage(name string, start time.Time, err error) {
	if p.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.Since(start, func(d float64) {
		p.metrics.RecordPipelineStage(name, status, d)
	})()
}

// Dialer opens a ledger for a target.
type Dialer func(target solana.Target) Ledger

// LedgerDialer returns a Dialer backed by the Solana JSON-RPC client.
func LedgerDialer(m *metrics.Metrics, logger *slog.Logger) Dialer {
	return func(target solana.Target) Ledger {
		return solana.Dial(target, m, logger)
	}
}

// Analyzer produces reports for a fee payer on an explicit target.
type Analyzer interface {
	Analyze(ctx context.Context, target solana.Target, feePayer solanago.PublicKey, limit int) (*Report, error)
}

// Service builds a pipeline per call for the target the caller names, so callers
// on different networks never share ledger state.
type Service struct {
	dial    Dialer
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewService creates a Service. If metrics is nil, no metrics are recorded.
func NewService(dial Dialer, opts Options, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{dial: dial, opts: opts, logger: logger, metrics: m}
}

// Pipeline returns a pipeline bound to target.
func (s *Service) Pipeline(target solana.Target) (*Pipeline, error) {
	if err := target.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	logger := s.logger.With("network", string(target.Network), "endpoint", target.Label())
	return NewPipeline(s.dial(target), s.opts, s.metrics, logger), nil
}

// Analyze runs scan, classify and aggregate for feePayer on target.
func (s *Service) Analyze(ctx context.Context, target solana.Target, feePayer solanago.PublicKey, limit int) (*Report, error) {
	p, err := s.Pipeline(target)
	if err != nil {
		return nil, err
	}
	report, err := p.Analyze(ctx, feePayer, limit)
	if err != nil {
		return nil, err
	}
	report.Network = target.Network
	return report, nil
}

// Reclaim closes eligible accounts on target.
func (s *Service) Reclaim(ctx context.Context, target solana.Target, accounts []SponsoredAccount, signer solanago.PrivateKey, opts ReclaimOptions) ([]ReclaimResult, error) {
	p, err := s.Pipeline(target)
	if err != nil {
		return nil, err
	}
	return p.Reclaim(ctx, accounts, signer, opts)
}

var _ Analyzer = (*Service)(nil)
