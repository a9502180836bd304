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

// ScanResult is the output of one history scan.
type ScanResult struct {
	FeePayer     solanago.PublicKey      `json:"fee_payer"`
	Transactions int                     `json:"transactions"`
	Failed       int                     `json:"failed"`
	Creations    []ParsedAccountCreation `json:"creations"`
	ScannedAt    time.Time               `json:"scanned_at"`
}

// Scanner walks a fee payer's signature history and extracts account creations.
type Scanner struct {
	ledger  Ledger
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewScanner creates a Scanner. If metrics is nil, no metrics are recorded.
func NewScanner(ledger Ledger, opts Options, m *metrics.Metrics, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		ledger:  ledger,
		opts:    opts.withDefaults(),
		logger:  logger,
		metrics: m,
	}
}

// ListTransactions pages backwards through the fee payer's signatures, newest first,
// returning at most limit entries (DefaultLimit when limit <= 0). Only a failure of
// the first page is an error; a later failure ends pagination with what was read.
func (s *Scanner) ListTransactions(ctx context.Context, feePayer solanago.PublicKey, limit int) ([]solana.TransactionInfo, error) {
	if limit <= 0 {
		limit = s.opts.DefaultLimit
	}

	var all []solana.TransactionInfo
	var before *solanago.Signature
	for len(all) < limit {
		if before != nil {
			if err := sleepCtx(ctx, s.opts.PageDelay); err != nil {
				return nil, err
			}
		}

		pageLimit := min(s.opts.PageSize, limit-len(all))
		page, err := s.ledger.ListSignatures(ctx, feePayer, before, pageLimit)
		if err != nil {
			if before == nil {
				return nil, fmt.Errorf("list signatures for %s: %w", feePayer, err)
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.WarnContext(ctx, "signature page failed, keeping partial history",
				"fee_payer", feePayer.String(),
				"fetched", len(all),
				"error", err,
			)
			break
		}

		all = append(all, page...)
		s.logger.DebugContext(ctx, "fetched signature page",
			"fee_payer", feePayer.String(),
			"page", len(page),
			"total", len(all),
		)
		if len(page) < pageLimit {
			break
		}
		last := page[len(page)-1].Signature
		before = &last
	}

	if len(all) > limit {
		all = all[:limit]
	}
	s.logger.InfoContext(ctx, "listed transactions",
		"fee_payer", feePayer.String(),
		"count", len(all),
	)
	return all, nil
}

// ExtractCreations fetches every successful transaction and collects the account
// creations it funded. Transactions that fail to fetch or parse, or whose fee payer
// differs, are skipped. An address is kept only at its first (newest) occurrence.
// On cancellation it returns what was collected so far.
func (s *Scanner) ExtractCreations(ctx context.Context, feePayer solanago.PublicKey, txs []solana.TransactionInfo) []ParsedAccountCreation {
	successful := make([]solana.TransactionInfo, 0, len(txs))
	for _, tx := range txs {
		if tx.Failed() {
			s.record("failed_onchain")
			continue
		}
		successful = append(successful, tx)
	}

	var creations []ParsedAccountCreation
	seen := make(map[solanago.PublicKey]struct{})

	for i, info := range successful {
		if i > 0 {
			if err := sleepCtx(ctx, s.opts.TxDelay); err != nil {
				break
			}
		}

		tx, err := s.ledger.GetParsedTransaction(ctx, info.Signature)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to fetch transaction, skipping",
				"signature", info.Signature.String(),
				"error", err,
			)
			s.record("fetch_error")
			continue
		}
		if tx == nil {
			s.record("missing")
			continue
		}
		if !SameAddress(tx.FeePayer, feePayer) {
			s.logger.DebugContext(ctx, "fee payer mismatch, skipping",
				"signature", info.Signature.String(),
				"tx_fee_payer", tx.FeePayer.String(),
			)
			s.record("payer_mismatch")
			continue
		}
		s.record("parsed")

		for _, c := range CreationsInTransaction(tx) {
			if _, dup := seen[c.Address]; dup {
				continue
			}
			seen[c.Address] = struct{}{}
			creations = append(creations, c)
			if s.metrics != nil {
				s.metrics.RecordCreationFound(string(c.Kind))
			}
		}

		done := i + 1
		if done%s.opts.ProgressEvery == 0 {
			s.logger.InfoContext(ctx, "parsing transactions",
				"done", done,
				"total", len(successful),
				"creations", len(creations),
			)
		}
		s.opts.report("parse", done, len(successful))
	}

	s.logger.InfoContext(ctx, "extracted account creations",
		"fee_payer", feePayer.String(),
		"transactions", len(successful),
		"creations", len(creations),
	)
	return creations
}

// Scan lists the fee payer's history and extracts its account creations.
func (s *Scanner) Scan(ctx context.Context, feePayer solanago.PublicKey, limit int) (*ScanResult, error) {
	txs, err := s.ListTransactions(ctx, feePayer, limit)
	if err != nil {
		return nil, err
	}
	creations := s.ExtractCreations(ctx, feePayer, txs)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	failed := 0
	for _, tx := range txs {
		if tx.Failed() {
			failed++
		}
	}
	return &ScanResult{
		FeePayer:     feePayer,
		Transactions: len(txs),
		Failed:       failed,
		Creations:    creations,
		ScannedAt:    time.Now().UTC(),
	}, nil
}

func (s *Scanner) record(status string) {
	if s.metrics != nil {
		s.metrics.RecordTransactionScanned(status)
	}
}
