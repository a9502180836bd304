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

// ReclaimOptions controls a reclaim batch.
type ReclaimOptions struct {
	DryRun      bool
	BatchSize   int                 // 0 means DefaultBatchSize
	Destination *solanago.PublicKey // nil means the signer
}

// Reclaimer closes eligible accounts and returns their rent.
type Reclaimer struct {
	ledger  Ledger
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewReclaimer creates a Reclaimer. If metrics is nil, no metrics are recorded.
func NewReclaimer(ledger Ledger, opts Options, m *metrics.Metrics, logger *slog.Logger) *Reclaimer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reclaimer{
		ledger:  ledger,
		opts:    opts.withDefaults(),
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Reclaim closes up to BatchSize eligible accounts in input order and returns one
// result per processed account. Per-account failures become failed results; the
// returned error is only for invalid input, which is rejected before any ledger I/O.
func (r *Reclaimer) Reclaim(ctx context.Context, accounts []SponsoredAccount, signer solanago.PrivateKey, opts ReclaimOptions) ([]ReclaimResult, error) {
	if !opts.DryRun && len(signer) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrValidation, ErrMissingSigner)
	}
	if opts.BatchSize < 0 {
		return nil, validationErrorf("batch size must be positive, got %d", opts.BatchSize)
	}
	batchSize := opts.BatchSize
	if batchSize == 0 {
		batchSize = DefaultBatchSize
	}

	eligible := ReclaimableAccounts(accounts)
	if len(eligible) > batchSize {
		eligible = eligible[:batchSize]
	}
	if len(eligible) == 0 {
		r.logger.InfoContext(ctx, "no accounts available for reclaim")
		return []ReclaimResult{}, nil
	}

	var signerKey, destination solanago.PublicKey
	if len(signer) > 0 {
		signerKey = signer.PublicKey()
		destination = signerKey
	}
	if opts.Destination != nil {
		destination = *opts.Destination
	}

	r.logger.InfoContext(ctx, "reclaiming rent",
		"accounts", len(eligible),
		"dry_run", opts.DryRun,
		"destination", destination.String(),
	)

	results := make([]ReclaimResult, 0, len(eligible))
	for i, acct := range eligible {
		if !opts.DryRun && i > 0 {
			if err := sleepCtx(ctx, r.opts.ReclaimDelay); err != nil {
				break
			}
		}

		var res ReclaimResult
		if opts.DryRun {
			res = r.dryRun(acct)
		} else {
			res = r.closeOne(ctx, acct, signer, signerKey, destination)
		}
		results = append(results, res)
		r.record(res)

		if res.Success {
			r.logger.InfoContext(ctx, "reclaimed account",
				"account", acct.Address.String(),
				"rent", FormatSOL(res.RentReclaimed),
				"dry_run", res.DryRun,
			)
		} else {
			r.logger.WarnContext(ctx, "failed to reclaim account",
				"account", acct.Address.String(),
				"error", *res.Error,
			)
		}
	}

	summary := Summarize(results)
	r.logger.InfoContext(ctx, "reclaim summary",
		"processed", summary.Processed,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"reclaimed", FormatSOL(summary.TotalReclaimed),
		"dry_run", opts.DryRun,
	)
	return results, nil
}

func (r *Reclaimer) dryRun(acct SponsoredAccount) ReclaimResult {
	if err := verifyRecorded(acct); err != nil {
		return r.failed(acct, true, err)
	}
	return ReclaimResult{
		Account:       acct.Address,
		Success:       true,
		RentReclaimed: acct.RentLamports,
		Timestamp:     r.now().UTC(),
		DryRun:        true,
	}
}

func (r *Reclaimer) closeOne(
	ctx context.Context,
	acct SponsoredAccount,
	signer solanago.PrivateKey,
	signerKey, destination solanago.PublicKey,
) ReclaimResult {
	if err := verifyRecorded(acct); err != nil {
		return r.failed(acct, false, err)
	}

	// Classification may be stale; re-read the live token account.
	detail, err := r.ledger.GetTokenAccountDetail(ctx, acct.Address)
	if err != nil {
		return r.failed(acct, false, fmt.Errorf("verify account: %w", err))
	}
	if detail == nil {
		return r.failed(acct, false, fmt.Errorf("account no longer exists"))
	}
	if detail.Amount > 0 {
		return r.failed(acct, false, fmt.Errorf("account has non-zero balance: %d", detail.Amount))
	}
	if authority := detail.EffectiveCloseAuthority(); !SameAddress(authority, signerKey) {
		return r.failed(acct, false, fmt.Errorf("close authority %s does not match signer %s", authority, signerKey))
	}

	sig, err := r.ledger.SubmitCloseInstruction(ctx, solana.CloseRequest{
		Account:     acct.Address,
		Destination: destination,
		Authority:   signer,
		ProgramID:   detail.ProgramID,
	})
	if err != nil {
		return r.failed(acct, false, err)
	}
	return ReclaimResult{
		Account:       acct.Address,
		Success:       true,
		RentReclaimed: acct.RentLamports,
		Signature:     &sig,
		Timestamp:     r.now().UTC(),
	}
}

// verifyRecorded re-checks the recorded eligibility conditions.
func verifyRecorded(acct SponsoredAccount) error {
	switch {
	case acct.Classification != Reclaimable:
		return fmt.Errorf("account is not reclaimable (close authority is not the fee payer)")
	case acct.Status != StatusCloseable:
		return fmt.Errorf("account is not closeable (status %s)", acct.Status)
	case acct.TokenBalance > 0:
		return fmt.Errorf("account has non-zero balance: %d", acct.TokenBalance)
	}
	return nil
}

func (r *Reclaimer) failed(acct SponsoredAccount, dryRun bool, err error) ReclaimResult {
	msg := err.Error()
	return ReclaimResult{
		Account:   acct.Address,
		Success:   false,
		Error:     &msg,
		Timestamp: r.now().UTC(),
		DryRun:    dryRun,
	}
}

func (r *Reclaimer) record(res ReclaimResult) {
	if r.metrics == nil {
		return
	}
	mode := "live"
	if res.DryRun {
		mode = "dry_run"
	}
	status := "success"
	if !res.Success {
		status = "error"
	}
	r.metrics.RecordReclaim(status, mode, res.RentReclaimed)
}

// Summarize totals a batch of results. TotalReclaimed sums RentReclaimed over successes.
func Summarize(results []ReclaimResult) ReclaimSummary {
	var s ReclaimSummary
	for _, res := range results {
		s.Processed++
		if res.Success {
			s.Succeeded++
			s.TotalReclaimed += res.RentReclaimed
		} else {
			s.Failed++
		}
	}
	return s
}
