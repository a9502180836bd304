package rent

import (
	"context"
	"fmt"
	"log/slog"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/brojonat/solvent/service/metrics"
)

// Classifier turns creation events into classified accounts using live ledger state.
type Classifier struct {
	ledger  Ledger
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewClassifier creates a Classifier. If metrics is nil, no metrics are recorded.
func NewClassifier(ledger Ledger, opts Options, m *metrics.Metrics, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		ledger:  ledger,
		opts:    opts.withDefaults(),
		logger:  logger,
		metrics: m,
	}
}

// Classify produces the current SponsoredAccount for one creation. It only fails
// when the account itself cannot be read; a failed token detail read falls back
// to a zero balance and no authority.
func (c *Classifier) Classify(ctx context.Context, creation ParsedAccountCreation, feePayer solanago.PublicKey) (SponsoredAccount, error) {
	acct := SponsoredAccount{
		Address:           creation.Address,
		Owner:             creation.Owner,
		Mint:              creation.Mint,
		CreationSignature: creation.Signature,
		Classification:    MonitorOnly,
	}
	if creation.BlockTime != nil {
		acct.CreatedAt = creation.BlockTime.UTC()
	}
	if creation.IsToken() {
		acct.Type = TypeTokenAccount
	} else {
		acct.Type = directAccountType(creation.Address)
	}

	info, err := c.ledger.GetAccountInfo(ctx, creation.Address)
	if err != nil {
		return SponsoredAccount{}, fmt.Errorf("get account %s: %w", creation.Address, err)
	}
	if info == nil {
		acct.Status = StatusClosed
		acct.RentLamports = creation.Lamports
		if acct.RentLamports == 0 {
			acct.RentLamports = TokenAccountRentEstimate
		}
		c.record(acct)
		return acct, nil
	}

	acct.RentLamports = info.Lamports

	var authority *solanago.PublicKey
	if creation.IsToken() {
		detail, err := c.ledger.GetTokenAccountDetail(ctx, creation.Address)
		switch {
		case err != nil:
			c.logger.WarnContext(ctx, "failed to read token account, using defaults",
				"address", creation.Address.String(),
				"error", err,
			)
		case detail != nil:
			acct.TokenBalance = detail.Amount
			a := detail.EffectiveCloseAuthority()
			authority = &a
		}
	}
	acct.CloseAuthority = authority

	if acct.TokenBalance == 0 {
		acct.Status = StatusCloseable
	} else {
		acct.Status = StatusActive
	}

	if authority != nil && SameAddress(*authority, feePayer) {
		acct.Classification = Reclaimable
	}
	if SameAddress(creation.Owner, feePayer) {
		acct.Classification = Reclaimable
	}

	c.record(acct)
	return acct, nil
}

// ClassifyAll classifies creations one at a time in input order, separated by
// ClassifyDelay. Creations that fail to classify are logged and omitted.
func (c *Classifier) ClassifyAll(ctx context.Context, creations []ParsedAccountCreation, feePayer solanago.PublicKey) []SponsoredAccount {
	accounts := make([]SponsoredAccount, 0, len(creations))
	reclaimable := 0

	for i, creation := range creations {
		if i > 0 {
			if err := sleepCtx(ctx, c.opts.ClassifyDelay); err != nil {
				break
			}
		}

		acct, err := c.Classify(ctx, creation, feePayer)
		if err != nil {
			c.logger.WarnContext(ctx, "failed to classify account, skipping",
				"address", creation.Address.String(),
				"error", err,
			)
			continue
		}
		accounts = append(accounts, acct)
		if acct.Classification == Reclaimable {
			reclaimable++
		}

		done := i + 1
		if done%c.opts.ProgressEvery == 0 {
			c.logger.InfoContext(ctx, "classifying accounts",
				"done", done,
				"total", len(creations),
				"reclaimable", reclaimable,
			)
		}
		c.opts.report("classify", done, len(creations))
	}

	c.logger.InfoContext(ctx, "classification complete",
		"total", len(accounts),
		"reclaimable", reclaimable,
		"closeable", countStatus(accounts, StatusCloseable),
	)
	return accounts
}

func directAccountType(address solanago.PublicKey) AccountType {
	if !IsOnCurve(address) {
		return TypeProgramDerived
	}
	return TypeSystemAccount
}

func (c *Classifier) record(acct SponsoredAccount) {
	if c.metrics != nil {
		c.metrics.RecordAccountClassified(string(acct.Classification), string(acct.Status))
	}
}

func countStatus(accounts []SponsoredAccount, status Status) int {
	n := 0
	for _, a := range accounts {
		if a.Status == status {
			n++
		}
	}
	return n
}
