package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brojonat/solvent/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// RPCClient is the subset of Solana JSON-RPC the ledger client needs.
// It lets tests mock the RPC layer without hitting real Solana nodes.
type RPCClient interface {
	GetSignaturesForAddress(
		ctx context.Context,
		address solana.PublicKey,
		opts *rpc.GetSignaturesForAddressOpts,
	) ([]*rpc.TransactionSignature, error)

	GetTransaction(
		ctx context.Context,
		signature solana.Signature,
		opts *rpc.GetTransactionOpts,
	) (*rpc.GetTransactionResult, error)

	GetAccountInfo(
		ctx context.Context,
		address solana.PublicKey,
		opts *rpc.GetAccountInfoOpts,
	) (*rpc.GetAccountInfoResult, error)

	GetLatestBlockhash(
		ctx context.Context,
		commitment rpc.CommitmentType,
	) (*rpc.GetLatestBlockhashResult, error)

	SendTransaction(
		ctx context.Context,
		tx *solana.Transaction,
		opts rpc.TransactionOpts,
	) (solana.Signature, error)

	GetSignatureStatuses(
		ctx context.Context,
		signatures ...solana.Signature,
	) (*rpc.GetSignatureStatusesResult, error)
}

const (
	defaultConfirmPollInterval = 500 * time.Millisecond
	defaultConfirmTimeout      = 60 * time.Second
	defaultRateLimitBackoff    = 2 * time.Second
	maxRateLimitAttempts       = 3
)

// Client is the ledger read/write surface used by the rent pipeline.
// Absent transactions and accounts are reported as (nil, nil), never as errors.
type Client struct {
	rpc      RPCClient
	logger   *slog.Logger
	metrics  *metrics.Metrics
	endpoint string // label for metrics (e.g. "mainnet", "devnet", rpc host)

	confirmPollInterval time.Duration
	confirmTimeout      time.Duration
	rateLimitBackoff    time.Duration
}

// NewClient creates a new ledger client.
// The endpoint parameter is only used for metrics labeling.
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		rpc:                 rpcClient,
		logger:              logger,
		metrics:             m,
		endpoint:            endpoint,
		confirmPollInterval: defaultConfirmPollInterval,
		confirmTimeout:      defaultConfirmTimeout,
		rateLimitBackoff:    defaultRateLimitBackoff,
	}
}

// Dial creates a client bound to the target's RPC URL.
func Dial(target Target, m *metrics.Metrics, logger *slog.Logger) *Client {
	return NewClient(NewRPCClient(target.RPCURL()), target.Label(), m, logger)
}

// SetConfirmation overrides how often and how long SubmitCloseInstruction polls for confirmation.
func (c *Client) SetConfirmation(pollInterval, timeout time.Duration) {
	c.confirmPollInterval = pollInterval
	c.confirmTimeout = timeout
}

// ListSignatures returns up to limit signatures for address, newest first,
// strictly older than before when before is set.
func (c *Client) ListSignatures(
	ctx context.Context,
	address solana.PublicKey,
	before *solana.Signature,
	limit int,
) ([]TransactionInfo, error) {
	opts := &rpc.GetSignaturesForAddressOpts{
		Limit: &limit,
	}
	if before != nil {
		opts.Before = *before
	}

	c.logger.DebugContext(ctx, "calling GetSignaturesForAddress",
		"address", address.String(),
		"limit", limit,
		"before", before,
	)

	var signatures []*rpc.TransactionSignature
	err := c.call(ctx, "GetSignaturesForAddress", func() error {
		var err error
		signatures, err = c.rpc.GetSignaturesForAddress(ctx, address, opts)
		return err
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to get signatures",
			"address", address.String(),
			"error", err,
		)
		return nil, fmt.Errorf("get signatures for %s: %w", address, err)
	}
	if c.metrics != nil {
		c.metrics.RecordRPCSignaturesPerCall(c.endpoint, float64(len(signatures)))
	}

	infos := make([]TransactionInfo, 0, len(signatures))
	for _, sig := range signatures {
		if sig == nil {
			continue
		}
		infos = append(infos, signatureToInfo(sig))
	}
	return infos, nil
}

// GetParsedTransaction fetches and decodes a confirmed transaction.
// It returns (nil, nil) when the ledger no longer has the transaction.
func (c *Client) GetParsedTransaction(ctx context.Context, signature solana.Signature) (*ParsedTransaction, error) {
	var result *rpc.GetTransactionResult
	err := c.call(ctx, "GetTransaction", func() error {
		var err error
		result, err = c.rpc.GetTransaction(ctx, signature, &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			MaxSupportedTransactionVersion: &[]uint64{0}[0],
		})
		return err
	})

	// Older nodes reject the version field on legacy transactions.
	if err != nil && strings.Contains(err.Error(), "expects '\"' or 'n', but found '{'") {
		c.logger.WarnContext(ctx, "could not parse as versioned tx, retrying as legacy",
			"signature", signature.String(),
		)
		if c.metrics != nil {
			c.metrics.RecordRPCRetry("GetTransaction", "parse_error")
		}
		err = c.call(ctx, "GetTransaction", func() error {
			var err error
			result, err = c.rpc.GetTransaction(ctx, signature, &rpc.GetTransactionOpts{
				Encoding: solana.EncodingBase64,
			})
			return err
		})
	}

	if errors.Is(err, rpc.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", signature, err)
	}
	if result == nil || result.Transaction == nil {
		return nil, nil
	}

	parsed, err := parseTransactionResult(signature, result)
	if err != nil {
		return nil, fmt.Errorf("parse transaction %s: %w", signature, err)
	}
	return parsed, nil
}

// GetAccountInfo returns the live state of address, or (nil, nil) if the account does not exist.
func (c *Client) GetAccountInfo(ctx context.Context, address solana.PublicKey) (*AccountInfo, error) {
	out, err := c.getAccount(ctx, address)
	if err != nil || out == nil {
		return nil, err
	}
	info := &AccountInfo{
		Address:  address,
		Lamports: out.Lamports,
		Owner:    out.Owner,
	}
	if out.Data != nil {
		info.DataLen = len(out.Data.GetBinary())
	}
	return info, nil
}

// GetTokenAccountDetail decodes address as an SPL token account.
// It returns (nil, nil) when the account does not exist and an error when
// the account exists but is not owned by a token program.
func (c *Client) GetTokenAccountDetail(ctx context.Context, address solana.PublicKey) (*TokenAccountDetail, error) {
	out, err := c.getAccount(ctx, address)
	if err != nil || out == nil {
		return nil, err
	}
	if !IsTokenProgram(out.Owner) {
		return nil, fmt.Errorf("account %s is owned by %s, not a token program", address, out.Owner)
	}
	if out.Data == nil {
		return nil, fmt.Errorf("account %s has no data", address)
	}

	detail, err := decodeTokenAccount(out.Data.GetBinary())
	if err != nil {
		return nil, fmt.Errorf("decode token account %s: %w", address, err)
	}
	detail.Address = address
	detail.ProgramID = out.Owner
	detail.Lamports = out.Lamports
	return detail, nil
}

func (c *Client) getAccount(ctx context.Context, address solana.PublicKey) (*rpc.Account, error) {
	var out *rpc.GetAccountInfoResult
	err := c.call(ctx, "GetAccountInfo", func() error {
		var err error
		out, err = c.rpc.GetAccountInfo(ctx, address, &rpc.GetAccountInfoOpts{
			Encoding:   solana.EncodingBase64,
			Commitment: rpc.CommitmentConfirmed,
		})
		return err
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account info %s: %w", address, err)
	}
	if out == nil || out.Value == nil {
		return nil, nil
	}
	return out.Value, nil
}

// SubmitCloseInstruction closes a token account, returning its rent to req.Destination.
// The authority key pays the fee and signs as close authority. The call returns once
// the transaction is confirmed, or with an error if it fails or is not confirmed in time.
func (c *Client) SubmitCloseInstruction(ctx context.Context, req CloseRequest) (solana.Signature, error) {
	tx, err := c.buildCloseTransaction(ctx, req)
	if err != nil {
		return solana.Signature{}, err
	}

	var sig solana.Signature
	err = c.call(ctx, "SendTransaction", func() error {
		var err error
		sig, err = c.rpc.SendTransaction(ctx, tx, rpc.TransactionOpts{
			PreflightCommitment: rpc.CommitmentConfirmed,
		})
		return err
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send close transaction for %s: %w", req.Account, err)
	}

	c.logger.InfoContext(ctx, "close transaction submitted",
		"account", req.Account.String(),
		"signature", sig.String(),
	)

	start := time.Now()
	err = c.waitForConfirmation(ctx, sig)
	if c.metrics != nil {
		status := "confirmed"
		if err != nil {
			status = "error"
		}
		c.metrics.RecordCloseConfirmation(status, time.Since(start).Seconds())
	}
	if err != nil {
		return sig, err
	}
	return sig, nil
}

func (c *Client) waitForConfirmation(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.confirmPollInterval)
	defer ticker.Stop()

	for {
		var out *rpc.GetSignatureStatusesResult
		err := c.call(ctx, "GetSignatureStatuses", func() error {
			var err error
			out, err = c.rpc.GetSignatureStatuses(ctx, sig)
			return err
		})
		if err != nil {
			c.logger.WarnContext(ctx, "failed to poll signature status",
				"signature", sig.String(),
				"error", err,
			)
		} else if out != nil && len(out.Value) > 0 && out.Value[0] != nil {
			status := out.Value[0]
			if status.Err != nil {
				return fmt.Errorf("transaction %s failed: %v", sig, status.Err)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("transaction %s not confirmed: %w", sig, ctx.Err())
		case <-ticker.C:
		}
	}
}

// call runs one RPC call with metrics, retrying only on rate limiting (HTTP 429).
func (c *Client) call(ctx context.Context, method string, fn func() error) error {
	var err error
	for attempt := range maxRateLimitAttempts {
		start := time.Now()
		err = fn()
		if c.metrics != nil {
			status := "success"
			if err != nil && !errors.Is(err, rpc.ErrNotFound) {
				status = "error"
			}
			c.metrics.RecordRPCCall(method, status, c.endpoint, time.Since(start).Seconds())
		}
		if err == nil || !isRateLimited(err) || attempt == maxRateLimitAttempts-1 {
			return err
		}

		backoff := c.rateLimitBackoff << uint(attempt) // 2s, 4s
		c.logger.WarnContext(ctx, "rate limited, sleeping before retry",
			"method", method,
			"attempt", attempt+1,
			"backoff_seconds", backoff.Seconds(),
		)
		if c.metrics != nil {
			c.metrics.RecordRateLimitHit(c.endpoint)
			c.metrics.RecordRPCRetry(method, "rate_limit")
		}
		if err := sleepCtx(ctx, backoff); err != nil {
			return err
		}
	}
	return err
}

func isRateLimited(err error) bool {
	return strings.Contains(err.Error(), "429")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
