package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"

	"github.com/brojonat/solvent/service/db"
	"github.com/brojonat/solvent/service/metrics"
	natspkg "github.com/brojonat/solvent/service/nats"
	"github.com/brojonat/solvent/service/rent"
	"github.com/brojonat/solvent/service/solana"
	"github.com/brojonat/solvent/service/watch"
)

// WatchAddressInput identifies the fee payer a scheduled run watches.
type WatchAddressInput struct {
	Address string `json:"address"`
	Network string `json:"network"` // "devnet" or "mainnet-beta"
}

// WatchAddressResult summarizes one scheduled run.
type WatchAddressResult struct {
	Address        string          `json:"address"`
	Network        string          `json:"network"`
	Snapshot       *watch.Snapshot `json:"snapshot,omitempty"`
	Alert          *watch.Alert    `json:"alert,omitempty"`
	AlertPublished bool            `json:"alert_published"`
	RunTime        time.Time       `json:"run_time"`
	Error          *string         `json:"error,omitempty"`
}

// ScanAddressInput contains parameters for the ScanAddress activity.
type ScanAddressInput struct {
	Address string `json:"address"`
	Network string `json:"network"`
}

// ScanAddressResult contains the snapshot produced by a scan.
type ScanAddressResult struct {
	Snapshot watch.Snapshot `json:"snapshot"`
}

// CompareAndStoreInput contains parameters for the CompareAndStoreSnapshot activity.
type CompareAndStoreInput struct {
	Snapshot          watch.Snapshot `json:"snapshot"`
	WorkflowStartedAt time.Time      `json:"workflow_started_at"`
}

// CompareAndStoreResult carries the previous snapshot and the alert, if any.
type CompareAndStoreResult struct {
	Previous *watch.Snapshot `json:"previous,omitempty"`
	Alert    *watch.Alert    `json:"alert,omitempty"`
}

// PublishAlertInput contains parameters for the PublishAlert activity.
type PublishAlertInput struct {
	Alert watch.Alert `json:"alert"`
}

// SnapshotStore defines the database operations needed by activities.
// This allows for easy mocking in tests.
type SnapshotStore interface {
	GetLatestSnapshot(ctx context.Context, address, network string) (*watch.Snapshot, error)
	SaveSnapshot(ctx context.Context, snap watch.Snapshot) error
}

// AlertPublisher defines the NATS publishing operations needed by activities.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, event *natspkg.AlertEvent) error
}

// TargetFunc resolves the ledger endpoint used for a network.
type TargetFunc func(network solana.Network) solana.Target

// Activities holds the dependencies needed by Temporal activities.
type Activities struct {
	analyzer  rent.Analyzer
	targets   TargetFunc
	store     SnapshotStore
	publisher AlertPublisher
	scanLimit int
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If metrics is nil, no metrics will be recorded. A nil publisher drops alerts.
func NewActivities(
	analyzer rent.Analyzer,
	targets TargetFunc,
	store SnapshotStore,
	publisher AlertPublisher,
	scanLimit int,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	if targets == nil {
		targets = func(n solana.Network) solana.Target { return solana.Target{Network: n} }
	}
	if scanLimit <= 0 {
		scanLimit = rent.DefaultScanLimit
	}
	return &Activities{
		analyzer:  analyzer,
		targets:   targets,
		store:     store,
		publisher: publisher,
		scanLimit: scanLimit,
		metrics:   m,
		logger:    logger,
	}
}

func (a *Activities) observe(activity, address string, start time.Time) {
	if a.metrics != nil {
		a.metrics.RecordActivityDuration(activity, address, time.Since(start).Seconds())
	}
}

// ScanAddress runs scan, classify and aggregate for the fee payer and returns
// the snapshot to compare. Bad input is not retried.
func (a *Activities) ScanAddress(ctx context.Context, input ScanAddressInput) (*ScanAddressResult, error) {
	defer a.observe("ScanAddress", input.Address, time.Now())

	feePayer, err := rent.ParseAddress(input.Address)
	if err != nil {
		return nil, temporalsdk.NewNonRetryableApplicationError(err.Error(), "InvalidAddress", err)
	}
	network, err := solana.ParseNetwork(input.Network)
	if err != nil {
		return nil, temporalsdk.NewNonRetryableApplicationError(err.Error(), "InvalidNetwork", err)
	}

	a.logger.DebugContext(ctx, "scanning fee payer",
		"address", input.Address,
		"network", network,
		"limit", a.scanLimit,
	)

	report, err := a.analyzer.Analyze(ctx, a.targets(network), feePayer, a.scanLimit)
	if err != nil {
		a.logger.ErrorContext(ctx, "scan failed",
			"address", input.Address,
			"network", network,
			"error", err,
		)
		return nil, fmt.Errorf("failed to scan %s: %w", input.Address, err)
	}

	snap := watch.FromReport(report)
	a.logger.InfoContext(ctx, "scan complete",
		"address", input.Address,
		"network", network,
		"accounts", snap.TotalAccounts,
		"closeable", snap.CloseableCount,
	)
	return &ScanAddressResult{Snapshot: snap}, nil
}

// CompareAndStoreSnapshot diffs the snapshot against the latest stored one and
// saves it. The result carries an alert only when closeable accounts increased.
func (a *Activities) CompareAndStoreSnapshot(ctx context.Context, input CompareAndStoreInput) (*CompareAndStoreResult, error) {
	snap := input.Snapshot
	defer a.observe("CompareAndStoreSnapshot", snap.Address, time.Now())

	prev, err := a.store.GetLatestSnapshot(ctx, snap.Address, snap.Network)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("failed to load previous snapshot: %w", err)
	}
	if errors.Is(err, db.ErrNotFound) {
		prev = nil
	}

	alert := watch.Compare(prev, snap)

	if err := a.store.SaveSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}

	status := "unchanged"
	if alert != nil {
		status = "alert"
		if a.metrics != nil {
			a.metrics.RecordAlertRaised(snap.Network)
		}
		a.logger.InfoContext(ctx, "new closeable accounts detected",
			"address", snap.Address,
			"network", snap.Network,
			"new_closeable", alert.NewCloseable,
		)
	}
	if a.metrics != nil && !input.WorkflowStartedAt.IsZero() {
		a.metrics.RecordWorkflowDuration(snap.Address, status, time.Since(input.WorkflowStartedAt).Seconds())
	}

	return &CompareAndStoreResult{Previous: prev, Alert: alert}, nil
}

// PublishAlert publishes the alert to NATS for the bot to deliver.
func (a *Activities) PublishAlert(ctx context.Context, input PublishAlertInput) error {
	defer a.observe("PublishAlert", input.Alert.Address, time.Now())

	if a.publisher == nil {
		a.logger.WarnContext(ctx, "no publisher configured, dropping alert", "address", input.Alert.Address)
		return nil
	}
	if err := a.publisher.PublishAlert(ctx, natspkg.FromAlert(&input.Alert)); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	return nil
}
