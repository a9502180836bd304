package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// WatchAddressWorkflow is triggered by a schedule for each tracked fee payer.
//
// The workflow performs these steps:
// 1. Scan, classify and aggregate the fee payer (ScanAddress)
// 2. Diff against the previous snapshot and store the new one (CompareAndStoreSnapshot)
// 3. Publish an alert when new closeable accounts appeared (PublishAlert)
func WatchAddressWorkflow(ctx workflow.Context, input WatchAddressInput) (*WatchAddressResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("WatchAddressWorkflow started", "address", input.Address, "network", input.Network)

	result := &WatchAddressResult{
		Address: input.Address,
		Network: input.Network,
		RunTime: workflow.Now(ctx),
	}
	fail := func(step string, err error) (*WatchAddressResult, error) {
		msg := fmt.Sprintf("%s: %v", step, err)
		result.Error = &msg
		return result, fmt.Errorf("%s: %w", step, err)
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	})

	var scan *ScanAddressResult
	err := workflow.ExecuteActivity(ctx, a.ScanAddress, ScanAddressInput{
		Address: input.Address,
		Network: input.Network,
	}).Get(ctx, &scan)
	if err != nil {
		return fail("failed to scan address", err)
	}
	result.Snapshot = &scan.Snapshot

	var diff *CompareAndStoreResult
	err = workflow.ExecuteActivity(ctx, a.CompareAndStoreSnapshot, CompareAndStoreInput{
		Snapshot:          scan.Snapshot,
		WorkflowStartedAt: result.RunTime,
	}).Get(ctx, &diff)
	if err != nil {
		return fail("failed to compare snapshots", err)
	}

	if diff.Alert == nil {
		logger.Info("no new closeable accounts", "address", input.Address)
		return result, nil
	}
	result.Alert = diff.Alert

	err = workflow.ExecuteActivity(ctx, a.PublishAlert, PublishAlertInput{Alert: *diff.Alert}).Get(ctx, nil)
	if err != nil {
		return fail("failed to publish alert", err)
	}
	result.AlertPublished = true

	logger.Info("WatchAddressWorkflow completed",
		"address", input.Address,
		"closeable", scan.Snapshot.CloseableCount,
		"new_closeable", diff.Alert.NewCloseable,
	)
	return result, nil
}
