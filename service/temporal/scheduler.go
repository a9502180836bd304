package temporal

import (
	"context"
	"time"
)

// Scheduler manages Temporal schedules for watched fee payers.
// Each tracked address gets its own schedule that triggers WatchAddressWorkflow.
type Scheduler interface {
	// UpsertWatchSchedule creates the schedule for address, or updates its
	// interval when it already exists.
	UpsertWatchSchedule(ctx context.Context, address, network string, interval time.Duration) error

	// DeleteWatchSchedule deletes the schedule for address.
	// This stops the address from being watched.
	DeleteWatchSchedule(ctx context.Context, address, network string) error
}

// scheduleID returns the Temporal schedule ID for a watched address.
func scheduleID(address, network string) string {
	return "watch-" + network + "-" + address
}
