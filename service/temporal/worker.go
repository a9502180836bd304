package temporal

import (
	"context"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/brojonat/solvent/service/metrics"
	"github.com/brojonat/solvent/service/rent"
)

// WorkerConfig contains configuration for the Temporal worker.
type WorkerConfig struct {
	// Temporal connection settings
	TemporalHost      string
	TemporalNamespace string
	TaskQueue         string

	// Dependencies
	Analyzer  rent.Analyzer
	Targets   TargetFunc
	Store     SnapshotStore
	Publisher AlertPublisher
	ScanLimit int
	Metrics   *metrics.Metrics // Optional: if nil, no metrics will be recorded
	Logger    *slog.Logger
}

// Worker wraps a Temporal worker and provides lifecycle management.
type Worker struct {
	client client.Client
	worker worker.Worker
	logger *slog.Logger
}

// NewWorker creates and configures a new Temporal worker.
// The worker will process workflows and activities on the configured task queue.
func NewWorker(config WorkerConfig) (*Worker, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Analyzer == nil || config.Store == nil {
		return nil, fmt.Errorf("worker requires an analyzer and a snapshot store")
	}

	logger := config.Logger.With("component", "temporal_worker")

	logger.Info("creating temporal worker",
		"host", config.TemporalHost,
		"namespace", config.TemporalNamespace,
		"task_queue", config.TaskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  config.TemporalHost,
		Namespace: config.TemporalNamespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to temporal: %w", err)
	}

	// Scans are slow and rate limited, keep concurrency low.
	w := worker.New(c, config.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     4,
		MaxConcurrentWorkflowTaskExecutionSize: 10,
	})

	w.RegisterWorkflow(WatchAddressWorkflow)
	logger.Info("registered workflow", "name", "WatchAddressWorkflow")

	activities := NewActivities(
		config.Analyzer,
		config.Targets,
		config.Store,
		config.Publisher,
		config.ScanLimit,
		config.Metrics,
		logger,
	)

	w.RegisterActivity(activities.ScanAddress)
	w.RegisterActivity(activities.CompareAndStoreSnapshot)
	w.RegisterActivity(activities.PublishAlert)

	logger.Info("registered activities",
		"activities", []string{"ScanAddress", "CompareAndStoreSnapshot", "PublishAlert"},
	)

	return &Worker{
		client: c,
		worker: w,
		logger: logger,
	}, nil
}

// Run processes workflows and activities until ctx is done, then stops the
// worker and closes its client.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("starting temporal worker")
	if err := w.worker.Start(); err != nil {
		w.logger.Error("worker failed to start", "error", err)
		w.client.Close()
		return fmt.Errorf("failed to start worker: %w", err)
	}
	<-ctx.Done()
	w.Stop()
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.logger.Info("stopping temporal worker")
	w.worker.Stop()
	w.client.Close()
	w.logger.Info("temporal worker stopped")
}
