package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/brojonat/solvent/service/metrics"
)

// Publisher defines the interface for publishing solvent events to NATS.
type Publisher interface {
	// PublishAlert publishes an alert to "solvent.alerts.{address}".
	PublishAlert(ctx context.Context, event *AlertEvent) error

	// PublishReclaim publishes a reclaim outcome to "solvent.reclaims.{account}".
	PublishReclaim(ctx context.Context, event *ReclaimEvent) error

	// Close closes the connection to NATS.
	Close() error
}

// JetStreamPublisher publishes solvent events to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	logger  *slog.Logger
	metrics *metrics.Metrics
}

const (
	// StreamName is the name of the JetStream stream for solvent events.
	StreamName = "SOLVENT"

	// StreamRetention is how long messages are retained.
	StreamRetention = 7 * 24 * time.Hour
)

// StreamSubjects are the subject patterns captured by the stream.
var StreamSubjects = []string{AlertSubjectPrefix + ".*", ReclaimSubjectPrefix + ".*"}

// connect dials NATS and opens a JetStream context with the stream in place.
func connect(natsURL, name string, logger *slog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name(name),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if err := ensureStream(js, logger); err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}
	return nc, js, nil
}

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the stream exists. If metrics is nil, no metrics are recorded.
func NewPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, js, err := connect(natsURL, "solvent-publisher", logger)
	if err != nil {
		return nil, err
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return &JetStreamPublisher{
		nc:      nc,
		js:      js,
		logger:  logger,
		metrics: m,
	}, nil
}

// ensureStream creates the JetStream stream if it doesn't exist.
func ensureStream(js jetstream.JetStream, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := js.Stream(ctx, StreamName)
	if err == nil {
		info, err := stream.Info(ctx)
		if err == nil {
			logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	logger.Info("creating JetStream stream", "stream", StreamName)

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Closeable-account alerts and reclaim outcomes",
		Subjects:    StreamSubjects,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

// PublishAlert publishes a single alert event.
func (p *JetStreamPublisher) PublishAlert(ctx context.Context, event *AlertEvent) error {
	if err := p.publish(ctx, AlertSubjectPrefix, AlertSubject(event.Address), event); err != nil {
		return err
	}
	p.logger.DebugContext(ctx, "published alert event",
		"address", event.Address,
		"new_closeable", event.NewCloseable,
	)
	return nil
}

// PublishReclaim publishes a single reclaim event.
func (p *JetStreamPublisher) PublishReclaim(ctx context.Context, event *ReclaimEvent) error {
	if err := p.publish(ctx, ReclaimSubjectPrefix, ReclaimSubject(event.Account), event); err != nil {
		return err
	}
	p.logger.DebugContext(ctx, "published reclaim event",
		"account", event.Account,
		"success", event.Success,
	)
	return nil
}

func (p *JetStreamPublisher) publish(ctx context.Context, kind, subject string, event any) error {
	start := time.Now()
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = p.js.Publish(ctx, subject, data)
	if p.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		p.metrics.RecordNATSPublish(kind, status, time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}
