package nats

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// AlertHandler processes one alert. Returning an error redelivers the message.
type AlertHandler func(ctx context.Context, event *AlertEvent) error

// Subscriber consumes alert events from JetStream.
type Subscriber struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewSubscriber connects to NATS and ensures the stream exists.
func NewSubscriber(natsURL string, logger *slog.Logger) (*Subscriber, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, js, err := connect(natsURL, "solvent-subscriber", logger)
	if err != nil {
		return nil, err
	}
	return &Subscriber{nc: nc, js: js, logger: logger}, nil
}

// ConsumeAlerts delivers every alert to handle until ctx is done. A non-empty
// durable name resumes from where the previous consumer of that name stopped.
func (s *Subscriber) ConsumeAlerts(ctx context.Context, durable string, handle AlertHandler) error {
	cfg := jetstream.ConsumerConfig{
		FilterSubject: AlertSubjectPrefix + ".*",
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	}
	if durable != "" {
		cfg.Durable = durable
		cfg.Name = durable
	}

	cons, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, cfg)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		event, err := DecodeAlert(msg.Data())
		if err != nil {
			s.logger.WarnContext(ctx, "dropping malformed alert", "subject", msg.Subject(), "error", err)
			_ = msg.Term()
			return
		}
		if err := handle(ctx, event); err != nil {
			s.logger.WarnContext(ctx, "alert handler failed, redelivering",
				"address", event.Address,
				"error", err,
			)
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	defer cc.Stop()

	s.logger.InfoContext(ctx, "consuming alerts", "stream", StreamName, "durable", durable)
	<-ctx.Done()
	return nil
}

// StreamAlerts returns alerts published after the call, for one address or for
// every address when address is empty. The channel is closed when ctx is done.
func (s *Subscriber) StreamAlerts(ctx context.Context, address string) (<-chan *AlertEvent, error) {
	subject := AlertSubjectPrefix + ".*"
	if address != "" {
		subject = AlertSubject(address)
	}

	cons, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	out := make(chan *AlertEvent, 10)
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		_ = msg.Ack()
		event, err := DecodeAlert(msg.Data())
		if err != nil {
			s.logger.WarnContext(ctx, "dropping malformed alert", "subject", msg.Subject(), "error", err)
			return
		}
		select {
		case out <- event:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	go func() {
		<-ctx.Done()
		cc.Stop()
		<-cc.Closed()
		close(out)
	}()
	return out, nil
}

// Close closes the connection to NATS.
func (s *Subscriber) Close() error {
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}
