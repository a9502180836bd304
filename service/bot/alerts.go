package bot

import (
	"context"
	"fmt"
	"log/slog"

	natspkg "github.com/brojonat/solvent/service/nats"
	"github.com/brojonat/solvent/service/watch"
)

// Messenger delivers a direct message to a user.
type Messenger interface {
	SendDM(userID, content string) error
}

// AlertNotifier fans alert events out to the owners tracking the address.
type AlertNotifier struct {
	store     Store
	messenger Messenger
	logger    *slog.Logger
}

// NewAlertNotifier creates an AlertNotifier.
func NewAlertNotifier(store Store, messenger Messenger, logger *slog.Logger) *AlertNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &AlertNotifier{store: store, messenger: messenger, logger: logger}
}

// HandleAlert sends the alert to every owner of the address on the alert's
// network who has alerts enabled. It satisfies natspkg.AlertHandler. Only a
// failed owner lookup is returned; a returned error redelivers the event, so
// per-owner delivery failures are logged instead.
func (n *AlertNotifier) HandleAlert(ctx context.Context, event *natspkg.AlertEvent) error {
	owners, err := n.store.ListTrackedByAddress(ctx, event.Address)
	if err != nil {
		return fmt.Errorf("failed to list owners of %s: %w", event.Address, err)
	}

	message := event.Message
	if message == "" {
		message = watch.FormatAlert(&watch.Alert{
			Address:             event.Address,
			Network:             event.Network,
			PreviousCloseable:   event.PreviousCloseable,
			CurrentCloseable:    event.CurrentCloseable,
			NewCloseable:        event.NewCloseable,
			ReclaimableLamports: event.ReclaimableLamports,
			TotalLockedLamports: event.TotalLockedLamports,
			DetectedAt:          event.DetectedAt,
		})
	}

	sent, failed := 0, 0
	for _, owner := range owners {
		if event.Network != "" && owner.Network != event.Network {
			continue
		}
		prefs, err := n.store.GetUserPrefs(ctx, owner.OwnerID)
		if err != nil {
			n.logger.Warn("failed to load preferences", "owner_id", owner.OwnerID, "error", err)
			failed++
			continue
		}
		if !prefs.AlertsEnabled {
			continue
		}
		if err := n.messenger.SendDM(owner.OwnerID, message); err != nil {
			n.logger.Warn("failed to send alert", "owner_id", owner.OwnerID, "address", event.Address, "error", err)
			failed++
			continue
		}
		sent++
	}

	n.logger.Info("alert delivered",
		"address", event.Address,
		"network", event.Network,
		"new_closeable", event.NewCloseable,
		"recipients", sent,
		"failures", failed,
	)
	return nil
}
