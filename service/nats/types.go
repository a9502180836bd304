package nats

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/brojonat/solvent/service/rent"
	"github.com/brojonat/solvent/service/watch"
)

const (
	// AlertSubjectPrefix prefixes alert subjects: "solvent.alerts.{address}".
	AlertSubjectPrefix = "solvent.alerts"

	// ReclaimSubjectPrefix prefixes reclaim subjects: "solvent.reclaims.{account}".
	ReclaimSubjectPrefix = "solvent.reclaims"
)

// AlertSubject returns the subject alerts for a fee payer are published to.
func AlertSubject(address string) string {
	return fmt.Sprintf("%s.%s", AlertSubjectPrefix, address)
}

// ReclaimSubject returns the subject reclaim outcomes for an account are published to.
func ReclaimSubject(account string) string {
	return fmt.Sprintf("%s.%s", ReclaimSubjectPrefix, account)
}

// AlertEvent is published when a watched fee payer gains closeable accounts
// between two scans.
type AlertEvent struct {
	Address string `json:"address"`
	Network string `json:"network"`

	PreviousCloseable int `json:"previous_closeable"`
	CurrentCloseable  int `json:"current_closeable"`
	NewCloseable      int `json:"new_closeable"`

	ReclaimableLamports uint64 `json:"reclaimable_lamports"`
	TotalLockedLamports uint64 `json:"total_locked_lamports"`

	Message string `json:"message"`

	DetectedAt  time.Time `json:"detected_at"`
	PublishedAt time.Time `json:"published_at"`
}

// ReclaimEvent records the outcome of one close attempt.
type ReclaimEvent struct {
	Account   string `json:"account"`
	FeePayer  string `json:"fee_payer"`
	Network   string `json:"network"`
	Signature string `json:"signature,omitempty"`

	RentReclaimed uint64 `json:"rent_reclaimed"`
	Success       bool   `json:"success"`
	DryRun        bool   `json:"dry_run"`
	Error         string `json:"error,omitempty"`

	Timestamp   time.Time `json:"timestamp"`
	PublishedAt time.Time `json:"published_at"`
}

// DecodeAlert parses an alert message payload.
func DecodeAlert(data []byte) (*AlertEvent, error) {
	var event AlertEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to decode alert event: %w", err)
	}
	if event.Address == "" {
		return nil, fmt.Errorf("alert event has no address")
	}
	return &event, nil
}

// FromAlert converts a detected alert into an event for publishing.
func FromAlert(alert *watch.Alert) *AlertEvent {
	return &AlertEvent{
		Address:             alert.Address,
		Network:             alert.Network,
		PreviousCloseable:   alert.PreviousCloseable,
		CurrentCloseable:    alert.CurrentCloseable,
		NewCloseable:        alert.NewCloseable,
		ReclaimableLamports: alert.ReclaimableLamports,
		TotalLockedLamports: alert.TotalLockedLamports,
		Message:             watch.FormatAlert(alert),
		DetectedAt:          alert.DetectedAt,
		PublishedAt:         time.Now().UTC(),
	}
}

// FromReclaimResult converts a reclaim outcome into an event for publishing.
func FromReclaimResult(feePayer, network string, res rent.ReclaimResult) *ReclaimEvent {
	event := &ReclaimEvent{
		Account:       res.Account.String(),
		FeePayer:      feePayer,
		Network:       network,
		RentReclaimed: res.RentReclaimed,
		Success:       res.Success,
		DryRun:        res.DryRun,
		Timestamp:     res.Timestamp,
		PublishedAt:   time.Now().UTC(),
	}
	if res.Signature != nil {
		event.Signature = res.Signature.String()
	}
	if res.Error != nil {
		event.Error = *res.Error
	}
	return event
}
