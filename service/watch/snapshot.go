// Package watch detects new closeable accounts between consecutive scans of a
// fee payer and formats the resulting alerts.
package watch

import (
	"time"

	"github.com/brojonat/solvent/service/rent"
	"github.com/brojonat/solvent/service/solana"
)

// Snapshot is the part of a scan kept between runs for change detection.
type Snapshot struct {
	Address             string    `json:"address"`
	Network             string    `json:"network"`
	TotalAccounts       int       `json:"total_accounts"`
	CloseableCount      int       `json:"closeable_count"`
	ReclaimableCount    int       `json:"reclaimable_count"`
	TotalRentLamports   uint64    `json:"total_rent_lamports"`
	ReclaimableLamports uint64    `json:"reclaimable_lamports"`
	ScannedAt           time.Time `json:"scanned_at"`
}

// NewSnapshot captures stats for address on network.
func NewSnapshot(address string, network solana.Network, stats rent.RentStats, scannedAt time.Time) Snapshot {
	return Snapshot{
		Address:             address,
		Network:             string(network),
		TotalAccounts:       stats.TotalAccounts,
		CloseableCount:      stats.CloseableAccounts,
		ReclaimableCount:    stats.ReclaimableAccounts,
		TotalRentLamports:   stats.TotalLocked,
		ReclaimableLamports: stats.Reclaimable,
		ScannedAt:           scannedAt.UTC(),
	}
}

// FromReport captures a pipeline report.
func FromReport(report *rent.Report) Snapshot {
	return NewSnapshot(report.FeePayer.String(), report.Network, report.Stats, report.ScannedAt)
}

// Alert describes closeable accounts that appeared since the previous scan.
type Alert struct {
	Address             string    `json:"address"`
	Network             string    `json:"network"`
	PreviousCloseable   int       `json:"previous_closeable"`
	CurrentCloseable    int       `json:"current_closeable"`
	NewCloseable        int       `json:"new_closeable"`
	ReclaimableLamports uint64    `json:"reclaimable_lamports"`
	ReclaimableGained   uint64    `json:"reclaimable_gained"`
	TotalLockedLamports uint64    `json:"total_locked_lamports"`
	DetectedAt          time.Time `json:"detected_at"`
}

// Compare returns an alert when next has more closeable accounts than prev.
// There is nothing to compare on the first scan, so a nil prev never alerts.
func Compare(prev *Snapshot, next Snapshot) *Alert {
	if prev == nil || next.CloseableCount <= prev.CloseableCount {
		return nil
	}
	alert := &Alert{
		Address:             next.Address,
		Network:             next.Network,
		PreviousCloseable:   prev.CloseableCount,
		CurrentCloseable:    next.CloseableCount,
		NewCloseable:        next.CloseableCount - prev.CloseableCount,
		ReclaimableLamports: next.ReclaimableLamports,
		TotalLockedLamports: next.TotalRentLamports,
		DetectedAt:          next.ScannedAt,
	}
	if next.ReclaimableLamports > prev.ReclaimableLamports {
		alert.ReclaimableGained = next.ReclaimableLamports - prev.ReclaimableLamports
	}
	return alert
}

// Closed returns how many closeable accounts disappeared since prev.
func Closed(prev *Snapshot, next Snapshot) int {
	if prev == nil || next.CloseableCount >= prev.CloseableCount {
		return 0
	}
	return prev.CloseableCount - next.CloseableCount
}
