package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/mr-tron/base58"

	"github.com/brojonat/solvent/service/config"
	"github.com/brojonat/solvent/service/db"
	"github.com/brojonat/solvent/service/rent"
	"github.com/brojonat/solvent/service/solana"
	"github.com/brojonat/solvent/service/temporal"
	"github.com/brojonat/solvent/service/watch"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB
	maxAddressLength   = 64      // base58 of 32 bytes is at most 44 chars
	maxOwnerIDLength   = 128
	maxScanLimit       = 10000
)

// Store defines the persistence operations the handlers need.
type Store interface {
	TrackAddress(ctx context.Context, ownerID, address, network string) (*db.TrackedAddress, error)
	UntrackAddress(ctx context.Context, ownerID, address string) error
	ListTrackedAddresses(ctx context.Context, ownerID string) ([]db.TrackedAddress, error)
	ListTrackedByAddress(ctx context.Context, address string) ([]db.TrackedAddress, error)
	GetLatestSnapshot(ctx context.Context, address, network string) (*watch.Snapshot, error)
}

// scanResponse is the body of GET /api/v1/scan/{address}.
type scanResponse struct {
	Address      string                  `json:"address"`
	Network      solana.Network          `json:"network"`
	Endpoint     string                  `json:"endpoint"`
	Transactions int                     `json:"transactions"`
	Creations    int                     `json:"creations"`
	Accounts     []rent.SponsoredAccount `json:"accounts"`
	Stats        rent.RentStats          `json:"stats"`
	ScannedAt    time.Time               `json:"scanned_at"`
}

// trackRequest is the body of POST /api/v1/tracked.
type trackRequest struct {
	Address  string `json:"address"`
	Network  string `json:"network"`
	OwnerID  string `json:"owner_id"`
	Interval string `json:"interval,omitempty"`
}

// handleScan returns a handler that runs scan, classify and aggregate for a fee payer.
// GET /api/v1/scan/{address}?network={network}&endpoint={url}&limit={n}
func handleScan(analyzer rent.Analyzer, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		q := r.URL.Query()
		network := q.Get("network")
		if network == "" {
			network = string(cfg.SolanaNetwork)
		}
		parsed, err := solana.ParseNetwork(network)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		target := cfg.Target(parsed)
		if endpoint := q.Get("endpoint"); endpoint != "" {
			target, err = solana.NewTarget(string(parsed), endpoint)
			if err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		limit := cfg.ScanLimit
		if raw := q.Get("limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil || limit <= 0 || limit > maxScanLimit {
				writeError(w, fmt.Sprintf("invalid limit: must be between 1 and %d", maxScanLimit), http.StatusBadRequest)
				return
			}
		}

		feePayer, err := rent.ParseAddress(address)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		report, err := analyzer.Analyze(r.Context(), target, feePayer, limit)
		if err != nil {
			if errors.Is(err, rent.ErrValidation) {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			logger.Error("scan failed", "address", address, "network", parsed, "error", err)
			writeError(w, "scan failed", http.StatusBadGateway)
			return
		}

		logger.Debug("scan complete",
			"address", address,
			"network", parsed,
			"accounts", len(report.Accounts),
		)

		writeJSON(w, scanResponse{
			Address:      address,
			Network:      parsed,
			Endpoint:     target.Label(),
			Transactions: report.Transactions,
			Creations:    report.Creations,
			Accounts:     report.Accounts,
			Stats:        report.Stats,
			ScannedAt:    report.ScannedAt,
		}, http.StatusOK)
	})
}

// handleTrack returns a handler that tracks an address for an owner and makes
// sure a watch schedule exists for it.
// POST /api/v1/tracked
func handleTrack(store Store, scheduler temporal.Scheduler, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req trackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				writeError(w, "request body too large: maximum size is 1MB", http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		if err := validateAddress(req.Address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := validateOwnerID(req.OwnerID); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Network == "" {
			req.Network = string(cfg.SolanaNetwork)
		}
		network, err := solana.ParseNetwork(req.Network)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		interval := cfg.DefaultWatchInterval
		if req.Interval != "" {
			interval, err = time.ParseDuration(req.Interval)
			if err != nil {
				writeError(w, "invalid interval: must be a valid duration (e.g. '30m', '1h')", http.StatusBadRequest)
				return
			}
			if interval < cfg.MinWatchInterval {
				writeError(w, fmt.Sprintf("interval too short: minimum is %v", cfg.MinWatchInterval), http.StatusBadRequest)
				return
			}
		}

		tracked, err := store.TrackAddress(r.Context(), req.OwnerID, req.Address, string(network))
		if errors.Is(err, db.ErrAlreadyTracked) {
			writeError(w, "address already tracked", http.StatusConflict)
			return
		}
		if err != nil {
			logger.Error("failed to track address", "address", req.Address, "error", err)
			writeError(w, "failed to track address", http.StatusInternalServerError)
			return
		}

		if err := scheduler.UpsertWatchSchedule(r.Context(), req.Address, string(network), interval); err != nil {
			logger.Error("failed to create watch schedule, rolling back",
				"address", req.Address,
				"network", network,
				"error", err,
			)
			if rbErr := store.UntrackAddress(r.Context(), req.OwnerID, req.Address); rbErr != nil {
				logger.Error("failed to roll back tracked address", "address", req.Address, "error", rbErr)
			}
			writeError(w, "failed to create watch schedule", http.StatusInternalServerError)
			return
		}

		logger.Info("address tracked",
			"address", req.Address,
			"network", network,
			"owner_id", req.OwnerID,
			"interval", interval,
		)
		writeJSON(w, tracked, http.StatusCreated)
	})
}

// handleUntrack returns a handler that stops tracking an address for an owner.
// The watch schedule is removed once no owner tracks the address on that network.
// DELETE /api/v1/tracked/{address}?owner_id={owner}
func handleUntrack(store Store, scheduler temporal.Scheduler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		ownerID := r.URL.Query().Get("owner_id")

		if err := validateAddress(address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := validateOwnerID(ownerID); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		owners, err := store.ListTrackedByAddress(r.Context(), address)
		if err != nil {
			logger.Error("failed to list owners", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		var network string
		remaining := map[string]bool{}
		for _, o := range owners {
			if o.OwnerID == ownerID {
				network = o.Network
				continue
			}
			remaining[o.Network] = true
		}

		if err := store.UntrackAddress(r.Context(), ownerID, address); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "tracked address not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to untrack address", "address", address, "error", err)
			writeError(w, "failed to untrack address", http.StatusInternalServerError)
			return
		}

		if network != "" && !remaining[network] {
			if err := scheduler.DeleteWatchSchedule(r.Context(), address, network); err != nil {
				logger.Warn("failed to delete watch schedule", "address", address, "network", network, "error", err)
			}
		}

		logger.Info("address untracked", "address", address, "owner_id", ownerID)
		w.WriteHeader(http.StatusNoContent)
	})
}

// handleListTracked returns a handler that lists tracked addresses.
// GET /api/v1/tracked?owner_id={owner}
func handleListTracked(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerID := r.URL.Query().Get("owner_id")
		if len(ownerID) > maxOwnerIDLength {
			writeError(w, "owner_id too long", http.StatusBadRequest)
			return
		}

		tracked, err := store.ListTrackedAddresses(r.Context(), ownerID)
		if err != nil {
			logger.Error("failed to list tracked addresses", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if tracked == nil {
			tracked = []db.TrackedAddress{}
		}

		writeJSON(w, map[string]interface{}{
			"tracked": tracked,
		}, http.StatusOK)
	})
}

// handleLatestSnapshot returns a handler that returns the latest stored snapshot.
// GET /api/v1/snapshots/{address}?network={network}
func handleLatestSnapshot(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		network := r.URL.Query().Get("network")
		if network != "" {
			parsed, err := solana.ParseNetwork(network)
			if err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			network = string(parsed)
		}

		snap, err := store.GetLatestSnapshot(r.Context(), address, network)
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, "no snapshot for address", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.Error("failed to get snapshot", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, snap, http.StatusOK)
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, map[string]string{"error": message}, statusCode)
}

// validateAddress checks that address is base58 text of a 32-byte public key.
func validateAddress(address string) error {
	if address == "" {
		return errorf("address is required")
	}
	if len(address) > maxAddressLength {
		return errorf("address too long: maximum length is %d characters", maxAddressLength)
	}
	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in address: control characters not allowed")
		}
	}
	raw, err := base58.Decode(address)
	if err != nil {
		return errorf("invalid address format: must contain only valid base58 characters")
	}
	if len(raw) != 32 {
		return errorf("invalid address: decodes to %d bytes, want 32", len(raw))
	}
	return nil
}

func validateOwnerID(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return errorf("owner_id is required")
	}
	if len(ownerID) > maxOwnerIDLength {
		return errorf("owner_id too long: maximum length is %d characters", maxOwnerIDLength)
	}
	return nil
}

// errorf creates a validation error.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: fmt.Sprintf(format, args...)}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
