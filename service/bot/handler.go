package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brojonat/solvent/service/db"
	"github.com/brojonat/solvent/service/metrics"
	"github.com/brojonat/solvent/service/rent"
	"github.com/brojonat/solvent/service/solana"
	"github.com/brojonat/solvent/service/temporal"
	"github.com/brojonat/solvent/service/watch"
)

// Command names.
const (
	CmdScan    = "scan"
	CmdTrack   = "track"
	CmdUntrack = "untrack"
	CmdStatus  = "status"
	CmdAlerts  = "alerts"
	CmdNetwork = "network"
	CmdRPC     = "rpc"
	CmdCancel  = "cancel"
	CmdHelp    = "help"
)

// Store is the persistence the bot needs.
type Store interface {
	TrackAddress(ctx context.Context, ownerID, address, network string) (*db.TrackedAddress, error)
	UntrackAddress(ctx context.Context, ownerID, address string) error
	ListTrackedAddresses(ctx context.Context, ownerID string) ([]db.TrackedAddress, error)
	ListTrackedByAddress(ctx context.Context, address string) ([]db.TrackedAddress, error)
	GetUserPrefs(ctx context.Context, ownerID string) (db.UserPrefs, error)
	UpsertUserPrefs(ctx context.Context, prefs db.UserPrefs) (db.UserPrefs, error)
	GetLatestSnapshot(ctx context.Context, address, network string) (*watch.Snapshot, error)
}

// Command is one slash command invocation. Arg is empty when the user gave none.
type Command struct {
	Name string
	Arg  string
}

// HandlerConfig holds the Handler dependencies.
type HandlerConfig struct {
	Store         Store
	Analyzer      rent.Analyzer
	Scheduler     temporal.Scheduler // optional; tracked addresses are not scheduled when nil
	Targets       temporal.TargetFunc
	ScanLimit     int
	WatchInterval time.Duration
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
}

// Handler implements the chat commands independently of the chat transport.
// Every method returns the reply text to send back to the user.
type Handler struct {
	store         Store
	analyzer      rent.Analyzer
	scheduler     temporal.Scheduler
	targets       temporal.TargetFunc
	scanLimit     int
	watchInterval time.Duration
	conversations *Conversations
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	targets := cfg.Targets
	if targets == nil {
		targets = func(n solana.Network) solana.Target { return solana.Target{Network: n} }
	}
	limit := cfg.ScanLimit
	if limit <= 0 {
		limit = rent.DefaultScanLimit
	}
	interval := cfg.WatchInterval
	if interval <= 0 {
		interval = time.Hour
	}
	return &Handler{
		store:         cfg.Store,
		analyzer:      cfg.Analyzer,
		scheduler:     cfg.Scheduler,
		targets:       targets,
		scanLimit:     limit,
		watchInterval: interval,
		conversations: NewConversations(ConversationTTL),
		metrics:       cfg.Metrics,
		logger:        logger,
	}
}

// Conversations exposes the state table, mainly so the bot can prune it.
func (h *Handler) Conversations() *Conversations {
	return h.conversations
}

// Handle runs a slash command for userID. Any pending conversation is reset first.
func (h *Handler) Handle(ctx context.Context, userID string, cmd Command) string {
	h.conversations.Set(userID, StateIdle)
	arg := strings.TrimSpace(cmd.Arg)

	var reply string
	var err error
	switch cmd.Name {
	case CmdScan:
		if arg == "" {
			h.conversations.Set(userID, StateAwaitingAddress)
			reply = "📤 **Send me a Solana address to scan:**"
			break
		}
		reply, err = h.scan(ctx, userID, arg)
	case CmdTrack:
		if arg == "" {
			h.conversations.Set(userID, StateAwaitingTrack)
			reply = "📤 **Send me the address to track:**"
			break
		}
		reply, err = h.track(ctx, userID, arg)
	case CmdUntrack:
		if arg == "" {
			h.conversations.Set(userID, StateAwaitingUntrack)
			reply = "📤 **Send me the address to untrack:**"
			break
		}
		reply, err = h.untrack(ctx, userID, arg)
	case CmdStatus:
		reply, err = h.status(ctx, userID)
	case CmdAlerts:
		reply, err = h.alerts(ctx, userID, arg)
	case CmdNetwork:
		reply, err = h.network(ctx, userID, arg)
	case CmdRPC:
		if arg == "" {
			h.conversations.Set(userID, StateAwaitingEndpoint)
			reply = "📤 **Send me your RPC URL:**\n\n_Example: https://api.mainnet-beta.solana.com_"
			break
		}
		reply, err = h.setRPC(ctx, userID, arg)
	case CmdCancel:
		reply = "✅ Cancelled."
	case CmdHelp:
		reply = helpText
	default:
		reply = "❓ Unknown command.\n\n" + helpText
	}

	h.record(cmd.Name, err)
	if err != nil {
		h.logger.Error("bot command failed", "command", cmd.Name, "user_id", userID, "error", err)
		return fmt.Sprintf("❌ %s failed: %v", cmd.Name, err)
	}
	return reply
}

// HandleText completes a pending conversation with free text from userID.
// It returns false when the user was idle, in which case the text is ignored.
func (h *Handler) HandleText(ctx context.Context, userID, text string) (string, bool) {
	text = strings.TrimSpace(text)
	state := h.conversations.Get(userID)

	var name string
	switch state {
	case StateAwaitingAddress:
		name = CmdScan
	case StateAwaitingTrack:
		name = CmdTrack
	case StateAwaitingUntrack:
		name = CmdUntrack
	case StateAwaitingEndpoint:
		name = CmdRPC
	default:
		return "", false
	}

	// An invalid reply keeps the conversation open so the user can try again.
	if name == CmdRPC {
		if err := solana.ValidateEndpoint(text); err != nil {
			return "❌ Invalid RPC URL. Must start with http:// or https://", true
		}
	} else if _, err := rent.ParseAddress(text); err != nil {
		return "❌ Invalid address format. Please send a valid Solana address.", true
	}

	return h.Handle(ctx, userID, Command{Name: name, Arg: text}), true
}

func (h *Handler) scan(ctx context.Context, userID, address string) (string, error) {
	feePayer, err := rent.ParseAddress(address)
	if err != nil {
		return "❌ Invalid address format. Please provide a valid Solana address.", nil
	}
	prefs, err := h.store.GetUserPrefs(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to load preferences: %w", err)
	}
	target, err := h.targetFor(prefs)
	if err != nil {
		return "", err
	}

	report, err := h.analyzer.Analyze(ctx, target, feePayer, h.scanLimit)
	if err != nil {
		return "", err
	}
	h.logger.Info("bot scan completed",
		"user_id", userID,
		"address", address,
		"network", target.Network,
		"accounts", report.Stats.TotalAccounts,
	)
	return watch.FormatScan(report), nil
}

func (h *Handler) track(ctx context.Context, userID, address string) (string, error) {
	if _, err := rent.ParseAddress(address); err != nil {
		return "❌ Invalid address format.", nil
	}
	prefs, err := h.store.GetUserPrefs(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to load preferences: %w", err)
	}
	network := solana.Network(prefs.Network)

	_, err = h.store.TrackAddress(ctx, userID, address, string(network))
	if errors.Is(err, db.ErrAlreadyTracked) {
		return fmt.Sprintf("ℹ️ Address `%s` is already being tracked.", watch.ShortAddress(address)), nil
	}
	if err != nil {
		return "", err
	}

	if h.scheduler != nil {
		if err := h.scheduler.UpsertWatchSchedule(ctx, address, string(network), h.watchInterval); err != nil {
			if rbErr := h.store.UntrackAddress(ctx, userID, address); rbErr != nil {
				h.logger.Error("failed to roll back tracked address", "address", address, "error", rbErr)
			}
			return "", fmt.Errorf("failed to schedule watch: %w", err)
		}
	}

	h.logger.Info("bot address tracked", "user_id", userID, "address", address, "network", network)
	return fmt.Sprintf("✅ Now tracking `%s` on %s\n\nYou'll receive alerts when closeable accounts are detected.",
		watch.ShortAddress(address), network.Short()), nil
}

func (h *Handler) untrack(ctx context.Context, userID, address string) (string, error) {
	owners, err := h.store.ListTrackedByAddress(ctx, address)
	if err != nil {
		return "", err
	}
	var network string
	remaining := map[string]bool{}
	for _, o := range owners {
		if o.OwnerID == userID {
			network = o.Network
			continue
		}
		remaining[o.Network] = true
	}

	err = h.store.UntrackAddress(ctx, userID, address)
	if errors.Is(err, db.ErrNotFound) {
		return fmt.Sprintf("ℹ️ Address `%s` was not being tracked.", watch.ShortAddress(address)), nil
	}
	if err != nil {
		return "", err
	}

	if h.scheduler != nil && network != "" && !remaining[network] {
		if err := h.scheduler.DeleteWatchSchedule(ctx, address, network); err != nil {
			h.logger.Warn("failed to delete watch schedule", "address", address, "network", network, "error", err)
		}
	}
	return fmt.Sprintf("✅ Stopped tracking `%s`", watch.ShortAddress(address)), nil
}

func (h *Handler) status(ctx context.Context, userID string) (string, error) {
	tracked, err := h.store.ListTrackedAddresses(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(tracked) == 0 {
		return watch.FormatStatus(nil), nil
	}

	snapshots := make([]watch.Snapshot, 0, len(tracked))
	for _, t := range tracked {
		snap, err := h.store.GetLatestSnapshot(ctx, t.Address, t.Network)
		if err == nil {
			snapshots = append(snapshots, *snap)
			continue
		}
		if !errors.Is(err, db.ErrNotFound) {
			return "", err
		}

		// Not watched yet; scan it now.
		feePayer, err := rent.ParseAddress(t.Address)
		if err != nil {
			return "", err
		}
		report, err := h.analyzer.Analyze(ctx, h.targets(solana.Network(t.Network)), feePayer, h.scanLimit)
		if err != nil {
			return "", fmt.Errorf("scan of %s failed: %w", watch.ShortAddress(t.Address), err)
		}
		snapshots = append(snapshots, watch.FromReport(report))
	}
	return watch.FormatStatus(snapshots), nil
}

func (h *Handler) alerts(ctx context.Context, userID, arg string) (string, error) {
	prefs, err := h.store.GetUserPrefs(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to load preferences: %w", err)
	}

	switch strings.ToLower(arg) {
	case "on":
		prefs.AlertsEnabled = true
	case "off":
		prefs.AlertsEnabled = false
	default:
		status := "disabled 🔕"
		if prefs.AlertsEnabled {
			status = "enabled 🔔"
		}
		return fmt.Sprintf("Alerts are currently **%s**\n\nUse `/alerts on` or `/alerts off` to change.", status), nil
	}

	if _, err := h.store.UpsertUserPrefs(ctx, prefs); err != nil {
		return "", err
	}
	if prefs.AlertsEnabled {
		return "🔔 Alerts **enabled**. You'll be notified of new closeable accounts.", nil
	}
	return "🔕 Alerts **disabled**.", nil
}

func (h *Handler) network(ctx context.Context, userID, arg string) (string, error) {
	prefs, err := h.store.GetUserPrefs(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to load preferences: %w", err)
	}
	if arg == "" {
		return fmt.Sprintf("🌐 Current network: **%s**\n\nUse `/network devnet` or `/network mainnet-beta`",
			solana.Network(prefs.Network).Short()), nil
	}

	network, err := solana.ParseNetwork(arg)
	if err != nil {
		return fmt.Sprintf("❌ %v", err), nil
	}
	prefs.Network = string(network)
	if _, err := h.store.UpsertUserPrefs(ctx, prefs); err != nil {
		return "", err
	}
	return fmt.Sprintf("🌐 Network set to **%s**", network.Short()), nil
}

func (h *Handler) setRPC(ctx context.Context, userID, arg string) (string, error) {
	prefs, err := h.store.GetUserPrefs(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to load preferences: %w", err)
	}

	var reply string
	if strings.EqualFold(arg, "clear") {
		prefs.CustomRPC = nil
		reply = "✅ Custom RPC cleared. Using default RPC."
	} else {
		if err := solana.ValidateEndpoint(arg); err != nil {
			return "❌ Invalid RPC URL. Must start with http:// or https://", nil
		}
		prefs.CustomRPC = &arg
		reply = fmt.Sprintf("✅ Custom RPC set!\n\n🔗 `%s`", arg)
	}

	if _, err := h.store.UpsertUserPrefs(ctx, prefs); err != nil {
		return "", err
	}
	return reply, nil
}

// targetFor picks the ledger for a user: their custom endpoint when set,
// otherwise the configured endpoint of their network.
func (h *Handler) targetFor(prefs db.UserPrefs) (solana.Target, error) {
	network, err := solana.ParseNetwork(prefs.Network)
	if err != nil {
		network = solana.NetworkDevnet
	}
	if prefs.CustomRPC != nil && *prefs.CustomRPC != "" {
		return solana.NewTarget(string(network), *prefs.CustomRPC)
	}
	return h.targets(network), nil
}

func (h *Handler) record(command string, err error) {
	if h.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	h.metrics.RecordBotCommand(command, status)
}

const helpText = `**Solvent commands**

/scan [address] - scan a fee payer for sponsored accounts
/track [address] - get alerts when accounts become closeable
/untrack [address] - stop tracking an address
/status - latest results for your tracked addresses
/alerts on|off - toggle alert DMs
/network devnet|mainnet-beta - choose the network
/rpc [url|clear] - set a custom RPC endpoint
/cancel - abandon the current prompt`
