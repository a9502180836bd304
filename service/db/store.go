package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brojonat/solvent/service/metrics"
	"github.com/brojonat/solvent/service/solana"
	"github.com/brojonat/solvent/service/watch"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyTracked is returned when an owner tracks an address twice.
	ErrAlreadyTracked = errors.New("address already tracked")
)

const pgErrUniqueViolation = "23505"

// Store provides database operations for the service.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// If metrics is nil, no metrics are recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{pool: pool, metrics: m}
}

// NewPool creates a verified Postgres connection pool.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// TrackedAddress is a fee payer an owner asked to be alerted about.
type TrackedAddress struct {
	OwnerID   string    `json:"owner_id"`
	Address   string    `json:"address"`
	Network   string    `json:"network"`
	CreatedAt time.Time `json:"created_at"`
}

// UserPrefs are per-owner bot settings.
type UserPrefs struct {
	OwnerID       string    `json:"owner_id"`
	Network       string    `json:"network"`
	CustomRPC     *string   `json:"custom_rpc,omitempty"`
	AlertsEnabled bool      `json:"alerts_enabled"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DefaultUserPrefs returns the settings of an owner that never changed any.
func DefaultUserPrefs(ownerID string) UserPrefs {
	return UserPrefs{
		OwnerID:       ownerID,
		Network:       string(solana.NetworkDevnet),
		AlertsEnabled: true,
	}
}

// AuditEntry records an action taken against an account, such as a reclaim.
type AuditEntry struct {
	ID        uuid.UUID `json:"id"`
	Action    string    `json:"action"`
	Account   string    `json:"account"`
	Network   string    `json:"network"`
	Details   string    `json:"details"`
	Signature *string   `json:"signature,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TrackAddress starts tracking address for owner. Tracking the same address
// twice returns ErrAlreadyTracked.
func (s *Store) TrackAddress(ctx context.Context, ownerID, address, network string) (_ *TrackedAddress, err error) {
	defer s.observe("insert", "tracked_addresses", time.Now(), &err)

	row := s.pool.QueryRow(ctx, `
		INSERT INTO tracked_addresses (owner_id, address, network)
		VALUES ($1, $2, $3)
		RETURNING owner_id, address, network, created_at
	`, ownerID, address, network)

	var t TrackedAddress
	if err := row.Scan(&t.OwnerID, &t.Address, &t.Network, &t.CreatedAt); err != nil {
		if isDuplicateKeyError(err) {
			return nil, ErrAlreadyTracked
		}
		return nil, fmt.Errorf("track address: %w", err)
	}
	return &t, nil
}

// UntrackAddress stops tracking address for owner.
func (s *Store) UntrackAddress(ctx context.Context, ownerID, address string) (err error) {
	defer s.observe("delete", "tracked_addresses", time.Now(), &err)

	tag, err := s.pool.Exec(ctx, `
		DELETE FROM tracked_addresses WHERE owner_id = $1 AND address = $2
	`, ownerID, address)
	if err != nil {
		return fmt.Errorf("untrack address: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTrackedAddresses returns the addresses owner tracks, oldest first. An
// empty ownerID lists every tracked address.
func (s *Store) ListTrackedAddresses(ctx context.Context, ownerID string) (_ []TrackedAddress, err error) {
	defer s.observe("select", "tracked_addresses", time.Now(), &err)

	rows, err := s.pool.Query(ctx, `
		SELECT owner_id, address, network, created_at
		FROM tracked_addresses
		WHERE $1 = '' OR owner_id = $1
		ORDER BY created_at ASC, address ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list tracked addresses: %w", err)
	}
	return collectTracked(rows)
}

// ListTrackedByAddress returns every owner tracking address.
func (s *Store) ListTrackedByAddress(ctx context.Context, address string) (_ []TrackedAddress, err error) {
	defer s.observe("select", "tracked_addresses", time.Now(), &err)

	rows, err := s.pool.Query(ctx, `
		SELECT owner_id, address, network, created_at
		FROM tracked_addresses
		WHERE address = $1
		ORDER BY created_at ASC, owner_id ASC
	`, address)
	if err != nil {
		return nil, fmt.Errorf("list tracked by address: %w", err)
	}
	return collectTracked(rows)
}

func collectTracked(rows pgx.Rows) ([]TrackedAddress, error) {
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (TrackedAddress, error) {
		var t TrackedAddress
		err := row.Scan(&t.OwnerID, &t.Address, &t.Network, &t.CreatedAt)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan tracked addresses: %w", err)
	}
	return out, nil
}

// GetUserPrefs returns owner's preferences, or the defaults when none are stored.
func (s *Store) GetUserPrefs(ctx context.Context, ownerID string) (_ UserPrefs, err error) {
	defer s.observe("select", "user_prefs", time.Now(), &err)

	row := s.pool.QueryRow(ctx, `
		SELECT owner_id, network, custom_rpc, alerts_enabled, updated_at
		FROM user_prefs WHERE owner_id = $1
	`, ownerID)

	prefs, err := scanPrefs(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return DefaultUserPrefs(ownerID), nil
	}
	if err != nil {
		return UserPrefs{}, fmt.Errorf("get user prefs: %w", err)
	}
	return prefs, nil
}

// UpsertUserPrefs stores prefs, replacing any previous values.
func (s *Store) UpsertUserPrefs(ctx context.Context, prefs UserPrefs) (_ UserPrefs, err error) {
	defer s.observe("upsert", "user_prefs", time.Now(), &err)

	row := s.pool.QueryRow(ctx, `
		INSERT INTO user_prefs (owner_id, network, custom_rpc, alerts_enabled, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (owner_id) DO UPDATE SET
			network = EXCLUDED.network,
			custom_rpc = EXCLUDED.custom_rpc,
			alerts_enabled = EXCLUDED.alerts_enabled,
			updated_at = NOW()
		RETURNING owner_id, network, custom_rpc, alerts_enabled, updated_at
	`, prefs.OwnerID, prefs.Network, pgtextFromStringPtr(prefs.CustomRPC), prefs.AlertsEnabled)

	out, err := scanPrefs(row)
	if err != nil {
		return UserPrefs{}, fmt.Errorf("upsert user prefs: %w", err)
	}
	return out, nil
}

func scanPrefs(row pgx.Row) (UserPrefs, error) {
	var p UserPrefs
	var rpc pgtype.Text
	if err := row.Scan(&p.OwnerID, &p.Network, &rpc, &p.AlertsEnabled, &p.UpdatedAt); err != nil {
		return UserPrefs{}, err
	}
	p.CustomRPC = stringPtrFromPgtext(rpc)
	return p, nil
}

// SaveSnapshot appends a scan snapshot.
func (s *Store) SaveSnapshot(ctx context.Context, snap watch.Snapshot) (err error) {
	defer s.observe("insert", "scan_snapshots", time.Now(), &err)

	_, err = s.pool.Exec(ctx, `
		INSERT INTO scan_snapshots (
			address, network, total_accounts, closeable_count, reclaimable_count,
			total_rent_lamports, reclaimable_lamports, scanned_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		snap.Address,
		snap.Network,
		snap.TotalAccounts,
		snap.CloseableCount,
		snap.ReclaimableCount,
		int64(snap.TotalRentLamports),
		int64(snap.ReclaimableLamports),
		snap.ScannedAt,
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// GetLatestSnapshot returns the most recent snapshot of address on network.
// An empty network matches any network.
func (s *Store) GetLatestSnapshot(ctx context.Context, address, network string) (_ *watch.Snapshot, err error) {
	defer s.observe("select", "scan_snapshots", time.Now(), &err)

	row := s.pool.QueryRow(ctx, `
		SELECT address, network, total_accounts, closeable_count, reclaimable_count,
		       total_rent_lamports, reclaimable_lamports, scanned_at
		FROM scan_snapshots
		WHERE address = $1 AND ($2 = '' OR network = $2)
		ORDER BY scanned_at DESC, id DESC
		LIMIT 1
	`, address, network)

	var snap watch.Snapshot
	var total, reclaimable int64
	err = row.Scan(
		&snap.Address,
		&snap.Network,
		&snap.TotalAccounts,
		&snap.CloseableCount,
		&snap.ReclaimableCount,
		&total,
		&reclaimable,
		&snap.ScannedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest snapshot: %w", err)
	}
	snap.TotalRentLamports = uint64(total)
	snap.ReclaimableLamports = uint64(reclaimable)
	snap.ScannedAt = snap.ScannedAt.UTC()
	return &snap, nil
}

// RecordAudit stores entry, assigning an ID when it has none.
func (s *Store) RecordAudit(ctx context.Context, entry AuditEntry) (_ *AuditEntry, err error) {
	defer s.observe("insert", "audit_log", time.Now(), &err)

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO audit_log (id, action, account, network, details, signature)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, entry.ID, entry.Action, entry.Account, entry.Network, entry.Details, pgtextFromStringPtr(entry.Signature))

	if err := row.Scan(&entry.CreatedAt); err != nil {
		return nil, fmt.Errorf("record audit: %w", err)
	}
	return &entry, nil
}

// ListAudit returns the newest entries first. An empty account lists every entry.
func (s *Store) ListAudit(ctx context.Context, account string, limit int) (_ []AuditEntry, err error) {
	defer s.observe("select", "audit_log", time.Now(), &err)

	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, action, account, network, details, signature, created_at
		FROM audit_log
		WHERE $1 = '' OR account = $1
		ORDER BY created_at DESC, id
		LIMIT $2
	`, account, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (AuditEntry, error) {
		var e AuditEntry
		var sig pgtype.Text
		err := row.Scan(&e.ID, &e.Action, &e.Account, &e.Network, &e.Details, &sig, &e.CreatedAt)
		e.Signature = stringPtrFromPgtext(sig)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan audit entries: %w", err)
	}
	return entries, nil
}

// observe records query latency and the final error of the calling method.
func (s *Store) observe(op, table string, start time.Time, err *error) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordDBQuery(op, table, time.Since(start).Seconds(), *err)
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}
	return false
}

func pgtextFromStringPtr(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func stringPtrFromPgtext(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}
