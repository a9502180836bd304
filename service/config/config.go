package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brojonat/solvent/service/rent"
	"github.com/brojonat/solvent/service/solana"
)

// Config holds the configuration of the long-running binaries (server, worker, bot),
// loaded from environment variables. Required fields are validated at startup.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Database configuration
	DatabaseURL string

	// NATS configuration
	NATSURL string

	// Solana configuration
	SolanaNetwork       solana.Network
	SolanaMainnetRPCURL string
	SolanaDevnetRPCURL  string

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// Watch scheduling
	DefaultWatchInterval time.Duration
	MinWatchInterval     time.Duration

	// Pipeline throttling
	ScanLimit     int
	PageDelay     time.Duration
	TxDelay       time.Duration
	ClassifyDelay time.Duration
	ReclaimDelay  time.Duration

	// Discord bot
	DiscordToken   string
	DiscordGuildID string
}

// Load reads configuration from environment variables and validates all required fields.
// Every problem found is reported, not just the first.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Database configuration
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	// NATS configuration
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	// Solana configuration
	network, err := solana.ParseNetwork(getEnvOrDefault("SOLANA_NETWORK", string(solana.NetworkDevnet)))
	if err != nil {
		errs = append(errs, fmt.Errorf("SOLANA_NETWORK: %w", err))
	} else {
		cfg.SolanaNetwork = network
	}

	cfg.SolanaMainnetRPCURL = getEnvOrDefault("SOLANA_MAINNET_RPC_URL", solana.MainnetRPCURL)
	if err := solana.ValidateEndpoint(cfg.SolanaMainnetRPCURL); err != nil {
		errs = append(errs, fmt.Errorf("SOLANA_MAINNET_RPC_URL: %w", err))
	}

	cfg.SolanaDevnetRPCURL = getEnvOrDefault("SOLANA_DEVNET_RPC_URL", solana.DevnetRPCURL)
	if err := solana.ValidateEndpoint(cfg.SolanaDevnetRPCURL); err != nil {
		errs = append(errs, fmt.Errorf("SOLANA_DEVNET_RPC_URL: %w", err))
	}

	// Validate RPC URLs are different
	if cfg.SolanaMainnetRPCURL == cfg.SolanaDevnetRPCURL {
		errs = append(errs, fmt.Errorf("SOLANA_MAINNET_RPC_URL and SOLANA_DEVNET_RPC_URL must be different"))
	}

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "solvent-watch")

	// Watch scheduling
	if d, err := parseDuration("DEFAULT_WATCH_INTERVAL", "1h"); err != nil {
		errs = append(errs, err)
	} else {
		cfg.DefaultWatchInterval = d
	}

	if d, err := parseDuration("MIN_WATCH_INTERVAL", "5m"); err != nil {
		errs = append(errs, err)
	} else {
		cfg.MinWatchInterval = d
	}

	if cfg.MinWatchInterval > cfg.DefaultWatchInterval {
		errs = append(errs, fmt.Errorf("MIN_WATCH_INTERVAL (%v) cannot be greater than DEFAULT_WATCH_INTERVAL (%v)",
			cfg.MinWatchInterval, cfg.DefaultWatchInterval))
	}

	// Pipeline throttling
	if n, err := parseInt("SCAN_LIMIT", rent.DefaultScanLimit); err != nil {
		errs = append(errs, err)
	} else if n <= 0 {
		errs = append(errs, fmt.Errorf("SCAN_LIMIT must be positive, got %d", n))
	} else {
		cfg.ScanLimit = n
	}

	delays := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"PAGE_DELAY", rent.DefaultPageDelay, &cfg.PageDelay},
		{"TX_DELAY", rent.DefaultTxDelay, &cfg.TxDelay},
		{"CLASSIFY_DELAY", rent.DefaultClassifyDelay, &cfg.ClassifyDelay},
		{"RECLAIM_DELAY", rent.DefaultReclaimDelay, &cfg.ReclaimDelay},
	}
	for _, d := range delays {
		v, err := parseDuration(d.key, d.def.String())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s cannot be negative", d.key))
			continue
		}
		*d.dst = v
	}

	// Discord bot; only cmd/bot requires the token.
	cfg.DiscordToken = os.Getenv("DISCORD_TOKEN")
	cfg.DiscordGuildID = os.Getenv("DISCORD_GUILD_ID")

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}

	if _, err := solana.ParseNetwork(string(c.SolanaNetwork)); err != nil {
		errs = append(errs, fmt.Errorf("SolanaNetwork: %w", err))
	}

	if c.SolanaMainnetRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaMainnetRPCURL is required"))
	}

	if c.SolanaDevnetRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaDevnetRPCURL is required"))
	}

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}

	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if c.MinWatchInterval > c.DefaultWatchInterval {
		errs = append(errs, fmt.Errorf("MinWatchInterval cannot be greater than DefaultWatchInterval"))
	}

	if c.MinWatchInterval < time.Minute {
		errs = append(errs, fmt.Errorf("MinWatchInterval must be at least 1 minute"))
	}

	if c.ScanLimit <= 0 {
		errs = append(errs, fmt.Errorf("ScanLimit must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// Target returns the ledger target for network using the configured RPC URL.
func (c *Config) Target(network solana.Network) solana.Target {
	endpoint := c.SolanaDevnetRPCURL
	if network == solana.NetworkMainnet {
		endpoint = c.SolanaMainnetRPCURL
	}
	return solana.Target{Network: network, Endpoint: endpoint}
}

// RentOptions returns pipeline options carrying the configured limits and delays.
func (c *Config) RentOptions() rent.Options {
	opts := rent.DefaultOptions()
	opts.DefaultLimit = c.ScanLimit
	opts.PageDelay = c.PageDelay
	opts.TxDelay = c.TxDelay
	opts.ClassifyDelay = c.ClassifyDelay
	opts.ReclaimDelay = c.ReclaimDelay
	return opts
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}
