package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/brojonat/solvent/service/solana"
)

// ErrNoConfigFile is returned by FileStore.Load when no settings have been saved yet.
var ErrNoConfigFile = errors.New("no config file")

// Settings are the CLI defaults persisted between invocations.
type Settings struct {
	RPC     string         `json:"rpc,omitempty"`
	Network solana.Network `json:"network,omitempty"`
}

// IsEmpty reports whether nothing is set.
func (s Settings) IsEmpty() bool {
	return s.RPC == "" && s.Network == ""
}

// FileStore persists Settings as JSON, by default at ~/.solvent/config.json.
type FileStore struct {
	path string
}

// DefaultPath returns ~/.solvent/config.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".solvent", "config.json"), nil
}

// NewFileStore creates a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the stored settings. A missing file yields empty settings and ErrNoConfigFile.
func (s *FileStore) Load() (Settings, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Settings{}, ErrNoConfigFile
	}
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	return settings, nil
}

// Save writes settings, creating the directory if needed.
func (s *FileStore) Save(settings Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := os.WriteFile(s.path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}
	return nil
}

// SetRPC stores a custom RPC URL after validating it.
func (s *FileStore) SetRPC(url string) error {
	if err := solana.ValidateEndpoint(url); err != nil {
		return err
	}
	return s.update(func(st *Settings) { st.RPC = url })
}

// SetNetwork stores the default network after validating it.
func (s *FileStore) SetNetwork(name string) error {
	network, err := solana.ParseNetwork(name)
	if err != nil {
		return err
	}
	return s.update(func(st *Settings) { st.Network = network })
}

// Clear removes one key ("rpc" or "network") or everything ("all").
func (s *FileStore) Clear(key string) error {
	switch key {
	case "rpc":
		return s.update(func(st *Settings) { st.RPC = "" })
	case "network":
		return s.update(func(st *Settings) { st.Network = "" })
	case "all":
		return s.Save(Settings{})
	default:
		return fmt.Errorf("unknown config key %q: valid keys are rpc, network, all", key)
	}
}

func (s *FileStore) update(fn func(*Settings)) error {
	settings, err := s.Load()
	if err != nil && !errors.Is(err, ErrNoConfigFile) {
		return err
	}
	fn(&settings)
	return s.Save(settings)
}

// Resolve picks the ledger target for a CLI invocation. Flag values win over
// stored settings, which win over devnet with its public endpoint.
func (s Settings) Resolve(networkFlag, rpcFlag string) (solana.Target, error) {
	network := string(s.Network)
	if networkFlag != "" {
		network = networkFlag
	}
	if network == "" {
		network = string(solana.NetworkDevnet)
	}
	endpoint := s.RPC
	if rpcFlag != "" {
		endpoint = rpcFlag
	}
	return solana.NewTarget(network, endpoint)
}
