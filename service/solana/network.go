package solana

import (
	"fmt"
	"net/url"
	"strings"
)

// Network identifies a Solana cluster.
type Network string

const (
	NetworkDevnet  Network = "devnet"
	NetworkMainnet Network = "mainnet-beta"
)

// Default public RPC endpoints per network.
const (
	DevnetRPCURL  = "https://api.devnet.solana.com"
	MainnetRPCURL = "https://api.mainnet-beta.solana.com"
)

// ParseNetwork parses a network name. "mainnet" is accepted as an alias for "mainnet-beta".
func ParseNetwork(s string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "devnet":
		return NetworkDevnet, nil
	case "mainnet", "mainnet-beta":
		return NetworkMainnet, nil
	default:
		return "", fmt.Errorf("invalid network %q: must be 'devnet' or 'mainnet-beta'", s)
	}
}

// DefaultRPCURL returns the public endpoint for the network.
func (n Network) DefaultRPCURL() string {
	if n == NetworkMainnet {
		return MainnetRPCURL
	}
	return DevnetRPCURL
}

// Short returns the short display name used in metrics labels and messages.
func (n Network) Short() string {
	if n == NetworkMainnet {
		return "mainnet"
	}
	return string(n)
}

// Target selects the ledger a pipeline call talks to. It is passed explicitly
// to every call instead of living in process-wide state.
type Target struct {
	Network  Network `json:"network"`
	Endpoint string  `json:"endpoint,omitempty"` // custom RPC URL; empty means the network default
}

// NewTarget validates a network name and optional custom endpoint.
func NewTarget(network, endpoint string) (Target, error) {
	n, err := ParseNetwork(network)
	if err != nil {
		return Target{}, err
	}
	t := Target{Network: n, Endpoint: strings.TrimSpace(endpoint)}
	if err := t.Validate(); err != nil {
		return Target{}, err
	}
	return t, nil
}

// Validate checks the network and, when set, the custom endpoint.
func (t Target) Validate() error {
	if _, err := ParseNetwork(string(t.Network)); err != nil {
		return err
	}
	if t.Endpoint == "" {
		return nil
	}
	return ValidateEndpoint(t.Endpoint)
}

// RPCURL returns the custom endpoint when set, otherwise the network default.
func (t Target) RPCURL() string {
	if t.Endpoint != "" {
		return t.Endpoint
	}
	return t.Network.DefaultRPCURL()
}

// Label identifies the target in metrics without leaking API keys embedded in URLs.
func (t Target) Label() string {
	if t.Endpoint == "" {
		return t.Network.Short()
	}
	u, err := url.Parse(t.Endpoint)
	if err != nil || u.Host == "" {
		return t.Network.Short()
	}
	return u.Host
}

// ValidateEndpoint requires an absolute http(s) URL.
func ValidateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid endpoint %q: scheme must be http or https", endpoint)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid endpoint %q: missing host", endpoint)
	}
	return nil
}
