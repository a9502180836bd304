// Package client is the Go HTTP client for the solvent dashboard API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// TrackedAddress is a fee payer an owner is watching.
type TrackedAddress struct {
	OwnerID   string    `json:"owner_id"`
	Address   string    `json:"address"`
	Network   string    `json:"network"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is the latest stored summary of a watched fee payer.
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

// Account is one sponsored account in a scan result.
type Account struct {
	Address           string    `json:"address"`
	Type              string    `json:"type"`
	Owner             string    `json:"owner"`
	CloseAuthority    string    `json:"close_authority,omitempty"`
	Mint              string    `json:"mint,omitempty"`
	RentLamports      uint64    `json:"rent_lamports"`
	TokenBalance      uint64    `json:"token_balance"`
	Classification    string    `json:"classification"`
	Status            string    `json:"status"`
	CreationSignature string    `json:"creation_signature"`
	CreatedAt         time.Time `json:"created_at"`
}

// Stats aggregates a scan result. Amounts are in lamports.
type Stats struct {
	TotalAccounts       int    `json:"total_accounts"`
	TotalLocked         uint64 `json:"total_locked"`
	Reclaimable         uint64 `json:"reclaimable"`
	MonitorOnly         uint64 `json:"monitor_only"`
	CloseableAccounts   int    `json:"closeable_accounts"`
	ReclaimableAccounts int    `json:"reclaimable_accounts"`
}

// ScanResult is the response of a server-side scan.
type ScanResult struct {
	Address      string    `json:"address"`
	Network      string    `json:"network"`
	Endpoint     string    `json:"endpoint"`
	Transactions int       `json:"transactions"`
	Creations    int       `json:"creations"`
	Accounts     []Account `json:"accounts"`
	Stats        Stats     `json:"stats"`
	ScannedAt    time.Time `json:"scanned_at"`
}

// ScanOptions are the optional query parameters of Scan.
type ScanOptions struct {
	Network  string
	Endpoint string
	Limit    int
}

// TrackRequest asks the server to watch an address for an owner.
type TrackRequest struct {
	Address  string `json:"address"`
	Network  string `json:"network,omitempty"`
	OwnerID  string `json:"owner_id"`
	Interval string `json:"interval,omitempty"`
}

// APIError is a non-success response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

// Client is the HTTP client for the solvent service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new client. Scans can take minutes, so the default
// HTTP client allows for them.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Scan asks the server to scan and classify a fee payer.
func (c *Client) Scan(ctx context.Context, address string, opts ScanOptions) (*ScanResult, error) {
	q := url.Values{}
	if opts.Network != "" {
		q.Set("network", opts.Network)
	}
	if opts.Endpoint != "" {
		q.Set("endpoint", opts.Endpoint)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}

	var result ScanResult
	if err := c.do(ctx, http.MethodGet, "/api/v1/scan/"+url.PathEscape(address), q, nil, http.StatusOK, &result); err != nil {
		return nil, err
	}
	c.logger.Debug("scan complete", "address", address, "accounts", len(result.Accounts))
	return &result, nil
}

// Track tells the server to start watching an address.
func (c *Client) Track(ctx context.Context, req TrackRequest) (*TrackedAddress, error) {
	var tracked TrackedAddress
	if err := c.do(ctx, http.MethodPost, "/api/v1/tracked", nil, req, http.StatusCreated, &tracked); err != nil {
		return nil, err
	}
	c.logger.Debug("address tracked", "address", req.Address, "owner_id", req.OwnerID)
	return &tracked, nil
}

// Untrack tells the server to stop watching an address for an owner.
func (c *Client) Untrack(ctx context.Context, address, ownerID string) error {
	q := url.Values{"owner_id": {ownerID}}
	if err := c.do(ctx, http.MethodDelete, "/api/v1/tracked/"+url.PathEscape(address), q, nil, http.StatusNoContent, nil); err != nil {
		return err
	}
	c.logger.Debug("address untracked", "address", address, "owner_id", ownerID)
	return nil
}

// ListTracked returns the addresses an owner watches, or every tracked
// address when ownerID is empty.
func (c *Client) ListTracked(ctx context.Context, ownerID string) ([]TrackedAddress, error) {
	q := url.Values{}
	if ownerID != "" {
		q.Set("owner_id", ownerID)
	}

	var resp struct {
		Tracked []TrackedAddress `json:"tracked"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/tracked", q, nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return resp.Tracked, nil
}

// LatestSnapshot returns the most recent stored snapshot of an address.
func (c *Client) LatestSnapshot(ctx context.Context, address, network string) (*Snapshot, error) {
	q := url.Values{}
	if network != "" {
		q.Set("network", network)
	}

	var snap Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/v1/snapshots/"+url.PathEscape(address), q, nil, http.StatusOK, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, want int, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return c.parseErrorResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
}
