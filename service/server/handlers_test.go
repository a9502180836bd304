package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/solvent/service/config"
	"github.com/brojonat/solvent/service/db"
	"github.com/brojonat/solvent/service/metrics"
	natspkg "github.com/brojonat/solvent/service/nats"
	"github.com/brojonat/solvent/service/rent"
	"github.com/brojonat/solvent/service/solana"
	"github.com/brojonat/solvent/service/temporal"
	"github.com/brojonat/solvent/service/watch"
)

const testAddress = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"

// memStore is an in-memory Store.
type memStore struct {
	mu        sync.Mutex
	tracked   []db.TrackedAddress
	snapshots map[string]watch.Snapshot
	failWith  error
}

func newMemStore() *memStore {
	return &memStore{snapshots: map[string]watch.Snapshot{}}
}

func (s *memStore) TrackAddress(_ context.Context, ownerID, address, network string) (*db.TrackedAddress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	for _, t := range s.tracked {
		if t.OwnerID == ownerID && t.Address == address {
			return nil, db.ErrAlreadyTracked
		}
	}
	t := db.TrackedAddress{OwnerID: ownerID, Address: address, Network: network, CreatedAt: time.Now().UTC()}
	s.tracked = append(s.tracked, t)
	return &t, nil
}

func (s *memStore) UntrackAddress(_ context.Context, ownerID, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.tracked {
		if t.OwnerID == ownerID && t.Address == address {
			s.tracked = append(s.tracked[:i], s.tracked[i+1:]...)
			return nil
		}
	}
	return db.ErrNotFound
}

func (s *memStore) ListTrackedAddresses(_ context.Context, ownerID string) ([]db.TrackedAddress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	var out []db.TrackedAddress
	for _, t := range s.tracked {
		if ownerID == "" || t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memStore) ListTrackedByAddress(_ context.Context, address string) ([]db.TrackedAddress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.TrackedAddress
	for _, t := range s.tracked {
		if t.Address == address {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memStore) putSnapshot(snap watch.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.Address] = snap
}

func (s *memStore) GetLatestSnapshot(_ context.Context, address, network string) (*watch.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[address]
	if !ok || (network != "" && snap.Network != network) {
		return nil, db.ErrNotFound
	}
	return &snap, nil
}

// stubAnalyzer returns a fixed report and records the target it was asked for.
type stubAnalyzer struct {
	report *rent.Report
	err    error
	target solana.Target
	limit  int
}

func (a *stubAnalyzer) Analyze(_ context.Context, target solana.Target, feePayer solanago.PublicKey, limit int) (*rent.Report, error) {
	a.target = target
	a.limit = limit
	if a.err != nil {
		return nil, a.err
	}
	r := *a.report
	r.FeePayer = feePayer
	r.Network = target.Network
	return &r, nil
}

func testConfig() *config.Config {
	return &config.Config{
		SolanaNetwork:        solana.NetworkDevnet,
		SolanaMainnetRPCURL:  solana.MainnetRPCURL,
		SolanaDevnetRPCURL:   solana.DevnetRPCURL,
		DefaultWatchInterval: time.Hour,
		MinWatchInterval:     5 * time.Minute,
		ScanLimit:            1000,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store     *memStore
	analyzer  *stubAnalyzer
	scheduler *temporal.MockScheduler
	handler   http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: newMemStore(),
		analyzer: &stubAnalyzer{report: &rent.Report{
			Transactions: 3,
			Creations:    2,
			Stats:        rent.RentStats{TotalAccounts: 2, CloseableAccounts: 1},
			ScannedAt:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		}},
		scheduler: temporal.NewMockScheduler(),
	}
	m := metrics.NewMetrics(prometheus.NewRegistry())
	srv := New(":0", testConfig(), f.store, f.analyzer, f.scheduler, m, testLogger())
	f.handler = srv.Handler()
	return f
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestScan(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/scan/"+testAddress, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp scanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, testAddress, resp.Address)
	assert.Equal(t, solana.NetworkDevnet, resp.Network)
	assert.Equal(t, "api.devnet.solana.com", resp.Endpoint)
	assert.Equal(t, 3, resp.Transactions)
	assert.Equal(t, 1, resp.Stats.CloseableAccounts)
	assert.Equal(t, 1000, f.analyzer.limit)
}

func TestScan_Parameters(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/scan/"+testAddress+"?network=mainnet&endpoint=https://rpc.example.com&limit=50", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, solana.NetworkMainnet, f.analyzer.target.Network)
	assert.Equal(t, "https://rpc.example.com", f.analyzer.target.RPCURL())
	assert.Equal(t, 50, f.analyzer.limit)
}

func TestScan_Errors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		analyzeErr error
		wantStatus int
		wantError  string
	}{
		{name: "not base58", path: "/api/v1/scan/not-an-address!", wantStatus: http.StatusBadRequest, wantError: "base58"},
		{name: "wrong length", path: "/api/v1/scan/abc", wantStatus: http.StatusBadRequest, wantError: "want 32"},
		{name: "bad network", path: "/api/v1/scan/" + testAddress + "?network=testnet", wantStatus: http.StatusBadRequest},
		{name: "bad endpoint", path: "/api/v1/scan/" + testAddress + "?endpoint=ftp://x", wantStatus: http.StatusBadRequest},
		{name: "bad limit", path: "/api/v1/scan/" + testAddress + "?limit=0", wantStatus: http.StatusBadRequest, wantError: "invalid limit"},
		{name: "huge limit", path: "/api/v1/scan/" + testAddress + "?limit=99999", wantStatus: http.StatusBadRequest, wantError: "invalid limit"},
		{
			name:       "ledger failure",
			path:       "/api/v1/scan/" + testAddress,
			analyzeErr: errors.New("429 too many requests"),
			wantStatus: http.StatusBadGateway,
			wantError:  "scan failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.analyzer.err = tt.analyzeErr

			rec := f.do(http.MethodGet, tt.path, "")
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantError != "" {
				assert.Contains(t, rec.Body.String(), tt.wantError)
			}
		})
	}
}

func TestTrack(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/tracked", `{"address":"`+testAddress+`","owner_id":"user-1"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var tracked db.TrackedAddress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tracked))
	assert.Equal(t, "devnet", tracked.Network)

	interval, ok := f.scheduler.ScheduleInterval(testAddress, "devnet")
	require.True(t, ok)
	assert.Equal(t, time.Hour, interval)

	rec = f.do(http.MethodPost, "/api/v1/tracked", `{"address":"`+testAddress+`","owner_id":"user-1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodPost, "/api/v1/tracked", `{"address":"`+testAddress+`","owner_id":"user-2","network":"mainnet","interval":"10m"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	interval, ok = f.scheduler.ScheduleInterval(testAddress, "mainnet-beta")
	require.True(t, ok)
	assert.Equal(t, 10*time.Minute, interval)
}

func TestTrack_Validation(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantError string
	}{
		{name: "too large", body: `{"address":"` + strings.Repeat("A", 2<<20) + `"}`, wantError: "request body too large"},
		{name: "malformed", body: `{"address":`, wantError: "invalid request body"},
		{name: "missing address", body: `{"owner_id":"u"}`, wantError: "address is required"},
		{name: "missing owner", body: `{"address":"` + testAddress + `"}`, wantError: "owner_id is required"},
		{name: "null byte", body: `{"address":"abc\u0000def","owner_id":"u"}`, wantError: "control characters"},
		{name: "injection", body: `{"address":"x'; DROP TABLE tracked_addresses; --","owner_id":"u"}`, wantError: "base58"},
		{name: "bad network", body: `{"address":"` + testAddress + `","owner_id":"u","network":"localnet"}`, wantError: "network"},
		{name: "bad interval", body: `{"address":"` + testAddress + `","owner_id":"u","interval":"soon"}`, wantError: "invalid interval"},
		{name: "short interval", body: `{"address":"` + testAddress + `","owner_id":"u","interval":"1m"}`, wantError: "interval too short"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.do(http.MethodPost, "/api/v1/tracked", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantError)
			assert.Zero(t, f.scheduler.ScheduleCount())
		})
	}
}

func TestTrack_ScheduleFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.scheduler.SetUpsertError(errors.New("temporal unavailable"))

	rec := f.do(http.MethodPost, "/api/v1/tracked", `{"address":"`+testAddress+`","owner_id":"user-1"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	remaining, err := f.store.ListTrackedAddresses(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestUntrack(t *testing.T) {
	f := newFixture(t)
	for _, owner := range []string{"user-1", "user-2"} {
		rec := f.do(http.MethodPost, "/api/v1/tracked", `{"address":"`+testAddress+`","owner_id":"`+owner+`"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := f.do(http.MethodDelete, "/api/v1/tracked/"+testAddress+"?owner_id=user-1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, f.scheduler.ScheduleExists(testAddress, "devnet"), "still tracked by user-2")

	rec = f.do(http.MethodDelete, "/api/v1/tracked/"+testAddress+"?owner_id=user-2", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, f.scheduler.ScheduleExists(testAddress, "devnet"))

	rec = f.do(http.MethodDelete, "/api/v1/tracked/"+testAddress+"?owner_id=user-2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodDelete, "/api/v1/tracked/"+testAddress, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListTracked(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/tracked", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tracked":[]}`, rec.Body.String())

	f.do(http.MethodPost, "/api/v1/tracked", `{"address":"`+testAddress+`","owner_id":"user-1"}`)

	rec = f.do(http.MethodGet, "/api/v1/tracked?owner_id=user-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Tracked []db.TrackedAddress `json:"tracked"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Tracked, 1)
	assert.Equal(t, testAddress, resp.Tracked[0].Address)

	f.store.failWith = errors.New("db down")
	rec = f.do(http.MethodGet, "/api/v1/tracked", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestLatestSnapshot(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/snapshots/"+testAddress, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.store.putSnapshot(watch.Snapshot{
		Address:        testAddress,
		Network:        "devnet",
		CloseableCount: 4,
		ScannedAt:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	})

	rec = f.do(http.MethodGet, "/api/v1/snapshots/"+testAddress+"?network=devnet", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap watch.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 4, snap.CloseableCount)

	rec = f.do(http.MethodGet, "/api/v1/snapshots/"+testAddress+"?network=mainnet", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthMetricsAndCORS(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = f.do(http.MethodOptions, "/api/v1/tracked", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

// chanStreamer hands out a prepared channel.
type chanStreamer struct {
	events  chan *natspkg.AlertEvent
	address string
}

func (s *chanStreamer) StreamAlerts(_ context.Context, address string) (<-chan *natspkg.AlertEvent, error) {
	s.address = address
	return s.events, nil
}

func TestStreamAlerts(t *testing.T) {
	streamer := &chanStreamer{events: make(chan *natspkg.AlertEvent, 1)}
	srv := New(":0", testConfig(), newMemStore(), &stubAnalyzer{}, temporal.NewMockScheduler(), nil, testLogger()).
		WithAlertStream(streamer)

	streamer.events <- &natspkg.AlertEvent{Address: testAddress, Network: "devnet", NewCloseable: 2}
	close(streamer.events)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stream/alerts/"+testAddress, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, testAddress, streamer.address)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "event: connected")
	assert.Contains(t, body, "event: alert")
	assert.Contains(t, body, `"new_closeable":2`)
}
