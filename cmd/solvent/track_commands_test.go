package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/solvent/client"
)

// fakeAPI records requests made against the tracking endpoints.
type fakeAPI struct {
	mu       sync.Mutex
	requests []string
	tracked  []client.TrackRequest
}

func (f *fakeAPI) record(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.RequestURI())
}

func (f *fakeAPI) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func (f *fakeAPI) trackRequests() []client.TrackRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]client.TrackRequest(nil), f.tracked...)
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	api := &fakeAPI{}
	created := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/tracked", func(w http.ResponseWriter, r *http.Request) {
		api.record(r)
		var req client.TrackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		api.mu.Lock()
		api.tracked = append(api.tracked, req)
		api.mu.Unlock()

		network := req.Network
		if network == "" {
			network = "devnet"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(client.TrackedAddress{
			OwnerID:   req.OwnerID,
			Address:   req.Address,
			Network:   network,
			CreatedAt: created,
		})
	})
	mux.HandleFunc("GET /api/v1/tracked", func(w http.ResponseWriter, r *http.Request) {
		api.record(r)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"tracked": []client.TrackedAddress{
				{OwnerID: r.URL.Query().Get("owner_id"), Address: testFeePayer, Network: "devnet", CreatedAt: created},
			},
		})
	})
	mux.HandleFunc("DELETE /api/v1/tracked/{address}", func(w http.ResponseWriter, r *http.Request) {
		api.record(r)
		if r.PathValue("address") == otherAddress {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "address not tracked"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /api/v1/snapshots/{address}", func(w http.ResponseWriter, r *http.Request) {
		api.record(r)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(client.Snapshot{
			Address:             r.PathValue("address"),
			Network:             "devnet",
			TotalAccounts:       4,
			CloseableCount:      2,
			ReclaimableCount:    1,
			TotalRentLamports:   8_157_120,
			ReclaimableLamports: 2_039_280,
			ScannedAt:           created,
		})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return api, server
}

func TestTrackAddCommand(t *testing.T) {
	tc := newTestCLI(t)
	api, server := newFakeAPI(t)

	require.NoError(t, tc.run("--server-url", server.URL, "--network", "mainnet-beta", "track", "add", "--owner", "alice", "--interval", "30m", testFeePayer))

	out := tc.stdout.String()
	assert.Contains(t, out, "✓ Now tracking "+testFeePayer+" on mainnet-beta")
	assert.Contains(t, out, "Owner: alice")

	tracked := api.trackRequests()
	require.Len(t, tracked, 1)
	assert.Equal(t, client.TrackRequest{
		Address:  testFeePayer,
		Network:  "mainnet-beta",
		OwnerID:  "alice",
		Interval: "30m0s",
	}, tracked[0])
}

func TestTrackAddCommand_JSON(t *testing.T) {
	tc := newTestCLI(t)
	_, server := newFakeAPI(t)

	require.NoError(t, tc.run("--json", "--server-url", server.URL, "track", "add", testFeePayer))

	var got client.TrackedAddress
	require.NoError(t, json.Unmarshal(tc.stdout.Bytes(), &got))
	assert.Equal(t, testFeePayer, got.Address)
	assert.Equal(t, "cli", got.OwnerID)
	assert.Equal(t, "devnet", got.Network)
}

func TestTrackRemoveCommand(t *testing.T) {
	tc := newTestCLI(t)
	api, server := newFakeAPI(t)

	require.NoError(t, tc.run("--server-url", server.URL, "track", "rm", "--owner", "alice", testFeePayer))
	assert.Contains(t, tc.stdout.String(), "✓ Stopped tracking "+testFeePayer)
	assert.Equal(t, []string{"DELETE /api/v1/tracked/" + testFeePayer + "?owner_id=alice"}, api.calls())

	err := tc.run("--server-url", server.URL, "track", "remove", otherAddress)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address not tracked")
}

func TestTrackListCommand(t *testing.T) {
	tc := newTestCLI(t)
	_, server := newFakeAPI(t)

	require.NoError(t, tc.run("--server-url", server.URL, "track", "list", "--owner", "bob"))

	lines := strings.Split(strings.TrimSpace(tc.stdout.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ADDRESS"))
	assert.Contains(t, lines[1], testFeePayer)
	assert.Contains(t, lines[1], "bob")
	assert.Contains(t, tc.stderr.String(), "Total: 1 tracked address(es)")
}

func TestTrackSnapshotCommand(t *testing.T) {
	tc := newTestCLI(t)
	api, server := newFakeAPI(t)

	require.NoError(t, tc.run("--server-url", server.URL, "--network", "devnet", "track", "snapshot", testFeePayer))

	out := tc.stdout.String()
	assert.Contains(t, out, "7xKXtg...gAsU (devnet)")
	assert.Contains(t, out, "Closeable:   2")
	assert.Contains(t, out, "Reclaimable: 1 (0.002039 SOL)")
	assert.Equal(t, []string{"GET /api/v1/snapshots/" + testFeePayer + "?network=devnet"}, api.calls())
}

func TestTrackCommands_InvalidAddress(t *testing.T) {
	tc := newTestCLI(t)
	api, server := newFakeAPI(t)

	require.Error(t, tc.run("--server-url", server.URL, "track", "add", "bogus-address"))
	assert.Empty(t, api.calls())
}
