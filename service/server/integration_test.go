package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/solvent/client"
	"github.com/brojonat/solvent/service/watch"
)

// TestServerIntegration drives the routed server through the Go client.
func TestServerIntegration(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.handler)
	defer ts.Close()

	c := client.NewClient(ts.URL, nil, nil)
	ctx := context.Background()

	result, err := c.Scan(ctx, testAddress, client.ScanOptions{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, "devnet", result.Network)
	assert.Equal(t, 1, result.Stats.CloseableAccounts)

	tracked, err := c.Track(ctx, client.TrackRequest{Address: testAddress, OwnerID: "user-1", Interval: "30m"})
	require.NoError(t, err)
	assert.Equal(t, testAddress, tracked.Address)

	_, err = c.Track(ctx, client.TrackRequest{Address: testAddress, OwnerID: "user-1"})
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)

	list, err := c.ListTracked(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	f.store.putSnapshot(watch.Snapshot{
		Address:        testAddress,
		Network:        "devnet",
		CloseableCount: 2,
		ScannedAt:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	})
	snap, err := c.LatestSnapshot(ctx, testAddress, "devnet")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.CloseableCount)

	require.NoError(t, c.Untrack(ctx, testAddress, "user-1"))
	assert.Zero(t, f.scheduler.ScheduleCount())
}
