package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/solvent/service/metrics"
	"github.com/brojonat/solvent/service/solana"
	"github.com/brojonat/solvent/service/temporal"
	"github.com/brojonat/solvent/service/watch"
)

const testRPC = "https://rpc.example.com/?api-key=secret"

type fixture struct {
	handler   *Handler
	store     *memStore
	analyzer  *stubAnalyzer
	scheduler *temporal.MockScheduler
	registry  *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     newMemStore(),
		analyzer:  &stubAnalyzer{},
		scheduler: temporal.NewMockScheduler(),
		registry:  prometheus.NewRegistry(),
	}
	f.handler = NewHandler(HandlerConfig{
		Store:     f.store,
		Analyzer:  f.analyzer,
		Scheduler: f.scheduler,
		Targets: func(n solana.Network) solana.Target {
			return solana.Target{Network: n, Endpoint: "https://configured.example.com"}
		},
		ScanLimit:     50,
		WatchInterval: 30 * time.Minute,
		Metrics:       metrics.NewMetrics(f.registry),
		Logger:        testLogger(),
	})
	return f
}

func (f *fixture) run(user, name, arg string) string {
	return f.handler.Handle(context.Background(), user, Command{Name: name, Arg: arg})
}

func (f *fixture) text(user, text string) (string, bool) {
	return f.handler.HandleText(context.Background(), user, text)
}

func TestScan(t *testing.T) {
	t.Run("uses the configured endpoint of the user's network", func(t *testing.T) {
		f := newFixture(t)

		reply := f.run("alice", CmdScan, testAddress)

		assert.Contains(t, reply, "SOLVENT SCAN RESULTS")
		assert.Contains(t, reply, testAddress)
		require.Len(t, f.analyzer.targets, 1)
		assert.Equal(t, solana.NetworkDevnet, f.analyzer.targets[0].Network)
		assert.Equal(t, "https://configured.example.com", f.analyzer.targets[0].Endpoint)
	})

	t.Run("custom rpc wins", func(t *testing.T) {
		f := newFixture(t)
		f.run("alice", CmdNetwork, "mainnet")
		f.run("alice", CmdRPC, testRPC)

		f.run("alice", CmdScan, testAddress)

		require.Len(t, f.analyzer.targets, 1)
		assert.Equal(t, solana.NetworkMainnet, f.analyzer.targets[0].Network)
		assert.Equal(t, testRPC, f.analyzer.targets[0].Endpoint)
	})

	t.Run("invalid address", func(t *testing.T) {
		f := newFixture(t)

		reply := f.run("alice", CmdScan, "not-an-address")

		assert.Contains(t, reply, "Invalid address format")
		assert.Zero(t, f.analyzer.calls)
	})

	t.Run("analyzer failure", func(t *testing.T) {
		f := newFixture(t)
		f.analyzer.err = errors.New("rpc unavailable")

		reply := f.run("alice", CmdScan, testAddress)

		assert.Equal(t, "❌ scan failed: rpc unavailable", reply)
	})
}

func TestConversationFlow(t *testing.T) {
	f := newFixture(t)

	_, handled := f.text("alice", testAddress)
	assert.False(t, handled, "idle users are not in a conversation")

	reply := f.run("alice", CmdScan, "")
	assert.Contains(t, reply, "Send me a Solana address")
	assert.Equal(t, StateAwaitingAddress, f.handler.Conversations().Get("alice"))

	reply, handled = f.text("alice", "garbage")
	assert.True(t, handled)
	assert.Contains(t, reply, "Invalid address format")
	assert.Equal(t, StateAwaitingAddress, f.handler.Conversations().Get("alice"))

	reply, handled = f.text("alice", "  "+testAddress+"\n")
	assert.True(t, handled)
	assert.Contains(t, reply, "SOLVENT SCAN RESULTS")
	assert.Equal(t, StateIdle, f.handler.Conversations().Get("alice"))
	assert.Equal(t, 1, f.analyzer.calls)
}

func TestConversationFlow_TrackUntrackAndRPC(t *testing.T) {
	f := newFixture(t)

	f.run("alice", CmdTrack, "")
	assert.Equal(t, StateAwaitingTrack, f.handler.Conversations().Get("alice"))
	reply, _ := f.text("alice", testAddress)
	assert.Contains(t, reply, "Now tracking")

	f.run("alice", CmdUntrack, "")
	assert.Equal(t, StateAwaitingUntrack, f.handler.Conversations().Get("alice"))
	reply, _ = f.text("alice", testAddress)
	assert.Contains(t, reply, "Stopped tracking")

	f.run("alice", CmdRPC, "")
	assert.Equal(t, StateAwaitingEndpoint, f.handler.Conversations().Get("alice"))
	reply, _ = f.text("alice", "ws://localhost:8900")
	assert.Contains(t, reply, "Invalid RPC URL")
	reply, _ = f.text("alice", testRPC)
	assert.Contains(t, reply, "Custom RPC set")
	assert.Equal(t, StateIdle, f.handler.Conversations().Get("alice"))
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	f.run("alice", CmdTrack, "")

	reply := f.run("alice", CmdCancel, "")

	assert.Equal(t, "✅ Cancelled.", reply)
	assert.Equal(t, StateIdle, f.handler.Conversations().Get("alice"))
	_, handled := f.text("alice", testAddress)
	assert.False(t, handled)
}

func TestNewCommandResetsConversation(t *testing.T) {
	f := newFixture(t)
	f.run("alice", CmdTrack, "")

	f.run("alice", CmdStatus, "")

	assert.Equal(t, StateIdle, f.handler.Conversations().Get("alice"))
}

func TestTrack(t *testing.T) {
	t.Run("tracks on the user's network and schedules a watch", func(t *testing.T) {
		f := newFixture(t)
		f.run("alice", CmdNetwork, "mainnet-beta")

		reply := f.run("alice", CmdTrack, testAddress)

		assert.Contains(t, reply, "Now tracking `7xKXtg...gAsU` on mainnet")
		interval, ok := f.scheduler.ScheduleInterval(testAddress, string(solana.NetworkMainnet))
		require.True(t, ok)
		assert.Equal(t, 30*time.Minute, interval)

		tracked, _ := f.store.ListTrackedAddresses(context.Background(), "alice")
		require.Len(t, tracked, 1)
		assert.Equal(t, string(solana.NetworkMainnet), tracked[0].Network)
	})

	t.Run("duplicate", func(t *testing.T) {
		f := newFixture(t)
		f.run("alice", CmdTrack, testAddress)

		reply := f.run("alice", CmdTrack, testAddress)

		assert.Contains(t, reply, "already being tracked")
	})

	t.Run("schedule failure rolls back", func(t *testing.T) {
		f := newFixture(t)
		f.scheduler.SetUpsertError(errors.New("temporal down"))

		reply := f.run("alice", CmdTrack, testAddress)

		assert.Contains(t, reply, "❌ track failed")
		tracked, _ := f.store.ListTrackedAddresses(context.Background(), "alice")
		assert.Empty(t, tracked)
	})

	t.Run("invalid address", func(t *testing.T) {
		f := newFixture(t)

		reply := f.run("alice", CmdTrack, "abc")

		assert.Equal(t, "❌ Invalid address format.", reply)
		assert.Zero(t, f.scheduler.ScheduleCount())
	})

	t.Run("works without a scheduler", func(t *testing.T) {
		f := newFixture(t)
		f.handler.scheduler = nil

		reply := f.run("alice", CmdTrack, testAddress)

		assert.Contains(t, reply, "Now tracking")
	})
}

func TestUntrack(t *testing.T) {
	f := newFixture(t)
	f.run("alice", CmdTrack, testAddress)
	f.run("bob", CmdTrack, testAddress)
	network := string(solana.NetworkDevnet)

	reply := f.run("alice", CmdUntrack, testAddress)
	assert.Contains(t, reply, "Stopped tracking")
	assert.True(t, f.scheduler.ScheduleExists(testAddress, network), "bob still tracks the address")

	reply = f.run("bob", CmdUntrack, testAddress)
	assert.Contains(t, reply, "Stopped tracking")
	assert.False(t, f.scheduler.ScheduleExists(testAddress, network))

	reply = f.run("bob", CmdUntrack, testAddress)
	assert.Contains(t, reply, "was not being tracked")
}

func TestStatus(t *testing.T) {
	t.Run("nothing tracked", func(t *testing.T) {
		f := newFixture(t)

		reply := f.run("alice", CmdStatus, "")

		assert.Contains(t, reply, "No tracked addresses")
	})

	t.Run("uses snapshots and scans addresses without one", func(t *testing.T) {
		f := newFixture(t)
		f.run("alice", CmdTrack, testAddress)
		f.run("alice", CmdTrack, otherAddress)
		f.store.putSnapshot(watch.Snapshot{
			Address:        testAddress,
			Network:        string(solana.NetworkDevnet),
			CloseableCount: 5,
			ScannedAt:      time.Now(),
		})

		reply := f.run("alice", CmdStatus, "")

		assert.Contains(t, reply, "SOLVENT STATUS")
		assert.Contains(t, reply, "Tracked Addresses: **2**")
		assert.Contains(t, reply, "Total Closeable: **7**")
		assert.Equal(t, 1, f.analyzer.calls)
	})

	t.Run("scan failure", func(t *testing.T) {
		f := newFixture(t)
		f.run("alice", CmdTrack, testAddress)
		f.analyzer.err = errors.New("timeout")

		reply := f.run("alice", CmdStatus, "")

		assert.Contains(t, reply, "❌ status failed")
		assert.Contains(t, reply, "timeout")
	})
}

func TestAlertsPreference(t *testing.T) {
	f := newFixture(t)

	assert.Contains(t, f.run("alice", CmdAlerts, ""), "currently **enabled 🔔**")

	assert.Contains(t, f.run("alice", CmdAlerts, "off"), "disabled")
	prefs, _ := f.store.GetUserPrefs(context.Background(), "alice")
	assert.False(t, prefs.AlertsEnabled)
	assert.Contains(t, f.run("alice", CmdAlerts, ""), "currently **disabled 🔕**")

	assert.Contains(t, f.run("alice", CmdAlerts, "ON"), "enabled")
	prefs, _ = f.store.GetUserPrefs(context.Background(), "alice")
	assert.True(t, prefs.AlertsEnabled)
}

func TestNetworkPreference(t *testing.T) {
	f := newFixture(t)

	assert.Contains(t, f.run("alice", CmdNetwork, ""), "Current network: **devnet**")
	assert.Contains(t, f.run("alice", CmdNetwork, "testnet"), "invalid network")

	assert.Contains(t, f.run("alice", CmdNetwork, "mainnet"), "Network set to **mainnet**")
	prefs, _ := f.store.GetUserPrefs(context.Background(), "alice")
	assert.Equal(t, string(solana.NetworkMainnet), prefs.Network)
}

func TestRPCPreference(t *testing.T) {
	f := newFixture(t)

	assert.Contains(t, f.run("alice", CmdRPC, "ftp://example.com"), "Invalid RPC URL")

	assert.Contains(t, f.run("alice", CmdRPC, testRPC), "Custom RPC set")
	prefs, _ := f.store.GetUserPrefs(context.Background(), "alice")
	require.NotNil(t, prefs.CustomRPC)
	assert.Equal(t, testRPC, *prefs.CustomRPC)

	assert.Contains(t, f.run("alice", CmdRPC, "clear"), "cleared")
	prefs, _ = f.store.GetUserPrefs(context.Background(), "alice")
	assert.Nil(t, prefs.CustomRPC)
}

func TestUnknownCommandAndHelp(t *testing.T) {
	f := newFixture(t)

	assert.Contains(t, f.run("alice", "reclaim", ""), "Unknown command")
	assert.Contains(t, f.run("alice", CmdHelp, ""), "/track [address]")
}

func TestCommandMetrics(t *testing.T) {
	f := newFixture(t)
	f.run("alice", CmdScan, testAddress)
	f.analyzer.err = errors.New("boom")
	f.run("alice", CmdScan, testAddress)
	f.run("alice", CmdScan, testAddress)

	series, err := testutil.GatherAndCount(f.registry, "bot_commands_total")
	require.NoError(t, err)
	assert.Equal(t, 2, series, "one series per command and status")
}

func TestTrackedStoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.failWith = errors.New("connection refused")

	reply := f.run("alice", CmdTrack, testAddress)

	assert.Equal(t, "❌ track failed: connection refused", reply)
	assert.Zero(t, f.scheduler.ScheduleCount())
}
