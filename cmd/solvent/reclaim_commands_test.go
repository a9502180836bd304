package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/solvent/service/db"
	natspkg "github.com/brojonat/solvent/service/nats"
	"github.com/brojonat/solvent/service/rent"
)

// writeKeypair stores key in solana-keygen format and returns the path.
func writeKeypair(t *testing.T, key solanago.PrivateKey) string {
	t.Helper()
	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	data, err := json.Marshal(ints)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestReclaimCommand_DryRun(t *testing.T) {
	tc := newTestCLI(t)

	require.NoError(t, tc.run("reclaim", "--dry-run", testFeePayer))

	out := tc.stdout.String()
	assert.Contains(t, out, "🧪 SOLVENT - Rent Reclaimer")
	assert.Contains(t, out, "Fee Payer: "+testFeePayer)
	assert.Contains(t, out, "Mode:      DRY RUN (no transactions)")
	assert.Contains(t, out, "Found 1 accounts to reclaim (0.002039 SOL)")
	assert.Contains(t, out, "[DRY RUN] RECLAIM COMPLETE")
	assert.Contains(t, out, "Accounts processed: 1")
	assert.Contains(t, out, "Successful:         1")
	assert.Contains(t, out, "Total reclaimed:    0.002039 SOL")
	assert.NotContains(t, tc.stderr.String(), "Proceed with reclaim?")

	require.Len(t, tc.pipeline.reclaimed, 1)
	assert.True(t, tc.pipeline.reclaimOpts.DryRun)
	assert.Equal(t, rent.DefaultBatchSize, tc.pipeline.reclaimOpts.BatchSize)
	assert.Empty(t, tc.pipeline.signer)
}

func TestReclaimCommand_RequiresKeypair(t *testing.T) {
	tc := newTestCLI(t)

	err := tc.run("reclaim", testFeePayer)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--keypair is required")
	assert.Equal(t, 0, tc.pipeline.analyzeCalls())
}

func TestReclaimCommand_DryRunRequiresAddressWithoutKeypair(t *testing.T) {
	tc := newTestCLI(t)

	err := tc.run("reclaim", "--dry-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fee payer address is required")
}

func TestReclaimCommand_Live(t *testing.T) {
	key := solanago.NewWallet().PrivateKey
	path := writeKeypair(t, key)

	tests := []struct {
		name        string
		stdin       string
		args        []string
		wantReclaim bool
	}{
		{name: "confirmed", stdin: "y\n", args: []string{"reclaim", "--keypair", path}, wantReclaim: true},
		{name: "confirmed with yes", stdin: "yes\n", args: []string{"reclaim", "--keypair", path}, wantReclaim: true},
		{name: "declined", stdin: "n\n", args: []string{"reclaim", "--keypair", path}, wantReclaim: false},
		{name: "no answer", stdin: "", args: []string{"reclaim", "--keypair", path}, wantReclaim: false},
		{name: "skip prompt", stdin: "", args: []string{"reclaim", "--keypair", path, "--yes"}, wantReclaim: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := newTestCLI(t)
			tc.stdin = tt.stdin

			require.NoError(t, tc.run(tt.args...))

			out := tc.stdout.String()
			assert.Contains(t, out, "Fee Payer: "+key.PublicKey().String())
			assert.Contains(t, out, "Mode:      LIVE")

			if !tt.wantReclaim {
				assert.Empty(t, tc.pipeline.reclaimed)
				assert.Contains(t, tc.stderr.String(), "Reclaim cancelled")
				return
			}
			require.Len(t, tc.pipeline.reclaimed, 1)
			assert.False(t, tc.pipeline.reclaimOpts.DryRun)
			assert.Equal(t, key, tc.pipeline.signer)
			assert.Contains(t, out, "✓ "+reclaimableAccount.String())
			assert.Contains(t, out, "\nRECLAIM COMPLETE")
			assert.NotContains(t, out, "[DRY RUN]")
		})
	}
}

func TestReclaimCommand_Options(t *testing.T) {
	key := solanago.NewWallet().PrivateKey
	path := writeKeypair(t, key)
	tc := newTestCLI(t)

	require.NoError(t, tc.run("reclaim", "--keypair", path, "--yes", "--batch-size", "3", "--destination", otherAddress))

	require.NotNil(t, tc.pipeline.reclaimOpts.Destination)
	assert.Equal(t, otherAddress, tc.pipeline.reclaimOpts.Destination.String())
	assert.Equal(t, 3, tc.pipeline.reclaimOpts.BatchSize)
}

func TestReclaimCommand_KeypairMismatch(t *testing.T) {
	path := writeKeypair(t, solanago.NewWallet().PrivateKey)
	tc := newTestCLI(t)

	err := tc.run("reclaim", "--keypair", path, otherAddress)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match fee payer")
}

func TestReclaimCommand_NothingToReclaim(t *testing.T) {
	tc := newTestCLI(t)
	tc.pipeline.accounts = tc.pipeline.accounts[1:]

	require.NoError(t, tc.run("reclaim", "--dry-run", testFeePayer))
	assert.Contains(t, tc.stdout.String(), "No accounts available for reclaim")
	assert.Empty(t, tc.pipeline.reclaimed)
}

func TestReclaimCommand_JSON(t *testing.T) {
	tc := newTestCLI(t)

	require.NoError(t, tc.run("--json", "reclaim", "--dry-run", testFeePayer))

	var got reclaimOutput
	require.NoError(t, json.Unmarshal(tc.stdout.Bytes(), &got))
	assert.Equal(t, testFeePayer, got.FeePayer)
	assert.True(t, got.DryRun)
	require.Len(t, got.Results, 1)
	assert.Equal(t, reclaimableAccount, got.Results[0].Account)
	assert.Equal(t, rent.ReclaimSummary{Processed: 1, Succeeded: 1, TotalReclaimed: 2_039_280}, got.Summary)
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"Y\n", true},
		{"yes\n", true},
		{" yes \n", true},
		{"n\n", false},
		{"no\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var prompt bytes.Buffer
		got, err := confirm(strings.NewReader(tt.input), &prompt, "Proceed? ")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
		assert.Equal(t, "Proceed? ", prompt.String())
	}
}

type fakeAuditLog struct {
	mu      sync.Mutex
	entries []db.AuditEntry
	err     error
}

func (f *fakeAuditLog) RecordAudit(_ context.Context, entry db.AuditEntry) (*db.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.entries = append(f.entries, entry)
	return &entry, nil
}

func TestRecordOutcomes(t *testing.T) {
	sig := solanago.Signature{9}
	failure := "account has non-zero balance: 5"
	results := []rent.ReclaimResult{
		{Account: reclaimableAccount, Success: true, RentReclaimed: 2_039_280, Signature: &sig, Timestamp: time.Now()},
		{Account: fundedAccount, Success: false, Error: &failure, Timestamp: time.Now()},
	}

	audit := &fakeAuditLog{}
	pub := natspkg.NewMockPublisher()
	recordOutcomes(context.Background(), results, testFeePayer, "devnet", reclaimSinks{audit: audit, publisher: pub}, testLogger())

	require.Len(t, audit.entries, 2)
	assert.Equal(t, "reclaim", audit.entries[0].Action)
	assert.Equal(t, reclaimableAccount.String(), audit.entries[0].Account)
	assert.Equal(t, "devnet", audit.entries[0].Network)
	assert.Equal(t, "reclaimed 0.002039 SOL", audit.entries[0].Details)
	require.NotNil(t, audit.entries[0].Signature)
	assert.Equal(t, sig.String(), *audit.entries[0].Signature)
	assert.Equal(t, "failed: "+failure, audit.entries[1].Details)
	assert.Nil(t, audit.entries[1].Signature)

	events := pub.Reclaims()
	require.Len(t, events, 2)
	assert.Equal(t, testFeePayer, events[0].FeePayer)
	assert.True(t, events[0].Success)
	assert.Equal(t, failure, events[1].Error)
}

func TestRecordOutcomes_SinkFailuresAreLogged(t *testing.T) {
	results := []rent.ReclaimResult{{Account: reclaimableAccount, Success: true, DryRun: true}}
	audit := &fakeAuditLog{err: errors.New("db down")}
	pub := natspkg.NewMockPublisher()
	pub.SetPublishError(errors.New("nats down"))

	assert.NotPanics(t, func() {
		recordOutcomes(context.Background(), results, testFeePayer, "devnet", reclaimSinks{audit: audit, publisher: pub}, testLogger())
	})
	assert.Empty(t, audit.entries)
}

func TestAuditEntry_DryRun(t *testing.T) {
	entry := auditEntry(rent.ReclaimResult{Account: reclaimableAccount, Success: true, RentReclaimed: 1_000_000, DryRun: true}, "mainnet-beta")
	assert.Equal(t, "reclaim_dry_run", entry.Action)
	assert.Equal(t, "reclaimed 0.001000 SOL", entry.Details)
	assert.Nil(t, entry.Signature)
}
