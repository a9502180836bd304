package rent

import (
	"context"
	"errors"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/solvent/service/solana"
)

func historyOf(n int) []solana.TransactionInfo {
	out := make([]solana.TransactionInfo, n)
	for i := range out {
		out[i] = solana.TransactionInfo{Signature: sigN(i), Slot: uint64(n - i)}
	}
	return out
}

func TestListTransactions_PaginationRespectsLimit(t *testing.T) {
	ledger := newMockLedger()
	ledger.history = historyOf(1000)
	scanner := NewScanner(ledger, testOptions(), nil, discardLogger())

	txs, err := scanner.ListTransactions(context.Background(), newKey(), 250)
	require.NoError(t, err)

	assert.Len(t, txs, 250)
	assert.Equal(t, []int{100, 100, 50}, ledger.pageLimits)
	for _, limit := range ledger.pageLimits {
		assert.LessOrEqual(t, limit, 100)
	}
	// newest first, contiguous across pages
	for i, tx := range txs {
		assert.Equal(t, sigN(i), tx.Signature)
	}
}

func TestListTransactions_DefaultLimit(t *testing.T) {
	ledger := newMockLedger()
	ledger.history = historyOf(1500)
	scanner := NewScanner(ledger, testOptions(), nil, discardLogger())

	txs, err := scanner.ListTransactions(context.Background(), newKey(), 0)
	require.NoError(t, err)
	assert.Len(t, txs, DefaultScanLimit)
	assert.Len(t, ledger.pageLimits, 10)
}

func TestListTransactions_StopsOnShortPage(t *testing.T) {
	ledger := newMockLedger()
	ledger.history = historyOf(130)
	scanner := NewScanner(ledger, testOptions(), nil, discardLogger())

	txs, err := scanner.ListTransactions(context.Background(), newKey(), 1000)
	require.NoError(t, err)
	assert.Len(t, txs, 130)
	assert.Equal(t, []int{100, 100}, ledger.pageLimits)
}

func TestListTransactions_EmptyHistory(t *testing.T) {
	ledger := newMockLedger()
	scanner := NewScanner(ledger, testOptions(), nil, discardLogger())

	txs, err := scanner.ListTransactions(context.Background(), newKey(), 100)
	require.NoError(t, err)
	assert.Empty(t, txs)
	assert.Len(t, ledger.pageLimits, 1)
}

func TestListTransactions_FirstPageFailureIsFatal(t *testing.T) {
	ledger := newMockLedger()
	ledger.history = historyOf(300)
	ledger.failPage = 1
	scanner := NewScanner(ledger, testOptions(), nil, discardLogger())

	txs, err := scanner.ListTransactions(context.Background(), newKey(), 1000)
	require.Error(t, err)
	assert.Nil(t, txs)
	assert.Contains(t, err.Error(), "rpc unavailable")
}

func TestListTransactions_LaterPageFailureKeepsPartial(t *testing.T) {
	ledger := newMockLedger()
	ledger.history = historyOf(300)
	ledger.failPage = 3
	scanner := NewScanner(ledger, testOptions(), nil, discardLogger())

	txs, err := scanner.ListTransactions(context.Background(), newKey(), 1000)
	require.NoError(t, err)
	assert.Len(t, txs, 200)
}

func TestListTransactions_Cancelled(t *testing.T) {
	ledger := newMockLedger()
	ledger.history = historyOf(300)
	opts := testOptions()
	opts.PageDelay = DefaultPageDelay
	scanner := NewScanner(ledger, opts, nil, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := scanner.ListTransactions(ctx, newKey(), 1000)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractCreations(t *testing.T) {
	feePayer := newKey()
	ledger := newMockLedger()

	// tx 0: direct creation
	direct := newKey()
	ledger.addTransaction(&solana.ParsedTransaction{
		Signature:    sigN(0),
		FeePayer:     feePayer,
		Instructions: []solana.Instruction{createAccountIx(feePayer, direct, newKey(), 1_000_000)},
	})

	// tx 1: failed on-chain, never fetched
	ledger.history = append(ledger.history, solana.TransactionInfo{Signature: sigN(1), Err: ptr("InstructionError")})
	ledger.txs[sigN(1)] = &solana.ParsedTransaction{
		Signature:    sigN(1),
		FeePayer:     feePayer,
		Instructions: []solana.Instruction{createAccountIx(feePayer, newKey(), newKey(), 1)},
	}

	// tx 2: someone else paid the fee
	ledger.addTransaction(&solana.ParsedTransaction{
		Signature:    sigN(2),
		FeePayer:     newKey(),
		Instructions: []solana.Instruction{createAccountIx(feePayer, newKey(), newKey(), 1)},
	})

	// tx 3: fetch error
	ledger.history = append(ledger.history, solana.TransactionInfo{Signature: sigN(3)})
	ledger.txErrs[sigN(3)] = errors.New("timeout")

	// tx 4: pruned
	ledger.history = append(ledger.history, solana.TransactionInfo{Signature: sigN(4)})

	// tx 5: ATA creation, plus an older re-creation of the direct account
	ata := newKey()
	mint := newKey()
	ledger.addTransaction(&solana.ParsedTransaction{
		Signature: sigN(5),
		FeePayer:  feePayer,
		Instructions: []solana.Instruction{
			createATAIx(feePayer, ata, newKey(), mint, []byte{1}),
			createAccountIx(feePayer, direct, newKey(), 5),
		},
	})

	scanner := NewScanner(ledger, testOptions(), nil, discardLogger())
	creations := scanner.ExtractCreations(context.Background(), feePayer, ledger.history)

	require.Len(t, creations, 2)
	assert.Equal(t, direct, creations[0].Address)
	assert.Equal(t, uint64(1_000_000), creations[0].Lamports, "newest occurrence wins")
	assert.Equal(t, ata, creations[1].Address)

	assert.NotContains(t, ledger.txFetches, sigN(1), "failed transactions are not fetched")
	assert.Len(t, ledger.txFetches, 5)
}

func TestExtractCreations_ReportsProgress(t *testing.T) {
	feePayer := newKey()
	ledger := newMockLedger()
	for i := range 25 {
		ledger.addTransaction(&solana.ParsedTransaction{Signature: sigN(i), FeePayer: feePayer})
	}

	var reports []int
	opts := testOptions()
	opts.Progress = func(stage string, done, total int) {
		assert.Equal(t, "parse", stage)
		assert.Equal(t, 25, total)
		reports = append(reports, done)
	}
	scanner := NewScanner(ledger, opts, nil, discardLogger())
	scanner.ExtractCreations(context.Background(), feePayer, ledger.history)

	assert.Equal(t, []int{10, 20}, reports)
}

func TestScan(t *testing.T) {
	feePayer := newKey()
	ledger := newMockLedger()
	created := newKey()
	ledger.addTransaction(&solana.ParsedTransaction{
		Signature:    sigN(0),
		FeePayer:     feePayer,
		Instructions: []solana.Instruction{createAccountIx(feePayer, created, newKey(), 10)},
	})
	ledger.history = append(ledger.history, solana.TransactionInfo{Signature: sigN(1), Err: ptr("failed")})

	scanner := NewScanner(ledger, testOptions(), nil, discardLogger())
	result, err := scanner.Scan(context.Background(), feePayer, 100)
	require.NoError(t, err)

	assert.Equal(t, feePayer, result.FeePayer)
	assert.Equal(t, 2, result.Transactions)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Creations, 1)
	assert.Equal(t, created, result.Creations[0].Address)
	assert.False(t, result.ScannedAt.IsZero())
}

func TestSameAddress(t *testing.T) {
	feePayer := newKey()
	assert.True(t, SameAddress(feePayer, feePayer))
	assert.False(t, SameAddress(feePayer, newKey()))
	assert.True(t, SameAddress(solanago.PublicKey{}, solanago.PublicKey{}))
}
