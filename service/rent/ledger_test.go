package rent

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/brojonat/solvent/service/solana"
)

// mockLedger implements Ledger in memory. Tests set what it returns and read back
// what was requested; it never talks to a network.
type mockLedger struct {
	mu sync.Mutex

	history     []solana.TransactionInfo // newest first
	failPage    int                      // 1-based page number that fails; 0 means never
	txs         map[solanago.Signature]*solana.ParsedTransaction
	txErrs      map[solanago.Signature]error
	accounts    map[solanago.PublicKey]*solana.AccountInfo
	accountErrs map[solanago.PublicKey]error
	tokens      map[solanago.PublicKey]*solana.TokenAccountDetail
	tokenErrs   map[solanago.PublicKey]error
	submitErrs  map[solanago.PublicKey]error

	pageLimits []int
	txFetches  []solanago.Signature
	submitted  []solana.CloseRequest
	calls      int
}

func newMockLedger() *mockLedger {
	return &mockLedger{
		txs:         make(map[solanago.Signature]*solana.ParsedTransaction),
		txErrs:      make(map[solanago.Signature]error),
		accounts:    make(map[solanago.PublicKey]*solana.AccountInfo),
		accountErrs: make(map[solanago.PublicKey]error),
		tokens:      make(map[solanago.PublicKey]*solana.TokenAccountDetail),
		tokenErrs:   make(map[solanago.PublicKey]error),
		submitErrs:  make(map[solanago.PublicKey]error),
	}
}

func (m *mockLedger) ListSignatures(ctx context.Context, address solanago.PublicKey, before *solanago.Signature, limit int) ([]solana.TransactionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.pageLimits = append(m.pageLimits, limit)
	if m.failPage == len(m.pageLimits) {
		return nil, errors.New("rpc unavailable")
	}

	start := 0
	if before != nil {
		start = len(m.history)
		for i, tx := range m.history {
			if tx.Signature == *before {
				start = i + 1
				break
			}
		}
	}
	end := min(start+limit, len(m.history))
	return append([]solana.TransactionInfo(nil), m.history[start:end]...), nil
}

func (m *mockLedger) GetParsedTransaction(ctx context.Context, sig solanago.Signature) (*solana.ParsedTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.txFetches = append(m.txFetches, sig)
	if err := m.txErrs[sig]; err != nil {
		return nil, err
	}
	return m.txs[sig], nil
}

func (m *mockLedger) GetAccountInfo(ctx context.Context, address solanago.PublicKey) (*solana.AccountInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if err := m.accountErrs[address]; err != nil {
		return nil, err
	}
	return m.accounts[address], nil
}

func (m *mockLedger) GetTokenAccountDetail(ctx context.Context, address solanago.PublicKey) (*solana.TokenAccountDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if err := m.tokenErrs[address]; err != nil {
		return nil, err
	}
	return m.tokens[address], nil
}

func (m *mockLedger) SubmitCloseInstruction(ctx context.Context, req solana.CloseRequest) (solanago.Signature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if err := m.submitErrs[req.Account]; err != nil {
		return solanago.Signature{}, err
	}
	m.submitted = append(m.submitted, req)
	return sigN(1_000_000 + len(m.submitted)), nil
}

// putTokenAccount registers a live token account.
func (m *mockLedger) putTokenAccount(address, owner solanago.PublicKey, amount uint64, closeAuthority *solanago.PublicKey) {
	m.accounts[address] = &solana.AccountInfo{Address: address, Lamports: TokenAccountRentEstimate, Owner: solana.TokenProgramID, DataLen: 165}
	m.tokens[address] = &solana.TokenAccountDetail{
		Address:        address,
		Owner:          owner,
		Amount:         amount,
		CloseAuthority: closeAuthority,
		ProgramID:      solana.TokenProgramID,
		Lamports:       TokenAccountRentEstimate,
	}
}

// addTransaction appends a successful transaction to the history.
func (m *mockLedger) addTransaction(tx *solana.ParsedTransaction) {
	m.history = append(m.history, solana.TransactionInfo{Signature: tx.Signature, BlockTime: tx.BlockTime})
	m.txs[tx.Signature] = tx
}

func sigN(n int) solanago.Signature {
	var s solanago.Signature
	binary.LittleEndian.PutUint64(s[:8], uint64(n)+1)
	return s
}

func newKey() solanago.PublicKey {
	return solanago.NewWallet().PublicKey()
}

func ptr[T any](v T) *T { return &v }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testOptions disables every throttle delay.
func testOptions() Options {
	o := DefaultOptions()
	o.PageDelay = 0
	o.TxDelay = 0
	o.ClassifyDelay = 0
	o.ReclaimDelay = 0
	return o
}

func createAccountIx(funding, created, owner solanago.PublicKey, lamports uint64) solana.Instruction {
	data := make([]byte, 52)
	binary.LittleEndian.PutUint64(data[4:12], lamports)
	binary.LittleEndian.PutUint64(data[12:20], 165)
	copy(data[20:52], owner[:])
	return solana.Instruction{
		ProgramID: solana.SystemProgramID,
		Accounts:  []solanago.PublicKey{funding, created},
		Data:      data,
	}
}

func createATAIx(funding, ata, wallet, mint solanago.PublicKey, data []byte) solana.Instruction {
	return solana.Instruction{
		ProgramID: solana.AssociatedTokenProgramID,
		Accounts:  []solanago.PublicKey{funding, ata, wallet, mint, solana.SystemProgramID, solana.TokenProgramID},
		Data:      data,
	}
}

func blockTime(unix int64) *time.Time {
	t := time.Unix(unix, 0).UTC()
	return &t
}
