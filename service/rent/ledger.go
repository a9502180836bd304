package rent

import (
	"context"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/brojonat/solvent/service/solana"
)

// Ledger is the ledger capability the pipeline needs. *solana.Client implements it.
// Absent transactions and accounts are returned as (nil, nil).
type Ledger interface {
	ListSignatures(ctx context.Context, address solanago.PublicKey, before *solanago.Signature, limit int) ([]solana.TransactionInfo, error)
	GetParsedTransaction(ctx context.Context, signature solanago.Signature) (*solana.ParsedTransaction, error)
	GetAccountInfo(ctx context.Context, address solanago.PublicKey) (*solana.AccountInfo, error)
	GetTokenAccountDetail(ctx context.Context, address solanago.PublicKey) (*solana.TokenAccountDetail, error)
	SubmitCloseInstruction(ctx context.Context, req solana.CloseRequest) (solanago.Signature, error)
}

var _ Ledger = (*solana.Client)(nil)
