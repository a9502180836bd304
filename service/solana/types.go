package solana

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// TransactionInfo is one entry of an address's signature history.
// It carries only the metadata returned by getSignaturesForAddress.
type TransactionInfo struct {
	Signature solana.Signature `json:"signature"`
	Slot      uint64           `json:"slot"`
	BlockTime *time.Time       `json:"block_time,omitempty"`
	Err       *string          `json:"err,omitempty"` // nil if the transaction succeeded
}

// Failed reports whether the transaction failed on-chain.
func (t TransactionInfo) Failed() bool {
	return t.Err != nil
}

// Instruction is a compiled instruction with its account indexes resolved to keys.
type Instruction struct {
	ProgramID solana.PublicKey   `json:"program_id"`
	Accounts  []solana.PublicKey `json:"accounts"`
	Data      []byte             `json:"data"`
}

// Account returns the i-th account of the instruction and whether it exists.
func (ix Instruction) Account(i int) (solana.PublicKey, bool) {
	if i < 0 || i >= len(ix.Accounts) {
		return solana.PublicKey{}, false
	}
	return ix.Accounts[i], true
}

// ParsedTransaction is the decoded body of a confirmed transaction.
// InnerInstructions are flattened in execution order.
type ParsedTransaction struct {
	Signature         solana.Signature `json:"signature"`
	FeePayer          solana.PublicKey `json:"fee_payer"`
	BlockTime         *time.Time       `json:"block_time,omitempty"`
	Instructions      []Instruction    `json:"instructions"`
	InnerInstructions []Instruction    `json:"inner_instructions"`
}

// AccountInfo is the live state of an account that exists on the ledger.
type AccountInfo struct {
	Address  solana.PublicKey `json:"address"`
	Lamports uint64           `json:"lamports"`
	Owner    solana.PublicKey `json:"owner"`
	DataLen  int              `json:"data_len"`
}

// TokenAccountDetail is the decoded state of an SPL token account.
type TokenAccountDetail struct {
	Address        solana.PublicKey  `json:"address"`
	Mint           solana.PublicKey  `json:"mint"`
	Owner          solana.PublicKey  `json:"owner"`
	Amount         uint64            `json:"amount"`
	CloseAuthority *solana.PublicKey `json:"close_authority,omitempty"`
	ProgramID      solana.PublicKey  `json:"program_id"` // token program that owns the account
	Lamports       uint64            `json:"lamports"`
}

// EffectiveCloseAuthority returns the explicit close authority, falling back to the owner.
func (d *TokenAccountDetail) EffectiveCloseAuthority() solana.PublicKey {
	if d.CloseAuthority != nil {
		return *d.CloseAuthority
	}
	return d.Owner
}

// CloseRequest describes a single close-account submission.
type CloseRequest struct {
	Account     solana.PublicKey
	Destination solana.PublicKey
	Authority   solana.PrivateKey // fee payer and close authority
	ProgramID   solana.PublicKey  // zero value means the SPL Token program
}
