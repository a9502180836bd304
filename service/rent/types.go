package rent

import (
	"time"

	solanago "github.com/gagliardetto/solana-go"
)

// CreationKind is the instruction shape an account was created with.
type CreationKind string

const (
	KindDirectAccount          CreationKind = "direct-account"
	KindAssociatedTokenAccount CreationKind = "associated-token-account"
)

// AccountType describes what a sponsored account turned out to be.
type AccountType string

const (
	TypeTokenAccount   AccountType = "token-account"
	TypeSystemAccount  AccountType = "system-account"
	TypeProgramDerived AccountType = "program-derived"
	TypeUnknown        AccountType = "unknown"
)

// Classification says whether the fee payer can close an account itself.
type Classification string

const (
	Reclaimable Classification = "RECLAIMABLE"
	MonitorOnly Classification = "MONITOR_ONLY"
)

// Status is the lifecycle state of a sponsored account.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCloseable Status = "CLOSEABLE"
	StatusClosed    Status = "CLOSED"
)

// ParsedAccountCreation is one account-creation event found in a fee payer's history.
type ParsedAccountCreation struct {
	Address   solanago.PublicKey  `json:"address"`
	Payer     solanago.PublicKey  `json:"payer"`
	Owner     solanago.PublicKey  `json:"owner"`
	Mint      *solanago.PublicKey `json:"mint,omitempty"`
	Kind      CreationKind        `json:"kind"`
	Signature solanago.Signature  `json:"signature"`
	BlockTime *time.Time          `json:"block_time,omitempty"`
	Lamports  uint64              `json:"lamports"` // 0 for associated token accounts
}

// IsToken reports whether the creation should be classified as a token account.
func (c ParsedAccountCreation) IsToken() bool {
	return c.Kind == KindAssociatedTokenAccount || c.Mint != nil
}

// SponsoredAccount is the classified state of one created account at scan time.
type SponsoredAccount struct {
	Address           solanago.PublicKey  `json:"address"`
	Type              AccountType         `json:"type"`
	Owner             solanago.PublicKey  `json:"owner"`
	CloseAuthority    *solanago.PublicKey `json:"close_authority,omitempty"`
	Mint              *solanago.PublicKey `json:"mint,omitempty"`
	RentLamports      uint64              `json:"rent_lamports"`
	TokenBalance      uint64              `json:"token_balance"`
	Classification    Classification      `json:"classification"`
	Status            Status              `json:"status"`
	CreationSignature solanago.Signature  `json:"creation_signature"`
	CreatedAt         time.Time           `json:"created_at"`
}

// Eligible reports whether the account may be closed by the fee payer right now.
func (a SponsoredAccount) Eligible() bool {
	return a.Classification == Reclaimable && a.Status == StatusCloseable && a.TokenBalance == 0
}

// RentStats is the aggregate report over a set of sponsored accounts.
// All amounts are in lamports. Closed accounts are never counted.
type RentStats struct {
	TotalAccounts       int    `json:"total_accounts"`
	TotalLocked         uint64 `json:"total_locked"`
	Reclaimable         uint64 `json:"reclaimable"`
	MonitorOnly         uint64 `json:"monitor_only"`
	CloseableAccounts   int    `json:"closeable_accounts"`
	ReclaimableAccounts int    `json:"reclaimable_accounts"`
}

// ReclaimResult is the outcome of attempting to close one account.
// Signature is nil on success only for dry runs.
type ReclaimResult struct {
	Account       solanago.PublicKey  `json:"account"`
	Success       bool                `json:"success"`
	RentReclaimed uint64              `json:"rent_reclaimed"`
	Signature     *solanago.Signature `json:"signature,omitempty"`
	Error         *string             `json:"error,omitempty"`
	Timestamp     time.Time           `json:"timestamp"`
	DryRun        bool                `json:"dry_run"`
}

// ReclaimSummary totals a batch of reclaim results.
type ReclaimSummary struct {
	Processed      int    `json:"processed"`
	Succeeded      int    `json:"succeeded"`
	Failed         int    `json:"failed"`
	TotalReclaimed uint64 `json:"total_reclaimed"`
}
