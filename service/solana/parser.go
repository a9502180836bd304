package solana

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
)

// Well-known Solana program IDs
var (
	// SystemProgramID creates accounts and transfers native SOL
	SystemProgramID = solana.SystemProgramID

	// TokenProgramID is the SPL Token program
	TokenProgramID = solana.TokenProgramID

	// Token2022ProgramID is the Token Extensions program (Token-2022)
	Token2022ProgramID = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")

	// AssociatedTokenProgramID derives and creates associated token accounts
	AssociatedTokenProgramID = solana.SPLAssociatedTokenAccountProgramID
)

// TokenAccountSize is the length of a base SPL token account without extensions.
const TokenAccountSize = 165

// IsTokenProgram reports whether id is the SPL Token or Token-2022 program.
func IsTokenProgram(id solana.PublicKey) bool {
	return id.Equals(TokenProgramID) || id.Equals(Token2022ProgramID)
}

// signatureToInfo converts an RPC TransactionSignature to a TransactionInfo.
func signatureToInfo(sig *rpc.TransactionSignature) TransactionInfo {
	info := TransactionInfo{
		Signature: sig.Signature,
		Slot:      sig.Slot,
	}
	if sig.BlockTime != nil {
		t := sig.BlockTime.Time()
		info.BlockTime = &t
	}
	if sig.Err != nil {
		errMsg := fmt.Sprintf("transaction failed: %v", sig.Err)
		info.Err = &errMsg
	}
	return info
}

// parseTransactionResult decodes a GetTransactionResult into a ParsedTransaction.
// Account indexes are resolved against the static keys followed by the
// writable and then read-only addresses loaded from lookup tables.
func parseTransactionResult(signature solana.Signature, result *rpc.GetTransactionResult) (*ParsedTransaction, error) {
	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	if len(tx.Message.AccountKeys) == 0 {
		return nil, fmt.Errorf("transaction has no account keys")
	}

	keys := make([]solana.PublicKey, 0, len(tx.Message.AccountKeys))
	keys = append(keys, tx.Message.AccountKeys...)
	if result.Meta != nil {
		keys = append(keys, result.Meta.LoadedAddresses.Writable...)
		keys = append(keys, result.Meta.LoadedAddresses.ReadOnly...)
	}

	parsed := &ParsedTransaction{
		Signature: signature,
		FeePayer:  keys[0],
	}
	if result.BlockTime != nil {
		t := result.BlockTime.Time()
		parsed.BlockTime = &t
	}

	for i, ci := range tx.Message.Instructions {
		ix, err := resolveInstruction(keys, ci.ProgramIDIndex, ci.Accounts, ci.Data)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		parsed.Instructions = append(parsed.Instructions, ix)
	}

	if result.Meta != nil {
		for _, inner := range result.Meta.InnerInstructions {
			for j, ci := range inner.Instructions {
				ix, err := resolveInstruction(keys, ci.ProgramIDIndex, ci.Accounts, ci.Data)
				if err != nil {
					return nil, fmt.Errorf("inner instruction %d.%d: %w", inner.Index, j, err)
				}
				parsed.InnerInstructions = append(parsed.InnerInstructions, ix)
			}
		}
	}

	return parsed, nil
}

// resolveInstruction maps a compiled instruction's indexes onto account keys.
func resolveInstruction(keys []solana.PublicKey, programIndex uint16, accounts []uint16, data []byte) (Instruction, error) {
	if int(programIndex) >= len(keys) {
		return Instruction{}, fmt.Errorf("program index %d out of bounds (%d keys)", programIndex, len(keys))
	}
	ix := Instruction{
		ProgramID: keys[programIndex],
		Accounts:  make([]solana.PublicKey, 0, len(accounts)),
		Data:      append([]byte(nil), data...),
	}
	for _, idx := range accounts {
		if int(idx) >= len(keys) {
			return Instruction{}, fmt.Errorf("account index %d out of bounds (%d keys)", idx, len(keys))
		}
		ix.Accounts = append(ix.Accounts, keys[idx])
	}
	return ix, nil
}

// decodeTokenAccount decodes the base token account layout. Token-2022 extension
// bytes beyond TokenAccountSize are ignored.
func decodeTokenAccount(data []byte) (*TokenAccountDetail, error) {
	if len(data) < TokenAccountSize {
		return nil, fmt.Errorf("token account data too short: %d bytes", len(data))
	}
	var acc token.Account
	if err := bin.NewBinDecoder(data[:TokenAccountSize]).Decode(&acc); err != nil {
		return nil, err
	}
	detail := &TokenAccountDetail{
		Mint:   acc.Mint,
		Owner:  acc.Owner,
		Amount: acc.Amount,
	}
	if acc.CloseAuthority != nil {
		ca := *acc.CloseAuthority
		detail.CloseAuthority = &ca
	}
	return detail, nil
}
