package rent

import (
	"encoding/binary"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/brojonat/solvent/service/solana"
)

// System program CreateAccount layout:
// [0..4]   instruction type (u32 LE, 0)
// [4..12]  lamports (u64 LE)
// [12..20] space (u64 LE)
// [20..52] owner program
const (
	systemCreateAccount    = uint32(0)
	createAccountDataLen   = 52
	ataCreate              = byte(0)
	ataCreateIdempotent    = byte(1)
	ataCreateMinAccountLen = 4
)

// parseCreateAccount recognizes a System CreateAccount with accounts [funding, new].
func parseCreateAccount(ix solana.Instruction) (ParsedAccountCreation, bool) {
	if !ix.ProgramID.Equals(solana.SystemProgramID) || len(ix.Data) < createAccountDataLen {
		return ParsedAccountCreation{}, false
	}
	if binary.LittleEndian.Uint32(ix.Data[0:4]) != systemCreateAccount {
		return ParsedAccountCreation{}, false
	}
	funding, ok := ix.Account(0)
	if !ok {
		return ParsedAccountCreation{}, false
	}
	created, ok := ix.Account(1)
	if !ok {
		return ParsedAccountCreation{}, false
	}
	return ParsedAccountCreation{
		Address:  created,
		Payer:    funding,
		Owner:    solanago.PublicKeyFromBytes(ix.Data[20:52]),
		Kind:     KindDirectAccount,
		Lamports: binary.LittleEndian.Uint64(ix.Data[4:12]),
	}, true
}

// parseCreateATA recognizes an associated token account Create or CreateIdempotent
// with accounts [funding, account, wallet, mint, ...]. Rent is resolved later.
func parseCreateATA(ix solana.Instruction) (ParsedAccountCreation, bool) {
	if !ix.ProgramID.Equals(solana.AssociatedTokenProgramID) || len(ix.Accounts) < ataCreateMinAccountLen {
		return ParsedAccountCreation{}, false
	}
	if len(ix.Data) > 0 && ix.Data[0] != ataCreate && ix.Data[0] != ataCreateIdempotent {
		return ParsedAccountCreation{}, false
	}
	mint := ix.Accounts[3]
	return ParsedAccountCreation{
		Address: ix.Accounts[1],
		Payer:   ix.Accounts[0],
		Owner:   ix.Accounts[2],
		Mint:    &mint,
		Kind:    KindAssociatedTokenAccount,
	}, true
}

func parseCreation(ix solana.Instruction) (ParsedAccountCreation, bool) {
	if c, ok := parseCreateAccount(ix); ok {
		return c, true
	}
	return parseCreateATA(ix)
}

// CreationsInTransaction returns the account creations in one transaction, top-level
// instructions first. An address appears at most once.
func CreationsInTransaction(tx *solana.ParsedTransaction) []ParsedAccountCreation {
	if tx == nil {
		return nil
	}
	var out []ParsedAccountCreation
	seen := make(map[solanago.PublicKey]struct{})

	add := func(ix solana.Instruction) {
		c, ok := parseCreation(ix)
		if !ok {
			return
		}
		if _, dup := seen[c.Address]; dup {
			return
		}
		seen[c.Address] = struct{}{}
		c.Signature = tx.Signature
		c.BlockTime = tx.BlockTime
		out = append(out, c)
	}

	for _, ix := range tx.Instructions {
		add(ix)
	}
	for _, ix := range tx.InnerInstructions {
		add(ix)
	}
	return out
}
