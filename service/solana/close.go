package solana

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
)

// buildCloseTransaction assembles and signs a single CloseAccount transaction.
func (c *Client) buildCloseTransaction(ctx context.Context, req CloseRequest) (*solana.Transaction, error) {
	if len(req.Authority) == 0 {
		return nil, fmt.Errorf("close %s: missing authority key", req.Account)
	}
	authority := req.Authority.PublicKey()
	destination := req.Destination
	if destination.IsZero() {
		destination = authority
	}

	ix, err := newCloseInstruction(req.ProgramID, req.Account, destination, authority)
	if err != nil {
		return nil, fmt.Errorf("build close instruction for %s: %w", req.Account, err)
	}

	var latest *rpc.GetLatestBlockhashResult
	err = c.call(ctx, "GetLatestBlockhash", func() error {
		var err error
		latest, err = c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get latest blockhash: %w", err)
	}
	if latest == nil || latest.Value == nil {
		return nil, fmt.Errorf("get latest blockhash: empty response")
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{ix},
		latest.Value.Blockhash,
		solana.TransactionPayer(authority),
	)
	if err != nil {
		return nil, fmt.Errorf("build close transaction for %s: %w", req.Account, err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(authority) {
			return &req.Authority
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sign close transaction for %s: %w", req.Account, err)
	}
	return tx, nil
}

// newCloseInstruction builds an SPL CloseAccount instruction addressed to programID,
// which may be the Token or Token-2022 program. Both share the instruction layout.
func newCloseInstruction(programID, account, destination, owner solana.PublicKey) (solana.Instruction, error) {
	if programID.IsZero() {
		programID = TokenProgramID
	}
	if !IsTokenProgram(programID) {
		return nil, fmt.Errorf("%s is not a token program", programID)
	}

	built, err := token.NewCloseAccountInstruction(account, destination, owner, nil).ValidateAndBuild()
	if err != nil {
		return nil, err
	}
	data, err := built.Data()
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, built.Accounts(), data), nil
}
