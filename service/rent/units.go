package rent

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// TokenAccountRentEstimate is the rent-exempt minimum of a 165-byte token account,
// used when a closed account's original deposit is unknown.
const TokenAccountRentEstimate uint64 = 2_039_280

// LamportsToSOL converts lamports to an exact SOL amount.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -9)
}

// SOLToLamports converts a SOL amount to lamports, truncating sub-lamport digits.
func SOLToLamports(sol decimal.Decimal) (uint64, error) {
	if sol.IsNegative() {
		return 0, fmt.Errorf("negative amount %s", sol)
	}
	l := sol.Shift(9).Truncate(0).BigInt()
	if !l.IsUint64() {
		return 0, fmt.Errorf("amount %s overflows lamports", sol)
	}
	return l.Uint64(), nil
}

// FormatSOL renders lamports as SOL with six decimals, e.g. "0.002039 SOL".
func FormatSOL(lamports uint64) string {
	return LamportsToSOL(lamports).StringFixed(6) + " SOL"
}
