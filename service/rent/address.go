package rent

import (
	"strings"

	"filippo.io/edwards25519"
	solanago "github.com/gagliardetto/solana-go"
)

// SameAddress compares two addresses on their base58 text, ignoring case.
func SameAddress(a, b solanago.PublicKey) bool {
	return strings.EqualFold(a.String(), b.String())
}

// IsOnCurve reports whether the address is a valid ed25519 point, i.e. could
// have a private key. Program-derived addresses are off the curve by construction.
func IsOnCurve(address solanago.PublicKey) bool {
	_, err := new(edwards25519.Point).SetBytes(address[:])
	return err == nil
}

// ParseAddress parses a base58 address, wrapping failures as validation errors.
func ParseAddress(s string) (solanago.PublicKey, error) {
	pk, err := solanago.PublicKeyFromBase58(strings.TrimSpace(s))
	if err != nil {
		return solanago.PublicKey{}, validationErrorf("invalid address %q: %v", s, err)
	}
	return pk, nil
}
