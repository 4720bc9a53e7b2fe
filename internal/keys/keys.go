package keys

import (
	"fmt"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/strkey"
)

// Keypair carries the addressing and signing material for one ledger account.
// Seed is the private half and must never leave the credential store or the
// signing step.
type Keypair struct {
	Address string
	Seed    string
}

// Generate produces a fresh random ed25519 keypair. It fails only when the
// system entropy source does, which is not retryable.
func Generate() (Keypair, error) {
	pair, err := keypair.Random()
	if err != nil {
		return Keypair{}, fmt.Errorf("generate keypair: %w", err)
	}
	return Keypair{Address: pair.Address(), Seed: pair.Seed()}, nil
}

// ParseSigner reconstructs a signing keypair from a stored seed.
func ParseSigner(seed string) (*keypair.Full, error) {
	full, err := keypair.ParseFull(seed)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	return full, nil
}

// IsValidAddress reports whether addr is a well-formed account address.
func IsValidAddress(addr string) bool {
	return strkey.IsValidEd25519PublicKey(addr)
}
