package stellar

import "github.com/shopspring/decimal"

// SeedAccount is a test helper that installs an account with the given state
// when using the in-memory gateway.
func SeedAccount(g Gateway, address, balance string, sequence int64, ledger uint32) {
	if mem, ok := g.(*inMemoryGateway); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.accounts[address] = &inMemoryAccount{
			sequence: sequence,
			balance:  decimal.RequireFromString(balance),
			ledger:   ledger,
		}
	}
}

// FailWith configures the in-memory gateway to fail the selected operations.
// A nil error clears the corresponding failure.
func FailWith(g Gateway, fundErr, fetchErr, submitErr error) {
	if mem, ok := g.(*inMemoryGateway); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.fundErr = fundErr
		mem.fetchErr = fetchErr
		mem.submitErr = submitErr
	}
}

// Submitted returns the transaction envelopes accepted by the in-memory gateway.
func Submitted(g Gateway) []string {
	if mem, ok := g.(*inMemoryGateway); ok {
		mem.mu.RLock()
		defer mem.mu.RUnlock()
		out := make([]string, len(mem.submitted))
		copy(out, mem.submitted)
		return out
	}
	return nil
}
