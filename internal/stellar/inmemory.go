package stellar

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// faucetStartingBalance mirrors the testnet faucet's default grant.
var faucetStartingBalance = decimal.RequireFromString("10000.0000000")

type inMemoryAccount struct {
	sequence int64
	balance  decimal.Decimal
	ledger   uint32
}

type inMemoryGateway struct {
	mu       sync.RWMutex
	accounts map[string]*inMemoryAccount

	fundErr   error
	fetchErr  error
	submitErr error

	submitted    []string
	submitResult TxResult
}

// NewInMemory creates a concurrency-safe in-memory gateway useful for unit tests.
func NewInMemory() Gateway {
	return &inMemoryGateway{accounts: make(map[string]*inMemoryAccount)}
}

func (g *inMemoryGateway) FundAccount(_ context.Context, address string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fundErr != nil {
		return g.fundErr
	}
	if _, exists := g.accounts[address]; exists {
		return ErrAlreadyFunded
	}
	g.accounts[address] = &inMemoryAccount{balance: faucetStartingBalance, ledger: 1}
	return nil
}

func (g *inMemoryGateway) FetchAccount(_ context.Context, address string) (AccountState, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.fetchErr != nil {
		return AccountState{}, g.fetchErr
	}
	account, exists := g.accounts[address]
	if !exists {
		return AccountState{}, ErrNotFound
	}
	return AccountState{
		Address:       address,
		Sequence:      account.sequence,
		NativeBalance: account.balance,
		Ledger:        account.ledger,
		AsOf:          time.Now().UTC(),
	}, nil
}

func (g *inMemoryGateway) Submit(_ context.Context, envelopeXDR string) (TxResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.submitErr != nil {
		return TxResult{}, g.submitErr
	}
	g.submitted = append(g.submitted, envelopeXDR)
	if g.submitResult.Hash != "" {
		return g.submitResult, nil
	}
	return TxResult{Hash: "in-memory-tx", Ledger: 1, Successful: true}, nil
}
