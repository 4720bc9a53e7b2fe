package stellar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates the ledger does not know the requested address.
	ErrNotFound = errors.New("account not found on ledger")

	// ErrAlreadyFunded indicates a funding request for an address that
	// already exists on the ledger.
	ErrAlreadyFunded = errors.New("account already funded")

	// ErrUnreachable indicates a transport-level failure before a definitive
	// answer from the ledger was received.
	ErrUnreachable = errors.New("ledger unreachable")
)

// RejectedError carries the ledger-side validation codes for a refused
// transaction (bad sequence number, underfunded source, malformed operation).
type RejectedError struct {
	TransactionCode string
	OperationCodes  []string
}

func (e *RejectedError) Error() string {
	if len(e.OperationCodes) == 0 {
		return fmt.Sprintf("transaction rejected: %s", e.TransactionCode)
	}
	return fmt.Sprintf("transaction rejected: %s (%s)", e.TransactionCode, strings.Join(e.OperationCodes, ","))
}

// AccountState is the read-only view of one on-ledger account.
type AccountState struct {
	Address       string
	Sequence      int64
	NativeBalance decimal.Decimal
	// Ledger is the last-modified ledger number, used as a freshness token
	// when reconciling concurrent balance fetches.
	Ledger uint32
	AsOf   time.Time
}

// TxResult captures the outcome of a submitted transaction.
type TxResult struct {
	Hash       string
	Ledger     uint32
	Successful bool
}

// Gateway is the stateless protocol boundary to the remote ledger network.
type Gateway interface {
	// FundAccount asks the testnet faucet to create and credit a brand-new
	// address. Funding an existing address yields ErrAlreadyFunded.
	FundAccount(ctx context.Context, address string) error

	// FetchAccount reads balances and the current sequence number.
	FetchAccount(ctx context.Context, address string) (AccountState, error)

	// Submit sends a fully signed transaction envelope (base64 XDR).
	Submit(ctx context.Context, envelopeXDR string) (TxResult, error)
}
