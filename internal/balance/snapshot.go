package balance

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// SourceCache marks a snapshot served from the local cache.
	SourceCache = "cache"
	// SourceLedger marks a snapshot taken from the authoritative ledger.
	SourceLedger = "ledger"
	// SourceUnknown marks the explicit empty state when no cache entry exists.
	SourceUnknown = "unknown"
	// SourceError marks a terminal snapshot emitted after a failed fetch.
	SourceError = "error"
)

// Snapshot is one observed balance value. Ledger is the freshness token
// (the account's last-modified ledger number); newer tokens always win over
// older ones regardless of arrival order.
type Snapshot struct {
	Value  decimal.Decimal
	Source string
	Ledger uint32
	AsOf   time.Time
	Err    error
}

// Display renders the balance the way the UI shows it.
func (s Snapshot) Display() string {
	return s.Value.StringFixed(2)
}

// Reconcile decides which snapshot the cache should hold after a ledger
// fetch resolves. Ledger truth supersedes anything with an equal or older
// freshness token, including optimistic local math.
func Reconcile(current, fetched Snapshot) Snapshot {
	if fetched.Ledger >= current.Ledger {
		return fetched
	}
	return current
}
