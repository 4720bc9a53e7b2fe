package credentials

import "time"

const (
	// LinkStatusPending marks a mobile-money link awaiting aggregator confirmation.
	LinkStatusPending = "pending"
	// LinkStatusActive marks a confirmed mobile-money link.
	LinkStatusActive = "active"
	// LinkStatusFailed marks a link attempt the aggregator rejected.
	LinkStatusFailed = "failed"
)

// Account holds the keypair persisted for one user. PrivateKey never travels
// beyond this store and the transaction signing step.
type Account struct {
	UserID     string
	PublicKey  string
	PrivateKey string
	CreatedAt  time.Time
}

// MobileLink records the association between a user and an external
// mobile-money number.
type MobileLink struct {
	UserID        string
	MobileNumber  string
	LinkReference string
	Status        string
	CreatedAt     time.Time
}
