package credentials

import (
	"context"
	"errors"
)

var (
	// ErrDuplicateAccount signals a second SaveAccount for a user that
	// already holds keys. Overwriting a private key silently would make the
	// original account unrecoverable, so this fails loudly.
	ErrDuplicateAccount = errors.New("account already exists for user")

	// ErrAccountNotFound indicates the user has no persisted keypair.
	ErrAccountNotFound = errors.New("account not found")

	// ErrLinkNotFound indicates the user has no mobile-money link on record.
	ErrLinkNotFound = errors.New("mobile money link not found")
)

// Store persists keypairs and mobile-money link records, keyed per user.
type Store interface {
	// SaveAccount persists a keypair exactly once per user.
	SaveAccount(ctx context.Context, account Account) error
	GetAccount(ctx context.Context, userID string) (Account, error)
	SaveMobileLink(ctx context.Context, link MobileLink) error
	GetMobileLink(ctx context.Context, userID string) (MobileLink, error)
}
