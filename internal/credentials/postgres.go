package credentials

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists credentials in PostgreSQL. Expected tables:
//
//	stellar_wallets    (user_id PK, public_key, private_key, created_at)
//	mobile_money_links (user_id, mobile_number, link_reference, status,
//	                    created_at, PRIMARY KEY (user_id, mobile_number))
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a store backed by PostgreSQL.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// SaveAccount inserts a keypair row. A prior row for the same user makes the
// insert a no-op, which is reported as ErrDuplicateAccount so the caller
// never believes it replaced existing keys.
func (s *PostgresStore) SaveAccount(ctx context.Context, account Account) error {
	createdAt := account.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	cmd, err := s.db.Exec(ctx, `INSERT INTO stellar_wallets (user_id, public_key, private_key, created_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_id) DO NOTHING`,
		account.UserID, account.PublicKey, account.PrivateKey, createdAt.UTC())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrDuplicateAccount
	}
	return nil
}

// GetAccount fetches the persisted keypair for a user.
func (s *PostgresStore) GetAccount(ctx context.Context, userID string) (Account, error) {
	row := s.db.QueryRow(ctx, `SELECT user_id, public_key, private_key, created_at
        FROM stellar_wallets WHERE user_id = $1`, userID)
	var (
		account   Account
		createdAt time.Time
	)
	if err := row.Scan(&account.UserID, &account.PublicKey, &account.PrivateKey, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	account.CreatedAt = createdAt.UTC()
	return account, nil
}

// SaveMobileLink upserts the link record for a user and number.
func (s *PostgresStore) SaveMobileLink(ctx context.Context, link MobileLink) error {
	createdAt := link.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, `INSERT INTO mobile_money_links (user_id, mobile_number, link_reference, status, created_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (user_id, mobile_number) DO UPDATE
        SET link_reference = EXCLUDED.link_reference, status = EXCLUDED.status`,
		link.UserID, link.MobileNumber, link.LinkReference, link.Status, createdAt.UTC())
	return err
}

// GetMobileLink returns the most recent link record for a user.
func (s *PostgresStore) GetMobileLink(ctx context.Context, userID string) (MobileLink, error) {
	row := s.db.QueryRow(ctx, `SELECT user_id, mobile_number, link_reference, status, created_at
        FROM mobile_money_links WHERE user_id = $1
        ORDER BY created_at DESC LIMIT 1`, userID)
	var (
		link      MobileLink
		createdAt time.Time
	)
	if err := row.Scan(&link.UserID, &link.MobileNumber, &link.LinkReference, &link.Status, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MobileLink{}, ErrLinkNotFound
		}
		return MobileLink{}, err
	}
	link.CreatedAt = createdAt.UTC()
	return link, nil
}
