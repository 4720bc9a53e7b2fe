package credentials

import (
	"context"
	"sync"
	"time"
)

type memoryStore struct {
	mu       sync.RWMutex
	accounts map[string]Account
	links    map[string]MobileLink
}

// NewMemoryStore constructs an in-memory store for tests and dev mode.
func NewMemoryStore() Store {
	return &memoryStore{
		accounts: make(map[string]Account),
		links:    make(map[string]MobileLink),
	}
}

func (s *memoryStore) SaveAccount(_ context.Context, account Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[account.UserID]; exists {
		return ErrDuplicateAccount
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	s.accounts[account.UserID] = account
	return nil
}

func (s *memoryStore) GetAccount(_ context.Context, userID string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[userID]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (s *memoryStore) SaveMobileLink(_ context.Context, link MobileLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}
	s.links[link.UserID] = link
	return nil
}

func (s *memoryStore) GetMobileLink(_ context.Context, userID string) (MobileLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	link, ok := s.links[userID]
	if !ok {
		return MobileLink{}, ErrLinkNotFound
	}
	return link, nil
}
