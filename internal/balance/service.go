package balance

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cresco-money/cresco/internal/credentials"
	"github.com/cresco-money/cresco/internal/faults"
	"github.com/cresco-money/cresco/internal/stellar"
)

// Service reconciles the cached display balance with the authoritative
// ledger balance.
type Service struct {
	store   credentials.Store
	gateway stellar.Gateway
	cache   *Cache
	logger  *slog.Logger
}

// NewService builds a balance reconciler.
func NewService(store credentials.Store, gateway stellar.Gateway, cache *Cache, logger *slog.Logger) *Service {
	return &Service{store: store, gateway: gateway, cache: cache, logger: logger}
}

// Observe emits the cached snapshot first (or an explicit unknown state) and
// then the authoritative ledger snapshot, writing the latter back to the
// cache. The channel is buffered and closed after the terminal emission, so
// an abandoning caller leaves nothing blocked; a cache write landing after
// cancellation is harmless.
func (s *Service) Observe(ctx context.Context, userID string) <-chan Snapshot {
	out := make(chan Snapshot, 2)

	cached, ok, err := s.cache.Get(ctx, userID)
	switch {
	case err != nil:
		// A broken cache must not delay the flow; treat as absent.
		s.logger.Warn("balance cache read failed", "user_id", userID, "error", err)
		out <- Snapshot{Source: SourceUnknown, AsOf: time.Now().UTC()}
	case ok:
		out <- cached
	default:
		out <- Snapshot{Source: SourceUnknown, AsOf: time.Now().UTC()}
	}

	go func() {
		defer close(out)
		snapshot, err := s.fetch(ctx, userID)
		if err != nil {
			// The last good cached value stays untouched so the UI can keep
			// showing stale-but-real data.
			out <- Snapshot{Source: SourceError, AsOf: time.Now().UTC(), Err: err}
			return
		}

		if _, err := s.cache.PutIfFresher(context.WithoutCancel(ctx), userID, snapshot); err != nil {
			s.logger.Warn("balance cache write failed", "user_id", userID, "error", err)
		}
		out <- snapshot
	}()

	return out
}

// ApplyOptimisticDebit decrements the cached balance immediately after a
// locally-initiated spend, before ledger confirmation. The next successful
// ledger fetch overwrites this value; nothing is merged.
func (s *Service) ApplyOptimisticDebit(ctx context.Context, userID string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return faults.New(faults.KindUserInput, "optimistic_debit", "amount must be positive")
	}
	_, ok, err := s.cache.Debit(ctx, userID, amount)
	if err != nil {
		return err
	}
	if !ok {
		// No cached value to adjust; the next reconciliation seeds the cache.
		s.logger.Debug("optimistic debit skipped, cache empty", "user_id", userID)
	}
	return nil
}

func (s *Service) fetch(ctx context.Context, userID string) (Snapshot, error) {
	account, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, credentials.ErrAccountNotFound) {
			return Snapshot{}, faults.Wrap(faults.KindDefinitiveRejection, "resolve_wallet", err)
		}
		return Snapshot{}, faults.Wrap(faults.KindRecoverableRemote, "resolve_wallet", err)
	}

	state, err := s.gateway.FetchAccount(ctx, account.PublicKey)
	if err != nil {
		switch {
		case errors.Is(err, stellar.ErrNotFound):
			return Snapshot{}, faults.Wrap(faults.KindDefinitiveRejection, "fetch_account", err)
		default:
			return Snapshot{}, faults.Wrap(faults.KindRecoverableRemote, "fetch_account", err)
		}
	}

	return Snapshot{
		Value:  state.NativeBalance.Round(2),
		Source: SourceLedger,
		Ledger: state.Ledger,
		AsOf:   state.AsOf,
	}, nil
}
