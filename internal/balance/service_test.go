package balance

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/cresco-money/cresco/internal/credentials"
	"github.com/cresco-money/cresco/internal/faults"
	"github.com/cresco-money/cresco/internal/logging"
	"github.com/cresco-money/cresco/internal/stellar"
)

func setupService(t *testing.T) (*Service, credentials.Store, stellar.Gateway, *Cache, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client)
	store := credentials.NewMemoryStore()
	gateway := stellar.NewInMemory()
	svc := NewService(store, gateway, cache, logging.Discard())

	cleanup := func() {
		client.Close()
		mr.Close()
	}
	return svc, store, gateway, cache, cleanup
}

func seedUser(t *testing.T, store credentials.Store, gateway stellar.Gateway, balance string, sequence int64, ledger uint32) string {
	t.Helper()
	userID := uuid.NewString()
	address := "GCKFBEIYTKP74Q7OCL3UQFSTJCYY5EKPTNG6QRRSFY2ZVYJFEJAEWLSV"
	if err := store.SaveAccount(context.Background(), credentials.Account{
		UserID:     userID,
		PublicKey:  address,
		PrivateKey: "SECRETSEED",
	}); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	stellar.SeedAccount(gateway, address, balance, sequence, ledger)
	return userID
}

func collect(t *testing.T, ch <-chan Snapshot) []Snapshot {
	t.Helper()
	var out []Snapshot
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snapshot, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, snapshot)
		case <-deadline:
			t.Fatalf("timed out waiting for snapshots, got %d", len(out))
		}
	}
}

func TestObserveEmitsCacheBeforeLedger(t *testing.T) {
	svc, store, gateway, cache, cleanup := setupService(t)
	defer cleanup()

	ctx := context.Background()
	userID := seedUser(t, store, gateway, "20.0000000", 1, 50)
	if err := cache.Put(ctx, userID, Snapshot{Value: decimal.RequireFromString("18.50"), Ledger: 40, AsOf: time.Now().UTC()}); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	snapshots := collect(t, svc.Observe(ctx, userID))
	if len(snapshots) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snapshots))
	}
	if snapshots[0].Source != SourceCache || snapshots[0].Display() != "18.50" {
		t.Fatalf("first snapshot should be the cached value, got %+v", snapshots[0])
	}
	if snapshots[1].Source != SourceLedger || snapshots[1].Display() != "20.00" {
		t.Fatalf("second snapshot should be the ledger value, got %+v", snapshots[1])
	}

	stored, ok, err := cache.Get(ctx, userID)
	if err != nil || !ok {
		t.Fatalf("cache should hold the ledger value: ok=%v err=%v", ok, err)
	}
	if stored.Display() != "20.00" || stored.Ledger != 50 {
		t.Fatalf("unexpected cache state %+v", stored)
	}
}

func TestObserveEmitsUnknownWithoutCacheEntry(t *testing.T) {
	svc, store, gateway, _, cleanup := setupService(t)
	defer cleanup()

	userID := seedUser(t, store, gateway, "10000.0000000", 1, 10)
	snapshots := collect(t, svc.Observe(context.Background(), userID))

	if snapshots[0].Source != SourceUnknown {
		t.Fatalf("expected explicit unknown first, got %+v", snapshots[0])
	}
	if snapshots[1].Source != SourceLedger || snapshots[1].Display() != "10000.00" {
		t.Fatalf("unexpected ledger snapshot %+v", snapshots[1])
	}
}

func TestObserveFailureLeavesCacheUntouched(t *testing.T) {
	svc, store, gateway, cache, cleanup := setupService(t)
	defer cleanup()

	ctx := context.Background()
	userID := seedUser(t, store, gateway, "20.0000000", 1, 50)
	if err := cache.Put(ctx, userID, Snapshot{Value: decimal.RequireFromString("18.50"), Ledger: 40, AsOf: time.Now().UTC()}); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	stellar.FailWith(gateway, nil, stellar.ErrUnreachable, nil)

	snapshots := collect(t, svc.Observe(ctx, userID))
	last := snapshots[len(snapshots)-1]
	if last.Source != SourceError {
		t.Fatalf("expected terminal error snapshot, got %+v", last)
	}
	if faults.KindOf(last.Err) != faults.KindRecoverableRemote {
		t.Fatalf("expected recoverable kind, got %v", faults.KindOf(last.Err))
	}

	stored, ok, err := cache.Get(ctx, userID)
	if err != nil || !ok {
		t.Fatalf("cache entry should survive: ok=%v err=%v", ok, err)
	}
	if stored.Display() != "18.50" {
		t.Fatalf("cache was modified on failure: %+v", stored)
	}
}

func TestObserveMissingWalletIsDefinitive(t *testing.T) {
	svc, _, _, _, cleanup := setupService(t)
	defer cleanup()

	snapshots := collect(t, svc.Observe(context.Background(), uuid.NewString()))
	last := snapshots[len(snapshots)-1]
	if last.Source != SourceError {
		t.Fatalf("expected error snapshot, got %+v", last)
	}
	if !errors.Is(last.Err, credentials.ErrAccountNotFound) {
		t.Fatalf("expected account-not-found, got %v", last.Err)
	}
	if faults.KindOf(last.Err) != faults.KindDefinitiveRejection {
		t.Fatalf("expected definitive kind, got %v", faults.KindOf(last.Err))
	}
}

func TestOptimisticDebitThenLedgerWins(t *testing.T) {
	svc, store, gateway, cache, cleanup := setupService(t)
	defer cleanup()

	ctx := context.Background()
	userID := seedUser(t, store, gateway, "14.9800000", 7, 60)
	if err := cache.Put(ctx, userID, Snapshot{Value: decimal.RequireFromString("20"), Ledger: 55, AsOf: time.Now().UTC()}); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	if err := svc.ApplyOptimisticDebit(ctx, userID, decimal.RequireFromString("5")); err != nil {
		t.Fatalf("optimistic debit: %v", err)
	}
	stored, _, err := cache.Get(ctx, userID)
	if err != nil {
		t.Fatalf("read cache: %v", err)
	}
	if stored.Display() != "15.00" {
		t.Fatalf("expected 15.00 immediately after debit, got %s", stored.Display())
	}

	// The next ledger fetch replaces the optimistic value wholesale.
	snapshots := collect(t, svc.Observe(ctx, userID))
	if snapshots[len(snapshots)-1].Display() != "14.98" {
		t.Fatalf("expected ledger value to win, got %+v", snapshots[len(snapshots)-1])
	}
	stored, _, err = cache.Get(ctx, userID)
	if err != nil {
		t.Fatalf("read cache: %v", err)
	}
	if stored.Display() != "14.98" {
		t.Fatalf("cache should hold 14.98, got %s", stored.Display())
	}
}

func TestOptimisticDebitRejectsNonPositiveAmount(t *testing.T) {
	svc, _, _, _, cleanup := setupService(t)
	defer cleanup()

	err := svc.ApplyOptimisticDebit(context.Background(), uuid.NewString(), decimal.Zero)
	if faults.KindOf(err) != faults.KindUserInput {
		t.Fatalf("expected user input fault, got %v", err)
	}
}

func TestConcurrentReconciliationsFreshestLedgerWins(t *testing.T) {
	_, _, _, cache, cleanup := setupService(t)
	defer cleanup()

	ctx := context.Background()
	userID := uuid.NewString()

	fresh := Snapshot{Value: decimal.RequireFromString("9.50"), Source: SourceLedger, Ledger: 200, AsOf: time.Now().UTC()}
	stale := Snapshot{Value: decimal.RequireFromString("12.00"), Source: SourceLedger, Ledger: 100, AsOf: time.Now().UTC()}

	// The fresh fetch resolves first, then the stale one lands last in real
	// time. The freshness token must decide, not arrival order.
	if written, err := cache.PutIfFresher(ctx, userID, fresh); err != nil || !written {
		t.Fatalf("fresh write should land: written=%v err=%v", written, err)
	}
	if written, err := cache.PutIfFresher(ctx, userID, stale); err != nil {
		t.Fatalf("stale write errored: %v", err)
	} else if written {
		t.Fatalf("stale write must be discarded")
	}

	stored, ok, err := cache.Get(ctx, userID)
	if err != nil || !ok {
		t.Fatalf("cache read: ok=%v err=%v", ok, err)
	}
	if stored.Ledger != 200 || stored.Display() != "9.50" {
		t.Fatalf("cache should hold the freshest snapshot, got %+v", stored)
	}
}

func TestReconcilePureFunction(t *testing.T) {
	older := Snapshot{Value: decimal.RequireFromString("15"), Ledger: 10}
	newer := Snapshot{Value: decimal.RequireFromString("14.98"), Ledger: 11}

	if got := Reconcile(older, newer); got.Ledger != 11 {
		t.Fatalf("newer fetch must win, got %+v", got)
	}
	if got := Reconcile(newer, older); got.Ledger != 11 {
		t.Fatalf("older fetch must lose, got %+v", got)
	}
	// Equal tokens: the ledger fetch supersedes optimistic local math.
	optimistic := Snapshot{Value: decimal.RequireFromString("15"), Ledger: 11}
	if got := Reconcile(optimistic, newer); !got.Value.Equal(newer.Value) {
		t.Fatalf("ledger must supersede optimistic value on equal token, got %+v", got)
	}
}

// stalledGateway parks FetchAccount until the caller gives up.
type stalledGateway struct {
	stellar.Gateway
}

func (g stalledGateway) FetchAccount(ctx context.Context, _ string) (stellar.AccountState, error) {
	<-ctx.Done()
	return stellar.AccountState{}, ctx.Err()
}

func TestObserveCallerCancellationClosesChannel(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cache := NewCache(client)
	store := credentials.NewMemoryStore()
	svc := NewService(store, stalledGateway{}, cache, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	userID := uuid.NewString()
	if err := store.SaveAccount(ctx, credentials.Account{
		UserID:     userID,
		PublicKey:  "GCKFBEIYTKP74Q7OCL3UQFSTJCYY5EKPTNG6QRRSFY2ZVYJFEJAEWLSV",
		PrivateKey: "SECRETSEED",
	}); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	if err := cache.Put(ctx, userID, Snapshot{Value: decimal.RequireFromString("42"), Ledger: 7, AsOf: time.Now().UTC()}); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	ch := svc.Observe(ctx, userID)
	first, ok := <-ch
	if !ok || first.Source != SourceCache || first.Display() != "42.00" {
		t.Fatalf("expected cached snapshot first, got %+v ok=%v", first, ok)
	}

	cancel()

	snapshots := collect(t, ch)
	if len(snapshots) != 1 || snapshots[0].Source != SourceError {
		t.Fatalf("expected one terminal error snapshot after cancellation, got %+v", snapshots)
	}

	stored, ok, err := cache.Get(context.Background(), userID)
	if err != nil || !ok {
		t.Fatalf("cache entry should survive cancellation: ok=%v err=%v", ok, err)
	}
	if stored.Display() != "42.00" || stored.Ledger != 7 {
		t.Fatalf("cache was modified by an abandoned observation: %+v", stored)
	}
}

func TestObserveLateCacheWriteSurvivesCancellation(t *testing.T) {
	svc, store, gateway, cache, cleanup := setupService(t)
	defer cleanup()

	userID := seedUser(t, store, gateway, "50.0000000", 3, 9)

	// The caller is gone before the fetch resolves; the write-back must
	// still land so the next observation starts from fresh data.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snapshots := collect(t, svc.Observe(ctx, userID))
	last := snapshots[len(snapshots)-1]
	if last.Source != SourceLedger || last.Display() != "50.00" {
		t.Fatalf("expected ledger snapshot, got %+v", last)
	}

	stored, ok, err := cache.Get(context.Background(), userID)
	if err != nil || !ok {
		t.Fatalf("cache read: ok=%v err=%v", ok, err)
	}
	if stored.Display() != "50.00" || stored.Ledger != 9 {
		t.Fatalf("late cache write should have landed, got %+v", stored)
	}
}
