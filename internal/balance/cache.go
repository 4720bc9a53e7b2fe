package balance

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const cachePrefix = "balance:v1:"

// putIfFresher compares the stored freshness token before replacing the
// value, so two overlapping reconciliations can land in any real-time order
// without the cache ending up stale.
var putIfFresherScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current then
  local ok, decoded = pcall(cjson.decode, current)
  if ok and decoded.ledger and tonumber(decoded.ledger) > tonumber(ARGV[2]) then
    return 0
  end
end
redis.call('SET', KEYS[1], ARGV[1])
return 1
`)

// swapIfUnchanged replaces the stored payload only if it still equals the one
// the caller read, a plain compare-and-swap for read-modify-write updates.
var swapIfUnchangedScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if not current or current ~= ARGV[1] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[2])
return 1
`)

type cachedValue struct {
	Value  string    `json:"value"`
	Ledger uint32    `json:"ledger"`
	AsOf   time.Time `json:"as_of"`
}

// Cache is the device-local last-displayed-balance store, one key per user.
// Every write replaces the whole value; nothing is merged.
type Cache struct {
	client *redis.Client
}

// NewCache wraps a Redis client as the balance cache.
func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Get returns the cached snapshot for a user, reporting whether one exists.
func (c *Cache) Get(ctx context.Context, userID string) (Snapshot, bool, error) {
	raw, err := c.client.Get(ctx, cachePrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}

	var stored cachedValue
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return Snapshot{}, false, err
	}
	value, err := decimal.NewFromString(stored.Value)
	if err != nil {
		return Snapshot{}, false, err
	}
	return Snapshot{Value: value, Source: SourceCache, Ledger: stored.Ledger, AsOf: stored.AsOf}, true, nil
}

// Put unconditionally replaces the cached snapshot.
func (c *Cache) Put(ctx context.Context, userID string, snapshot Snapshot) error {
	payload, err := encode(snapshot)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cachePrefix+userID, payload, 0).Err()
}

// PutIfFresher replaces the cached snapshot unless the stored entry carries a
// strictly newer freshness token. Returns whether the write landed.
func (c *Cache) PutIfFresher(ctx context.Context, userID string, snapshot Snapshot) (bool, error) {
	payload, err := encode(snapshot)
	if err != nil {
		return false, err
	}
	written, err := putIfFresherScript.Run(ctx, c.client, []string{cachePrefix + userID}, payload, snapshot.Ledger).Int()
	if err != nil {
		return false, err
	}
	return written == 1, nil
}

// debitRetries bounds the compare-and-swap loop in Debit.
const debitRetries = 3

// Debit decrements the cached balance, keeping the stored freshness token so
// the next ledger fetch overwrites the optimistic value. The decimal math
// happens in Go; the swap only lands if the stored payload is unchanged, so
// a concurrent fresher ledger write is never clobbered by the older value.
func (c *Cache) Debit(ctx context.Context, userID string, amount decimal.Decimal) (Snapshot, bool, error) {
	key := cachePrefix + userID
	for attempt := 0; attempt < debitRetries; attempt++ {
		raw, err := c.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return Snapshot{}, false, nil
		}
		if err != nil {
			return Snapshot{}, false, err
		}

		var stored cachedValue
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			return Snapshot{}, false, err
		}
		value, err := decimal.NewFromString(stored.Value)
		if err != nil {
			return Snapshot{}, false, err
		}

		next := Snapshot{
			Value:  value.Sub(amount),
			Source: SourceCache,
			Ledger: stored.Ledger,
			AsOf:   time.Now().UTC(),
		}
		payload, err := encode(next)
		if err != nil {
			return Snapshot{}, false, err
		}

		swapped, err := swapIfUnchangedScript.Run(ctx, c.client, []string{key}, raw, payload).Int()
		if err != nil {
			return Snapshot{}, false, err
		}
		if swapped == 1 {
			return next, true, nil
		}
		// Lost the race; whatever landed is at least as fresh. Re-read.
	}
	return Snapshot{}, false, nil
}

func encode(snapshot Snapshot) ([]byte, error) {
	return json.Marshal(cachedValue{
		Value:  snapshot.Value.String(),
		Ledger: snapshot.Ledger,
		AsOf:   snapshot.AsOf,
	})
}
