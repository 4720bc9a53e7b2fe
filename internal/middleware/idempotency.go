package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyPrefix    = "idem:v1:"
	pendingMarker        = "pending"

	idempotencyStoreTimeout = 2 * time.Second
)

type replayedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
}

// Idempotency makes unsafe financial requests safely repeatable: the first
// request with a given Idempotency-Key runs and its response is stored, every
// repeat replays the stored response. Keys are scoped to the session user, so
// this must be mounted after Session.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		key := strings.TrimSpace(c.Get(idempotencyKeyHeader))
		if key == "" {
			return fiber.NewError(fiber.StatusBadRequest, "missing Idempotency-Key header")
		}
		userID, _ := c.Locals("user_id").(string)
		cacheKey := idempotencyPrefix + userID + ":" + key

		ctx, cancel := context.WithTimeout(context.Background(), idempotencyStoreTimeout)
		defer cancel()

		reserved, err := cache.SetNX(ctx, cacheKey, pendingMarker, ttl).Result()
		if err != nil {
			logger.Error("idempotency reservation failed", "key", key, "error", err)
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency store failure")
		}

		if !reserved {
			stored, err := cache.Get(ctx, cacheKey).Result()
			if err != nil {
				logger.Error("idempotency lookup failed", "key", key, "error", err)
				return fiber.NewError(fiber.StatusInternalServerError, "idempotency store failure")
			}
			if stored == pendingMarker {
				return fiber.NewError(fiber.StatusConflict, "request with this key is still in flight")
			}
			var replay replayedResponse
			if err := json.Unmarshal([]byte(stored), &replay); err != nil {
				logger.Warn("stored idempotent response is unreadable", "key", key, "error", err)
				return fiber.NewError(fiber.StatusConflict, "duplicate request")
			}
			if replay.ContentType != "" {
				c.Set(fiber.HeaderContentType, replay.ContentType)
			}
			return c.Status(replay.Status).Send(replay.Body)
		}

		if err := c.Next(); err != nil {
			// A failed request must not poison the key; let the client retry.
			cleanupCtx, cancel := context.WithTimeout(context.Background(), idempotencyStoreTimeout)
			defer cancel()
			cache.Del(cleanupCtx, cacheKey)
			return err
		}

		replay := replayedResponse{
			Status:      c.Response().StatusCode(),
			ContentType: string(c.Response().Header.ContentType()),
			Body:        append([]byte(nil), c.Response().Body()...),
		}
		payload, err := json.Marshal(replay)
		if err != nil {
			logger.Error("encode idempotent response", "key", key, "error", err)
			cache.Del(ctx, cacheKey)
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency persistence failure")
		}

		persistCtx, persistCancel := context.WithTimeout(context.Background(), idempotencyStoreTimeout)
		defer persistCancel()
		if err := cache.Set(persistCtx, cacheKey, payload, ttl).Err(); err != nil {
			logger.Error("persist idempotent response", "key", key, "error", err)
			cache.Del(persistCtx, cacheKey)
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency persistence failure")
		}

		return nil
	}
}
