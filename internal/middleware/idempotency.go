package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyPrefix    = "idempotency:v2:"
	idempotencyOpTimeout = 2 * time.Second
)

// replayRecord is what Redis holds under an idempotency key. Status 0 marks a
// request that is still being handled.
type replayRecord struct {
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

func (r replayRecord) pending() bool {
	return r.Status == 0
}

type replayStore struct {
	cache  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func (s replayStore) key(c *fiber.Ctx, header string) string {
	return idempotencyPrefix + c.Path() + ":" + header
}

// reserve claims key for the current request. When another request already holds
// it, the stored record is returned with acquired set to false.
func (s replayStore) reserve(ctx context.Context, key, fingerprint string) (replayRecord, bool, error) {
	marker, err := json.Marshal(replayRecord{Fingerprint: fingerprint})
	if err != nil {
		return replayRecord{}, false, err
	}
	acquired, err := s.cache.SetNX(ctx, key, marker, s.ttl).Result()
	if err != nil || acquired {
		return replayRecord{}, acquired, err
	}

	raw, err := s.cache.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		// expired between the two calls
		return s.reserve(ctx, key, fingerprint)
	}
	if err != nil {
		return replayRecord{}, false, err
	}
	var rec replayRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return replayRecord{}, false, err
	}
	return rec, false, nil
}

func (s replayStore) save(ctx context.Context, key string, rec replayRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, key, payload, s.ttl).Err()
}

func (s replayStore) release(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), idempotencyOpTimeout)
	defer cancel()
	if err := s.cache.Del(ctx, key).Err(); err != nil {
		s.logger.Warn("idempotency release failed", slog.String("key", key), slog.Any("error", err))
	}
}

func requestFingerprint(c *fiber.Ctx) string {
	sum := sha256.New()
	sum.Write([]byte(c.Method()))
	sum.Write([]byte{0})
	sum.Write([]byte(c.Path()))
	sum.Write([]byte{0})
	sum.Write(c.Body())
	return hex.EncodeToString(sum.Sum(nil))
}

// Idempotency makes unsafe requests replayable under the Idempotency-Key header.
// The first completed response for a key is stored in Redis and returned for every
// repeat of the same request. Reusing a key for a different payload is rejected, and
// server errors release the key so the client can retry.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	store := replayStore{cache: cache, ttl: ttl, logger: logger}
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		header := c.Get(idempotencyKeyHeader)
		if header == "" {
			return fiber.NewError(fiber.StatusBadRequest, "missing Idempotency-Key header")
		}
		key := store.key(c, header)
		fingerprint := requestFingerprint(c)

		ctx, cancel := context.WithTimeout(c.UserContext(), idempotencyOpTimeout)
		defer cancel()

		prior, acquired, err := store.reserve(ctx, key, fingerprint)
		if err != nil {
			logger.Error("idempotency reservation failed", slog.String("key", header), slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency store failure")
		}
		if !acquired {
			switch {
			case prior.Fingerprint != fingerprint:
				return fiber.NewError(fiber.StatusUnprocessableEntity, "Idempotency-Key reused with a different request")
			case prior.pending():
				return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
			}
			if prior.ContentType != "" {
				c.Set(fiber.HeaderContentType, prior.ContentType)
			}
			return c.Status(prior.Status).Send(prior.Body)
		}

		if err := c.Next(); err != nil {
			store.release(key)
			return err
		}

		status := c.Response().StatusCode()
		if status >= fiber.StatusInternalServerError {
			store.release(key)
			return nil
		}

		rec := replayRecord{
			Fingerprint: fingerprint,
			Status:      status,
			ContentType: string(c.Response().Header.ContentType()),
			Body:        append([]byte(nil), c.Response().Body()...),
		}
		saveCtx, saveCancel := context.WithTimeout(context.Background(), idempotencyOpTimeout)
		defer saveCancel()
		if err := store.save(saveCtx, key, rec); err != nil {
			logger.Error("idempotent response not stored", slog.String("key", header), slog.Any("error", err))
			store.release(key)
		}
		return nil
	}
}
