package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const pendingMarker = "__pending__"

var errRequestInFlight = errors.New("request with this id is already being processed")

// ReplayCache remembers gateway responses by X-Request-ID so a retried
// request gets the first outcome instead of a second ledger mutation.
// A nil *ReplayCache is valid and disables replay.
type ReplayCache struct {
	redis *redis.Client
	ttl   time.Duration
	log   *logrus.Logger
}

func NewReplayCache(client *redis.Client, ttl time.Duration, log *logrus.Logger) *ReplayCache {
	if client == nil {
		return nil
	}
	return &ReplayCache{redis: client, ttl: ttl, log: log}
}

// key binds the id to the signature so a reused id with a different payload
// does not collide.
func (c *ReplayCache) key(requestID, signature string) string {
	sum := sha256.Sum256([]byte(signature))
	return "gateway:replay:" + requestID + ":" + hex.EncodeToString(sum[:8])
}

// Begin returns the stored response for a finished request, reserves the key
// for a new one, or errRequestInFlight when another attempt holds it.
// Redis failures degrade to no replay protection.
func (c *ReplayCache) Begin(ctx context.Context, requestID, signature string) ([]byte, error) {
	if c == nil || requestID == "" {
		return nil, nil
	}
	key := c.key(requestID, signature)

	cached, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil && string(cached) != pendingMarker:
		return cached, nil
	case err == nil:
		return nil, errRequestInFlight
	case err != redis.Nil:
		c.log.WithError(err).Warn("replay cache lookup failed")
		return nil, nil
	}

	ok, err := c.redis.SetNX(ctx, key, pendingMarker, c.ttl).Result()
	if err != nil {
		c.log.WithError(err).Warn("replay cache reserve failed")
		return nil, nil
	}
	if !ok {
		return nil, errRequestInFlight
	}
	return nil, nil
}

// Complete stores the final response body.
func (c *ReplayCache) Complete(ctx context.Context, requestID, signature string, body []byte) {
	if c == nil || requestID == "" {
		return
	}
	if err := c.redis.Set(ctx, c.key(requestID, signature), body, c.ttl).Err(); err != nil {
		c.log.WithError(err).Warn("replay cache store failed")
	}
}

// Abort releases a reservation so the caller can retry after a failure.
func (c *ReplayCache) Abort(ctx context.Context, requestID, signature string) {
	if c == nil || requestID == "" {
		return
	}
	if err := c.redis.Del(ctx, c.key(requestID, signature)).Err(); err != nil {
		c.log.WithError(err).Warn("replay cache release failed")
	}
}
