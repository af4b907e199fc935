// Package cache provides a Redis read-through cache for participant facts.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aimd54/giveaway-engine/internal/models"
	"github.com/aimd54/giveaway-engine/pkg/logger"
)

// FactSource loads participant facts from the system of record.
type FactSource interface {
	GetFacts(ctx context.Context, participantID, guildID string) (*models.ParticipantFacts, error)
}

// FactCache serves participant facts from Redis, falling back to the source
// on a miss. Redis failures degrade to direct source reads.
type FactCache struct {
	client *redis.Client
	source FactSource
	ttl    time.Duration
	prefix string
	log    *logger.Logger
}

// NewFactCache creates a new fact cache.
func NewFactCache(client *redis.Client, source FactSource, ttl time.Duration, log *logger.Logger) *FactCache {
	return &FactCache{
		client: client,
		source: source,
		ttl:    ttl,
		prefix: "giveaway:facts",
		log:    log,
	}
}

// GetFacts returns the cached snapshot or loads and caches it.
func (c *FactCache) GetFacts(ctx context.Context, participantID, guildID string) (*models.ParticipantFacts, error) {
	key := c.key(guildID, participantID)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var facts models.ParticipantFacts
		if jsonErr := json.Unmarshal(raw, &facts); jsonErr == nil {
			return &facts, nil
		}
		c.log.Warn().Str("key", key).Msg("Discarding malformed cached facts")
	case errors.Is(err, redis.Nil):
	default:
		c.log.Warn().Err(err).Str("key", key).Msg("Fact cache read failed, using source")
	}

	facts, err := c.source.GetFacts(ctx, participantID, guildID)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(facts)
	if err != nil {
		return nil, fmt.Errorf("failed to encode facts: %w", err)
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Fact cache write failed")
	}

	return facts, nil
}

func (c *FactCache) key(guildID, participantID string) string {
	return fmt.Sprintf("%s:%s:%s", c.prefix, guildID, participantID)
}
