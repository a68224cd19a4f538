package api

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/openbadges/backend/internal/models"
)

const (
	credentialKeyPrefix = "obcache:credential:"
	// CredentialTTL keeps cached credential documents short-lived so
	// missed invalidations self-heal quickly.
	CredentialTTL = 5 * time.Minute
)

// Cache stores assembled credential documents in Redis. Failures are
// logged and treated as cache misses; the API never depends on Redis
// being up.
type Cache struct {
	redis  *redis.Client
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewCache creates a credential cache.
func NewCache(redisClient *redis.Client, pool *pgxpool.Pool, logger *zap.Logger) *Cache {
	return &Cache{redis: redisClient, pool: pool, logger: logger}
}

func credentialKey(assertionID uuid.UUID) string {
	return credentialKeyPrefix + assertionID.String()
}

// GetCredential returns a cached credential document, or ok=false.
func (c *Cache) GetCredential(ctx context.Context, assertionID uuid.UUID) ([]byte, bool) {
	body, err := c.redis.Get(ctx, credentialKey(assertionID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("credential cache read failed", zap.Error(err))
		}
		return nil, false
	}
	return body, true
}

// SetCredential stores a credential document with a short TTL.
func (c *Cache) SetCredential(ctx context.Context, assertionID uuid.UUID, body []byte) {
	if err := c.redis.Set(ctx, credentialKey(assertionID), body, CredentialTTL).Err(); err != nil {
		c.logger.Warn("credential cache write failed", zap.Error(err))
	}
}

// InvalidateCredential drops one cached credential.
func (c *Cache) InvalidateCredential(ctx context.Context, assertionID uuid.UUID) {
	if err := c.redis.Del(ctx, credentialKey(assertionID)).Err(); err != nil {
		c.logger.Warn("credential cache invalidation failed", zap.Error(err))
	}
}

// InvalidateTarget drops every cached credential an endorsement write
// can affect: the assertion itself, all assertions of an endorsed badge
// class, or all assertions under an endorsed issuer.
func (c *Cache) InvalidateTarget(ctx context.Context, target models.EndorsementTarget) {
	var ids []uuid.UUID
	switch target.Kind {
	case models.EndorsementAssertion:
		ids = []uuid.UUID{target.ID}
	case models.EndorsementBadgeClass:
		ids = c.assertionIDs(ctx, `SELECT id FROM assertions WHERE badge_class_id = $1`, target.ID)
	case models.EndorsementIssuer:
		ids = c.assertionIDs(ctx, `SELECT a.id FROM assertions a
			INNER JOIN badge_classes b ON b.id = a.badge_class_id
			WHERE b.issuer_id = $1`, target.ID)
	default:
		return
	}
	if len(ids) == 0 {
		return
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = credentialKey(id)
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("credential cache invalidation failed", zap.Error(err),
			zap.String("kind", string(target.Kind)))
	}
}

func (c *Cache) assertionIDs(ctx context.Context, q string, arg any) []uuid.UUID {
	rows, err := c.pool.Query(ctx, q, arg)
	if err != nil {
		c.logger.Warn("credential cache lookup failed", zap.Error(err))
		return nil
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return ids
		}
		ids = append(ids, id)
	}
	return ids
}
