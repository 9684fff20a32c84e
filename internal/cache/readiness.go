package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JBD-GER/maklernull-sub000/internal/models"
)

const (
	readinessKeyPrefix = "listing:readiness:"
	readinessTTL       = 24 * time.Hour
)

// ReadinessCache stores the latest readiness report per listing as JSON.
type ReadinessCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewReadinessCache(rdb *redis.Client) *ReadinessCache {
	return &ReadinessCache{rdb: rdb, ttl: readinessTTL}
}

// Get returns nil without error when nothing is cached for the listing.
func (c *ReadinessCache) Get(ctx context.Context, listingID string) (*models.Readiness, error) {
	data, err := c.rdb.Get(ctx, readinessKeyPrefix+listingID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read readiness of listing %s: %w", listingID, err)
	}
	var report models.Readiness
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("corrupt readiness entry for listing %s: %w", listingID, err)
	}
	return &report, nil
}

func (c *ReadinessCache) Set(ctx context.Context, report *models.Readiness) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode readiness of listing %s: %w", report.ListingID, err)
	}
	if err := c.rdb.Set(ctx, readinessKeyPrefix+report.ListingID, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store readiness of listing %s: %w", report.ListingID, err)
	}
	return nil
}
