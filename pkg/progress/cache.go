package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/casthq/caster/pkg/models"
)

// ErrSnapshotNotFound is returned when no cached snapshot exists for an
// execution.
var ErrSnapshotNotFound = errors.New("progress snapshot not found")

// snapshotTTL bounds how long a stale snapshot can outlive its
// execution; finished runs are served from the database anyway.
const snapshotTTL = 24 * time.Hour

// Cache stores the latest progress snapshot per execution in redis so
// status polling does not hit the database on every request.
type Cache struct {
	client redis.UniversalClient
}

func NewCache(client redis.UniversalClient) *Cache {
	return &Cache{client: client}
}

func snapshotKey(executionID string) string {
	return "caster:execution:" + executionID + ":progress"
}

// Store writes the snapshot, replacing any previous one.
func (c *Cache) Store(ctx context.Context, executionID string, snapshot models.ProgressSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	err = c.client.Set(ctx, snapshotKey(executionID), payload, snapshotTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to cache snapshot: %w", err)
	}

	return nil
}

// Load returns the latest cached snapshot.
func (c *Cache) Load(ctx context.Context, executionID string) (models.ProgressSnapshot, error) {
	var snapshot models.ProgressSnapshot

	payload, err := c.client.Get(ctx, snapshotKey(executionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return snapshot, ErrSnapshotNotFound
	}

	if err != nil {
		return snapshot, fmt.Errorf("failed to load snapshot: %w", err)
	}

	err = json.Unmarshal(payload, &snapshot)
	if err != nil {
		return snapshot, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return snapshot, nil
}
