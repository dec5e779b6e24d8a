package cmd

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/casthq/caster/pkg/progress"
)

// NewProgressCache creates the redis-backed snapshot cache, or nil when
// no redis URL is configured. Callers treat a nil cache as "status
// reads go straight to the database".
func NewProgressCache(redisURL string) *progress.Cache {
	if redisURL == "" {
		return nil
	}

	options, err := redis.ParseURL(redisURL)
	if err != nil {
		panic(fmt.Errorf("failed to parse redis URL: %w", err))
	}

	return progress.NewCache(redis.NewClient(options))
}
