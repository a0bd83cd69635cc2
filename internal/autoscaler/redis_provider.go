package autoscaler

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisProvider is a MetricsProvider reading the latest pushed sample for
// each resource out of a Redis hash ("metrics:<resourceID>" -> field ->
// value), the fan-in point config.Config's RedisURL comment describes.
// Whatever pushes samples in (a node agent, a sidecar) HSETs into that
// key; the engine reads it on each tick, but only for resources it already
// knows through Engine.UpdateMetrics. A key for a resource that was never
// registered that way is not read.
type RedisProvider struct {
	rdb *redis.Client
}

// NewRedisProvider creates a RedisProvider over rdb.
func NewRedisProvider(rdb *redis.Client) *RedisProvider {
	return &RedisProvider{rdb: rdb}
}

// GetMetrics returns the current metric values for resourceID.
func (p *RedisProvider) GetMetrics(ctx context.Context, resourceID, resourceType string) (map[string]float64, error) {
	raw, err := p.rdb.HGetAll(ctx, "metrics:"+resourceID).Result()
	if err != nil {
		return nil, fmt.Errorf("reading metrics for %s: %w", resourceID, err)
	}

	values := make(map[string]float64, len(raw))
	for field, s := range raw {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			continue
		}
		values[field] = v
	}
	return values, nil
}
