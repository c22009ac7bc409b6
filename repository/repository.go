package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/archivist/config"
	"github.com/mohammad-safakhou/archivist/models"
	"github.com/mohammad-safakhou/archivist/repository/redis_repository"
	"github.com/redis/go-redis/v9"
)

// BatchCache stores archive answers per exact sub-range of one endpoint.
type BatchCache interface {
	Get(ctx context.Context, endpoint string, r models.TimeRange) ([]models.Record, bool, error)
	Put(ctx context.Context, endpoint string, r models.TimeRange, records []models.Record, ttl time.Duration) error
}

type RepoType string

const (
	RepoTypeRedis RepoType = "redis"
)

// NewRedisClient connects using the storage.redis config section.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return redis_repository.Conn(ctx, cfg.Host, cfg.Port, cfg.Password, cfg.DB, timeout)
}

func NewBatchCache(t RepoType, client *redis.Client) (BatchCache, error) {
	switch t {
	case RepoTypeRedis:
		if client == nil {
			return nil, fmt.Errorf("redis batch cache requires a client")
		}
		return redis_repository.NewRedisBatchCache(client), nil
	}
	return nil, fmt.Errorf("invalid repository type: %s", t)
}
