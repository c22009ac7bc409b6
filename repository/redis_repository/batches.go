package redis_repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/mohammad-safakhou/archivist/models"
	"github.com/redis/go-redis/v9"
)

const batchKeyPrefix = "batch:"

// redisBatchCache implements BatchCache using Redis
type redisBatchCache struct {
	client *redis.Client
}

func BatchKey(endpoint string, r models.TimeRange) string {
	sum := sha256.Sum256([]byte(endpoint + "|" + r.Start.UTC().Format(time.RFC3339Nano) + "|" + r.End.UTC().Format(time.RFC3339Nano)))
	return batchKeyPrefix + hex.EncodeToString(sum[:])
}

func (r redisBatchCache) Get(ctx context.Context, endpoint string, tr models.TimeRange) ([]models.Record, bool, error) {
	val, err := r.client.Get(ctx, BatchKey(endpoint, tr)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var records []models.Record
	if err := json.Unmarshal(val, &records); err != nil {
		return nil, false, err
	}
	return records, true, nil
}

func (r redisBatchCache) Put(ctx context.Context, endpoint string, tr models.TimeRange, records []models.Record, ttl time.Duration) error {
	if records == nil {
		records = []models.Record{}
	}
	// Marshal the batch to JSON before storing
	data, err := json.Marshal(records)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, BatchKey(endpoint, tr), data, ttl).Err()
}

func NewRedisBatchCache(client *redis.Client) *redisBatchCache {
	return &redisBatchCache{
		client: client,
	}
}
