package main

import (
	"context"
	"log"
	"time"

	"github.com/mohammad-safakhou/archivist/archive"
	"github.com/mohammad-safakhou/archivist/config"
	"github.com/mohammad-safakhou/archivist/internal/retrieval"
	"github.com/mohammad-safakhou/archivist/repository"
	"github.com/redis/go-redis/v9"
)

// buildSource assembles the archive source for endpoint, with the redis batch cache in
// front of it when enabled. The returned cleanup closes whatever was opened.
func buildSource(ctx context.Context, cfg *config.Config, endpoint string) (retrieval.Source, *archive.Source, func(), error) {
	ac := cfg.Archive
	client := archive.NewClient(ac.Timeout, ac.Retries, ac.Backoff).WithRateLimit(ac.RatePerSecond, ac.Burst)
	src, err := archive.NewSource(endpoint, client,
		archive.WithDateLayout(ac.DateLayout),
		archive.WithLocation(ac.LoadLocation()),
	)
	if err != nil {
		return nil, nil, nil, err
	}
	if !cfg.Cache.Enabled {
		return src, src, func() {}, nil
	}

	rdb, err := repository.NewRedisClient(ctx, cfg.Storage.Redis)
	if err != nil {
		log.Printf("batch cache disabled: %v", err)
		return src, src, func() {}, nil
	}
	cache, err := repository.NewBatchCache(repository.RepoTypeRedis, rdb)
	if err != nil {
		_ = rdb.Close()
		return nil, nil, nil, err
	}
	return archive.NewCachedSource(src, cache, cfg.Cache.TTL), src, func() { _ = rdb.Close() }, nil
}

func connectRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return repository.NewRedisClient(ctx, cfg.Storage.Redis)
}
