package archive

import (
	"context"
	"log"
	"time"

	"github.com/mohammad-safakhou/archivist/models"
	"github.com/mohammad-safakhou/archivist/repository"
)

var fetchLog = log.New(log.Writer(), "[FETCH] ", log.LstdFlags)

// CachedSource serves repeated sub-range queries from a BatchCache. Overflowing batches are
// cached as well; the walker shrinks on them just the same.
type CachedSource struct {
	next  *Source
	cache repository.BatchCache
	ttl   time.Duration
}

func NewCachedSource(next *Source, cache repository.BatchCache, ttl time.Duration) *CachedSource {
	return &CachedSource{next: next, cache: cache, ttl: ttl}
}

func (c *CachedSource) Fetch(ctx context.Context, r models.TimeRange) ([]models.Record, error) {
	key := c.next.Endpoint()
	recs, ok, err := c.cache.Get(ctx, key, r)
	if err != nil {
		fetchLog.Printf("cache read %s: %v", r, err)
	} else if ok {
		return recs, nil
	}

	recs, err = c.next.Fetch(ctx, r)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Put(ctx, key, r, recs, c.ttl); err != nil {
		fetchLog.Printf("cache write %s: %v", r, err)
	}
	return recs, nil
}
