// Package scheduler periodically syncs new archive records into the store.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorhill/cronexpr"
	"github.com/mohammad-safakhou/archivist/internal/retrieval"
	"github.com/mohammad-safakhou/archivist/internal/store"
	"github.com/mohammad-safakhou/archivist/models"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned by RunOnce when another process holds the sync lock.
var ErrLocked = errors.New("sync already running elsewhere")

type Retriever interface {
	Run(ctx context.Context, req models.TimeRange) (*retrieval.Report, error)
}

type SessionStore interface {
	LatestSyncedEnd(ctx context.Context, source string) (time.Time, bool, error)
	CreateSession(ctx context.Context, sess store.Session) error
	FinishSession(ctx context.Context, id string, queries, shrinks int, window time.Duration, records int, runErr error) error
	UpsertRecords(ctx context.Context, source string, records []models.Record) error
}

type Indexer interface {
	Add(records []models.Record) error
}

type Runner struct {
	Walker Retriever
	Store  SessionStore
	// Index and Rdb are optional.
	Index Indexer
	Rdb   *redis.Client

	Source   string
	Cron     string
	Lookback time.Duration
	LockTTL  time.Duration
	Poll     time.Duration
	Now      func() time.Time

	mu   sync.Mutex
	last *time.Time
}

var syncLog = log.New(log.Writer(), "[SYNC] ", log.LstdFlags)

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Start ticks every Poll until ctx is done, running a sync whenever the cron spec is due.
func (r *Runner) Start(ctx context.Context) {
	poll := r.Poll
	if poll <= 0 {
		poll = time.Minute
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	r.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	r.mu.Lock()
	last := r.last
	r.mu.Unlock()
	now := r.now()
	if !IsDue(r.Cron, last, now) {
		return
	}
	rep, err := r.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrLocked):
		syncLog.Printf("skip %s: %v", r.Source, err)
		return
	case err != nil:
		syncLog.Printf("sync %s failed: %v", r.Source, err)
	case rep != nil:
		syncLog.Printf("sync %s %s: %d records in %d queries", r.Source, rep.Range, len(rep.Records), rep.Queries)
	}
	r.mu.Lock()
	r.last = &now
	r.mu.Unlock()
}

// RunOnce syncs from the end of the last succeeded session (or now minus Lookback) up to now.
// It returns a nil report when there is nothing new to fetch.
func (r *Runner) RunOnce(ctx context.Context) (*retrieval.Report, error) {
	if r.Rdb != nil {
		ttl := r.LockTTL
		if ttl <= 0 {
			ttl = 10 * time.Minute
		}
		lockKey := "sync:lock:" + r.Source
		ok, err := r.Rdb.SetNX(ctx, lockKey, "1", ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return nil, ErrLocked
		}
		defer r.Rdb.Del(context.WithoutCancel(ctx), lockKey)
	}

	now := r.now()
	start := now.Add(-r.Lookback)
	if end, ok, err := r.Store.LatestSyncedEnd(ctx, r.Source); err != nil {
		return nil, fmt.Errorf("latest synced end: %w", err)
	} else if ok {
		start = end
	}
	if !start.Before(now) {
		return nil, nil
	}
	req := models.TimeRange{Start: start, End: now}

	id := uuid.NewString()
	if err := r.Store.CreateSession(ctx, store.Session{ID: id, Source: r.Source, Range: req}); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	rep, runErr := r.Walker.Run(retrieval.ContextWithSessionID(ctx, id), req)
	if runErr == nil {
		if err := r.Store.UpsertRecords(ctx, r.Source, rep.Records); err != nil {
			runErr = fmt.Errorf("store records: %w", err)
		}
	}
	finish := func(rep *retrieval.Report, err error) error {
		queries, shrinks, window, count := 0, 0, time.Duration(0), 0
		if rep != nil {
			queries, shrinks, window, count = rep.Queries, rep.Shrinks, rep.Window, len(rep.Records)
		}
		return r.Store.FinishSession(context.WithoutCancel(ctx), id, queries, shrinks, window, count, err)
	}
	if runErr != nil {
		if err := finish(rep, runErr); err != nil {
			syncLog.Printf("finish session %s: %v", id, err)
		}
		return nil, runErr
	}
	if err := finish(rep, nil); err != nil {
		return nil, fmt.Errorf("finish session: %w", err)
	}

	if r.Index != nil {
		if err := r.Index.Add(rep.Records); err != nil {
			syncLog.Printf("index %d records: %v", len(rep.Records), err)
		}
	}
	return rep, nil
}

// IsDue reports whether a sync with cronSpec should run at now, given the last run.
// Supports "@daily", "@hourly", and standard 5-field cron expressions; anything else is
// treated as @daily.
func IsDue(cronSpec string, last *time.Time, now time.Time) bool {
	if last == nil {
		return true
	}
	switch cronSpec {
	case "@daily":
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		return now.Sub(*last) >= time.Hour
	}
	expr, err := cronexpr.Parse(cronSpec)
	if err != nil {
		return now.Sub(*last) >= 24*time.Hour
	}
	next := expr.Next(*last)
	return !next.IsZero() && !next.After(now)
}
