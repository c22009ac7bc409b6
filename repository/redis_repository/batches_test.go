package redis_repository

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mohammad-safakhou/archivist/models"
	"github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestBatchCacheRoundTrip(t *testing.T) {
	mr, client := newTestClient(t)
	cache := NewRedisBatchCache(client)
	ctx := context.Background()
	start := time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	r := models.TimeRange{Start: start, End: start.Add(time.Hour)}

	if _, ok, err := cache.Get(ctx, "http://archive/tweets", r); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	recs := []models.Record{{ID: "1", Stamp: "s", Text: "t", Timestamp: start}}
	if err := cache.Put(ctx, "http://archive/tweets", r, recs, time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := cache.Get(ctx, "http://archive/tweets", r)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if len(got) != 1 || got[0].ID != "1" || !got[0].Timestamp.Equal(start) {
		t.Fatalf("unexpected records %+v", got)
	}

	if _, ok, _ := cache.Get(ctx, "http://other/tweets", r); ok {
		t.Fatalf("endpoints must not share entries")
	}

	mr.FastForward(2 * time.Minute)
	if _, ok, _ := cache.Get(ctx, "http://archive/tweets", r); ok {
		t.Fatalf("entry should expire after ttl")
	}
}

func TestBatchCacheStoresEmptyBatch(t *testing.T) {
	_, client := newTestClient(t)
	cache := NewRedisBatchCache(client)
	ctx := context.Background()
	r := models.TimeRange{Start: time.Unix(0, 0), End: time.Unix(60, 0)}

	if err := cache.Put(ctx, "u", r, nil, 0); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := cache.Get(ctx, "u", r)
	if err != nil || !ok || len(got) != 0 {
		t.Fatalf("expected cached empty batch, got %v ok=%v err=%v", got, ok, err)
	}
}

func TestBatchKeyIsStable(t *testing.T) {
	at := time.Date(2018, 1, 1, 5, 0, 0, 0, time.FixedZone("X", 3600))
	a := BatchKey("u", models.TimeRange{Start: at, End: at})
	b := BatchKey("u", models.TimeRange{Start: at.UTC(), End: at.UTC()})
	if a != b {
		t.Fatalf("the same instants in different zones must share a key")
	}
	if len(a) != len(batchKeyPrefix)+64 {
		t.Fatalf("unexpected key %q", a)
	}
}

func TestConn(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port, _ := net.SplitHostPort(mr.Addr())
	c, err := Conn(context.Background(), host, port, "", 0, time.Second)
	if err != nil {
		t.Fatalf("Conn: %v", err)
	}
	_ = c.Close()

	mr.Close()
	if _, err := Conn(context.Background(), host, port, "", 0, 100*time.Millisecond); err == nil {
		t.Fatalf("expected ping failure on a closed server")
	}
}
