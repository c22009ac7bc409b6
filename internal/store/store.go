package store

import (
	"context"
	"database/sql"
	"log"
	"sync"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"
)

type Store struct {
	DB *sql.DB
}

var storeLog = log.New(log.Writer(), "[STORE] ", log.LstdFlags)

// NewWithDSN constructs the Store using an explicit Postgres DSN
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

var (
	metricsOnce     sync.Once
	upsertedCounter otelmetric.Int64Counter
)

func initStoreMetrics() {
	metricsOnce.Do(func() {
		meter := otel.Meter("store")
		var err error
		upsertedCounter, err = meter.Int64Counter("store_records_upserted_total")
		if err != nil {
			storeLog.Printf("metrics init error: %v", err)
		}
	})
}
