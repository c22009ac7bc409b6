//go:build integration

package store_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mohammad-safakhou/archivist/internal/store"
	"github.com/mohammad-safakhou/archivist/models"
)

func startPostgres(t *testing.T, ctx context.Context) (testcontainers.Container, string) {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "archivist",
			"POSTGRES_PASSWORD": "archivist",
			"POSTGRES_DB":       "archivist",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Fatalf("failed to start postgres: %v", err)
	}
	port, err := pg.MappedPort(ctx, "5432")
	if err != nil {
		_ = pg.Terminate(ctx)
		t.Fatalf("failed to get mapped port: %v", err)
	}
	host, err := pg.Host(ctx)
	if err != nil {
		_ = pg.Terminate(ctx)
		t.Fatalf("failed to get host: %v", err)
	}
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", "archivist", "archivist", host, port.Port(), "archivist")
	return pg, dsn
}

func findMigrationsDir(t *testing.T) string {
	t.Helper()
	cwd, _ := os.Getwd()
	for i := 0; i < 6; i++ {
		candidate := filepath.Join(cwd, "migrations")
		if st, err := os.Stat(candidate); err == nil && st.IsDir() {
			return "file://" + candidate
		}
		cwd = filepath.Dir(cwd)
	}
	t.Fatalf("could not locate migrations directory from test cwd")
	return ""
}

func TestStoreAgainstPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	pg, dsn := startPostgres(t, ctx)
	defer func() { _ = pg.Terminate(ctx) }()

	migDir := findMigrationsDir(t)
	var migErr error
	for i := 0; i < 6; i++ {
		if migErr = store.Migrate(migDir, dsn, "up", 0); migErr == nil {
			break
		}
		time.Sleep(300 * time.Millisecond)
	}
	if migErr != nil {
		t.Fatalf("migrate: %v", migErr)
	}

	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		t.Fatalf("store init: %v", err)
	}
	defer st.Close()

	epoch := time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	recs := []models.Record{
		{ID: "b", Stamp: "s", Text: "second", Timestamp: epoch.Add(time.Hour)},
		{ID: "a", Stamp: "s", Text: "first", Timestamp: epoch},
	}
	if err := st.UpsertRecords(ctx, "tweets", recs); err != nil {
		t.Fatalf("UpsertRecords: %v", err)
	}
	recs[1].Text = "first, edited"
	if err := st.UpsertRecords(ctx, "tweets", recs[1:]); err != nil {
		t.Fatalf("UpsertRecords again: %v", err)
	}

	got, err := st.ListRecords(ctx, "tweets", models.TimeRange{Start: epoch, End: epoch.Add(time.Hour)})
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[0].Text != "first, edited" {
		t.Fatalf("unexpected records %+v", got)
	}

	r := models.TimeRange{Start: epoch, End: epoch.Add(2 * time.Hour)}
	ok := uuid.NewString()
	if err := st.CreateSession(ctx, store.Session{ID: ok, Source: "tweets", Range: r}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := st.FinishSession(ctx, ok, 3, 1, time.Hour, 2, nil); err != nil {
		t.Fatalf("FinishSession: %v", err)
	}
	failed := uuid.NewString()
	later := models.TimeRange{Start: r.End, End: r.End.Add(time.Hour)}
	if err := st.CreateSession(ctx, store.Session{ID: failed, Source: "tweets", Range: later}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := st.FinishSession(ctx, failed, 10, 9, 30*time.Minute, 0, errors.New("truncated")); err != nil {
		t.Fatalf("FinishSession: %v", err)
	}

	end, found, err := st.LatestSyncedEnd(ctx, "tweets")
	if err != nil || !found || !end.Equal(r.End) {
		t.Fatalf("LatestSyncedEnd = %v %v %v, want %v", end, found, err, r.End)
	}

	if err := store.Migrate(migDir, dsn, "down", 0); err != nil {
		t.Fatalf("migrate down: %v", err)
	}
}
