package store

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/archivist/models"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// UpsertRecords stores records of one archive source in a single transaction. A record seen
// again replaces the stored copy.
func (s *Store) UpsertRecords(ctx context.Context, source string, records []models.Record) error {
	if source == "" {
		return fmt.Errorf("source is required")
	}
	if len(records) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO archive_records (source, id, stamp, body, ts, fetched_at)
VALUES ($1,$2,$3,$4,$5,NOW())
ON CONFLICT (source, id) DO UPDATE SET
  stamp      = EXCLUDED.stamp,
  body       = EXCLUDED.body,
  ts         = EXCLUDED.ts,
  fetched_at = NOW();
`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, source, r.ID, r.Stamp, r.Text, r.Timestamp.UTC()); err != nil {
			return fmt.Errorf("upsert record %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	initStoreMetrics()
	if upsertedCounter != nil {
		upsertedCounter.Add(ctx, int64(len(records)), otelmetric.WithAttributes(attribute.String("source", source)))
	}
	return nil
}

// ListRecords returns stored records of source whose timestamp lies in r, both ends inclusive.
func (s *Store) ListRecords(ctx context.Context, source string, r models.TimeRange) ([]models.Record, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, stamp, body, ts
FROM archive_records
WHERE source = $1 AND ts BETWEEN $2 AND $3
ORDER BY ts, id`, source, r.Start.UTC(), r.End.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Record
	for rows.Next() {
		var rec models.Record
		if err := rows.Scan(&rec.ID, &rec.Stamp, &rec.Text, &rec.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
