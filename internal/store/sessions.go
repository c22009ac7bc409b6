package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/archivist/models"
)

// Session is the audit row of one retrieval.
type Session struct {
	ID          string
	Source      string
	Range       models.TimeRange
	Status      models.SessionStatus
	Queries     int
	Shrinks     int
	Window      time.Duration
	RecordCount int
	Error       string
	StartedAt   time.Time
	FinishedAt  *time.Time
}

func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	if sess.ID == "" || sess.Source == "" {
		return fmt.Errorf("session id and source are required")
	}
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO retrieval_sessions (id, source, range_start, range_end, status, started_at)
VALUES ($1,$2,$3,$4,$5,NOW())`,
		sess.ID, sess.Source, sess.Range.Start.UTC(), sess.Range.End.UTC(), string(models.SessionStatusRunning))
	return err
}

// FinishSession records the outcome of a session. A nil runErr marks it succeeded.
func (s *Store) FinishSession(ctx context.Context, id string, queries, shrinks int, window time.Duration, records int, runErr error) error {
	status := models.SessionStatusSucceeded
	msg := ""
	if runErr != nil {
		status = models.SessionStatusFailed
		msg = runErr.Error()
	}
	res, err := s.DB.ExecContext(ctx, `
UPDATE retrieval_sessions
SET status=$2, queries=$3, shrinks=$4, window_seconds=$5, record_count=$6, error=$7, finished_at=NOW()
WHERE id=$1`, id, string(status), queries, shrinks, int64(window/time.Second), records, msg)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	return nil
}

// LatestSyncedEnd returns the range end of the newest succeeded session of source. The bool
// is false when source was never synced.
func (s *Store) LatestSyncedEnd(ctx context.Context, source string) (time.Time, bool, error) {
	var end time.Time
	err := s.DB.QueryRowContext(ctx, `
SELECT range_end
FROM retrieval_sessions
WHERE source = $1 AND status = $2
ORDER BY range_end DESC
LIMIT 1`, source, string(models.SessionStatusSucceeded)).Scan(&end)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return end, true, nil
}

// ListSessions returns the most recent sessions of source, newest first.
func (s *Store) ListSessions(ctx context.Context, source string, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id::text, source, range_start, range_end, status, queries, shrinks, window_seconds, record_count, error, started_at, finished_at
FROM retrieval_sessions
WHERE source = $1
ORDER BY started_at DESC
LIMIT $2`, source, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			sess     Session
			status   string
			windowS  int64
			finished sql.NullTime
		)
		if err := rows.Scan(&sess.ID, &sess.Source, &sess.Range.Start, &sess.Range.End, &status,
			&sess.Queries, &sess.Shrinks, &windowS, &sess.RecordCount, &sess.Error, &sess.StartedAt, &finished); err != nil {
			return nil, err
		}
		sess.Status = models.SessionStatus(status)
		sess.Window = time.Duration(windowS) * time.Second
		if finished.Valid {
			t := finished.Time
			sess.FinishedAt = &t
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}
