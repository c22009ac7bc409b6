package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/mohammad-safakhou/archivist/models"
)

var epoch = time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{DB: db}, mock
}

func TestUpsertRecords(t *testing.T) {
	st, mock := newMockStore(t)
	recs := []models.Record{
		{ID: "1", Stamp: "1/1/2018 12:00:00 AM", Text: "first", Timestamp: epoch},
		{ID: "2", Stamp: "1/1/2018 1:00:00 AM", Text: "second", Timestamp: epoch.Add(time.Hour)},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta(`INSERT INTO archive_records (source, id, stamp, body, ts, fetched_at)`))
	prep.ExpectExec().
		WithArgs("tweets", "1", "1/1/2018 12:00:00 AM", "first", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs("tweets", "2", "1/1/2018 1:00:00 AM", "second", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := st.UpsertRecords(context.Background(), "tweets", recs); err != nil {
		t.Fatalf("UpsertRecords: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertRecordsRollsBackOnFailure(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta(`INSERT INTO archive_records`))
	prep.ExpectExec().WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := st.UpsertRecords(context.Background(), "tweets", []models.Record{{ID: "1", Timestamp: epoch}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertRecordsNoop(t *testing.T) {
	st, mock := newMockStore(t)
	if err := st.UpsertRecords(context.Background(), "tweets", nil); err != nil {
		t.Fatalf("UpsertRecords: %v", err)
	}
	if err := st.UpsertRecords(context.Background(), "", []models.Record{{ID: "1"}}); err == nil {
		t.Fatalf("expected missing source to fail")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListRecords(t *testing.T) {
	st, mock := newMockStore(t)
	r := models.TimeRange{Start: epoch, End: epoch.Add(24 * time.Hour)}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, stamp, body, ts
FROM archive_records
WHERE source = $1 AND ts BETWEEN $2 AND $3
ORDER BY ts, id`)).
		WithArgs("tweets", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "stamp", "body", "ts"}).
			AddRow("1", "s1", "first", epoch).
			AddRow("2", "s2", "second", epoch.Add(time.Hour)))

	got, err := st.ListRecords(context.Background(), "tweets", r)
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(got) != 2 || got[1].Text != "second" || !got[1].Timestamp.Equal(epoch.Add(time.Hour)) {
		t.Fatalf("unexpected records %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}

	if _, err := st.ListRecords(context.Background(), "tweets", models.TimeRange{Start: r.End, End: r.Start}); !errors.Is(err, models.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}
