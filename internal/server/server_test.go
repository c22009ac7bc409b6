package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/archivist/internal/index"
	"github.com/mohammad-safakhou/archivist/internal/retrieval"
	"github.com/mohammad-safakhou/archivist/internal/runtime"
	"github.com/mohammad-safakhou/archivist/internal/store"
	"github.com/mohammad-safakhou/archivist/models"
)

var epoch = time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeStore struct {
	gotSource string
	gotRange  models.TimeRange
}

func (f *fakeStore) ListRecords(_ context.Context, source string, r models.TimeRange) ([]models.Record, error) {
	f.gotSource, f.gotRange = source, r
	return []models.Record{{ID: "s1", Text: "stored", Timestamp: r.Start}}, nil
}

func (f *fakeStore) ListSessions(context.Context, string, int) ([]store.Session, error) {
	return []store.Session{{ID: "sess", Status: models.SessionStatusSucceeded, Window: time.Hour}}, nil
}

type fakeSearch struct{}

func (fakeSearch) Search(q string, k int) ([]index.Hit, error) {
	return []index.Hit{{ID: "1", Rank: 1, Text: q}}, nil
}

func hourly() retrieval.Source {
	return retrieval.SourceFunc(func(_ context.Context, r models.TimeRange) ([]models.Record, error) {
		var out []models.Record
		for ts := r.Start; !ts.After(r.End); ts = ts.Add(time.Hour) {
			out = append(out, models.Record{ID: ts.Format(time.RFC3339), Timestamp: ts})
		}
		return out, nil
	})
}

func get(t *testing.T, h http.Handler, path string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if len(header) == 2 {
		req.Header.Set(header[0], header[1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRetrieveEndpoint(t *testing.T) {
	e := New(Options{Walker: retrieval.NewWalker(hourly()), Location: time.UTC})
	rec := get(t, e, "/api/records?start=2018-01-01T00:00:00Z&end=2018-01-01T05:00:00Z")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var body retrievalResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 6 || len(body.Records) != 6 || body.SessionID == "" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestRetrieveEndpointErrors(t *testing.T) {
	full := make([]models.Record, retrieval.DefaultCap)
	for i := range full {
		full[i] = models.Record{ID: fmt.Sprint(i)}
	}
	overflowing := retrieval.SourceFunc(func(context.Context, models.TimeRange) ([]models.Record, error) { return full, nil })
	failing := retrieval.SourceFunc(func(context.Context, models.TimeRange) ([]models.Record, error) {
		return nil, errors.New("connection refused")
	})

	cases := []struct {
		name string
		opts Options
		path string
		code int
	}{
		{"truncation risk", Options{Walker: retrieval.NewWalker(overflowing)}, "/api/records?start=2018-01-01&end=2018-01-02", http.StatusBadGateway},
		{"transport", Options{Walker: retrieval.NewWalker(failing)}, "/api/records?start=2018-01-01&end=2018-01-02", http.StatusBadGateway},
		{"reversed", Options{Walker: retrieval.NewWalker(hourly())}, "/api/records?start=2018-01-02&end=2018-01-01", http.StatusBadRequest},
		{"missing end", Options{Walker: retrieval.NewWalker(hourly())}, "/api/records?start=2018-01-02", http.StatusBadRequest},
		{"bad date", Options{Walker: retrieval.NewWalker(hourly())}, "/api/records?start=yesterday&end=2018-01-01", http.StatusBadRequest},
		{"no walker", Options{}, "/api/records?start=2018-01-01&end=2018-01-02", http.StatusServiceUnavailable},
		{"no store", Options{}, "/api/records/stored?start=2018-01-01&end=2018-01-02", http.StatusServiceUnavailable},
		{"no index", Options{}, "/api/search?q=x", http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		rec := get(t, New(tc.opts), tc.path)
		if rec.Code != tc.code {
			t.Fatalf("%s: expected %d, got %d (%s)", tc.name, tc.code, rec.Code, rec.Body.String())
		}
		var body map[string]interface{}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["error"] == nil {
			t.Fatalf("%s: expected JSON error body, got %s", tc.name, rec.Body.String())
		}
	}
}

func TestStoredAndSearchEndpoints(t *testing.T) {
	st := &fakeStore{}
	e := New(Options{Store: st, Index: fakeSearch{}, Source: "tweets", Location: time.UTC})

	rec := get(t, e, "/api/records/stored?start=2018-01-01&end=2018-01-03")
	if rec.Code != http.StatusOK {
		t.Fatalf("stored: %d %s", rec.Code, rec.Body.String())
	}
	if st.gotSource != "tweets" || !st.gotRange.Start.Equal(epoch) || !st.gotRange.End.Equal(epoch.Add(48*time.Hour)) {
		t.Fatalf("unexpected store query %s %s", st.gotSource, st.gotRange)
	}

	rec = get(t, e, "/api/search?q=storm&k=3")
	if rec.Code != http.StatusOK {
		t.Fatalf("search: %d", rec.Code)
	}
	var hits []index.Hit
	if err := json.Unmarshal(rec.Body.Bytes(), &hits); err != nil || len(hits) != 1 || hits[0].Text != "storm" {
		t.Fatalf("unexpected hits %s", rec.Body.String())
	}

	rec = get(t, e, "/api/sessions")
	if rec.Code != http.StatusOK {
		t.Fatalf("sessions: %d", rec.Code)
	}
	var sessions []sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &sessions); err != nil || len(sessions) != 1 || sessions[0].Window != "1h0m0s" {
		t.Fatalf("unexpected sessions %s", rec.Body.String())
	}
}

func TestAPIRequiresTokenWhenSecretSet(t *testing.T) {
	secret := []byte("s3cret")
	e := New(Options{Walker: retrieval.NewWalker(hourly()), JWTSecret: secret})

	if rec := get(t, e, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("healthz must stay public, got %d", rec.Code)
	}
	if rec := get(t, e, "/api/records?start=2018-01-01&end=2018-01-01"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	tok, err := runtime.SignJWT("tester", secret, time.Minute)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	if rec := get(t, e, "/api/records?start=2018-01-01&end=2018-01-01", "Authorization", "Bearer "+tok); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}
}

func TestErrorLogNamesTokenSubject(t *testing.T) {
	var buf bytes.Buffer
	httpLog.SetOutput(&buf)
	defer httpLog.SetOutput(log.Writer())

	secret := []byte("s3cret")
	e := New(Options{Walker: retrieval.NewWalker(hourly()), JWTSecret: secret})
	tok, err := runtime.SignJWT("alice", secret, time.Minute)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	rec := get(t, e, "/api/records?start=2018-01-02&end=2018-01-01", "Authorization", "Bearer "+tok)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a reversed range, got %d", rec.Code)
	}
	if !strings.Contains(buf.String(), "from alice@") {
		t.Fatalf("error log should name the subject, got %q", buf.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := New(Options{Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "retrieval_queries_total 1")
	})})
	rec := get(t, e, "/metrics")
	if rec.Code != http.StatusOK || rec.Body.String() != "retrieval_queries_total 1" {
		t.Fatalf("unexpected metrics response %d %q", rec.Code, rec.Body.String())
	}
}
