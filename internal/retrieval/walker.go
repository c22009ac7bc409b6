// Package retrieval walks a time range against a remote archive that silently truncates
// large answers, partitioning the range into sub-queries small enough to be trusted.
package retrieval

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/archivist/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Source fetches every record the remote archive is willing to return for r.
type Source interface {
	Fetch(ctx context.Context, r models.TimeRange) ([]models.Record, error)
}

// SourceFunc adapts a plain function to Source.
type SourceFunc func(ctx context.Context, r models.TimeRange) ([]models.Record, error)

func (f SourceFunc) Fetch(ctx context.Context, r models.TimeRange) ([]models.Record, error) {
	return f(ctx, r)
}

// QueryEvent describes one issued sub-query after its outcome is known.
type QueryEvent struct {
	SessionID string
	Range     models.TimeRange
	Window    time.Duration
	Attempt   int
	Returned  int
	Outcome   OutcomeKind
	// NextWindow is the shrunk window, set when Outcome is OutcomeOverflow.
	NextWindow time.Duration
	// Err is the fetch failure, when the query never produced a batch.
	Err error
}

// Observer receives a QueryEvent for every sub-query of every session.
type Observer func(QueryEvent)

type Option func(*Walker)

// WithCap overrides DefaultCap.
func WithCap(limit int) Option {
	return func(w *Walker) {
		if limit > 0 {
			w.cap = limit
		}
	}
}

func WithObserver(o Observer) Option {
	return func(w *Walker) { w.observer = o }
}

func WithTracer(t trace.Tracer) Option {
	return func(w *Walker) {
		if t != nil {
			w.tracer = t
		}
	}
}

// Walker retrieves complete record sets. It holds no per-request state, so one Walker may
// serve concurrent requests; each call runs its own session.
type Walker struct {
	source   Source
	cap      int
	observer Observer
	tracer   trace.Tracer
}

func NewWalker(source Source, opts ...Option) *Walker {
	w := &Walker{
		source: source,
		cap:    DefaultCap,
		tracer: otel.Tracer("archivist/retrieval"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Walker) Cap() int { return w.cap }

// Report summarises a finished session. Records is nil unless the session succeeded.
type Report struct {
	SessionID string
	Range     models.TimeRange
	Records   []models.Record
	Queries   int
	Shrinks   int
	Window    time.Duration
}

// session is the mutable state of one walk. It never escapes Run.
type session struct {
	id      string
	req     models.TimeRange
	cursor  time.Time
	window  time.Duration
	acc     *recordSet
	queries int
	shrinks int
}

type sessionIDKey struct{}

// ContextWithSessionID makes the next Run on ctx use id instead of a fresh UUID, so callers can
// record the session before it starts.
func ContextWithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, id)
}

func newSession(ctx context.Context, req models.TimeRange) *session {
	id, _ := ctx.Value(sessionIDKey{}).(string)
	if id == "" {
		id = uuid.NewString()
	}
	return &session{
		id:     id,
		req:    req,
		cursor: req.Start,
		window: req.Duration(),
		acc:    newRecordSet(),
	}
}

// next returns the sub-range starting at the cursor, clamped to the request end.
func (s *session) next() models.TimeRange {
	end := s.cursor.Add(s.window)
	if end.After(s.req.End) {
		end = s.req.End
	}
	return models.TimeRange{Start: s.cursor, End: end}
}

func (s *session) report(records []models.Record) *Report {
	return &Report{
		SessionID: s.id,
		Range:     s.req,
		Records:   records,
		Queries:   s.queries,
		Shrinks:   s.shrinks,
		Window:    s.window,
	}
}

// Retrieve returns every record of req in timestamp order, or a *TransportError or
// *TruncationRiskError. It never returns a partial result.
func (w *Walker) Retrieve(ctx context.Context, req models.TimeRange) ([]models.Record, error) {
	rep, err := w.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	return rep.Records, nil
}

// Run is Retrieve with session statistics. On error the report carries the statistics of
// the aborted session but no records.
func (w *Walker) Run(ctx context.Context, req models.TimeRange) (*Report, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	s := newSession(ctx, req)
	ctx, span := w.tracer.Start(ctx, "retrieval.session", trace.WithAttributes(
		attribute.String("session.id", s.id),
		attribute.String("range.start", req.Start.Format(time.RFC3339)),
		attribute.String("range.end", req.End.Format(time.RFC3339)),
		attribute.Int("cap", w.cap),
	))
	defer span.End()

	for {
		sub := s.next()
		s.queries++
		ev := QueryEvent{SessionID: s.id, Range: sub, Window: s.window, Attempt: s.queries}

		batch, err := w.fetch(ctx, sub)
		if err != nil {
			ev.Err = err
			w.emit(ctx, span, ev, "transport_error")
			return w.fail(ctx, span, s, &TransportError{Range: sub, Err: err})
		}
		ev.Returned = len(batch)

		out := classify(batch, w.cap, s.window)
		ev.Outcome = out.Kind
		switch out.Kind {
		case OutcomeOverflow:
			ev.NextWindow = out.Window
			w.emit(ctx, span, ev, out.Kind.String())
			s.window = out.Window
			s.shrinks++
		case OutcomeWindowExhausted:
			w.emit(ctx, span, ev, out.Kind.String())
			return w.fail(ctx, span, s, &TruncationRiskError{Range: sub, Window: s.window})
		default:
			w.emit(ctx, span, ev, out.Kind.String())
			s.acc.merge(out.Records)
			if sub.End.Equal(req.End) {
				records := s.acc.sorted()
				span.SetAttributes(
					attribute.Int("queries", s.queries),
					attribute.Int("shrinks", s.shrinks),
					attribute.Int("records", len(records)),
				)
				recordSession(ctx, string(models.SessionStatusSucceeded), len(records))
				return s.report(records), nil
			}
			s.cursor = sub.End
		}
	}
}

func (w *Walker) fetch(ctx context.Context, sub models.TimeRange) ([]models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return w.source.Fetch(ctx, sub)
}

func (w *Walker) emit(ctx context.Context, span trace.Span, ev QueryEvent, outcome string) {
	recordQuery(ctx, outcome)
	span.AddEvent("query", trace.WithAttributes(
		attribute.Int("attempt", ev.Attempt),
		attribute.String("start", ev.Range.Start.Format(time.RFC3339)),
		attribute.String("end", ev.Range.End.Format(time.RFC3339)),
		attribute.Int64("window_seconds", int64(ev.Window/time.Second)),
		attribute.Int("returned", ev.Returned),
		attribute.String("outcome", outcome),
	))
	if w.observer != nil {
		w.observer(ev)
	}
}

func (w *Walker) fail(ctx context.Context, span trace.Span, s *session, err error) (*Report, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	recordSession(ctx, string(models.SessionStatusFailed), 0)
	return s.report(nil), err
}
