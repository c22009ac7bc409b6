// Package archive talks to the remote message archive over HTTP.
package archive

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mohammad-safakhou/archivist/models"
)

// DefaultDateLayout matches the date-time text the archive parses for startDate/endDate.
const DefaultDateLayout = "1/2/2006 3:04:05 PM"

type wireRecord struct {
	ID    string `json:"id"`
	Stamp string `json:"stamp"`
	Text  string `json:"text"`
}

// Source fetches one sub-range from the archive endpoint.
type Source struct {
	endpoint *url.URL
	http     *Client
	layout   string
	loc      *time.Location
}

type SourceOption func(*Source)

func WithDateLayout(layout string) SourceOption {
	return func(s *Source) {
		if layout != "" {
			s.layout = layout
		}
	}
}

// WithLocation sets the zone used to format query dates and to read record stamps.
func WithLocation(loc *time.Location) SourceOption {
	return func(s *Source) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func NewSource(endpoint string, client *Client, opts ...SourceOption) (*Source, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse archive url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("archive url must be an absolute http(s) url: %q", endpoint)
	}
	if client == nil {
		client = NewClient(0, 0, 0)
	}
	s := &Source{endpoint: u, http: client, layout: DefaultDateLayout, loc: time.Local}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Endpoint returns the archive URL without query dates.
func (s *Source) Endpoint() string { return s.endpoint.String() }

func (s *Source) Fetch(ctx context.Context, r models.TimeRange) ([]models.Record, error) {
	var batch []wireRecord
	if err := s.http.GetJSON(ctx, s.queryURL(r), nil, &batch); err != nil {
		return nil, fmt.Errorf("query archive: %w", err)
	}
	out := make([]models.Record, 0, len(batch))
	for _, w := range batch {
		out = append(out, models.Record{
			ID:        w.ID,
			Stamp:     w.Stamp,
			Text:      w.Text,
			Timestamp: s.parseStamp(w.Stamp),
		})
	}
	return out, nil
}

func (s *Source) queryURL(r models.TimeRange) string {
	u := *s.endpoint
	q := u.Query()
	q.Set("startDate", r.Start.In(s.loc).Format(s.layout))
	q.Set("endDate", r.End.In(s.loc).Format(s.layout))
	u.RawQuery = q.Encode()
	return u.String()
}

// unparseable stamps keep the zero time; the record itself is still valid
func (s *Source) parseStamp(stamp string) time.Time {
	if stamp == "" {
		return time.Time{}
	}
	ts, err := dateparse.ParseIn(stamp, s.loc)
	if err != nil {
		return time.Time{}
	}
	return ts
}
