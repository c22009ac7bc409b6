package models

import (
	"errors"
	"testing"
	"time"
)

func TestTimeRangeValidate(t *testing.T) {
	start := time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := (TimeRange{Start: start, End: start}).Validate(); err != nil {
		t.Fatalf("empty range should be valid: %v", err)
	}
	err := TimeRange{Start: start.Add(time.Hour), End: start}.Validate()
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestTimeRangeContainsIsInclusive(t *testing.T) {
	start := time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	r := TimeRange{Start: start, End: start.Add(24 * time.Hour)}
	if !r.Contains(r.Start) || !r.Contains(r.End) {
		t.Fatalf("both bounds must be inside the range")
	}
	if r.Contains(r.End.Add(time.Nanosecond)) {
		t.Fatalf("instant past end must be outside")
	}
	if r.Duration() != 24*time.Hour {
		t.Fatalf("unexpected duration %s", r.Duration())
	}
}
