package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRange is returned when a range ends before it starts
var ErrInvalidRange = errors.New("invalid time range: start is after end")

// TimeRange is a closed interval of instants. It describes either a caller request or one
// sub-query issued while walking that request.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (r TimeRange) Validate() error {
	if r.Start.After(r.End) {
		return fmt.Errorf("%w (%s > %s)", ErrInvalidRange, r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339))
	}
	return nil
}

func (r TimeRange) Duration() time.Duration { return r.End.Sub(r.Start) }

// Contains reports whether t falls inside the range, both ends inclusive.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

func (r TimeRange) String() string {
	return fmt.Sprintf("[%s, %s]", r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339))
}

// Record is one archived message. Two records with the same ID are the same logical record
// no matter which sub-query returned them.
type Record struct {
	ID        string    `json:"id" yaml:"id"`
	Stamp     string    `json:"stamp" yaml:"stamp"`
	Text      string    `json:"text" yaml:"text"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

type SessionStatus string

const (
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusSucceeded SessionStatus = "succeeded"
	SessionStatusFailed    SessionStatus = "failed"
)
