package retrieval

import (
	"time"

	"github.com/mohammad-safakhou/archivist/models"
)

// DefaultCap is the observed per-query record limit of the remote archive.
const DefaultCap = 100

// IsOverflow reports whether a batch of returnedCount records may have been truncated.
// A batch of exactly limit records is indistinguishable from a truncated one and counts as
// overflowed. A non-positive limit means DefaultCap.
func IsOverflow(returnedCount, limit int) bool {
	if limit <= 0 {
		limit = DefaultCap
	}
	return returnedCount >= limit
}

// OutcomeKind tags the result of classifying one fetched batch.
type OutcomeKind int

const (
	OutcomeAccepted OutcomeKind = iota
	OutcomeOverflow
	OutcomeWindowExhausted
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeOverflow:
		return "overflow"
	case OutcomeWindowExhausted:
		return "window_exhausted"
	default:
		return "unknown"
	}
}

// Outcome is the classification of one batch. Records is set only for OutcomeAccepted and
// Window only for OutcomeOverflow, where it holds the shrunk window for the requery.
type Outcome struct {
	Kind    OutcomeKind
	Records []models.Record
	Window  time.Duration
}

func classify(batch []models.Record, limit int, window time.Duration) Outcome {
	if !IsOverflow(len(batch), limit) {
		return Outcome{Kind: OutcomeAccepted, Records: batch}
	}
	next, err := Shrink(window)
	if err != nil {
		return Outcome{Kind: OutcomeWindowExhausted}
	}
	return Outcome{Kind: OutcomeOverflow, Window: next}
}
