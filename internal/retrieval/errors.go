package retrieval

import (
	"fmt"
	"time"

	"github.com/mohammad-safakhou/archivist/models"
)

// TransportError wraps any failure reported by the Source. The session that hit it is
// aborted and its accumulated records are discarded.
type TransportError struct {
	Range models.TimeRange
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Range, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TruncationRiskError is returned when a sub-range still overflows at the smallest window.
// The remote data for that range cannot be retrieved reliably.
type TruncationRiskError struct {
	Range  models.TimeRange
	Window time.Duration
}

func (e *TruncationRiskError) Error() string {
	return fmt.Sprintf("unreliable host data: records may be missing in %s (window %s)", e.Range, StepLabel(e.Window))
}

func (e *TruncationRiskError) Unwrap() error { return ErrWindowExhausted }
