package retrieval

import (
	"errors"
	"fmt"
	"time"
)

const day = 24 * time.Hour

// Floor is the smallest window the ladder will produce.
const Floor = 30 * time.Minute

// halvingLimit is the window size above which the ladder halves instead of stepping to a
// fixed ceiling.
const halvingLimit = 6 * day

// ladder lists the fixed ceilings consulted once the window is at or below halvingLimit.
var ladder = []time.Duration{3 * day, 2 * day, day, 12 * time.Hour, time.Hour, Floor}

// ErrWindowExhausted is returned by Shrink once the window is at or below Floor.
var ErrWindowExhausted = errors.New("window exhausted: minimum timespan reached")

// Shrink returns the next window on the ladder for a window that is known to be unsafe.
// Windows above six days are halved and floored to whole days; smaller windows step down to
// the first fixed ceiling they exceed. The result is always strictly smaller than current.
func Shrink(current time.Duration) (time.Duration, error) {
	if current > halvingLimit {
		days := int64(current/day) / 2
		return time.Duration(days) * day, nil
	}
	for _, ceiling := range ladder {
		if current > ceiling {
			return ceiling, nil
		}
	}
	return 0, ErrWindowExhausted
}

// StepLabel renders a window the way the verbose trace reports it.
func StepLabel(d time.Duration) string {
	switch {
	case d >= day && d%day == 0:
		if d == day {
			return "1 day"
		}
		return fmt.Sprintf("%d days", d/day)
	case d >= time.Hour && d%time.Hour == 0:
		if d == time.Hour {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", d/time.Hour)
	case d >= time.Minute && d%time.Minute == 0:
		return fmt.Sprintf("%d mins", d/time.Minute)
	default:
		return d.String()
	}
}
