package history

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRange is returned for unknown range names and malformed custom ranges.
var ErrInvalidRange = errors.New("invalid time range")

// Named time ranges.
const (
	RangeLast5Minutes  = "last_5_minutes"
	RangeLast15Minutes = "last_15_minutes"
	RangeLastHour      = "last_hour"
	RangeLastDay       = "last_day"
	RangeLastWeek      = "last_week"
	RangeAll           = "all"
	RangeCustom        = "custom"
)

var relativeRanges = map[string]time.Duration{
	RangeLast5Minutes:  5 * time.Minute,
	RangeLast15Minutes: 15 * time.Minute,
	RangeLastHour:      time.Hour,
	RangeLastDay:       24 * time.Hour,
	RangeLastWeek:      7 * 24 * time.Hour,
}

// RangeNames lists the accepted range names.
func RangeNames() []string {
	return []string{
		RangeLast5Minutes, RangeLast15Minutes, RangeLastHour,
		RangeLastDay, RangeLastWeek, RangeAll, RangeCustom,
	}
}

// TimeRange selects records by timestamp. An empty Name means all records.
// Custom ranges use Start and End; a zero bound is open.
type TimeRange struct {
	Name  string    `json:"name,omitempty" yaml:"name,omitempty"`
	Start time.Time `json:"start,omitempty" yaml:"start,omitempty"`
	End   time.Time `json:"end,omitempty" yaml:"end,omitempty"`
}

// window is a resolved, inclusive time window. Zero bounds are open.
type window struct {
	start time.Time
	end   time.Time
}

func (w window) contains(t time.Time) bool {
	if !w.start.IsZero() && t.Before(w.start) {
		return false
	}
	if !w.end.IsZero() && t.After(w.end) {
		return false
	}
	return true
}

// Resolve turns the range into concrete bounds at now. Relative ranges are
// [now-d, now]; zero results mean unbounded.
func (r TimeRange) Resolve(now time.Time) (start, end time.Time, err error) {
	w, err := r.window(now)
	return w.start, w.end, err
}

func (r TimeRange) window(now time.Time) (window, error) {
	switch r.Name {
	case "", RangeAll:
		return window{}, nil
	case RangeCustom:
		if r.Start.IsZero() && r.End.IsZero() {
			return window{}, fmt.Errorf("%w: custom range needs a start or an end", ErrInvalidRange)
		}
		if !r.Start.IsZero() && !r.End.IsZero() && r.End.Before(r.Start) {
			return window{}, fmt.Errorf("%w: end %s is before start %s", ErrInvalidRange,
				r.End.Format(time.RFC3339), r.Start.Format(time.RFC3339))
		}
		return window{start: r.Start, end: r.End}, nil
	}

	d, ok := relativeRanges[r.Name]
	if !ok {
		return window{}, fmt.Errorf("%w: unknown range %q", ErrInvalidRange, r.Name)
	}
	return window{start: now.Add(-d), end: now}, nil
}
