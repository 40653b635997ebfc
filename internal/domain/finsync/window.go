package finsync

import (
	"errors"
	"strings"
	"time"

	"finsight/internal/shared/apperr"
)

// DefaultLookbackDays is the size of the default sync window.
const DefaultLookbackDays = 30

// Window is an inclusive range of calendar dates, both at UTC midnight.
type Window struct {
	Start time.Time
	End   time.Time
}

func today(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DefaultWindow covers the last DefaultLookbackDays days up to today.
func DefaultWindow(now time.Time) Window {
	end := today(now)
	return Window{Start: end.AddDate(0, 0, -DefaultLookbackDays), End: end}
}

// ParseWindow builds a window from optional YYYY-MM-DD strings. A missing
// end defaults to today and a missing start to DefaultLookbackDays before
// the end.
func ParseWindow(startDate, endDate string, now time.Time) (Window, error) {
	startDate, endDate = strings.TrimSpace(startDate), strings.TrimSpace(endDate)

	w := Window{End: today(now)}
	if endDate != "" {
		end, err := time.Parse(time.DateOnly, endDate)
		if err != nil {
			return Window{}, apperr.Invalid("end_date", errors.New("expected YYYY-MM-DD"))
		}
		w.End = end
	}

	w.Start = w.End.AddDate(0, 0, -DefaultLookbackDays)
	if startDate != "" {
		start, err := time.Parse(time.DateOnly, startDate)
		if err != nil {
			return Window{}, apperr.Invalid("start_date", errors.New("expected YYYY-MM-DD"))
		}
		w.Start = start
	}

	if err := w.Validate(); err != nil {
		return Window{}, err
	}
	return w, nil
}

func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return apperr.Validation("window")
	}
	if w.Start.After(w.End) {
		return apperr.Invalid("start_date", errors.New("start_date is after end_date"))
	}
	return nil
}

func (w Window) String() string {
	return w.Start.Format(time.DateOnly) + ".." + w.End.Format(time.DateOnly)
}
