// Package report computes calendar-day windows and subscription counts over
// the audit log.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/gosuda/subtrack/internal/domain"
)

// Counter is the read side of domain.EventRepository used by the aggregator.
type Counter interface {
	CountInRange(ctx context.Context, kind domain.EventKind, start, end time.Time) (int64, error)
	TotalCount(ctx context.Context, kind domain.EventKind) (int64, error)
}

// DayReport holds the counts for one local calendar day.
type DayReport struct {
	Date         time.Time `json:"date" doc:"Local midnight that starts the day"`
	Start        time.Time `json:"start" doc:"Inclusive window start"`
	End          time.Time `json:"end" doc:"Exclusive window end"`
	Subscribed   int64     `json:"subscribe_count"`
	Unsubscribed int64     `json:"unsubscribe_count"`
}

// DateString formats the report date the way chat replies show it.
func (r *DayReport) DateString() string {
	return r.Date.Format(DateLayout)
}

type Totals struct {
	Subscribed   int64 `json:"subscribe_count"`
	Unsubscribed int64 `json:"unsubscribe_count"`
}

// Aggregator answers windowed and unwindowed count queries. It keeps no
// state of its own.
type Aggregator struct {
	counter Counter
}

func NewAggregator(counter Counter) *Aggregator {
	return &Aggregator{counter: counter}
}

// CalendarDayBounds returns [local midnight, next local midnight) for the
// local date of ref in loc shifted by dayOffset days. The window follows the
// zone's rules, so DST days span 23 or 25 hours of absolute time.
func CalendarDayBounds(ref time.Time, loc *time.Location, dayOffset int) (time.Time, time.Time) {
	y, m, d := ref.In(loc).Date()
	return localMidnight(y, m, d+dayOffset, loc), localMidnight(y, m, d+dayOffset+1, loc)
}

// localMidnight returns the first instant of the local date. Where a zone
// skips 00:00 (Havana, Santiago), time.Date may resolve to 23:00 of the day
// before; the day then starts at the transition that ends that zone period.
func localMidnight(y int, m time.Month, d int, loc *time.Location) time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, loc)
	wy, wm, wd := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Date()
	if ty, tm, td := t.Date(); ty == wy && tm == wm && td == wd {
		return t
	}
	if _, next := t.ZoneBounds(); !next.IsZero() {
		return next
	}
	return t
}

// Report counts both event kinds inside the calendar day selected by ref and
// dayOffset (0 today, -1 yesterday).
func (a *Aggregator) Report(ctx context.Context, loc *time.Location, ref time.Time, dayOffset int) (*DayReport, error) {
	if loc == nil {
		return nil, fmt.Errorf("report.Aggregator.Report: %w", domain.ErrNilLocation)
	}

	start, end := CalendarDayBounds(ref, loc, dayOffset)

	subs, err := a.counter.CountInRange(ctx, domain.EventKindSubscribe, start, end)
	if err != nil {
		return nil, fmt.Errorf("report.Aggregator.Report: subscribe: %w", err)
	}
	unsubs, err := a.counter.CountInRange(ctx, domain.EventKindUnsubscribe, start, end)
	if err != nil {
		return nil, fmt.Errorf("report.Aggregator.Report: unsubscribe: %w", err)
	}

	return &DayReport{
		Date:         start,
		Start:        start,
		End:          end,
		Subscribed:   subs,
		Unsubscribed: unsubs,
	}, nil
}

// Totals counts every event of each kind ever recorded.
func (a *Aggregator) Totals(ctx context.Context) (*Totals, error) {
	subs, err := a.counter.TotalCount(ctx, domain.EventKindSubscribe)
	if err != nil {
		return nil, fmt.Errorf("report.Aggregator.Totals: subscribe: %w", err)
	}
	unsubs, err := a.counter.TotalCount(ctx, domain.EventKindUnsubscribe)
	if err != nil {
		return nil, fmt.Errorf("report.Aggregator.Totals: unsubscribe: %w", err)
	}

	return &Totals{Subscribed: subs, Unsubscribed: unsubs}, nil
}
