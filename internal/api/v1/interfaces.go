package v1

import (
	"context"
	"time"

	"github.com/gosuda/subtrack/internal/report"
	"github.com/gosuda/subtrack/internal/scheduler"
)

// Reports abstracts the aggregator for handler testing.
// *report.Aggregator satisfies this interface.
type Reports interface {
	Report(ctx context.Context, loc *time.Location, ref time.Time, dayOffset int) (*report.DayReport, error)
	Totals(ctx context.Context) (*report.Totals, error)
}

// ReportTrigger abstracts the daily job for handler testing.
// *scheduler.Scheduler satisfies this interface.
type ReportTrigger interface {
	Trigger(ctx context.Context) (*scheduler.Run, error)
	LastRun() *scheduler.Run
	Next() time.Time
}

// ReportSettings carries the zone and label every report is rendered with.
type ReportSettings struct {
	Location *time.Location
	Label    string
	// Clock defaults to time.Now.
	Clock func() time.Time
}

func (s ReportSettings) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}
