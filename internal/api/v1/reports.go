package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/subtrack/internal/notify"
	"github.com/gosuda/subtrack/internal/report"
	"github.com/gosuda/subtrack/internal/scheduler"
)

type TotalsOutput struct {
	Body struct {
		Label        string `json:"label"`
		Subscribed   int64  `json:"subscribe_count"`
		Unsubscribed int64  `json:"unsubscribe_count"`
		Text         string `json:"text" doc:"Chat rendering of the totals"`
	}
}

type DayReportInput struct {
	Offset int `query:"offset" default:"-1" minimum:"-366" maximum:"0" doc:"Day offset from today in the report zone (0 today, -1 yesterday)"`
}

type DayReportOutput struct {
	Body struct {
		Label        string    `json:"label"`
		TimeZone     string    `json:"time_zone"`
		Date         string    `json:"date" doc:"Local date, dd.mm.yyyy"`
		Start        time.Time `json:"start" doc:"Inclusive window start"`
		End          time.Time `json:"end" doc:"Exclusive window end"`
		Subscribed   int64     `json:"subscribe_count"`
		Unsubscribed int64     `json:"unsubscribe_count"`
		Text         string    `json:"text" doc:"Chat rendering of the report"`
	}
}

type Delivery struct {
	Recipient string `json:"recipient"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RunBody describes one daily job execution.
type RunBody struct {
	RunID      string     `json:"run_id"`
	Trigger    string     `json:"trigger" doc:"schedule or manual"`
	StartedAt  time.Time  `json:"started_at"`
	Date       string     `json:"date,omitempty"`
	Text       string     `json:"text,omitempty"`
	Deliveries []Delivery `json:"deliveries"`
	Failed     int        `json:"failed"`
	Error      string     `json:"error,omitempty"`
	NextRun    time.Time  `json:"next_run"`
}

type RunOutput struct {
	Body RunBody
}

func RegisterReportRoutes(api huma.API, reports Reports, settings ReportSettings) {
	huma.Register(api, huma.Operation{
		OperationID: "get-report-totals",
		Method:      http.MethodGet,
		Path:        "/reports/totals",
		Summary:     "All-time subscription counts",
		Tags:        []string{"Reports"},
	}, func(ctx context.Context, _ *struct{}) (*TotalsOutput, error) {
		t, err := reports.Totals(ctx)
		if err != nil {
			return nil, huma.Error503ServiceUnavailable("event store unavailable", err)
		}

		out := &TotalsOutput{}
		out.Body.Label = settings.Label
		out.Body.Subscribed = t.Subscribed
		out.Body.Unsubscribed = t.Unsubscribed
		out.Body.Text = report.RenderTotals(settings.Label, t)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-day-report",
		Method:      http.MethodGet,
		Path:        "/reports/day",
		Summary:     "Counts for one local calendar day",
		Tags:        []string{"Reports"},
	}, func(ctx context.Context, input *DayReportInput) (*DayReportOutput, error) {
		r, err := reports.Report(ctx, settings.Location, settings.now(), input.Offset)
		if err != nil {
			return nil, huma.Error503ServiceUnavailable("event store unavailable", err)
		}

		out := &DayReportOutput{}
		out.Body.Label = settings.Label
		out.Body.TimeZone = settings.Location.String()
		out.Body.Date = r.DateString()
		out.Body.Start = r.Start
		out.Body.End = r.End
		out.Body.Subscribed = r.Subscribed
		out.Body.Unsubscribed = r.Unsubscribed
		if input.Offset == 0 {
			out.Body.Text = report.RenderToday(settings.Label, r)
		} else {
			out.Body.Text = report.RenderDaily(settings.Label, r)
		}
		return out, nil
	})
}

func RegisterTriggerRoutes(api huma.API, trigger ReportTrigger) {
	huma.Register(api, huma.Operation{
		OperationID:   "trigger-daily-report",
		Method:        http.MethodPost,
		Path:          "/reports/daily/trigger",
		Summary:       "Send yesterday's report to all recipients now",
		Tags:          []string{"Reports"},
		DefaultStatus: http.StatusAccepted,
	}, func(ctx context.Context, _ *struct{}) (*RunOutput, error) {
		run, err := trigger.Trigger(ctx)
		if err != nil {
			return nil, huma.Error503ServiceUnavailable("report run failed", err)
		}
		return &RunOutput{Body: toRunBody(run, trigger.Next())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-last-daily-report",
		Method:      http.MethodGet,
		Path:        "/reports/daily/last",
		Summary:     "Outcome of the most recent daily report run",
		Tags:        []string{"Reports"},
	}, func(_ context.Context, _ *struct{}) (*RunOutput, error) {
		run := trigger.LastRun()
		if run == nil {
			return nil, huma.Error404NotFound("no report run yet")
		}
		return &RunOutput{Body: toRunBody(run, trigger.Next())}, nil
	})
}

func toRunBody(run *scheduler.Run, next time.Time) RunBody {
	body := RunBody{
		RunID:      run.ID.String(),
		Trigger:    run.Trigger,
		StartedAt:  run.StartedAt,
		Text:       run.Text,
		Deliveries: make([]Delivery, 0, len(run.Deliveries)),
		Failed:     notify.Failed(run.Deliveries),
		NextRun:    next,
	}
	if run.Report != nil {
		body.Date = run.Report.DateString()
	}
	if run.Err != nil {
		body.Error = run.Err.Error()
	}
	for _, d := range run.Deliveries {
		body.Deliveries = append(body.Deliveries, toDelivery(d))
	}
	return body
}

func toDelivery(d notify.DeliveryResult) Delivery {
	out := Delivery{Recipient: d.Recipient, MessageID: string(d.MessageID)}
	if d.Err != nil {
		out.Error = d.Err.Error()
	}
	return out
}
