// Package scheduler fires the daily report at a fixed local time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	robcron "github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/subtrack/internal/domain"
	"github.com/gosuda/subtrack/internal/notify"
	"github.com/gosuda/subtrack/internal/report"
)

// JobName identifies the daily report job in logs.
const JobName = "daily-report"

const defaultRunTimeout = 2 * time.Minute

// ErrInvalidTime is returned for an hour or minute outside the clock range.
var ErrInvalidTime = errors.New("scheduler: invalid report time") //nolint:gochecknoglobals // sentinel error

// Reports is the query side of the job.
type Reports interface {
	Report(ctx context.Context, loc *time.Location, ref time.Time, dayOffset int) (*report.DayReport, error)
}

// Broadcaster delivers the rendered report.
type Broadcaster interface {
	Broadcast(ctx context.Context, recipients []string, text string) []notify.DeliveryResult
}

// Recorder observes job outcomes.
type Recorder interface {
	ObserveReportRun(err error)
}

// Config describes when and to whom the report is sent.
type Config struct {
	Location   *time.Location
	Hour       int
	Minute     int
	Label      string
	Recipients []string
}

// Run is the outcome of one job execution.
type Run struct {
	ID         uuid.UUID
	Trigger    string
	StartedAt  time.Time
	Report     *report.DayReport
	Text       string
	Deliveries []notify.DeliveryResult
	Err        error
}

// Scheduler owns the cron runner for the daily report job.
type Scheduler struct {
	cron     *robcron.Cron
	schedule robcron.Schedule
	spec     string
	cfg      Config
	reports  Reports
	notifier Broadcaster
	recorder Recorder
	clock    func() time.Time
	timeout  time.Duration

	mu      sync.Mutex
	baseCtx context.Context //nolint:containedctx // cron callbacks take no context
	lastRun *Run
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides time.Now as the report reference instant.
func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) { s.clock = clock }
}

// WithRecorder sets the run outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

// WithRunTimeout bounds a single job execution.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

// Spec builds the cron expression for a daily run at hour:minute in loc.
func Spec(loc *time.Location, hour, minute int) string {
	return fmt.Sprintf("CRON_TZ=%s %d %d * * *", loc.String(), minute, hour)
}

// New registers the daily job. The scheduler does not run until Start.
func New(reports Reports, notifier Broadcaster, cfg Config, opts ...Option) (*Scheduler, error) {
	if cfg.Location == nil {
		return nil, fmt.Errorf("scheduler.New: %w", domain.ErrNilLocation)
	}
	if cfg.Hour < 0 || cfg.Hour > 23 || cfg.Minute < 0 || cfg.Minute > 59 {
		return nil, fmt.Errorf("scheduler.New: %02d:%02d: %w", cfg.Hour, cfg.Minute, ErrInvalidTime)
	}

	s := &Scheduler{
		cron:     robcron.New(),
		spec:     Spec(cfg.Location, cfg.Hour, cfg.Minute),
		cfg:      cfg,
		reports:  reports,
		notifier: notifier,
		clock:    time.Now,
		timeout:  defaultRunTimeout,
		baseCtx:  context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}

	schedule, err := robcron.ParseStandard(s.spec)
	if err != nil {
		return nil, fmt.Errorf("scheduler.New: parse %q: %w", s.spec, err)
	}
	s.schedule = schedule
	s.cron.Schedule(schedule, robcron.FuncJob(func() {
		s.mu.Lock()
		ctx := s.baseCtx
		s.mu.Unlock()
		_, _ = s.run(ctx, "schedule")
	}))

	return s, nil
}

// Spec returns the cron expression of the daily job.
func (s *Scheduler) Spec() string {
	return s.spec
}

// Next returns the next scheduled run after the current clock time.
func (s *Scheduler) Next() time.Time {
	return s.schedule.Next(s.clock())
}

// LastRun returns the most recent execution, or nil.
func (s *Scheduler) LastRun() *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// Start runs the cron loop until ctx is done, then waits for a running job to finish.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	s.cron.Start()
	log.Info().Str("job", JobName).Str("spec", s.spec).Time("next", s.Next()).Msg("scheduler: started")

	<-ctx.Done()
	<-s.cron.Stop().Done()
	log.Info().Str("job", JobName).Msg("scheduler: stopped")
	return nil
}

// Trigger runs the job immediately, regardless of its schedule.
func (s *Scheduler) Trigger(ctx context.Context) (*Run, error) {
	return s.run(ctx, "manual")
}

func (s *Scheduler) run(ctx context.Context, trigger string) (*Run, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	r := &Run{ID: uuid.New(), Trigger: trigger, StartedAt: s.clock()}
	logger := log.With().Str("job", JobName).Str("run_id", r.ID.String()).Str("trigger", trigger).Logger()

	dr, err := s.reports.Report(ctx, s.cfg.Location, r.StartedAt, -1)
	if err != nil {
		r.Err = fmt.Errorf("scheduler.Scheduler.run: %w", err)
		logger.Error().Err(err).Msg("scheduler: report query failed")
		s.finish(r)
		return r, r.Err
	}
	r.Report = dr
	r.Text = report.RenderDaily(s.cfg.Label, dr)

	if len(s.cfg.Recipients) == 0 {
		logger.Warn().Msg("scheduler: no report recipients configured")
	} else {
		r.Deliveries = s.notifier.Broadcast(ctx, s.cfg.Recipients, r.Text)
	}

	logger.Info().
		Str("date", dr.DateString()).
		Int64("subscribed", dr.Subscribed).
		Int64("unsubscribed", dr.Unsubscribed).
		Int("recipients", len(s.cfg.Recipients)).
		Int("failed", notify.Failed(r.Deliveries)).
		Msg("scheduler: report sent")

	s.finish(r)
	return r, nil
}

func (s *Scheduler) finish(r *Run) {
	s.mu.Lock()
	s.lastRun = r
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.ObserveReportRun(r.Err)
	}
}
