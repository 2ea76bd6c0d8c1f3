// Package metrics holds the Prometheus collectors for the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	registry    *prometheus.Registry
	Ingested    *prometheus.CounterVec
	Deliveries  *prometheus.CounterVec
	ReportRuns  *prometheus.CounterVec
	BotCommands *prometheus.CounterVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		Ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subtrack_webhook_events_total",
			Help: "Webhook payloads processed, by outcome (ok, ignored, failed).",
		}, []string{"status"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subtrack_report_deliveries_total",
			Help: "Report messages sent to recipients, by platform and outcome.",
		}, []string{"platform", "outcome"}),
		ReportRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subtrack_scheduled_reports_total",
			Help: "Scheduled report runs, by outcome.",
		}, []string{"outcome"}),
		BotCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subtrack_bot_commands_total",
			Help: "Chat commands handled, by command.",
		}, []string{"command"}),
	}
	reg.MustRegister(m.Ingested, m.Deliveries, m.ReportRuns, m.BotCommands)

	return m
}

// ObserveIngest implements ingest.Recorder.
func (m *Metrics) ObserveIngest(status string) {
	m.Ingested.WithLabelValues(status).Inc()
}

// ObserveDelivery implements notify.Recorder.
func (m *Metrics) ObserveDelivery(platform string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	m.Deliveries.WithLabelValues(platform, outcome).Inc()
}

// ObserveReportRun implements scheduler.Recorder.
func (m *Metrics) ObserveReportRun(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	m.ReportRuns.WithLabelValues(outcome).Inc()
}

// ObserveCommand implements bot.Recorder.
func (m *Metrics) ObserveCommand(command string) {
	m.BotCommands.WithLabelValues(command).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
