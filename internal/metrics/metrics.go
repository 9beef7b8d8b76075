// Package metrics exposes Prometheus collectors for sync runs, per-event
// outcomes, spreadsheet loads and calendar backend calls.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"sheetcal/internal/model"
	"sheetcal/internal/reconcile"
)

const namespace = "sheetcal"

// Metrics holds the collectors. A nil *Metrics records nothing.
type Metrics struct {
	outcomes     *prometheus.CounterVec
	syncRuns     *prometheus.CounterVec
	lastSync     *prometheus.GaugeVec
	fetchLatency *prometheus.HistogramVec
	callLatency  *prometheus.HistogramVec
}

// MustNew registers the collectors with reg, or the default registerer
// when reg is nil. Registration errors panic.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "events_total",
			Help:      "Events processed by the reconciler, by outcome.",
		}, []string{"outcome"}),
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Completed sync runs by source and status.",
		}, []string{"source", "status"}),
		lastSync: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sync_timestamp_seconds",
			Help:      "Unix time of the last successful sync per source.",
		}, []string{"source"}),
		fetchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sheets",
			Name:      "fetch_duration_seconds",
			Help:      "Latency of spreadsheet loads by source kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind", "status"}),
		callLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "calendar",
			Name:      "call_duration_seconds",
			Help:      "Latency of calendar backend calls by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "status"}),
	}
	reg.MustRegister(m.outcomes, m.syncRuns, m.lastSync, m.fetchLatency, m.callLatency)
	return m
}

var _ reconcile.Observer = (*Metrics)(nil)

func (m *Metrics) ObserveOutcome(o reconcile.Outcome) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(string(o)).Inc()
}

// ObserveSync records the end of a sync run of source.
func (m *Metrics) ObserveSync(source string, res model.SyncResult, err error) {
	if m == nil {
		return
	}
	status := "ok"
	switch {
	case err != nil:
		status = "error"
	case res.Failed > 0:
		status = "partial"
	}
	m.syncRuns.WithLabelValues(source, status).Inc()
	if err == nil {
		m.lastSync.WithLabelValues(source).SetToCurrentTime()
	}
}

// ObserveFetch records one spreadsheet load.
func (m *Metrics) ObserveFetch(kind string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.fetchLatency.WithLabelValues(kind, statusOf(err)).Observe(d.Seconds())
}

func (m *Metrics) observeCall(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.callLatency.WithLabelValues(op, statusOf(err)).Observe(time.Since(start).Seconds())
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Instrument wraps cal so every call is timed. The result implements
// reconcile.KeyFinder exactly when cal does.
func (m *Metrics) Instrument(cal reconcile.Calendar) reconcile.Calendar {
	if m == nil {
		return cal
	}
	base := &timedCalendar{cal: cal, m: m}
	if finder, ok := cal.(reconcile.KeyFinder); ok {
		return &timedKeyCalendar{timedCalendar: base, finder: finder}
	}
	return base
}

type timedCalendar struct {
	cal reconcile.Calendar
	m   *Metrics
}

func (t *timedCalendar) ListEventsForDay(ctx context.Context, day time.Time) ([]model.ExistingEvent, error) {
	start := time.Now()
	out, err := t.cal.ListEventsForDay(ctx, day)
	t.m.observeCall("list", start, err)
	return out, err
}

func (t *timedCalendar) CreateEvent(ctx context.Context, p model.EventPayload) (string, error) {
	start := time.Now()
	id, err := t.cal.CreateEvent(ctx, p)
	t.m.observeCall("create", start, err)
	return id, err
}

func (t *timedCalendar) UpdateEvent(ctx context.Context, id string, p model.EventPayload) error {
	start := time.Now()
	err := t.cal.UpdateEvent(ctx, id, p)
	t.m.observeCall("update", start, err)
	return err
}

func (t *timedCalendar) DeleteEvent(ctx context.Context, id string) error {
	start := time.Now()
	err := t.cal.DeleteEvent(ctx, id)
	t.m.observeCall("delete", start, err)
	return err
}

type timedKeyCalendar struct {
	*timedCalendar
	finder reconcile.KeyFinder
}

func (t *timedKeyCalendar) FindByKey(ctx context.Context, key string) (model.ExistingEvent, bool, error) {
	start := time.Now()
	ex, ok, err := t.finder.FindByKey(ctx, key)
	t.m.observeCall("find", start, err)
	return ex, ok, err
}
