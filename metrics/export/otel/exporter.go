package otel

import (
	"context"
	"errors"
	"fmt"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Errors returned by NewOTelExporterFromSource.
var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() goSession.MetricsSnapshot
	AuditDroppedByType() map[string]uint64
}

// series is one engine counter observed as an attribute of its family.
type series struct {
	id         goSession.MetricID
	instrument metric.Int64ObservableCounter
	attrs      metric.MeasurementOption
}

type latency struct {
	id      goSession.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableCounter
	les     [8]metric.MeasurementOption
}

// OTelExporter publishes engine metrics as observable instruments.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	series       []series
	latency      []latency
	auditDropped metric.Int64ObservableCounter
}

// NewOTelExporter registers instruments on meter that read from engine.
func NewOTelExporter(meter metric.Meter, engine *goSession.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

// NewOTelExporterFromSource registers instruments that read from source.
//
// Counters are grouped into families keyed by a session attribute, for example
// gosession_requests_total{state="refreshed"}. Refresh latency is one gauge of
// cumulative bucket counts keyed by "le" plus a sample counter. Dropped audit
// events carry their event_type.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	exporter := &OTelExporter{source: source}
	var observables []metric.Observable

	families := make(map[string]metric.Int64ObservableCounter, len(internaldefs.Families))
	keys := make(map[string]string, len(internaldefs.Families))
	for _, f := range internaldefs.Families {
		ins, err := meter.Int64ObservableCounter(f.Name, metric.WithDescription(f.Help))
		if err != nil {
			return nil, fmt.Errorf("create counter family %s: %w", f.Name, err)
		}
		families[f.Name] = ins
		keys[f.Name] = f.Key
		observables = append(observables, ins)
	}
	for _, s := range internaldefs.Series {
		exporter.series = append(exporter.series, series{
			id:         s.ID,
			instrument: families[s.Family],
			attrs:      metric.WithAttributes(attribute.String(keys[s.Family], s.Value)),
		})
	}

	for _, def := range internaldefs.HistogramDefs {
		l := latency{id: def.ID}
		var err error
		l.buckets, err = meter.Int64ObservableGauge(def.Name+"_bucket",
			metric.WithDescription(def.Help+" Cumulative bucket counts."), metric.WithUnit("s"))
		if err != nil {
			return nil, fmt.Errorf("create bucket gauge %s: %w", def.Name, err)
		}
		l.count, err = meter.Int64ObservableCounter(def.Name+"_count",
			metric.WithDescription(def.Help+" Sample count."))
		if err != nil {
			return nil, fmt.Errorf("create sample counter %s: %w", def.Name, err)
		}
		for i, le := range internaldefs.HistogramBoundLabels {
			l.les[i] = metric.WithAttributes(attribute.String("le", le))
		}
		exporter.latency = append(exporter.latency, l)
		observables = append(observables, l.buckets, l.count)
	}

	auditDropped, err := meter.Int64ObservableCounter(
		internaldefs.AuditDroppedName,
		metric.WithDescription("Dropped audit events due to dispatcher backpressure."),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	exporter.auditDropped = auditDropped
	observables = append(observables, auditDropped)

	registration, err := meter.RegisterCallback(exporter.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	exporter.registration = registration
	return exporter, nil
}

func (e *OTelExporter) observe(_ context.Context, observer metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, s := range e.series {
		observer.ObserveInt64(s.instrument, int64(snapshot.Counters[s.id]), s.attrs)
	}
	for _, l := range e.latency {
		raw, ok := snapshot.Histograms[l.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i, v := range cumulative {
			observer.ObserveInt64(l.buckets, int64(v), l.les[i])
		}
		observer.ObserveInt64(l.count, int64(cumulative[len(cumulative)-1]))
	}
	for eventType, n := range e.source.AuditDroppedByType() {
		observer.ObserveInt64(e.auditDropped, int64(n),
			metric.WithAttributes(attribute.String("event_type", eventType)))
	}
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
