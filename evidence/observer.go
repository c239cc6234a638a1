package evidence

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Observer owns the run metrics: suite counts, failed-rule counts, and
// scan wall-clock time.
type Observer struct {
	suitesProcessed metric.Int64Counter
	rulesFailed     metric.Int64Counter
	scanDuration    metric.Float64Histogram
}

// NewObserver registers the instruments on the meter.
func NewObserver(meter metric.Meter) (*Observer, error) {
	suites, err := meter.Int64Counter("harness.suites.processed",
		metric.WithDescription("Suites driven end to end, by decision"))
	if err != nil {
		return nil, err
	}
	failed, err := meter.Int64Counter("harness.rules.failed",
		metric.WithDescription("Validation rules that did not match the report"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("harness.scan.duration",
		metric.WithDescription("Scan wall-clock time"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &Observer{
		suitesProcessed: suites,
		rulesFailed:     failed,
		scanDuration:    duration,
	}, nil
}

// Recorded updates the instruments for one record.
func (o *Observer) Recorded(ctx context.Context, rec Record, attrs ...attribute.KeyValue) {
	opt := metric.WithAttributes(attrs...)
	o.suitesProcessed.Add(ctx, 1, opt)
	if rec.RulesFailed > 0 {
		o.rulesFailed.Add(ctx, int64(rec.RulesFailed), opt)
	}
	if rec.ScanDuration > 0 {
		o.scanDuration.Record(ctx, rec.ScanDuration.Seconds(), opt)
	}
}
