package evidence

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
)

const eventName = "suite.result"

// Emitter writes records to the global logger provider and keeps the
// observer counters in step. With no provider configured the global
// no-op provider swallows everything, so emission is always safe to call.
type Emitter struct {
	logger   log.Logger
	observer *Observer
}

// NewEmitter builds an emitter backed by the global logger provider.
func NewEmitter(observer *Observer) *Emitter {
	return &Emitter{
		logger:   global.GetLoggerProvider().Logger("policyharness"),
		observer: observer,
	}
}

// Emit logs the record and updates metrics.
func (e *Emitter) Emit(ctx context.Context, rec Record) error {
	attrs, err := e.log(ctx, rec)
	if err != nil {
		return err
	}
	if e.observer != nil {
		e.observer.Recorded(ctx, rec, attrs...)
	}
	return nil
}

// log emits one record: identifying attributes on the record, the full
// evidence as a JSON body.
func (e *Emitter) log(ctx context.Context, rec Record) ([]attribute.KeyValue, error) {
	record := log.Record{}
	record.SetEventName(eventName)
	record.SetTimestamp(rec.Timestamp)
	record.SetObservedTimestamp(time.Now())

	attrs := ToAttributes(rec)
	var logAttrs []log.KeyValue
	for _, attr := range attrs {
		logAttrs = append(logAttrs, log.KeyValueFromAttribute(attr))
	}
	record.AddAttributes(logAttrs...)

	jsonData, err := json.Marshal(rec)
	if err != nil {
		return attrs, err
	}
	record.SetBody(log.BytesValue(jsonData))

	e.logger.Emit(ctx, record)
	return attrs, nil
}

// ToAttributes maps a record to the attribute set shared by the log
// record and the metrics.
func ToAttributes(rec Record) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("run.id", rec.RunID),
		attribute.String("suite.benchmark", rec.Suite.Benchmark),
		attribute.String("suite.os", rec.Suite.OS),
		attribute.String("suite.version", rec.Suite.Version),
		attribute.String("policy.id", rec.PolicyID),
		attribute.String("suite.decision", rec.Decision),
	}
}
