package evidence

import (
	"context"
	"reflect"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func testRecord() Record {
	rec := NewRecord("run-123", Suite{
		Benchmark: "CIS",
		OS:        "RHEL",
		Version:   "9",
		Kind:      "compliance",
	})
	rec.PolicyID = "cis-rhel-9-v2"
	rec.Decision = DecisionPass
	rec.RulesPassed = 10
	return rec
}

func TestNewRecord(t *testing.T) {
	rec := testRecord()
	if rec.RunID != "run-123" {
		t.Errorf("RunID = %q", rec.RunID)
	}
	if rec.Suite.Benchmark != "CIS" {
		t.Errorf("Suite = %+v", rec.Suite)
	}
	if rec.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
}

func TestAttachReport(t *testing.T) {
	rec := testRecord()
	content := []byte("<Benchmark id=\"b\"/>")

	if err := rec.AttachReport("results/reports/run-123.xml", content); err != nil {
		t.Fatalf("AttachReport() error = %v", err)
	}
	if rec.ReportPath != "results/reports/run-123.xml" {
		t.Errorf("ReportPath = %q", rec.ReportPath)
	}
	if len(rec.ReportDigest) == 0 {
		t.Fatal("ReportDigest empty")
	}

	// Same content, same digest; different content, different digest.
	other := testRecord()
	if err := other.AttachReport("elsewhere.xml", content); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(rec.ReportDigest, other.ReportDigest) {
		t.Error("digests of identical content differ")
	}

	changed := testRecord()
	if err := changed.AttachReport("elsewhere.xml", []byte("different")); err != nil {
		t.Fatal(err)
	}
	if reflect.DeepEqual(rec.ReportDigest, changed.ReportDigest) {
		t.Error("digests of different content match")
	}
}

func TestToAttributes(t *testing.T) {
	attrs := ToAttributes(testRecord())

	want := map[attribute.Key]string{
		"run.id":          "run-123",
		"suite.benchmark": "CIS",
		"suite.os":        "RHEL",
		"suite.version":   "9",
		"policy.id":       "cis-rhel-9-v2",
		"suite.decision":  DecisionPass,
	}
	if len(attrs) != len(want) {
		t.Fatalf("got %d attributes, want %d", len(attrs), len(want))
	}
	for _, attr := range attrs {
		expected, ok := want[attr.Key]
		if !ok {
			t.Errorf("unexpected attribute %s", attr.Key)
			continue
		}
		if attr.Value.AsString() != expected {
			t.Errorf("%s = %q, want %q", attr.Key, attr.Value.AsString(), expected)
		}
	}
}

func TestNewObserver(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")

	observer, err := NewObserver(meter)
	if err != nil {
		t.Fatalf("NewObserver() error = %v", err)
	}
	if observer.suitesProcessed == nil || observer.rulesFailed == nil || observer.scanDuration == nil {
		t.Error("instruments not registered")
	}
}

func TestObserverRecorded(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	observer, err := NewObserver(meter)
	if err != nil {
		t.Fatalf("NewObserver() error = %v", err)
	}

	rec := testRecord()
	rec.Decision = DecisionFail
	rec.RulesFailed = 3
	rec.ScanDuration = 42 * time.Second

	// Instruments are fire-and-forget; this must not panic, with or
	// without attributes.
	observer.Recorded(context.Background(), rec, ToAttributes(rec)...)
	observer.Recorded(context.Background(), rec)
	observer.Recorded(context.Background(), Record{})
}

func TestEmitterWithoutProvider(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	observer, err := NewObserver(meter)
	if err != nil {
		t.Fatal(err)
	}

	// The global logger provider defaults to no-op, so emission must work
	// with no telemetry configured at all.
	emitter := NewEmitter(observer)
	if err := emitter.Emit(context.Background(), testRecord()); err != nil {
		t.Errorf("Emit() error = %v", err)
	}
}

func TestEmitterNilObserver(t *testing.T) {
	emitter := NewEmitter(nil)
	if err := emitter.Emit(context.Background(), testRecord()); err != nil {
		t.Errorf("Emit() error = %v", err)
	}
}
