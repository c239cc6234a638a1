// Package evidence emits suite outcomes as OpenTelemetry log records and
// metrics. Each end-to-end run produces one evidence record per suite:
// what was scanned, against which policy, what the validation decided, and
// the digest of the archived report so the record can be tied back to the
// exact artifact.
package evidence

import (
	"crypto"
	"time"

	"github.com/in-toto/go-witness/cryptoutil"
)

// Decisions for a suite run.
const (
	DecisionPass  = "pass"
	DecisionFail  = "fail"
	DecisionError = "error"
)

// Suite identifies what a record is about.
type Suite struct {
	Benchmark string `json:"benchmark"`
	OS        string `json:"os"`
	Version   string `json:"version"`
	Kind      string `json:"kind"`
	Profile   string `json:"profile,omitempty"`
}

// Record is one suite outcome.
type Record struct {
	RunID     string    `json:"runId"`
	Timestamp time.Time `json:"timestamp"`
	Suite     Suite     `json:"suite"`

	PolicyID    string `json:"policyId"`
	BenchmarkID string `json:"benchmarkId"`
	SiteID      int    `json:"siteId,omitempty"`
	ScanID      int    `json:"scanId,omitempty"`

	Decision    string `json:"decision"`
	RulesPassed int    `json:"rulesPassed"`
	RulesFailed int    `json:"rulesFailed"`
	Detail      string `json:"detail,omitempty"`

	ScanDuration time.Duration `json:"scanDuration,omitempty"`

	ReportPath   string               `json:"reportPath,omitempty"`
	ReportDigest cryptoutil.DigestSet `json:"reportDigest,omitempty"`
}

// NewRecord starts a record for a suite with the observation timestamp
// set.
func NewRecord(runID string, suite Suite) Record {
	return Record{
		RunID:     runID,
		Timestamp: time.Now(),
		Suite:     suite,
	}
}

// AttachReport records the archived report location and its digest.
func (r *Record) AttachReport(path string, content []byte) error {
	digests, err := cryptoutil.CalculateDigestSetFromBytes(content,
		[]cryptoutil.DigestValue{{Hash: crypto.SHA256}})
	if err != nil {
		return err
	}
	r.ReportPath = path
	r.ReportDigest = digests
	return nil
}
