// Package xccdf models the slice of an XCCDF result document the harness
// validates against: the TestResult with its rule-result entries.
package xccdf

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// Verdicts are the human-readable forms the validation rules are written
// in. The mapping from raw XCCDF results is fixed by the rule files, so it
// lives here rather than in the rules package.
const (
	VerdictCompliant     = "COMPLIANT"
	VerdictNotCompliant  = "NOT COMPLIANT"
	VerdictNotApplicable = "NOT APPLICABLE"
	VerdictNotChecked    = "NOT CHECKED"
	VerdictNotSelected   = "NOT SELECTED"
	VerdictInformational = "INFORMATIONAL"
	VerdictError         = "ERROR"
	VerdictUnknown       = "UNKNOWN"
	VerdictFixed         = "FIXED"
)

var verdictByResult = map[string]string{
	"pass":          VerdictCompliant,
	"fail":          VerdictNotCompliant,
	"notapplicable": VerdictNotApplicable,
	"notchecked":    VerdictNotChecked,
	"notselected":   VerdictNotSelected,
	"informational": VerdictInformational,
	"error":         VerdictError,
	"unknown":       VerdictUnknown,
	"fixed":         VerdictFixed,
}

// Verdict maps a raw XCCDF result string to its verdict. Unrecognized
// results pass through upper-cased so a new console result string shows up
// verbatim in mismatch messages.
func Verdict(result string) string {
	if v, ok := verdictByResult[strings.ToLower(strings.TrimSpace(result))]; ok {
		return v
	}
	return strings.ToUpper(strings.TrimSpace(result))
}

// KnownVerdict reports whether s is one of the verdicts a rule file may
// expect.
func KnownVerdict(s string) bool {
	for _, v := range verdictByResult {
		if v == s {
			return true
		}
	}
	return false
}

// Report is a parsed XCCDF document, reduced to its rule results.
type Report struct {
	XMLName     xml.Name     `xml:"Benchmark"`
	ID          string       `xml:"id,attr"`
	TestResults []TestResult `xml:"TestResult"`
}

// TestResult is one scan's worth of rule evaluations.
type TestResult struct {
	ID          string       `xml:"id,attr"`
	StartTime   string       `xml:"start-time,attr"`
	EndTime     string       `xml:"end-time,attr"`
	RuleResults []RuleResult `xml:"rule-result"`
	Score       []Score      `xml:"score"`
}

// RuleResult is the outcome of a single rule.
type RuleResult struct {
	IDRef    string `xml:"idref,attr"`
	Severity string `xml:"severity,attr"`
	Time     string `xml:"time,attr"`
	Result   string `xml:"result"`
}

// Score is the benchmark score element.
type Score struct {
	System  string  `xml:"system,attr"`
	Maximum float64 `xml:"maximum,attr"`
	Value   float64 `xml:",chardata"`
}

// Parse decodes an XCCDF document. Namespaced and namespace-free documents
// both decode, since encoding/xml matches local names. The console emits
// full Benchmark documents, but a standalone TestResult root is accepted
// too.
func Parse(content []byte) (*Report, error) {
	var report Report
	if err := xml.Unmarshal(content, &report); err != nil {
		var tr TestResult
		type testResultDoc struct {
			XMLName xml.Name `xml:"TestResult"`
			TestResult
		}
		var doc testResultDoc
		if trErr := xml.Unmarshal(content, &doc); trErr == nil {
			tr = doc.TestResult
			return &Report{TestResults: []TestResult{tr}}, nil
		}
		return nil, fmt.Errorf("parsing xccdf document: %w", err)
	}
	if len(report.TestResults) == 0 {
		return nil, fmt.Errorf("xccdf document %q has no TestResult", report.ID)
	}
	return &report, nil
}

// Result looks up a rule-result by idref across all test results. The
// second return is false when the rule never appears in the report.
func (r *Report) Result(idref string) (RuleResult, bool) {
	for _, tr := range r.TestResults {
		for _, rr := range tr.RuleResults {
			if rr.IDRef == idref {
				return rr, true
			}
		}
	}
	return RuleResult{}, false
}

// RuleCount is the total number of rule results in the report.
func (r *Report) RuleCount() int {
	n := 0
	for _, tr := range r.TestResults {
		n += len(tr.RuleResults)
	}
	return n
}
