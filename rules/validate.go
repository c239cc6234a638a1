package rules

import (
	"fmt"
	"strings"

	"github.com/msykam-r7/policy-content/xccdf"
)

// Outcome statuses for a single rule check.
const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
)

// Outcome is the comparison result for one rule.
type Outcome struct {
	Number      int
	RuleID      string
	Description string
	Expected    string
	Actual      string
	Status      string
	Message     string
}

// ReportResult aggregates a validation run.
type ReportResult struct {
	Outcomes []Outcome
	Passed   int
	Failed   int
}

// Validate checks every rule against the report. A rule id absent from the
// report is a failure, not a skip: benchmark content that silently drops a
// rule is exactly what these files exist to catch.
func Validate(rules []Rule, report *xccdf.Report) ReportResult {
	var result ReportResult
	for _, rule := range rules {
		outcome := Outcome{
			Number:      rule.Number,
			RuleID:      rule.RuleID,
			Description: rule.Description,
			Expected:    rule.Expected,
		}

		ruleResult, found := report.Result(rule.RuleID)
		switch {
		case !found:
			outcome.Actual = "NOT FOUND"
			outcome.Status = StatusFail
			outcome.Message = "rule not found in report"
		default:
			outcome.Actual = xccdf.Verdict(ruleResult.Result)
			if outcome.Actual == rule.Expected {
				outcome.Status = StatusPass
				outcome.Message = "match"
			} else {
				outcome.Status = StatusFail
				outcome.Message = fmt.Sprintf("expected %s, got %s", rule.Expected, outcome.Actual)
			}
		}

		if outcome.Status == StatusPass {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}
	return result
}

// Ok reports whether every rule passed.
func (r ReportResult) Ok() bool {
	return r.Failed == 0
}

// FailedOutcomes returns the failing subset.
func (r ReportResult) FailedOutcomes() []Outcome {
	return r.filter(StatusFail)
}

// PassedOutcomes returns the passing subset.
func (r ReportResult) PassedOutcomes() []Outcome {
	return r.filter(StatusPass)
}

func (r ReportResult) filter(status string) []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out
}

// Summary renders the run as the fixed-width table the CI logs have always
// shown.
func (r ReportResult) Summary() string {
	var b strings.Builder
	total := len(r.Outcomes)
	line := strings.Repeat("=", 80)

	fmt.Fprintf(&b, "%s\nVALIDATION SUMMARY\n%s\n", line, line)
	fmt.Fprintf(&b, "Total Rules: %d\n", total)
	fmt.Fprintf(&b, "Passed: %d\n", r.Passed)
	fmt.Fprintf(&b, "Failed: %d\n", r.Failed)
	if total > 0 {
		fmt.Fprintf(&b, "Success Rate: %.1f%%\n", float64(r.Passed)/float64(total)*100)
	}
	fmt.Fprintf(&b, "%s\n\n", line)

	fmt.Fprintf(&b, "%-4s | %-6s | %-15s | %-15s | %-30s\n", "#", "STATUS", "EXPECTED", "ACTUAL", "DESCRIPTION")
	fmt.Fprintf(&b, "%s-+-%s-+-%s-+-%s-+-%s\n",
		strings.Repeat("-", 4), strings.Repeat("-", 6), strings.Repeat("-", 15),
		strings.Repeat("-", 15), strings.Repeat("-", 30))
	for _, o := range r.Outcomes {
		desc := o.Description
		if runes := []rune(desc); len(runes) > 30 {
			desc = string(runes[:30])
		}
		fmt.Fprintf(&b, "%-4d | %-6s | %-15s | %-15s | %-30s\n",
			o.Number, o.Status, o.Expected, o.Actual, desc)
	}
	fmt.Fprintf(&b, "%s\n", line)
	return b.String()
}
