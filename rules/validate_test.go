package rules

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/msykam-r7/policy-content/xccdf"
)

const validationReport = `<Benchmark id="bench">
  <TestResult id="tr">
    <rule-result idref="rule-a"><result>pass</result></rule-result>
    <rule-result idref="rule-b"><result>fail</result></rule-result>
    <rule-result idref="rule-c"><result>notapplicable</result></rule-result>
  </TestResult>
</Benchmark>`

func parseReport(t *testing.T) *xccdf.Report {
	t.Helper()
	report, err := xccdf.Parse([]byte(validationReport))
	if err != nil {
		t.Fatal(err)
	}
	return report
}

func TestValidate(t *testing.T) {
	ruleSet := []Rule{
		{Number: 1, RuleID: "rule-a", Expected: "COMPLIANT"},
		{Number: 2, RuleID: "rule-b", Expected: "COMPLIANT"},
		{Number: 3, RuleID: "rule-c", Expected: "NOT APPLICABLE"},
		{Number: 4, RuleID: "rule-missing", Expected: "COMPLIANT"},
	}

	result := Validate(ruleSet, parseReport(t))

	if result.Passed != 2 || result.Failed != 2 {
		t.Fatalf("passed/failed = %d/%d, want 2/2", result.Passed, result.Failed)
	}
	if result.Ok() {
		t.Error("Ok() = true with failures present")
	}

	byID := make(map[string]Outcome)
	for _, o := range result.Outcomes {
		byID[o.RuleID] = o
	}

	if got := byID["rule-a"]; got.Status != StatusPass || got.Actual != "COMPLIANT" {
		t.Errorf("rule-a outcome = %+v", got)
	}
	if got := byID["rule-b"]; got.Status != StatusFail || got.Actual != "NOT COMPLIANT" {
		t.Errorf("rule-b outcome = %+v", got)
	}
	if !strings.Contains(byID["rule-b"].Message, "expected COMPLIANT") {
		t.Errorf("rule-b message = %q", byID["rule-b"].Message)
	}
	if got := byID["rule-missing"]; got.Status != StatusFail || got.Actual != "NOT FOUND" {
		t.Errorf("rule-missing outcome = %+v", got)
	}
}

func TestValidateAllPass(t *testing.T) {
	result := Validate([]Rule{{Number: 1, RuleID: "rule-a", Expected: "COMPLIANT"}}, parseReport(t))
	if !result.Ok() {
		t.Errorf("Ok() = false: %+v", result.Outcomes)
	}
	if len(result.FailedOutcomes()) != 0 {
		t.Error("FailedOutcomes() not empty")
	}
	if len(result.PassedOutcomes()) != 1 {
		t.Error("PassedOutcomes() missing the pass")
	}
}

func TestSummary(t *testing.T) {
	ruleSet := []Rule{
		{Number: 1, RuleID: "rule-a", Expected: "COMPLIANT", Description: "A very long description that should be truncated at thirty characters"},
		{Number: 2, RuleID: "rule-b", Expected: "COMPLIANT"},
	}
	result := Validate(ruleSet, parseReport(t))
	summary := result.Summary()

	for _, want := range []string{"VALIDATION SUMMARY", "Total Rules: 2", "Passed: 1", "Failed: 1", "Success Rate: 50.0%"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
	if strings.Contains(summary, "thirty characters") {
		t.Error("summary did not truncate the long description")
	}
}

func TestSummaryTruncatesOnRunes(t *testing.T) {
	// 40 two-byte runes; byte-based slicing would cut one in half.
	desc := strings.Repeat("é", 40)
	result := Validate([]Rule{{Number: 1, RuleID: "rule-a", Expected: "COMPLIANT", Description: desc}}, parseReport(t))
	summary := result.Summary()

	if !utf8.ValidString(summary) {
		t.Error("summary is not valid UTF-8")
	}
	if !strings.Contains(summary, strings.Repeat("é", 30)) {
		t.Error("summary lost the truncated description")
	}
	if strings.Contains(summary, strings.Repeat("é", 31)) {
		t.Error("summary kept more than 30 characters")
	}
}
