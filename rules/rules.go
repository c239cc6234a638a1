// Package rules loads CSV validation rule files and checks XCCDF reports
// against them. Rule files are maintained per benchmark under the
// validation-rules directory and pin the expected verdict for each rule
// id, optionally scoped to a severity profile.
package rules

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/msykam-r7/policy-content/xccdf"
)

// Rule is one row of a validation file.
type Rule struct {
	Number      int
	RuleID      string
	Expected    string
	Description string
	Profile     string
}

// Required CSV columns. DESCRIPTION and PROFILE are optional.
var requiredColumns = []string{"NUMBER", "RULE_ID", "EXPECTED_RESULT"}

// LoadCSV reads rules from path. When profile is non-empty only rules
// whose PROFILE column matches it (case-insensitively) are returned; an
// empty result after filtering is an error, because a suite that validates
// nothing passes vacuously.
func LoadCSV(path, profile string) ([]Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening rules file: %w", err)
	}
	defer f.Close()

	rules, err := readRules(f, profile)
	if err != nil {
		return nil, fmt.Errorf("rules file %s: %w", path, err)
	}
	return rules, nil
}

func readRules(r io.Reader, profile string) ([]Rule, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToUpper(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("missing required column %s", name)
		}
	}

	field := func(record []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rules []Rule
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		number, err := strconv.Atoi(field(record, "NUMBER"))
		if err != nil {
			return nil, fmt.Errorf("line %d: bad NUMBER: %w", line, err)
		}
		rule := Rule{
			Number:      number,
			RuleID:      field(record, "RULE_ID"),
			Expected:    strings.ToUpper(field(record, "EXPECTED_RESULT")),
			Description: field(record, "DESCRIPTION"),
			Profile:     field(record, "PROFILE"),
		}
		if rule.RuleID == "" {
			return nil, fmt.Errorf("line %d: empty RULE_ID", line)
		}
		// Bad expectations fail at load time, not at compare time.
		if !xccdf.KnownVerdict(rule.Expected) {
			return nil, fmt.Errorf("line %d: unknown expected result %q", line, rule.Expected)
		}

		if profile != "" && !strings.EqualFold(rule.Profile, profile) {
			continue
		}
		rules = append(rules, rule)
	}

	if len(rules) == 0 {
		if profile != "" {
			return nil, fmt.Errorf("no rules match profile %q", profile)
		}
		return nil, fmt.Errorf("no rules in file")
	}
	return rules, nil
}
