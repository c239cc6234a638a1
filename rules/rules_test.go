package rules

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleCSV = `NUMBER,RULE_ID,EXPECTED_RESULT,DESCRIPTION,PROFILE
1,rule-a,COMPLIANT,First rule,
2,rule-b,NOT COMPLIANT,Second rule,SEVERITY_CAT_I
3,rule-c,NOT APPLICABLE,Third rule,severity_cat_i
4,rule-d,COMPLIANT,Fourth rule,SEVERITY_CAT_II
`

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.csv")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadCSV(t *testing.T) {
	loaded, err := LoadCSV(writeRules(t, sampleCSV), "")
	if err != nil {
		t.Fatalf("LoadCSV() error = %v", err)
	}
	if len(loaded) != 4 {
		t.Fatalf("LoadCSV() returned %d rules, want 4", len(loaded))
	}
	if loaded[0].RuleID != "rule-a" || loaded[0].Number != 1 {
		t.Errorf("first rule = %+v", loaded[0])
	}
	if loaded[1].Expected != "NOT COMPLIANT" {
		t.Errorf("rule-b expected = %q", loaded[1].Expected)
	}
}

func TestLoadCSVProfileFilter(t *testing.T) {
	// Profile matching is case-insensitive.
	loaded, err := LoadCSV(writeRules(t, sampleCSV), "severity_cat_I")
	if err != nil {
		t.Fatalf("LoadCSV() error = %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("LoadCSV() returned %d rules, want 2", len(loaded))
	}
	for _, r := range loaded {
		if !strings.EqualFold(r.Profile, "SEVERITY_CAT_I") {
			t.Errorf("rule %s leaked through profile filter (profile %q)", r.RuleID, r.Profile)
		}
	}
}

func TestLoadCSVNoProfileMatch(t *testing.T) {
	_, err := LoadCSV(writeRules(t, sampleCSV), "SEVERITY_CAT_III")
	if err == nil {
		t.Fatal("LoadCSV() accepted a profile with no rules")
	}
	if !strings.Contains(err.Error(), "SEVERITY_CAT_III") {
		t.Errorf("error %q does not name the profile", err)
	}
}

func TestLoadCSVErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing column",
			content: "NUMBER,RULE_ID\n1,rule-a\n",
			wantErr: "EXPECTED_RESULT",
		},
		{
			name:    "unknown verdict",
			content: "NUMBER,RULE_ID,EXPECTED_RESULT\n1,rule-a,MAYBE\n",
			wantErr: "unknown expected result",
		},
		{
			name:    "bad number",
			content: "NUMBER,RULE_ID,EXPECTED_RESULT\nx,rule-a,COMPLIANT\n",
			wantErr: "bad NUMBER",
		},
		{
			name:    "empty rule id",
			content: "NUMBER,RULE_ID,EXPECTED_RESULT\n1,,COMPLIANT\n",
			wantErr: "empty RULE_ID",
		},
		{
			name:    "no rules",
			content: "NUMBER,RULE_ID,EXPECTED_RESULT\n",
			wantErr: "no rules",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCSV(writeRules(t, tt.content), "")
			if err == nil {
				t.Fatal("LoadCSV() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadCSVMissingFile(t *testing.T) {
	if _, err := LoadCSV(filepath.Join(t.TempDir(), "nope.csv"), ""); err == nil {
		t.Error("LoadCSV() succeeded for a missing file")
	}
}

func TestLoadCSVLowerCaseExpected(t *testing.T) {
	// Expected results are normalized to upper case on load.
	loaded, err := LoadCSV(writeRules(t, "NUMBER,RULE_ID,EXPECTED_RESULT\n1,rule-a,compliant\n"), "")
	if err != nil {
		t.Fatalf("LoadCSV() error = %v", err)
	}
	if loaded[0].Expected != "COMPLIANT" {
		t.Errorf("Expected = %q, want COMPLIANT", loaded[0].Expected)
	}
}
