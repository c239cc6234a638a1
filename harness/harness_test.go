package harness

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/msykam-r7/policy-content/credentials"
	"github.com/msykam-r7/policy-content/internal/config"
	"github.com/msykam-r7/policy-content/nexpose"
	"github.com/msykam-r7/policy-content/policy"
)

func TestLoadSuites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suites.yaml")
	content := `suites:
  - benchmark: CIS
    os: RHEL
    version: "9"
  - name: disa-cat1
    benchmark: DISA
    os: RHEL
    version: "9"
    kind: not_compliance
    services: [server, database]
    profile: SEVERITY_CAT_I
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	suites, err := LoadSuites(path)
	if err != nil {
		t.Fatalf("LoadSuites() error = %v", err)
	}
	if len(suites) != 2 {
		t.Fatalf("LoadSuites() returned %d suites", len(suites))
	}

	first := suites[0]
	if first.Name != "CIS-RHEL-9" {
		t.Errorf("derived name = %q", first.Name)
	}
	if first.Kind != credentials.KindCompliance {
		t.Errorf("default kind = %q", first.Kind)
	}
	if len(first.Services) != 1 || first.Services[0] != credentials.ServiceServer {
		t.Errorf("default services = %v", first.Services)
	}

	second := suites[1]
	if second.Name != "disa-cat1" || second.Kind != "not_compliance" {
		t.Errorf("suite = %+v", second)
	}
	if len(second.Services) != 2 {
		t.Errorf("services = %v", second.Services)
	}
}

func TestLoadSuitesErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no suites", "suites: []\n"},
		{"missing version", "suites:\n  - benchmark: CIS\n    os: RHEL\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "suites.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadSuites(path); err == nil {
				t.Error("LoadSuites() accepted a bad suites file")
			}
		})
	}
}

func TestRulesPath(t *testing.T) {
	h := &Harness{cfg: &config.Config{Dirs: config.Dirs{ValidationRules: "data/rules"}}}

	got := h.rulesPath(Suite{Benchmark: "CIS", OS: "RHEL", Version: "9"})
	if got != filepath.Join("data/rules", "cis_rhel_9.csv") {
		t.Errorf("rulesPath() = %q", got)
	}

	// Spaces in version strings become underscores.
	got = h.rulesPath(Suite{Benchmark: "CIS", OS: "Windows Server", Version: "2022"})
	if got != filepath.Join("data/rules", "cis_windows_server_2022.csv") {
		t.Errorf("rulesPath() = %q", got)
	}

	got = h.rulesPath(Suite{Rules: "custom/rules.csv"})
	if got != "custom/rules.csv" {
		t.Errorf("rulesPath() override = %q", got)
	}
}

func TestBuildSite(t *testing.T) {
	h := &Harness{cfg: &config.Config{}, runID: "0123456789abcdef"}
	suite := Suite{Name: "cis-rhel-9", Benchmark: "CIS", OS: "RHEL", Version: "9"}
	credSet := map[string]credentials.Credential{
		credentials.ServiceServer:   {IP: "10.0.0.5", Username: "root", Password: "pw"},
		credentials.ServiceDatabase: {IP: "10.0.0.5", Username: "dba", Password: "dbpw"},
	}

	site := h.buildSite(suite, "tpl-1", credSet)

	// Both services point at the same VM: one host, two credentials.
	if len(site.Hosts) != 1 || site.Hosts[0] != "10.0.0.5" {
		t.Errorf("hosts = %v", site.Hosts)
	}
	if len(site.Credentials.Admin) != 2 {
		t.Fatalf("credentials = %+v", site.Credentials.Admin)
	}
	protocols := map[string]string{}
	for _, cred := range site.Credentials.Admin {
		protocols[cred.Service] = cred.UserID
	}
	if protocols["ssh"] != "root" {
		t.Errorf("ssh credential = %q", protocols["ssh"])
	}
	if protocols["postgresql"] != "dba" {
		t.Errorf("postgresql credential = %q", protocols["postgresql"])
	}
	if site.ScanConfig.TemplateID != "tpl-1" {
		t.Errorf("template id = %q", site.ScanConfig.TemplateID)
	}
	if !strings.HasPrefix(site.Name, "cis-rhel-9-01234567") {
		t.Errorf("site name = %q", site.Name)
	}
}

// staticCreds answers every lookup with the same VM.
type staticCreds struct{}

func (staticCreds) Lookup(_ context.Context, _ credentials.Query) (credentials.Credential, error) {
	return credentials.Credential{IP: "10.0.0.5", Username: "root", Password: "pw"}, nil
}

const e2eReport = `<Benchmark id="xccdf_cis_v2">
  <TestResult id="tr-1">
    <rule-result idref="rule-a"><result>pass</result></rule-result>
    <rule-result idref="rule-b"><result>fail</result></rule-result>
  </TestResult>
</Benchmark>`

// consoleStub is a happy-path console: every scan finishes immediately and
// every report generates on the first poll.
func consoleStub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/1.1/xml", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body := string(raw)
		switch {
		case strings.Contains(body, "<LoginRequest"):
			fmt.Fprint(w, `<LoginResponse success="1" session-id="s-1"/>`)
		case strings.Contains(body, "<LogoutRequest"):
			fmt.Fprint(w, `<LogoutResponse success="1"/>`)
		case strings.Contains(body, "<SiteSaveRequest"):
			fmt.Fprint(w, `<SiteSaveResponse success="1" site-id="5"/>`)
		case strings.Contains(body, "<SiteDeleteRequest"):
			fmt.Fprint(w, `<SiteDeleteResponse success="1"/>`)
		case strings.Contains(body, "<SiteScanRequest"):
			fmt.Fprint(w, `<SiteScanResponse success="1"><Scan scan-id="9" engine-id="3"/></SiteScanResponse>`)
		case strings.Contains(body, "<ScanStatusRequest"):
			fmt.Fprint(w, `<ScanStatusResponse success="1" scan-id="9" status="finished"/>`)
		case strings.Contains(body, "<ScanStopRequest"):
			fmt.Fprint(w, `<ScanStopResponse success="1"/>`)
		case strings.Contains(body, "<ReportSaveRequest"):
			fmt.Fprint(w, `<ReportSaveResponse success="1" reportcfg-id="11"/>`)
		case strings.Contains(body, "<ReportListingRequest"):
			fmt.Fprint(w, `<ReportListingResponse success="1">`+
				`<ReportConfigSummary cfg-id="11" status="Generated" report-URI="/reports/11/report.xml"/>`+
				`</ReportListingResponse>`)
		case strings.Contains(body, "<ReportDeleteRequest"):
			fmt.Fprint(w, `<ReportDeleteResponse success="1"/>`)
		default:
			fmt.Fprint(w, `<Failure><Message>unknown request</Message></Failure>`)
		}
	})
	mux.HandleFunc("/api/3/scan_templates", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"id":"tpl-1"}`)
	})
	mux.HandleFunc("/api/3/scan_templates/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{}`)
	})
	mux.HandleFunc("/api/3/scans/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"id":9,"status":"finished","assets":1}`)
	})
	mux.HandleFunc("/reports/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, e2eReport)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func e2eHarness(t *testing.T, rulesCSV string) *Harness {
	t.Helper()
	root := t.TempDir()
	payloads := filepath.Join(root, "payloads")
	rulesDir := filepath.Join(root, "rules")
	for _, dir := range []string{payloads, rulesDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatal(err)
		}
	}
	files := map[string]string{
		filepath.Join(payloads, "scan_template.json"): `{"name":"tpl","policy":{"enabled":[""]}}`,
		filepath.Join(payloads, "xccdf_report.json"):  `{"generate_now":"1","report_config":{"format":"xccdf-xml"}}`,
		filepath.Join(rulesDir, "cis_rhel_9.csv"):     rulesCSV,
	}
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	cfg := &config.Config{
		Environment: "test",
		Console:     config.Console{Host: "stub", Password: "pw"},
		Timeouts:    config.Timeouts{Default: 5 * time.Second, Scan: 5 * time.Second},
		Retry:       config.Retry{MaxRetries: 3, Interval: time.Millisecond},
		Dirs: config.Dirs{
			Payloads:        payloads,
			ValidationRules: rulesDir,
			Reports:         filepath.Join(root, "reports"),
		},
		Cleanup:         config.Cleanup{AutoDeleteResources: true},
		ParallelWorkers: 2,
	}

	srv := consoleStub(t)
	client := nexpose.NewClient(nexpose.Options{
		BaseURL:       srv.URL,
		Username:      "nxadmin",
		Password:      "pw",
		Timeout:       5 * time.Second,
		MaxRetries:    3,
		RetryInterval: time.Millisecond,
	})
	catalog := &policy.Catalog{Policies: []policy.Entry{{
		NaturalID:   "cis-rhel-9-v2",
		BenchmarkID: "xccdf_cis_v2",
		Benchmark:   "CIS",
		OS:          "RHEL",
		Version:     "2.0.0",
	}}}
	return New(cfg, client, staticCreds{}, catalog, nil)
}

func TestRunEndToEnd(t *testing.T) {
	rulesCSV := "NUMBER,RULE_ID,EXPECTED_RESULT\n1,rule-a,COMPLIANT\n2,rule-b,NOT COMPLIANT\n"
	h := e2eHarness(t, rulesCSV)

	results, err := h.Run(context.Background(), []Suite{{Benchmark: "CIS", OS: "RHEL", Version: "9"}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results", len(results))
	}

	result := results[0]
	if !result.Ok() {
		t.Fatalf("suite failed: err=%v validation=%+v", result.Err, result.Validation.Outcomes)
	}
	if result.SiteID != 5 || result.ScanID != 9 {
		t.Errorf("site/scan = %d/%d", result.SiteID, result.ScanID)
	}
	if result.Policy.NaturalID != "cis-rhel-9-v2" {
		t.Errorf("policy = %+v", result.Policy)
	}
	if result.Validation.Passed != 2 || result.Validation.Failed != 0 {
		t.Errorf("validation = %d/%d", result.Validation.Passed, result.Validation.Failed)
	}

	// The formatted report landed in the archive.
	content, err := os.ReadFile(result.ReportPath)
	if err != nil {
		t.Fatalf("reading archived report: %v", err)
	}
	if !strings.Contains(string(content), "rule-a") {
		t.Errorf("archived report content: %s", content)
	}
}

func TestRunEndToEndRuleMismatch(t *testing.T) {
	// rule-b fails in the report but the rule file expects compliance.
	rulesCSV := "NUMBER,RULE_ID,EXPECTED_RESULT\n1,rule-a,COMPLIANT\n2,rule-b,COMPLIANT\n"
	h := e2eHarness(t, rulesCSV)

	results, err := h.Run(context.Background(), []Suite{{Benchmark: "CIS", OS: "RHEL", Version: "9"}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	result := results[0]
	if result.Err != nil {
		t.Fatalf("orchestration error: %v", result.Err)
	}
	if result.Ok() {
		t.Error("Ok() = true despite a rule mismatch")
	}
	if result.Validation.Failed != 1 {
		t.Errorf("failed = %d, want 1", result.Validation.Failed)
	}
}

func TestRunEndToEndMissingRuleFile(t *testing.T) {
	h := e2eHarness(t, "NUMBER,RULE_ID,EXPECTED_RESULT\n1,rule-a,COMPLIANT\n")

	// The suite derives a rule path that does not exist.
	results, err := h.Run(context.Background(), []Suite{{Benchmark: "CIS", OS: "Ubuntu", Version: "22"}})
	if err == nil {
		t.Fatal("Run() reported no error for a suite without rules")
	}
	if results[0].Err == nil {
		t.Error("suite result carries no error")
	}
}
