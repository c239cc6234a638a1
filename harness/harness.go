// Package harness drives the console end to end: resolve credentials and
// policy, create a scan template and site, run and monitor the scan,
// generate and download the XCCDF report, and validate it against the
// suite's rule file.
package harness

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/msykam-r7/policy-content/credentials"
	"github.com/msykam-r7/policy-content/evidence"
	"github.com/msykam-r7/policy-content/internal/config"
	"github.com/msykam-r7/policy-content/nexpose"
	"github.com/msykam-r7/policy-content/policy"
	"github.com/msykam-r7/policy-content/rules"
	"github.com/msykam-r7/policy-content/xccdf"
)

// Suite is one benchmark/OS/version combination to verify.
type Suite struct {
	Name      string `yaml:"name"`
	Benchmark string `yaml:"benchmark"`
	OS        string `yaml:"os"`
	Version   string `yaml:"version"`
	// Kind selects the compliance or not-compliance target VM.
	Kind string `yaml:"kind"`
	// Services lists the credential kinds to attach to the site (server,
	// database).
	Services []string `yaml:"services"`
	// Profile optionally filters the rule file (e.g. SEVERITY_CAT_I).
	Profile string `yaml:"profile"`
	// Rules overrides the derived rule-file path.
	Rules string `yaml:"rules"`
	// PolicyVersion pins a policy version; empty means newest
	// non-deprecated.
	PolicyVersion string `yaml:"policyVersion"`
}

func (s *Suite) applyDefaults() {
	if s.Kind == "" {
		s.Kind = credentials.KindCompliance
	}
	if len(s.Services) == 0 {
		s.Services = []string{credentials.ServiceServer}
	}
	if s.Name == "" {
		s.Name = fmt.Sprintf("%s-%s-%s", s.Benchmark, s.OS, s.Version)
	}
}

// Label is the suite's display name.
func (s Suite) Label() string {
	return s.Name
}

type suitesFile struct {
	Suites []Suite `yaml:"suites"`
}

// LoadSuites reads the suites file and applies per-suite defaults.
func LoadSuites(path string) ([]Suite, error) {
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading suites file: %w", err)
	}
	var f suitesFile
	if err := yaml.Unmarshal(content, &f); err != nil {
		return nil, fmt.Errorf("parsing suites file %s: %w", path, err)
	}
	if len(f.Suites) == 0 {
		return nil, fmt.Errorf("suites file %s defines no suites", path)
	}
	for i := range f.Suites {
		s := &f.Suites[i]
		if s.Benchmark == "" || s.OS == "" || s.Version == "" {
			return nil, fmt.Errorf("suite %d: benchmark, os, and version are required", i+1)
		}
		s.applyDefaults()
	}
	return f.Suites, nil
}

// SuiteResult is the outcome of one suite.
type SuiteResult struct {
	Suite        Suite
	Policy       policy.Entry
	SiteID       int
	ScanID       int
	ScanDuration time.Duration
	ReportPath   string
	Validation   rules.ReportResult
	Err          error
}

// Ok reports whether the suite ran clean: no orchestration error and no
// failed rules.
func (r SuiteResult) Ok() bool {
	return r.Err == nil && r.Validation.Ok()
}

// Harness wires the pieces together for a run.
type Harness struct {
	cfg     *config.Config
	client  *nexpose.Client
	creds   credentials.Provider
	catalog *policy.Catalog
	monitor *Monitor
	emitter *evidence.Emitter
	runID   string
}

// New assembles a harness. The run id tags every console resource and
// evidence record produced by this invocation.
func New(cfg *config.Config, client *nexpose.Client, creds credentials.Provider,
	catalog *policy.Catalog, emitter *evidence.Emitter) *Harness {
	return &Harness{
		cfg:     cfg,
		client:  client,
		creds:   creds,
		catalog: catalog,
		monitor: NewMonitor(client, cfg.Retry.Interval, cfg.Timeouts.Scan, cfg.Retry.MaxRetries),
		emitter: emitter,
		runID:   uuid.NewString(),
	}
}

// RunID returns this invocation's identifier.
func (h *Harness) RunID() string { return h.runID }

// Run executes the suites, bounded by the configured worker count. All
// suites run to completion; the error joins per-suite failures so a broken
// suite doesn't mask results from the others.
func (h *Harness) Run(ctx context.Context, suites []Suite) ([]SuiteResult, error) {
	if err := h.client.Login(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if err := h.client.Logout(context.Background()); err != nil {
			log.Printf("logout: %v", err)
		}
	}()

	results := make([]SuiteResult, len(suites))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(h.cfg.ParallelWorkers)

	for i := range suites {
		eg.Go(func() error {
			results[i] = h.RunSuite(egCtx, suites[i])
			// Suite failures are carried in the result, not returned:
			// returning would cancel sibling suites.
			return nil
		})
	}
	err := eg.Wait()

	for i := range results {
		if results[i].Err != nil {
			err = errors.Join(err, fmt.Errorf("suite %s: %w", results[i].Suite.Label(), results[i].Err))
		}
	}
	return results, err
}

// RunSuite drives one suite end to end. Console resources created along
// the way are torn down per the cleanup configuration.
func (h *Harness) RunSuite(ctx context.Context, suite Suite) SuiteResult {
	suite.applyDefaults()
	result := SuiteResult{Suite: suite}
	rec := evidence.NewRecord(h.runID, evidence.Suite{
		Benchmark: suite.Benchmark,
		OS:        suite.OS,
		Version:   suite.Version,
		Kind:      suite.Kind,
		Profile:   suite.Profile,
	})
	// Evidence still has to go out when ctx died mid-suite.
	defer h.emit(context.WithoutCancel(ctx), &rec, &result)

	log.Printf("suite %s: starting (run %s)", suite.Label(), h.runID)

	// Resolve inputs before touching the console.
	ruleSet, err := rules.LoadCSV(h.rulesPath(suite), suite.Profile)
	if err != nil {
		result.Err = err
		return result
	}
	credSet, err := credentials.LookupSet(ctx, h.creds, credentials.Query{
		Benchmark: suite.Benchmark,
		OS:        suite.OS,
		Version:   suite.Version,
		Kind:      suite.Kind,
	}, suite.Services...)
	if err != nil {
		result.Err = err
		return result
	}
	entry, err := h.catalog.Resolve(suite.Benchmark, suite.OS, suite.PolicyVersion)
	if err != nil {
		result.Err = err
		return result
	}
	result.Policy = entry
	rec.PolicyID = entry.NaturalID
	rec.BenchmarkID = entry.BenchmarkID

	// Scan template.
	templatePayload, err := os.ReadFile(filepath.Join(h.cfg.Dirs.Payloads, "scan_template.json"))
	if err != nil {
		result.Err = fmt.Errorf("reading scan template payload: %w", err)
		return result
	}
	templateName := fmt.Sprintf("%s-%s", suite.Label(), h.shortRunID())
	templateID, err := h.client.CreateScanTemplate(ctx, templatePayload, templateName, entry.BenchmarkID)
	if err != nil {
		result.Err = err
		return result
	}
	defer h.cleanup("scan template "+templateID, func(ctx context.Context) error {
		return h.client.DeleteScanTemplate(ctx, templateID)
	})

	// Site.
	site := h.buildSite(suite, templateID, credSet)
	siteID, err := h.client.SaveSite(ctx, site)
	if err != nil {
		result.Err = err
		return result
	}
	result.SiteID = siteID
	rec.SiteID = siteID
	defer h.cleanup(fmt.Sprintf("site %d", siteID), func(ctx context.Context) error {
		return h.client.DeleteSite(ctx, siteID)
	})

	// Scan.
	scanID, err := h.client.StartScan(ctx, siteID)
	if err != nil {
		result.Err = err
		return result
	}
	result.ScanID = scanID
	rec.ScanID = scanID
	log.Printf("suite %s: scan %d running against site %d", suite.Label(), scanID, siteID)

	scanStart := time.Now()
	if _, err := h.monitor.WaitForScan(ctx, scanID); err != nil {
		if stopErr := h.client.StopScan(context.Background(), scanID); stopErr != nil {
			log.Printf("suite %s: stopping scan %d: %v", suite.Label(), scanID, stopErr)
		}
		result.Err = err
		return result
	}
	result.ScanDuration = time.Since(scanStart)
	rec.ScanDuration = result.ScanDuration

	// Report.
	reportPayload, err := os.ReadFile(filepath.Join(h.cfg.Dirs.Payloads, "xccdf_report.json"))
	if err != nil {
		result.Err = fmt.Errorf("reading report payload: %w", err)
		return result
	}
	reportName := fmt.Sprintf("%s-%s", suite.Label(), uuid.NewString())
	cfgID, err := h.client.GenerateReport(ctx, reportPayload, nexpose.ReportRequest{
		Name:            reportName,
		SiteID:          siteID,
		PolicyNaturalID: entry.NaturalID,
	})
	if err != nil {
		result.Err = err
		return result
	}
	defer h.cleanup(fmt.Sprintf("report config %d", cfgID), func(ctx context.Context) error {
		return h.client.DeleteReportConfig(ctx, cfgID)
	})

	summary, err := h.monitor.WaitForReport(ctx, cfgID)
	if err != nil {
		result.Err = err
		return result
	}
	content, err := h.client.DownloadReport(ctx, summary)
	if err != nil {
		result.Err = err
		return result
	}

	reportPath, err := h.archiveReport(reportName, content)
	if err != nil {
		result.Err = err
		return result
	}
	result.ReportPath = reportPath
	if err := rec.AttachReport(reportPath, content); err != nil {
		log.Printf("suite %s: digesting report: %v", suite.Label(), err)
	}

	// Validate.
	report, err := xccdf.Parse(content)
	if err != nil {
		result.Err = err
		return result
	}
	result.Validation = rules.Validate(ruleSet, report)
	rec.RulesPassed = result.Validation.Passed
	rec.RulesFailed = result.Validation.Failed

	log.Printf("suite %s: %d passed, %d failed", suite.Label(), result.Validation.Passed, result.Validation.Failed)
	return result
}

// rulesPath derives the rule-file location when the suite doesn't name
// one: <validationRules>/<benchmark>_<os>_<version>.csv, lower case.
func (h *Harness) rulesPath(suite Suite) string {
	if suite.Rules != "" {
		return suite.Rules
	}
	name := strings.ToLower(fmt.Sprintf("%s_%s_%s.csv", suite.Benchmark, suite.OS, suite.Version))
	name = strings.ReplaceAll(name, " ", "_")
	return filepath.Join(h.cfg.Dirs.ValidationRules, name)
}

// serviceProtocols maps credential service kinds to the console service
// names used in site credentials.
var serviceProtocols = map[string]string{
	credentials.ServiceServer:   "ssh",
	credentials.ServiceDatabase: "postgresql",
}

func (h *Harness) buildSite(suite Suite, templateID string, credSet map[string]credentials.Credential) nexpose.Site {
	site := nexpose.Site{
		Name:        fmt.Sprintf("%s-%s", suite.Label(), h.shortRunID()),
		Description: fmt.Sprintf("policy-content run %s", h.runID),
		ScanConfig:  nexpose.ScanConfig{TemplateID: templateID},
	}

	seen := map[string]bool{}
	siteCreds := &nexpose.SiteCredentials{}
	for service, cred := range credSet {
		if !seen[cred.IP] {
			seen[cred.IP] = true
			site.Hosts = append(site.Hosts, cred.IP)
		}
		protocol := serviceProtocols[service]
		if protocol == "" {
			protocol = service
		}
		siteCreds.Admin = append(siteCreds.Admin, nexpose.AdminCredential{
			Service:  protocol,
			Host:     cred.IP,
			UserID:   cred.Username,
			Password: cred.Password,
		})
	}
	site.Credentials = siteCreds
	return site
}

func (h *Harness) archiveReport(name string, content []byte) (string, error) {
	dir := h.cfg.Dirs.Reports
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	formatted, err := xccdf.Format(content)
	if err != nil {
		// Archive the raw body anyway; a malformed report is still
		// evidence.
		log.Printf("formatting report %s: %v", name, err)
		formatted = content
	}
	path := filepath.Join(dir, name+".xml")
	if err := os.WriteFile(path, formatted, 0o640); err != nil {
		return "", err
	}
	return path, nil
}

// cleanup tears a console resource down unless the configuration says to
// keep it (debug runs inspect leftovers by hand).
func (h *Harness) cleanup(what string, fn func(ctx context.Context) error) {
	if h.cfg.Cleanup.Skip || !h.cfg.Cleanup.AutoDeleteResources {
		log.Printf("cleanup skipped for %s", what)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.Timeouts.Default)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Printf("cleanup %s: %v", what, err)
	}
}

func (h *Harness) emit(ctx context.Context, rec *evidence.Record, result *SuiteResult) {
	switch {
	case result.Err != nil:
		rec.Decision = evidence.DecisionError
		rec.Detail = result.Err.Error()
	case result.Validation.Failed > 0:
		rec.Decision = evidence.DecisionFail
	default:
		rec.Decision = evidence.DecisionPass
	}
	if h.emitter == nil {
		return
	}
	if err := h.emitter.Emit(ctx, *rec); err != nil {
		log.Printf("emitting evidence for suite %s: %v", result.Suite.Label(), err)
	}
}

func (h *Harness) shortRunID() string {
	if len(h.runID) >= 8 {
		return h.runID[:8]
	}
	return h.runID
}
