// Package policy tracks which benchmark policy versions the console
// content ships and which of them are deprecated. The harness refuses to
// pin a suite to a deprecated policy and follows replacement links to the
// current one.
package policy

import (
	"fmt"
	"os"
	"strings"

	"github.com/Masterminds/semver"
	"github.com/goccy/go-yaml"
)

// Entry is one policy version in the catalog.
type Entry struct {
	// NaturalID is the console's policy identifier used in report filters.
	NaturalID string `yaml:"naturalId"`
	// BenchmarkID is the XCCDF benchmark id the policy implements.
	BenchmarkID string `yaml:"benchmarkId"`
	Benchmark   string `yaml:"benchmark"` // CIS, DISA, ...
	OS          string `yaml:"os"`
	Version     string `yaml:"version"` // semver of the benchmark content
	Deprecated  bool   `yaml:"deprecated"`
	// ReplacedBy names the NaturalID superseding a deprecated entry.
	ReplacedBy string `yaml:"replacedBy,omitempty"`
}

// Catalog is the full policy-version inventory.
type Catalog struct {
	Policies []Entry `yaml:"policies"`
}

// LoadCatalog reads the catalog file and validates version strings up
// front.
func LoadCatalog(path string) (*Catalog, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy catalog: %w", err)
	}
	var c Catalog
	if err := yaml.Unmarshal(content, &c); err != nil {
		return nil, fmt.Errorf("parsing policy catalog %s: %w", path, err)
	}
	for _, e := range c.Policies {
		if _, err := semver.NewVersion(e.Version); err != nil {
			return nil, fmt.Errorf("policy %s: bad version %q: %w", e.NaturalID, e.Version, err)
		}
	}
	return &c, nil
}

// Resolve returns the entry for benchmark/os at the given version, or the
// newest non-deprecated entry when version is empty. A deprecated match
// resolves through its replacement chain; a dead end is an error naming
// the replacement so the suite definition can be fixed.
func (c *Catalog) Resolve(benchmark, osName, version string) (Entry, error) {
	matches := c.forBenchmark(benchmark, osName)
	if len(matches) == 0 {
		return Entry{}, fmt.Errorf("no policies for %s/%s in catalog", benchmark, osName)
	}

	if version != "" {
		want, err := semver.NewVersion(version)
		if err != nil {
			return Entry{}, fmt.Errorf("bad requested version %q: %w", version, err)
		}
		for _, e := range matches {
			if semver.MustParse(e.Version).Equal(want) {
				return c.followReplacement(e, 0)
			}
		}
		return Entry{}, fmt.Errorf("no %s/%s policy at version %s", benchmark, osName, version)
	}

	var best *Entry
	for i := range matches {
		e := matches[i]
		if e.Deprecated {
			continue
		}
		if best == nil || semver.MustParse(e.Version).GreaterThan(semver.MustParse(best.Version)) {
			best = &matches[i]
		}
	}
	if best == nil {
		return Entry{}, fmt.Errorf("all %s/%s policies are deprecated", benchmark, osName)
	}
	return *best, nil
}

// followReplacement walks ReplacedBy links from a deprecated entry. The
// chain is bounded to catch cycles in a hand-edited catalog.
func (c *Catalog) followReplacement(e Entry, depth int) (Entry, error) {
	if !e.Deprecated {
		return e, nil
	}
	if e.ReplacedBy == "" {
		return Entry{}, fmt.Errorf("policy %s (%s %s) is deprecated with no replacement",
			e.NaturalID, e.Benchmark, e.Version)
	}
	if depth >= len(c.Policies) {
		return Entry{}, fmt.Errorf("replacement chain starting at %s does not terminate", e.NaturalID)
	}
	next, ok := c.byNaturalID(e.ReplacedBy)
	if !ok {
		return Entry{}, fmt.Errorf("policy %s replaced by unknown policy %s", e.NaturalID, e.ReplacedBy)
	}
	return c.followReplacement(next, depth+1)
}

func (c *Catalog) forBenchmark(benchmark, osName string) []Entry {
	var out []Entry
	for _, e := range c.Policies {
		if strings.EqualFold(e.Benchmark, benchmark) && strings.EqualFold(e.OS, osName) {
			out = append(out, e)
		}
	}
	return out
}

func (c *Catalog) byNaturalID(id string) (Entry, bool) {
	for _, e := range c.Policies {
		if e.NaturalID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Deprecated lists the deprecated entries, for reporting.
func (c *Catalog) Deprecated() []Entry {
	var out []Entry
	for _, e := range c.Policies {
		if e.Deprecated {
			out = append(out, e)
		}
	}
	return out
}
