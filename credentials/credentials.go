// Package credentials resolves target-VM credential bundles for scan
// sites. Lookups are keyed by benchmark / OS / version / credential kind /
// service kind and resolve against one of several backends; keys are
// case-insensitive at every level.
package credentials

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Credential kinds: a "compliance" VM is hardened to the benchmark, a
// "not-compliance" VM deliberately is not.
const (
	KindCompliance    = "compliance"
	KindNotCompliance = "not-compliance"
)

// Service kinds.
const (
	ServiceServer   = "server"
	ServiceDatabase = "database"
)

// Query addresses one credential bundle.
type Query struct {
	Benchmark string // CIS, DISA, ...
	OS        string // RHEL, Ubuntu, ...
	Version   string // 9, 20.04, ...
	Kind      string // compliance / not-compliance
	Service   string // server / database
}

func (q Query) String() string {
	return strings.Join([]string{q.Benchmark, q.OS, q.Version, q.Kind, q.Service}, "/")
}

// Credential is a resolved target credential.
type Credential struct {
	IP       string `json:"ip"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (c Credential) complete() bool {
	return c.IP != "" && c.Username != "" && c.Password != ""
}

// Provider resolves credential queries against one backend.
type Provider interface {
	Lookup(ctx context.Context, q Query) (Credential, error)
}

// Backend names accepted by NewProvider and the CRED_BACKEND variable.
const (
	BackendEnv       = "env"
	BackendAWS       = "aws"
	BackendJSON      = "json"
	BackendEncrypted = "encrypted"
)

// NewProvider builds the provider named by backend; an empty backend reads
// CRED_BACKEND and defaults to env.
func NewProvider(backend string) (Provider, error) {
	if backend == "" {
		backend = os.Getenv("CRED_BACKEND")
	}
	if backend == "" {
		backend = BackendEnv
	}
	switch backend {
	case BackendEnv:
		return EnvProvider{}, nil
	case BackendAWS:
		return NewAWSProvider()
	case BackendJSON:
		return NewFileProvider(os.Getenv("VM_CONFIG_FILE"), "")
	case BackendEncrypted:
		return NewFileProvider(os.Getenv("VM_CONFIG_FILE"), os.Getenv("ENCRYPTION_KEY"))
	default:
		return nil, fmt.Errorf("unsupported credential backend %q", backend)
	}
}

// LookupSet resolves one query per service kind and merges the results
// into a single bundle keyed by service. Typical use is server+database
// for suites that validate database rules too.
func LookupSet(ctx context.Context, p Provider, q Query, services ...string) (map[string]Credential, error) {
	if len(services) == 0 {
		services = []string{ServiceServer}
	}
	set := make(map[string]Credential, len(services))
	for _, service := range services {
		sq := q
		sq.Service = service
		cred, err := p.Lookup(ctx, sq)
		if err != nil {
			return nil, err
		}
		set[strings.ToLower(service)] = cred
	}
	return set, nil
}
