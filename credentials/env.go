package credentials

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
)

// EnvProvider reads credentials from environment variables, the backend CI
// uses. Variables follow
//
//	VM_<BENCHMARK>_<OS>_<VERSION>_<KIND>_<SERVICE>_{IP,USERNAME,PASSWORD}
//
// with a fall-back to the generic VM_<BENCHMARK>_<OS>_* bundle when the
// fully qualified variables are not set.
type EnvProvider struct{}

func (EnvProvider) Lookup(_ context.Context, q Query) (Credential, error) {
	prefix := envPrefix(q.Benchmark, q.OS, q.Version, q.Kind, q.Service)

	cred := Credential{
		IP:       os.Getenv(prefix + "_IP"),
		Username: os.Getenv(prefix + "_USERNAME"),
		Password: os.Getenv(prefix + "_PASSWORD"),
	}
	if cred.complete() {
		return cred, nil
	}

	generic := envPrefix(q.Benchmark, q.OS)
	log.Printf("credentials: %s incomplete, falling back to %s", prefix, generic)
	if cred.IP == "" {
		cred.IP = os.Getenv(generic + "_IP")
	}
	if cred.Username == "" {
		cred.Username = os.Getenv(generic + "_USERNAME")
	}
	if cred.Username == "" {
		cred.Username = "root"
	}
	if cred.Password == "" {
		cred.Password = os.Getenv(generic + "_PASSWORD")
	}

	if !cred.complete() {
		return Credential{}, fmt.Errorf(
			"credentials for %s not found: set %s_IP, %s_USERNAME, %s_PASSWORD",
			q, prefix, prefix, prefix)
	}
	return cred, nil
}

func envPrefix(parts ...string) string {
	cleaned := make([]string, 0, len(parts)+1)
	cleaned = append(cleaned, "VM")
	for _, part := range parts {
		part = strings.ReplaceAll(part, "-", "_")
		part = strings.ReplaceAll(part, ".", "_")
		cleaned = append(cleaned, strings.ToUpper(part))
	}
	return strings.Join(cleaned, "_")
}
