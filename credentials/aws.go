package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// secretsAPI is the slice of the Secrets Manager client the provider
// needs. Narrow so tests can stub it.
type secretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSProvider resolves credentials from AWS Secrets Manager under
// vm-credentials/{benchmark}/{os}/{version}/{kind}/{service}. Secret
// values are JSON objects with ip/username/password.
type AWSProvider struct {
	client secretsAPI
}

// NewAWSProvider builds a provider from the default AWS configuration
// chain (env vars, shared config, instance role).
func NewAWSProvider() (*AWSProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return &AWSProvider{client: secretsmanager.NewFromConfig(cfg)}, nil
}

func (p *AWSProvider) Lookup(ctx context.Context, q Query) (Credential, error) {
	name := secretName(q)
	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: &name})
	if err != nil {
		return Credential{}, fmt.Errorf("secret %s: %w", name, err)
	}
	if out.SecretString == nil {
		return Credential{}, fmt.Errorf("secret %s has no string value", name)
	}

	var cred Credential
	if err := json.Unmarshal([]byte(*out.SecretString), &cred); err != nil {
		return Credential{}, fmt.Errorf("secret %s: %w", name, err)
	}
	if !cred.complete() {
		return Credential{}, fmt.Errorf("secret %s: incomplete entry (need ip, username, password)", name)
	}
	return cred, nil
}

// secretName builds the canonical secret path. Secret names are stored
// lower-case, so lookups are case-insensitive by construction.
func secretName(q Query) string {
	parts := []string{q.Benchmark, q.OS, q.Version, q.Kind, q.Service}
	for i, p := range parts {
		parts[i] = strings.ToLower(p)
	}
	return "vm-credentials/" + strings.Join(parts, "/")
}
