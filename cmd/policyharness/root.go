package main

import (
	"github.com/spf13/cobra"

	"github.com/msykam-r7/policy-content/internal/config"
	"github.com/msykam-r7/policy-content/nexpose"
)

var (
	configDir    string
	environment  string
	otelEndpoint string
)

var rootCmd = &cobra.Command{
	Use:   "policyharness",
	Short: "Compliance-content verification harness for the scan console",
	Long: `policyharness drives the vulnerability-management console end to end:
scan-template and site creation, scan execution, XCCDF report generation
and download, and CSV-driven rule validation.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "config", "Directory holding environment profiles")
	rootCmd.PersistentFlags().StringVar(&environment, "env", "local", "Environment profile to load")
	rootCmd.PersistentFlags().StringVar(&otelEndpoint, "otel-endpoint", "", "OTLP gRPC endpoint for evidence telemetry (empty disables export)")
}

func loadConfig() (*config.Config, error) {
	return config.Load(configDir, environment)
}

func newClient(cfg *config.Config) *nexpose.Client {
	return nexpose.NewClient(nexpose.Options{
		BaseURL:            cfg.Console.BaseURL(),
		Username:           cfg.Console.Username,
		Password:           cfg.Console.Password,
		InsecureSkipVerify: !cfg.Console.SSLVerify,
		Timeout:            cfg.Timeouts.Network,
		MaxRetries:         cfg.Retry.MaxRetries,
		RetryInterval:      cfg.Retry.Interval,
	})
}
