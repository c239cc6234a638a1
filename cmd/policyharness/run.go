package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/msykam-r7/policy-content/credentials"
	"github.com/msykam-r7/policy-content/harness"
	"github.com/msykam-r7/policy-content/policy"
)

const telemetryShutdownTimeout = 10 * time.Second

var (
	suitesPath  string
	credBackend string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run compliance suites end to end",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		suites, err := harness.LoadSuites(suitesPath)
		if err != nil {
			return err
		}
		creds, err := credentials.NewProvider(credBackend)
		if err != nil {
			return err
		}
		catalog, err := policy.LoadCatalog(cfg.PolicyCatalog)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		emitter, shutdown, err := harness.SetupTelemetry(ctx, otelEndpoint)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Printf("telemetry shutdown: %v", err)
			}
		}()

		h := harness.New(cfg, newClient(cfg), creds, catalog, emitter)
		log.Printf("run %s: %d suite(s) on %s (%s)", h.RunID(), len(suites), cfg.Console.Host, cfg.Environment)

		results, err := h.Run(ctx, suites)
		for _, result := range results {
			fmt.Printf("\n=== %s ===\n", result.Suite.Label())
			if result.Err != nil {
				fmt.Printf("ERROR: %v\n", result.Err)
				continue
			}
			fmt.Print(result.Validation.Summary())
			if result.ReportPath != "" {
				fmt.Printf("report: %s\n", result.ReportPath)
			}
		}
		if err != nil {
			return err
		}
		for _, result := range results {
			if !result.Ok() {
				return fmt.Errorf("%d rule(s) failed in suite %s", result.Validation.Failed, result.Suite.Label())
			}
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&suitesPath, "suites", "suites.yaml", "Suites definition file")
	runCmd.Flags().StringVar(&credBackend, "cred-backend", "", "Credential backend (env, aws, json, encrypted); defaults to CRED_BACKEND or env")
	rootCmd.AddCommand(runCmd)
}
