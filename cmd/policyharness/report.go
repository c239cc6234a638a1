package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/msykam-r7/policy-content/harness"
	"github.com/msykam-r7/policy-content/nexpose"
	"github.com/msykam-r7/policy-content/xccdf"
)

var (
	reportSiteID   int
	reportPolicyID string
	reportName     string
	reportOut      string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate, download, and archive an XCCDF report for a site",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client := newClient(cfg)
		ctx := cmd.Context()
		defer func() {
			if err := client.Logout(cmd.Context()); err != nil {
				log.Printf("logout: %v", err)
			}
		}()

		payload, err := os.ReadFile(filepath.Join(cfg.Dirs.Payloads, "xccdf_report.json"))
		if err != nil {
			return fmt.Errorf("reading report payload: %w", err)
		}

		name := reportName
		if name == "" {
			name = "xccdf-" + uuid.NewString()
		}
		cfgID, err := client.GenerateReport(ctx, payload, nexpose.ReportRequest{
			Name:            name,
			SiteID:          reportSiteID,
			PolicyNaturalID: reportPolicyID,
		})
		if err != nil {
			return err
		}
		log.Printf("report config %d submitted, waiting for generation", cfgID)

		monitor := harness.NewMonitor(client, cfg.Retry.Interval, cfg.Timeouts.Default, cfg.Retry.MaxRetries)
		summary, err := monitor.WaitForReport(ctx, cfgID)
		if err != nil {
			return err
		}
		content, err := client.DownloadReport(ctx, summary)
		if err != nil {
			return err
		}

		out := reportOut
		if out == "" {
			out = filepath.Join(cfg.Dirs.Reports, name+".xml")
		}
		if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
			return err
		}
		formatted, err := xccdf.Format(content)
		if err != nil {
			formatted = content
		}
		if err := os.WriteFile(out, formatted, 0o640); err != nil {
			return err
		}
		fmt.Printf("report written to %s\n", out)
		return nil
	},
}

func init() {
	reportCmd.Flags().IntVar(&reportSiteID, "site-id", 0, "Console site id to report on")
	reportCmd.Flags().StringVar(&reportPolicyID, "policy-id", "", "Policy natural id for the policy-listing filter")
	reportCmd.Flags().StringVar(&reportName, "name", "", "Report name (default xccdf-<uuid>)")
	reportCmd.Flags().StringVar(&reportOut, "out", "", "Output path (default <reports dir>/<name>.xml)")
	_ = reportCmd.MarkFlagRequired("site-id")
	_ = reportCmd.MarkFlagRequired("policy-id")
	rootCmd.AddCommand(reportCmd)
}
