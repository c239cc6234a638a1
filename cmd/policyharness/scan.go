package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/msykam-r7/policy-content/harness"
)

var scanSiteID int

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Launch a scan of an existing site and wait for it to finish",
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

		scanID, err := client.StartScan(ctx, scanSiteID)
		if err != nil {
			return err
		}
		log.Printf("scan %d launched against site %d", scanID, scanSiteID)

		monitor := harness.NewMonitor(client, cfg.Retry.Interval, cfg.Timeouts.Scan, cfg.Retry.MaxRetries)
		detail, err := monitor.WaitForScan(ctx, scanID)
		if err != nil {
			return err
		}
		fmt.Printf("scan %d finished: %d live asset(s)\n", scanID, detail.LiveAssets)
		return nil
	},
}

func init() {
	scanCmd.Flags().IntVar(&scanSiteID, "site-id", 0, "Console site id to scan")
	_ = scanCmd.MarkFlagRequired("site-id")
	rootCmd.AddCommand(scanCmd)
}
