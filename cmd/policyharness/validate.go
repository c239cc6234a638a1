package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/msykam-r7/policy-content/rules"
	"github.com/msykam-r7/policy-content/xccdf"
)

var (
	validateReport  string
	validateRules   string
	validateProfile string
	validateFailed  bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a downloaded XCCDF report against a CSV rule file",
	RunE: func(_ *cobra.Command, _ []string) error {
		ruleSet, err := rules.LoadCSV(validateRules, validateProfile)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(validateReport)
		if err != nil {
			return err
		}
		report, err := xccdf.Parse(content)
		if err != nil {
			return err
		}

		result := rules.Validate(ruleSet, report)
		fmt.Print(result.Summary())

		if validateFailed {
			for _, o := range result.FailedOutcomes() {
				fmt.Printf("FAILED %d %s: %s\n", o.Number, o.RuleID, o.Message)
			}
		}
		if !result.Ok() {
			return fmt.Errorf("%d rule(s) failed", result.Failed)
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateReport, "report", "", "XCCDF report file")
	validateCmd.Flags().StringVar(&validateRules, "rules", "", "CSV rule file")
	validateCmd.Flags().StringVar(&validateProfile, "profile", "", "Only validate rules tagged with this profile")
	validateCmd.Flags().BoolVar(&validateFailed, "failed", false, "List failed rules after the summary")
	_ = validateCmd.MarkFlagRequired("report")
	_ = validateCmd.MarkFlagRequired("rules")
	rootCmd.AddCommand(validateCmd)
}
