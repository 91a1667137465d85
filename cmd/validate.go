package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateFlags struct {
	community string
	event     string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Scan an event's records for advisory issues",
	Long: `Reports non-monotonic prep-day scores, duplicate war entries, missing
power records, and out-of-range values. Issues are advisory and never block
writes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		issues, err := e.Reconciler.ValidateWindow(cmd.Context(), validateFlags.community, validateFlags.event)
		if err != nil {
			return err
		}
		if len(issues) == 0 {
			fmt.Println("no issues found")
			return nil
		}
		for _, issue := range issues {
			fmt.Println("-", issue)
		}
		return nil
	},
}

func init() {
	f := validateCmd.Flags()
	f.StringVar(&validateFlags.community, "community", "", "community id (required)")
	f.StringVar(&validateFlags.event, "event", "", "event label (required)")
	_ = validateCmd.MarkFlagRequired("community")
	_ = validateCmd.MarkFlagRequired("event")
	rootCmd.AddCommand(validateCmd)
}
