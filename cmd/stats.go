package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statsFlags struct {
	community string
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show submission log statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		stats, err := e.Store.LogStats(cmd.Context(), statsFlags.community)
		if err != nil {
			return err
		}
		if len(stats) == 0 {
			fmt.Println("no submissions logged")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "REASON\tSUCCESS\tCOUNT")
		for _, s := range stats {
			reason := s.Reason
			if reason == "" {
				reason = "(none)"
			}
			fmt.Fprintf(w, "%s\t%t\t%d\n", reason, s.Success, s.Count)
		}
		return w.Flush()
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsFlags.community, "community", "", "community id (required)")
	_ = statsCmd.MarkFlagRequired("community")
	rootCmd.AddCommand(statsCmd)
}
