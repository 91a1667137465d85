package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kiteline/scorescribe/internal/compare"
)

var compareFlags struct {
	submitter string
	community string
	event     string
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare a submitter against peers of similar power",
	Long: `Builds a cohort of submitters whose recorded power is within the
configured band of the requester's, ranks it by war score, and reports the
requester's standing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		result, err := e.Comparer.PeerComparison(cmd.Context(), compareFlags.submitter, compareFlags.community, compareFlags.event)
		switch {
		case errors.Is(err, compare.ErrNoPower):
			fmt.Println("no power recorded; run `power set` first")
			return nil
		case errors.Is(err, compare.ErrNoScore):
			fmt.Println("no war score recorded for this event yet")
			return nil
		case errors.Is(err, compare.ErrNoPeers):
			fmt.Println("no peers within the power band")
			return nil
		case err != nil:
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	f := compareCmd.Flags()
	f.StringVar(&compareFlags.submitter, "submitter", "", "submitter id (required)")
	f.StringVar(&compareFlags.community, "community", "", "community id (required)")
	f.StringVar(&compareFlags.event, "event", "", "event label (required)")
	_ = compareCmd.MarkFlagRequired("submitter")
	_ = compareCmd.MarkFlagRequired("community")
	_ = compareCmd.MarkFlagRequired("event")
	rootCmd.AddCommand(compareCmd)
}
