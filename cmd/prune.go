package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var pruneFlags struct {
	event string
	list  bool
	yes   bool
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete ranking records for an old event",
	Long: `Retention pruning. Use --list to see the distinct event labels on
record, then --event with --yes to delete one event's ranking records.
Windows, powers, and the submission log are kept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		if pruneFlags.list {
			labels, err := e.Store.DistinctEventLabels(cmd.Context())
			if err != nil {
				return err
			}
			for _, label := range labels {
				fmt.Println(label)
			}
			return nil
		}

		if pruneFlags.event == "" {
			return eris.New("either --list or --event is required")
		}
		if !pruneFlags.yes {
			return eris.Errorf("pruning %s deletes its ranking records; re-run with --yes", pruneFlags.event)
		}

		n, err := e.Store.DeleteEventRecords(cmd.Context(), pruneFlags.event)
		if err != nil {
			return err
		}
		zap.L().Info("pruned event records", zap.String("event_label", pruneFlags.event), zap.Int("deleted", n))
		fmt.Printf("deleted %d records for %s\n", n, pruneFlags.event)
		return nil
	},
}

func init() {
	f := pruneCmd.Flags()
	f.StringVar(&pruneFlags.event, "event", "", "event label to prune")
	f.BoolVar(&pruneFlags.list, "list", false, "list distinct event labels")
	f.BoolVar(&pruneFlags.yes, "yes", false, "confirm deletion")
	rootCmd.AddCommand(pruneCmd)
}
