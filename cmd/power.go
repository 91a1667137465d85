package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var powerCmd = &cobra.Command{
	Use:   "power",
	Short: "Manage self-reported account power",
}

var powerFlags struct {
	submitter string
	community string
	event     string
	value     int64
}

var powerSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Record a submitter's power for an event",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.Comparer.SetPower(cmd.Context(), powerFlags.submitter, powerFlags.community, powerFlags.event, powerFlags.value); err != nil {
			return err
		}
		fmt.Printf("power for %s on %s set to %d\n", powerFlags.submitter, powerFlags.event, powerFlags.value)
		return nil
	},
}

var powerGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show a submitter's recorded power for an event",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		p, err := e.Comparer.GetPower(cmd.Context(), powerFlags.submitter, powerFlags.event)
		if err != nil {
			return err
		}
		if p == nil {
			fmt.Println("no power recorded")
			return nil
		}
		fmt.Printf("%d (updated %s)\n", p.Power, p.UpdatedAt.Format("2006-01-02 15:04"))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{powerSetCmd, powerGetCmd} {
		f := c.Flags()
		f.StringVar(&powerFlags.submitter, "submitter", "", "submitter id (required)")
		f.StringVar(&powerFlags.event, "event", "", "event label (required)")
		_ = c.MarkFlagRequired("submitter")
		_ = c.MarkFlagRequired("event")
	}
	powerSetCmd.Flags().StringVar(&powerFlags.community, "community", "", "community id (required)")
	powerSetCmd.Flags().Int64Var(&powerFlags.value, "value", 0, "power value (required)")
	_ = powerSetCmd.MarkFlagRequired("community")
	_ = powerSetCmd.MarkFlagRequired("value")

	powerCmd.AddCommand(powerSetCmd, powerGetCmd)
	rootCmd.AddCommand(powerCmd)
}
