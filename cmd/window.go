package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kiteline/scorescribe/internal/tracker"
)

var windowCmd = &cobra.Command{
	Use:   "window",
	Short: "Manage event windows",
}

var windowEnsureFlags struct {
	community string
	title     string
	hours     int
	test      bool
	initiator string
}

var windowEnsureCmd = &cobra.Command{
	Use:   "ensure",
	Short: "Open an event window, or report the matching open one",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		hours := windowEnsureFlags.hours
		if hours <= 0 {
			hours = cfg.Window.DefaultDurationHours
		}

		w, created, err := e.Tracker.EnsureWindow(cmd.Context(), tracker.WindowRequest{
			CommunityID: windowEnsureFlags.community,
			Title:       windowEnsureFlags.title,
			Duration:    time.Duration(hours) * time.Hour,
			IsTest:      windowEnsureFlags.test,
			InitiatorID: windowEnsureFlags.initiator,
		})
		if err != nil {
			return err
		}

		out := struct {
			ID       string    `json:"id"`
			Sequence int       `json:"sequence"`
			Created  bool      `json:"created"`
			EndsAt   time.Time `json:"ends_at"`
		}{w.ID, w.Sequence, created, w.EndsAt}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

var windowStatusFlags struct {
	community    string
	includeTests bool
}

var windowStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the community's active window",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		w, err := e.Tracker.ActiveWindow(cmd.Context(), windowStatusFlags.community, windowStatusFlags.includeTests)
		if err != nil {
			return err
		}
		if w == nil {
			fmt.Println("no active window")
			return nil
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(w)
	},
}

var windowCloseFlags struct {
	id     string
	reason string
}

var windowCloseCmd = &cobra.Command{
	Use:   "close",
	Short: "Close a window; closing is terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.Tracker.CloseWindow(cmd.Context(), windowCloseFlags.id, windowCloseFlags.reason); err != nil {
			return err
		}
		fmt.Printf("closed window %s\n", windowCloseFlags.id)
		return nil
	},
}

func init() {
	f := windowEnsureCmd.Flags()
	f.StringVar(&windowEnsureFlags.community, "community", "", "community id (required)")
	f.StringVar(&windowEnsureFlags.title, "title", "", "window title (required)")
	f.IntVar(&windowEnsureFlags.hours, "hours", 0, "window duration in hours (default from config)")
	f.BoolVar(&windowEnsureFlags.test, "test", false, "open a test window; test windows never take a sequence number")
	f.StringVar(&windowEnsureFlags.initiator, "initiator", "", "initiator id")
	_ = windowEnsureCmd.MarkFlagRequired("community")
	_ = windowEnsureCmd.MarkFlagRequired("title")

	windowStatusCmd.Flags().StringVar(&windowStatusFlags.community, "community", "", "community id (required)")
	windowStatusCmd.Flags().BoolVar(&windowStatusFlags.includeTests, "include-tests", false, "include test windows")
	_ = windowStatusCmd.MarkFlagRequired("community")

	windowCloseCmd.Flags().StringVar(&windowCloseFlags.id, "id", "", "window id (required)")
	windowCloseCmd.Flags().StringVar(&windowCloseFlags.reason, "reason", "manual", "close reason")
	_ = windowCloseCmd.MarkFlagRequired("id")

	windowCmd.AddCommand(windowEnsureCmd, windowStatusCmd, windowCloseCmd)
	rootCmd.AddCommand(windowCmd)
}
