package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"

	"github.com/kiteline/scorescribe/internal/model"
	"github.com/kiteline/scorescribe/internal/store"
)

var leaderboardFlags struct {
	community    string
	event        string
	phase        string
	day          int
	tag          string
	limit        int
	includeTests bool
	export       string
}

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Show ranked best scores per submitter",
	Long: `Aggregates MIN(rank) and MAX(score) per submitter for the given
filters, ordered by best score.

Examples:
  leaderboard --community c1
  leaderboard --community c1 --event showdown_42 --phase prep --day 3
  leaderboard --community c1 --tag TAO --export board.xlsx`,
	RunE: runLeaderboard,
}

func init() {
	f := leaderboardCmd.Flags()
	f.StringVar(&leaderboardFlags.community, "community", "", "community id (required)")
	f.StringVar(&leaderboardFlags.event, "event", "", "event label filter")
	f.StringVar(&leaderboardFlags.phase, "phase", "", "phase filter: prep or war")
	f.IntVar(&leaderboardFlags.day, "day", -1, "day filter: 1-5, 6 for overall, 0 for war")
	f.StringVar(&leaderboardFlags.tag, "tag", "", "alliance tag filter")
	f.IntVar(&leaderboardFlags.limit, "limit", 100, "max rows")
	f.BoolVar(&leaderboardFlags.includeTests, "include-tests", false, "include test-window records")
	f.StringVar(&leaderboardFlags.export, "export", "", "write the board to an xlsx file instead of stdout")
	_ = leaderboardCmd.MarkFlagRequired("community")
	rootCmd.AddCommand(leaderboardCmd)
}

func runLeaderboard(cmd *cobra.Command, args []string) error {
	e, err := initEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	filter := store.LeaderboardFilter{
		CommunityID:  leaderboardFlags.community,
		EventLabel:   leaderboardFlags.event,
		Phase:        model.Phase(leaderboardFlags.phase),
		AllianceTag:  leaderboardFlags.tag,
		Limit:        leaderboardFlags.limit,
		IncludeTests: leaderboardFlags.includeTests,
	}
	if leaderboardFlags.day >= 0 {
		day := model.Day(leaderboardFlags.day)
		filter.Day = &day
	}

	rows, err := e.Reconciler.Leaderboard(cmd.Context(), filter)
	if err != nil {
		return err
	}

	if leaderboardFlags.export != "" {
		return exportLeaderboard(rows, leaderboardFlags.export)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tPLAYER\tTAG\tBEST RANK\tBEST SCORE")
	for i, r := range rows {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\n", i+1, r.PlayerName, r.AllianceTag, r.BestRank, r.BestScore)
	}
	return w.Flush()
}

func exportLeaderboard(rows []store.LeaderboardRow, path string) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Leaderboard")
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"Position", "Player", "Alliance", "Best Rank", "Best Score"} {
		header.AddCell().SetString(h)
	}
	for i, r := range rows {
		row := sheet.AddRow()
		row.AddCell().SetInt(i + 1)
		row.AddCell().SetString(r.PlayerName)
		row.AddCell().SetString(r.AllianceTag)
		row.AddCell().SetInt(r.BestRank)
		row.AddCell().SetInt64(r.BestScore)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	fmt.Printf("wrote %d rows to %s\n", len(rows), path)
	return nil
}
