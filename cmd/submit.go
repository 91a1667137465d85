package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/kiteline/scorescribe/internal/model"
	"github.com/kiteline/scorescribe/internal/workflow"
)

var submitFlags struct {
	submitter string
	community string
	image     string
	yes       bool

	includeTests bool

	manual bool
	phase  string
	day    int
	rank   int
	score  int64
	name   string
	tag    string
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a ranking screenshot or manual entry",
	Long: `Submit a ranking screenshot for recognition, or a manual entry with
--manual. Screenshot submissions route by confidence: high-confidence parses
save immediately, borderline ones print a preview and require --yes, and
low-confidence ones require the manual fields as corrections.

Examples:
  # Submit a screenshot
  submit --submitter u1 --community c1 --image day3.png

  # Accept a borderline parse without prompting
  submit --submitter u1 --community c1 --image day3.png --yes

  # Manual entry when no usable screenshot exists
  submit --submitter u1 --community c1 --manual --phase prep --day 3 \
    --rank 94 --score 7948885 --name Mars --tag TAO`,
	RunE: runSubmit,
}

func init() {
	f := submitCmd.Flags()
	f.StringVar(&submitFlags.submitter, "submitter", "", "submitter id (required)")
	f.StringVar(&submitFlags.community, "community", "", "community id (required)")
	f.StringVar(&submitFlags.image, "image", "", "path to the screenshot")
	f.BoolVar(&submitFlags.yes, "yes", false, "accept borderline parses and cycle conflicts without prompting")
	f.BoolVar(&submitFlags.includeTests, "include-tests", false, "allow the submission to land in an open test window")
	f.BoolVar(&submitFlags.manual, "manual", false, "manual entry, skip recognition")
	f.StringVar(&submitFlags.phase, "phase", "", "phase: prep or war")
	f.IntVar(&submitFlags.day, "day", 0, "prep day 1-5, 6 for overall")
	f.IntVar(&submitFlags.rank, "rank", 0, "rank shown on the screen")
	f.Int64Var(&submitFlags.score, "score", 0, "score shown on the screen")
	f.StringVar(&submitFlags.name, "name", "", "player name")
	f.StringVar(&submitFlags.tag, "tag", "", "alliance tag")
	_ = submitCmd.MarkFlagRequired("submitter")
	_ = submitCmd.MarkFlagRequired("community")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e, err := initEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	sub := workflow.Submission{
		SubmitterID:        submitFlags.submitter,
		CommunityID:        submitFlags.community,
		IncludeTestWindows: submitFlags.includeTests,
	}

	if submitFlags.manual {
		res, err := e.Processor.ProcessManual(ctx, sub, manualFields())
		if err != nil {
			return err
		}
		return printResult(res)
	}

	if submitFlags.image == "" {
		return eris.New("either --image or --manual is required")
	}
	image, err := os.ReadFile(submitFlags.image)
	if err != nil {
		return eris.Wrapf(err, "read image %s", submitFlags.image)
	}
	sub.Image = image
	sub.Origin = submitFlags.image

	res, err := e.Processor.ProcessImage(ctx, sub)
	if err != nil {
		return err
	}

	switch res.Action {
	case workflow.ActionAwaitConfirm:
		if !submitFlags.yes {
			fmt.Println("parsed preview (re-run with --yes to accept):")
			if err := printResult(res); err != nil {
				return err
			}
			return e.Processor.Discard(submitFlags.submitter)
		}
		res, err = e.Processor.Confirm(ctx, submitFlags.submitter)
		if err != nil {
			return err
		}
	case workflow.ActionAwaitCorrection:
		if submitFlags.name == "" || submitFlags.tag == "" || submitFlags.score <= 0 {
			fmt.Println("low-confidence parse; re-run with --name, --tag and --score to correct:")
			if err := printResult(res); err != nil {
				return err
			}
			return e.Processor.Discard(submitFlags.submitter)
		}
		fields := manualFields()
		if fields.Phase == "" {
			fields.Phase = res.Phase
			fields.Day = res.Day
		}
		if fields.Rank == 0 {
			fields.Rank = res.Row.Rank
		}
		res, err = e.Processor.Correct(ctx, submitFlags.submitter, fields)
		if err != nil {
			return err
		}
	case workflow.ActionAwaitConflict:
		if !submitFlags.yes {
			fmt.Printf("possible stale cycle: prior event %s had max score %d (re-run with --yes to save anyway)\n",
				res.Outcome.PriorEvent, res.Outcome.PriorMaxScore)
			return e.Processor.Discard(submitFlags.submitter)
		}
		res, err = e.Processor.Confirm(ctx, submitFlags.submitter)
		if err != nil {
			return err
		}
	}

	// A confirmed borderline parse can still hit a cycle conflict.
	if res.Action == workflow.ActionAwaitConflict && submitFlags.yes {
		res, err = e.Processor.Confirm(ctx, submitFlags.submitter)
		if err != nil {
			return err
		}
	}

	return printResult(res)
}

func manualFields() workflow.ManualFields {
	return workflow.ManualFields{
		Phase:       model.Phase(submitFlags.phase),
		Day:         model.Day(submitFlags.day),
		Rank:        submitFlags.rank,
		Score:       submitFlags.score,
		PlayerName:  submitFlags.name,
		AllianceTag: submitFlags.tag,
	}
}

func printResult(res *workflow.Result) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
