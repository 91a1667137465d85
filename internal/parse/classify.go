package parse

import (
	"regexp"
	"strconv"

	"github.com/kiteline/scorescribe/internal/model"
)

// Classification is the detected (phase, day, category) for a ranking screen,
// with the names of the rules that decided phase and day for diagnostics.
type Classification struct {
	Phase      model.Phase
	Day        model.Day
	Category   model.Category
	PhaseRule  string
	DayRule    string
	EventLabel string
}

var (
	// A stage name rendered as a highlighted tab shows up as its own line,
	// often wrapped in tab-border glyphs the engine reads as brackets.
	prepStageLineRe = regexp.MustCompile(`(?i)^[^\p{L}\d]*(preparation|prep)(\s+(stage|phase))?[^\p{L}\d]*$`)
	warStageLineRe  = regexp.MustCompile(`(?i)^[^\p{L}\d]*(war|battle)(\s+(stage|phase))?[^\p{L}\d]*$`)

	prepKeywordRe = regexp.MustCompile(`(?i)\b(preparation|prep)\b`)
	warKeywordRe  = regexp.MustCompile(`(?i)\b(war|battle)\b`)

	dayTabRe     = regexp.MustCompile(`(?i)[\[(<]\s*day\s*([1-5])\s*[>)\]]`)
	dayMentionRe = regexp.MustCompile(`(?i)\bday\s*([1-5])\b`)
	overallRe    = regexp.MustCompile(`(?i)\b(overall|total)\b`)

	eventLabelRe = regexp.MustCompile(`(?i)\b(?:server\s+war|showdown|clash)\s*#?\s*(\d{1,4})\b`)
)

// phaseRule is one named step of the phase detection priority chain.
type phaseRule struct {
	Name   string
	Detect func(lines []Line) (model.Phase, bool)
}

// phaseRules run in priority order: explicit highlighted stage tab, generic
// keyword, then the structural heuristic (several distinct day tabs only
// appear on prep screens).
var phaseRules = []phaseRule{
	{
		Name: "highlighted_stage",
		Detect: func(lines []Line) (model.Phase, bool) {
			for _, l := range lines {
				if prepStageLineRe.MatchString(l.Text) {
					return model.PhasePrep, true
				}
				if warStageLineRe.MatchString(l.Text) {
					return model.PhaseWar, true
				}
			}
			return "", false
		},
	},
	{
		Name: "keyword",
		Detect: func(lines []Line) (model.Phase, bool) {
			for _, l := range lines {
				if prepKeywordRe.MatchString(l.Text) {
					return model.PhasePrep, true
				}
			}
			for _, l := range lines {
				if warKeywordRe.MatchString(l.Text) {
					return model.PhaseWar, true
				}
			}
			return "", false
		},
	},
	{
		Name: "day_structure",
		Detect: func(lines []Line) (model.Phase, bool) {
			seen := map[int]bool{}
			for _, l := range lines {
				for _, m := range dayMentionRe.FindAllStringSubmatch(l.Text, -1) {
					n, _ := strconv.Atoi(m[1])
					seen[n] = true
				}
			}
			if len(seen) >= 3 {
				return model.PhasePrep, true
			}
			return "", false
		},
	},
}

// dayRule is one named step of the prep-day detection chain.
type dayRule struct {
	Name   string
	Detect func(lines []Line) (model.Day, bool)
}

var dayRules = []dayRule{
	{
		Name: "highlighted_tab",
		Detect: func(lines []Line) (model.Day, bool) {
			for _, l := range lines {
				if m := dayTabRe.FindStringSubmatch(l.Text); m != nil {
					n, _ := strconv.Atoi(m[1])
					return model.Day(n), true
				}
			}
			return 0, false
		},
	},
	{
		Name: "day_mention",
		Detect: func(lines []Line) (model.Day, bool) {
			for _, l := range lines {
				if m := dayMentionRe.FindStringSubmatch(l.Text); m != nil {
					n, _ := strconv.Atoi(m[1])
					return model.Day(n), true
				}
			}
			return 0, false
		},
	},
	{
		Name: "overall",
		Detect: func(lines []Line) (model.Day, bool) {
			for _, l := range lines {
				if overallRe.MatchString(l.Text) {
					return model.DayOverall, true
				}
			}
			return 0, false
		},
	},
}

// Classify determines phase, day and category for a recognized screen.
// War screens never carry a day; prep screens default to day 1 when no rule
// fires.
func Classify(lines []Line) Classification {
	c := Classification{Phase: model.PhaseWar, PhaseRule: "default_war"}

	for _, rule := range phaseRules {
		if phase, ok := rule.Detect(lines); ok {
			c.Phase = phase
			c.PhaseRule = rule.Name
			break
		}
	}

	if c.Phase == model.PhasePrep {
		c.Day = 1
		c.DayRule = "default_day1"
		for _, rule := range dayRules {
			if day, ok := rule.Detect(lines); ok {
				c.Day = day
				c.DayRule = rule.Name
				break
			}
		}
	} else {
		c.Day = model.DayNone
		c.DayRule = "war_no_day"
	}

	for _, l := range lines {
		if m := eventLabelRe.FindStringSubmatch(l.Text); m != nil {
			c.EventLabel = "showdown_" + m[1]
			break
		}
	}

	c.Category = model.CategoryFor(c.Phase, c.Day)
	return c
}
