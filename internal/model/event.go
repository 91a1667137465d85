package model

import "time"

// Phase is the half of an event a ranking screen belongs to.
type Phase string

const (
	PhasePrep Phase = "prep"
	PhaseWar  Phase = "war"
)

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	return p == PhasePrep || p == PhaseWar
}

// Day identifies a prep sub-stage. War screens carry no day.
type Day int

const (
	// DayNone marks records from the war phase, which has no day.
	DayNone Day = 0
	// DayOverall marks the aggregated prep standings tab.
	DayOverall Day = 6
)

// Valid reports whether d is DayNone, DayOverall, or a prep day 1-5.
func (d Day) Valid() bool {
	return d >= DayNone && d <= DayOverall
}

func (d Day) String() string {
	switch d {
	case DayNone:
		return "-"
	case DayOverall:
		return "overall"
	default:
		return string(rune('0' + d))
	}
}

// Category is the scoring discipline a record counts toward. It is fully
// determined by (phase, day).
type Category string

const (
	CategoryConstruction Category = "construction"
	CategoryResearch     Category = "research"
	CategoryResourceMob  Category = "resource_mob"
	CategoryHero         Category = "hero"
	CategoryTraining     Category = "troop_training"
	CategoryPrepOverall  Category = "prep_overall"
	CategoryWarTotal     Category = "war_total"
	CategoryUnknown      Category = "unknown"
)

var prepDayCategories = map[Day]Category{
	1: CategoryConstruction,
	2: CategoryResearch,
	3: CategoryResourceMob,
	4: CategoryHero,
	5: CategoryTraining,
}

// CategoryFor maps (phase, day) to the scoring category. Any day during the
// war phase yields WarTotal.
func CategoryFor(phase Phase, day Day) Category {
	if phase == PhaseWar {
		return CategoryWarTotal
	}
	if day == DayOverall {
		return CategoryPrepOverall
	}
	if c, ok := prepDayCategories[day]; ok {
		return c
	}
	return CategoryUnknown
}

// EventWindow is a tracked submission period for one community. Windows are
// append-only: they close (explicitly or by passing EndsAt) but are never
// deleted.
type EventWindow struct {
	ID          string    `json:"id"`
	CommunityID string    `json:"community_id"`
	Title       string    `json:"title"`
	Sequence    int       `json:"sequence"` // 0 for test windows
	IsTest      bool      `json:"is_test"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	Active      bool      `json:"active"`
	CloseReason string    `json:"close_reason,omitempty"`
	InitiatorID string    `json:"initiator_id"`
	ChannelID   string    `json:"channel_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Expired reports whether the window's end timestamp has passed. Expiry is
// only ever evaluated at read time; there is no background timer.
func (w *EventWindow) Expired(now time.Time) bool {
	return !w.EndsAt.After(now)
}

// WindowEntry joins an accepted record to the window it was submitted under.
// Leaderboard queries for a window consume these entries.
type WindowEntry struct {
	ID          string    `json:"id"`
	WindowID    string    `json:"window_id"`
	RecordID    string    `json:"record_id"`
	SubmitterID string    `json:"submitter_id"`
	Phase       Phase     `json:"phase"`
	Day         Day       `json:"day"`
	IsTest      bool      `json:"is_test"`
	CreatedAt   time.Time `json:"created_at"`
}
