package model

import "time"

// SeasonState is the lifecycle state of a season.  Transitions are
// forward-only: planning → active → ended → legacy.  Supply caps and
// serial counters are scoped to a season and reset when a new one is
// created.
type SeasonState string

const (
	SeasonPlanning SeasonState = "planning"
	SeasonActive   SeasonState = "active"
	SeasonEnded    SeasonState = "ended"
	SeasonLegacy   SeasonState = "legacy"
)

// seasonRank orders lifecycle states so that forward-only
// transitions can be enforced with a single comparison.
var seasonRank = map[SeasonState]int{
	SeasonPlanning: 0,
	SeasonActive:   1,
	SeasonEnded:    2,
	SeasonLegacy:   3,
}

// Valid reports whether s is one of the four lifecycle states.
func (s SeasonState) Valid() bool {
	_, ok := seasonRank[s]
	return ok
}

// CanTransition reports whether a season may move from its current
// state to next.  Only single-direction moves to a strictly later
// state are permitted; a season can never return to an earlier state.
func (s SeasonState) CanTransition(next SeasonState) bool {
	cur, ok1 := seasonRank[s]
	nxt, ok2 := seasonRank[next]
	return ok1 && ok2 && nxt > cur
}

// Season groups all supply accounting for one release cycle.
//
// Fields:
//  ID           – unique season identifier (e.g. "season-3").
//  Name         – human readable name.
//  State        – lifecycle state; only "active" seasons may mint.
//  SupplyTarget – global target across all tiers, informational.
//  CreatedAt    – creation timestamp.
//  UpdatedAt    – last state change timestamp.
type Season struct {
	ID           string      // seasons.id
	Name         string      // seasons.name
	State        SeasonState // seasons.state
	SupplyTarget uint64      // seasons.supply_target
	CreatedAt    time.Time   // seasons.created_at
	UpdatedAt    time.Time   // seasons.updated_at
}
