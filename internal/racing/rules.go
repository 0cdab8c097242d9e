package racing

import "time"

// PromotionPlan describes how one stage is seeded: which earlier stage's
// survivors carry over, which qualification rank band joins them, and the
// elimination parameters the stage runs under.
type PromotionPlan struct {
	// SurvivorsFrom names the stage whose non-eliminated players join the
	// intake. Empty for stages seeded from qualification alone.
	SurvivorsFrom Stage
	// RankFrom/RankTo is the inclusive qualification rank band promoted
	// directly into the stage.
	RankFrom int
	RankTo   int
	// Lives each promoted player starts with. Zero means direct elimination.
	Lives int
	// SurvivorsNeeded is the active-player count at which the stage is done.
	SurvivorsNeeded int
}

// Rules carries every tournament constant the engine depends on. Callers own
// the instance; nothing in the engine reads package-level state.
type Rules struct {
	InitialLives        int
	LifeResetThresholds []int
	BracketTargetWins   int
	QualificationMax    int
	FinalsMax           int
	MaxRetryAttempts    int
	RetryBackoff        time.Duration
	Courses             []Course
	// QualificationCourses are the codes every player must complete before a
	// qualification total and rank can be computed.
	QualificationCourses []string
	// FinalsPlacementPoints maps final placement (index 0 = 1st) to points.
	// Placements beyond the table score zero.
	FinalsPlacementPoints []int
	PromotionPlans        map[Stage]PromotionPlan
}

// DefaultRules returns the standard cup configuration.
func DefaultRules() Rules {
	return Rules{
		InitialLives:         3,
		LifeResetThresholds:  []int{8, 4, 2},
		BracketTargetWins:    5,
		QualificationMax:     1000,
		FinalsMax:            2000,
		MaxRetryAttempts:     4,
		RetryBackoff:         25 * time.Millisecond,
		Courses:              DefaultCourses,
		QualificationCourses: []string{"SSP", "CCV", "MMR", "PPB"},
		FinalsPlacementPoints: []int{
			2000, 1800, 1650, 1500, 1400, 1300, 1200, 1100,
			1000, 900, 800, 700, 600, 500, 400, 300,
		},
		PromotionPlans: map[Stage]PromotionPlan{
			StagePhase1: {RankFrom: 17, RankTo: 24, Lives: 0, SurvivorsNeeded: 4},
			StagePhase2: {SurvivorsFrom: StagePhase1, RankFrom: 13, RankTo: 16, Lives: 0, SurvivorsNeeded: 4},
			StagePhase3: {SurvivorsFrom: StagePhase2, RankFrom: 1, RankTo: 12, Lives: 3, SurvivorsNeeded: 1},
			// Head-to-head revival rounds mirror the first two phase shapes.
			StageRevival1: {RankFrom: 17, RankTo: 24, Lives: 0, SurvivorsNeeded: 4},
			StageRevival2: {SurvivorsFrom: StageRevival1, RankFrom: 13, RankTo: 16, Lives: 0, SurvivorsNeeded: 4},
		},
	}
}

// LivesResetAt reports whether an active-player count sits on a life-reset
// threshold.
func (r Rules) LivesResetAt(activeCount int) bool {
	for _, t := range r.LifeResetThresholds {
		if activeCount == t {
			return true
		}
	}
	return false
}

// PlacementPoints returns the finals points for a 1-based placement.
func (r Rules) PlacementPoints(placement int) int {
	if placement < 1 || placement > len(r.FinalsPlacementPoints) {
		return 0
	}
	return r.FinalsPlacementPoints[placement-1]
}
