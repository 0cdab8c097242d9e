package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/AdamBeresnev/kart-cup/internal/racing"
	"github.com/AdamBeresnev/kart-cup/internal/store"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PhaseService advances the roster through the elimination stages: promotion
// into a stage, per-round eliminations, and the life-based finals.
type PhaseService struct {
	db     *sqlx.DB
	stages *store.StageStore
	rules  racing.Rules
	locks  *StageLocks
}

func NewPhaseService(db *sqlx.DB, stages *store.StageStore, rules racing.Rules, locks *StageLocks) *PhaseService {
	return &PhaseService{db: db, stages: stages, rules: rules, locks: locks}
}

// PromotionResult reports which players entered the stage and which were
// skipped. Skipped players are reported by display name, never dropped
// silently.
type PromotionResult struct {
	Promoted []racing.StageEntry
	Skipped  []string
}

// CourseResult is one player's time for the round's course, in milliseconds.
type CourseResult struct {
	PlayerID uuid.UUID
	TimeMs   int
}

// RoundOutcome summarizes one elimination round.
type RoundOutcome struct {
	Eliminated    []string
	LivesReset    bool
	ActiveCount   int
	StageComplete bool
}

// PromoteStage seeds a stage from its promotion plan: the previous phase's
// survivors plus the configured qualification rank band. Players without a
// completed qualification total are skipped and reported; re-promoting an
// already promoted player is an idempotent no-op.
func (s *PhaseService) PromoteStage(ctx context.Context, tournamentID uuid.UUID, target racing.Stage) (*PromotionResult, error) {
	plan, ok := s.rules.PromotionPlans[target]
	if !ok {
		return nil, fmt.Errorf("stage %s has no promotion plan", target)
	}

	unlock := s.locks.Acquire(tournamentID, target)
	defer unlock()

	qualEntries, err := s.stages.ListStageEntries(ctx, store.StageFilter{
		TournamentID: tournamentID,
		Stage:        racing.StageQualification,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load qualification roster: %w", err)
	}

	var intake []racing.StageEntry
	var skipped []string
	for _, e := range qualEntries {
		if e.TotalTimeMs == nil || e.Rank == nil {
			skipped = append(skipped, e.PlayerName)
			continue
		}
		if *e.Rank >= plan.RankFrom && *e.Rank <= plan.RankTo {
			intake = append(intake, e)
		}
	}

	if plan.SurvivorsFrom != "" {
		survivors, err := s.stages.ListStageEntries(ctx, store.StageFilter{
			TournamentID: tournamentID,
			Stage:        plan.SurvivorsFrom,
			ActiveOnly:   true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load %s survivors: %w", plan.SurvivorsFrom, err)
		}
		intake = append(intake, survivors...)
	}

	if len(intake) == 0 {
		return nil, fmt.Errorf("%w: no eligible players for %s", racing.ErrInsufficientPlayers, target)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	result := &PromotionResult{Skipped: skipped}
	for _, src := range intake {
		entry := racing.StageEntry{
			ID:           uuid.New(),
			TournamentID: tournamentID,
			PlayerID:     src.PlayerID,
			PlayerName:   src.PlayerName,
			Stage:        target,
			Lives:        plan.Lives,
			Times:        racing.CourseTimes{},
		}
		created, err := s.stages.CreateStageEntryIfAbsent(ctx, tx, &entry)
		if err != nil {
			return nil, fmt.Errorf("failed to promote %s: %w", src.PlayerName, err)
		}
		if created {
			result.Promoted = append(result.Promoted, entry)
		}
	}

	return result, tx.Commit()
}

// ProcessCourseResults applies one course's timing results to a stage. The
// batch must cover exactly the active roster; nothing is written on a
// validation failure. Ranks for the whole stage are recomputed before the
// call returns.
func (s *PhaseService) ProcessCourseResults(ctx context.Context, tournamentID uuid.UUID, stage racing.Stage, courseCode string, results []CourseResult) (*RoundOutcome, error) {
	plan, ok := s.rules.PromotionPlans[stage]
	if !ok {
		return nil, fmt.Errorf("stage %s does not run elimination rounds", stage)
	}
	if _, ok := racing.CourseByCode(s.rules.Courses, courseCode); !ok {
		return nil, fmt.Errorf("%w: %s", racing.ErrUnknownCourse, courseCode)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: empty result batch", racing.ErrInsufficientPlayers)
	}

	unlock := s.locks.Acquire(tournamentID, stage)
	defer unlock()

	var outcome *RoundOutcome
	err := withRetry(s.rules, func() error {
		entries, err := s.stages.ListStageEntries(ctx, store.StageFilter{
			TournamentID: tournamentID,
			Stage:        stage,
		})
		if err != nil {
			return err
		}

		var active []*racing.StageEntry
		for i := range entries {
			if !entries[i].Eliminated {
				active = append(active, &entries[i])
			}
		}

		timeByPlayer, err := matchResultsToRoster(results, active)
		if err != nil {
			return err
		}

		// Record the round's times before applying the elimination rule.
		for _, e := range active {
			if e.Times == nil {
				e.Times = racing.CourseTimes{}
			}
			e.Times[courseCode] = racing.FormatLapTime(timeByPlayer[e.PlayerID])
		}

		round := sortByTime(active, timeByPlayer)

		var o RoundOutcome
		if plan.Lives > 0 {
			o = s.applyLifeLoss(round)
		} else {
			o = s.applyDirectElimination(round, timeByPlayer, plan.SurvivorsNeeded)
		}

		remaining := activeCount(entries)
		o.ActiveCount = remaining
		o.StageComplete = remaining <= plan.SurvivorsNeeded

		recomputeStageRanks(entries)

		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		for i := range entries {
			if err := s.stages.UpdateStageEntryVersioned(ctx, tx, &entries[i]); err != nil {
				return err
			}
		}
		if err := tx.Commit(); err != nil {
			return err
		}

		outcome = &o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// applyDirectElimination knocks out the single slowest player, unless the
// stage is already down to the survivor count. A tie for slowest eliminates
// the first of the tied group in sort order (player ID breaks the tie).
func (s *PhaseService) applyDirectElimination(round []*racing.StageEntry, times map[uuid.UUID]int, survivorsNeeded int) RoundOutcome {
	if len(round) <= survivorsNeeded {
		return RoundOutcome{}
	}

	slowestTime := times[round[len(round)-1].PlayerID]
	victim := round[len(round)-1]
	for _, e := range round {
		if times[e.PlayerID] == slowestTime {
			victim = e
			break
		}
	}

	victim.Eliminated = true
	return RoundOutcome{Eliminated: []string{victim.PlayerName}}
}

// applyLifeLoss takes one life from each player in the slower half of the
// round. With an odd count the extra safe slot goes to the fast side. After
// eliminations, crossing an active-count threshold resets every remaining
// player's lives to the initial value.
func (s *PhaseService) applyLifeLoss(round []*racing.StageEntry) RoundOutcome {
	var o RoundOutcome

	safe := (len(round) + 1) / 2
	for _, e := range round[safe:] {
		e.Lives--
		if e.Lives <= 0 {
			e.Lives = 0
			e.Eliminated = true
			o.Eliminated = append(o.Eliminated, e.PlayerName)
		}
	}

	var stillActive []*racing.StageEntry
	for _, e := range round {
		if !e.Eliminated {
			stillActive = append(stillActive, e)
		}
	}

	if s.rules.LivesResetAt(len(stillActive)) {
		for _, e := range stillActive {
			e.Lives = s.rules.InitialLives
		}
		o.LivesReset = true
	}
	return o
}

// AdminSetLives overrides a player's remaining lives. Setting lives above
// zero on an eliminated player clears the elimination; this is the only path
// that walks an elimination back.
func (s *PhaseService) AdminSetLives(ctx context.Context, tournamentID, playerID uuid.UUID, stage racing.Stage, lives int) error {
	if lives < 0 {
		return fmt.Errorf("lives cannot be negative")
	}

	unlock := s.locks.Acquire(tournamentID, stage)
	defer unlock()

	return withRetry(s.rules, func() error {
		entry, err := s.stages.GetStageEntry(ctx, tournamentID, playerID, stage)
		if err != nil {
			return err
		}
		entry.Lives = lives
		if lives > 0 {
			entry.Eliminated = false
		}

		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if err := s.stages.UpdateStageEntryVersioned(ctx, tx, entry); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// matchResultsToRoster validates that a result batch covers exactly the
// active roster.
func matchResultsToRoster(results []CourseResult, active []*racing.StageEntry) (map[uuid.UUID]int, error) {
	byPlayer := make(map[uuid.UUID]int, len(results))
	for _, r := range results {
		if r.TimeMs < 0 {
			return nil, fmt.Errorf("%w: negative time for player %s", racing.ErrInvalidTime, r.PlayerID)
		}
		if _, dup := byPlayer[r.PlayerID]; dup {
			return nil, fmt.Errorf("duplicate result for player %s", r.PlayerID)
		}
		byPlayer[r.PlayerID] = r.TimeMs
	}

	if len(byPlayer) != len(active) {
		return nil, fmt.Errorf("result batch covers %d players, stage has %d active", len(byPlayer), len(active))
	}
	for _, e := range active {
		if _, ok := byPlayer[e.PlayerID]; !ok {
			return nil, fmt.Errorf("no result for active player %s", e.PlayerName)
		}
	}
	return byPlayer, nil
}

// sortByTime orders active entries fastest first, player ID breaking ties so
// every caller sees the same order.
func sortByTime(active []*racing.StageEntry, times map[uuid.UUID]int) []*racing.StageEntry {
	round := make([]*racing.StageEntry, len(active))
	copy(round, active)
	sort.Slice(round, func(i, j int) bool {
		ti, tj := times[round[i].PlayerID], times[round[j].PlayerID]
		if ti != tj {
			return ti < tj
		}
		return round[i].PlayerID.String() < round[j].PlayerID.String()
	})
	return round
}

func activeCount(entries []racing.StageEntry) int {
	n := 0
	for _, e := range entries {
		if !e.Eliminated {
			n++
		}
	}
	return n
}

// recomputeStageRanks assigns ranks across the whole stage: active players
// by lives (more is better) then total recorded time, eliminated players
// after them. Runs in full on every mutation.
func recomputeStageRanks(entries []racing.StageEntry) {
	idx := make([]*racing.StageEntry, len(entries))
	for i := range entries {
		idx[i] = &entries[i]
	}

	totals := make(map[uuid.UUID]int, len(entries))
	for _, e := range idx {
		total := 0
		for _, raw := range e.Times {
			if ms, ok, err := racing.ParseLapTime(raw); err == nil && ok {
				total += ms
			}
		}
		totals[e.PlayerID] = total
	}

	sort.Slice(idx, func(i, j int) bool {
		a, b := idx[i], idx[j]
		if a.Eliminated != b.Eliminated {
			return !a.Eliminated
		}
		if a.Lives != b.Lives {
			return a.Lives > b.Lives
		}
		if totals[a.PlayerID] != totals[b.PlayerID] {
			return totals[a.PlayerID] < totals[b.PlayerID]
		}
		return a.PlayerID.String() < b.PlayerID.String()
	})

	for i, e := range idx {
		rank := i + 1
		e.Rank = &rank
	}
}
