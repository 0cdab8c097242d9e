package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/AdamBeresnev/kart-cup/internal/racing"
	"github.com/AdamBeresnev/kart-cup/internal/store"
	"github.com/AdamBeresnev/kart-cup/internal/utils"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// insertEntry writes one stage entry through the store.
func insertEntry(t *testing.T, stages *store.StageStore, db *sqlx.DB, entry *racing.StageEntry) {
	t.Helper()
	tx, err := db.Beginx()
	require.NoError(t, err)
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Times == nil {
		entry.Times = racing.CourseTimes{}
	}
	_, err = stages.CreateStageEntryIfAbsent(context.Background(), tx, entry)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
}

// seedQualifiedField inserts n qualification entries ranked 1..n.
func seedQualifiedField(t *testing.T, stages *store.StageStore, db *sqlx.DB, tournamentID uuid.UUID, n int) map[int]racing.StageEntry {
	t.Helper()
	byRank := make(map[int]racing.StageEntry, n)
	for rank := 1; rank <= n; rank++ {
		entry := racing.StageEntry{
			TournamentID: tournamentID,
			PlayerID:     uuid.New(),
			PlayerName:   fmt.Sprintf("Racer %d", rank),
			Stage:        racing.StageQualification,
			TotalTimeMs:  utils.Ptr(240000 + rank*1000),
			Rank:         utils.Ptr(rank),
		}
		insertEntry(t, stages, db, &entry)
		byRank[rank] = entry
	}
	return byRank
}

func TestPromoteStageSeedsRankBand(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	tournamentID := seedTournament(t, db)
	stages := store.NewStageStore(db)
	svc := NewPhaseService(db, stages, racing.DefaultRules(), NewStageLocks())

	byRank := seedQualifiedField(t, stages, db, tournamentID, 24)

	result, err := svc.PromoteStage(context.Background(), tournamentID, racing.StagePhase1)
	require.NoError(t, err)
	require.Len(t, result.Promoted, 8)
	assert.Empty(t, result.Skipped)

	promoted := make(map[uuid.UUID]bool)
	for _, e := range result.Promoted {
		assert.Equal(t, racing.StagePhase1, e.Stage)
		assert.Equal(t, 0, e.Lives)
		promoted[e.PlayerID] = true
	}
	for rank := 17; rank <= 24; rank++ {
		assert.True(t, promoted[byRank[rank].PlayerID], "rank %d should be promoted", rank)
	}

	// Promotion is idempotent: a second run creates nothing.
	again, err := svc.PromoteStage(context.Background(), tournamentID, racing.StagePhase1)
	require.NoError(t, err)
	assert.Empty(t, again.Promoted)
}

func TestPromoteStageReportsUnrankedPlayers(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	tournamentID := seedTournament(t, db)
	stages := store.NewStageStore(db)
	svc := NewPhaseService(db, stages, racing.DefaultRules(), NewStageLocks())

	seedQualifiedField(t, stages, db, tournamentID, 24)
	insertEntry(t, stages, db, &racing.StageEntry{
		TournamentID: tournamentID,
		PlayerID:     uuid.New(),
		PlayerName:   "No Show",
		Stage:        racing.StageQualification,
	})

	result, err := svc.PromoteStage(context.Background(), tournamentID, racing.StagePhase1)
	require.NoError(t, err)
	assert.Len(t, result.Promoted, 8)
	assert.Equal(t, []string{"No Show"}, result.Skipped)
}

func TestPromoteStageCombinesSurvivorsWithRankBand(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	tournamentID := seedTournament(t, db)
	stages := store.NewStageStore(db)
	svc := NewPhaseService(db, stages, racing.DefaultRules(), NewStageLocks())

	seedQualifiedField(t, stages, db, tournamentID, 24)

	// 4 phase1 survivors plus 4 eliminated who must not carry over.
	for i := 0; i < 8; i++ {
		insertEntry(t, stages, db, &racing.StageEntry{
			TournamentID: tournamentID,
			PlayerID:     uuid.New(),
			PlayerName:   fmt.Sprintf("Phase1 %d", i),
			Stage:        racing.StagePhase1,
			Eliminated:   i >= 4,
		})
	}

	result, err := svc.PromoteStage(context.Background(), tournamentID, racing.StagePhase2)
	require.NoError(t, err)
	// Ranks 13..16 plus the 4 survivors.
	assert.Len(t, result.Promoted, 8)
}

func TestPromoteStageWithoutEligiblePlayers(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	tournamentID := seedTournament(t, db)
	stages := store.NewStageStore(db)
	svc := NewPhaseService(db, stages, racing.DefaultRules(), NewStageLocks())

	_, err := svc.PromoteStage(context.Background(), tournamentID, racing.StagePhase1)
	assert.ErrorIs(t, err, racing.ErrInsufficientPlayers)
}

func TestProcessCourseResultsEliminatesSlowest(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	tournamentID := seedTournament(t, db)
	stages := store.NewStageStore(db)
	svc := NewPhaseService(db, stages, racing.DefaultRules(), NewStageLocks())

	var results []CourseResult
	for i := 0; i < 8; i++ {
		entry := racing.StageEntry{
			TournamentID: tournamentID,
			PlayerID:     uuid.New(),
			PlayerName:   fmt.Sprintf("Racer %d", i+1),
			Stage:        racing.StagePhase1,
		}
		insertEntry(t, stages, db, &entry)
		results = append(results, CourseResult{PlayerID: entry.PlayerID, TimeMs: 60000 + i*500})
	}

	outcome, err := svc.ProcessCourseResults(context.Background(), tournamentID, racing.StagePhase1, "SSP", results)
	require.NoError(t, err)
	assert.Equal(t, []string{"Racer 8"}, outcome.Eliminated)
	assert.Equal(t, 7, outcome.ActiveCount)
	assert.False(t, outcome.StageComplete)

	// The round's times are recorded on the entries.
	entries, err := stages.ListStageEntries(context.Background(), store.StageFilter{
		TournamentID: tournamentID,
		Stage:        racing.StagePhase1,
	})
	require.NoError(t, err)
	for _, e := range entries {
		assert.Contains(t, e.Times, "SSP")
	}
}

func TestProcessCourseResultsRunsPhaseToCompletion(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	tournamentID := seedTournament(t, db)
	stages := store.NewStageStore(db)
	svc := NewPhaseService(db, stages, racing.DefaultRules(), NewStageLocks())

	players := make([]uuid.UUID, 8)
	for i := range players {
		entry := racing.StageEntry{
			TournamentID: tournamentID,
			PlayerID:     uuid.New(),
			PlayerName:   fmt.Sprintf("Racer %d", i+1),
			Stage:        racing.StagePhase1,
		}
		insertEntry(t, stages, db, &entry)
		players[i] = entry.PlayerID
	}

	courses := []string{"SSP", "CCV", "MMR", "PPB"}
	for round := 0; round < 4; round++ {
		entries, err := stages.ListStageEntries(context.Background(), store.StageFilter{
			TournamentID: tournamentID,
			Stage:        racing.StagePhase1,
			ActiveOnly:   true,
		})
		require.NoError(t, err)

		var results []CourseResult
		for i, e := range entries {
			results = append(results, CourseResult{PlayerID: e.PlayerID, TimeMs: 60000 + i*500})
		}

		outcome, err := svc.ProcessCourseResults(context.Background(), tournamentID, racing.StagePhase1, courses[round], results)
		require.NoError(t, err)
		assert.Len(t, outcome.Eliminated, 1)
		assert.Equal(t, 7-round, outcome.ActiveCount)
		assert.Equal(t, round == 3, outcome.StageComplete)
	}
}

func TestProcessCourseResultsLifeLossAndReset(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	tournamentID := seedTournament(t, db)
	stages := store.NewStageStore(db)
	rules := racing.DefaultRules()
	svc := NewPhaseService(db, stages, rules, NewStageLocks())

	// 6 active players; the two slowest sit at one life so this round drops
	// the field to 4, which is a reset threshold.
	lives := []int{3, 3, 3, 3, 1, 1}
	var results []CourseResult
	for i, l := range lives {
		entry := racing.StageEntry{
			TournamentID: tournamentID,
			PlayerID:     uuid.New(),
			PlayerName:   fmt.Sprintf("Racer %d", i+1),
			Stage:        racing.StagePhase3,
			Lives:        l,
		}
		insertEntry(t, stages, db, &entry)
		results = append(results, CourseResult{PlayerID: entry.PlayerID, TimeMs: 60000 + i*500})
	}

	outcome, err := svc.ProcessCourseResults(context.Background(), tournamentID, racing.StagePhase3, "SSP", results)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Racer 5", "Racer 6"}, outcome.Eliminated)
	assert.Equal(t, 4, outcome.ActiveCount)
	assert.True(t, outcome.LivesReset)
	assert.False(t, outcome.StageComplete)

	entries, err := stages.ListStageEntries(context.Background(), store.StageFilter{
		TournamentID: tournamentID,
		Stage:        racing.StagePhase3,
		ActiveOnly:   true,
	})
	require.NoError(t, err)
	require.Len(t, entries, 4)
	for _, e := range entries {
		assert.Equal(t, rules.InitialLives, e.Lives)
	}
}

func TestProcessCourseResultsRejectsPartialBatch(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	tournamentID := seedTournament(t, db)
	stages := store.NewStageStore(db)
	svc := NewPhaseService(db, stages, racing.DefaultRules(), NewStageLocks())

	var results []CourseResult
	for i := 0; i < 4; i++ {
		entry := racing.StageEntry{
			TournamentID: tournamentID,
			PlayerID:     uuid.New(),
			PlayerName:   fmt.Sprintf("Racer %d", i+1),
			Stage:        racing.StagePhase1,
		}
		insertEntry(t, stages, db, &entry)
		results = append(results, CourseResult{PlayerID: entry.PlayerID, TimeMs: 60000 + i*500})
	}

	_, err := svc.ProcessCourseResults(context.Background(), tournamentID, racing.StagePhase1, "SSP", results[:3])
	assert.ErrorContains(t, err, "covers 3 players")

	// Nothing was written.
	entries, err := stages.ListStageEntries(context.Background(), store.StageFilter{
		TournamentID: tournamentID,
		Stage:        racing.StagePhase1,
	})
	require.NoError(t, err)
	for _, e := range entries {
		assert.Empty(t, e.Times)
		assert.False(t, e.Eliminated)
	}
}

func TestProcessCourseResultsRejectsUnknownCourse(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	tournamentID := seedTournament(t, db)
	svc := NewPhaseService(db, store.NewStageStore(db), racing.DefaultRules(), NewStageLocks())

	_, err := svc.ProcessCourseResults(context.Background(), tournamentID, racing.StagePhase1, "XXX",
		[]CourseResult{{PlayerID: uuid.New(), TimeMs: 60000}})
	assert.ErrorIs(t, err, racing.ErrUnknownCourse)
}

func TestAdminSetLivesRevivesEliminatedPlayer(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	tournamentID := seedTournament(t, db)
	stages := store.NewStageStore(db)
	svc := NewPhaseService(db, stages, racing.DefaultRules(), NewStageLocks())

	entry := racing.StageEntry{
		TournamentID: tournamentID,
		PlayerID:     uuid.New(),
		PlayerName:   "Revived",
		Stage:        racing.StagePhase3,
		Eliminated:   true,
	}
	insertEntry(t, stages, db, &entry)

	err := svc.AdminSetLives(context.Background(), tournamentID, entry.PlayerID, racing.StagePhase3, 2)
	require.NoError(t, err)

	updated, err := stages.GetStageEntry(context.Background(), tournamentID, entry.PlayerID, racing.StagePhase3)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Lives)
	assert.False(t, updated.Eliminated)

	err = svc.AdminSetLives(context.Background(), tournamentID, entry.PlayerID, racing.StagePhase3, -1)
	assert.Error(t, err)
}
