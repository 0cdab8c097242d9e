package service

import (
	"context"
	"testing"

	"github.com/AdamBeresnev/kart-cup/internal/racing"
	"github.com/AdamBeresnev/kart-cup/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignCompetitionRanks(t *testing.T) {
	scores := []racing.PlayerTournamentScore{
		{PlayerID: uuid.New(), TotalPoints: 6500},
		{PlayerID: uuid.New(), TotalPoints: 7000},
		{PlayerID: uuid.New(), TotalPoints: 7000},
	}

	assignCompetitionRanks(scores)

	// Tied totals share a rank and the next distinct total takes its true
	// position: 7000, 7000, 6500 ranks as 1, 1, 3.
	require.NotNil(t, scores[0].OverallRank)
	assert.Equal(t, 7000, scores[0].TotalPoints)
	assert.Equal(t, 1, *scores[0].OverallRank)
	assert.Equal(t, 1, *scores[1].OverallRank)
	assert.Equal(t, 6500, scores[2].TotalPoints)
	assert.Equal(t, 3, *scores[2].OverallRank)
}

func TestBuildOverallScoresUnionsQualificationUniverse(t *testing.T) {
	tournamentID := uuid.New()
	taOnly := uuid.New()
	battleOnly := uuid.New()

	qualPoints := map[racing.Mode]map[uuid.UUID]int{
		racing.TimeAttack: {taOnly: 800},
		racing.Battle:     {battleOnly: 600},
	}
	finalsPoints := map[racing.Mode]map[uuid.UUID]int{
		racing.TimeAttack: {taOnly: 2000},
	}

	scores := buildOverallScores(tournamentID, qualPoints, finalsPoints)
	require.Len(t, scores, 2)

	byPlayer := make(map[uuid.UUID]racing.PlayerTournamentScore, len(scores))
	for _, s := range scores {
		byPlayer[s.PlayerID] = s
	}

	assert.Equal(t, 800, byPlayer[taOnly].QualTA)
	assert.Equal(t, 2000, byPlayer[taOnly].FinalsTA)
	assert.Equal(t, 2800, byPlayer[taOnly].TotalPoints)
	assert.Equal(t, 600, byPlayer[battleOnly].QualBM)
	assert.Equal(t, 600, byPlayer[battleOnly].TotalPoints)
}

func TestRecomputeOverallPersistsSnapshot(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	tournamentID := seedTournament(t, db)
	stages := store.NewStageStore(db)
	tournaments := store.NewTournamentStore(db)
	matches := store.NewMatchStore(db)
	scores := store.NewScoreStore(db)
	rules := racing.DefaultRules()

	qualSvc := NewQualificationService(db, stages, rules, nil)
	svc := NewRankingService(db, stages, matches, tournaments, scores, rules, nil)

	fast := racing.StageEntry{TournamentID: tournamentID, PlayerID: uuid.New(), PlayerName: "Fast", Stage: racing.StageQualification}
	slow := racing.StageEntry{TournamentID: tournamentID, PlayerID: uuid.New(), PlayerName: "Slow", Stage: racing.StageQualification}
	insertEntry(t, stages, db, &fast)
	insertEntry(t, stages, db, &slow)

	for _, course := range rules.QualificationCourses {
		require.NoError(t, qualSvc.SubmitTime(context.Background(), tournamentID, fast.PlayerID, course, "1:10.000"))
		require.NoError(t, qualSvc.SubmitTime(context.Background(), tournamentID, slow.PlayerID, course, "1:20.000"))
	}

	// One completed battle match: the winner banks the full qualification
	// ceiling, the loser zero.
	tx, err := db.Beginx()
	require.NoError(t, err)
	require.NoError(t, tournaments.CreateQualMatches(context.Background(), tx, []racing.QualMatch{{
		ID:            uuid.New(),
		TournamentID:  tournamentID,
		Mode:          racing.Battle,
		Player1ID:     fast.PlayerID,
		Player2ID:     slow.PlayerID,
		Player1Rounds: 3,
		Player2Rounds: 1,
		Completed:     true,
	}}))
	require.NoError(t, tx.Commit())

	result, err := svc.RecomputeOverall(context.Background(), tournamentID)
	require.NoError(t, err)
	require.Len(t, result, 2)

	byPlayer := make(map[uuid.UUID]racing.PlayerTournamentScore, len(result))
	for _, s := range result {
		byPlayer[s.PlayerID] = s
	}

	assert.Equal(t, rules.QualificationMax, byPlayer[fast.PlayerID].QualTA)
	assert.Equal(t, 0, byPlayer[slow.PlayerID].QualTA)
	assert.Equal(t, rules.QualificationMax, byPlayer[fast.PlayerID].QualBM)
	assert.Equal(t, 0, byPlayer[slow.PlayerID].QualBM)
	require.NotNil(t, byPlayer[fast.PlayerID].OverallRank)
	assert.Equal(t, 1, *byPlayer[fast.PlayerID].OverallRank)
	assert.Equal(t, 2, *byPlayer[slow.PlayerID].OverallRank)

	// The snapshot is stored and a rerun replaces it instead of stacking.
	stored, err := scores.ListScores(context.Background(), tournamentID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	_, err = svc.RecomputeOverall(context.Background(), tournamentID)
	require.NoError(t, err)
	stored, err = scores.ListScores(context.Background(), tournamentID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}
