package service

import (
	"context"
	"testing"

	"github.com/AdamBeresnev/kart-cup/internal/bracket"
	"github.com/AdamBeresnev/kart-cup/internal/middleware"
	"github.com/AdamBeresnev/kart-cup/internal/racing"
	"github.com/AdamBeresnev/kart-cup/internal/store"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ownerContext returns a context carrying a freshly inserted user's ID, the
// way the auth middleware populates it.
func ownerContext(t *testing.T, db *sqlx.DB) context.Context {
	t.Helper()
	ownerID := uuid.New()
	_, err := db.Exec("INSERT INTO users (id, email, username) VALUES (?, ?, ?)",
		ownerID, "owner@example.com", "owner")
	require.NoError(t, err)
	return context.WithValue(context.Background(), middleware.UserIDKey, ownerID)
}

func TestCreateTournamentOpensQualification(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	stages := store.NewStageStore(db)
	svc := NewTournamentService(db, store.NewTournamentStore(db), stages)
	ctx := ownerContext(t, db)

	roster := []PlayerInput{{Name: "Ada"}, {Name: "Brook"}, {Name: "Cleo"}}
	tournamentID, err := svc.CreateTournament(ctx, "Summer Cup", roster)
	require.NoError(t, err)

	data, err := svc.GetTournamentData(ctx, tournamentID.String())
	require.NoError(t, err)
	assert.Equal(t, "Summer Cup", data.Tournament.Name)
	require.Len(t, data.Qualification, 3)
	for _, e := range data.Qualification {
		assert.Equal(t, racing.StageQualification, e.Stage)
		assert.Nil(t, e.Rank)
	}

	owned, err := svc.GetTournamentsForUser(ctx)
	require.NoError(t, err)
	assert.Len(t, owned, 1)
}

func TestCreateTournamentRejectsEmptyRoster(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := NewTournamentService(db, store.NewTournamentStore(db), store.NewStageStore(db))
	_, err := svc.CreateTournament(ownerContext(t, db), "Empty Cup", nil)
	assert.ErrorIs(t, err, racing.ErrInsufficientPlayers)
}

func TestCompleteTournament(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	tournaments := store.NewTournamentStore(db)
	svc := NewTournamentService(db, tournaments, store.NewStageStore(db))
	ctx := ownerContext(t, db)

	tournamentID, err := svc.CreateTournament(ctx, "Cup", []PlayerInput{{Name: "Ada"}})
	require.NoError(t, err)

	require.NoError(t, svc.CompleteTournament(ctx, tournamentID))

	got, err := tournaments.GetTournament(ctx, tournamentID.String())
	require.NoError(t, err)
	assert.Equal(t, bracket.TournamentCompleted, got.Status)

	err = svc.CompleteTournament(ctx, uuid.New())
	assert.Error(t, err)
}

func TestScheduleAndReportQualMatch(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := NewTournamentService(db, store.NewTournamentStore(db), store.NewStageStore(db))
	ctx := ownerContext(t, db)

	tournamentID, err := svc.CreateTournament(ctx, "Cup", []PlayerInput{{Name: "Ada"}, {Name: "Brook"}})
	require.NoError(t, err)

	data, err := svc.GetTournamentData(ctx, tournamentID.String())
	require.NoError(t, err)
	p1 := data.Qualification[0].PlayerID
	p2 := data.Qualification[1].PlayerID

	matches, err := svc.ScheduleQualMatches(ctx, tournamentID, racing.Battle, [][2]uuid.UUID{{p1, p2}})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.False(t, matches[0].Completed)

	require.NoError(t, svc.ReportQualMatch(ctx, matches[0].ID, 3, 1))

	err = svc.ReportQualMatch(ctx, matches[0].ID, -1, 0)
	assert.Error(t, err)

	stored, err := store.NewTournamentStore(db).ListQualMatches(ctx, tournamentID, racing.Battle)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].Completed)
	assert.Equal(t, 3, stored[0].Player1Rounds)
}
