package store

import (
	"context"
	"testing"

	"github.com/AdamBeresnev/kart-cup/internal/bracket"
	"github.com/AdamBeresnev/kart-cup/internal/racing"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates an in-memory SQLite database and applies migrations
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	database, err := sqlx.Connect("sqlite3", "file::memory:")
	require.NoError(t, err, "Failed to connect to in-memory DB")
	database.SetMaxOpenConns(1)

	_, err = database.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	driver, err := sqlite3.WithInstance(database.DB, &sqlite3.Config{})
	require.NoError(t, err, "Failed to create migrate driver instance")

	m, err := migrate.NewWithDatabaseInstance(
		"file://../../migrations",
		"sqlite3",
		driver,
	)
	require.NoError(t, err, "Failed to create migrate instance")

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		require.NoError(t, err, "Failed to apply migrations")
	}

	return database
}

func seedTournament(t *testing.T, db *sqlx.DB) uuid.UUID {
	t.Helper()

	ownerID := uuid.New()
	_, err := db.Exec("INSERT INTO users (id, email, username) VALUES (?, ?, ?)",
		ownerID, "owner@example.com", "owner")
	require.NoError(t, err)

	tournamentID := uuid.New()
	_, err = db.Exec("INSERT INTO tournaments (id, owner_id, name, status) VALUES (?, ?, ?, ?)",
		tournamentID, ownerID, "Test Cup", bracket.TournamentStarted)
	require.NoError(t, err)

	return tournamentID
}

func newEntry(tournamentID uuid.UUID, name string, stage racing.Stage) racing.StageEntry {
	return racing.StageEntry{
		ID:           uuid.New(),
		TournamentID: tournamentID,
		PlayerID:     uuid.New(),
		PlayerName:   name,
		Stage:        stage,
		Times:        racing.CourseTimes{},
	}
}

func TestCreateStageEntryIfAbsent(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	tournamentID := seedTournament(t, db)
	stages := NewStageStore(db)
	entry := newEntry(tournamentID, "Racer", racing.StageQualification)

	tx, err := db.Beginx()
	require.NoError(t, err)
	created, err := stages.CreateStageEntryIfAbsent(context.Background(), tx, &entry)
	require.NoError(t, err)
	assert.True(t, created)

	// Same (tournament, player, stage) again is a silent no-op.
	dup := entry
	dup.ID = uuid.New()
	created, err = stages.CreateStageEntryIfAbsent(context.Background(), tx, &dup)
	require.NoError(t, err)
	assert.False(t, created)
	require.NoError(t, tx.Commit())

	entries, err := stages.ListStageEntries(context.Background(), StageFilter{
		TournamentID: tournamentID,
		Stage:        racing.StageQualification,
	})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestUpdateStageEntryVersioned(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	tournamentID := seedTournament(t, db)
	stages := NewStageStore(db)
	entry := newEntry(tournamentID, "Racer", racing.StagePhase3)
	entry.Lives = 3

	tx, err := db.Beginx()
	require.NoError(t, err)
	_, err = stages.CreateStageEntryIfAbsent(context.Background(), tx, &entry)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	first, err := stages.GetStageEntry(context.Background(), tournamentID, entry.PlayerID, racing.StagePhase3)
	require.NoError(t, err)
	stale, err := stages.GetStageEntry(context.Background(), tournamentID, entry.PlayerID, racing.StagePhase3)
	require.NoError(t, err)

	first.Lives = 2
	tx, err = db.Beginx()
	require.NoError(t, err)
	require.NoError(t, stages.UpdateStageEntryVersioned(context.Background(), tx, first))
	require.NoError(t, tx.Commit())
	assert.Equal(t, 1, first.Version)

	// The second writer read version 0, which is gone now.
	stale.Lives = 1
	tx, err = db.Beginx()
	require.NoError(t, err)
	err = stages.UpdateStageEntryVersioned(context.Background(), tx, stale)
	assert.ErrorIs(t, err, racing.ErrConflict)
	require.NoError(t, tx.Rollback())

	current, err := stages.GetStageEntry(context.Background(), tournamentID, entry.PlayerID, racing.StagePhase3)
	require.NoError(t, err)
	assert.Equal(t, 2, current.Lives)
	assert.Equal(t, 1, current.Version)
}

func TestListStageEntriesActiveOnly(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	tournamentID := seedTournament(t, db)
	stages := NewStageStore(db)

	active := newEntry(tournamentID, "Active", racing.StagePhase1)
	out := newEntry(tournamentID, "Out", racing.StagePhase1)
	out.Eliminated = true

	tx, err := db.Beginx()
	require.NoError(t, err)
	_, err = stages.CreateStageEntryIfAbsent(context.Background(), tx, &active)
	require.NoError(t, err)
	_, err = stages.CreateStageEntryIfAbsent(context.Background(), tx, &out)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	all, err := stages.ListStageEntries(context.Background(), StageFilter{
		TournamentID: tournamentID,
		Stage:        racing.StagePhase1,
	})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	activeOnly, err := stages.ListStageEntries(context.Background(), StageFilter{
		TournamentID: tournamentID,
		Stage:        racing.StagePhase1,
		ActiveOnly:   true,
	})
	require.NoError(t, err)
	require.Len(t, activeOnly, 1)
	assert.Equal(t, "Active", activeOnly[0].PlayerName)
}
