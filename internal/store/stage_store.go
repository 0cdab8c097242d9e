package store

import (
	"context"

	"github.com/AdamBeresnev/kart-cup/internal/racing"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// StageFilter is a typed query filter for stage entries.
type StageFilter struct {
	TournamentID uuid.UUID
	Stage        racing.Stage
	ActiveOnly   bool
}

type StageStore struct {
	db *sqlx.DB
}

func NewStageStore(db *sqlx.DB) *StageStore {
	return &StageStore{db: db}
}

const createStageEntryQuery = `
	INSERT INTO stage_entries (id, tournament_id, player_id, player_name, stage, lives, eliminated, times, total_time_ms, stage_rank, version)
	VALUES (:id, :tournament_id, :player_id, :player_name, :stage, :lives, :eliminated, :times, :total_time_ms, :stage_rank, :version)
	ON CONFLICT (tournament_id, player_id, stage) DO NOTHING`

// CreateStageEntryIfAbsent inserts an entry unless the (tournament, player,
// stage) row already exists. Re-promotion is an idempotent no-op: the return
// value reports whether the row was actually created.
func (s *StageStore) CreateStageEntryIfAbsent(ctx context.Context, tx *sqlx.Tx, entry *racing.StageEntry) (bool, error) {
	res, err := tx.NamedExecContext(ctx, createStageEntryQuery, entry)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *StageStore) GetStageEntry(ctx context.Context, tournamentID, playerID uuid.UUID, stage racing.Stage) (*racing.StageEntry, error) {
	var entry racing.StageEntry
	err := s.db.GetContext(ctx, &entry,
		"SELECT * FROM stage_entries WHERE tournament_id = ? AND player_id = ? AND stage = ?",
		tournamentID, playerID, stage)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *StageStore) ListStageEntries(ctx context.Context, filter StageFilter) ([]racing.StageEntry, error) {
	return listStageEntries(ctx, s.db, filter)
}

func (s *StageStore) ListStageEntriesTx(ctx context.Context, tx *sqlx.Tx, filter StageFilter) ([]racing.StageEntry, error) {
	return listStageEntries(ctx, tx, filter)
}

func listStageEntries(ctx context.Context, q sqlx.QueryerContext, filter StageFilter) ([]racing.StageEntry, error) {
	query := "SELECT * FROM stage_entries WHERE tournament_id = ? AND stage = ?"
	args := []interface{}{filter.TournamentID, filter.Stage}
	if filter.ActiveOnly {
		query += " AND eliminated = 0"
	}
	query += " ORDER BY created_at ASC, player_id ASC"

	var entries []racing.StageEntry
	err := sqlx.SelectContext(ctx, q, &entries, query, args...)
	return entries, err
}

const updateStageEntryQuery = `
	UPDATE stage_entries SET
		lives = :lives,
		eliminated = :eliminated,
		times = :times,
		total_time_ms = :total_time_ms,
		stage_rank = :stage_rank,
		version = :version + 1
	WHERE id = :id AND version = :version`

// UpdateStageEntryVersioned commits an entry conditionally on its version
// being unchanged since the read. A lost race surfaces as ErrConflict so the
// caller can retry the whole read-compute-write sequence.
func (s *StageStore) UpdateStageEntryVersioned(ctx context.Context, tx *sqlx.Tx, entry *racing.StageEntry) error {
	res, err := tx.NamedExecContext(ctx, updateStageEntryQuery, entry)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return racing.ErrConflict
	}
	entry.Version++
	return nil
}
