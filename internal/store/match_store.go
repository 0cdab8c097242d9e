package store

import (
	"context"

	"github.com/AdamBeresnev/kart-cup/internal/bracket"
	"github.com/AdamBeresnev/kart-cup/internal/racing"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type MatchStore struct {
	db *sqlx.DB
}

func NewMatchStore(db *sqlx.DB) *MatchStore {
	return &MatchStore{db: db}
}

func (s *MatchStore) CreateMatches(ctx context.Context, tx *sqlx.Tx, matches []bracket.Match) error {
	if len(matches) == 0 {
		return nil
	}
	_, err := tx.NamedExecContext(ctx, `INSERT INTO matches
		(id, tournament_id, mode, bracket_side, round, bracket_position, is_grand_final,
		 player_1_id, player_2_id, player_1_wins, player_2_wins, status,
		 winner_next_match_id, winner_next_slot, loser_next_match_id, loser_next_slot, winner_slot, is_bye)
		VALUES (:id, :tournament_id, :mode, :bracket_side, :round, :bracket_position, :is_grand_final,
		 :player_1_id, :player_2_id, :player_1_wins, :player_2_wins, :status,
		 :winner_next_match_id, :winner_next_slot, :loser_next_match_id, :loser_next_slot, :winner_slot, :is_bye)`, matches)
	return err
}

func (s *MatchStore) GetMatch(ctx context.Context, id string) (*bracket.Match, error) {
	var match bracket.Match
	err := s.db.GetContext(ctx, &match, "SELECT * FROM matches WHERE id = ?", id)
	return &match, err
}

func (s *MatchStore) GetMatchTx(ctx context.Context, tx *sqlx.Tx, id string) (*bracket.Match, error) {
	var match bracket.Match
	err := tx.GetContext(ctx, &match, "SELECT * FROM matches WHERE id = ?", id)
	return &match, err
}

func (s *MatchStore) GetMatches(ctx context.Context, tournamentID uuid.UUID, mode racing.Mode) ([]bracket.Match, error) {
	var matches []bracket.Match
	err := s.db.SelectContext(ctx, &matches,
		"SELECT * FROM matches WHERE tournament_id = ? AND mode = ? ORDER BY bracket_side ASC, round ASC, bracket_position ASC",
		tournamentID, mode)
	return matches, err
}

// HasMatches reports whether a bracket was already generated for the mode.
func (s *MatchStore) HasMatches(ctx context.Context, tx *sqlx.Tx, tournamentID uuid.UUID, mode racing.Mode) (bool, error) {
	var count int
	err := tx.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM matches WHERE tournament_id = ? AND mode = ?", tournamentID, mode)
	return count > 0, err
}

const updateMatchQuery = `
	UPDATE matches SET
		player_1_id = :player_1_id,
		player_2_id = :player_2_id,
		player_1_wins = :player_1_wins,
		player_2_wins = :player_2_wins,
		status = :status,
		winner_slot = :winner_slot
	WHERE id = :id`

func (s *MatchStore) UpdateMatch(ctx context.Context, tx *sqlx.Tx, match *bracket.Match) error {
	_, err := tx.NamedExecContext(ctx, updateMatchQuery, match)
	return err
}
