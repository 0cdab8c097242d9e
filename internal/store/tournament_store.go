package store

import (
	"context"

	"github.com/AdamBeresnev/kart-cup/internal/bracket"
	"github.com/AdamBeresnev/kart-cup/internal/racing"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type TournamentStore struct {
	db *sqlx.DB
}

func NewTournamentStore(db *sqlx.DB) *TournamentStore {
	return &TournamentStore{db: db}
}

func (s *TournamentStore) CreateTournament(ctx context.Context, tx *sqlx.Tx, tournament *bracket.Tournament) error {
	_, err := tx.NamedExecContext(ctx, `INSERT INTO tournaments (id, owner_id, name, status)
        VALUES (:id, :owner_id, :name, :status)`, tournament)
	return err
}

func (s *TournamentStore) GetTournament(ctx context.Context, id string) (*bracket.Tournament, error) {
	var tournament bracket.Tournament
	err := s.db.GetContext(ctx, &tournament, "SELECT * FROM tournaments WHERE id = ?", id)
	return &tournament, err
}

func (s *TournamentStore) GetTournamentTx(ctx context.Context, tx *sqlx.Tx, id string) (*bracket.Tournament, error) {
	var tournament bracket.Tournament
	err := tx.GetContext(ctx, &tournament, "SELECT * FROM tournaments WHERE id = ?", id)
	return &tournament, err
}

func (s *TournamentStore) GetTournamentsByOwner(ctx context.Context, ownerID uuid.UUID) ([]bracket.Tournament, error) {
	var tournaments []bracket.Tournament
	err := s.db.SelectContext(ctx, &tournaments,
		"SELECT * FROM tournaments WHERE owner_id = ? ORDER BY created_at DESC", ownerID)
	return tournaments, err
}

func (s *TournamentStore) UpdateTournamentStatusTx(ctx context.Context, tx *sqlx.Tx, id string, status bracket.TournamentStatus) error {
	_, err := tx.ExecContext(ctx, "UPDATE tournaments SET status = ? WHERE id = ?", status, id)
	return err
}

// Qualification head-to-head matches live with the tournament: they are the
// raw input the derived QualificationRecords are rebuilt from.

func (s *TournamentStore) CreateQualMatches(ctx context.Context, tx *sqlx.Tx, matches []racing.QualMatch) error {
	if len(matches) == 0 {
		return nil
	}
	_, err := tx.NamedExecContext(ctx, `INSERT INTO qual_matches
		(id, tournament_id, mode, player_1_id, player_2_id, player_1_rounds, player_2_rounds, completed)
		VALUES (:id, :tournament_id, :mode, :player_1_id, :player_2_id, :player_1_rounds, :player_2_rounds, :completed)`,
		matches)
	return err
}

func (s *TournamentStore) UpdateQualMatch(ctx context.Context, tx *sqlx.Tx, match *racing.QualMatch) error {
	_, err := tx.NamedExecContext(ctx, `UPDATE qual_matches SET
		player_1_rounds = :player_1_rounds,
		player_2_rounds = :player_2_rounds,
		completed = :completed
		WHERE id = :id`, match)
	return err
}

func (s *TournamentStore) ListQualMatches(ctx context.Context, tournamentID uuid.UUID, mode racing.Mode) ([]racing.QualMatch, error) {
	var matches []racing.QualMatch
	err := s.db.SelectContext(ctx, &matches,
		"SELECT * FROM qual_matches WHERE tournament_id = ? AND mode = ? ORDER BY id ASC",
		tournamentID, mode)
	return matches, err
}
