package store

import (
	"context"

	"github.com/AdamBeresnev/kart-cup/internal/racing"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type ScoreStore struct {
	db *sqlx.DB
}

func NewScoreStore(db *sqlx.DB) *ScoreStore {
	return &ScoreStore{db: db}
}

// ReplaceScores swaps in a complete ranking snapshot for the tournament. The
// aggregator always recomputes every row, so there is no partial update path.
func (s *ScoreStore) ReplaceScores(ctx context.Context, tx *sqlx.Tx, tournamentID uuid.UUID, scores []racing.PlayerTournamentScore) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM tournament_scores WHERE tournament_id = ?", tournamentID); err != nil {
		return err
	}
	if len(scores) == 0 {
		return nil
	}
	_, err := tx.NamedExecContext(ctx, `INSERT INTO tournament_scores
		(id, tournament_id, player_id, qual_ta, qual_bm, qual_mr, qual_gp,
		 finals_ta, finals_bm, finals_mr, finals_gp, total_points, overall_rank)
		VALUES (:id, :tournament_id, :player_id, :qual_ta, :qual_bm, :qual_mr, :qual_gp,
		 :finals_ta, :finals_bm, :finals_mr, :finals_gp, :total_points, :overall_rank)`, scores)
	return err
}

func (s *ScoreStore) ListScores(ctx context.Context, tournamentID uuid.UUID) ([]racing.PlayerTournamentScore, error) {
	var scores []racing.PlayerTournamentScore
	err := s.db.SelectContext(ctx, &scores,
		"SELECT * FROM tournament_scores WHERE tournament_id = ? ORDER BY overall_rank ASC, player_id ASC",
		tournamentID)
	return scores, err
}
