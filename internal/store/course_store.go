package store

import (
	"context"

	"github.com/AdamBeresnev/kart-cup/internal/racing"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type CourseStore struct {
	db *sqlx.DB
}

func NewCourseStore(db *sqlx.DB) *CourseStore {
	return &CourseStore{db: db}
}

// ListPlays returns the append-only selection log for a (tournament, stage)
// in selection order.
func (s *CourseStore) ListPlays(ctx context.Context, tournamentID uuid.UUID, stage racing.Stage) ([]racing.CoursePlay, error) {
	var plays []racing.CoursePlay
	err := s.db.SelectContext(ctx, &plays,
		"SELECT * FROM course_plays WHERE tournament_id = ? AND stage = ? ORDER BY seq ASC",
		tournamentID, stage)
	return plays, err
}

func (s *CourseStore) AppendPlay(ctx context.Context, tx *sqlx.Tx, play *racing.CoursePlay) error {
	_, err := tx.NamedExecContext(ctx, `INSERT INTO course_plays (tournament_id, stage, course_code, seq)
		VALUES (:tournament_id, :stage, :course_code, :seq)`, play)
	return err
}
