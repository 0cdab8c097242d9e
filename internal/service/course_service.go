package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/AdamBeresnev/kart-cup/internal/racing"
	"github.com/AdamBeresnev/kart-cup/internal/store"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// CourseService picks the next course for a stage round. Selections are
// logged per (tournament, stage); a course never repeats within a cycle of
// len(courses) picks, and the pool resets automatically once a cycle is
// exhausted.
type CourseService struct {
	db      *sqlx.DB
	courses *store.CourseStore
	rules   racing.Rules
	locks   *StageLocks

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewCourseService takes a seedable random source so selections are
// reproducible in tests.
func NewCourseService(db *sqlx.DB, courses *store.CourseStore, rules racing.Rules, locks *StageLocks, rng *rand.Rand) *CourseService {
	return &CourseService{db: db, courses: courses, rules: rules, locks: locks, rng: rng}
}

// PickCourse draws a uniform-random course from the part of the table not yet
// played in the current cycle and appends it to the play log.
func (s *CourseService) PickCourse(ctx context.Context, tournamentID uuid.UUID, stage racing.Stage) (racing.Course, error) {
	if len(s.rules.Courses) == 0 {
		return racing.Course{}, racing.ErrNoCoursesConfigured
	}

	unlock := s.locks.Acquire(tournamentID, stage)
	defer unlock()

	plays, err := s.courses.ListPlays(ctx, tournamentID, stage)
	if err != nil {
		return racing.Course{}, fmt.Errorf("failed to load course history: %w", err)
	}

	available := s.availableCourses(plays)

	s.rngMu.Lock()
	pick := available[s.rng.Intn(len(available))]
	s.rngMu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return racing.Course{}, err
	}
	defer tx.Rollback()

	play := &racing.CoursePlay{
		TournamentID: tournamentID,
		Stage:        stage,
		CourseCode:   pick.Code,
		Seq:          len(plays),
	}
	if err := s.courses.AppendPlay(ctx, tx, play); err != nil {
		return racing.Course{}, fmt.Errorf("failed to record course selection: %w", err)
	}

	return pick, tx.Commit()
}

// availableCourses is the full table minus the courses played since the
// current cycle boundary. The boundary falls on every len(courses) picks, so
// an exhausted pool resets without a dedicated reset operation.
func (s *CourseService) availableCourses(plays []racing.CoursePlay) []racing.Course {
	cycleStart := (len(plays) / len(s.rules.Courses)) * len(s.rules.Courses)

	playedThisCycle := make(map[string]bool)
	for _, p := range plays[cycleStart:] {
		playedThisCycle[p.CourseCode] = true
	}

	available := make([]racing.Course, 0, len(s.rules.Courses))
	for _, c := range s.rules.Courses {
		if !playedThisCycle[c.Code] {
			available = append(available, c)
		}
	}
	return available
}
