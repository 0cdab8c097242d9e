package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/AdamBeresnev/kart-cup/internal/racing"
	"github.com/AdamBeresnev/kart-cup/internal/store"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// TimeScorePolicy converts one course time into a score given the session's
// best and worst valid times for that course. Implementations must be
// monotone: a faster time never scores lower.
type TimeScorePolicy interface {
	CourseScore(timeMs, bestMs, worstMs int, courseMax float64) float64
}

// LinearInterpolation scores the session-best time at courseMax and the
// session-worst at zero, interpolating linearly in between.
type LinearInterpolation struct{}

func (LinearInterpolation) CourseScore(timeMs, bestMs, worstMs int, courseMax float64) float64 {
	if worstMs == bestMs {
		return courseMax
	}
	return courseMax * float64(worstMs-timeMs) / float64(worstMs-bestMs)
}

// QualificationService normalizes raw per-mode results into comparable
// 0..QualificationMax point scores and keeps the qualification standings
// (totals + ranks) current.
type QualificationService struct {
	db     *sqlx.DB
	stages *store.StageStore
	rules  racing.Rules
	policy TimeScorePolicy
}

func NewQualificationService(db *sqlx.DB, stages *store.StageStore, rules racing.Rules, policy TimeScorePolicy) *QualificationService {
	if policy == nil {
		policy = LinearInterpolation{}
	}
	return &QualificationService{db: db, stages: stages, rules: rules, policy: policy}
}

// NormalizeTimePoints converts per-course times into a 0..ceiling score per
// player. Each course contributes an equal share of the ceiling, interpolated
// by the configured policy between the field's best and worst valid times.
// Players with no valid time on any course receive no entry.
func NormalizeTimePoints(entries []racing.StageEntry, courses []string, ceiling int, policy TimeScorePolicy) (map[uuid.UUID]int, error) {
	type parsed struct {
		playerID uuid.UUID
		times    map[string]int
	}

	players := make([]parsed, 0, len(entries))
	for _, e := range entries {
		p := parsed{playerID: e.PlayerID, times: make(map[string]int)}
		for _, code := range courses {
			raw, present := e.Times[code]
			if !present {
				continue
			}
			ms, ok, err := racing.ParseLapTime(raw)
			if err != nil {
				return nil, fmt.Errorf("player %s course %s: %w", e.PlayerName, code, err)
			}
			if ok {
				p.times[code] = ms
			}
		}
		if len(p.times) > 0 {
			players = append(players, p)
		}
	}

	courseMax := float64(ceiling) / float64(len(courses))
	totals := make(map[uuid.UUID]float64)

	for _, code := range courses {
		best, worst := 0, 0
		seen := false
		for _, p := range players {
			t, ok := p.times[code]
			if !ok {
				continue
			}
			if !seen || t < best {
				best = t
			}
			if !seen || t > worst {
				worst = t
			}
			seen = true
		}
		if !seen {
			continue
		}
		for _, p := range players {
			if t, ok := p.times[code]; ok {
				totals[p.playerID] += policy.CourseScore(t, best, worst, courseMax)
			}
		}
	}

	points := make(map[uuid.UUID]int, len(totals))
	for _, p := range players {
		points[p.playerID] = int(math.Round(totals[p.playerID]))
	}
	return points, nil
}

// NormalizeMatchPoints converts win/tie/loss records into a 0..ceiling score:
// raw = 2*wins + ties, normalized against the maximum achievable raw score
// for the player's scheduled match count. Losses contribute zero.
func NormalizeMatchPoints(records []racing.QualificationRecord, ceiling int) map[uuid.UUID]int {
	points := make(map[uuid.UUID]int, len(records))
	for _, r := range records {
		scheduled := r.Wins + r.Ties + r.Losses
		if scheduled == 0 {
			continue
		}
		raw := 2*r.Wins + r.Ties
		points[r.PlayerID] = int(math.Round(float64(raw) * float64(ceiling) / float64(2*scheduled)))
	}
	return points
}

// RebuildQualificationRecords recomputes every player's win/tie/loss record
// from scratch out of the completed matches. Incremental patching drifts, so
// the full derivation runs every time.
func RebuildQualificationRecords(matches []racing.QualMatch) []racing.QualificationRecord {
	byPlayer := make(map[uuid.UUID]*racing.QualificationRecord)
	record := func(id uuid.UUID) *racing.QualificationRecord {
		r, ok := byPlayer[id]
		if !ok {
			r = &racing.QualificationRecord{PlayerID: id}
			byPlayer[id] = r
		}
		return r
	}

	for _, m := range matches {
		if !m.Completed {
			continue
		}
		p1 := record(m.Player1ID)
		p2 := record(m.Player2ID)
		p1.RoundsWonDiff += m.Player1Rounds - m.Player2Rounds
		p2.RoundsWonDiff += m.Player2Rounds - m.Player1Rounds
		switch {
		case m.Player1Rounds > m.Player2Rounds:
			p1.Wins++
			p2.Losses++
		case m.Player1Rounds < m.Player2Rounds:
			p2.Wins++
			p1.Losses++
		default:
			p1.Ties++
			p2.Ties++
		}
	}

	records := make([]racing.QualificationRecord, 0, len(byPlayer))
	for _, r := range byPlayer {
		records = append(records, *r)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].PlayerID.String() < records[j].PlayerID.String()
	})
	return records
}

// RecomputeStandings refreshes totals and ranks on the qualification stage.
// Only entries with every required course completed get a total and a rank;
// the rest stay unranked. Runs to completion before returning so no partially
// ranked state is observable.
func (s *QualificationService) RecomputeStandings(ctx context.Context, tournamentID uuid.UUID) error {
	return withRetry(s.rules, func() error {
		entries, err := s.stages.ListStageEntries(ctx, store.StageFilter{
			TournamentID: tournamentID,
			Stage:        racing.StageQualification,
		})
		if err != nil {
			return err
		}

		type standing struct {
			entry *racing.StageEntry
			total int
		}
		var ranked []standing

		for i := range entries {
			e := &entries[i]
			total, complete, err := racing.SumCourseTimes(e.Times, s.rules.QualificationCourses)
			if err != nil {
				return err
			}
			if complete {
				e.TotalTimeMs = &total
				ranked = append(ranked, standing{entry: e, total: total})
			} else {
				e.TotalTimeMs = nil
				e.Rank = nil
			}
		}

		sort.Slice(ranked, func(i, j int) bool {
			if ranked[i].total != ranked[j].total {
				return ranked[i].total < ranked[j].total
			}
			return ranked[i].entry.PlayerID.String() < ranked[j].entry.PlayerID.String()
		})
		for i := range ranked {
			rank := i + 1
			ranked[i].entry.Rank = &rank
		}

		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		for i := range entries {
			if err := s.stages.UpdateStageEntryVersioned(ctx, tx, &entries[i]); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// SubmitTime records one qualification course time for a player and refreshes
// the standings.
func (s *QualificationService) SubmitTime(ctx context.Context, tournamentID, playerID uuid.UUID, courseCode, timeStr string) error {
	if _, ok := racing.CourseByCode(s.rules.Courses, courseCode); !ok {
		return fmt.Errorf("%w: %s", racing.ErrUnknownCourse, courseCode)
	}
	if _, _, err := racing.ParseLapTime(timeStr); err != nil {
		return err
	}

	err := withRetry(s.rules, func() error {
		entry, err := s.stages.GetStageEntry(ctx, tournamentID, playerID, racing.StageQualification)
		if err != nil {
			return err
		}
		if entry.Times == nil {
			entry.Times = racing.CourseTimes{}
		}
		entry.Times[courseCode] = timeStr

		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if err := s.stages.UpdateStageEntryVersioned(ctx, tx, entry); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return err
	}

	return s.RecomputeStandings(ctx, tournamentID)
}

// withRetry re-runs a read-compute-write sequence on version conflicts with
// exponentially increasing backoff, then surfaces the conflict.
func withRetry(rules racing.Rules, fn func() error) error {
	backoff := rules.RetryBackoff
	var err error
	for attempt := 0; attempt < rules.MaxRetryAttempts; attempt++ {
		err = fn()
		if !errors.Is(err, racing.ErrConflict) {
			return err
		}
		time.Sleep(backoff)
		backoff *= 2
	}
	return err
}
