package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/AdamBeresnev/kart-cup/internal/racing"
	"github.com/AdamBeresnev/kart-cup/internal/store"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"
)

// RankingService merges every mode's qualification and finals points into the
// tie-aware overall tournament ranking.
type RankingService struct {
	db          *sqlx.DB
	stages      *store.StageStore
	matches     *store.MatchStore
	tournaments *store.TournamentStore
	scores      *store.ScoreStore
	rules       racing.Rules
	policy      TimeScorePolicy
}

func NewRankingService(db *sqlx.DB, stages *store.StageStore, matches *store.MatchStore, tournaments *store.TournamentStore, scores *store.ScoreStore, rules racing.Rules, policy TimeScorePolicy) *RankingService {
	if policy == nil {
		policy = LinearInterpolation{}
	}
	return &RankingService{
		db:          db,
		stages:      stages,
		matches:     matches,
		tournaments: tournaments,
		scores:      scores,
		rules:       rules,
		policy:      policy,
	}
}

// RecomputeOverall rebuilds the whole ranking snapshot from the current
// qualification and finals state. The player universe is the union of all
// modes' qualification data; missing categories count as zero.
func (s *RankingService) RecomputeOverall(ctx context.Context, tournamentID uuid.UUID) ([]racing.PlayerTournamentScore, error) {
	var mu sync.Mutex
	qualPoints := make(map[racing.Mode]map[uuid.UUID]int)
	finalsPoints := make(map[racing.Mode]map[uuid.UUID]int)

	g, gCtx := errgroup.WithContext(ctx)

	// Time-Attack runs on course times: qualification points come from the
	// qualification stage, finals points from the phase3 placement.
	g.Go(func() error {
		entries, err := s.stages.ListStageEntries(gCtx, store.StageFilter{
			TournamentID: tournamentID,
			Stage:        racing.StageQualification,
		})
		if err != nil {
			return fmt.Errorf("failed to load qualification times: %w", err)
		}
		points, err := NormalizeTimePoints(entries, s.rules.QualificationCourses, s.rules.QualificationMax, s.policy)
		if err != nil {
			return err
		}
		mu.Lock()
		qualPoints[racing.TimeAttack] = points
		mu.Unlock()
		return nil
	})

	g.Go(func() error {
		entries, err := s.stages.ListStageEntries(gCtx, store.StageFilter{
			TournamentID: tournamentID,
			Stage:        racing.StagePhase3,
		})
		if err != nil {
			return fmt.Errorf("failed to load phase3 placements: %w", err)
		}
		points := make(map[uuid.UUID]int, len(entries))
		for _, e := range entries {
			if e.Rank != nil {
				points[e.PlayerID] = s.rules.PlacementPoints(*e.Rank)
			}
		}
		mu.Lock()
		finalsPoints[racing.TimeAttack] = points
		mu.Unlock()
		return nil
	})

	// The head-to-head modes derive qualification points from match records
	// and finals points from their bracket placements.
	for _, mode := range []racing.Mode{racing.Battle, racing.MatchRace, racing.GrandPrix} {
		mode := mode
		g.Go(func() error {
			qualMatches, err := s.tournaments.ListQualMatches(gCtx, tournamentID, mode)
			if err != nil {
				return fmt.Errorf("failed to load %s qualification matches: %w", mode, err)
			}
			records := RebuildQualificationRecords(qualMatches)
			points := NormalizeMatchPoints(records, s.rules.QualificationMax)
			mu.Lock()
			qualPoints[mode] = points
			mu.Unlock()
			return nil
		})

		g.Go(func() error {
			bracketMatches, err := s.matches.GetMatches(gCtx, tournamentID, mode)
			if err != nil {
				return fmt.Errorf("failed to load %s bracket: %w", mode, err)
			}
			points := make(map[uuid.UUID]int)
			if placements, err := FinalsPlacements(bracketMatches); err == nil {
				for playerID, placement := range placements {
					points[playerID] = s.rules.PlacementPoints(placement)
				}
			}
			// An undecided bracket simply contributes zero finals points.
			mu.Lock()
			finalsPoints[mode] = points
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	scores := buildOverallScores(tournamentID, qualPoints, finalsPoints)
	assignCompetitionRanks(scores)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.scores.ReplaceScores(ctx, tx, tournamentID, scores); err != nil {
		return nil, fmt.Errorf("failed to store ranking snapshot: %w", err)
	}

	return scores, tx.Commit()
}

// buildOverallScores unions the qualification player sets and fills all eight
// point categories per player.
func buildOverallScores(tournamentID uuid.UUID, qualPoints, finalsPoints map[racing.Mode]map[uuid.UUID]int) []racing.PlayerTournamentScore {
	universe := make(map[uuid.UUID]bool)
	for _, points := range qualPoints {
		for playerID := range points {
			universe[playerID] = true
		}
	}

	scores := make([]racing.PlayerTournamentScore, 0, len(universe))
	for playerID := range universe {
		score := racing.PlayerTournamentScore{
			ID:           uuid.New(),
			TournamentID: tournamentID,
			PlayerID:     playerID,
		}
		for mode, points := range qualPoints {
			score.SetQualification(mode, points[playerID])
		}
		for mode, points := range finalsPoints {
			score.SetFinals(mode, points[playerID])
		}
		score.TotalPoints = score.Sum()
		scores = append(scores, score)
	}
	return scores
}

// assignCompetitionRanks sorts by total descending (player ID breaking ties
// for determinism) and assigns standard competition "1224" ranks: equal
// totals share a rank, and the next distinct total takes its true 1-based
// position.
func assignCompetitionRanks(scores []racing.PlayerTournamentScore) {
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].TotalPoints != scores[j].TotalPoints {
			return scores[i].TotalPoints > scores[j].TotalPoints
		}
		return scores[i].PlayerID.String() < scores[j].PlayerID.String()
	})

	rank := 0
	prevTotal := -1
	for i := range scores {
		if i == 0 || scores[i].TotalPoints != prevTotal {
			rank = i + 1
			prevTotal = scores[i].TotalPoints
		}
		r := rank
		scores[i].OverallRank = &r
	}
}
