package service

import (
	"context"
	"fmt"

	"github.com/AdamBeresnev/kart-cup/internal/bracket"
	"github.com/AdamBeresnev/kart-cup/internal/middleware"
	"github.com/AdamBeresnev/kart-cup/internal/racing"
	"github.com/AdamBeresnev/kart-cup/internal/store"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"
)

type TournamentService struct {
	db          *sqlx.DB
	tournaments *store.TournamentStore
	stages      *store.StageStore
}

func NewTournamentService(db *sqlx.DB, tournaments *store.TournamentStore, stages *store.StageStore) *TournamentService {
	return &TournamentService{db: db, tournaments: tournaments, stages: stages}
}

type PlayerInput struct {
	Name string
}

type TournamentData struct {
	Tournament    *bracket.Tournament
	Qualification []racing.StageEntry
}

// CreateTournament registers a tournament and opens its qualification stage
// with the given roster.
func (s *TournamentService) CreateTournament(ctx context.Context, name string, roster []PlayerInput) (uuid.UUID, error) {
	if len(roster) == 0 {
		return uuid.Nil, fmt.Errorf("%w: empty roster", racing.ErrInsufficientPlayers)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return uuid.Nil, err
	}
	defer tx.Rollback()

	tournamentID := uuid.New()
	ownerID, _ := middleware.GetUserIDFromContext(ctx)
	tournament := bracket.Tournament{
		ID:      tournamentID,
		OwnerID: ownerID,
		Name:    name,
		Status:  bracket.TournamentStarted,
	}

	if err := s.tournaments.CreateTournament(ctx, tx, &tournament); err != nil {
		return uuid.Nil, err
	}

	for _, input := range roster {
		entry := racing.StageEntry{
			ID:           uuid.New(),
			TournamentID: tournamentID,
			PlayerID:     uuid.New(),
			PlayerName:   input.Name,
			Stage:        racing.StageQualification,
			Times:        racing.CourseTimes{},
		}
		if _, err := s.stages.CreateStageEntryIfAbsent(ctx, tx, &entry); err != nil {
			return uuid.Nil, fmt.Errorf("failed to register %s: %w", input.Name, err)
		}
	}

	return tournamentID, tx.Commit()
}

func (s *TournamentService) GetTournamentData(ctx context.Context, id string) (*TournamentData, error) {
	tournamentID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid tournament id: %w", err)
	}

	data := &TournamentData{}
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		tournament, err := s.tournaments.GetTournament(gCtx, id)
		if err != nil {
			return err
		}
		data.Tournament = tournament
		return nil
	})

	g.Go(func() error {
		entries, err := s.stages.ListStageEntries(gCtx, store.StageFilter{
			TournamentID: tournamentID,
			Stage:        racing.StageQualification,
		})
		if err != nil {
			return err
		}
		data.Qualification = entries
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *TournamentService) GetTournamentsForUser(ctx context.Context) ([]bracket.Tournament, error) {
	userID, ok := middleware.GetUserIDFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("user ID not found in the context")
	}
	return s.tournaments.GetTournamentsByOwner(ctx, userID)
}

// CompleteTournament closes a tournament once the organizer is done with it.
// Completion is a bookkeeping flag; it does not validate that every bracket
// and phase finished.
func (s *TournamentService) CompleteTournament(ctx context.Context, tournamentID uuid.UUID) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := s.tournaments.GetTournamentTx(ctx, tx, tournamentID.String()); err != nil {
		return err
	}
	if err := s.tournaments.UpdateTournamentStatusTx(ctx, tx, tournamentID.String(), bracket.TournamentCompleted); err != nil {
		return err
	}
	return tx.Commit()
}

// ScheduleQualMatches registers the head-to-head qualification pairings for
// a mode. Round counts start at zero; results come in through ReportQualMatch.
func (s *TournamentService) ScheduleQualMatches(ctx context.Context, tournamentID uuid.UUID, mode racing.Mode, pairings [][2]uuid.UUID) ([]racing.QualMatch, error) {
	if len(pairings) == 0 {
		return nil, fmt.Errorf("%w: no pairings", racing.ErrInsufficientPlayers)
	}

	matches := make([]racing.QualMatch, 0, len(pairings))
	for _, pair := range pairings {
		matches = append(matches, racing.QualMatch{
			ID:           uuid.New(),
			TournamentID: tournamentID,
			Mode:         mode,
			Player1ID:    pair[0],
			Player2ID:    pair[1],
		})
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.tournaments.CreateQualMatches(ctx, tx, matches); err != nil {
		return nil, err
	}
	return matches, tx.Commit()
}

// ReportQualMatch records a completed qualification match's round scores.
// Derived records are never touched here; they are rebuilt from the match
// set whenever they are read.
func (s *TournamentService) ReportQualMatch(ctx context.Context, matchID uuid.UUID, player1Rounds, player2Rounds int) error {
	if player1Rounds < 0 || player2Rounds < 0 {
		return fmt.Errorf("round counts cannot be negative")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var match racing.QualMatch
	if err := tx.GetContext(ctx, &match, "SELECT * FROM qual_matches WHERE id = ?", matchID); err != nil {
		return fmt.Errorf("failed to get qualification match: %w", err)
	}

	match.Player1Rounds = player1Rounds
	match.Player2Rounds = player2Rounds
	match.Completed = true

	if err := s.tournaments.UpdateQualMatch(ctx, tx, &match); err != nil {
		return err
	}
	return tx.Commit()
}
