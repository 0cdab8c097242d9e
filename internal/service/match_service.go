package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/AdamBeresnev/kart-cup/internal/bracket"
	"github.com/AdamBeresnev/kart-cup/internal/racing"
	"github.com/AdamBeresnev/kart-cup/internal/store"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type MatchService struct {
	db      *sqlx.DB
	matches *store.MatchStore
	rules   racing.Rules
}

func NewMatchService(db *sqlx.DB, matches *store.MatchStore, rules racing.Rules) *MatchService {
	return &MatchService{db: db, matches: matches, rules: rules}
}

// ReportGame records one game win inside a match. When the win count reaches
// the target the match completes and both players advance along their stored
// next-match pointers.
func (s *MatchService) ReportGame(ctx context.Context, matchID uuid.UUID, winnerPlayerID uuid.UUID) (*bracket.Match, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	match, err := s.matches.GetMatchTx(ctx, tx, matchID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}

	if match.Status == bracket.MatchFinished {
		return nil, fmt.Errorf("match is already finished")
	}
	if match.Player1ID == nil || match.Player2ID == nil {
		return nil, fmt.Errorf("match is still waiting for players")
	}

	switch winnerPlayerID {
	case *match.Player1ID:
		match.Player1Wins++
	case *match.Player2ID:
		match.Player2Wins++
	default:
		return nil, fmt.Errorf("winner is not part of this match")
	}
	match.Status = bracket.MatchRunning

	if match.Progression(s.rules.BracketTargetWins) == bracket.ProgressionComplete {
		slot := match.LeadingSlot(s.rules.BracketTargetWins)
		match.Status = bracket.MatchFinished
		match.WinnerSlot = &slot

		winnerID, loserID := *match.Player1ID, *match.Player2ID
		if slot == 2 {
			winnerID, loserID = loserID, winnerID
		}

		if match.WinnerNextMatchID != nil && match.WinnerNextSlot != nil {
			if err := s.placePlayer(ctx, tx, *match.WinnerNextMatchID, *match.WinnerNextSlot, winnerID); err != nil {
				return nil, err
			}
		}
		if match.LoserNextMatchID != nil && match.LoserNextSlot != nil {
			if err := s.placePlayer(ctx, tx, *match.LoserNextMatchID, *match.LoserNextSlot, loserID); err != nil {
				return nil, err
			}
		}
	}

	if err := s.matches.UpdateMatch(ctx, tx, match); err != nil {
		return nil, fmt.Errorf("failed to update match: %w", err)
	}

	return match, tx.Commit()
}

// placePlayer drops a player into a slot of a later match. A bye match
// resolves the moment its only feeder arrives, advancing the player again.
func (s *MatchService) placePlayer(ctx context.Context, tx *sqlx.Tx, matchID uuid.UUID, slot int, playerID uuid.UUID) error {
	match, err := s.matches.GetMatchTx(ctx, tx, matchID.String())
	if err != nil {
		return fmt.Errorf("failed to get next match: %w", err)
	}

	switch slot {
	case 1:
		match.Player1ID = &playerID
	case 2:
		match.Player2ID = &playerID
	default:
		return fmt.Errorf("invalid slot %d", slot)
	}

	if match.Player1ID != nil && match.Player2ID != nil {
		match.Status = bracket.MatchRunning
	}

	if match.IsBye {
		match.Status = bracket.MatchFinished
		match.WinnerSlot = &slot
		if match.WinnerNextMatchID != nil && match.WinnerNextSlot != nil {
			if err := s.placePlayer(ctx, tx, *match.WinnerNextMatchID, *match.WinnerNextSlot, playerID); err != nil {
				return err
			}
		}
	}

	return s.matches.UpdateMatch(ctx, tx, match)
}

// FinalsPlacements derives each bracket player's final placement once the
// grand final is finished: its winner is 1st, its loser 2nd, and losers-side
// knockouts share a placement per round, latest round first.
func FinalsPlacements(matches []bracket.Match) (map[uuid.UUID]int, error) {
	var grandFinal *bracket.Match
	for i := range matches {
		if matches[i].IsGrandFinal {
			grandFinal = &matches[i]
		}
	}
	if grandFinal == nil || grandFinal.Status != bracket.MatchFinished || grandFinal.WinnerSlot == nil {
		return nil, fmt.Errorf("grand final is not decided yet")
	}

	placements := make(map[uuid.UUID]int)
	if *grandFinal.WinnerSlot == 1 {
		placements[*grandFinal.Player1ID] = 1
		placements[*grandFinal.Player2ID] = 2
	} else {
		placements[*grandFinal.Player2ID] = 1
		placements[*grandFinal.Player1ID] = 2
	}

	var losersSide []bracket.Match
	for _, m := range matches {
		if m.BracketSide == bracket.LosersSide && m.Status == bracket.MatchFinished && !m.IsBye {
			losersSide = append(losersSide, m)
		}
	}
	sort.Slice(losersSide, func(i, j int) bool {
		if losersSide[i].Round != losersSide[j].Round {
			return losersSide[i].Round > losersSide[j].Round
		}
		return losersSide[i].BracketPosition < losersSide[j].BracketPosition
	})

	place := 3
	currentRound := -1
	roundStart := 3
	for _, m := range losersSide {
		if m.Round != currentRound {
			currentRound = m.Round
			roundStart = place
		}
		loserID := m.Player1ID
		if *m.WinnerSlot == 1 {
			loserID = m.Player2ID
		}
		if loserID != nil {
			placements[*loserID] = roundStart
			place++
		}
	}

	return placements, nil
}
