package service

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/AdamBeresnev/kart-cup/internal/bracket"
	"github.com/AdamBeresnev/kart-cup/internal/racing"
	"github.com/AdamBeresnev/kart-cup/internal/store"
	"github.com/AdamBeresnev/kart-cup/internal/utils"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// BracketService generates and persists double-elimination brackets for the
// head-to-head modes.
type BracketService struct {
	db      *sqlx.DB
	matches *store.MatchStore
	rules   racing.Rules
}

func NewBracketService(db *sqlx.DB, matches *store.MatchStore, rules racing.Rules) *BracketService {
	return &BracketService{db: db, matches: matches, rules: rules}
}

// Gets the nearest power of 2 while rounding down, so with input 11 it
// returns 8 and so on. Seeds beyond it do not enter the bracket.
func bracketSizeFloor(count int) int {
	if count < 2 {
		return 0
	}
	log2 := math.Floor(math.Log2(float64(count)))
	return int(math.Pow(2, log2))
}

// Nearest power of 2 rounding up, for sizing the losers side over the
// drop list.
func bracketSizeCeil(count int) int {
	if count <= 0 {
		return 0
	}
	log2 := math.Ceil(math.Log2(float64(count)))
	return int(math.Pow(2, log2))
}

// GenerateBracket builds the winners bracket, the losers bracket fed by the
// winners matches' drop slots, and the grand final. Winners rounds pair
// sorted seeds sequentially (1v2, 3v4, ...); the losers bracket is paired the
// same way over the drop list in encounter order.
func (s *BracketService) GenerateBracket(ctx context.Context, tournamentID uuid.UUID, mode racing.Mode, seeds []bracket.Seed) ([]bracket.Match, error) {
	if len(seeds) < 2 {
		return nil, fmt.Errorf("%w: bracket needs at least 2 players, got %d", racing.ErrInsufficientPlayers, len(seeds))
	}

	sorted := make([]bracket.Seed, len(seeds))
	copy(sorted, seeds)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].QualifyingRank < sorted[j].QualifyingRank
	})

	size := bracketSizeFloor(len(sorted))
	entrants := sorted[:size]

	winners := s.generateSide(tournamentID, mode, bracket.WinnersSide, size)
	sortEncounterOrder(winners)
	for i := 0; i < size/2; i++ {
		winners[i].Player1ID = utils.Ptr(entrants[2*i].PlayerID)
		winners[i].Player2ID = utils.Ptr(entrants[2*i+1].PlayerID)
	}
	markRunnable(winners)

	grandFinal := bracket.Match{
		ID:              uuid.New(),
		TournamentID:    tournamentID,
		Mode:            mode,
		BracketSide:     bracket.GrandFinalSide,
		Round:           1,
		BracketPosition: 1,
		IsGrandFinal:    true,
		Status:          bracket.MatchPending,
	}

	wbFinal := &winners[len(winners)-1]
	wbFinal.WinnerNextMatchID = utils.Ptr(grandFinal.ID)
	wbFinal.WinnerNextSlot = utils.Ptr(1)

	// Every winners match feeds its loser into the losers side in encounter
	// order: (round, position) over the whole winners bracket.
	dropCount := size - 1
	var losers []bracket.Match
	if dropCount == 1 {
		// A 2-player bracket has no losers matches; the single loser goes
		// straight to the grand final for their second chance.
		winners[0].LoserNextMatchID = utils.Ptr(grandFinal.ID)
		winners[0].LoserNextSlot = utils.Ptr(2)
	} else {
		lbSize := bracketSizeCeil(dropCount)
		losers = s.generateSide(tournamentID, mode, bracket.LosersSide, lbSize)
		sortEncounterOrder(losers)

		for k := range winners {
			winners[k].LoserNextMatchID = utils.Ptr(losers[k/2].ID)
			winners[k].LoserNextSlot = utils.Ptr(k%2 + 1)
		}

		// Unfed round-1 slots are byes: the match resolves as soon as its
		// single feeder's loser arrives.
		for i := 0; i < lbSize/2; i++ {
			if 2*i+1 >= dropCount {
				losers[i].IsBye = true
			}
		}

		lbFinal := &losers[len(losers)-1]
		lbFinal.WinnerNextMatchID = utils.Ptr(grandFinal.ID)
		lbFinal.WinnerNextSlot = utils.Ptr(2)
	}

	all := append(append(winners, losers...), grandFinal)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	exists, err := s.matches.HasMatches(ctx, tx, tournamentID, mode)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("bracket already generated for mode %s", mode)
	}

	if err := s.matches.CreateMatches(ctx, tx, all); err != nil {
		return nil, fmt.Errorf("failed to save bracket: %w", err)
	}

	return all, tx.Commit()
}

// generateSide builds one single-elimination side over the given slot count,
// wiring winner-next pointers. Easier to start from the last round and work
// backwards, same as linking any knockout tree.
func (s *BracketService) generateSide(tournamentID uuid.UUID, mode racing.Mode, side bracket.BracketSide, size int) []bracket.Match {
	var matches []bracket.Match
	totalRounds := int(math.Log2(float64(size)))

	nextRoundMatchIDs := make(map[int]uuid.UUID)

	for r := totalRounds; r >= 1; r-- {
		matchesInCurrentRound := int(math.Pow(2, float64(totalRounds-r)))
		currentRoundMatchIDs := make(map[int]uuid.UUID)

		for i := 0; i < matchesInCurrentRound; i++ {
			matchID := uuid.New()
			position := i + 1

			m := bracket.Match{
				ID:              matchID,
				TournamentID:    tournamentID,
				Mode:            mode,
				BracketSide:     side,
				Round:           r,
				BracketPosition: position,
				Status:          bracket.MatchPending,
			}

			if r < totalRounds {
				parentPosition := (position + 1) / 2
				parentID := nextRoundMatchIDs[parentPosition]

				m.WinnerNextMatchID = &parentID
				if position%2 != 0 {
					m.WinnerNextSlot = utils.Ptr(1)
				} else {
					m.WinnerNextSlot = utils.Ptr(2)
				}
			}

			matches = append(matches, m)
			currentRoundMatchIDs[position] = matchID
		}
		nextRoundMatchIDs = currentRoundMatchIDs
	}

	return matches
}

// sortEncounterOrder sorts matches in the order they happen: round, then
// position. Losers drop into the losers side in this order.
func sortEncounterOrder(matches []bracket.Match) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Round != matches[j].Round {
			return matches[i].Round < matches[j].Round
		}
		return matches[i].BracketPosition < matches[j].BracketPosition
	})
}

func markRunnable(matches []bracket.Match) {
	for i := range matches {
		if matches[i].Player1ID != nil && matches[i].Player2ID != nil {
			matches[i].Status = bracket.MatchRunning
		}
	}
}
