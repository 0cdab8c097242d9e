package bracket

import (
	"time"

	"github.com/AdamBeresnev/kart-cup/internal/racing"
	"github.com/google/uuid"
)

type MatchStatus string

const (
	MatchPending  MatchStatus = "pending"
	MatchRunning  MatchStatus = "in_progress"
	MatchFinished MatchStatus = "finished"
)

type BracketSide string

const (
	WinnersSide    BracketSide = "winners"
	LosersSide     BracketSide = "losers"
	GrandFinalSide BracketSide = "grand_final"
)

// Progression is the outcome of checking a match against the target win count.
type Progression string

const (
	ProgressionInProgress Progression = "in_progress"
	ProgressionComplete   Progression = "complete"
)

// Match is one node of a double-elimination bracket. Player slots may be nil
// until an earlier match feeds them; Player2ID stays nil on a bye.
type Match struct {
	ID           uuid.UUID   `db:"id"`
	TournamentID uuid.UUID   `db:"tournament_id"`
	Mode         racing.Mode `db:"mode"`

	// Position in the bracket for reconstructing the view
	BracketSide     BracketSide `db:"bracket_side"`
	Round           int         `db:"round"`
	BracketPosition int         `db:"bracket_position"`
	IsGrandFinal    bool        `db:"is_grand_final"`

	Player1ID *uuid.UUID `db:"player_1_id"`
	Player2ID *uuid.UUID `db:"player_2_id"`

	Player1Wins int         `db:"player_1_wins"`
	Player2Wins int         `db:"player_2_wins"`
	Status      MatchStatus `db:"status"`

	WinnerNextMatchID *uuid.UUID `db:"winner_next_match_id"`
	WinnerNextSlot    *int       `db:"winner_next_slot"`

	LoserNextMatchID *uuid.UUID `db:"loser_next_match_id"`
	LoserNextSlot    *int       `db:"loser_next_slot"`

	WinnerSlot *int `db:"winner_slot"`
	IsBye      bool `db:"is_bye"`

	CreatedAt time.Time `db:"created_at"`
}

// Progression reports whether the match has reached the target win count. The
// grand final checks both entrants explicitly: the losers-bracket entrant
// (slot 2) reaching the target ends the whole bracket, and the winners-bracket
// entrant (slot 1) reaching the target inside the grand final is terminal too.
func (m *Match) Progression(targetWins int) Progression {
	if m.IsGrandFinal {
		if m.Player2Wins >= targetWins {
			return ProgressionComplete
		}
		if m.Player1Wins >= targetWins {
			return ProgressionComplete
		}
		return ProgressionInProgress
	}
	if m.Player1Wins >= targetWins || m.Player2Wins >= targetWins {
		return ProgressionComplete
	}
	return ProgressionInProgress
}

// LeadingSlot returns the slot at or past the target win count, or 0 when
// neither is there yet.
func (m *Match) LeadingSlot(targetWins int) int {
	if m.Player1Wins >= targetWins {
		return 1
	}
	if m.Player2Wins >= targetWins {
		return 2
	}
	return 0
}

func (m *Match) IsWinner(slot int) bool {
	return m.Status == MatchFinished && m.WinnerSlot != nil && *m.WinnerSlot == slot
}

func (m *Match) IsLoser(slot int) bool {
	return m.Status == MatchFinished && m.WinnerSlot != nil && *m.WinnerSlot != slot
}
