package service

import (
	"sort"

	"github.com/AdamBeresnev/kart-cup/internal/bracket"
)

// BracketLayout groups a mode's matches per side and round for the API
// response, in display order.
type BracketLayout struct {
	WBRounds    map[int][]bracket.Match `json:"winners"`
	WBRoundNums []int                   `json:"winners_rounds"`
	LBRounds    map[int][]bracket.Match `json:"losers"`
	LBRoundNums []int                   `json:"losers_rounds"`
	GrandFinal  *bracket.Match          `json:"grand_final"`
}

func PrepareBracketLayout(matches []bracket.Match) BracketLayout {
	layout := BracketLayout{
		WBRounds: make(map[int][]bracket.Match),
		LBRounds: make(map[int][]bracket.Match),
	}

	for _, m := range matches {
		switch m.BracketSide {
		case bracket.WinnersSide:
			if _, exists := layout.WBRounds[m.Round]; !exists {
				layout.WBRoundNums = append(layout.WBRoundNums, m.Round)
			}
			layout.WBRounds[m.Round] = append(layout.WBRounds[m.Round], m)
		case bracket.LosersSide:
			if _, exists := layout.LBRounds[m.Round]; !exists {
				layout.LBRoundNums = append(layout.LBRoundNums, m.Round)
			}
			layout.LBRounds[m.Round] = append(layout.LBRounds[m.Round], m)
		case bracket.GrandFinalSide:
			gf := m
			layout.GrandFinal = &gf
		}
	}

	sort.Ints(layout.WBRoundNums)
	sort.Ints(layout.LBRoundNums)
	sortRounds(layout.WBRounds)
	sortRounds(layout.LBRounds)

	return layout
}

func sortRounds(rounds map[int][]bracket.Match) {
	for _, ms := range rounds {
		sort.Slice(ms, func(i, j int) bool {
			return ms[i].BracketPosition < ms[j].BracketPosition
		})
	}
}
