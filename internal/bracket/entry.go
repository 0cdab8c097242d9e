package bracket

import "github.com/google/uuid"

// Seed is one bracket-generation input: a player and their qualification
// placement (1 = best).
type Seed struct {
	PlayerID       uuid.UUID
	PlayerName     string
	QualifyingRank int
}
