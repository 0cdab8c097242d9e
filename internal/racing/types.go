package racing

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Mode identifies one of the four competition families.
type Mode string

const (
	TimeAttack Mode = "time_attack"
	Battle     Mode = "battle"
	MatchRace  Mode = "match_race"
	GrandPrix  Mode = "grand_prix"
)

var AllModes = []Mode{TimeAttack, Battle, MatchRace, GrandPrix}

// Stage is the named phase of competition a player entry belongs to.
type Stage string

const (
	StageQualification Stage = "qualification"
	StageRevival1      Stage = "revival_1"
	StageRevival2      Stage = "revival_2"
	StagePhase1        Stage = "phase1"
	StagePhase2        Stage = "phase2"
	StagePhase3        Stage = "phase3"
)

// Named engine conditions. Routing maps these to HTTP statuses.
var (
	ErrInvalidTime         = errors.New("invalid time string")
	ErrUnknownCourse       = errors.New("unknown course code")
	ErrNoCoursesConfigured = errors.New("no courses configured")
	ErrInsufficientPlayers = errors.New("insufficient players")
	ErrConflict            = errors.New("conflicting concurrent update, try again")
)

// CourseTimes maps course code to the raw time string entered for it.
// Stored as a JSON blob on the stage entry row.
type CourseTimes map[string]string

func (c CourseTimes) Value() (driver.Value, error) {
	if c == nil {
		return "{}", nil
	}
	b, err := json.Marshal(c)
	return string(b), err
}

func (c *CourseTimes) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*c = CourseTimes{}
		return nil
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	default:
		return fmt.Errorf("cannot scan %T into CourseTimes", src)
	}
}

// StageEntry is one player's participation in one stage of a tournament.
// Unique per (tournament, player, stage).
type StageEntry struct {
	ID           uuid.UUID   `db:"id"`
	TournamentID uuid.UUID   `db:"tournament_id"`
	PlayerID     uuid.UUID   `db:"player_id"`
	PlayerName   string      `db:"player_name"`
	Stage        Stage       `db:"stage"`
	Lives        int         `db:"lives"`
	Eliminated   bool        `db:"eliminated"`
	Times        CourseTimes `db:"times"`
	TotalTimeMs  *int        `db:"total_time_ms"`
	Rank         *int        `db:"stage_rank"`
	Version      int         `db:"version"`
	CreatedAt    time.Time   `db:"created_at"`
}

// QualificationRecord is the derived win/tie/loss summary for a head-to-head
// mode. Always rebuilt in full from the completed matches, never patched.
type QualificationRecord struct {
	PlayerID      uuid.UUID
	Wins          int
	Ties          int
	Losses        int
	RoundsWonDiff int
}

// QualMatch is one completed or scheduled head-to-head qualification match.
// Round counts are the per-match subscores a win/tie is judged on.
type QualMatch struct {
	ID            uuid.UUID `db:"id"`
	TournamentID  uuid.UUID `db:"tournament_id"`
	Mode          Mode      `db:"mode"`
	Player1ID     uuid.UUID `db:"player_1_id"`
	Player2ID     uuid.UUID `db:"player_2_id"`
	Player1Rounds int       `db:"player_1_rounds"`
	Player2Rounds int       `db:"player_2_rounds"`
	Completed     bool      `db:"completed"`
}

// CoursePlay is one appended entry in the per-(tournament, stage) course
// selection log.
type CoursePlay struct {
	TournamentID uuid.UUID `db:"tournament_id"`
	Stage        Stage     `db:"stage"`
	CourseCode   string    `db:"course_code"`
	Seq          int       `db:"seq"`
}

// PlayerTournamentScore aggregates all eight point categories for one player.
// Recomputed in full on every aggregation run.
type PlayerTournamentScore struct {
	ID           uuid.UUID `db:"id"`
	TournamentID uuid.UUID `db:"tournament_id"`
	PlayerID     uuid.UUID `db:"player_id"`
	QualTA       int       `db:"qual_ta"`
	QualBM       int       `db:"qual_bm"`
	QualMR       int       `db:"qual_mr"`
	QualGP       int       `db:"qual_gp"`
	FinalsTA     int       `db:"finals_ta"`
	FinalsBM     int       `db:"finals_bm"`
	FinalsMR     int       `db:"finals_mr"`
	FinalsGP     int       `db:"finals_gp"`
	TotalPoints  int       `db:"total_points"`
	OverallRank  *int      `db:"overall_rank"`
}

func (s *PlayerTournamentScore) SetQualification(mode Mode, points int) {
	switch mode {
	case TimeAttack:
		s.QualTA = points
	case Battle:
		s.QualBM = points
	case MatchRace:
		s.QualMR = points
	case GrandPrix:
		s.QualGP = points
	}
}

func (s *PlayerTournamentScore) SetFinals(mode Mode, points int) {
	switch mode {
	case TimeAttack:
		s.FinalsTA = points
	case Battle:
		s.FinalsBM = points
	case MatchRace:
		s.FinalsMR = points
	case GrandPrix:
		s.FinalsGP = points
	}
}

func (s *PlayerTournamentScore) Sum() int {
	return s.QualTA + s.QualBM + s.QualMR + s.QualGP +
		s.FinalsTA + s.FinalsBM + s.FinalsMR + s.FinalsGP
}
