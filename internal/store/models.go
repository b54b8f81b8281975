package store

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

// ErrContextNotFound is returned when no scheduled game row exists for a player on a date
var ErrContextNotFound = errors.New("game context not found")

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("not found")

// ErrPersistence wraps failures writing to the stat store
var ErrPersistence = errors.New("stat store write failed")

// Sport identifies a league and its stat set
type Sport string

const (
	SportNBA Sport = "NBA"
	SportNFL Sport = "NFL"
)

// ParseSport normalizes a league code
func ParseSport(s string) (Sport, bool) {
	switch Sport(strings.ToUpper(strings.TrimSpace(s))) {
	case SportNBA:
		return SportNBA, true
	case SportNFL:
		return SportNFL, true
	}
	return "", false
}

// Stat is a tracked counting statistic
type Stat string

const (
	StatPoints         Stat = "points"
	StatRebounds       Stat = "rebounds"
	StatAssists        Stat = "assists"
	StatPassingYards   Stat = "passing_yards"
	StatRushingYards   Stat = "rushing_yards"
	StatReceivingYards Stat = "receiving_yards"
)

// Availability is a player's injury/availability status
type Availability string

const (
	AvailabilityActive       Availability = "active"
	AvailabilityLimited      Availability = "limited"
	AvailabilityQuestionable Availability = "questionable"
	AvailabilityOut          Availability = "out"
	AvailabilityInjured      Availability = "injured"
	AvailabilityInactive     Availability = "inactive"
)

// RuledOut lists the statuses that keep a player out of the projection run
var RuledOut = []Availability{AvailabilityOut, AvailabilityInjured, AvailabilityInactive}

// IsRuledOut reports whether a is in RuledOut
func (a Availability) IsRuledOut() bool {
	for _, s := range RuledOut {
		if a == s {
			return true
		}
	}
	return false
}

// Game statuses
const (
	GameStatusScheduled  = "scheduled"
	GameStatusInProgress = "in_progress"
	GameStatusFinal      = "final"
	GameStatusPostponed  = "postponed"
	GameStatusCancelled  = "cancelled"
)

// Team represents a franchise in either league
type Team struct {
	TeamID       int            `json:"team_id" db:"team_id"`
	Sport        Sport          `json:"sport" db:"sport"`
	ExternalID   string         `json:"external_id" db:"external_id"`
	Abbreviation string         `json:"abbreviation" db:"abbreviation"`
	Name         string         `json:"name" db:"name"`
	City         sql.NullString `json:"city,omitempty" db:"city"`
	Conference   sql.NullString `json:"conference,omitempty" db:"conference"`
	Division     sql.NullString `json:"division,omitempty" db:"division"`
	LogoURL      sql.NullString `json:"logo_url,omitempty" db:"logo_url"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" db:"updated_at"`
}

// Player represents a rostered player
type Player struct {
	PlayerID     int            `json:"player_id" db:"player_id"`
	Sport        Sport          `json:"sport" db:"sport"`
	ExternalID   string         `json:"external_id" db:"external_id"`
	FirstName    string         `json:"first_name" db:"first_name"`
	LastName     string         `json:"last_name" db:"last_name"`
	Position     sql.NullString `json:"position,omitempty" db:"position"`
	JerseyNumber sql.NullString `json:"jersey_number,omitempty" db:"jersey_number"`
	TeamID       sql.NullInt32  `json:"team_id,omitempty" db:"team_id"`
	PhotoURL     sql.NullString `json:"photo_url,omitempty" db:"photo_url"`
	Status       Availability   `json:"status" db:"status"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" db:"updated_at"`
}

// FullName joins first and last name
func (p *Player) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Game represents a scheduled or completed game
type Game struct {
	GameID     int            `json:"game_id" db:"game_id"`
	Sport      Sport          `json:"sport" db:"sport"`
	ExternalID string         `json:"external_id" db:"external_id"`
	Season     string         `json:"season" db:"season"`
	GameDate   time.Time      `json:"game_date" db:"game_date"`
	HomeTeamID int            `json:"home_team_id" db:"home_team_id"`
	AwayTeamID int            `json:"away_team_id" db:"away_team_id"`
	HomeScore  sql.NullInt32  `json:"home_score,omitempty" db:"home_score"`
	AwayScore  sql.NullInt32  `json:"away_score,omitempty" db:"away_score"`
	Status     string         `json:"status" db:"status"`
	Venue      sql.NullString `json:"venue,omitempty" db:"venue"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at" db:"updated_at"`
}

// PlayerGameStats is one player's box score line for a game
type PlayerGameStats struct {
	ID       int   `json:"id" db:"stat_id"`
	GameID   int   `json:"game_id" db:"game_id"`
	PlayerID int   `json:"player_id" db:"player_id"`
	Sport    Sport `json:"sport" db:"sport"`

	// basketball
	Points        sql.NullInt32   `json:"points" db:"points"`
	Rebounds      sql.NullInt32   `json:"rebounds" db:"rebounds"`
	Assists       sql.NullInt32   `json:"assists" db:"assists"`
	Steals        sql.NullInt32   `json:"steals" db:"steals"`
	Blocks        sql.NullInt32   `json:"blocks" db:"blocks"`
	Turnovers     sql.NullInt32   `json:"turnovers" db:"turnovers"`
	MinutesPlayed sql.NullFloat64 `json:"minutes_played" db:"minutes_played"`

	// football
	PassingYards   sql.NullInt32 `json:"passing_yards" db:"passing_yards"`
	RushingYards   sql.NullInt32 `json:"rushing_yards" db:"rushing_yards"`
	ReceivingYards sql.NullInt32 `json:"receiving_yards" db:"receiving_yards"`
	Touchdowns     sql.NullInt32 `json:"touchdowns" db:"touchdowns"`
	Receptions     sql.NullInt32 `json:"receptions" db:"receptions"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Values flattens the tracked stats of a box score line. Null columns are omitted.
func (s *PlayerGameStats) Values() map[Stat]float64 {
	values := make(map[Stat]float64, 6)
	put := func(stat Stat, v sql.NullInt32) {
		if v.Valid {
			values[stat] = float64(v.Int32)
		}
	}
	put(StatPoints, s.Points)
	put(StatRebounds, s.Rebounds)
	put(StatAssists, s.Assists)
	put(StatPassingYards, s.PassingYards)
	put(StatRushingYards, s.RushingYards)
	put(StatReceivingYards, s.ReceivingYards)
	return values
}

// StatSample is one completed game of a player's history
type StatSample struct {
	PlayerID int              `json:"player_id"`
	GameID   int              `json:"game_id"`
	GameDate time.Time        `json:"game_date"`
	Values   map[Stat]float64 `json:"values"`
}

// Value returns the stat value; missing values read as zero
func (s StatSample) Value(stat Stat) float64 {
	return s.Values[stat]
}

// GameContext is a player's situation for a scheduled game
type GameContext struct {
	PlayerID     int          `json:"player_id"`
	TeamID       int          `json:"team_id"`
	GameID       int          `json:"game_id"`
	GameDate     time.Time    `json:"game_date"`
	IsHome       bool         `json:"is_home"`
	Venue        string       `json:"venue,omitempty"`
	Availability Availability `json:"availability"`
}

// ActivePlayer is an active player with a scheduled game on a date
type ActivePlayer struct {
	PlayerID int    `json:"player_id"`
	Sport    Sport  `json:"sport"`
	GameID   int    `json:"game_id"`
	TeamID   int    `json:"team_id"`
	Name     string `json:"name"`
}

// Confidence tiers
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// TrendDirection classifies recent momentum
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendDeclining TrendDirection = "declining"
	TrendStable    TrendDirection = "stable"
)

// Trend is attached to a projection
type Trend struct {
	Direction     TrendDirection `json:"direction"`
	MomentumScore int            `json:"momentum_score"`
}

// Projection is a player's projected line for a game date
type Projection struct {
	PlayerID       int              `json:"player_id"`
	GameID         int              `json:"game_id"`
	Sport          Sport            `json:"sport"`
	ProjectionDate time.Time        `json:"projection_date"`
	Stats          map[Stat]float64 `json:"projections"`
	BaseStats      map[Stat]float64 `json:"base_projections"`
	FruitScore     int              `json:"fruit_score"`
	Confidence     Confidence       `json:"confidence_level"`
	Trend          Trend            `json:"trend"`
	Method         string           `json:"projection_method"`
	LastUpdated    time.Time        `json:"last_updated"`
}

// Job statuses for refresh logs
type RefreshStatus string

const (
	RefreshRunning RefreshStatus = "running"
	RefreshSuccess RefreshStatus = "success"
	RefreshError   RefreshStatus = "error"
)

// RefreshLog audits one job invocation
type RefreshLog struct {
	ID               int64          `json:"id" db:"id"`
	RunID            string         `json:"run_id" db:"run_id"`
	JobKind          string         `json:"job_kind" db:"refresh_type"`
	Sport            sql.NullString `json:"sport,omitempty" db:"sport"`
	Status           RefreshStatus  `json:"status" db:"status"`
	RecordsProcessed int            `json:"records_processed" db:"records_processed"`
	ErrorMessage     sql.NullString `json:"error_message,omitempty" db:"error_message"`
	StartedAt        time.Time      `json:"started_at" db:"started_at"`
	CompletedAt      sql.NullTime   `json:"completed_at,omitempty" db:"completed_at"`
	DurationMS       sql.NullInt64  `json:"duration_ms,omitempty" db:"duration_ms"`
}

// RefreshResult is the terminal state written to a refresh log
type RefreshResult struct {
	Status           RefreshStatus
	RecordsProcessed int
	Err              error
	CompletedAt      time.Time
	Duration         time.Duration
}

// InsightSummary aggregates the ranked slice of a bundle
type InsightSummary struct {
	HighConfidence int    `json:"high_confidence"`
	Improving      int    `json:"improving"`
	Declining      int    `json:"declining"`
	TotalAnalyzed  int    `json:"total_analyzed"`
	Summary        string `json:"summary"`
}

// InsightBundle is the cached daily ranking; it has no durable counterpart
type InsightBundle struct {
	Date        string         `json:"date"`
	Sport       Sport          `json:"sport,omitempty"`
	TopFruit    []*Projection  `json:"top_fruit"`
	Insights    InsightSummary `json:"insights"`
	GeneratedAt time.Time      `json:"generated_at"`
	IsFinal     bool           `json:"is_final"`
	HomeTime    string         `json:"home_time"`
}

// DateOnly truncates t to midnight in its own location
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
