package sportsdata

import (
	"fmt"
	"math"
	"time"
)

// Team is a team in the upstream feed
type Team struct {
	TeamID           int    `json:"TeamID"`
	Key              string `json:"Key"`
	City             string `json:"City"`
	Name             string `json:"Name"`
	Conference       string `json:"Conference"`
	Division         string `json:"Division"`
	WikipediaLogoURL string `json:"WikipediaLogoUrl"`
}

// Player is a rostered player in the upstream feed
type Player struct {
	PlayerID     int     `json:"PlayerID"`
	FirstName    string  `json:"FirstName"`
	LastName     string  `json:"LastName"`
	Position     string  `json:"Position"`
	Jersey       *int    `json:"Jersey"`
	TeamID       *int    `json:"TeamID"`
	Active       bool    `json:"Active"`
	PhotoURL     string  `json:"PhotoUrl"`
	InjuryStatus *string `json:"InjuryStatus"`
}

// Injury returns the injury designation, empty when healthy
func (p Player) Injury() string {
	if p.InjuryStatus == nil {
		return ""
	}
	return *p.InjuryStatus
}

// Game is a scheduled or completed game in the upstream feed
type Game struct {
	GameID        int     `json:"GameID"`
	Season        int     `json:"Season"`
	Status        string  `json:"Status"`
	Day           *string `json:"Day"`
	DateTime      *string `json:"DateTime"`
	HomeTeamID    int     `json:"HomeTeamID"`
	AwayTeamID    int     `json:"AwayTeamID"`
	HomeTeamScore *int    `json:"HomeTeamScore"`
	AwayTeamScore *int    `json:"AwayTeamScore"`
	StadiumName   *string `json:"Stadium"`
}

// Date returns the calendar date of the game. The feed sends local
// timestamps without a zone, e.g. 2025-01-10T00:00:00.
func (g Game) Date() (time.Time, error) {
	raw := g.Day
	if raw == nil || *raw == "" {
		raw = g.DateTime
	}
	if raw == nil || len(*raw) < len(dateLayout) {
		return time.Time{}, fmt.Errorf("game %d has no date", g.GameID)
	}
	return time.Parse(dateLayout, (*raw)[:len(dateLayout)])
}

// PlayerGame is one player's box score line in the upstream feed. The feed
// reports counting stats as decimals.
type PlayerGame struct {
	PlayerID int `json:"PlayerID"`
	GameID   int `json:"GameID"`
	TeamID   int `json:"TeamID"`

	Points       float64 `json:"Points"`
	Rebounds     float64 `json:"Rebounds"`
	Assists      float64 `json:"Assists"`
	Steals       float64 `json:"Steals"`
	BlockedShots float64 `json:"BlockedShots"`
	Turnovers    float64 `json:"Turnovers"`
	Minutes      float64 `json:"Minutes"`

	PassingYards      float64 `json:"PassingYards"`
	RushingYards      float64 `json:"RushingYards"`
	ReceivingYards    float64 `json:"ReceivingYards"`
	PassingTouchdowns float64 `json:"PassingTouchdowns"`
	RushingTouchdowns float64 `json:"RushingTouchdowns"`
	ReceivingTDs      float64 `json:"ReceivingTouchdowns"`
	Receptions        float64 `json:"Receptions"`
}

func count(v float64) int32 {
	return int32(math.Round(v))
}
