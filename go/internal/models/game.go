package models

import "time"

// GameStatus represents the lifecycle status of a game
type GameStatus string

const (
	GameStatusScheduled  GameStatus = "scheduled"
	GameStatusInProgress GameStatus = "in_progress"
	GameStatusCompleted  GameStatus = "completed"
	GameStatusCancelled  GameStatus = "cancelled"
)

// IsTerminal reports whether no further score changes are allowed
func (s GameStatus) IsTerminal() bool {
	return s == GameStatusCompleted || s == GameStatusCancelled
}

// Valid reports whether s is a known status
func (s GameStatus) Valid() bool {
	switch s {
	case GameStatusScheduled, GameStatusInProgress, GameStatusCompleted, GameStatusCancelled:
		return true
	}
	return false
}

// Side identifies the home or away side of a game
type Side string

const (
	SideHome Side = "home"
	SideAway Side = "away"
)

// Valid reports whether s is home or away
func (s Side) Valid() bool {
	return s == SideHome || s == SideAway
}

// Game represents a persisted game record together with both rosters
type Game struct {
	ID            string     `json:"id" yaml:"id"`
	HomeTeam      Team       `json:"home_team" yaml:"-"`
	AwayTeam      Team       `json:"away_team" yaml:"-"`
	HomeScore     int        `json:"home_score" yaml:"home_score"`
	AwayScore     int        `json:"away_score" yaml:"away_score"`
	Status        GameStatus `json:"status" yaml:"status"`
	Venue         string     `json:"venue" yaml:"venue"`
	GameDate      time.Time  `json:"game_date" yaml:"game_date"`
	Attendance    int        `json:"attendance,omitempty" yaml:"attendance,omitempty"`
	Quarter       int        `json:"quarter,omitempty" yaml:"quarter,omitempty"`
	TimeRemaining string     `json:"time_remaining,omitempty" yaml:"time_remaining,omitempty"`
	Roster        Roster     `json:"roster" yaml:"-"`
}

// TeamFor returns the team playing on the given side
func (g *Game) TeamFor(side Side) Team {
	if side == SideAway {
		return g.AwayTeam
	}
	return g.HomeTeam
}
