package models

// Player represents a player on a team roster
type Player struct {
	ID           string      `json:"id" yaml:"id"`
	Name         string      `json:"name" yaml:"name"`
	TeamID       string      `json:"team_id" yaml:"team_id"`
	Position     string      `json:"position" yaml:"position"`
	JerseyNumber int         `json:"jersey_number" yaml:"jersey_number"`
	Height       string      `json:"height,omitempty" yaml:"height,omitempty"`
	Weight       int         `json:"weight,omitempty" yaml:"weight,omitempty"`
	Age          int         `json:"age,omitempty" yaml:"age,omitempty"`
	Stats        PlayerStats `json:"stats" yaml:"stats"`
	// Points is the cumulative point total credited by attributed scoring events
	Points   int  `json:"points" yaml:"points"`
	IsActive bool `json:"is_active" yaml:"is_active"`
}

// PlayerStats holds per-game averages maintained by the CRUD layer
type PlayerStats struct {
	PointsPerGame   float64 `json:"points_per_game" yaml:"points_per_game"`
	ReboundsPerGame float64 `json:"rebounds_per_game" yaml:"rebounds_per_game"`
	AssistsPerGame  float64 `json:"assists_per_game" yaml:"assists_per_game"`
	StealsPerGame   float64 `json:"steals_per_game" yaml:"steals_per_game"`
	BlocksPerGame   float64 `json:"blocks_per_game" yaml:"blocks_per_game"`
}
