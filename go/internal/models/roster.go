package models

import "slices"

// Roster lists the player ids eligible to score for each side of a game
type Roster struct {
	Home []string `json:"home"`
	Away []string `json:"away"`
}

// Has reports whether playerID is on the roster of side
func (r Roster) Has(side Side, playerID string) bool {
	switch side {
	case SideHome:
		return slices.Contains(r.Home, playerID)
	case SideAway:
		return slices.Contains(r.Away, playerID)
	}
	return false
}
