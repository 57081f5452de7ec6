package session

import "github.com/mcdev12/courtside/go/internal/models"

// Role is the capability a connection joined a session with
type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
)

// CanMutate reports whether the role may submit score mutations
func (r Role) CanMutate() bool {
	return r == RoleEditor
}

// State is the authoritative score and status of one live game
type State struct {
	GameID    string            `json:"game_id"`
	HomeScore int               `json:"home_score"`
	AwayScore int               `json:"away_score"`
	Status    models.GameStatus `json:"status"`
	Revision  int64             `json:"revision"`
}

// Score returns the score of the given side
func (s State) Score(side models.Side) int {
	if side == models.SideAway {
		return s.AwayScore
	}
	return s.HomeScore
}

// MutationKind is the kind of a score-affecting operation
type MutationKind string

const (
	MutationRawDelta   MutationKind = "rawDelta"
	MutationAttributed MutationKind = "attributedEvent"
	MutationEndGame    MutationKind = "endGame"
	// MutationCancelGame is only produced server side from persisted status changes.
	MutationCancelGame MutationKind = "cancelGame"
)

// Mutation is a score event, an end-game request or a cancellation
type Mutation struct {
	Kind        MutationKind
	Team        models.Side
	Points      int
	PlayerID    string
	EventID     string
	ClientSeq   int64
	SubmittedBy string
}

// PlayerStatDelta is emitted for every accepted attributed event
type PlayerStatDelta struct {
	EventID     string `json:"event_id"`
	GameID      string `json:"game_id"`
	PlayerID    string `json:"player_id"`
	PointsAdded int    `json:"points_added"`
}

// NewState seeds a session state from a persisted game record
func NewState(game *models.Game) State {
	status := game.Status
	if !status.Valid() {
		status = models.GameStatusScheduled
	}
	return State{
		GameID:    game.ID,
		HomeScore: game.HomeScore,
		AwayScore: game.AwayScore,
		Status:    status,
		Revision:  0,
	}
}
