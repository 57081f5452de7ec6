package games

import (
	"context"

	"github.com/mcdev12/courtside/go/internal/models"
)

// GameStore reads persisted game records. GetGame returns an error
// wrapping session.ErrNotFound for unknown ids.
type GameStore interface {
	GetGame(ctx context.Context, gameID string) (*models.Game, error)
}

// StatStore credits attributed points to players. ApplyPlayerStatDelta is
// idempotent on eventID: applied is false when the event was seen before.
type StatStore interface {
	ApplyPlayerStatDelta(ctx context.Context, playerID string, points int, eventID string) (applied bool, err error)
}

// Store is both stores backed by the same database
type Store interface {
	GameStore
	StatStore
}
