package presence

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/courtside/go/internal/livegame/session"
)

// Notifier is told about every change of a game's viewer count. It is
// called with the game's presence lock held, so counts arrive in the
// order they were produced.
type Notifier interface {
	PublishPresence(gameID string, count int)
}

// Tracker records which connections have joined which game. Each game has
// its own lock; score mutations never wait on presence changes.
type Tracker struct {
	mu       sync.Mutex
	games    map[string]*gamePresence
	notifier Notifier
}

type gamePresence struct {
	mu           sync.Mutex
	participants map[string]session.Role
	// removed is set once the entry left the map; holders must look it up again.
	removed bool
}

func NewTracker(notifier Notifier) *Tracker {
	return &Tracker{
		games:    make(map[string]*gamePresence),
		notifier: notifier,
	}
}

// lock returns the locked presence entry of gameID, creating it when create is set.
func (t *Tracker) lock(gameID string, create bool) *gamePresence {
	for {
		t.mu.Lock()
		g, ok := t.games[gameID]
		if !ok {
			if !create {
				t.mu.Unlock()
				return nil
			}
			g = &gamePresence{participants: make(map[string]session.Role)}
			t.games[gameID] = g
		}
		t.mu.Unlock()

		g.mu.Lock()
		if !g.removed {
			return g
		}
		g.mu.Unlock()
	}
}

// release unlocks g, dropping it from the map first when it is empty.
// Caller holds g.mu.
func (t *Tracker) release(gameID string, g *gamePresence) {
	if len(g.participants) == 0 {
		t.mu.Lock()
		if t.games[gameID] == g {
			delete(t.games, gameID)
		}
		t.mu.Unlock()
		g.removed = true
	}
	g.mu.Unlock()
}

// Join adds connID to gameID with role and returns the new viewer count.
// Joining twice only updates the role.
func (t *Tracker) Join(gameID, connID string, role session.Role) int {
	g := t.lock(gameID, true)
	defer t.release(gameID, g)

	_, existed := g.participants[connID]
	g.participants[connID] = role
	count := len(g.participants)

	if !existed {
		log.Debug().
			Str("game_id", gameID).
			Str("connection_id", connID).
			Str("role", string(role)).
			Int("viewer_count", count).
			Msg("participant joined")
		t.notify(gameID, count)
	}
	return count
}

// Leave removes connID from gameID. found is false when the connection
// was not a participant, in which case nothing is published.
func (t *Tracker) Leave(gameID, connID string) (count int, found bool) {
	g := t.lock(gameID, false)
	if g == nil {
		return 0, false
	}
	defer t.release(gameID, g)

	if _, found = g.participants[connID]; !found {
		return len(g.participants), false
	}
	delete(g.participants, connID)
	count = len(g.participants)

	log.Debug().
		Str("game_id", gameID).
		Str("connection_id", connID).
		Int("viewer_count", count).
		Msg("participant left")
	t.notify(gameID, count)
	return count, true
}

// Count returns the number of connections currently joined to gameID
func (t *Tracker) Count(gameID string) int {
	g := t.lock(gameID, false)
	if g == nil {
		return 0
	}
	defer t.release(gameID, g)
	return len(g.participants)
}

// Role returns the role connID joined gameID with
func (t *Tracker) Role(gameID, connID string) (session.Role, bool) {
	g := t.lock(gameID, false)
	if g == nil {
		return "", false
	}
	defer t.release(gameID, g)
	role, ok := g.participants[connID]
	return role, ok
}

// Participants returns a copy of gameID's connection to role map
func (t *Tracker) Participants(gameID string) map[string]session.Role {
	out := make(map[string]session.Role)
	g := t.lock(gameID, false)
	if g == nil {
		return out
	}
	defer t.release(gameID, g)
	for id, role := range g.participants {
		out[id] = role
	}
	return out
}

// Drop forgets every participant of gameID without publishing a count.
// Used when the session itself goes away.
func (t *Tracker) Drop(gameID string) []string {
	g := t.lock(gameID, false)
	if g == nil {
		return nil
	}
	defer t.release(gameID, g)

	ids := make([]string, 0, len(g.participants))
	for id := range g.participants {
		ids = append(ids, id)
	}
	clear(g.participants)
	return ids
}

func (t *Tracker) notify(gameID string, count int) {
	if t.notifier != nil {
		t.notifier.PublishPresence(gameID, count)
	}
}
