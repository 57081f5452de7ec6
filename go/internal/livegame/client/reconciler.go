package client

import (
	"sync"

	"github.com/google/uuid"

	"github.com/mcdev12/courtside/go/internal/livegame/session"
	"github.com/mcdev12/courtside/go/internal/livegame/wire"
	"github.com/mcdev12/courtside/go/internal/models"
)

// Display is what a client shows for one game
type Display struct {
	GameID    string
	HomeScore int
	AwayScore int
	Status    models.GameStatus
	// Revision of the authoritative snapshot underneath, -1 before the first one.
	Revision int64
	// Pending counts optimistic edits not yet confirmed by a broadcast.
	Pending int
}

// Reconciler merges local optimistic edits with authoritative snapshots.
// The display is the last snapshot plus every pending edit; before any
// snapshot arrives it is the pending edits alone.
type Reconciler struct {
	mu       sync.Mutex
	gameID   string
	snapshot session.State
	seeded   bool
	pending  []wire.Mutation
	nextSeq  int64
}

func NewReconciler(gameID string) *Reconciler {
	return &Reconciler{gameID: gameID}
}

// Propose records m as a pending edit and returns it tagged with the next
// client sequence number and an event id, ready to submit.
func (r *Reconciler) Propose(m wire.Mutation) wire.Mutation {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextSeq++
	m.ClientSeq = r.nextSeq
	if m.EventID == "" {
		m.EventID = uuid.New().String()
	}
	r.pending = append(r.pending, m)
	return m
}

// ApplyState takes a broadcast snapshot. Snapshots at or below the known
// revision are stale and ignored. A newer one replaces the snapshot and
// clears every pending edit, since each was submitted before it arrived.
func (r *Reconciler) ApplyState(s session.State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.GameID != r.gameID {
		return false
	}
	if r.seeded && s.Revision <= r.snapshot.Revision {
		return false
	}
	r.snapshot = s
	r.seeded = true
	r.pending = nil
	return true
}

// Reject drops the pending edit the server refused
func (r *Reconciler) Reject(clientSeq int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, m := range r.pending {
		if m.ClientSeq == clientSeq {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			return true
		}
	}
	return false
}

// Reset forgets the snapshot and pending edits. Used when the session is
// left, since a re-seeded session starts counting revisions again.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.snapshot = session.State{}
	r.seeded = false
	r.pending = nil
}

// Seeded reports whether an authoritative snapshot has arrived
func (r *Reconciler) Seeded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seeded
}

func (r *Reconciler) Display() Display {
	r.mu.Lock()
	defer r.mu.Unlock()

	d := Display{
		GameID:  r.gameID,
		Status:  r.snapshot.Status,
		Pending: len(r.pending),
	}
	if r.seeded {
		d.HomeScore = r.snapshot.HomeScore
		d.AwayScore = r.snapshot.AwayScore
		d.Revision = r.snapshot.Revision
	} else {
		d.Revision = -1
	}

	for _, m := range r.pending {
		switch m.Kind {
		case session.MutationRawDelta, session.MutationAttributed:
			if m.Team == models.SideAway {
				d.AwayScore += m.Points
			} else {
				d.HomeScore += m.Points
			}
		case session.MutationEndGame:
			d.Status = models.GameStatusCompleted
		}
	}
	return d
}
