package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/courtside/go/internal/livegame/session"
	"github.com/mcdev12/courtside/go/internal/livegame/wire"
	"github.com/mcdev12/courtside/go/internal/models"
)

func state(rev int64, home, away int) session.State {
	return session.State{GameID: "g1", HomeScore: home, AwayScore: away, Status: models.GameStatusInProgress, Revision: rev}
}

func plus(side models.Side, points int) wire.Mutation {
	return wire.Mutation{Kind: session.MutationRawDelta, Team: side, Points: points}
}

func TestReconciler_OverlayBeforeFirstSnapshot(t *testing.T) {
	r := NewReconciler("g1")
	r.Propose(plus(models.SideHome, 2))

	d := r.Display()
	assert.Equal(t, 2, d.HomeScore)
	assert.Equal(t, int64(-1), d.Revision)
	assert.Equal(t, 1, d.Pending)
	assert.False(t, r.Seeded())
}

func TestReconciler_ProposeTagsEdits(t *testing.T) {
	r := NewReconciler("g1")
	a := r.Propose(plus(models.SideHome, 2))
	b := r.Propose(wire.Mutation{Kind: session.MutationRawDelta, Team: models.SideAway, Points: 1, EventID: "mine"})

	assert.Equal(t, int64(1), a.ClientSeq)
	assert.Equal(t, int64(2), b.ClientSeq)
	assert.NotEmpty(t, a.EventID)
	assert.Equal(t, "mine", b.EventID)
}

func TestReconciler_SnapshotPlusPending(t *testing.T) {
	r := NewReconciler("g1")
	require.True(t, r.ApplyState(state(4, 10, 8)))

	r.Propose(plus(models.SideHome, 2))
	r.Propose(wire.Mutation{Kind: session.MutationAttributed, Team: models.SideAway, Points: 3, PlayerID: "P9"})

	d := r.Display()
	assert.Equal(t, 12, d.HomeScore)
	assert.Equal(t, 11, d.AwayScore)
	assert.Equal(t, int64(4), d.Revision)
	assert.Equal(t, 2, d.Pending)
}

func TestReconciler_NewerRevisionClearsPending(t *testing.T) {
	r := NewReconciler("g1")
	r.ApplyState(state(1, 10, 8))
	r.Propose(plus(models.SideHome, 2))

	require.True(t, r.ApplyState(state(2, 12, 8)))
	d := r.Display()
	assert.Equal(t, 12, d.HomeScore, "the confirmed edit is not counted twice")
	assert.Equal(t, 0, d.Pending)
}

func TestReconciler_StaleRevisionsDiscarded(t *testing.T) {
	r := NewReconciler("g1")
	r.ApplyState(state(5, 20, 18))
	r.Propose(plus(models.SideAway, 1))

	assert.False(t, r.ApplyState(state(5, 20, 18)), "duplicate")
	assert.False(t, r.ApplyState(state(3, 15, 12)), "older")

	d := r.Display()
	assert.Equal(t, 20, d.HomeScore)
	assert.Equal(t, 19, d.AwayScore)
	assert.Equal(t, int64(5), d.Revision)
	assert.Equal(t, 1, d.Pending)
}

func TestReconciler_OtherGamesIgnored(t *testing.T) {
	r := NewReconciler("g1")
	s := state(1, 1, 1)
	s.GameID = "g2"
	assert.False(t, r.ApplyState(s))
	assert.False(t, r.Seeded())
}

func TestReconciler_Reject(t *testing.T) {
	r := NewReconciler("g1")
	r.ApplyState(state(1, 10, 8))
	a := r.Propose(plus(models.SideHome, 2))
	r.Propose(plus(models.SideHome, 3))

	assert.True(t, r.Reject(a.ClientSeq))
	assert.False(t, r.Reject(a.ClientSeq))
	assert.Equal(t, 13, r.Display().HomeScore)
}

func TestReconciler_EndGameOverlay(t *testing.T) {
	r := NewReconciler("g1")
	r.ApplyState(state(1, 10, 8))
	r.Propose(wire.Mutation{Kind: session.MutationEndGame})
	assert.Equal(t, models.GameStatusCompleted, r.Display().Status)
}

func TestReconciler_ResetAcceptsReseededSession(t *testing.T) {
	r := NewReconciler("g1")
	r.ApplyState(state(7, 30, 30))
	r.Reset()

	// a retired and re-seeded session counts from zero again
	require.True(t, r.ApplyState(state(0, 30, 30)))
	assert.Equal(t, int64(0), r.Display().Revision)
}
