package games

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/courtside/go/internal/livegame/session"
	"github.com/mcdev12/courtside/go/internal/models"
)

func loadTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	s, err := LoadFixtures("testdata/fixtures.yaml")
	require.NoError(t, err)
	return s
}

func TestMemoryStore_GetGame(t *testing.T) {
	s := loadTestStore(t)

	g, err := s.GetGame(context.Background(), "g1")
	require.NoError(t, err)

	assert.Equal(t, 10, g.HomeScore)
	assert.Equal(t, 8, g.AwayScore)
	assert.Equal(t, models.GameStatusInProgress, g.Status)
	assert.Equal(t, "Lakers", g.HomeTeam.Name)
	assert.Equal(t, "Celtics", g.AwayTeam.Name)
	assert.Equal(t, 2, g.Quarter)
	assert.ElementsMatch(t, []string{"P1", "P2"}, g.Roster.Home)
	assert.Equal(t, []string{"P9"}, g.Roster.Away)
	assert.True(t, g.Roster.Has(models.SideHome, "P1"))
	assert.False(t, g.Roster.Has(models.SideAway, "P1"))
}

func TestMemoryStore_GetGameNotFound(t *testing.T) {
	s := loadTestStore(t)

	_, err := s.GetGame(context.Background(), "missing")
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestMemoryStore_ApplyPlayerStatDeltaIsIdempotent(t *testing.T) {
	s := loadTestStore(t)
	ctx := context.Background()

	applied, err := s.ApplyPlayerStatDelta(ctx, "P9", 3, "e1")
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = s.ApplyPlayerStatDelta(ctx, "P9", 3, "e1")
	require.NoError(t, err)
	assert.False(t, applied)

	p, ok := s.Player("P9")
	require.True(t, ok)
	assert.Equal(t, 43, p.Points)
}

func TestMemoryStore_ApplyUnknownPlayer(t *testing.T) {
	s := loadTestStore(t)

	_, err := s.ApplyPlayerStatDelta(context.Background(), "nobody", 2, "e1")
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestNewMemoryStore_RejectsDanglingTeam(t *testing.T) {
	_, err := NewMemoryStore(Fixtures{
		Players: []models.Player{{ID: "P1", TeamID: "ghost"}},
	})
	require.Error(t, err)
}

func TestReadFixtures_SampleConfig(t *testing.T) {
	f, err := ReadFixtures("../../../configs/fixtures.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, f.Games)
	assert.Equal(t, "g1", f.Games[0].ID)
	assert.Equal(t, "lakers", f.Games[0].HomeTeamID)

	_, err = NewMemoryStore(f)
	require.NoError(t, err, "sample fixtures must reference known teams")
}

func TestReadFixtures_MissingFile(t *testing.T) {
	_, err := ReadFixtures("testdata/nope.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read fixtures")
}
