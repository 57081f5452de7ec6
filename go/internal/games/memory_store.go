package games

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/courtside/go/internal/livegame/session"
	"github.com/mcdev12/courtside/go/internal/models"
)

// Fixtures is the YAML document a MemoryStore is loaded from
type Fixtures struct {
	Teams   []models.Team   `yaml:"teams"`
	Players []models.Player `yaml:"players"`
	Games   []GameFixture   `yaml:"games"`
}

// GameFixture is a game record referencing its teams by id
type GameFixture struct {
	models.Game `yaml:",inline"`
	HomeTeamID  string `yaml:"home_team_id"`
	AwayTeamID  string `yaml:"away_team_id"`
}

// MemoryStore keeps teams, players and games in process. Used for local
// runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	teams   map[string]models.Team
	players map[string]*models.Player
	games   map[string]GameFixture
	applied map[string]struct{}
}

func NewMemoryStore(f Fixtures) (*MemoryStore, error) {
	s := &MemoryStore{
		teams:   make(map[string]models.Team, len(f.Teams)),
		players: make(map[string]*models.Player, len(f.Players)),
		games:   make(map[string]GameFixture, len(f.Games)),
		applied: make(map[string]struct{}),
	}

	for _, t := range f.Teams {
		s.teams[t.ID] = t
	}
	for i := range f.Players {
		p := f.Players[i]
		if _, ok := s.teams[p.TeamID]; !ok {
			return nil, fmt.Errorf("player %s: unknown team %q", p.ID, p.TeamID)
		}
		s.players[p.ID] = &p
	}
	for _, g := range f.Games {
		if _, ok := s.teams[g.HomeTeamID]; !ok {
			return nil, fmt.Errorf("game %s: unknown home team %q", g.ID, g.HomeTeamID)
		}
		if _, ok := s.teams[g.AwayTeamID]; !ok {
			return nil, fmt.Errorf("game %s: unknown away team %q", g.ID, g.AwayTeamID)
		}
		s.games[g.ID] = g
	}

	return s, nil
}

// ReadFixtures parses a fixtures file
func ReadFixtures(path string) (Fixtures, error) {
	var f Fixtures
	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("failed to read fixtures: %w", err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("failed to parse fixtures: %w", err)
	}
	return f, nil
}

// LoadFixtures reads a fixtures file and builds a MemoryStore from it
func LoadFixtures(path string) (*MemoryStore, error) {
	f, err := ReadFixtures(path)
	if err != nil {
		return nil, err
	}

	s, err := NewMemoryStore(f)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("path", path).
		Int("teams", len(f.Teams)).
		Int("players", len(f.Players)).
		Int("games", len(f.Games)).
		Msg("loaded fixtures")
	return s, nil
}

func (s *MemoryStore) GetGame(ctx context.Context, gameID string) (*models.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.games[gameID]
	if !ok {
		return nil, fmt.Errorf("game %s: %w", gameID, session.ErrNotFound)
	}

	game := g.Game
	game.HomeTeam = s.teams[g.HomeTeamID]
	game.AwayTeam = s.teams[g.AwayTeamID]
	game.Roster = models.Roster{}
	for _, p := range s.players {
		switch p.TeamID {
		case g.HomeTeamID:
			game.Roster.Home = append(game.Roster.Home, p.ID)
		case g.AwayTeamID:
			game.Roster.Away = append(game.Roster.Away, p.ID)
		}
	}
	return &game, nil
}

func (s *MemoryStore) ApplyPlayerStatDelta(ctx context.Context, playerID string, points int, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[playerID]
	if !ok {
		return false, fmt.Errorf("player %s: %w", playerID, session.ErrNotFound)
	}
	if _, seen := s.applied[eventID]; seen {
		return false, nil
	}
	s.applied[eventID] = struct{}{}
	p.Points += points
	return true, nil
}

// Player returns a copy of the stored player
func (s *MemoryStore) Player(playerID string) (models.Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[playerID]
	if !ok {
		return models.Player{}, false
	}
	return *p, true
}

// SetStatus changes a stored game's status, as the CRUD layer would
func (s *MemoryStore) SetStatus(gameID string, status models.GameStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[gameID]
	if !ok {
		return fmt.Errorf("game %s: %w", gameID, session.ErrNotFound)
	}
	g.Status = status
	s.games[gameID] = g
	return nil
}
