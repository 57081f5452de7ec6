package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/mcdev12/courtside/go/internal/games"
	"github.com/mcdev12/courtside/go/internal/livegame/broadcast"
	"github.com/mcdev12/courtside/go/internal/livegame/metrics"
	"github.com/mcdev12/courtside/go/internal/livegame/session"
	"github.com/mcdev12/courtside/go/internal/models"
)

/*
Session lifecycle

	Join (game not live) -> seed from GameStore -> live
	last participant leaves -> retirement timer (grace window)
	Join within grace window -> timer cancelled, in-memory state reused
	timer fires with no participants -> session closed and forgotten
*/

// Retirement reasons, used as metric labels
const (
	ReasonIdle     = "idle"
	ReasonFailed   = "internal_error"
	ReasonShutdown = "shutdown"
)

// Coordinator is the broadcast side the registry drives
type Coordinator interface {
	session.Notifier
	Subscribe(gameID string, sub broadcast.Subscriber, current func() session.State)
	Unsubscribe(gameID, subID string)
	ForceLeave(gameID, reason string)
}

// Presence is the participant bookkeeping the registry drives
type Presence interface {
	Join(gameID, connID string, role session.Role) int
	Leave(gameID, connID string) (int, bool)
	Count(gameID string) int
	Role(gameID, connID string) (session.Role, bool)
	Drop(gameID string) []string
}

// Config holds registry configuration
type Config struct {
	// GraceWindow is how long an empty session stays in memory.
	GraceWindow time.Duration
	// MutationTimeout bounds how long ApplyMutation waits for the session.
	MutationTimeout time.Duration
	Session         session.Config
}

// DefaultConfig returns default registry configuration
func DefaultConfig() Config {
	return Config{
		GraceWindow:     30 * time.Second,
		MutationTimeout: 5 * time.Second,
		Session:         session.DefaultConfig(),
	}
}

// Registry creates, finds and retires live game sessions. At most one
// session exists per game id.
type Registry struct {
	store       games.GameStore
	stats       session.StatSink
	coordinator Coordinator
	presence    Presence
	clock       clockwork.Clock
	cfg         Config

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
	seeds   singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
}

type entry struct {
	session *session.Session
	// gen is bumped whenever a retirement is scheduled or cancelled; a
	// timer only acts if the generation it was armed with is still current.
	gen        uint64
	retire     clockwork.Timer
	stopRetire chan struct{}
}

// New creates a registry. Sessions run until Shutdown or until parent is cancelled.
func New(parent context.Context, store games.GameStore, stats session.StatSink, coordinator Coordinator, presence Presence, clock clockwork.Clock, cfg Config) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = DefaultConfig().GraceWindow
	}
	if cfg.MutationTimeout <= 0 {
		cfg.MutationTimeout = DefaultConfig().MutationTimeout
	}

	ctx, cancel := context.WithCancel(parent)
	return &Registry{
		store:       store,
		stats:       stats,
		coordinator: coordinator,
		presence:    presence,
		clock:       clock,
		cfg:         cfg,
		entries:     make(map[string]*entry),
		ctx:         ctx,
		cancel:      cancel,
	}
}

var errShuttingDown = fmt.Errorf("%w: registry shutting down", session.ErrSessionClosed)

// Join adds connID to gameID, seeding the session from the store when the
// game is not live. sub receives the current snapshot and then every
// broadcast of the game.
func (r *Registry) Join(ctx context.Context, gameID, connID string, role session.Role, sub broadcast.Subscriber) (session.State, error) {
	for {
		e, err := r.ensure(ctx, gameID)
		if err != nil {
			return session.State{}, err
		}

		r.mu.Lock()
		if r.entries[gameID] != e {
			// retired between seeding and now
			r.mu.Unlock()
			continue
		}
		r.cancelRetire(e)
		r.mu.Unlock()

		r.coordinator.Subscribe(gameID, sub, e.session.Snapshot)
		count := r.presence.Join(gameID, connID, role)

		snap := e.session.Snapshot()
		log.Info().
			Str("game_id", gameID).
			Str("connection_id", connID).
			Str("role", string(role)).
			Int("viewer_count", count).
			Int64("revision", snap.Revision).
			Msg("joined session")
		return snap, nil
	}
}

// Leave removes connID from gameID. Leaving a game the connection never
// joined is a no-op; leaving a game that is not live is ErrNotFound.
func (r *Registry) Leave(ctx context.Context, gameID, connID string) error {
	r.mu.Lock()
	e := r.entries[gameID]
	r.mu.Unlock()
	if e == nil {
		return fmt.Errorf("game %s: %w", gameID, session.ErrNotFound)
	}

	r.coordinator.Unsubscribe(gameID, connID)
	count, found := r.presence.Leave(gameID, connID)
	if !found {
		return nil
	}

	log.Info().
		Str("game_id", gameID).
		Str("connection_id", connID).
		Int("viewer_count", count).
		Msg("left session")

	if count == 0 {
		r.scheduleRetire(gameID, e)
	}
	return nil
}

// ApplyMutation routes m to the live session of gameID
func (r *Registry) ApplyMutation(ctx context.Context, gameID string, m session.Mutation) (session.State, error) {
	r.mu.Lock()
	e := r.entries[gameID]
	r.mu.Unlock()
	if e == nil {
		return session.State{}, fmt.Errorf("game %s is not live: %w", gameID, session.ErrNotFound)
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.MutationTimeout)
	defer cancel()
	return e.session.Apply(ctx, m)
}

// SyncStatus applies a status change made in the persisted store to the
// live session, if there is one. Games that are not live are ignored.
func (r *Registry) SyncStatus(ctx context.Context, gameID string, status models.GameStatus) error {
	var kind session.MutationKind
	switch status {
	case models.GameStatusCancelled:
		kind = session.MutationCancelGame
	case models.GameStatusCompleted:
		kind = session.MutationEndGame
	default:
		return nil
	}

	r.mu.Lock()
	e := r.entries[gameID]
	r.mu.Unlock()
	if e == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.MutationTimeout)
	defer cancel()
	_, err := e.session.Apply(ctx, session.Mutation{
		Kind:        kind,
		EventID:     "status:" + gameID + ":" + string(status),
		SubmittedBy: "store",
	})
	if errors.Is(err, session.ErrInvalidTransition) || errors.Is(err, session.ErrStaleOrDuplicate) {
		// already terminal
		return nil
	}
	return err
}

// Snapshot returns the live state and viewer count of gameID
func (r *Registry) Snapshot(gameID string) (session.State, int, bool) {
	r.mu.Lock()
	e := r.entries[gameID]
	r.mu.Unlock()
	if e == nil {
		return session.State{}, 0, false
	}
	return e.session.Snapshot(), r.presence.Count(gameID), true
}

// Participant reports the role connID joined gameID with. It is false
// once the connection left or was forced out.
func (r *Registry) Participant(gameID, connID string) (session.Role, bool) {
	return r.presence.Role(gameID, connID)
}

// GameStats describes one live session
type GameStats struct {
	GameID      string            `json:"game_id"`
	Status      models.GameStatus `json:"status"`
	Revision    int64             `json:"revision"`
	ViewerCount int               `json:"viewer_count"`
	Retiring    bool              `json:"retiring"`
}

// Stats summarizes the registry
type Stats struct {
	ActiveSessions int         `json:"active_sessions"`
	Sessions       []GameStats `json:"sessions"`
}

func (r *Registry) Stats() Stats {
	r.mu.Lock()
	type live struct {
		id       string
		s        *session.Session
		retiring bool
	}
	all := make([]live, 0, len(r.entries))
	for id, e := range r.entries {
		all = append(all, live{id: id, s: e.session, retiring: e.retire != nil})
	}
	r.mu.Unlock()

	out := Stats{ActiveSessions: len(all), Sessions: make([]GameStats, 0, len(all))}
	for _, l := range all {
		snap := l.s.Snapshot()
		out.Sessions = append(out.Sessions, GameStats{
			GameID:      l.id,
			Status:      snap.Status,
			Revision:    snap.Revision,
			ViewerCount: r.presence.Count(l.id),
			Retiring:    l.retiring,
		})
	}
	sort.Slice(out.Sessions, func(i, j int) bool { return out.Sessions[i].GameID < out.Sessions[j].GameID })
	return out
}

// Shutdown tells every participant the service is going away and closes
// all sessions. Later joins fail.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	r.closed = true
	entries := r.entries
	r.entries = make(map[string]*entry)
	for _, e := range entries {
		r.cancelRetire(e)
	}
	r.mu.Unlock()

	for gameID, e := range entries {
		r.coordinator.ForceLeave(gameID, ReasonShutdown)
		r.presence.Drop(gameID)
		e.session.Close()
		metrics.RecordSessionRetired(ReasonShutdown)
	}
	r.cancel()

	log.Info().Int("sessions", len(entries)).Msg("session registry shut down")
}

// ensure returns the live entry of gameID, seeding it at most once even
// when many connections join concurrently.
func (r *Registry) ensure(ctx context.Context, gameID string) (*entry, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, errShuttingDown
	}
	if e := r.entries[gameID]; e != nil {
		r.mu.Unlock()
		return e, nil
	}
	r.mu.Unlock()

	v, err, _ := r.seeds.Do(gameID, func() (any, error) {
		r.mu.Lock()
		if e := r.entries[gameID]; e != nil {
			r.mu.Unlock()
			return e, nil
		}
		r.mu.Unlock()

		game, err := r.store.GetGame(ctx, gameID)
		if err != nil {
			return nil, fmt.Errorf("seed session: %w", err)
		}

		e := &entry{}
		cfg := r.cfg.Session
		cfg.OnFailure = func(id string, err error) { r.fail(id, e, err) }

		s, err := session.New(r.ctx, game, r.coordinator, r.stats, cfg)
		if err != nil {
			return nil, err
		}
		e.session = s

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			s.Close()
			return nil, errShuttingDown
		}
		r.entries[gameID] = e
		r.mu.Unlock()

		metrics.RecordSessionCreated()
		log.Info().
			Str("game_id", gameID).
			Str("status", string(game.Status)).
			Int("home_score", game.HomeScore).
			Int("away_score", game.AwayScore).
			Msg("session seeded")
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*entry), nil
}

// scheduleRetire arms the grace timer of e
func (r *Registry) scheduleRetire(gameID string, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entries[gameID] != e {
		return
	}
	r.cancelRetire(e)

	gen := e.gen
	timer := r.clock.NewTimer(r.cfg.GraceWindow)
	stop := make(chan struct{})
	e.retire = timer
	e.stopRetire = stop

	go func() {
		select {
		case <-timer.Chan():
			r.retire(gameID, e, gen)
		case <-stop:
		}
	}()

	log.Debug().
		Str("game_id", gameID).
		Dur("grace_window", r.cfg.GraceWindow).
		Msg("session retirement scheduled")
}

// cancelRetire stops a pending retirement and invalidates any timer that
// already fired. Caller holds r.mu.
func (r *Registry) cancelRetire(e *entry) {
	e.gen++
	if e.retire == nil {
		return
	}
	e.retire.Stop()
	close(e.stopRetire)
	e.retire = nil
	e.stopRetire = nil
}

func (r *Registry) retire(gameID string, e *entry, gen uint64) {
	r.mu.Lock()
	if r.entries[gameID] != e || e.gen != gen || r.presence.Count(gameID) > 0 {
		r.mu.Unlock()
		log.Debug().Str("game_id", gameID).Msg("ignoring stale retirement")
		return
	}
	delete(r.entries, gameID)
	e.retire = nil
	e.stopRetire = nil
	r.mu.Unlock()

	e.session.Close()
	metrics.RecordSessionRetired(ReasonIdle)
	log.Info().Str("game_id", gameID).Msg("session retired")
}

// fail removes a session whose loop died and ejects its participants
func (r *Registry) fail(gameID string, e *entry, err error) {
	r.mu.Lock()
	if r.entries[gameID] != e {
		r.mu.Unlock()
		return
	}
	delete(r.entries, gameID)
	r.cancelRetire(e)
	r.mu.Unlock()

	r.coordinator.ForceLeave(gameID, ReasonFailed)
	r.presence.Drop(gameID)
	metrics.RecordSessionRetired(ReasonFailed)
	log.Error().Err(err).Str("game_id", gameID).Msg("session failed, participants ejected")
}
