package session

import (
	"context"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/courtside/go/internal/livegame/metrics"
	"github.com/mcdev12/courtside/go/internal/models"
)

// Notifier receives every accepted state, in revision order
type Notifier interface {
	PublishState(state State)
}

// StatSink accepts player stat deltas for delivery to the player store.
// Forward must not block on storage.
type StatSink interface {
	Forward(delta PlayerStatDelta)
}

// Config holds per-session tuning
type Config struct {
	// DedupeSize bounds how many applied event ids are remembered.
	DedupeSize int
	// OnFailure is called once if the session loop dies on an internal fault.
	OnFailure func(gameID string, err error)
}

// DefaultConfig returns default session configuration
func DefaultConfig() Config {
	return Config{DedupeSize: 1024}
}

type msg interface{ isSessionMsg() }

type mutate struct {
	mutation Mutation
	reply    chan result
}

func (mutate) isSessionMsg() {}

type result struct {
	state State
	err   error
}

// Session owns the authoritative state of one game. All mutations go
// through a single goroutine so they are applied one at a time, in arrival order.
type Session struct {
	gameID   string
	roster   models.Roster
	inbox    chan msg
	state    State
	current  atomic.Pointer[State]
	applied  *lru.Cache
	notifier Notifier
	stats    StatSink
	config   Config

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New starts a session seeded from the persisted game record
func New(parent context.Context, game *models.Game, notifier Notifier, stats StatSink, cfg Config) (*Session, error) {
	if cfg.DedupeSize <= 0 {
		cfg.DedupeSize = DefaultConfig().DedupeSize
	}
	applied, err := lru.New(cfg.DedupeSize)
	if err != nil {
		return nil, fmt.Errorf("create event id cache: %w", err)
	}

	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		gameID:   game.ID,
		roster:   game.Roster,
		inbox:    make(chan msg, 64),
		state:    NewState(game),
		applied:  applied,
		notifier: notifier,
		stats:    stats,
		config:   cfg,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	seed := s.state
	s.current.Store(&seed)

	go s.loop()
	return s, nil
}

// GameID returns the id of the game this session tracks
func (s *Session) GameID() string { return s.gameID }

// Snapshot returns the latest committed state without queueing behind mutations
func (s *Session) Snapshot() State {
	return *s.current.Load()
}

// Done is closed once the session loop has exited
func (s *Session) Done() <-chan struct{} { return s.done }

// Apply submits m to the session queue and waits for the outcome. If ctx
// expires after the mutation was queued it may still be applied.
func (s *Session) Apply(ctx context.Context, m Mutation) (State, error) {
	reply := make(chan result, 1)

	select {
	case s.inbox <- mutate{mutation: m, reply: reply}:
	case <-s.done:
		return s.Snapshot(), ErrSessionClosed
	case <-ctx.Done():
		return s.Snapshot(), ctx.Err()
	}

	select {
	case r := <-reply:
		return r.state, r.err
	case <-s.done:
		return s.Snapshot(), ErrSessionClosed
	case <-ctx.Done():
		return s.Snapshot(), ctx.Err()
	}
}

// Close stops the session loop and waits for it to exit
func (s *Session) Close() {
	s.cancel()
	<-s.done
}

func (s *Session) loop() {
	defer close(s.done)

	for {
		select {
		case <-s.ctx.Done():
			return

		case m := <-s.inbox:
			if err := s.handle(m); err != nil {
				log.Error().Err(err).Str("game_id", s.gameID).Msg("session loop failed")
				if s.config.OnFailure != nil {
					go s.config.OnFailure(s.gameID, err)
				}
				return
			}
		}
	}
}

func (s *Session) handle(m msg) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("session %s: panic: %v", s.gameID, r)
		}
	}()

	switch msg := m.(type) {
	case mutate:
		msg.reply <- s.mutate(msg.mutation)
	}
	return nil
}

func (s *Session) mutate(m Mutation) result {
	if m.EventID != "" && s.applied.Contains(m.EventID) {
		log.Debug().
			Str("game_id", s.gameID).
			Str("event_id", m.EventID).
			Msg("dropping duplicate event")
		return result{state: s.state, err: fmt.Errorf("%w: event %s", ErrStaleOrDuplicate, m.EventID)}
	}

	next, delta, err := Apply(s.state, s.roster, m)
	if err != nil {
		metrics.MutationsRejected.WithLabelValues(ErrorCode(err)).Inc()
		log.Debug().Err(err).Str("game_id", s.gameID).Str("kind", string(m.Kind)).Msg("mutation rejected")
		return result{state: s.state, err: err}
	}

	s.state = next
	committed := next
	s.current.Store(&committed)
	if m.EventID != "" {
		s.applied.Add(m.EventID, next.Revision)
	}
	metrics.MutationsApplied.WithLabelValues(string(m.Kind)).Inc()

	s.notifier.PublishState(next)
	if delta != nil {
		s.stats.Forward(*delta)
	}

	log.Debug().
		Str("game_id", s.gameID).
		Str("kind", string(m.Kind)).
		Str("event_id", m.EventID).
		Int64("revision", next.Revision).
		Int("home_score", next.HomeScore).
		Int("away_score", next.AwayScore).
		Msg("mutation applied")

	return result{state: next}
}
