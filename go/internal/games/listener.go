package games

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/courtside/go/internal/models"
)

type ListenerConfig struct {
	DatabaseURL   string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel string        // Channel name to LISTEN on
	PingInterval  time.Duration // How often to check the listener connection
	MinReconnect  time.Duration
	MaxReconnect  time.Duration
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel: "game_status_changed",
		PingInterval:  90 * time.Second,
		MinReconnect:  10 * time.Second,
		MaxReconnect:  time.Minute,
	}
}

// StatusChange is the payload of a game_status_changed notification
type StatusChange struct {
	GameID string            `json:"game_id"`
	Status models.GameStatus `json:"status"`
}

// StatusSink receives persisted status changes
type StatusSink interface {
	SyncStatus(ctx context.Context, gameID string, status models.GameStatus) error
}

// notifications is the part of *pq.Listener the loop depends on
type notifications interface {
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

// StatusListener forwards game status changes made outside the live
// session (cancellations by the CRUD service) to a StatusSink.
type StatusListener struct {
	listener notifications
	sink     StatusSink
	cfg      ListenerConfig
}

func NewStatusListener(sink StatusSink, cfg ListenerConfig) (*StatusListener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		cfg.MinReconnect,
		cfg.MaxReconnect,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for notifications")

	return &StatusListener{listener: l, sink: sink, cfg: cfg}, nil
}

func (l *StatusListener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Msg("status listener started")

	pingTicker := time.NewTicker(l.cfg.PingInterval)
	defer pingTicker.Stop()

	notes := l.listener.NotificationChannel()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("status listener shutting down")
			return l.listener.Close()
		case note := <-notes:
			if note == nil {
				// nil notification means the connection was re-established
				continue
			}
			if err := l.handleNotification(ctx, note.Extra); err != nil {
				log.Error().Err(err).Msg("failed to handle notification")
			}
		case <-pingTicker.C:
			if err := l.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

// handleNotification decodes a notification payload and hands it to the sink
func (l *StatusListener) handleNotification(ctx context.Context, extra string) error {
	var change StatusChange
	if err := json.Unmarshal([]byte(extra), &change); err != nil {
		return fmt.Errorf("invalid status notification: %w", err)
	}
	if change.GameID == "" || !change.Status.Valid() {
		return fmt.Errorf("invalid status notification %q", extra)
	}

	log.Debug().
		Str("game_id", change.GameID).
		Str("status", string(change.Status)).
		Msg("game status changed")

	if err := l.sink.SyncStatus(ctx, change.GameID, change.Status); err != nil {
		return fmt.Errorf("sync status for game %s: %w", change.GameID, err)
	}
	return nil
}
