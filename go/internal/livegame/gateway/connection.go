package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/courtside/go/internal/auth"
	"github.com/mcdev12/courtside/go/internal/livegame/metrics"
	"github.com/mcdev12/courtside/go/internal/livegame/session"
	"github.com/mcdev12/courtside/go/internal/livegame/wire"
)

// Connection is one websocket client. It is the broadcast subscriber for
// every game it joins.
type Connection struct {
	id       string
	identity auth.Identity
	conn     *websocket.Conn
	service  *Service

	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	// joined is only touched by the read pump
	joined map[string]struct{}

	connectedAt time.Time
}

func newConnection(s *Service, ws *websocket.Conn, identity auth.Identity) *Connection {
	return &Connection{
		id:          uuid.New().String(),
		identity:    identity,
		conn:        ws,
		service:     s,
		send:        make(chan []byte, s.cfg.SendBuffer),
		closed:      make(chan struct{}),
		joined:      make(map[string]struct{}),
		connectedAt: time.Now(),
	}
}

func (c *Connection) ID() string { return c.id }

// Send queues a frame without blocking. It reports false when the buffer
// is full or the connection is closed.
func (c *Connection) Send(data []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close stops the write pump, which then closes the socket
func (c *Connection) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	cfg := c.service.cfg
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.id).
					Msg("failed to write message to WebSocket")
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.id).
					Msg("failed to send ping")
				c.Close()
				return
			}

		case <-c.closed:
			// flush what is already queued, forced leave frames included
			for {
				select {
				case message := <-c.send:
					c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
					if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
						return
					}
				default:
					c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
					c.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection. When it
// returns the connection has left every game it joined.
func (c *Connection) readPump(ctx context.Context) {
	cfg := c.service.cfg
	defer func() {
		c.leaveAll(ctx)
		c.Close()
	}()

	c.conn.SetReadLimit(cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().
					Err(err).
					Str("connection_id", c.id).
					Msg("connection lost")
			}
			return
		}

		c.handleClientMessage(ctx, message)
		c.conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	}
}

func (c *Connection) handleClientMessage(ctx context.Context, data []byte) {
	msg, err := wire.DecodeClient(data)
	if err != nil {
		log.Debug().Err(err).Str("connection_id", c.id).Msg("bad client frame")
		c.reply(wire.NewError(wire.CodeBadRequest, err.Error()))
		return
	}

	switch msg.Type {
	case wire.TypeJoinSession:
		c.join(ctx, msg.GameID)
	case wire.TypeLeaveSession:
		c.leave(ctx, msg.GameID)
	case wire.TypeSubmitMutation:
		c.submit(ctx, msg.GameID, *msg.Mutation)
	}
}

func (c *Connection) join(ctx context.Context, gameID string) {
	if _, err := c.service.registry.Join(ctx, gameID, c.id, c.identity.Role, c); err != nil {
		log.Info().
			Err(err).
			Str("game_id", gameID).
			Str("connection_id", c.id).
			Msg("join rejected")
		c.reply(wire.NewError(session.ErrorCode(err), err.Error()))
		return
	}
	c.joined[gameID] = struct{}{}
}

func (c *Connection) leave(ctx context.Context, gameID string) {
	if _, ok := c.joined[gameID]; !ok {
		return
	}
	delete(c.joined, gameID)
	if err := c.service.registry.Leave(ctx, gameID, c.id); err != nil && !errors.Is(err, session.ErrNotFound) {
		log.Error().Err(err).Str("game_id", gameID).Str("connection_id", c.id).Msg("leave failed")
	}
}

func (c *Connection) leaveAll(ctx context.Context) {
	// ctx may already be cancelled by the server, leaving must still happen
	ctx = context.WithoutCancel(ctx)
	for gameID := range c.joined {
		c.leave(ctx, gameID)
	}
}

func (c *Connection) submit(ctx context.Context, gameID string, m wire.Mutation) {
	if m.EventID == "" {
		m.EventID = uuid.New().String()
	}

	if err := c.authorize(gameID); err != nil {
		metrics.MutationsRejected.WithLabelValues(session.ErrorCode(err)).Inc()
		c.reply(wire.NewMutationRejected(gameID, m, err))
		return
	}

	_, err := c.service.registry.ApplyMutation(ctx, gameID, m.ToSession(c.identity.User.ID))
	switch {
	case err == nil:
		// the broadcast carries the new state
	case errors.Is(err, session.ErrStaleOrDuplicate):
		if state, _, ok := c.service.registry.Snapshot(gameID); ok {
			c.reply(wire.NewSessionState(state))
		}
	default:
		log.Debug().
			Err(err).
			Str("game_id", gameID).
			Str("connection_id", c.id).
			Str("event_id", m.EventID).
			Msg("mutation rejected")
		c.reply(wire.NewMutationRejected(gameID, m, err))
	}
}

func (c *Connection) authorize(gameID string) error {
	if _, ok := c.joined[gameID]; !ok {
		return fmt.Errorf("%w: join game %s before submitting", session.ErrForbidden, gameID)
	}
	if _, ok := c.service.registry.Participant(gameID, c.id); !ok {
		// forced out since joining
		delete(c.joined, gameID)
		return fmt.Errorf("%w: not a participant of game %s, join again", session.ErrForbidden, gameID)
	}
	if !c.identity.Role.CanMutate() {
		return fmt.Errorf("%w: %s may not change the score", session.ErrForbidden, c.identity.Role)
	}
	return nil
}

// reply goes through the coordinator so it is ordered after frames
// already broadcast to this connection
func (c *Connection) reply(frame any) {
	c.service.coordinator.Send(c, frame)
}

func (c *Connection) run(ctx context.Context) {
	metrics.ConnectedClients.Inc()
	defer metrics.ConnectedClients.Dec()

	log.Info().
		Str("connection_id", c.id).
		Str("user_id", c.identity.User.ID).
		Str("role", string(c.identity.Role)).
		Msg("WebSocket connection established")

	go c.writePump()
	c.readPump(ctx)

	log.Info().
		Str("connection_id", c.id).
		Dur("connected_for", time.Since(c.connectedAt)).
		Msg("WebSocket connection closed")
}
