package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/courtside/go/internal/livegame/wire"
)

var (
	ErrNotJoined   = errors.New("not joined to a session")
	ErrJoinTimeout = errors.New("join was not acknowledged")
	ErrBadKind     = errors.New("mutation kind not accepted from clients")
)

// JoinError is a join refused by the server
type JoinError struct {
	Code    string
	Message string
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("join refused (%s): %s", e.Code, e.Message)
}

type Config struct {
	// URL of the gateway websocket endpoint, e.g. ws://localhost:8080/ws.
	URL    string
	GameID string
	Token  string
	// UserID and Role are sent as query parameters to servers running
	// without auth.
	UserID string
	Role   string

	JoinTimeout  time.Duration
	JoinAttempts int
	WriteTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		URL:          "ws://localhost:8080/ws",
		JoinTimeout:  5 * time.Second,
		JoinAttempts: 3,
		WriteTimeout: 10 * time.Second,
	}
}

type UpdateKind string

const (
	UpdateState        UpdateKind = "state"
	UpdatePresence     UpdateKind = "presence"
	UpdateRejected     UpdateKind = "rejected"
	UpdateForcedLeave  UpdateKind = "forced_leave"
	UpdateDisconnected UpdateKind = "disconnected"
)

// Update tells the UI something changed
type Update struct {
	Kind        UpdateKind
	Display     Display
	ViewerCount int
	Rejection   *wire.MutationRejected
	Reason      string
}

// Client is a websocket connection to one game session
type Client struct {
	cfg        Config
	dialer     *websocket.Dialer
	reconciler *Reconciler
	state      *stateMachine
	updates    chan Update
	viewers    atomic.Int64

	mu         sync.Mutex
	conn       *websocket.Conn
	joinAck    chan error
	readerDone chan struct{}

	writeMu sync.Mutex
}

func New(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = def.JoinTimeout
	}
	if cfg.JoinAttempts <= 0 {
		cfg.JoinAttempts = def.JoinAttempts
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}

	c := &Client{
		cfg:        cfg,
		dialer:     websocket.DefaultDialer,
		reconciler: NewReconciler(cfg.GameID),
		updates:    make(chan Update, 64),
	}
	c.state = newStateMachine(func(from, to ConnState) {
		log.Debug().
			Str("game_id", cfg.GameID).
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("connection state changed")
	})
	return c
}

// Updates delivers display changes. Updates are dropped when the reader
// falls behind; Display always has the latest.
func (c *Client) Updates() <-chan Update { return c.updates }

func (c *Client) State() ConnState { return c.state.current() }

func (c *Client) Display() Display { return c.reconciler.Display() }

func (c *Client) ViewerCount() int { return int(c.viewers.Load()) }

// Connect dials the gateway and joins the game. An unacknowledged join is
// re-sent up to JoinAttempts times before giving up.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.state.to(StateConnecting); err != nil {
		return err
	}

	conn, err := c.dial(ctx)
	if err != nil {
		c.state.to(StateDisconnected)
		return err
	}

	ack := make(chan error, 1)
	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.joinAck = ack
	c.readerDone = done
	c.mu.Unlock()
	go c.readLoop(conn, done)

	if err := c.awaitJoin(ctx, ack, done); err != nil {
		conn.Close()
		<-done
		c.state.toIf(StateConnecting, StateDisconnected)
		return err
	}

	if !c.state.toIf(StateConnecting, StateJoined) {
		return fmt.Errorf("%w: connection lost while joining", ErrNotJoined)
	}
	log.Info().Str("game_id", c.cfg.GameID).Msg("joined session")
	return nil
}

func (c *Client) awaitJoin(ctx context.Context, ack <-chan error, done <-chan struct{}) error {
	for attempt := 1; attempt <= c.cfg.JoinAttempts; attempt++ {
		if err := c.write(wire.ClientMessage{Type: wire.TypeJoinSession, GameID: c.cfg.GameID}); err != nil {
			return err
		}

		timer := time.NewTimer(c.cfg.JoinTimeout)
		select {
		case err := <-ack:
			timer.Stop()
			return err
		case <-done:
			timer.Stop()
			return errors.New("connection closed while joining")
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			log.Warn().
				Str("game_id", c.cfg.GameID).
				Int("attempt", attempt).
				Msg("join not acknowledged, retrying")
		}
	}
	return fmt.Errorf("%w after %d attempts", ErrJoinTimeout, c.cfg.JoinAttempts)
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse gateway url: %w", err)
	}
	q := u.Query()
	if c.cfg.UserID != "" {
		q.Set("user_id", c.cfg.UserID)
	}
	if c.cfg.Role != "" {
		q.Set("role", c.cfg.Role)
	}
	u.RawQuery = q.Encode()

	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial gateway: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("dial gateway: %w", err)
	}
	return conn, nil
}

// Submit applies m optimistically and sends it. Only allowed while joined.
// A submitted mutation is never re-sent; the next broadcast settles it.
func (c *Client) Submit(m wire.Mutation) (wire.Mutation, error) {
	if c.state.current() != StateJoined {
		return m, ErrNotJoined
	}
	if !wire.ClientKind(m.Kind) {
		return m, fmt.Errorf("%w: %q", ErrBadKind, m.Kind)
	}

	proposed := c.reconciler.Propose(m)
	err := c.write(wire.ClientMessage{
		Type:     wire.TypeSubmitMutation,
		GameID:   c.cfg.GameID,
		Mutation: &proposed,
	})
	if err != nil {
		c.reconciler.Reject(proposed.ClientSeq)
		return proposed, err
	}
	c.emit(Update{Kind: UpdateState, Display: c.reconciler.Display()})
	return proposed, nil
}

// Leave leaves the session and closes the connection
func (c *Client) Leave(ctx context.Context) error {
	if !c.state.toIf(StateJoined, StateLeaving) {
		return ErrNotJoined
	}

	if err := c.write(wire.ClientMessage{Type: wire.TypeLeaveSession, GameID: c.cfg.GameID}); err != nil {
		log.Debug().Err(err).Msg("failed to send leave")
	}
	c.closeConn()

	c.mu.Lock()
	done := c.readerDone
	c.mu.Unlock()
	select {
	case <-done:
	case <-ctx.Done():
	}

	c.reconciler.Reset()
	c.state.toIf(StateLeaving, StateDisconnected)
	return nil
}

// Close drops the connection without leaving
func (c *Client) Close() {
	c.closeConn()
}

func (c *Client) closeConn() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	c.writeMu.Lock()
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	conn.Close()
}

func (c *Client) write(msg wire.ClientMessage) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotJoined
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write %s: %w", msg.Type, err)
	}
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.state.toIf(StateJoined, StateDisconnected) {
				log.Warn().Err(err).Str("game_id", c.cfg.GameID).Msg("connection lost")
				c.reconciler.Reset()
				c.emit(Update{Kind: UpdateDisconnected, Display: c.reconciler.Display(), Reason: err.Error()})
			}
			return
		}
		c.handleFrame(conn, data)
	}
}

func (c *Client) handleFrame(conn *websocket.Conn, data []byte) {
	typ, err := wire.PeekType(data)
	if err != nil {
		log.Debug().Err(err).Msg("ignoring malformed frame")
		return
	}

	switch typ {
	case wire.TypeSessionState:
		var m wire.SessionState
		if err := json.Unmarshal(data, &m); err != nil {
			log.Debug().Err(err).Msg("ignoring malformed session state")
			return
		}
		if m.GameID != c.cfg.GameID {
			return
		}
		if c.reconciler.ApplyState(m.State()) {
			c.emit(Update{Kind: UpdateState, Display: c.reconciler.Display(), ViewerCount: c.ViewerCount()})
		}
		c.ackJoin(nil)

	case wire.TypePresence:
		var m wire.Presence
		if err := json.Unmarshal(data, &m); err != nil || m.GameID != c.cfg.GameID {
			return
		}
		c.viewers.Store(int64(m.ViewerCount))
		c.emit(Update{Kind: UpdatePresence, Display: c.reconciler.Display(), ViewerCount: m.ViewerCount})

	case wire.TypeMutationRejected:
		var m wire.MutationRejected
		if err := json.Unmarshal(data, &m); err != nil {
			return
		}
		c.reconciler.Reject(m.ClientSeq)
		c.emit(Update{Kind: UpdateRejected, Display: c.reconciler.Display(), Rejection: &m})

	case wire.TypeForcedLeave:
		var m wire.ForcedLeave
		if err := json.Unmarshal(data, &m); err != nil || m.GameID != c.cfg.GameID {
			return
		}
		if c.state.toIf(StateJoined, StateDisconnected) {
			log.Warn().Str("game_id", m.GameID).Str("reason", m.Reason).Msg("forced to leave session")
			c.reconciler.Reset()
			c.emit(Update{Kind: UpdateForcedLeave, Display: c.reconciler.Display(), Reason: m.Reason})
			conn.Close()
		}

	case wire.TypeError:
		var m wire.Error
		if err := json.Unmarshal(data, &m); err != nil {
			return
		}
		if c.state.current() == StateConnecting {
			c.ackJoin(&JoinError{Code: m.Code, Message: m.Message})
			return
		}
		log.Warn().Str("code", m.Code).Str("message", m.Message).Msg("server error")
	}
}

func (c *Client) ackJoin(err error) {
	c.mu.Lock()
	ack := c.joinAck
	c.mu.Unlock()
	select {
	case ack <- err:
	default:
	}
}

func (c *Client) emit(u Update) {
	select {
	case c.updates <- u:
	default:
		log.Debug().Str("kind", string(u.Kind)).Msg("update dropped, reader is behind")
	}
}
