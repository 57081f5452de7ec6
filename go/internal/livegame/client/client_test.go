package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/courtside/go/internal/livegame/session"
	"github.com/mcdev12/courtside/go/internal/livegame/wire"
	"github.com/mcdev12/courtside/go/internal/models"
)

// fakeGateway runs serve for every websocket connection
func fakeGateway(t *testing.T, serve func(ws *websocket.Conn)) Config {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		serve(ws)
	}))
	t.Cleanup(server.Close)

	cfg := DefaultConfig()
	cfg.URL = "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	cfg.GameID = "g1"
	cfg.JoinTimeout = 100 * time.Millisecond
	return cfg
}

func readClient(ws *websocket.Conn) (wire.ClientMessage, error) {
	var m wire.ClientMessage
	err := ws.ReadJSON(&m)
	return m, err
}

func snapshot(rev int64, home, away int) wire.SessionState {
	return wire.NewSessionState(session.State{
		GameID: "g1", HomeScore: home, AwayScore: away,
		Status: models.GameStatusInProgress, Revision: rev,
	})
}

// scoreServer answers joins with a snapshot and applies raw deltas
func scoreServer(t *testing.T, submitted chan<- wire.Mutation) func(ws *websocket.Conn) {
	return func(ws *websocket.Conn) {
		rev, home, away := int64(0), 10, 8
		for {
			m, err := readClient(ws)
			if err != nil {
				return
			}
			switch m.Type {
			case wire.TypeJoinSession:
				ws.WriteJSON(snapshot(rev, home, away))
				ws.WriteJSON(wire.NewPresence("g1", 1))
			case wire.TypeSubmitMutation:
				if submitted != nil {
					submitted <- *m.Mutation
				}
				if m.Mutation.Points > 3 {
					ws.WriteJSON(wire.MutationRejected{
						Type: wire.TypeMutationRejected, GameID: "g1",
						ClientSeq: m.Mutation.ClientSeq, Code: "invalid_mutation", Message: "too many",
					})
					continue
				}
				rev++
				if m.Mutation.Team == models.SideAway {
					away += m.Mutation.Points
				} else {
					home += m.Mutation.Points
				}
				ws.WriteJSON(snapshot(rev, home, away))
			case wire.TypeLeaveSession:
				return
			}
		}
	}
}

func waitFor(t *testing.T, c *Client, kind UpdateKind) Update {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case u := <-c.Updates():
			if u.Kind == kind {
				return u
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s update", kind)
		}
	}
}

func TestClient_ConnectJoins(t *testing.T) {
	c := New(fakeGateway(t, scoreServer(t, nil)))
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	assert.Equal(t, StateJoined, c.State())
	d := c.Display()
	assert.Equal(t, 10, d.HomeScore)
	assert.Equal(t, int64(0), d.Revision)

	waitFor(t, c, UpdatePresence)
	assert.Equal(t, 1, c.ViewerCount())
}

func TestClient_SubmitOptimistic(t *testing.T) {
	// unbuffered, so the server holds its broadcast until the test reads
	submitted := make(chan wire.Mutation)
	c := New(fakeGateway(t, scoreServer(t, submitted)))
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	sent, err := c.Submit(wire.Mutation{Kind: session.MutationRawDelta, Team: models.SideHome, Points: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(1), sent.ClientSeq)
	assert.NotEmpty(t, sent.EventID)

	optimistic := c.Display()
	assert.Equal(t, 12, optimistic.HomeScore)
	assert.Equal(t, int64(0), optimistic.Revision)
	assert.Equal(t, 1, optimistic.Pending)

	got := <-submitted
	assert.Equal(t, sent.EventID, got.EventID)

	require.Eventually(t, func() bool {
		d := c.Display()
		return d.Revision == 1 && d.Pending == 0
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 12, c.Display().HomeScore)
}

func TestClient_RejectionDropsEdit(t *testing.T) {
	c := New(fakeGateway(t, scoreServer(t, nil)))
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	_, err := c.Submit(wire.Mutation{Kind: session.MutationRawDelta, Team: models.SideHome, Points: 9})
	require.NoError(t, err)

	u := waitFor(t, c, UpdateRejected)
	assert.Equal(t, "invalid_mutation", u.Rejection.Code)
	assert.Equal(t, 10, u.Display.HomeScore)
	assert.Equal(t, 0, u.Display.Pending)
}

func TestClient_SubmitRequiresJoin(t *testing.T) {
	c := New(DefaultConfig())
	_, err := c.Submit(wire.Mutation{Kind: session.MutationEndGame})
	assert.ErrorIs(t, err, ErrNotJoined)
	assert.ErrorIs(t, c.Leave(context.Background()), ErrNotJoined)
}

func TestClient_SubmitRefusesServerOnlyKinds(t *testing.T) {
	c := New(fakeGateway(t, scoreServer(t, nil)))
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	_, err := c.Submit(wire.Mutation{Kind: session.MutationCancelGame})
	require.ErrorIs(t, err, ErrBadKind)
	assert.Equal(t, 0, c.Display().Pending)
}

func TestClient_JoinRetriedAfterTimeout(t *testing.T) {
	var joins atomic.Int32
	c := New(fakeGateway(t, func(ws *websocket.Conn) {
		for {
			m, err := readClient(ws)
			if err != nil {
				return
			}
			// the first join is lost
			if m.Type == wire.TypeJoinSession && joins.Add(1) > 1 {
				ws.WriteJSON(snapshot(3, 1, 2))
			}
		}
	}))

	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()
	assert.Equal(t, int32(2), joins.Load())
	assert.Equal(t, int64(3), c.Display().Revision)
}

func TestClient_JoinGivesUp(t *testing.T) {
	cfg := fakeGateway(t, func(ws *websocket.Conn) {
		for {
			if _, err := readClient(ws); err != nil {
				return
			}
		}
	})
	cfg.JoinAttempts = 2
	c := New(cfg)

	err := c.Connect(context.Background())
	require.ErrorIs(t, err, ErrJoinTimeout)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestClient_JoinRefused(t *testing.T) {
	c := New(fakeGateway(t, func(ws *websocket.Conn) {
		if _, err := readClient(ws); err != nil {
			return
		}
		ws.WriteJSON(wire.NewError("not_found", "game nope: not found"))
		readClient(ws)
	}))

	err := c.Connect(context.Background())
	var refused *JoinError
	require.ErrorAs(t, err, &refused)
	assert.Equal(t, "not_found", refused.Code)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestClient_ForcedLeave(t *testing.T) {
	joined := make(chan struct{})
	c := New(fakeGateway(t, func(ws *websocket.Conn) {
		if _, err := readClient(ws); err != nil {
			return
		}
		ws.WriteJSON(snapshot(1, 1, 1))
		<-joined
		ws.WriteJSON(wire.NewForcedLeave("g1", "shutdown"))
		readClient(ws)
	}))
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()
	close(joined)

	u := waitFor(t, c, UpdateForcedLeave)
	assert.Equal(t, "shutdown", u.Reason)
	assert.Equal(t, StateDisconnected, c.State())

	_, err := c.Submit(wire.Mutation{Kind: session.MutationEndGame})
	assert.ErrorIs(t, err, ErrNotJoined)
}

func TestClient_Leave(t *testing.T) {
	left := make(chan struct{})
	server := scoreServer(t, nil)
	c := New(fakeGateway(t, func(ws *websocket.Conn) {
		server(ws)
		close(left)
	}))
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.Leave(context.Background()))
	assert.Equal(t, StateDisconnected, c.State())

	select {
	case <-left:
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the leave")
	}
}
