package games

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/courtside/go/internal/models"
)

type fakeNotifications struct {
	ch     chan *pq.Notification
	closed chan struct{}
	once   sync.Once
}

func newFakeNotifications() *fakeNotifications {
	return &fakeNotifications{ch: make(chan *pq.Notification, 4), closed: make(chan struct{})}
}

func (f *fakeNotifications) NotificationChannel() <-chan *pq.Notification { return f.ch }
func (f *fakeNotifications) Ping() error                                  { return nil }
func (f *fakeNotifications) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

type statusRecorder struct {
	changes chan StatusChange
}

func (r *statusRecorder) SyncStatus(ctx context.Context, gameID string, status models.GameStatus) error {
	r.changes <- StatusChange{GameID: gameID, Status: status}
	return nil
}

func TestStatusListener_ForwardsChanges(t *testing.T) {
	notes := newFakeNotifications()
	sink := &statusRecorder{changes: make(chan StatusChange, 4)}
	l := &StatusListener{listener: notes, sink: sink, cfg: DefaultListenerConfig()}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Start(ctx) }()

	notes.ch <- nil
	notes.ch <- &pq.Notification{Channel: "game_status_changed", Extra: `not json`}
	notes.ch <- &pq.Notification{Channel: "game_status_changed", Extra: `{"game_id":"g1","status":"exploded"}`}
	notes.ch <- &pq.Notification{Channel: "game_status_changed", Extra: `{"game_id":"g1","status":"cancelled"}`}

	select {
	case change := <-sink.changes:
		assert.Equal(t, StatusChange{GameID: "g1", Status: models.GameStatusCancelled}, change)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for status change")
	}

	cancel()
	require.NoError(t, <-errCh)
	select {
	case <-notes.closed:
	default:
		t.Fatal("listener was not closed on shutdown")
	}
	assert.Empty(t, sink.changes, "invalid notifications must be skipped")
}
