package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/courtside/go/internal/livegame/session"
)

type countRecorder struct {
	mu     sync.Mutex
	counts map[string][]int
}

func newCountRecorder() *countRecorder {
	return &countRecorder{counts: make(map[string][]int)}
}

func (r *countRecorder) PublishPresence(gameID string, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[gameID] = append(r.counts[gameID], count)
}

func (r *countRecorder) get(gameID string) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.counts[gameID]...)
}

func TestTracker_JoinLeaveCounts(t *testing.T) {
	rec := newCountRecorder()
	tr := NewTracker(rec)

	assert.Equal(t, 1, tr.Join("g1", "c1", session.RoleViewer))
	assert.Equal(t, 2, tr.Join("g1", "c2", session.RoleEditor))
	assert.Equal(t, 2, tr.Count("g1"))

	count, found := tr.Leave("g1", "c1")
	require.True(t, found)
	assert.Equal(t, 1, count)

	assert.Equal(t, []int{1, 2, 1}, rec.get("g1"))
}

func TestTracker_DuplicateJoinDoesNotNotify(t *testing.T) {
	rec := newCountRecorder()
	tr := NewTracker(rec)

	tr.Join("g1", "c1", session.RoleViewer)
	assert.Equal(t, 1, tr.Join("g1", "c1", session.RoleEditor))

	role, ok := tr.Role("g1", "c1")
	require.True(t, ok)
	assert.Equal(t, session.RoleEditor, role)
	assert.Equal(t, []int{1}, rec.get("g1"))
}

func TestTracker_LeaveUnknown(t *testing.T) {
	rec := newCountRecorder()
	tr := NewTracker(rec)

	_, found := tr.Leave("nope", "c1")
	assert.False(t, found)

	tr.Join("g1", "c1", session.RoleViewer)
	_, found = tr.Leave("g1", "c2")
	assert.False(t, found)
	assert.Equal(t, []int{1}, rec.get("g1"))
}

func TestTracker_EmptyGameIsForgotten(t *testing.T) {
	tr := NewTracker(nil)

	tr.Join("g1", "c1", session.RoleViewer)
	tr.Leave("g1", "c1")

	tr.mu.Lock()
	_, ok := tr.games["g1"]
	tr.mu.Unlock()
	assert.False(t, ok)
	assert.Equal(t, 0, tr.Count("g1"))

	assert.Equal(t, 1, tr.Join("g1", "c2", session.RoleViewer))
}

func TestTracker_DropClearsWithoutNotifying(t *testing.T) {
	rec := newCountRecorder()
	tr := NewTracker(rec)
	tr.Join("g1", "c1", session.RoleViewer)
	tr.Join("g1", "c2", session.RoleViewer)

	ids := tr.Drop("g1")
	assert.ElementsMatch(t, []string{"c1", "c2"}, ids)
	assert.Equal(t, 0, tr.Count("g1"))
	assert.Equal(t, []int{1, 2}, rec.get("g1"))
}

func TestTracker_ConcurrentJoinsAreCountedOnce(t *testing.T) {
	rec := newCountRecorder()
	tr := NewTracker(rec)

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr.Join("g1", fmt.Sprintf("c%d", i), session.RoleViewer)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n, tr.Count("g1"))
	counts := rec.get("g1")
	require.Len(t, counts, n)
	for i, c := range counts {
		assert.Equal(t, i+1, c, "counts must be published in the order they were produced")
	}
}
