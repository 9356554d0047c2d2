package typing

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestSetAndClear(t *testing.T) {
	c := NewCoordinator(time.Minute)
	defer c.Close()
	rec := &recorder{}
	c.OnChange(rec.listen)

	c.Set("c1", "alice", true)
	require.Len(t, c.Active(), 1)

	c.Set("c1", "alice", false)
	assert.Empty(t, c.Active())

	events := rec.all()
	require.Len(t, events, 2)
	assert.True(t, events[0].Typing)
	assert.False(t, events[1].Typing)
	assert.Equal(t, "alice", events[1].DisplayName)
}

func TestRefreshDoesNotRenotify(t *testing.T) {
	c := NewCoordinator(time.Minute)
	defer c.Close()
	rec := &recorder{}
	c.OnChange(rec.listen)

	c.Set("c1", "alice", true)
	c.Set("c1", "alice", true)
	c.Set("c1", "alice", true)

	assert.Len(t, rec.all(), 1, "refreshes reset the timer silently")
}

func TestIdleTimeoutAutoClears(t *testing.T) {
	c := NewCoordinator(30 * time.Millisecond)
	defer c.Close()
	rec := &recorder{}
	c.OnChange(rec.listen)

	c.Set("c1", "alice", true)

	require.Eventually(t, func() bool {
		return len(c.Active()) == 0
	}, time.Second, 5*time.Millisecond)

	events := rec.all()
	require.Len(t, events, 2)
	assert.False(t, events[1].Typing, "idle expiry must notify typing=false")
}

func TestRefreshDefersIdleTimeout(t *testing.T) {
	c := NewCoordinator(60 * time.Millisecond)
	defer c.Close()

	c.Set("c1", "alice", true)
	for i := 0; i < 4; i++ {
		time.Sleep(30 * time.Millisecond)
		c.Set("c1", "alice", true)
	}
	assert.Len(t, c.Active(), 1, "refreshed entry must outlive a single idle period")
}

func TestStaleExpiryDoesNotClearRefreshedEntry(t *testing.T) {
	c := NewCoordinator(time.Minute)
	defer c.Close()
	rec := &recorder{}
	c.OnChange(rec.listen)

	c.Set("c1", "alice", true)
	c.Set("c1", "alice", true) // refresh advances the generation

	// A timer that fired before the refresh delivers its stale generation.
	c.expire("c1", 0)
	assert.Len(t, c.Active(), 1, "the refreshed entry must survive a stale expiry")

	c.expire("c1", 1)
	assert.Empty(t, c.Active())

	events := rec.all()
	require.Len(t, events, 2)
	assert.False(t, events[1].Typing)
}

func TestClearUnknownIsNoop(t *testing.T) {
	c := NewCoordinator(time.Minute)
	defer c.Close()
	rec := &recorder{}
	c.OnChange(rec.listen)

	c.Clear("ghost")
	c.Set("c1", "alice", false)

	assert.Empty(t, rec.all(), "clearing an absent entry must not notify")
}
