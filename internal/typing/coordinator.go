package typing

import (
	"sync"
	"time"

	"github.com/lumenchat/chatd/internal/domain"
)

// Event is one observable typing change.
type Event struct {
	ConnID      string
	DisplayName string
	Typing      bool
}

// Listener consumes typing changes. Invoked outside the coordinator lock.
type Listener func(Event)

type entry struct {
	name  string
	timer *time.Timer
	gen   uint64
}

// Coordinator tracks ephemeral per-connection typing state. Entries expire
// after the idle period unless refreshed; nothing here is ever persisted.
type Coordinator struct {
	mu       sync.Mutex
	entries  map[string]*entry
	idle     time.Duration
	listener Listener
}

func NewCoordinator(idle time.Duration) *Coordinator {
	return &Coordinator{
		entries: make(map[string]*entry),
		idle:    idle,
	}
}

// OnChange installs the change listener. Call before serving traffic.
func (c *Coordinator) OnChange(l Listener) {
	c.listener = l
}

// Set records or clears the connection's typing flag. A refresh of an
// already-typing connection resets its idle timer without re-notifying.
func (c *Coordinator) Set(connID, displayName string, typing bool) {
	if !typing {
		c.Clear(connID)
		return
	}

	c.mu.Lock()
	e, exists := c.entries[connID]
	if exists {
		// A fired timer may already be waiting on the lock; bump the
		// generation so its expiry is recognised as stale, and arm a fresh
		// timer carrying the new generation.
		e.name = displayName
		e.gen++
		gen := e.gen
		e.timer.Stop()
		e.timer = time.AfterFunc(c.idle, func() { c.expire(connID, gen) })
		c.mu.Unlock()
		return
	}
	e = &entry{
		name:  displayName,
		timer: time.AfterFunc(c.idle, func() { c.expire(connID, 0) }),
	}
	c.entries[connID] = e
	c.mu.Unlock()

	c.notify(Event{ConnID: connID, DisplayName: displayName, Typing: true})
}

// Clear drops the connection's typing state immediately. Used for explicit
// stop-typing signals and by the orchestrator on disconnect.
func (c *Coordinator) Clear(connID string) {
	c.mu.Lock()
	e, ok := c.entries[connID]
	if !ok {
		c.mu.Unlock()
		return
	}
	e.timer.Stop()
	delete(c.entries, connID)
	name := e.name
	c.mu.Unlock()

	c.notify(Event{ConnID: connID, DisplayName: name, Typing: false})
}

// Active returns who is currently typing.
func (c *Coordinator) Active() []domain.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	users := make([]domain.User, 0, len(c.entries))
	for id, e := range c.entries {
		users = append(users, domain.User{ConnID: id, DisplayName: e.name})
	}
	return users
}

// Close stops all pending idle timers.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, e := range c.entries {
		e.timer.Stop()
		delete(c.entries, id)
	}
}

func (c *Coordinator) expire(connID string, gen uint64) {
	c.mu.Lock()
	e, ok := c.entries[connID]
	if !ok || e.gen != gen {
		c.mu.Unlock()
		return
	}
	delete(c.entries, connID)
	name := e.name
	c.mu.Unlock()

	c.notify(Event{ConnID: connID, DisplayName: name, Typing: false})
}

func (c *Coordinator) notify(ev Event) {
	if c.listener != nil {
		c.listener(ev)
	}
}
