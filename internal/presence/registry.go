package presence

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumenchat/chatd/internal/domain"
)

const maxNameRunes = 20

// ChangeKind identifies what mutated the roster.
type ChangeKind string

const (
	ChangeJoin     ChangeKind = "join"
	ChangeIdentify ChangeKind = "identify"
	ChangeLeave    ChangeKind = "leave"
)

// Change carries a roster mutation together with the roster state after it,
// so listeners never need to call back into the registry.
type Change struct {
	Kind        ChangeKind
	ConnID      string
	DisplayName string
	Users       []domain.User
	Total       int
}

// Listener consumes roster changes. It is invoked outside the registry lock.
type Listener func(Change)

type conn struct {
	id       string
	name     string
	joinedAt time.Time
}

// Registry tracks live connections and their display names. It owns each
// Connection for its lifetime: created on Register, destroyed on Unregister.
type Registry struct {
	mu       sync.RWMutex
	conns    map[string]*conn
	listener Listener
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*conn)}
}

// OnChange installs the roster-change listener. Call before serving traffic.
func (r *Registry) OnChange(l Listener) {
	r.listener = l
}

// Register adds a connection with a generated guest name.
func (r *Registry) Register(connID string) {
	r.mu.Lock()
	if _, ok := r.conns[connID]; ok {
		r.mu.Unlock()
		return
	}
	c := &conn{id: connID, name: guestName(), joinedAt: time.Now()}
	r.conns[connID] = c
	change := r.changeLocked(ChangeJoin, c)
	r.mu.Unlock()

	r.notify(change)
}

// Identify sets the connection's display name. Invalid or empty names fall
// back to a generated guest name; oversized names are truncated.
func (r *Registry) Identify(connID, displayName string) {
	r.mu.Lock()
	c, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	c.name = normalizeName(displayName)
	change := r.changeLocked(ChangeIdentify, c)
	r.mu.Unlock()

	r.notify(change)
}

// Unregister removes a connection. Unknown ids are a no-op.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	c, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, connID)
	change := r.changeLocked(ChangeLeave, c)
	r.mu.Unlock()

	r.notify(change)
}

// Name returns the current display name for a connection.
func (r *Registry) Name(connID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.conns[connID]; ok {
		return c.name
	}
	return ""
}

// Snapshot returns the roster ordered by join time.
func (r *Registry) Snapshot() []domain.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) snapshotLocked() []domain.User {
	conns := make([]*conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	// Join order; ties broken by id so the roster is stable.
	for i := 1; i < len(conns); i++ {
		for j := i; j > 0 && earlier(conns[j], conns[j-1]); j-- {
			conns[j], conns[j-1] = conns[j-1], conns[j]
		}
	}
	users := make([]domain.User, len(conns))
	for i, c := range conns {
		users[i] = domain.User{ConnID: c.id, DisplayName: c.name}
	}
	return users
}

func earlier(a, b *conn) bool {
	if a.joinedAt.Equal(b.joinedAt) {
		return a.id < b.id
	}
	return a.joinedAt.Before(b.joinedAt)
}

func (r *Registry) changeLocked(kind ChangeKind, c *conn) Change {
	return Change{
		Kind:        kind,
		ConnID:      c.id,
		DisplayName: c.name,
		Users:       r.snapshotLocked(),
		Total:       len(r.conns),
	}
}

func (r *Registry) notify(change Change) {
	if r.listener != nil {
		r.listener(change)
	}
}

func normalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return guestName()
	}
	runes := []rune(name)
	if len(runes) > maxNameRunes {
		return string(runes[:maxNameRunes])
	}
	return name
}

func guestName() string {
	return "guest-" + uuid.NewString()[:8]
}
