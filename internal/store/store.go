package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lumenchat/chatd/internal/domain"
	"github.com/lumenchat/chatd/internal/log"
)

// record wraps one stored message. While an insertion is in flight the record
// sits in the index with msg == nil and ready open; waiters block on ready.
// A record that reaches the log always has msg set.
type record struct {
	mu    sync.Mutex
	msg   *domain.Message
	ready chan struct{}
	err   error
}

// Store is the ordered, deduplicated conversation log. The client-generated
// message id is the idempotency key: a second Ingest with a known id returns
// the canonical stored record and never creates a duplicate.
type Store struct {
	mu      sync.RWMutex
	index   map[string]*record
	logRecs []*record // committed records, ascending StoredAt
	journal Journal
	lastTS  int64
	seq     uint64
}

func New(journal Journal) *Store {
	return &Store{
		index:   make(map[string]*record),
		journal: journal,
	}
}

// Replay rebuilds the in-memory log from the journal. Call once at startup
// before serving traffic.
func (s *Store) Replay(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.journal.Replay(ctx, func(msg *domain.Message) error {
		if prev, ok := s.index[msg.ID]; ok {
			// Reaction rewrites share the log key, but guard against a
			// duplicated id anyway: last entry wins.
			prev.msg = msg
			return nil
		}
		rec := &record{msg: msg, ready: closedChan()}
		s.index[msg.ID] = rec
		s.logRecs = append(s.logRecs, rec)
		if msg.StoredAt > s.lastTS {
			s.lastTS = msg.StoredAt
		}
		if msg.Seq > s.seq {
			s.seq = msg.Seq
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	sort.Slice(s.logRecs, func(i, j int) bool {
		return s.logRecs[i].msg.StoredAt < s.logRecs[j].msg.StoredAt
	})
	log.L().Info().Int("messages", len(s.logRecs)).Msg("journal replayed")
	return nil
}

// Ingest stores msg if its id is new and returns the canonical stored record.
// isNew reports whether this call performed the insertion. Two concurrent
// calls with the same id serialize on the pending record: exactly one wins,
// the other observes the winner's result. The journal append runs with no
// store lock held; the reservation is rolled back if the append fails, waking
// any waiters so one of them can retry the insertion.
func (s *Store) Ingest(ctx context.Context, msg *domain.Message) (*domain.Message, bool, error) {
	if err := validate(msg); err != nil {
		return nil, false, err
	}

	for {
		s.mu.Lock()
		if rec, ok := s.index[msg.ID]; ok {
			s.mu.Unlock()
			select {
			case <-rec.ready:
			case <-ctx.Done():
				return nil, false, ctx.Err()
			}
			if rec.err != nil {
				// Prior attempt failed and was rolled back; contend again.
				continue
			}
			return snapshot(rec), false, nil
		}

		// Reserve the id and assign the monotonic persistence timestamp.
		s.lastTS = maxInt64(time.Now().UnixNano(), s.lastTS+1)
		s.seq++
		stored := buildStored(msg, s.lastTS, s.seq)
		rec := &record{ready: make(chan struct{})}
		s.index[msg.ID] = rec
		s.mu.Unlock()

		if err := s.journal.Append(ctx, stored); err != nil {
			s.mu.Lock()
			delete(s.index, msg.ID)
			s.mu.Unlock()
			rec.err = err
			close(rec.ready)
			return nil, false, fmt.Errorf("%w: %v", domain.ErrStorage, err)
		}

		s.mu.Lock()
		rec.msg = stored
		s.insertLocked(rec)
		s.mu.Unlock()
		close(rec.ready)
		return snapshot(rec), true, nil
	}
}

// FindByID returns a snapshot of the stored message, or ErrNotFound.
func (s *Store) FindByID(id string) (*domain.Message, error) {
	rec, err := s.committed(id)
	if err != nil {
		return nil, err
	}
	return snapshot(rec), nil
}

// UpdateReactions atomically applies fn to the message's reaction map and
// persists the result. fn receives a clone and returns the next map plus
// whether anything changed. The whole read-modify-persist-commit sequence is
// serialized per message; toggles on different messages never contend.
func (s *Store) UpdateReactions(ctx context.Context, id string, fn func(domain.ReactionMap) domain.ReactionMap) (domain.ReactionMap, error) {
	rec, err := s.committed(id)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	next := fn(rec.msg.Reactions.Clone())
	updated := *rec.msg
	updated.Reactions = next
	if err := s.journal.SaveReactions(ctx, &updated); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	rec.msg = &updated
	return next.Clone(), nil
}

// Latest returns the newest limit messages, oldest-first.
func (s *Store) Latest(limit int) []*domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := len(s.logRecs) - limit
	if start < 0 {
		start = 0
	}
	return snapshotAll(s.logRecs[start:])
}

// Before returns up to limit messages strictly older than cursor, oldest-first.
// An empty result means the log is exhausted before that cursor.
func (s *Store) Before(cursor int64, limit int) []*domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// First record not strictly older than cursor.
	end := sort.Search(len(s.logRecs), func(i int) bool {
		return s.logRecs[i].msg.StoredAt >= cursor
	})
	start := end - limit
	if start < 0 {
		start = 0
	}
	return snapshotAll(s.logRecs[start:end])
}

// Len returns the number of stored messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.logRecs)
}

// insertLocked places a committed record at its sorted position. Commit order
// follows journal-append completion, not timestamp reservation, so a slow
// append for an earlier timestamp can arrive after a later one.
func (s *Store) insertLocked(rec *record) {
	i := sort.Search(len(s.logRecs), func(i int) bool {
		return s.logRecs[i].msg.StoredAt > rec.msg.StoredAt
	})
	s.logRecs = append(s.logRecs, nil)
	copy(s.logRecs[i+1:], s.logRecs[i:])
	s.logRecs[i] = rec
}

func (s *Store) committed(id string) (*record, error) {
	s.mu.RLock()
	rec, ok := s.index[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	<-rec.ready
	if rec.err != nil {
		return nil, domain.ErrNotFound
	}
	return rec, nil
}

func validate(msg *domain.Message) error {
	if strings.TrimSpace(msg.ID) == "" {
		return fmt.Errorf("%w: missing message id", domain.ErrInvalidPayload)
	}
	if strings.TrimSpace(msg.Body) == "" && len(msg.Attachments) == 0 {
		return fmt.Errorf("%w: message needs body text or attachments", domain.ErrInvalidPayload)
	}
	for _, a := range msg.Attachments {
		if strings.TrimSpace(a.URL) == "" {
			return fmt.Errorf("%w: attachment missing url", domain.ErrInvalidPayload)
		}
	}
	return nil
}

func buildStored(msg *domain.Message, ts int64, seq uint64) *domain.Message {
	stored := *msg
	stored.CreatedAt = time.Unix(0, ts).UTC()
	stored.StoredAt = ts
	stored.Seq = seq
	stored.Reactions = domain.ReactionMap{}
	return &stored
}

// snapshot copies the record's message under its lock so callers can marshal
// it without racing reaction commits.
func snapshot(rec *record) *domain.Message {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := *rec.msg
	out.Reactions = rec.msg.Reactions.Clone()
	return &out
}

func snapshotAll(recs []*record) []*domain.Message {
	out := make([]*domain.Message, len(recs))
	for i, rec := range recs {
		out[i] = snapshot(rec)
	}
	return out
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
