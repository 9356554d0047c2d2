package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenchat/chatd/internal/domain"
)

// memJournal records appends in memory so tests can assert durability calls
// and replay behaviour without a real database.
type memJournal struct {
	mu              sync.Mutex
	entries         map[string]*domain.Message
	order           []string
	failOn          string
	failReactionsOn string
}

func newMemJournal() *memJournal {
	return &memJournal{entries: make(map[string]*domain.Message)}
}

func (j *memJournal) Append(_ context.Context, msg *domain.Message) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.failOn == msg.ID {
		return errors.New("disk full")
	}
	cp := *msg
	j.entries[msg.ID] = &cp
	j.order = append(j.order, msg.ID)
	return nil
}

func (j *memJournal) SaveReactions(_ context.Context, msg *domain.Message) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.failReactionsOn == msg.ID {
		return errors.New("disk full")
	}
	cp := *msg
	j.entries[msg.ID] = &cp
	return nil
}

func (j *memJournal) Replay(_ context.Context, fn func(*domain.Message) error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, id := range j.order {
		if err := fn(j.entries[id]); err != nil {
			return err
		}
	}
	return nil
}

func (j *memJournal) Close() error { return nil }

func msgFor(id, body string) *domain.Message {
	return &domain.Message{ID: id, Body: body, ConnID: "conn-a", DisplayName: "alice"}
}

func TestIngest_NewMessage(t *testing.T) {
	s := New(NopJournal{})

	stored, isNew, err := s.Ingest(context.Background(), msgFor("m1", "hi"))
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, "m1", stored.ID)
	assert.NotZero(t, stored.StoredAt)
	assert.NotNil(t, stored.Reactions)
	assert.Equal(t, 1, s.Len())
}

func TestIngest_DuplicateReturnsCanonicalRecord(t *testing.T) {
	s := New(NopJournal{})

	first, isNew, err := s.Ingest(context.Background(), msgFor("m1", "hi"))
	require.NoError(t, err)
	require.True(t, isNew)

	// Retried delivery with a diverging body must not create a second record
	// nor overwrite the original.
	second, isNew, err := s.Ingest(context.Background(), msgFor("m1", "hi (retry)"))
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, first.StoredAt, second.StoredAt)
	assert.Equal(t, 1, s.Len())
}

func TestIngest_RejectsEmptyPayload(t *testing.T) {
	s := New(NopJournal{})

	_, _, err := s.Ingest(context.Background(), msgFor("m1", "   "))
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)

	_, _, err = s.Ingest(context.Background(), msgFor("", "hi"))
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)

	// Attachments alone are a valid payload.
	msg := msgFor("m2", "")
	msg.Attachments = []domain.Attachment{{URL: "https://files.example/a.png"}}
	_, isNew, err := s.Ingest(context.Background(), msg)
	require.NoError(t, err)
	assert.True(t, isNew)
}

func TestIngest_ConcurrentSameID(t *testing.T) {
	s := New(NopJournal{})

	const workers = 32
	var wg sync.WaitGroup
	results := make([]bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, isNew, err := s.Ingest(context.Background(), msgFor("m1", "hi"))
			require.NoError(t, err)
			results[i] = isNew
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, isNew := range results {
		if isNew {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one insertion must win")
	assert.Equal(t, 1, s.Len())
}

func TestIngest_StorageFailureLeavesNoRecord(t *testing.T) {
	j := newMemJournal()
	j.failOn = "m1"
	s := New(j)

	_, _, err := s.Ingest(context.Background(), msgFor("m1", "hi"))
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.Equal(t, 0, s.Len())

	_, err = s.FindByID("m1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// The id is free again once the journal recovers.
	j.failOn = ""
	_, isNew, err := s.Ingest(context.Background(), msgFor("m1", "hi"))
	require.NoError(t, err)
	assert.True(t, isNew)
}

// gatedJournal stalls the append for one chosen id so a later-timestamped
// message can finish committing first.
type gatedJournal struct {
	NopJournal
	blockID string
	entered chan struct{}
	release chan struct{}
}

func (j *gatedJournal) Append(_ context.Context, msg *domain.Message) error {
	if msg.ID == j.blockID {
		close(j.entered)
		<-j.release
	}
	return nil
}

func TestIngest_OutOfOrderCommitKeepsLogSorted(t *testing.T) {
	j := &gatedJournal{
		blockID: "a",
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	s := New(j)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _, err := s.Ingest(context.Background(), msgFor("a", "first reserved"))
		assert.NoError(t, err)
	}()

	// "a" holds the earlier timestamp and is stuck in its journal append;
	// "b" reserves a later timestamp and commits first.
	<-j.entered
	_, _, err := s.Ingest(context.Background(), msgFor("b", "second reserved"))
	require.NoError(t, err)

	close(j.release)
	<-done

	latest := s.Latest(2)
	require.Len(t, latest, 2)
	assert.Equal(t, "a", latest[0].ID, "log must stay ordered by timestamp, not commit order")
	assert.Equal(t, "b", latest[1].ID)
	assert.Less(t, latest[0].StoredAt, latest[1].StoredAt)

	page := s.Before(latest[1].StoredAt, 10)
	require.Len(t, page, 1)
	assert.Equal(t, "a", page[0].ID)
}

func TestIngest_MonotonicTimestamps(t *testing.T) {
	s := New(NopJournal{})

	var last int64
	for i := 0; i < 100; i++ {
		stored, _, err := s.Ingest(context.Background(), msgFor(fmt.Sprintf("m%d", i), "hi"))
		require.NoError(t, err)
		assert.Greater(t, stored.StoredAt, last)
		last = stored.StoredAt
	}
}

func TestFindByID(t *testing.T) {
	s := New(NopJournal{})

	_, err := s.FindByID("nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	stored, _, err := s.Ingest(context.Background(), msgFor("m1", "hi"))
	require.NoError(t, err)

	found, err := s.FindByID("m1")
	require.NoError(t, err)
	assert.Equal(t, stored.StoredAt, found.StoredAt)
}

func TestLatestAndBefore(t *testing.T) {
	s := New(NopJournal{})

	var all []*domain.Message
	for i := 0; i < 25; i++ {
		stored, _, err := s.Ingest(context.Background(), msgFor(fmt.Sprintf("m%d", i), "hi"))
		require.NoError(t, err)
		all = append(all, stored)
	}

	latest := s.Latest(10)
	require.Len(t, latest, 10)
	assert.Equal(t, all[15].ID, latest[0].ID, "oldest-first within the window")
	assert.Equal(t, all[24].ID, latest[9].ID)

	page := s.Before(latest[0].StoredAt, 10)
	require.Len(t, page, 10)
	assert.Equal(t, all[5].ID, page[0].ID)
	assert.Equal(t, all[14].ID, page[9].ID)

	// Short page at the head of the log.
	page = s.Before(page[0].StoredAt, 10)
	require.Len(t, page, 5)
	assert.Equal(t, all[0].ID, page[0].ID)

	// Exhausted.
	assert.Empty(t, s.Before(page[0].StoredAt, 10))
}

func TestBefore_CoversFullLogWithoutGapsOrDuplicates(t *testing.T) {
	s := New(NopJournal{})

	const total = 57
	for i := 0; i < total; i++ {
		_, _, err := s.Ingest(context.Background(), msgFor(fmt.Sprintf("m%d", i), "hi"))
		require.NoError(t, err)
	}

	seen := make(map[string]int)
	window := s.Latest(10)
	for _, m := range window {
		seen[m.ID]++
	}
	cursor := window[0].StoredAt
	for {
		page := s.Before(cursor, 10)
		if len(page) == 0 {
			break
		}
		for _, m := range page {
			seen[m.ID]++
		}
		cursor = page[0].StoredAt
	}

	require.Len(t, seen, total)
	for id, n := range seen {
		assert.Equal(t, 1, n, "message %s paged more than once", id)
	}
}

func TestReplay_RebuildsLog(t *testing.T) {
	j := newMemJournal()
	s := New(j)
	for i := 0; i < 5; i++ {
		_, _, err := s.Ingest(context.Background(), msgFor(fmt.Sprintf("m%d", i), "hi"))
		require.NoError(t, err)
	}
	_, err := s.UpdateReactions(context.Background(), "m2", func(m domain.ReactionMap) domain.ReactionMap {
		m.Add("🔥", "conn-b")
		return m
	})
	require.NoError(t, err)

	restarted := New(j)
	require.NoError(t, restarted.Replay(context.Background()))
	assert.Equal(t, 5, restarted.Len())

	m2, err := restarted.FindByID("m2")
	require.NoError(t, err)
	assert.Equal(t, domain.ReactionMap{"🔥": {"conn-b"}}, m2.Reactions)

	latest := restarted.Latest(5)
	for i, m := range latest {
		assert.Equal(t, fmt.Sprintf("m%d", i), m.ID)
	}
}

func TestUpdateReactions_StorageFailureLeavesStateUntouched(t *testing.T) {
	j := newMemJournal()
	s := New(j)
	_, _, err := s.Ingest(context.Background(), msgFor("m1", "hi"))
	require.NoError(t, err)
	_, err = s.UpdateReactions(context.Background(), "m1", func(m domain.ReactionMap) domain.ReactionMap {
		m.Add("💗", "conn-b")
		return m
	})
	require.NoError(t, err)

	j.mu.Lock()
	j.failReactionsOn = "m1"
	j.mu.Unlock()

	_, err = s.UpdateReactions(context.Background(), "m1", func(m domain.ReactionMap) domain.ReactionMap {
		m.Add("🔥", "conn-c")
		return m
	})
	assert.ErrorIs(t, err, domain.ErrStorage)

	msg, err := s.FindByID("m1")
	require.NoError(t, err)
	assert.Equal(t, domain.ReactionMap{"💗": {"conn-b"}}, msg.Reactions,
		"a failed persist must not leak into the in-memory map")
}

func TestUpdateReactions_NotFound(t *testing.T) {
	s := New(NopJournal{})
	_, err := s.UpdateReactions(context.Background(), "ghost", func(m domain.ReactionMap) domain.ReactionMap {
		return m
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSnapshotsAreIsolated(t *testing.T) {
	s := New(NopJournal{})
	stored, _, err := s.Ingest(context.Background(), msgFor("m1", "hi"))
	require.NoError(t, err)

	// Mutating a returned snapshot must not leak into the store.
	stored.Reactions.Add("💗", "conn-x")

	fresh, err := s.FindByID("m1")
	require.NoError(t, err)
	assert.Empty(t, fresh.Reactions)
}
