package reaction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenchat/chatd/internal/domain"
	"github.com/lumenchat/chatd/internal/store"
)

func setup(t *testing.T) (*Aggregator, *store.Store, string) {
	t.Helper()
	s := store.New(store.NopJournal{})
	stored, _, err := s.Ingest(context.Background(), &domain.Message{
		ID: "m1", Body: "hi", ConnID: "conn-a", DisplayName: "alice",
	})
	require.NoError(t, err)
	return NewAggregator(s), s, stored.ID
}

func TestToggle_AddsReaction(t *testing.T) {
	a, _, id := setup(t)

	updated, err := a.Toggle(context.Background(), id, "conn-b", "💗")
	require.NoError(t, err)
	assert.Equal(t, domain.ReactionMap{"💗": {"conn-b"}}, updated)
}

func TestToggle_SameEmojiTogglesOff(t *testing.T) {
	a, _, id := setup(t)
	ctx := context.Background()

	_, err := a.Toggle(ctx, id, "conn-b", "💗")
	require.NoError(t, err)

	updated, err := a.Toggle(ctx, id, "conn-b", "💗")
	require.NoError(t, err)
	assert.Empty(t, updated, "on-then-off must restore the pre-toggle state")
}

func TestToggle_SwitchingEmojiMovesReaction(t *testing.T) {
	a, _, id := setup(t)
	ctx := context.Background()

	_, err := a.Toggle(ctx, id, "conn-b", "💗")
	require.NoError(t, err)

	updated, err := a.Toggle(ctx, id, "conn-b", "🔥")
	require.NoError(t, err)
	assert.Equal(t, domain.ReactionMap{"🔥": {"conn-b"}}, updated,
		"a reactor holds at most one active reaction per message")
}

func TestToggle_EmptyKeyRemoved(t *testing.T) {
	a, _, id := setup(t)
	ctx := context.Background()

	_, err := a.Toggle(ctx, id, "conn-b", "💗")
	require.NoError(t, err)
	_, err = a.Toggle(ctx, id, "conn-c", "💗")
	require.NoError(t, err)

	updated, err := a.Toggle(ctx, id, "conn-b", "💗")
	require.NoError(t, err)
	assert.Equal(t, domain.ReactionMap{"💗": {"conn-c"}}, updated)

	updated, err = a.Toggle(ctx, id, "conn-c", "💗")
	require.NoError(t, err)
	_, exists := updated["💗"]
	assert.False(t, exists, "empty reactor sets must drop the emoji key")
}

// brokenJournal accepts the initial append, then fails every reaction write.
type brokenJournal struct {
	store.NopJournal
}

func (brokenJournal) SaveReactions(context.Context, *domain.Message) error {
	return errors.New("disk full")
}

func TestToggle_PersistFailureLeavesReactionsUnchanged(t *testing.T) {
	s := store.New(brokenJournal{})
	stored, _, err := s.Ingest(context.Background(), &domain.Message{
		ID: "m1", Body: "hi", ConnID: "conn-a", DisplayName: "alice",
	})
	require.NoError(t, err)
	a := NewAggregator(s)

	_, err = a.Toggle(context.Background(), stored.ID, "conn-b", "💗")
	assert.ErrorIs(t, err, domain.ErrStorage)

	msg, err := s.FindByID(stored.ID)
	require.NoError(t, err)
	assert.Empty(t, msg.Reactions, "a failed toggle must leave the state exactly as it was")
}

func TestToggle_UnknownMessage(t *testing.T) {
	a, _, _ := setup(t)

	_, err := a.Toggle(context.Background(), "ghost", "conn-b", "💗")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestToggle_RejectsMissingFields(t *testing.T) {
	a, _, id := setup(t)
	ctx := context.Background()

	_, err := a.Toggle(ctx, id, "conn-b", " ")
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)

	_, err = a.Toggle(ctx, id, "", "💗")
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
}

func TestToggle_ConcurrentReactorsNoLostUpdate(t *testing.T) {
	a, s, id := setup(t)
	ctx := context.Background()

	const reactors = 32
	var wg sync.WaitGroup
	for i := 0; i < reactors; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := a.Toggle(ctx, id, fmt.Sprintf("conn-%d", i), "💗")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	msg, err := s.FindByID(id)
	require.NoError(t, err)
	assert.Len(t, msg.Reactions["💗"], reactors)
}

func TestToggle_SingleChoiceInvariantUnderChurn(t *testing.T) {
	a, s, id := setup(t)
	ctx := context.Background()

	emojis := []string{"💗", "🔥", "👍", "😂"}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reactor := fmt.Sprintf("conn-%d", i)
			for j := 0; j < 20; j++ {
				_, err := a.Toggle(ctx, id, reactor, emojis[(i+j)%len(emojis)])
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	msg, err := s.FindByID(id)
	require.NoError(t, err)
	seen := make(map[string]int)
	for _, reactorIDs := range msg.Reactions {
		for _, r := range reactorIDs {
			seen[r]++
		}
	}
	for reactor, n := range seen {
		assert.Equal(t, 1, n, "reactor %s appears in more than one emoji set", reactor)
	}
}
