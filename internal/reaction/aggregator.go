package reaction

import (
	"context"
	"fmt"
	"strings"

	"github.com/lumenchat/chatd/internal/domain"
	"github.com/lumenchat/chatd/internal/store"
)

// Aggregator mutates per-message reaction state with single-choice toggle
// semantics: a reactor holds at most one active reaction per message, and
// re-sending the same emoji removes it.
type Aggregator struct {
	store *store.Store
}

func NewAggregator(s *store.Store) *Aggregator {
	return &Aggregator{store: s}
}

// Toggle applies one reactor's toggle and returns the message's updated
// reaction map. Unknown message ids return domain.ErrNotFound with no side
// effect; a persistence failure leaves the map exactly as it was.
func (a *Aggregator) Toggle(ctx context.Context, messageID, reactorID, emoji string) (domain.ReactionMap, error) {
	if strings.TrimSpace(emoji) == "" || strings.TrimSpace(reactorID) == "" {
		return nil, fmt.Errorf("%w: emoji and reactor required", domain.ErrInvalidPayload)
	}

	return a.store.UpdateReactions(ctx, messageID, func(m domain.ReactionMap) domain.ReactionMap {
		prev, had := m.Find(reactorID)
		if had {
			m.Remove(prev, reactorID)
			if prev == emoji {
				// Re-click of the active reaction: toggle off.
				return m
			}
		}
		m.Add(emoji, reactorID)
		return m
	})
}
