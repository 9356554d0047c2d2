package store

import (
	"context"

	"github.com/lumenchat/chatd/internal/domain"
)

// Journal is the durability collaborator behind the in-memory store. Append
// and SaveReactions must be all-or-nothing: a failed call leaves no record.
type Journal interface {
	// Append durably records a newly ingested message.
	Append(ctx context.Context, msg *domain.Message) error
	// SaveReactions rewrites the stored record with its updated reaction map.
	SaveReactions(ctx context.Context, msg *domain.Message) error
	// Replay streams every recorded message in storage order.
	Replay(ctx context.Context, fn func(*domain.Message) error) error
	Close() error
}

// NopJournal discards writes; used when persistence is disabled and in tests.
type NopJournal struct{}

func (NopJournal) Append(context.Context, *domain.Message) error        { return nil }
func (NopJournal) SaveReactions(context.Context, *domain.Message) error { return nil }
func (NopJournal) Replay(context.Context, func(*domain.Message) error) error {
	return nil
}
func (NopJournal) Close() error { return nil }
