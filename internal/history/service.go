package history

import (
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/lumenchat/chatd/internal/domain"
	"github.com/lumenchat/chatd/internal/store"
)

// Service answers history replay for joining connections and backward
// pagination for scroll-back. Pages for the same cursor requested
// concurrently (a burst of reconnecting clients) are coalesced.
type Service struct {
	store    *store.Store
	pageSize int
	maxLimit int
	sf       singleflight.Group
}

func NewService(s *store.Store, pageSize, maxLimit int) *Service {
	return &Service{store: s, pageSize: pageSize, maxLimit: maxLimit}
}

// Initial returns the most recent window of messages, oldest-first, for a
// connection that just joined.
func (s *Service) Initial() []*domain.Message {
	return s.store.Latest(s.pageSize)
}

// Before returns up to limit messages strictly older than cursor,
// oldest-first. hasMore is false once the page ran short: with no message
// deletion in this model an exhausted log stays exhausted, so callers can
// latch on it and stop paginating.
func (s *Service) Before(cursor int64, limit int) (msgs []*domain.Message, hasMore bool) {
	limit = s.clamp(limit)

	key := fmt.Sprintf("%d:%d", cursor, limit)
	v, _, _ := s.sf.Do(key, func() (interface{}, error) {
		return s.store.Before(cursor, limit), nil
	})
	msgs = v.([]*domain.Message)
	return msgs, len(msgs) == limit
}

func (s *Service) clamp(limit int) int {
	if limit <= 0 {
		return s.pageSize
	}
	if limit > s.maxLimit {
		return s.maxLimit
	}
	return limit
}
