package domain

import "time"

// Attachment is a reference to an already-uploaded object. The engine never
// touches attachment bytes; it stores the URL the object store handed back.
type Attachment struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// ReplyRef is a snapshot of the quoted message captured at reply time.
// It is a value, not a live reference: later changes to the original
// message do not alter the quote.
type ReplyRef struct {
	MessageID   string `json:"message_id"`
	DisplayName string `json:"display_name"`
	Body        string `json:"body"`
}

// ReactionMap maps an emoji to the connection ids that reacted with it.
type ReactionMap map[string][]string

// Clone returns a deep copy of the map.
func (m ReactionMap) Clone() ReactionMap {
	out := make(ReactionMap, len(m))
	for emoji, reactors := range m {
		out[emoji] = append([]string(nil), reactors...)
	}
	return out
}

// Find returns the emoji whose reactor set contains reactorID. At most one
// emoji can match: a reactor holds a single active reaction per message.
func (m ReactionMap) Find(reactorID string) (string, bool) {
	for emoji, reactors := range m {
		for _, r := range reactors {
			if r == reactorID {
				return emoji, true
			}
		}
	}
	return "", false
}

// Add inserts reactorID into the emoji's reactor set.
func (m ReactionMap) Add(emoji, reactorID string) {
	m[emoji] = append(m[emoji], reactorID)
}

// Remove deletes reactorID from the emoji's reactor set, dropping the
// emoji key entirely once its set is empty.
func (m ReactionMap) Remove(emoji, reactorID string) {
	reactors := m[emoji]
	for i, r := range reactors {
		if r == reactorID {
			m[emoji] = append(reactors[:i], reactors[i+1:]...)
			break
		}
	}
	if len(m[emoji]) == 0 {
		delete(m, emoji)
	}
}

// Message is one chat utterance. ID is client-generated and acts as the
// idempotency key for ingestion. StoredAt is the server-assigned persistence
// timestamp (unix nanoseconds) used as the pagination cursor; it is strictly
// monotonic across the store.
type Message struct {
	ID          string       `json:"id"`
	Body        string       `json:"body,omitempty"`
	ConnID      string       `json:"conn_id"`
	DisplayName string       `json:"display_name"`
	Avatar      string       `json:"avatar,omitempty"`
	ReplyTo     *ReplyRef    `json:"reply_to,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Reactions   ReactionMap  `json:"reactions"`
	CreatedAt   time.Time    `json:"created_at"`
	StoredAt    int64        `json:"stored_at"`
	Seq         uint64       `json:"seq"`
}

// User is one entry of the online roster.
type User struct {
	ConnID      string `json:"conn_id"`
	DisplayName string `json:"display_name"`
}
