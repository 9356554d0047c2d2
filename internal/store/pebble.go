package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/lumenchat/chatd/internal/domain"
	"github.com/lumenchat/chatd/internal/log"
)

var logPrefix = []byte("log:")

// PebbleJournal persists the conversation log in an embedded Pebble database.
// Key format: log:<stored_at padded>-<seq>, so iteration order is storage order.
type PebbleJournal struct {
	db *pebble.DB
}

// OpenPebble opens (or creates) the journal database at path.
func OpenPebble(path string) (*PebbleJournal, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	log.L().Info().Str("path", path).Msg("journal opened")
	return &PebbleJournal{db: db}, nil
}

func logKey(msg *domain.Message) []byte {
	return []byte(fmt.Sprintf("log:%020d-%06d", msg.StoredAt, msg.Seq))
}

func (j *PebbleJournal) Append(ctx context.Context, msg *domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := j.db.Set(logKey(msg), data, pebble.Sync); err != nil {
		return fmt.Errorf("append message %s: %w", msg.ID, err)
	}
	return nil
}

func (j *PebbleJournal) SaveReactions(ctx context.Context, msg *domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := j.db.Set(logKey(msg), data, pebble.Sync); err != nil {
		return fmt.Errorf("save reactions for %s: %w", msg.ID, err)
	}
	return nil
}

func (j *PebbleJournal) Replay(ctx context.Context, fn func(*domain.Message) error) error {
	iter, err := j.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return fmt.Errorf("journal iterator: %w", err)
	}
	defer iter.Close()

	for iter.SeekGE(logPrefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), logPrefix) {
			break
		}
		var msg domain.Message
		if err := json.Unmarshal(iter.Value(), &msg); err != nil {
			return fmt.Errorf("corrupt journal entry %q: %w", iter.Key(), err)
		}
		if err := fn(&msg); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (j *PebbleJournal) Close() error {
	return j.db.Close()
}
