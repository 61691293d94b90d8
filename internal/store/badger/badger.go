// Package badger implements the chat store on top of an embedded BadgerDB.
//
// Keys are laid out so that prefix scans return entities in creation order:
//
//	user:{id}                          -> JSON user record
//	user_name:{name}                   -> id of the earliest user with that name
//	user_seq:{created_nanos}:{id}      -> id
//	msg:{id}                           -> JSON message record
//	msg_seq:{created_nanos}:{id}       -> id
//
// Timestamps are zero padded to 19 digits so lexicographic order matches
// chronological order.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/NicolasFrouin/chat/internal/store"
	"github.com/NicolasFrouin/chat/internal/utils"
)

const (
	prefixUser     = "user:"
	prefixUserName = "user_name:"
	prefixUserSeq  = "user_seq:"
	prefixMsg      = "msg:"
	prefixMsgSeq   = "msg_seq:"
)

// BadgerStore implements store.Store for BadgerDB.
type BadgerStore struct {
	db  *badger.DB
	now func() time.Time

	mu   sync.Mutex
	last time.Time
}

type userRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	Image     string    `json:"image,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type messageRecord struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	AuthorID  string    `json:"author_id"`
	Modified  bool      `json:"modified"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New opens a BadgerDB store in dir. An empty dir opens an in-memory database.
func New(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	return &BadgerStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new user from the given profile.
func (s *BadgerStore) CreateUser(_ context.Context, profile store.Profile) (*store.User, error) {
	rec := userRecord{
		ID:        utils.NewID(),
		Name:      profile.Name,
		Color:     profile.Color,
		Image:     profile.Image,
		CreatedAt: s.tick(),
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		if err := putJSON(txn, prefixUser+rec.ID, rec); err != nil {
			return err
		}
		if err := txn.Set(seqKey(prefixUserSeq, rec.CreatedAt, rec.ID), []byte(rec.ID)); err != nil {
			return err
		}
		// The name index keeps the earliest user with a given name.
		nameKey := []byte(prefixUserName + rec.Name)
		if _, err := txn.Get(nameKey); errors.Is(err, badger.ErrKeyNotFound) {
			return txn.Set(nameKey, []byte(rec.ID))
		} else if err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return rec.toUser(), nil
}

// GetUserByID retrieves a user by ID.
func (s *BadgerStore) GetUserByID(_ context.Context, id string) (*store.User, error) {
	var rec userRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, prefixUser+id, &rec)
	})
	if err != nil {
		return nil, wrapNotFound("user", err)
	}
	return rec.toUser(), nil
}

// GetUserByName retrieves the earliest created user with the given name.
func (s *BadgerStore) GetUserByName(_ context.Context, name string) (*store.User, error) {
	var rec userRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixUserName + name))
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return getJSON(txn, prefixUser+string(id), &rec)
	})
	if err != nil {
		return nil, wrapNotFound("user", err)
	}
	return rec.toUser(), nil
}

// ListUsers lists all users ordered by creation time.
func (s *BadgerStore) ListUsers(_ context.Context) ([]*store.User, error) {
	users := make([]*store.User, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		return scanSeq(txn, prefixUserSeq, func(id string) error {
			var rec userRecord
			if err := getJSON(txn, prefixUser+id, &rec); err != nil {
				return err
			}
			users = append(users, rec.toUser())
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// UpdateUserColor changes the color of an existing user.
func (s *BadgerStore) UpdateUserColor(_ context.Context, id, color string) (*store.User, error) {
	var rec userRecord
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := getJSON(txn, prefixUser+id, &rec); err != nil {
			return err
		}
		rec.Color = color
		return putJSON(txn, prefixUser+id, rec)
	})
	if err != nil {
		return nil, wrapNotFound("user", err)
	}
	return rec.toUser(), nil
}

// ==== MessageStore implementation ====

// CreateMessage persists a message written by authorID.
func (s *BadgerStore) CreateMessage(_ context.Context, text, authorID string) (*store.Message, error) {
	now := s.tick()
	rec := messageRecord{
		ID:        utils.NewID(),
		Text:      text,
		AuthorID:  authorID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var author userRecord
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := getJSON(txn, prefixUser+authorID, &author); err != nil {
			return err
		}
		if err := putJSON(txn, prefixMsg+rec.ID, rec); err != nil {
			return err
		}
		return txn.Set(seqKey(prefixMsgSeq, rec.CreatedAt, rec.ID), []byte(rec.ID))
	})
	if err != nil {
		return nil, wrapNotFound("author", err)
	}

	return rec.toMessage(author), nil
}

// ListMessages returns all messages, oldest first.
func (s *BadgerStore) ListMessages(_ context.Context) ([]*store.Message, error) {
	messages := make([]*store.Message, 0)
	authors := make(map[string]userRecord)
	err := s.db.View(func(txn *badger.Txn) error {
		return scanSeq(txn, prefixMsgSeq, func(id string) error {
			var rec messageRecord
			if err := getJSON(txn, prefixMsg+id, &rec); err != nil {
				return err
			}
			author, ok := authors[rec.AuthorID]
			if !ok {
				if err := getJSON(txn, prefixUser+rec.AuthorID, &author); err != nil {
					return err
				}
				authors[rec.AuthorID] = author
			}
			messages = append(messages, rec.toMessage(author))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// GetMessageByID retrieves a message by ID.
func (s *BadgerStore) GetMessageByID(_ context.Context, id string) (*store.Message, error) {
	var (
		rec    messageRecord
		author userRecord
	)
	err := s.db.View(func(txn *badger.Txn) error {
		if err := getJSON(txn, prefixMsg+id, &rec); err != nil {
			return err
		}
		return getJSON(txn, prefixUser+rec.AuthorID, &author)
	})
	if err != nil {
		return nil, wrapNotFound("message", err)
	}
	return rec.toMessage(author), nil
}

// UpdateMessageText replaces the text of a message and marks it modified.
func (s *BadgerStore) UpdateMessageText(_ context.Context, id, text string) (*store.Message, error) {
	var (
		rec    messageRecord
		author userRecord
	)
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := getJSON(txn, prefixMsg+id, &rec); err != nil {
			return err
		}
		rec.Text = text
		rec.Modified = true
		rec.UpdatedAt = s.now()
		if err := putJSON(txn, prefixMsg+id, rec); err != nil {
			return err
		}
		return getJSON(txn, prefixUser+rec.AuthorID, &author)
	})
	if err != nil {
		return nil, wrapNotFound("message", err)
	}
	return rec.toMessage(author), nil
}

// DeleteMessage removes a message.
func (s *BadgerStore) DeleteMessage(_ context.Context, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		var rec messageRecord
		if err := getJSON(txn, prefixMsg+id, &rec); err != nil {
			return err
		}
		if err := txn.Delete(seqKey(prefixMsgSeq, rec.CreatedAt, rec.ID)); err != nil {
			return err
		}
		return txn.Delete([]byte(prefixMsg + id))
	})
	return wrapNotFound("message", err)
}

// tick returns a strictly increasing timestamp so sequence keys never collide
// on coarse clocks.
func (s *BadgerStore) tick() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !now.After(s.last) {
		now = s.last.Add(time.Nanosecond)
	}
	s.last = now
	return now
}

func (r userRecord) toUser() *store.User {
	return &store.User{
		ID:        r.ID,
		Name:      r.Name,
		Color:     r.Color,
		Image:     r.Image,
		CreatedAt: r.CreatedAt,
	}
}

func (r messageRecord) toMessage(author userRecord) *store.Message {
	return &store.Message{
		ID:        r.ID,
		Text:      r.Text,
		AuthorID:  r.AuthorID,
		Author:    *author.toUser(),
		Modified:  r.Modified,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func seqKey(prefix string, at time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s", prefix, at.UnixNano(), id))
}

// scanSeq walks a sequence index in ascending key order.
func scanSeq(txn *badger.Txn, prefix string, fn func(id string) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		id, err := it.Item().ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := fn(string(id)); err != nil {
			return err
		}
	}
	return nil
}

func putJSON(txn *badger.Txn, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return txn.Set([]byte(key), data)
}

func getJSON(txn *badger.Txn, key string, v any) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func wrapNotFound(entity string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%s: %w", entity, store.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", entity, err)
}

var _ store.Store = (*BadgerStore)(nil)
