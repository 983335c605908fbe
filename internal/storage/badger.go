package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"chatrelay/internal/session"
)

var (
	messagePrefix = []byte("msg:")
	indexPrefix   = []byte("id:")
)

// BadgerStore persists messages in an embedded Badger database. Messages are
// keyed by send time so the newest can be read with a reverse scan; a
// secondary id index supports updates.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a Badger database in dir. An empty dir opens
// an in-memory database.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (b *BadgerStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func messageKey(msg session.Message) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", messagePrefix, msg.Timestamp.UnixNano(), msg.ID))
}

func indexKey(id string) []byte {
	return append(append([]byte(nil), indexPrefix...), id...)
}

func (b *BadgerStore) SaveMessage(_ context.Context, msg session.Message) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(indexKey(msg.ID)); err == nil {
			return ErrMessageExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		key := messageKey(msg)
		if err := txn.Set(key, value); err != nil {
			return err
		}
		return txn.Set(indexKey(msg.ID), key)
	})
}

// UpdateMessage overwrites a stored message. Unknown ids return
// badger.ErrKeyNotFound.
func (b *BadgerStore) UpdateMessage(_ context.Context, msg session.Message) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(indexKey(msg.ID))
		if err != nil {
			return err
		}
		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return txn.Set(key, value)
	})
}

// RecentMessages returns the newest limit messages, oldest first.
func (b *BadgerStore) RecentMessages(_ context.Context, limit int) ([]session.Message, error) {
	var msgs []session.Message
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = messagePrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte(nil), messagePrefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(messagePrefix) && len(msgs) < limit; it.Next() {
			var msg session.Message
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			}); err != nil {
				return err
			}
			msgs = append(msgs, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	reverse(msgs)
	return msgs, nil
}
