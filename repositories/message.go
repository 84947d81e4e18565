package repositories

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"market-chat/contract"
	"market-chat/domain"
	"market-chat/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

var _ contract.IMessageStore = (*MessageRepository)(nil)

// sequenceBandwidth is the number of ids leased from badger at once.
// Unused ids are lost on crash, which leaves gaps but never reorders.
const sequenceBandwidth = 100

type MessageRepository struct {
	mu               sync.Mutex
	db               *badger.DB
	seq              *badger.Sequence
	log              *slog.Logger
	now              func() time.Time
	lastAt           time.Time
	maxContentLength int
}

// NewMessageRepository opens the message sequence and restores the last assigned timestamp,
// so that CreatedAt stays monotonic across restarts.
func NewMessageRepository(db *badger.DB, log *slog.Logger, maxContentLength int) (*MessageRepository, error) {
	seq, err := db.GetSequence([]byte(sequenceKey), sequenceBandwidth)
	if err != nil {
		return nil, errors.StoreUnavailable(err)
	}
	m := &MessageRepository{
		db:               db,
		seq:              seq,
		log:              log,
		now:              time.Now,
		maxContentLength: maxContentLength,
	}
	if m.lastAt, err = m.loadLastAt(); err != nil {
		_ = seq.Release()
		return nil, errors.StoreUnavailable(err)
	}
	return m, nil
}

// WithClock replaces the server clock, mostly for tests.
func (m *MessageRepository) WithClock(now func() time.Time) *MessageRepository {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

// Close returns the leased ids to badger. The database itself is owned by the caller.
func (m *MessageRepository) Close() error {
	return m.seq.Release()
}

// Append validates and persists a message.
// The mutex is the single serialization point for Seq and CreatedAt: both are assigned
// and written in the same critical section, so concurrent appends on the same pair
// always land in history in assignment order.
func (m *MessageRepository) Append(sender, receiver domain.UserID, content string) (domain.Message, error) {
	cmd := domain.SendCommand{Sender: sender, Receiver: receiver, Content: content}
	if err := cmd.Validate(m.maxContentLength); err != nil {
		return domain.Message{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := m.seq.Next()
	if err != nil {
		return domain.Message{}, errors.StoreUnavailable(err)
	}
	at := m.now().UTC()
	if at.Before(m.lastAt) {
		at = m.lastAt
	}
	message := domain.Message{
		ID:        uuid.New(),
		Seq:       next + 1,
		Sender:    sender,
		Receiver:  receiver,
		Content:   content,
		CreatedAt: at,
	}
	value, err := json.Marshal(message)
	if err != nil {
		return domain.Message{}, fmt.Errorf("encode message: %w", err)
	}

	key := messageKey(sender, receiver, message.Seq)
	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, value); err != nil {
			return err
		}
		if err := txn.Set(userIndexKey(sender, message.Seq), key); err != nil {
			return err
		}
		if err := txn.Set(userIndexKey(receiver, message.Seq), key); err != nil {
			return err
		}
		return txn.Set([]byte(lastAtKey), encodeNano(at.UnixNano()))
	})
	if err != nil {
		m.log.Error("Failed to persist message", "sender", sender, "receiver", receiver, "error", err)
		return domain.Message{}, errors.StoreUnavailable(err)
	}
	m.lastAt = at
	return message, nil
}

// History returns every message exchanged between userA and userB, oldest first.
// Keys of a pair share a prefix and end with the zero padded Seq, so the prefix scan
// already yields (CreatedAt, Seq) order.
func (m *MessageRepository) History(userA, userB domain.UserID) ([]domain.Message, error) {
	messages := make([]domain.Message, 0)
	prefix := pairPrefix(userA, userB)
	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				message, err := decodeMessage(val)
				if err != nil {
					return err
				}
				messages = append(messages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.StoreUnavailable(err)
	}
	return messages, nil
}

// AllInvolving returns every message sent or received by user, in Seq order.
func (m *MessageRepository) AllInvolving(user domain.UserID) ([]domain.Message, error) {
	messages, err := ReadMessages(m.db, user)
	if err != nil {
		return nil, errors.StoreUnavailable(err)
	}
	return messages, nil
}

// ReadMessages reads messages without taking the sequence lease, so it works on a read-only database.
// An empty user returns every stored message, grouped by pair.
func ReadMessages(db *badger.DB, user domain.UserID) ([]domain.Message, error) {
	messages := make([]domain.Message, 0)
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		if user == "" {
			prefix := []byte(messagePrefix)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				if err := it.Item().Value(func(val []byte) error {
					message, err := decodeMessage(val)
					if err != nil {
						return err
					}
					messages = append(messages, message)
					return nil
				}); err != nil {
					return err
				}
			}
			return nil
		}

		prefix := userIndexPrefixFor(user)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			item, err := txn.Get(key)
			if err != nil {
				return fmt.Errorf("dangling index %s: %w", it.Item().Key(), err)
			}
			err = item.Value(func(val []byte) error {
				message, err := decodeMessage(val)
				if err != nil {
					return err
				}
				messages = append(messages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// Ping performs a read transaction, used by the health probe.
func (m *MessageRepository) Ping() error {
	err := m.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(lastAtKey))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return errors.StoreUnavailable(err)
	}
	return nil
}

func (m *MessageRepository) loadLastAt() (time.Time, error) {
	var lastAt time.Time
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(lastAtKey))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			nano, err := decodeNano(val)
			if err != nil {
				return err
			}
			lastAt = time.Unix(0, nano).UTC()
			return nil
		})
	})
	return lastAt, err
}

func decodeMessage(val []byte) (domain.Message, error) {
	var message domain.Message
	if err := json.Unmarshal(val, &message); err != nil {
		return domain.Message{}, fmt.Errorf("decode message: %w", err)
	}
	return message, nil
}
