package repositories

import (
	"bytes"
	"chat-core/domain"
	"chat-core/errors"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type IMessageRepository interface {
	Append(ctx context.Context, message domain.Message, guard func(chat domain.Chat) error) (domain.Chat, error)
	Get(ctx context.Context, id string) (domain.Message, error)
	ListByChat(ctx context.Context, chatID string) ([]domain.Message, error)
	Remove(ctx context.Context, id string, guard func(chat domain.Chat, message domain.Message) error) (domain.Message, domain.Chat, error)
	DeleteByChat(ctx context.Context, chatID string) ([]domain.Message, error)
}

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
	now func() time.Time
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// messageKey is formatted as "msg:{chat_id}:{timestamp_padded}:{message_id}" so that
// a prefix scan returns a chat's messages in creation order, the id breaking ties
// between messages created at the same nanosecond.
func messageKey(message domain.Message) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s",
		message.Chat,
		message.CreatedAt.UnixNano(),
		message.ID,
	))
}

// Append stores the message and moves the owning chat's LastMessage pointer in
// the same transaction. guard sees the chat as of that transaction.
// The pointer only moves forward: a message older than the current last one
// (clock skew between concurrent senders) leaves it untouched.
func (m *MessageRepository) Append(ctx context.Context, message domain.Message, guard func(chat domain.Chat) error) (domain.Chat, error) {
	if err := ctx.Err(); err != nil {
		return domain.Chat{}, err
	}
	if !message.HasBody() {
		return domain.Chat{}, errors.ErrEmptyMessage
	}
	var result domain.Chat
	err := update(m.db, func(txn *badger.Txn) error {
		var chat domain.Chat
		if err := getJSON(txn, chatKey(message.Chat), &chat); err != nil {
			return notFound(err, errors.ErrChatNotFound)
		}
		if guard != nil {
			if err := guard(chat); err != nil {
				return err
			}
		}
		key := messageKey(message)
		if err := setJSON(txn, key, message); err != nil {
			return err
		}
		if err := txn.Set(messageIndexKey(message.ID), key); err != nil {
			return err
		}

		moveForward := chat.LastMessage == nil
		if !moveForward {
			current, err := getMessage(txn, *chat.LastMessage)
			switch {
			case errors.Is(err, errors.ErrMessageNotFound):
				moveForward = true
			case err != nil:
				return err
			default:
				moveForward = message.Newer(current)
			}
		}
		if moveForward {
			id := message.ID
			chat.LastMessage = &id
		}
		chat.UpdatedAt = m.now()
		if err := setJSON(txn, chatKey(chat.ID), chat); err != nil {
			return err
		}
		result = chat
		return nil
	})
	if err != nil {
		return domain.Chat{}, err
	}
	return result, nil
}

func (m *MessageRepository) Get(ctx context.Context, id string) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	var message domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		var err error
		message, err = getMessage(txn, id)
		return err
	})
	return message, err
}

// ListByChat returns every message of the chat, most recent first.
func (m *MessageRepository) ListByChat(ctx context.Context, chatID string) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		return reverseScan(txn, chatID, func(key []byte, message domain.Message) bool {
			messages = append(messages, message)
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// Remove deletes a message once guard accepts it. When it was the chat's last
// message, the pointer is repaired to the newest remaining message (or cleared)
// before the transaction commits.
func (m *MessageRepository) Remove(ctx context.Context, id string,
	guard func(chat domain.Chat, message domain.Message) error) (domain.Message, domain.Chat, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, domain.Chat{}, err
	}
	var removed domain.Message
	var result domain.Chat
	err := update(m.db, func(txn *badger.Txn) error {
		message, err := getMessage(txn, id)
		if err != nil {
			return err
		}
		var chat domain.Chat
		if err = getJSON(txn, chatKey(message.Chat), &chat); err != nil {
			return notFound(err, errors.ErrChatNotFound)
		}
		if guard != nil {
			if err = guard(chat, message); err != nil {
				return err
			}
		}
		key := messageKey(message)
		if err = txn.Delete(key); err != nil {
			return err
		}
		if err = txn.Delete(messageIndexKey(id)); err != nil {
			return err
		}

		if chat.LastMessage != nil && *chat.LastMessage == id {
			chat.LastMessage = nil
			err = reverseScan(txn, chat.ID, func(candidate []byte, next domain.Message) bool {
				if bytes.Equal(candidate, key) {
					return true
				}
				nextID := next.ID
				chat.LastMessage = &nextID
				return false
			})
			if err != nil {
				return err
			}
			chat.UpdatedAt = m.now()
			if err = setJSON(txn, chatKey(chat.ID), chat); err != nil {
				return err
			}
		}
		removed, result = message, chat
		return nil
	})
	if err != nil {
		return domain.Message{}, domain.Chat{}, err
	}
	return removed, result, nil
}

// DeleteByChat removes every message of a chat and returns them so that the
// caller can release their attachments. It runs as a write batch because a
// long conversation does not fit in a single transaction.
func (m *MessageRepository) DeleteByChat(ctx context.Context, chatID string) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var messages []domain.Message
	var keys [][]byte
	err := m.db.View(func(txn *badger.Txn) error {
		return reverseScan(txn, chatID, func(key []byte, message domain.Message) bool {
			messages = append(messages, message)
			keys = append(keys, key, messageIndexKey(message.ID))
			return true
		})
	})
	if err != nil {
		return nil, err
	}

	wb := m.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err = wb.Delete(key); err != nil {
			return nil, err
		}
	}
	if err = wb.Flush(); err != nil {
		return nil, err
	}
	m.log.Debug("Chat messages deleted", "chat_id", chatID, "count", len(messages))
	return messages, nil
}

func getMessage(txn *badger.Txn, id string) (domain.Message, error) {
	key, err := getString(txn, messageIndexKey(id))
	if err != nil {
		return domain.Message{}, notFound(err, errors.ErrMessageNotFound)
	}
	var message domain.Message
	if err = getJSON(txn, []byte(key), &message); err != nil {
		return domain.Message{}, notFound(err, errors.ErrMessageNotFound)
	}
	return message, nil
}

// reverseScan walks a chat's messages from the newest one until visit returns false.
func reverseScan(txn *badger.Txn, chatID string, visit func(key []byte, message domain.Message) bool) error {
	prefix := messagePrefix(chatID)
	options := badger.DefaultIteratorOptions
	options.Reverse = true
	options.Prefix = prefix
	it := txn.NewIterator(options)
	defer it.Close()

	// 0xFF sorts after every timestamp digit so the seek lands on the newest key
	seekKey := append(append([]byte(nil), prefix...), 0xFF)
	for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		var message domain.Message
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &message)
		}); err != nil {
			return err
		}
		if !visit(item.KeyCopy(nil), message) {
			return nil
		}
	}
	return nil
}
