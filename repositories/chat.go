package repositories

import (
	"chat-core/domain"
	"chat-core/errors"
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

type IChatRepository interface {
	Create(ctx context.Context, chat domain.Chat) error
	CreateOneOnOne(ctx context.Context, chat domain.Chat) (domain.Chat, bool, error)
	Get(ctx context.Context, id string) (domain.Chat, error)
	Update(ctx context.Context, id string, mutate func(chat *domain.Chat) error) (domain.Chat, error)
	Delete(ctx context.Context, id string, guard func(chat domain.Chat) error) (domain.Chat, error)
	ListByParticipant(ctx context.Context, userID string) ([]domain.Chat, error)
}

type ChatRepository struct {
	db  *badger.DB
	log *slog.Logger
	now func() time.Time
}

func NewChatRepository(db *badger.DB, log *slog.Logger) *ChatRepository {
	return &ChatRepository{db: db, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Create stores a new chat along with its membership index.
func (r *ChatRepository) Create(ctx context.Context, chat domain.Chat) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return update(r.db, func(txn *badger.Txn) error {
		return putChat(txn, chat, nil)
	})
}

// CreateOneOnOne returns the existing non-group chat of the pair when there is one,
// otherwise stores chat. The pair index is read and written in the same transaction,
// so two concurrent creations for the same pair conflict and the loser is replayed
// against the winner's chat. The boolean reports whether chat was created.
func (r *ChatRepository) CreateOneOnOne(ctx context.Context, chat domain.Chat) (domain.Chat, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Chat{}, false, err
	}
	if len(chat.Participants) != 2 || chat.IsGroupChat {
		return domain.Chat{}, false, errors.ErrInvalidRequest
	}
	a, b := domain.PairKey(chat.Participants[0], chat.Participants[1])

	var result domain.Chat
	var created bool
	err := update(r.db, func(txn *badger.Txn) error {
		created = false
		existingID, err := getString(txn, pairKey(a, b))
		switch {
		case err == nil:
			if err = getJSON(txn, chatKey(existingID), &result); err != nil {
				return notFound(err, errors.ErrInconsistentState)
			}
			return nil
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		if err = putChat(txn, chat, nil); err != nil {
			return err
		}
		if err = txn.Set(pairKey(a, b), []byte(chat.ID)); err != nil {
			return err
		}
		result, created = chat, true
		return nil
	})
	if err != nil {
		return domain.Chat{}, false, err
	}
	if created {
		r.log.Debug("One on one chat created", "chat_id", result.ID, "participants", result.Participants)
	}
	return result, created, nil
}

func (r *ChatRepository) Get(ctx context.Context, id string) (domain.Chat, error) {
	if err := ctx.Err(); err != nil {
		return domain.Chat{}, err
	}
	var chat domain.Chat
	err := r.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, chatKey(id), &chat)
	})
	if err != nil {
		return domain.Chat{}, notFound(err, errors.ErrChatNotFound)
	}
	return chat, nil
}

// Update applies mutate to the current version of the chat and commits the result
// in one transaction. An error returned by mutate aborts without writing anything.
// Membership index entries follow the participant set.
func (r *ChatRepository) Update(ctx context.Context, id string, mutate func(chat *domain.Chat) error) (domain.Chat, error) {
	if err := ctx.Err(); err != nil {
		return domain.Chat{}, err
	}
	var updated domain.Chat
	err := update(r.db, func(txn *badger.Txn) error {
		var current domain.Chat
		if err := getJSON(txn, chatKey(id), &current); err != nil {
			return notFound(err, errors.ErrChatNotFound)
		}
		next := current
		next.Participants = append([]string(nil), current.Participants...)
		if err := mutate(&next); err != nil {
			return err
		}
		next.ID = current.ID
		next.UpdatedAt = r.now()
		if err := putChat(txn, next, current.Participants); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return domain.Chat{}, err
	}
	return updated, nil
}

// Delete removes the chat record, its pair entry and its membership index once
// guard accepts the current version. Messages are left to the message repository.
func (r *ChatRepository) Delete(ctx context.Context, id string, guard func(chat domain.Chat) error) (domain.Chat, error) {
	if err := ctx.Err(); err != nil {
		return domain.Chat{}, err
	}
	var deleted domain.Chat
	err := update(r.db, func(txn *badger.Txn) error {
		var current domain.Chat
		if err := getJSON(txn, chatKey(id), &current); err != nil {
			return notFound(err, errors.ErrChatNotFound)
		}
		if guard != nil {
			if err := guard(current); err != nil {
				return err
			}
		}
		for _, participant := range current.Participants {
			if err := txn.Delete(memberKey(participant, id)); err != nil {
				return err
			}
		}
		if !current.IsGroupChat && len(current.Participants) == 2 {
			a, b := domain.PairKey(current.Participants[0], current.Participants[1])
			if err := txn.Delete(pairKey(a, b)); err != nil {
				return err
			}
		}
		if err := txn.Delete(chatKey(id)); err != nil {
			return err
		}
		deleted = current
		return nil
	})
	if err != nil {
		return domain.Chat{}, err
	}
	return deleted, nil
}

// ListByParticipant scans the membership index of a user.
func (r *ChatRepository) ListByParticipant(ctx context.Context, userID string) ([]domain.Chat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var chats []domain.Chat
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := memberPrefix(userID)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		var chatIDs []string
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			chatIDs = append(chatIDs, strings.TrimPrefix(string(it.Item().Key()), string(prefix)))
		}
		it.Close()

		for _, chatID := range chatIDs {
			var chat domain.Chat
			if err := getJSON(txn, chatKey(chatID), &chat); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					r.log.Warn("Dangling membership entry", "user_id", userID, "chat_id", chatID)
					continue
				}
				return err
			}
			chats = append(chats, chat)
		}
		return nil
	})
	return chats, err
}

// putChat writes the chat and reconciles membership entries against previous.
func putChat(txn *badger.Txn, chat domain.Chat, previous []string) error {
	if err := setJSON(txn, chatKey(chat.ID), chat); err != nil {
		return err
	}
	left, joined := lo.Difference(previous, chat.Participants)
	for _, userID := range left {
		if err := txn.Delete(memberKey(userID, chat.ID)); err != nil {
			return err
		}
	}
	for _, userID := range joined {
		if err := txn.Set(memberKey(userID, chat.ID), nil); err != nil {
			return err
		}
	}
	return nil
}
