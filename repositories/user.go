//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"chat-core/domain"
	"chat-core/errors"
	"context"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

type IUserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetMany(ctx context.Context, ids []string) (map[string]domain.User, error)
}

type UserRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewUserRepository(db *badger.DB, log *slog.Logger) *UserRepository {
	return &UserRepository{db: db, log: log}
}

// Create persists the user along with its email and username indexes.
// Both are unique, compared case-insensitively.
func (u *UserRepository) Create(ctx context.Context, user domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	email := normalize(user.Email)
	username := normalize(user.Username)
	return update(u.db, func(txn *badger.Txn) error {
		for _, key := range [][]byte{userEmailKey(email), userNameKey(username)} {
			_, err := txn.Get(key)
			if err == nil {
				return errors.ErrUserAlreadyExists
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		if err := setJSON(txn, userKey(user.ID), user); err != nil {
			return err
		}
		if err := txn.Set(userEmailKey(email), []byte(user.ID)); err != nil {
			return err
		}
		return txn.Set(userNameKey(username), []byte(user.ID))
	})
}

func (u *UserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	var user domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, userKey(id), &user)
	})
	if err != nil {
		return domain.User{}, notFound(err, errors.ErrUserNotFound)
	}
	return user, nil
}

func (u *UserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	var user domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		id, err := getString(txn, userEmailKey(normalize(email)))
		if err != nil {
			return err
		}
		return getJSON(txn, userKey(id), &user)
	})
	if err != nil {
		return domain.User{}, notFound(err, errors.ErrUserNotFound)
	}
	return user, nil
}

// GetMany resolves every id it can; unknown ids are simply absent from the result.
func (u *UserRepository) GetMany(ctx context.Context, ids []string) (map[string]domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	users := make(map[string]domain.User, len(ids))
	err := u.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			if _, ok := users[id]; ok {
				continue
			}
			var user domain.User
			err := getJSON(txn, userKey(id), &user)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			users[id] = user
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
