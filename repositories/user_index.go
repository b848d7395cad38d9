//go:generate go run go.uber.org/mock/mockgen -source=user_index.go -destination=../mocks/mock_user_index.go -package=mocks
package repositories

import (
	"chat-core/domain"
	"context"
	"fmt"
	"log/slog"

	"github.com/blugelabs/bluge"
)

const (
	usernameField = "username"
	emailField    = "email"
	idField       = "_id"
)

type IUserIndex interface {
	Index(user domain.User) error
	Search(ctx context.Context, query string, exclude string, limit int) ([]string, error)
}

// UserIndex keeps a bluge index of usernames and emails for user lookup.
// Badger stays the source of truth; the index only returns ids.
type UserIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewUserIndex(writer *bluge.Writer, log *slog.Logger) *UserIndex {
	return &UserIndex{writer: writer, log: log}
}

func (i *UserIndex) Index(user domain.User) error {
	doc := bluge.NewDocument(user.ID).
		AddField(bluge.NewKeywordField(usernameField, normalize(user.Username)).StoreValue().Sortable()).
		AddField(bluge.NewKeywordField(emailField, normalize(user.Email)))
	if err := i.writer.Update(doc.ID(), doc); err != nil {
		return fmt.Errorf("index user %s: %w", user.ID, err)
	}
	return nil
}

// Search returns the ids of users whose username or email starts with query,
// ordered by username. An empty query matches everybody.
func (i *UserIndex) Search(ctx context.Context, query string, exclude string, limit int) ([]string, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			i.log.Warn("Unable to close index reader", "error", err)
		}
	}()

	var q bluge.Query = bluge.NewMatchAllQuery()
	if term := normalize(query); term != "" {
		q = bluge.NewBooleanQuery().
			AddShould(
				bluge.NewPrefixQuery(term).SetField(usernameField),
				bluge.NewPrefixQuery(term).SetField(emailField),
			).
			SetMinShould(1)
	}
	// one extra hit in case the excluded user is part of the page
	request := bluge.NewTopNSearch(limit+1, q).SortBy([]string{usernameField})

	matches, err := reader.Search(ctx, request)
	if err != nil {
		return nil, err
	}
	var ids []string
	match, err := matches.Next()
	for err == nil && match != nil {
		var id string
		if err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field == idField {
				id = string(value)
				return false
			}
			return true
		}); err != nil {
			return nil, err
		}
		if id != "" && id != exclude && len(ids) < limit {
			ids = append(ids, id)
		}
		match, err = matches.Next()
	}
	if err != nil {
		return nil, err
	}
	return ids, nil
}
