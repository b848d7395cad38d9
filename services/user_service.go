package services

import (
	"chat-core/domain"
	"chat-core/repositories"
	"context"

	"github.com/samber/lo"
)

const searchLimit = 50

type IUserService interface {
	SearchAvailableUsers(ctx context.Context, actor, query string) ([]domain.Profile, error)
	Profile(ctx context.Context, userID string) (domain.Profile, error)
}

type UserService struct {
	users repositories.IUserRepository
	index repositories.IUserIndex
}

func NewUserService(users repositories.IUserRepository, index repositories.IUserIndex) *UserService {
	return &UserService{users: users, index: index}
}

// SearchAvailableUsers lists the users actor could start a chat with, ordered
// by username. An empty query lists everybody but actor.
func (s *UserService) SearchAvailableUsers(ctx context.Context, actor, query string) ([]domain.Profile, error) {
	ids, err := s.index.Search(ctx, query, actor, searchLimit)
	if err != nil {
		return nil, err
	}
	users, err := s.users.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	return lo.FilterMap(ids, func(id string, _ int) (domain.Profile, bool) {
		user, ok := users[id]
		return user.Profile(), ok
	}), nil
}

func (s *UserService) Profile(ctx context.Context, userID string) (domain.Profile, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return domain.Profile{}, err
	}
	return user.Profile(), nil
}
