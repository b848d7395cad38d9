// Package projection resolves stored chats and messages into the views
// handed to clients and pushed through fan-out.
// The pure functions never touch storage; Builder loads what they need.
package projection

import (
	"chat-core/domain"
	"chat-core/errors"
	"context"
	"fmt"

	"github.com/samber/lo"
)

// ChatView resolves participants and the last message. last and lastSender are
// required whenever chat.LastMessage is set.
func ChatView(chat domain.Chat, profiles map[string]domain.Profile, last *domain.Message, lastSender *domain.Profile) (domain.ChatView, error) {
	participants := make([]domain.Profile, 0, len(chat.Participants))
	for _, id := range chat.Participants {
		profile, ok := profiles[id]
		if !ok {
			return domain.ChatView{}, fmt.Errorf("participant %s of chat %s: %w", id, chat.ID, errors.ErrUserNotFound)
		}
		participants = append(participants, profile)
	}

	view := domain.ChatView{
		ID:           chat.ID,
		Name:         chat.Name,
		IsGroupChat:  chat.IsGroupChat,
		Participants: participants,
		Admin:        chat.Admin,
		CreatedAt:    chat.CreatedAt,
		UpdatedAt:    chat.UpdatedAt,
	}
	if chat.LastMessage == nil {
		return view, nil
	}
	if last == nil || last.ID != *chat.LastMessage || last.Chat != chat.ID {
		return domain.ChatView{}, fmt.Errorf("last message of chat %s: %w", chat.ID, errors.ErrMessageNotFound)
	}
	if lastSender == nil {
		return domain.ChatView{}, fmt.Errorf("sender of message %s: %w", last.ID, errors.ErrUserNotFound)
	}
	lastView := MessageView(*last, *lastSender)
	view.LastMessage = &lastView
	return view, nil
}

func MessageView(message domain.Message, sender domain.Profile) domain.MessageView {
	return domain.MessageView{
		ID:          message.ID,
		Sender:      sender,
		Chat:        message.Chat,
		Content:     message.Content,
		Attachments: lo.Ternary(message.Attachments == nil, []domain.Attachment{}, message.Attachments),
		CreatedAt:   message.CreatedAt,
	}
}

type userLoader interface {
	GetMany(ctx context.Context, ids []string) (map[string]domain.User, error)
}

type messageLoader interface {
	Get(ctx context.Context, id string) (domain.Message, error)
}

type chatLoader interface {
	Get(ctx context.Context, id string) (domain.Chat, error)
}

// Builder performs the lookups a view needs, the join the store does not do for us.
type Builder struct {
	users    userLoader
	messages messageLoader
	chats    chatLoader
}

func NewBuilder(users userLoader, messages messageLoader, chats chatLoader) *Builder {
	return &Builder{users: users, messages: messages, chats: chats}
}

func (b *Builder) Chat(ctx context.Context, chat domain.Chat) (domain.ChatView, error) {
	views, err := b.Chats(ctx, []domain.Chat{chat})
	if err != nil {
		return domain.ChatView{}, err
	}
	if len(views) == 0 {
		return domain.ChatView{}, errors.ErrChatNotFound
	}
	return views[0], nil
}

// Chats resolves every chat with a single user lookup. Chats are read before
// their last messages, so a message deleted in between makes the chat be
// read again once; a chat deleted in between is left out.
func (b *Builder) Chats(ctx context.Context, chats []domain.Chat) ([]domain.ChatView, error) {
	lasts := make(map[string]domain.Message)
	ids := make([]string, 0)
	current := make([]domain.Chat, 0, len(chats))
	for _, chat := range chats {
		fresh, last, err := b.lastMessage(ctx, chat)
		if errors.Is(err, errors.ErrChatNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		current = append(current, fresh)
		ids = append(ids, fresh.Participants...)
		if last != nil {
			lasts[fresh.ID] = *last
			ids = append(ids, last.Sender)
		}
	}
	profiles, err := b.profiles(ctx, lo.Uniq(ids))
	if err != nil {
		return nil, err
	}

	views := make([]domain.ChatView, 0, len(current))
	for _, chat := range current {
		var last *domain.Message
		var sender *domain.Profile
		if m, ok := lasts[chat.ID]; ok {
			last = &m
			if p, ok := profiles[m.Sender]; ok {
				sender = &p
			}
		}
		view, err := ChatView(chat, profiles, last, sender)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// lastMessage loads the message chat points to. When it is gone the chat is
// read again and its new pointer used instead.
func (b *Builder) lastMessage(ctx context.Context, chat domain.Chat) (domain.Chat, *domain.Message, error) {
	for attempt := 0; ; attempt++ {
		if chat.LastMessage == nil {
			return chat, nil, nil
		}
		last, err := b.messages.Get(ctx, *chat.LastMessage)
		if err == nil {
			return chat, &last, nil
		}
		if !errors.Is(err, errors.ErrMessageNotFound) || attempt > 0 {
			return chat, nil, fmt.Errorf("last message of chat %s: %w", chat.ID, err)
		}
		if chat, err = b.chats.Get(ctx, chat.ID); err != nil {
			return chat, nil, err
		}
	}
}

func (b *Builder) Message(ctx context.Context, message domain.Message) (domain.MessageView, error) {
	views, err := b.Messages(ctx, []domain.Message{message})
	if err != nil {
		return domain.MessageView{}, err
	}
	return views[0], nil
}

func (b *Builder) Messages(ctx context.Context, messages []domain.Message) ([]domain.MessageView, error) {
	senders := lo.Uniq(lo.Map(messages, func(m domain.Message, _ int) string { return m.Sender }))
	profiles, err := b.profiles(ctx, senders)
	if err != nil {
		return nil, err
	}
	views := make([]domain.MessageView, 0, len(messages))
	for _, message := range messages {
		sender, ok := profiles[message.Sender]
		if !ok {
			return nil, fmt.Errorf("sender of message %s: %w", message.ID, errors.ErrUserNotFound)
		}
		views = append(views, MessageView(message, sender))
	}
	return views, nil
}

func (b *Builder) profiles(ctx context.Context, ids []string) (map[string]domain.Profile, error) {
	users, err := b.users.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	return lo.MapValues(users, func(u domain.User, _ string) domain.Profile { return u.Profile() }), nil
}
