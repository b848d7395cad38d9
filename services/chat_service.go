package services

import (
	"chat-core/auth"
	"chat-core/contract"
	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/errors"
	"chat-core/projection"
	"chat-core/repositories"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
)

type IChatService interface {
	CreateOrGetOneOnOne(ctx context.Context, actor, otherID string) (domain.ChatView, bool, error)
	CreateGroup(ctx context.Context, cmd domain.CreateGroupCommand) (domain.ChatView, error)
	RenameGroup(ctx context.Context, actor, chatID, name string) (domain.ChatView, error)
	GetGroupDetails(ctx context.Context, actor, chatID string) (domain.ChatView, error)
	DeleteGroup(ctx context.Context, actor, chatID string) error
	DeleteOneOnOne(ctx context.Context, actor, chatID string) error
	LeaveGroup(ctx context.Context, actor, chatID string) (domain.ChatView, error)
	AddParticipant(ctx context.Context, actor, chatID, participantID string) (domain.ChatView, error)
	RemoveParticipant(ctx context.Context, actor, chatID, participantID string) (domain.ChatView, error)
	ListChats(ctx context.Context, actor string) ([]domain.ChatView, error)
	NotifyTyping(ctx context.Context, actor, chatID string, kind event.Kind) error
}

// ChatService owns chat lifecycle rules. Every mutation is validated inside
// the store transaction that applies it; events are emitted after commit.
type ChatService struct {
	chats       repositories.IChatRepository
	messages    repositories.IMessageRepository
	users       repositories.IUserRepository
	views       *projection.Builder
	emitter     contract.IEmitter
	attachments contract.IAttachmentStorage
	log         *slog.Logger
	now         func() time.Time
}

func NewChatService(
	chats repositories.IChatRepository,
	messages repositories.IMessageRepository,
	users repositories.IUserRepository,
	emitter contract.IEmitter,
	attachments contract.IAttachmentStorage,
	log *slog.Logger,
) *ChatService {
	return &ChatService{
		chats:       chats,
		messages:    messages,
		users:       users,
		views:       projection.NewBuilder(users, messages, chats),
		emitter:     emitter,
		attachments: attachments,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrGetOneOnOne returns the chat of the pair, creating it when needed.
// The boolean reports a creation; only then is the other participant notified.
func (s *ChatService) CreateOrGetOneOnOne(ctx context.Context, actor, otherID string) (domain.ChatView, bool, error) {
	if _, err := s.users.GetByID(ctx, otherID); err != nil {
		return domain.ChatView{}, false, err
	}
	if otherID == actor {
		return domain.ChatView{}, false, errors.ErrSelfChat
	}

	chat, created, err := s.chats.CreateOneOnOne(ctx, domain.NewOneOnOneChat(actor, otherID, s.now()))
	if err != nil {
		return domain.ChatView{}, false, err
	}
	view, err := s.views.Chat(ctx, chat)
	if err != nil {
		return domain.ChatView{}, false, fmt.Errorf("resolve chat %s: %w", chat.ID, err)
	}
	if created {
		s.emitTo(chat.OtherParticipants(actor), event.NewChat, view)
		s.log.Info("One on one chat created", "chat_id", chat.ID, "actor", actor)
	}
	return view, created, nil
}

func (s *ChatService) CreateGroup(ctx context.Context, cmd domain.CreateGroupCommand) (domain.ChatView, error) {
	cmd.Name = strings.TrimSpace(cmd.Name)
	if cmd.Name == "" {
		return domain.ChatView{}, errors.ErrInvalidChatName
	}
	if err := auth.ValidateStruct(cmd); err != nil {
		return domain.ChatView{}, err
	}
	if lo.Contains(cmd.Participants, cmd.Actor) {
		return domain.ChatView{}, errors.ErrCreatorInParticipants
	}
	members := lo.Uniq(append([]string{cmd.Actor}, cmd.Participants...))
	if len(members) < domain.MinGroupSize {
		return domain.ChatView{}, errors.ErrGroupTooSmall
	}
	found, err := s.users.GetMany(ctx, members)
	if err != nil {
		return domain.ChatView{}, err
	}
	if missing, ok := lo.Find(members, func(id string) bool { _, ok := found[id]; return !ok }); ok {
		return domain.ChatView{}, fmt.Errorf("participant %s: %w", missing, errors.ErrUserNotFound)
	}

	chat := domain.NewGroupChat(cmd.Actor, cmd.Name, members, s.now())
	if err = s.chats.Create(ctx, chat); err != nil {
		return domain.ChatView{}, err
	}
	view, err := s.views.Chat(ctx, chat)
	if err != nil {
		return domain.ChatView{}, fmt.Errorf("resolve chat %s: %w", chat.ID, err)
	}
	s.emitTo(chat.OtherParticipants(cmd.Actor), event.NewChat, view)
	s.log.Info("Group chat created", "chat_id", chat.ID, "actor", cmd.Actor, "members", len(members))
	return view, nil
}

// RenameGroup notifies every participant, the admin included, so that the
// admin's other devices follow.
func (s *ChatService) RenameGroup(ctx context.Context, actor, chatID, name string) (domain.ChatView, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.ChatView{}, errors.ErrInvalidChatName
	}
	chat, err := s.chats.Update(ctx, chatID, func(chat *domain.Chat) error {
		if err := adminOfGroup(*chat, actor); err != nil {
			return err
		}
		chat.Name = name
		return nil
	})
	if err != nil {
		return domain.ChatView{}, groupNotFound(err)
	}
	view, err := s.views.Chat(ctx, chat)
	if err != nil {
		return domain.ChatView{}, fmt.Errorf("resolve chat %s: %w", chat.ID, err)
	}
	s.emitTo(chat.Participants, event.UpdateGroupName, view)
	return view, nil
}

func (s *ChatService) GetGroupDetails(ctx context.Context, actor, chatID string) (domain.ChatView, error) {
	chat, err := s.chats.Get(ctx, chatID)
	if err != nil {
		return domain.ChatView{}, groupNotFound(err)
	}
	if !chat.IsGroupChat {
		return domain.ChatView{}, errors.ErrGroupChatNotFound
	}
	if !chat.HasParticipant(actor) {
		return domain.ChatView{}, errors.ErrNotParticipant
	}
	return s.views.Chat(ctx, chat)
}

func (s *ChatService) DeleteGroup(ctx context.Context, actor, chatID string) error {
	err := s.deleteChat(ctx, actor, chatID, func(chat domain.Chat) error {
		return adminOfGroup(chat, actor)
	})
	return groupNotFound(err)
}

func (s *ChatService) DeleteOneOnOne(ctx context.Context, actor, chatID string) error {
	return s.deleteChat(ctx, actor, chatID, func(chat domain.Chat) error {
		if chat.IsGroupChat {
			return errors.ErrChatNotFound
		}
		if !chat.HasParticipant(actor) {
			return errors.ErrNotParticipant
		}
		return nil
	})
}

// deleteChat removes the chat once guard accepts it, then its messages and
// their attachments. The view sent to the others is built beforehand since
// nothing is left to resolve afterwards.
func (s *ChatService) deleteChat(ctx context.Context, actor, chatID string, guard func(domain.Chat) error) error {
	current, err := s.chats.Get(ctx, chatID)
	if err != nil {
		return err
	}
	if err = guard(current); err != nil {
		return err
	}
	view, err := s.views.Chat(ctx, current)
	if err != nil {
		return fmt.Errorf("resolve chat %s: %w", chatID, err)
	}

	deleted, err := s.chats.Delete(ctx, chatID, guard)
	if err != nil {
		return err
	}
	if err = s.cascade(ctx, chatID); err != nil {
		return err
	}
	s.emitTo(deleted.OtherParticipants(actor), event.LeaveChat, view)
	s.log.Info("Chat deleted", "chat_id", chatID, "actor", actor, "group", deleted.IsGroupChat)
	return nil
}

func (s *ChatService) cascade(ctx context.Context, chatID string) error {
	messages, err := s.messages.DeleteByChat(ctx, chatID)
	if err != nil {
		s.log.Error("Chat deleted but its messages were not", "chat_id", chatID, "error", err)
		return err
	}
	for _, message := range messages {
		releaseAttachments(ctx, s.attachments, s.log, message.Attachments)
	}
	return nil
}

// LeaveGroup refuses the admin: the admin must stay a participant, deleting
// the group is the way out.
func (s *ChatService) LeaveGroup(ctx context.Context, actor, chatID string) (domain.ChatView, error) {
	chat, err := s.chats.Update(ctx, chatID, func(chat *domain.Chat) error {
		if !chat.IsGroupChat {
			return errors.ErrGroupChatNotFound
		}
		if !chat.HasParticipant(actor) {
			return errors.ErrNotParticipant
		}
		if chat.IsAdmin(actor) {
			return errors.ErrAdminCannotLeave
		}
		chat.Participants = lo.Without(chat.Participants, actor)
		return nil
	})
	if err != nil {
		return domain.ChatView{}, groupNotFound(err)
	}
	s.log.Info("Participant left", "chat_id", chatID, "actor", actor)
	return s.views.Chat(ctx, chat)
}

func (s *ChatService) AddParticipant(ctx context.Context, actor, chatID, participantID string) (domain.ChatView, error) {
	if _, err := s.users.GetByID(ctx, participantID); err != nil {
		return domain.ChatView{}, err
	}
	chat, err := s.chats.Update(ctx, chatID, func(chat *domain.Chat) error {
		if err := adminOfGroup(*chat, actor); err != nil {
			return err
		}
		if chat.HasParticipant(participantID) {
			return errors.ErrParticipantAlreadyInChat
		}
		chat.Participants = append(chat.Participants, participantID)
		return nil
	})
	if err != nil {
		return domain.ChatView{}, groupNotFound(err)
	}
	view, err := s.views.Chat(ctx, chat)
	if err != nil {
		return domain.ChatView{}, fmt.Errorf("resolve chat %s: %w", chat.ID, err)
	}
	s.emitter.Emit(participantID, event.NewChat, view)
	return view, nil
}

func (s *ChatService) RemoveParticipant(ctx context.Context, actor, chatID, participantID string) (domain.ChatView, error) {
	chat, err := s.chats.Update(ctx, chatID, func(chat *domain.Chat) error {
		if err := adminOfGroup(*chat, actor); err != nil {
			return err
		}
		if !chat.HasParticipant(participantID) {
			return errors.ErrParticipantNotFound
		}
		if chat.IsAdmin(participantID) {
			return errors.ErrAdminCannotLeave
		}
		chat.Participants = lo.Without(chat.Participants, participantID)
		return nil
	})
	if err != nil {
		return domain.ChatView{}, groupNotFound(err)
	}
	view, err := s.views.Chat(ctx, chat)
	if err != nil {
		return domain.ChatView{}, fmt.Errorf("resolve chat %s: %w", chat.ID, err)
	}
	s.emitter.Emit(participantID, event.LeaveChat, view)
	return view, nil
}

// ListChats returns the chats of actor, most recently updated first.
func (s *ChatService) ListChats(ctx context.Context, actor string) ([]domain.ChatView, error) {
	chats, err := s.chats.ListByParticipant(ctx, actor)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(chats, func(i, j int) bool {
		if !chats[i].UpdatedAt.Equal(chats[j].UpdatedAt) {
			return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
		}
		return chats[i].ID > chats[j].ID
	})
	return s.views.Chats(ctx, chats)
}

// NotifyTyping relays a typing indicator to the other participants.
func (s *ChatService) NotifyTyping(ctx context.Context, actor, chatID string, kind event.Kind) error {
	if kind != event.Typing && kind != event.StopTyping {
		return errors.ErrInvalidRequest
	}
	chat, err := s.chats.Get(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.HasParticipant(actor) {
		return errors.ErrNotParticipant
	}
	s.emitTo(chat.OtherParticipants(actor), kind, event.TypingPayload{ChatID: chatID, UserID: actor})
	return nil
}

func (s *ChatService) emitTo(actorIDs []string, kind event.Kind, payload any) {
	for _, id := range actorIDs {
		s.emitter.Emit(id, kind, payload)
	}
}

func adminOfGroup(chat domain.Chat, actor string) error {
	if !chat.IsGroupChat {
		return errors.ErrGroupChatNotFound
	}
	if !chat.IsAdmin(actor) {
		return errors.ErrNotAdmin
	}
	return nil
}

func groupNotFound(err error) error {
	if errors.Is(err, errors.ErrChatNotFound) {
		return errors.ErrGroupChatNotFound
	}
	return err
}

// releaseAttachments removes stored bytes; failures are only logged.
func releaseAttachments(ctx context.Context, storage contract.IAttachmentStorage, log *slog.Logger, attachments []domain.Attachment) {
	for _, attachment := range attachments {
		if err := storage.Remove(ctx, attachment); err != nil {
			log.Warn("Unable to remove attachment", "path", attachment.Path, "error", err)
		}
	}
}
