package services

import (
	"chat-core/contract"
	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/errors"
	"chat-core/projection"
	"chat-core/repositories"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

type IMessageService interface {
	Send(ctx context.Context, cmd domain.SendMessageCommand) (domain.MessageView, error)
	List(ctx context.Context, actor, chatID string) ([]domain.MessageView, error)
	Delete(ctx context.Context, actor, chatID, messageID string) (domain.MessageView, error)
}

// Censor masks forbidden words. A nil Censor disables moderation.
type Censor interface {
	Censor(content string) (string, []string)
}

type MessageService struct {
	chats       repositories.IChatRepository
	messages    repositories.IMessageRepository
	views       *projection.Builder
	emitter     contract.IEmitter
	attachments contract.IAttachmentStorage
	censor      Censor
	log         *slog.Logger
	now         func() time.Time
}

func NewMessageService(
	chats repositories.IChatRepository,
	messages repositories.IMessageRepository,
	users repositories.IUserRepository,
	emitter contract.IEmitter,
	attachments contract.IAttachmentStorage,
	censor Censor,
	log *slog.Logger,
) *MessageService {
	return &MessageService{
		chats:       chats,
		messages:    messages,
		views:       projection.NewBuilder(users, messages, chats),
		emitter:     emitter,
		attachments: attachments,
		censor:      censor,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Send stores attachments first, then the message and the chat pointer in one
// transaction. Attachments already written are released when anything after fails.
func (s *MessageService) Send(ctx context.Context, cmd domain.SendMessageCommand) (domain.MessageView, error) {
	if strings.TrimSpace(cmd.Content) == "" && len(cmd.Attachments) == 0 {
		return domain.MessageView{}, errors.ErrEmptyMessage
	}
	if len(cmd.Attachments) > domain.MaxAttachments {
		return domain.MessageView{}, fmt.Errorf("%d attachments, at most %d: %w",
			len(cmd.Attachments), domain.MaxAttachments, errors.ErrTooManyAttachments)
	}
	chat, err := s.chats.Get(ctx, cmd.ChatID)
	if err != nil {
		return domain.MessageView{}, err
	}
	if !chat.HasParticipant(cmd.Actor) {
		return domain.MessageView{}, errors.ErrNotParticipant
	}

	content := cmd.Content
	if s.censor != nil {
		var words []string
		if content, words = s.censor.Censor(content); len(words) > 0 {
			s.log.Info("Message censored", "chat_id", chat.ID, "actor", cmd.Actor, "matches", len(words))
		}
	}

	saved := make([]domain.Attachment, 0, len(cmd.Attachments))
	for _, upload := range cmd.Attachments {
		attachment, err := s.attachments.Save(ctx, upload)
		if err != nil {
			releaseAttachments(ctx, s.attachments, s.log, saved)
			return domain.MessageView{}, err
		}
		saved = append(saved, attachment)
	}

	message := domain.Message{
		ID:          uuid.NewString(),
		Sender:      cmd.Actor,
		Chat:        chat.ID,
		Content:     content,
		Attachments: saved,
		CreatedAt:   s.now(),
	}
	chat, err = s.messages.Append(ctx, message, func(current domain.Chat) error {
		if !current.HasParticipant(cmd.Actor) {
			return errors.ErrNotParticipant
		}
		return nil
	})
	if err != nil {
		releaseAttachments(ctx, s.attachments, s.log, saved)
		return domain.MessageView{}, err
	}

	view, err := s.views.Message(ctx, message)
	if err != nil {
		return domain.MessageView{}, fmt.Errorf("resolve message %s: %w", message.ID, err)
	}
	for _, id := range chat.OtherParticipants(cmd.Actor) {
		s.emitter.Emit(id, event.MessageReceived, view)
	}
	return view, nil
}

// List returns the messages of a chat, most recent first.
func (s *MessageService) List(ctx context.Context, actor, chatID string) ([]domain.MessageView, error) {
	chat, err := s.chats.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(actor) {
		return nil, errors.ErrNotParticipant
	}
	messages, err := s.messages.ListByChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return s.views.Messages(ctx, messages)
}

// Delete removes the message and repairs the chat pointer before returning.
// Attachment bytes are released only once the message is gone, so a failed
// delete never leaves a message pointing to missing files.
func (s *MessageService) Delete(ctx context.Context, actor, chatID, messageID string) (domain.MessageView, error) {
	chat, err := s.chats.Get(ctx, chatID)
	if err != nil {
		return domain.MessageView{}, err
	}
	if !chat.HasParticipant(actor) {
		return domain.MessageView{}, errors.ErrNotParticipant
	}
	message, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return domain.MessageView{}, err
	}
	if message.Chat != chatID {
		return domain.MessageView{}, errors.ErrMessageNotFound
	}
	if message.Sender != actor {
		return domain.MessageView{}, errors.ErrNotSender
	}
	view, err := s.views.Message(ctx, message)
	if err != nil {
		return domain.MessageView{}, fmt.Errorf("resolve message %s: %w", message.ID, err)
	}

	removed, chat, err := s.messages.Remove(ctx, messageID, func(current domain.Chat, message domain.Message) error {
		switch {
		case message.Chat != chatID:
			return errors.ErrMessageNotFound
		case !current.HasParticipant(actor):
			return errors.ErrNotParticipant
		case message.Sender != actor:
			return errors.ErrNotSender
		}
		return nil
	})
	if err != nil {
		return domain.MessageView{}, err
	}
	releaseAttachments(ctx, s.attachments, s.log, removed.Attachments)

	for _, id := range chat.OtherParticipants(actor) {
		s.emitter.Emit(id, event.MessageDeleted, view)
	}
	return view, nil
}
