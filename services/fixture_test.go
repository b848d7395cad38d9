package services

import (
	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/mocks"
	"chat-core/repositories"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type emitted struct {
	actorID string
	kind    event.Kind
	payload any
}

// recorder captures every Emit call of the services under test.
type recorder struct {
	mu     sync.Mutex
	events []emitted
}

func (r *recorder) record(actorID string, kind event.Kind, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{actorID: actorID, kind: kind, payload: payload})
}

func (r *recorder) recipients(kind event.Kind) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, e := range r.events {
		if e.kind == kind {
			ids = append(ids, e.actorID)
		}
	}
	return ids
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type fixture struct {
	chats       *ChatService
	messages    *MessageService
	chatRepo    *repositories.ChatRepository
	messageRepo *repositories.MessageRepository
	storage     *mocks.MockIAttachmentStorage
	events      *recorder
}

// newFixture wires both services on a fresh store holding the given users.
func newFixture(t *testing.T, userIDs ...string) *fixture {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.Default()
	users := repositories.NewUserRepository(db, log)
	for _, id := range userIDs {
		require.NoError(t, users.Create(context.Background(), domain.User{
			ID: id, Username: id, Email: id + "@example.com", CreatedAt: time.Now().UTC(),
		}))
	}
	chatRepo := repositories.NewChatRepository(db, log)
	messageRepo := repositories.NewMessageRepository(db, log)

	ctrl := gomock.NewController(t)
	emitter := mocks.NewMockIEmitter(ctrl)
	storage := mocks.NewMockIAttachmentStorage(ctrl)
	events := &recorder{}
	emitter.EXPECT().Emit(gomock.Any(), gomock.Any(), gomock.Any()).Do(events.record).AnyTimes()

	return &fixture{
		chats:       NewChatService(chatRepo, messageRepo, users, emitter, storage, log),
		messages:    NewMessageService(chatRepo, messageRepo, users, emitter, storage, nil, log),
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		storage:     storage,
		events:      events,
	}
}

func (f *fixture) group(t *testing.T, admin, name string, participants ...string) domain.ChatView {
	t.Helper()
	view, err := f.chats.CreateGroup(context.Background(), domain.CreateGroupCommand{
		Actor: admin, Name: name, Participants: participants,
	})
	require.NoError(t, err)
	f.events.reset()
	return view
}

func (f *fixture) send(t *testing.T, actor, chatID, content string) domain.MessageView {
	t.Helper()
	view, err := f.messages.Send(context.Background(), domain.SendMessageCommand{Actor: actor, ChatID: chatID, Content: content})
	require.NoError(t, err)
	// keeps creation timestamps of consecutive messages apart
	time.Sleep(time.Millisecond)
	return view
}
