package repositories

import (
	"chat-core/domain"
	"chat-core/errors"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newMessage(chatID, sender, content string, at time.Time) domain.Message {
	return domain.Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Chat:      chatID,
		Content:   content,
		CreatedAt: at,
	}
}

func Test_Append_Moves_Last_Message_And_Lists_Newest_First(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := openDB(t)
	chats := NewChatRepository(db, slog.Default())
	messages := NewMessageRepository(db, slog.Default())

	// Given a group chat
	at := time.Now().UTC()
	chat := domain.NewGroupChat("alice", "trip", []string{"alice", "bob", "clara"}, at)
	req.NoError(chats.Create(ctx, chat))

	// When three messages are appended
	first := newMessage(chat.ID, "alice", "hello", at.Add(time.Second))
	second := newMessage(chat.ID, "bob", "hi", at.Add(2*time.Second))
	third := newMessage(chat.ID, "clara", "hey", at.Add(3*time.Second))
	for _, m := range []domain.Message{first, second, third} {
		_, err := messages.Append(ctx, m, nil)
		req.NoError(err)
	}

	// Then the pointer targets the newest one and the listing is newest first
	stored, err := chats.Get(ctx, chat.ID)
	req.NoError(err)
	req.NotNil(stored.LastMessage)
	req.Equal(third.ID, *stored.LastMessage)

	listed, err := messages.ListByChat(ctx, chat.ID)
	req.NoError(err)
	req.Len(listed, 3)
	req.Equal([]string{third.ID, second.ID, first.ID}, []string{listed[0].ID, listed[1].ID, listed[2].ID})
}

func Test_Append_Older_Message_Keeps_Pointer(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := openDB(t)
	chats := NewChatRepository(db, slog.Default())
	messages := NewMessageRepository(db, slog.Default())

	at := time.Now().UTC()
	chat := domain.NewOneOnOneChat("alice", "bob", at)
	req.NoError(chats.Create(ctx, chat))

	newest := newMessage(chat.ID, "alice", "later", at.Add(time.Minute))
	_, err := messages.Append(ctx, newest, nil)
	req.NoError(err)

	// When a message with an older timestamp lands afterwards
	late := newMessage(chat.ID, "bob", "earlier", at.Add(time.Second))
	updated, err := messages.Append(ctx, late, nil)
	req.NoError(err)

	// Then the pointer still targets the newest message
	req.Equal(newest.ID, *updated.LastMessage)
}

func Test_Append_Rejects_Empty_Message_And_Unknown_Chat(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	messages := NewMessageRepository(openDB(t), slog.Default())

	_, err := messages.Append(ctx, newMessage("chat", "alice", "   ", time.Now()), nil)
	req.ErrorIs(err, errors.ErrEmptyMessage)

	_, err = messages.Append(ctx, newMessage("missing", "alice", "hi", time.Now()), nil)
	req.ErrorIs(err, errors.ErrChatNotFound)
}

func Test_Append_Guard_Aborts_Without_Writing(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := openDB(t)
	chats := NewChatRepository(db, slog.Default())
	messages := NewMessageRepository(db, slog.Default())

	chat := domain.NewOneOnOneChat("alice", "bob", time.Now().UTC())
	req.NoError(chats.Create(ctx, chat))

	msg := newMessage(chat.ID, "mallory", "hi", time.Now().UTC())
	_, err := messages.Append(ctx, msg, func(chat domain.Chat) error {
		if !chat.HasParticipant(msg.Sender) {
			return errors.ErrNotParticipant
		}
		return nil
	})
	req.ErrorIs(err, errors.ErrNotParticipant)

	_, err = messages.Get(ctx, msg.ID)
	req.ErrorIs(err, errors.ErrMessageNotFound)
}

func Test_Remove_Repairs_Last_Message(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := openDB(t)
	chats := NewChatRepository(db, slog.Default())
	messages := NewMessageRepository(db, slog.Default())

	at := time.Now().UTC()
	chat := domain.NewOneOnOneChat("alice", "bob", at)
	req.NoError(chats.Create(ctx, chat))
	first := newMessage(chat.ID, "alice", "one", at.Add(time.Second))
	second := newMessage(chat.ID, "bob", "two", at.Add(2*time.Second))
	for _, m := range []domain.Message{first, second} {
		_, err := messages.Append(ctx, m, nil)
		req.NoError(err)
	}

	// When the newest message is removed
	removed, updated, err := messages.Remove(ctx, second.ID, nil)
	req.NoError(err)
	req.Equal(second.ID, removed.ID)

	// Then the pointer falls back to the previous one
	req.Equal(first.ID, *updated.LastMessage)

	// When the last remaining message is removed
	_, updated, err = messages.Remove(ctx, first.ID, nil)
	req.NoError(err)

	// Then the pointer is cleared
	req.Nil(updated.LastMessage)
	stored, err := chats.Get(ctx, chat.ID)
	req.NoError(err)
	req.Nil(stored.LastMessage)
}

func Test_Remove_Older_Message_Keeps_Pointer(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := openDB(t)
	chats := NewChatRepository(db, slog.Default())
	messages := NewMessageRepository(db, slog.Default())

	at := time.Now().UTC()
	chat := domain.NewOneOnOneChat("alice", "bob", at)
	req.NoError(chats.Create(ctx, chat))
	first := newMessage(chat.ID, "alice", "one", at.Add(time.Second))
	second := newMessage(chat.ID, "bob", "two", at.Add(2*time.Second))
	for _, m := range []domain.Message{first, second} {
		_, err := messages.Append(ctx, m, nil)
		req.NoError(err)
	}

	_, updated, err := messages.Remove(ctx, first.ID, nil)
	req.NoError(err)
	req.Equal(second.ID, *updated.LastMessage)

	listed, err := messages.ListByChat(ctx, chat.ID)
	req.NoError(err)
	req.Len(listed, 1)
}

func Test_Remove_Unknown_Message(t *testing.T) {
	req := require.New(t)
	messages := NewMessageRepository(openDB(t), slog.Default())

	_, _, err := messages.Remove(context.Background(), "missing", nil)
	req.ErrorIs(err, errors.ErrMessageNotFound)
}

func Test_DeleteByChat_Only_Touches_That_Chat(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := openDB(t)
	chats := NewChatRepository(db, slog.Default())
	messages := NewMessageRepository(db, slog.Default())

	at := time.Now().UTC()
	doomed := domain.NewOneOnOneChat("alice", "bob", at)
	kept := domain.NewOneOnOneChat("alice", "clara", at)
	req.NoError(chats.Create(ctx, doomed))
	req.NoError(chats.Create(ctx, kept))

	for i := 0; i < 5; i++ {
		_, err := messages.Append(ctx, newMessage(doomed.ID, "alice", "bye", at.Add(time.Duration(i)*time.Second)), nil)
		req.NoError(err)
	}
	survivor := newMessage(kept.ID, "clara", "still here", at)
	_, err := messages.Append(ctx, survivor, nil)
	req.NoError(err)

	deleted, err := messages.DeleteByChat(ctx, doomed.ID)
	req.NoError(err)
	req.Len(deleted, 5)

	listed, err := messages.ListByChat(ctx, doomed.ID)
	req.NoError(err)
	req.Empty(listed)
	_, err = messages.Get(ctx, deleted[0].ID)
	req.ErrorIs(err, errors.ErrMessageNotFound)

	listed, err = messages.ListByChat(ctx, kept.ID)
	req.NoError(err)
	req.Len(listed, 1)
	req.Equal(survivor.ID, listed[0].ID)
}

func Test_Concurrent_Appends_Keep_Newest_Pointer(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := openDB(t)
	chats := NewChatRepository(db, slog.Default())
	messages := NewMessageRepository(db, slog.Default())

	at := time.Now().UTC()
	chat := domain.NewGroupChat("alice", "busy", []string{"alice", "bob", "clara"}, at)
	req.NoError(chats.Create(ctx, chat))

	// Given messages appended concurrently with distinct timestamps
	const count = 20
	sent := make([]domain.Message, count)
	for i := range sent {
		sent[i] = newMessage(chat.ID, "bob", "ping", at.Add(time.Duration(i+1)*time.Millisecond))
	}
	var wg sync.WaitGroup
	errs := make(chan error, count)
	for _, m := range sent {
		wg.Add(1)
		go func(m domain.Message) {
			defer wg.Done()
			_, err := messages.Append(ctx, m, nil)
			errs <- err
		}(m)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			req.ErrorIs(err, errors.ErrConflict)
		}
	}

	// Then the pointer matches the newest stored message
	listed, err := messages.ListByChat(ctx, chat.ID)
	req.NoError(err)
	req.NotEmpty(listed)
	stored, err := chats.Get(ctx, chat.ID)
	req.NoError(err)
	req.Equal(listed[0].ID, *stored.LastMessage)
}
