package server_test

import (
	"bytes"
	"chat-core/auth"
	"chat-core/domain"
	"chat-core/infrastructure/http/server"
	"chat-core/repositories"
	"chat-core/runtime"
	"chat-core/runtime/workers"
	"chat-core/services"
	"chat-core/storage"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const (
	password          = "Sup3r-Secret!"
	maxAttachmentSize = 1 << 10
)

var pngHeader = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 16)...)

type response struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Kind       string          `json:"kind"`
	Success    bool            `json:"success"`
}

type frame struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

type harness struct {
	url string
}

// newHarness serves the whole stack on a fresh store.
func newHarness(t *testing.T) *harness {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	writer, err := bluge.OpenWriter(bluge.InMemoryOnlyConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })
	disk, err := storage.NewDiskStorage(t.TempDir(), "/uploads", log)
	require.NoError(t, err)

	users := repositories.NewUserRepository(db, log)
	index := repositories.NewUserIndex(writer, log)
	chats := repositories.NewChatRepository(db, log)
	messages := repositories.NewMessageRepository(db, log)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	orchestrator := runtime.NewOrchestrator(log, workers.NewSupervisor(log), runtime.NewRegistry(), runtime.Config{
		FanoutShards: 2, BufferSize: 64, DeliveryTimeout: time.Second,
	})
	orchestrator.Start(ctx)

	tokens := auth.NewTokenManager("test-secret", time.Hour)
	api := server.NewServer(log,
		services.NewAuthService(users, index, tokens, log),
		services.NewUserService(users, index),
		services.NewChatService(chats, messages, users, orchestrator, disk, log),
		services.NewMessageService(chats, messages, users, orchestrator, disk, nil, log),
		auth.NewAuthenticator(tokens, users, log),
		orchestrator,
		server.WebsocketConfig{BufferSize: 16, WriteTimeout: time.Second, PingInterval: time.Minute},
		server.Limits{AttachmentSize: maxAttachmentSize},
	)
	srv := httptest.NewServer(api.Router(disk.Handler()))
	t.Cleanup(srv.Close)
	return &harness{url: srv.URL}
}

func (h *harness) call(t *testing.T, method, path, token string, body io.Reader, contentType string) response {
	t.Helper()
	req, err := http.NewRequest(method, h.url+path, body)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	require.Equal(t, resp.StatusCode, decoded.StatusCode)
	return decoded
}

func (h *harness) callJSON(t *testing.T, method, path, token string, body any) response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	return h.call(t, method, path, token, reader, "application/json")
}

func (h *harness) register(t *testing.T, username string) services.Session {
	t.Helper()
	resp := h.callJSON(t, http.MethodPost, "/api/v1/users/register", "", map[string]string{
		"username": username, "email": username + "@example.com", "password": password,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.Message)
	var session services.Session
	require.NoError(t, json.Unmarshal(resp.Data, &session))
	return session
}

func (h *harness) send(t *testing.T, token, chatID, content string, files ...[]byte) response {
	t.Helper()
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	require.NoError(t, form.WriteField("content", content))
	for i, data := range files {
		part, err := form.CreateFormFile("attachments", fmt.Sprintf("file-%d.png", i))
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, form.Close())
	return h.call(t, http.MethodPost, "/api/v1/chat-app/messages/"+chatID, token, &body, form.FormDataContentType())
}

// dial opens a websocket and waits for the connected frame, after which
// the session is registered for delivery.
func (h *harness) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(h.url, "http")+"/ws?token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Equal(t, "connected", next(t, conn).Kind)
	return conn
}

func next(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestHealth(t *testing.T) {
	h := newHarness(t)

	resp := h.call(t, http.MethodGet, "/health", "", nil, "")

	require.True(t, resp.Success)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUsers_Register_Login_And_UserInfo(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	alice := h.register(t, "alice")
	req.NotEmpty(alice.Token)
	req.Equal("alice", alice.User.Username)

	// Duplicates are a conflict
	resp := h.callJSON(t, http.MethodPost, "/api/v1/users/register", "", map[string]string{
		"username": "Alice", "email": "other@example.com", "password": password,
	})
	req.Equal(http.StatusConflict, resp.StatusCode)
	req.Equal("conflict", resp.Kind)
	req.False(resp.Success)

	// A wrong password is rejected
	resp = h.callJSON(t, http.MethodPost, "/api/v1/users/login", "", map[string]string{
		"email": "alice@example.com", "password": "Wrong-Passw0rd!",
	})
	req.Equal(http.StatusUnauthorized, resp.StatusCode)

	resp = h.callJSON(t, http.MethodPost, "/api/v1/users/login", "", map[string]string{
		"email": "alice@example.com", "password": password,
	})
	req.Equal(http.StatusOK, resp.StatusCode)
	var session services.Session
	req.NoError(json.Unmarshal(resp.Data, &session))

	resp = h.call(t, http.MethodGet, "/api/v1/users/user-info", session.Token, nil, "")
	req.Equal(http.StatusOK, resp.StatusCode)
	var profile domain.Profile
	req.NoError(json.Unmarshal(resp.Data, &profile))
	req.Equal(alice.User.ID, profile.ID)
}

func TestUsers_Session_Cookie(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.register(t, "alice")

	body := strings.NewReader(`{"email":"alice@example.com","password":"` + password + `"}`)
	login, err := http.Post(h.url+"/api/v1/users/login", "application/json", body)
	req.NoError(err)
	defer login.Body.Close()
	cookies := login.Cookies()
	req.Len(cookies, 1)
	req.Equal(auth.AccessTokenCookie, cookies[0].Name)

	// The cookie alone authenticates
	request, err := http.NewRequest(http.MethodGet, h.url+"/api/v1/chat-app/chats", nil)
	req.NoError(err)
	request.AddCookie(cookies[0])
	resp, err := http.DefaultClient.Do(request)
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)
}

func TestPrivateRoutes_Require_Token(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	resp := h.call(t, http.MethodGet, "/api/v1/chat-app/chats", "", nil, "")
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
	req.Equal("unauthenticated", resp.Kind)

	resp = h.call(t, http.MethodGet, "/api/v1/chat-app/chats", "not-a-token", nil, "")
	req.Equal(http.StatusUnauthorized, resp.StatusCode)

	_, dialResp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(h.url, "http")+"/ws", nil)
	req.Error(err)
	req.Equal(http.StatusUnauthorized, dialResp.StatusCode)
}

func TestUsers_Search(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	alice := h.register(t, "alice")
	h.register(t, "bob")
	h.register(t, "barbara")

	resp := h.call(t, http.MethodGet, "/api/v1/chat-app/chats/users?q=b", alice.Token, nil, "")

	req.Equal(http.StatusOK, resp.StatusCode)
	var profiles []domain.Profile
	req.NoError(json.Unmarshal(resp.Data, &profiles))
	req.Len(profiles, 2)
	req.Equal("barbara", profiles[0].Username)
	req.Equal("bob", profiles[1].Username)
}

func TestChats_One_On_One(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	alice := h.register(t, "alice")
	bob := h.register(t, "bob")

	resp := h.call(t, http.MethodPost, "/api/v1/chat-app/chats/c/"+bob.User.ID, alice.Token, nil, "")
	req.Equal(http.StatusCreated, resp.StatusCode)
	var created domain.ChatView
	req.NoError(json.Unmarshal(resp.Data, &created))

	resp = h.call(t, http.MethodPost, "/api/v1/chat-app/chats/c/"+alice.User.ID, bob.Token, nil, "")
	req.Equal(http.StatusOK, resp.StatusCode)
	var existing domain.ChatView
	req.NoError(json.Unmarshal(resp.Data, &existing))
	req.Equal(created.ID, existing.ID)

	resp = h.call(t, http.MethodPost, "/api/v1/chat-app/chats/c/"+alice.User.ID, alice.Token, nil, "")
	req.Equal(http.StatusBadRequest, resp.StatusCode)

	resp = h.call(t, http.MethodDelete, "/api/v1/chat-app/chats/remove/"+created.ID, bob.Token, nil, "")
	req.Equal(http.StatusOK, resp.StatusCode)
	resp = h.call(t, http.MethodGet, "/api/v1/chat-app/chats", alice.Token, nil, "")
	req.JSONEq(`[]`, string(resp.Data))
}

func TestChats_Group_Flow_With_Live_Events(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	alice := h.register(t, "alice")
	bob := h.register(t, "bob")
	clara := h.register(t, "clara")
	bobSocket := h.dial(t, bob.Token)

	// alice creates the group, bob is told
	resp := h.callJSON(t, http.MethodPost, "/api/v1/chat-app/chats/group", alice.Token, map[string]any{
		"name": "Trip", "participants": []string{bob.User.ID, clara.User.ID},
	})
	req.Equal(http.StatusCreated, resp.StatusCode, resp.Message)
	var group domain.ChatView
	req.NoError(json.Unmarshal(resp.Data, &group))
	req.Equal("newChat", next(t, bobSocket).Kind)

	// bob sends a picture, the bytes are served back
	resp = h.send(t, bob.Token, group.ID, "hi", pngHeader)
	req.Equal(http.StatusCreated, resp.StatusCode, resp.Message)
	var sent domain.MessageView
	req.NoError(json.Unmarshal(resp.Data, &sent))
	req.Len(sent.Attachments, 1)
	req.Equal("image/png", sent.Attachments[0].ContentType)
	file, err := http.Get(h.url + sent.Attachments[0].URL)
	req.NoError(err)
	served, err := io.ReadAll(file.Body)
	req.NoError(err)
	req.NoError(file.Body.Close())
	req.Equal(pngHeader, served)

	resp = h.call(t, http.MethodGet, "/api/v1/chat-app/messages/"+group.ID, clara.Token, nil, "")
	var listed []domain.MessageView
	req.NoError(json.Unmarshal(resp.Data, &listed))
	req.Len(listed, 1)
	req.Equal("bob", listed[0].Sender.Username)

	// clara is not the admin
	resp = h.callJSON(t, http.MethodPatch, "/api/v1/chat-app/chats/group/"+group.ID, clara.Token, map[string]string{"name": "Hijacked"})
	req.Equal(http.StatusForbidden, resp.StatusCode)
	req.Equal("authorization", resp.Kind)

	// alice renames, bob follows live
	resp = h.callJSON(t, http.MethodPatch, "/api/v1/chat-app/chats/group/"+group.ID, alice.Token, map[string]string{"name": "Trip 2"})
	req.Equal(http.StatusOK, resp.StatusCode)
	renamed := next(t, bobSocket)
	req.Equal("updateGroupName", renamed.Kind)
	var view domain.ChatView
	req.NoError(json.Unmarshal(renamed.Payload, &view))
	req.Equal("Trip 2", view.Name)

	// only bob can delete his message
	resp = h.call(t, http.MethodDelete, "/api/v1/chat-app/messages/"+group.ID+"/"+sent.ID, alice.Token, nil, "")
	req.Equal(http.StatusForbidden, resp.StatusCode)
	resp = h.call(t, http.MethodDelete, "/api/v1/chat-app/messages/"+group.ID+"/"+sent.ID, bob.Token, nil, "")
	req.Equal(http.StatusOK, resp.StatusCode)
	file, err = http.Get(h.url + sent.Attachments[0].URL)
	req.NoError(err)
	req.NoError(file.Body.Close())
	req.Equal(http.StatusNotFound, file.StatusCode)

	// clara leaves, then the admin deletes the group
	resp = h.call(t, http.MethodDelete, "/api/v1/chat-app/chats/leave/group/"+group.ID, clara.Token, nil, "")
	req.Equal(http.StatusOK, resp.StatusCode)
	resp = h.call(t, http.MethodDelete, "/api/v1/chat-app/chats/group/"+group.ID, alice.Token, nil, "")
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal("leaveChat", next(t, bobSocket).Kind)
	resp = h.call(t, http.MethodGet, "/api/v1/chat-app/chats/group/"+group.ID, alice.Token, nil, "")
	req.Equal(http.StatusNotFound, resp.StatusCode)
}

func TestUploads_Are_Not_Listed(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	alice := h.register(t, "alice")
	bob := h.register(t, "bob")

	// Given a picture stored for a private chat
	resp := h.call(t, http.MethodPost, "/api/v1/chat-app/chats/c/"+bob.User.ID, alice.Token, nil, "")
	req.Equal(http.StatusCreated, resp.StatusCode, resp.Message)
	var chat domain.ChatView
	req.NoError(json.Unmarshal(resp.Data, &chat))
	resp = h.send(t, alice.Token, chat.ID, "", pngHeader)
	req.Equal(http.StatusCreated, resp.StatusCode, resp.Message)
	var sent domain.MessageView
	req.NoError(json.Unmarshal(resp.Data, &sent))
	name := strings.TrimPrefix(sent.Attachments[0].URL, "/uploads/")

	// When the upload directory itself is requested
	listing, err := http.Get(h.url + "/uploads/")
	req.NoError(err)
	body, err := io.ReadAll(listing.Body)
	req.NoError(err)
	req.NoError(listing.Body.Close())

	// Then nothing is listed
	req.Equal(http.StatusNotFound, listing.StatusCode)
	req.NotContains(string(body), name)

	// And the file is still served by its name
	file, err := http.Get(h.url + sent.Attachments[0].URL)
	req.NoError(err)
	req.NoError(file.Body.Close())
	req.Equal(http.StatusOK, file.StatusCode)
}

func TestChats_Participants(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	alice := h.register(t, "alice")
	bob := h.register(t, "bob")
	clara := h.register(t, "clara")
	dave := h.register(t, "dave")

	resp := h.callJSON(t, http.MethodPost, "/api/v1/chat-app/chats/group", alice.Token, map[string]any{
		"name": "Trip", "participants": []string{bob.User.ID, clara.User.ID},
	})
	var group domain.ChatView
	req.NoError(json.Unmarshal(resp.Data, &group))
	path := "/api/v1/chat-app/chats/group/" + group.ID + "/"

	resp = h.call(t, http.MethodPost, path+dave.User.ID, alice.Token, nil, "")
	req.Equal(http.StatusOK, resp.StatusCode)
	resp = h.call(t, http.MethodPost, path+dave.User.ID, alice.Token, nil, "")
	req.Equal(http.StatusBadRequest, resp.StatusCode)
	resp = h.call(t, http.MethodDelete, path+clara.User.ID, bob.Token, nil, "")
	req.Equal(http.StatusForbidden, resp.StatusCode)
	resp = h.call(t, http.MethodDelete, path+clara.User.ID, alice.Token, nil, "")
	req.Equal(http.StatusOK, resp.StatusCode)

	resp = h.call(t, http.MethodGet, "/api/v1/chat-app/chats/group/"+group.ID, dave.Token, nil, "")
	req.Equal(http.StatusOK, resp.StatusCode)
	var details domain.ChatView
	req.NoError(json.Unmarshal(resp.Data, &details))
	req.Len(details.Participants, 3)
}

func TestMessages_Validation(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	alice := h.register(t, "alice")
	bob := h.register(t, "bob")
	resp := h.call(t, http.MethodPost, "/api/v1/chat-app/chats/c/"+bob.User.ID, alice.Token, nil, "")
	var chat domain.ChatView
	req.NoError(json.Unmarshal(resp.Data, &chat))

	files := make([][]byte, domain.MaxAttachments+1)
	for i := range files {
		files[i] = pngHeader
	}
	resp = h.send(t, alice.Token, chat.ID, "too much", files...)
	req.Equal(http.StatusBadRequest, resp.StatusCode)

	resp = h.send(t, alice.Token, chat.ID, "   ")
	req.Equal(http.StatusBadRequest, resp.StatusCode)

	resp = h.send(t, alice.Token, chat.ID, "binary", []byte("MZ\x90\x00 not a picture"))
	req.Equal(http.StatusBadRequest, resp.StatusCode)

	resp = h.call(t, http.MethodGet, "/api/v1/chat-app/messages/"+chat.ID, alice.Token, nil, "")
	req.JSONEq(`[]`, string(resp.Data))
}

func TestMessages_Size_Limits(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	alice := h.register(t, "alice")
	bob := h.register(t, "bob")
	resp := h.call(t, http.MethodPost, "/api/v1/chat-app/chats/c/"+bob.User.ID, alice.Token, nil, "")
	var chat domain.ChatView
	req.NoError(json.Unmarshal(resp.Data, &chat))

	// An attachment above the limit is refused before being stored
	oversized := append(append([]byte{}, pngHeader...), make([]byte, maxAttachmentSize)...)
	resp = h.send(t, alice.Token, chat.ID, "holiday", oversized)
	req.Equal(http.StatusBadRequest, resp.StatusCode)
	req.Equal("validation", resp.Kind)
	req.Contains(resp.Message, "attachment is too large")

	// One exactly at the limit goes through
	atLimit := append(append([]byte{}, pngHeader...), make([]byte, maxAttachmentSize-len(pngHeader))...)
	resp = h.send(t, alice.Token, chat.ID, "holiday", atLimit)
	req.Equal(http.StatusCreated, resp.StatusCode, resp.Message)

	resp = h.call(t, http.MethodGet, "/api/v1/chat-app/messages/"+chat.ID, alice.Token, nil, "")
	var listed []domain.MessageView
	req.NoError(json.Unmarshal(resp.Data, &listed))
	req.Len(listed, 1)

	// JSON bodies are bounded as well
	resp = h.callJSON(t, http.MethodPatch, "/api/v1/chat-app/chats/group/"+chat.ID, alice.Token,
		map[string]string{"name": strings.Repeat("a", 32<<10)})
	req.Equal(http.StatusBadRequest, resp.StatusCode)
	req.Equal("request body is too large", resp.Message)
}

func TestWebsocket_Typing_Relay(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	alice := h.register(t, "alice")
	bob := h.register(t, "bob")
	resp := h.call(t, http.MethodPost, "/api/v1/chat-app/chats/c/"+bob.User.ID, alice.Token, nil, "")
	var chat domain.ChatView
	req.NoError(json.Unmarshal(resp.Data, &chat))

	bobSocket := h.dial(t, bob.Token)
	aliceSocket := h.dial(t, alice.Token)

	// Unknown frames are ignored, typing is relayed
	req.NoError(aliceSocket.WriteJSON(map[string]string{"kind": "dance", "chatId": chat.ID}))
	req.NoError(aliceSocket.WriteJSON(map[string]string{"kind": "typing", "chatId": chat.ID}))

	typing := next(t, bobSocket)
	req.Equal("typing", typing.Kind)
	req.JSONEq(fmt.Sprintf(`{"chatId":%q,"userId":%q}`, chat.ID, alice.User.ID), string(typing.Payload))
}

func TestWebsocket_Connected_Only_Reaches_New_Device(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	alice := h.register(t, "alice")
	bob := h.register(t, "bob")
	resp := h.call(t, http.MethodPost, "/api/v1/chat-app/chats/c/"+bob.User.ID, alice.Token, nil, "")
	var chat domain.ChatView
	req.NoError(json.Unmarshal(resp.Data, &chat))

	// Given bob on his phone, then on his laptop
	phone := h.dial(t, bob.Token)
	laptop := h.dial(t, bob.Token)

	// When alice writes
	resp = h.send(t, alice.Token, chat.ID, "hi")
	req.Equal(http.StatusCreated, resp.StatusCode, resp.Message)

	// Then the message is the next frame on both devices
	req.Equal("messageReceived", next(t, phone).Kind)
	req.Equal("messageReceived", next(t, laptop).Kind)
}
