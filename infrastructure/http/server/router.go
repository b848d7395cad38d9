// Package server exposes the chat core over HTTP and websockets.
package server

import (
	"chat-core/auth"
	"chat-core/contract"
	"chat-core/services"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

const (
	// maxUploadMemory is what a multipart form keeps in memory before spilling to disk.
	maxUploadMemory = 32 << 20
	maxJSONBody     = 16 << 10
	// multipartOverhead covers the content field and the part headers.
	multipartOverhead = 1 << 20

	DefaultAttachmentSize = 10 << 20
)

// Limits bound what a single request may carry.
type Limits struct {
	// AttachmentSize is the largest accepted file, DefaultAttachmentSize when zero.
	AttachmentSize int64
}

type WebsocketConfig struct {
	BufferSize   int
	WriteTimeout time.Duration
	PingInterval time.Duration
}

type Server struct {
	log      *slog.Logger
	auth     services.IAuthService
	users    services.IUserService
	chats    services.IChatService
	messages services.IMessageService
	guard    *auth.Authenticator
	registry contract.IRegistry
	upgrader websocket.Upgrader
	ws       WebsocketConfig
	limits   Limits
}

func NewServer(log *slog.Logger,
	authService services.IAuthService,
	users services.IUserService,
	chats services.IChatService,
	messages services.IMessageService,
	guard *auth.Authenticator,
	registry contract.IRegistry,
	ws WebsocketConfig,
	limits Limits,
) *Server {
	if limits.AttachmentSize <= 0 {
		limits.AttachmentSize = DefaultAttachmentSize
	}
	return &Server{
		log:      log,
		auth:     authService,
		users:    users,
		chats:    chats,
		messages: messages,
		guard:    guard,
		registry: registry,
		// origins are enforced by the CORS layer in front of the router
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		ws:       ws,
		limits:   limits,
	}
}

// Router wires every route. uploads, when not nil, serves attachments
// stored on local disk under /uploads.
func (s *Server) Router(uploads http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	r.Get("/ws", s.connect)
	if uploads != nil {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", uploads))
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Post("/users/register", s.register)
		api.Post("/users/login", s.login)

		api.Group(func(private chi.Router) {
			private.Use(s.guard.Middleware(func(w http.ResponseWriter, err error) {
				respondError(w, s.log, err)
			}))
			private.Get("/users/user-info", s.userInfo)
			private.Post("/users/logout", s.logout)

			private.Route("/chat-app/chats", func(c chi.Router) {
				c.Get("/", s.listChats)
				c.Get("/users", s.searchUsers)
				c.Post("/c/{receiverId}", s.createOrGetOneOnOne)
				c.Post("/group", s.createGroup)
				c.Get("/group/{chatId}", s.groupDetails)
				c.Patch("/group/{chatId}", s.renameGroup)
				c.Delete("/group/{chatId}", s.deleteGroup)
				c.Post("/group/{chatId}/{participantId}", s.addParticipant)
				c.Delete("/group/{chatId}/{participantId}", s.removeParticipant)
				c.Delete("/leave/group/{chatId}", s.leaveGroup)
				c.Delete("/remove/{chatId}", s.deleteOneOnOne)
			})
			private.Route("/chat-app/messages", func(m chi.Router) {
				m.Get("/{chatId}", s.listMessages)
				m.Post("/{chatId}", s.sendMessage)
				m.Delete("/{chatId}/{messageId}", s.deleteMessage)
			})
		})
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	respond(w, s.log, http.StatusOK, map[string]string{"status": "ok"}, "Healthy")
}

// actor is set by the authentication middleware on every private route.
func actor(r *http.Request) string {
	id, _ := auth.ActorFromContext(r.Context())
	return id
}
