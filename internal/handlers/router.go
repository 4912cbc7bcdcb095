package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig collects what the gateway routes are served by.
type RouterConfig struct {
	CorsOrigins   []string
	Sessions      SessionCounter
	Conversations *ConversationHandler
	Messages      *MessageHandler
	Users         *UserHandler
	Uploads       *UploadHandler
	Contacts      *ContactsHandler
	Matchmaking   *MatchmakingHandler
	WebSocket     http.HandlerFunc
	Metrics       http.Handler
}

// NewRouter sets up the chi router with the middleware stack and every route.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CorsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", HealthCheck(cfg.Sessions))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", cfg.Conversations.Open)
			r.Get("/{id}", cfg.Conversations.Get)
			r.Delete("/{id}", cfg.Conversations.Close)
			r.Post("/{id}/reload", cfg.Conversations.Reload)
			r.Post("/{id}/heartbeat", cfg.Conversations.Heartbeat)
			r.Get("/{id}/messages", cfg.Messages.GetMessages)
			r.Post("/{id}/messages", cfg.Messages.SendMessage)
		})
		r.Route("/users", func(r chi.Router) {
			r.Post("/", cfg.Users.CreateUser)
			r.Get("/{wallet}", cfg.Users.GetUser)
			r.Patch("/{wallet}", cfg.Users.UpdateUser)
		})
		r.Post("/upload", cfg.Uploads.Upload)
		r.Get("/contacts/{wallet}", cfg.Contacts.ListContacts)
		r.Get("/likes/{wallet}", cfg.Matchmaking.GetLikes)
		r.Get("/discover/{wallet}", cfg.Matchmaking.Discover)
	})

	if cfg.WebSocket != nil {
		r.Get("/ws/conversations/{id}", cfg.WebSocket)
	}

	return r
}
