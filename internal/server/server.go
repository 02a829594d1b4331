// Package server wires the HTTP routes and builds the http.Server.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pollchat/internal/chat"
	"pollchat/internal/config"
	myMiddleware "pollchat/internal/middleware"
	"pollchat/internal/respond"
	"pollchat/internal/user"
)

type Deps struct {
	Users *user.Handler
	Chat  *chat.Handler
	// Auth guards everything except register, login and the welcome route
	// when set.
	Auth *myMiddleware.AuthMiddleware
	// Limiter throttles register, login and send-message when set.
	Limiter *myMiddleware.LimiterStore
}

// NewLimiter returns nil when rate limiting is not configured, which NewRouter
// treats as no throttling.
func NewLimiter(rl config.RateLimitConfig) *myMiddleware.LimiterStore {
	if !rl.Enabled() {
		return nil
	}
	return myMiddleware.NewLimiterStore(rl.PerMinute, rl.Burst, time.Minute)
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	limited := func(h http.HandlerFunc) http.Handler {
		if d.Limiter == nil {
			return h
		}
		return d.Limiter.Handle(h)
	}

	// Public Routes
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, http.StatusOK, map[string]string{"message": "Hello World", "msg": "Welcome to Chat App"})
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodPost, "/register", limited(d.Users.Register))
	r.Method(http.MethodPost, "/login", limited(d.Users.Login))

	r.Group(func(r chi.Router) {
		if d.Auth != nil {
			r.Use(d.Auth.Handle)
		}
		r.Post("/logout", d.Users.Logout)
		r.Get("/users", d.Users.ListUsers)
		r.Get("/sessions", d.Users.ListSessions)

		r.Method(http.MethodPost, "/send-message", limited(d.Chat.SendMessage))
		r.Get("/all-messages", d.Chat.AllMessages)
		r.Get("/received-messages", d.Chat.ReceivedMessages)
		r.Get("/received-messages-by-users", d.Chat.ConversationsByUser)
		r.Get("/recent-messages", d.Chat.RecentMessages)
		r.Get("/stats", d.Chat.Stats)

		r.Get("/message-stream", d.Chat.MessageStream)
		r.Get("/ws/message-stream", d.Chat.MessageStreamWS)
	})

	return r
}

// CreateServer sets timeouts for ordinary requests; stream handlers lift the
// write deadline for themselves.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// ShutdownServer stops accepting connections and waits for in-flight requests.
func ShutdownServer(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
