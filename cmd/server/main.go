package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"pollchat/internal/chat"
	"pollchat/internal/config"
	"pollchat/internal/db"
	myMiddleware "pollchat/internal/middleware"
	"pollchat/internal/server"
	"pollchat/internal/session"
	"pollchat/internal/user"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Load()

	root := &cobra.Command{
		Use:           "chat-server",
		Short:         "Chat backend with polling message streams",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfg.Addr, "addr", cfg.Addr, "http service address")
	flags.StringVar(&cfg.DBDriver, "db-driver", cfg.DBDriver, "database driver (pgx or sqlite3)")
	flags.StringVar(&cfg.DBDSN, "db-dsn", cfg.DBDSN, "database DSN or sqlite file path")
	flags.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "redis address for the session registry (empty keeps sessions in memory)")
	flags.DurationVar(&cfg.StreamDelay, "stream-delay", cfg.StreamDelay, "delivery queue poll interval per stream")
	flags.DurationVar(&cfg.PingInterval, "ping-interval", cfg.PingInterval, "stream keep-alive interval")
	flags.IntVar(&cfg.RateLimit.PerMinute, "rate-limit", cfg.RateLimit.PerMinute, "requests per minute per client on register/login/send-message (0 disables)")
	flags.BoolVar(&cfg.RequireAuth, "require-auth", cfg.RequireAuth, "require a bearer token outside register/login")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(cfg.LogLevel)
			database, err := openDatabase(cfg, logger)
			if err != nil {
				return err
			}
			return database.Close()
		},
	})

	return root
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func openDatabase(cfg *config.Config, logger *slog.Logger) (*db.Database, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	database, err := db.NewDatabase(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("❌ failed to connect to DB: %w", err)
	}
	logger.Info("✅ Connected to database", "driver", cfg.DBDriver)

	if err := database.AutoMigrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("❌ migration failed: %w", err)
	}
	logger.Info("✅ Database Schema Initialized")
	return database, nil
}

func newSessionRegistry(ctx context.Context, cfg *config.Config, logger *slog.Logger) (session.Registry, func(), error) {
	if cfg.RedisAddr == "" {
		logger.Info("sessions kept in memory")
		return session.NewMemory(), func() {}, nil
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		redisClient.Close()
		return nil, nil, fmt.Errorf("❌ failed to connect to Redis: %w", err)
	}
	logger.Info("✅ Connected to Redis", "addr", cfg.RedisAddr)
	return session.NewRedis(redisClient, ""), func() { redisClient.Close() }, nil
}

// ensureJWTSecret validates cfg as given, then fills in a random signing secret
// when none is configured. Enforced auth must have a stable secret.
func ensureJWTSecret(cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.JWTSecret != "" {
		return nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return err
	}
	cfg.JWTSecret = hex.EncodeToString(secret)
	logger.Warn("JWT_SECRET is not set; using a random secret, tokens will not survive a restart")
	return nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg.LogLevel)

	if err := ensureJWTSecret(cfg, logger); err != nil {
		return err
	}

	database, err := openDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	sessions, closeSessions, err := newSessionRegistry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSessions()

	// User feature
	userRepo := user.NewRepository(database)
	userService := user.NewService(userRepo, sessions, cfg.JWTSecret, cfg.JWTTTL, logger)
	userHandler := user.NewHandler(userService, logger)

	// Chat feature
	chatRepo := chat.NewRepository(database)
	hub := chat.NewHub(userRepo, chat.HubConfig{
		QueueLimit:   cfg.QueueLimit,
		PollInterval: cfg.StreamDelay,
		PingInterval: cfg.PingInterval,
	}, logger)
	chatService := chat.NewService(chatRepo, hub, userRepo, sessions, logger)
	chatHandler := chat.NewHandler(chatService, logger)

	deps := server.Deps{Users: userHandler, Chat: chatHandler}
	if limiter := server.NewLimiter(cfg.RateLimit); limiter != nil {
		defer limiter.Stop()
		deps.Limiter = limiter
		logger.Info("rate limiting enabled", "per_minute", cfg.RateLimit.PerMinute, "burst", cfg.RateLimit.Burst)
	}
	if cfg.RequireAuth {
		deps.Auth = myMiddleware.NewAuthMiddleware(userService)
	}
	srv := server.CreateServer(cfg.Addr, server.NewRouter(deps))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("🚀 Server starting", "addr", cfg.Addr, "stream_delay", cfg.StreamDelay, "ping_interval", cfg.PingInterval)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	// streams never finish on their own, so close them before the server waits
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		logger.Warn("hub shutdown incomplete", "err", err)
	}
	if err := server.ShutdownServer(srv, cfg.ShutdownTimeout); err != nil {
		logger.Error("HTTP server shutdown error", "err", err)
		return err
	}
	logger.Info("server stopped")
	return nil
}
