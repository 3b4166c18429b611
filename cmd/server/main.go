// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/coderoom/internal/auth"
	"github.com/jason-s-yu/coderoom/internal/cache"
	"github.com/jason-s-yu/coderoom/internal/config"
	"github.com/jason-s-yu/coderoom/internal/database"
	"github.com/jason-s-yu/coderoom/internal/handlers"
	"github.com/jason-s-yu/coderoom/internal/hub"
	"github.com/jason-s-yu/coderoom/internal/identity"
	"github.com/jason-s-yu/coderoom/internal/judge"
	"github.com/jason-s-yu/coderoom/internal/middleware"
	"github.com/jason-s-yu/coderoom/internal/room"
	"github.com/jason-s-yu/coderoom/internal/store"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()

	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tokens, err := loadTokens(cfg)
	if err != nil {
		logger.Fatalf("token keys: %v", err)
	}

	var users handlers.UserRegistry
	deps := room.Deps{
		Judge:  judge.NewClient(cfg.JudgeURL, cfg.JudgeToken, logger),
		Logger: logger,
	}

	switch cfg.Store {
	case config.StorePostgres:
		pool, err := database.Connect(ctx, cfg.Postgres)
		if err != nil {
			logger.Fatalf("postgres: %v", err)
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			logger.Fatalf("postgres: %v", err)
		}
		deps.Store = database.NewRoomStore(pool)
		dir := database.NewUserDirectory(pool)
		deps.Directory, users = dir, dir
		logger.Info("using PostgreSQL room store")
	default:
		deps.Store = store.NewMemoryStore()
		dir := identity.NewMemoryDirectory()
		deps.Directory, users = dir, dir
		logger.Info("using in-memory room store")
	}

	if cfg.RedisAddr != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			logger.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
		deps.Presence = cache.NewPresence(rdb, cfg.PresenceTTL)
		deps.Sink = cache.NewEventQueue(rdb, cfg.EventQueue)
		logger.WithField("queue", cfg.EventQueue).Info("presence and event history on Redis")
	} else {
		deps.Presence = identity.NewMemoryPresence()
	}

	h := hub.New(logger)
	deps.Broadcaster = h
	svc := room.NewService(room.Config{
		LockTimeout:  cfg.LockTimeout,
		TickInterval: cfg.TickInterval,
		RoundTicks:   cfg.RoundTicks,
	}, deps)
	rs := handlers.NewRoomServer(logger, svc, h, tokens)

	mux := http.NewServeMux()
	mux.Handle("/room/ws", middleware.LogMiddleware(logger)(rs.RoomWSHandler()))
	mux.Handle("/rooms", middleware.LogMiddleware(logger)(rs.ListRoomsHandler()))
	mux.Handle("/user/guest", middleware.LogMiddleware(logger)(rs.GuestHandler(users)))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Infof("Running on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server exited: %v", err)
	}
}

// loadTokens reads the signing keys when both paths are configured and
// otherwise generates a key pair for this process.
func loadTokens(cfg config.Config) (*auth.Tokens, error) {
	ttl, err := auth.ParseTTL(cfg.TokenTTL)
	if err != nil {
		return nil, err
	}
	if cfg.PrivateKeyPath != "" && cfg.PublicKeyPath != "" {
		return auth.NewTokensFromPath(cfg.PrivateKeyPath, cfg.PublicKeyPath, ttl)
	}
	return auth.NewTokens(ttl)
}
