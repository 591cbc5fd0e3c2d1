package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/NEXESMISSION/kestiv2-sub001/internal/auth"
	"github.com/NEXESMISSION/kestiv2-sub001/internal/config"
	"github.com/NEXESMISSION/kestiv2-sub001/internal/domain/business"
	"github.com/NEXESMISSION/kestiv2-sub001/internal/domain/members"
	"github.com/NEXESMISSION/kestiv2-sub001/internal/domain/plans"
	"github.com/NEXESMISSION/kestiv2-sub001/internal/infra/db"
	httpx "github.com/NEXESMISSION/kestiv2-sub001/internal/infra/http"
	"github.com/NEXESMISSION/kestiv2-sub001/internal/infra/logger"
	"github.com/NEXESMISSION/kestiv2-sub001/internal/infra/tracing"
	"github.com/NEXESMISSION/kestiv2-sub001/internal/notify"
	"github.com/NEXESMISSION/kestiv2-sub001/internal/ratelimit"
)

func runMigrations(dsn, dir string) error {
	sqlDB, err := goose.OpenDBWithDriver("postgres", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()
	return goose.Up(sqlDB, dir)
}

func configPath() string {
	if p := os.Getenv("APP_CONFIG"); p != "" {
		return p
	}
	return "config/example.yaml"
}

func main() {
	cfg, err := config.Load(configPath())
	if err != nil {
		panic(err)
	}
	log := logger.New(cfg.App.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// clubdesk set-pin <business-id> <pin>
	if len(os.Args) > 1 && os.Args[1] == "set-pin" {
		if err := setPIN(ctx, cfg, os.Args[2:]); err != nil {
			log.Error("set-pin failed", "err", err)
			os.Exit(1)
		}
		log.Info("pin updated")
		return
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error("fatal", "err", err)
		os.Exit(1)
	}
	log.Info("graceful shutdown complete")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if err := runMigrations(cfg.Postgres.DSN, cfg.Postgres.Migrations); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	log.Info("migrations applied")

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	pool, err := db.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()
	log.Info("db connected")

	memberRepo := members.NewRepo(pool)
	planRepo := plans.NewRepo(pool)
	businessRepo := business.NewRepo(pool)

	var store ratelimit.Storage = ratelimit.NewMemoryStorage(ratelimit.SystemClock{})
	if cfg.Redis.Enabled {
		rdb, err := ratelimit.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer func() { _ = rdb.Close() }()
		store = ratelimit.NewRedisStorage(rdb, cfg.Redis.Prefix)
		log.Info("pin lockouts stored in redis", "addr", cfg.Redis.Addr)
	}
	limiter := ratelimit.New(store,
		ratelimit.WithMaxAttempts(cfg.Lockout.MaxAttempts),
		ratelimit.WithCooldown(cfg.Lockout.Cooldown),
	)

	svc := members.NewService(memberRepo, planRepo, log)
	api := httpx.NewAPI(svc, planRepo, auth.NewPINVerifier(limiter, log), log)
	guard := business.NewGuard(businessRepo, log)

	srv := httpx.New(cfg.HTTP.Addr, httpx.NewRouter(httpx.Options{
		API:           api,
		Guard:         guard.Middleware,
		Log:           log,
		ExposeMetrics: cfg.Metrics.Enabled,
		RatePerMinute: cfg.HTTP.RatePerMinute,
	}))
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "err", err)
		}
	}()
	log.Info("HTTP server started", "addr", cfg.HTTP.Addr)

	if cfg.Telegram.Token != "" && cfg.Telegram.AdminChatID != 0 {
		bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		digest := notify.NewDigest(memberRepo, businessRepo, bot, cfg.Telegram.AdminChatID, cfg.Telegram.DigestHour, cfg.Location(), log)
		go func() { _ = digest.Run(ctx) }()
		log.Info("expiry digest scheduled", "hour", cfg.Telegram.DigestHour, "tz", cfg.Location().String())
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func setPIN(ctx context.Context, cfg config.Config, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: clubdesk set-pin <business-id> <pin>")
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("business id: %w", err)
	}
	hash, err := auth.HashPIN(args[1], auth.DefaultParams)
	if err != nil {
		return err
	}

	pool, err := db.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	defer pool.Close()
	return business.NewRepo(pool).SetPINHash(ctx, id, hash)
}
