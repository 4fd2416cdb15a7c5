package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/notifyhub/rental-notifier/internal/aggregator"
	"github.com/notifyhub/rental-notifier/internal/api"
	"github.com/notifyhub/rental-notifier/internal/claims"
	"github.com/notifyhub/rental-notifier/internal/config"
	"github.com/notifyhub/rental-notifier/internal/db"
	"github.com/notifyhub/rental-notifier/internal/dispatch"
	"github.com/notifyhub/rental-notifier/internal/domain"
	"github.com/notifyhub/rental-notifier/internal/metrics"
	"github.com/notifyhub/rental-notifier/internal/provider"
	"github.com/notifyhub/rental-notifier/internal/ratelimiter"
	"github.com/notifyhub/rental-notifier/internal/render"
	"github.com/notifyhub/rental-notifier/internal/repository"
	"github.com/notifyhub/rental-notifier/internal/trigger"
	"github.com/notifyhub/rental-notifier/internal/worker"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ---- database ----
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	// ---- claim ledger ----
	var claimRepo repository.ClaimRepository
	switch cfg.ClaimStoreDriver {
	case config.ClaimStoreSQLite:
		var sqlDB *sql.DB
		sqlDB, err = db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal("failed to open sqlite claim store", zap.Error(err))
		}
		defer sqlDB.Close()
		claimRepo, err = repository.NewSQLiteClaimRepository(ctx, sqlDB)
		if err != nil {
			logger.Fatal("failed to prepare sqlite claim store", zap.Error(err))
		}
	default:
		claimRepo = repository.NewPgClaimRepository(pool)
	}
	logger.Info("claim store ready", zap.String("driver", cfg.ClaimStoreDriver))

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	store := claims.NewStore(claimRepo, m.ClaimHooks())

	// ---- dispatch ----
	renderer, err := render.New(cfg.BaseURL, cfg.Brand)
	if err != nil {
		logger.Fatal("failed to parse templates", zap.Error(err))
	}

	dcfg := dispatch.Config{
		Senders: make(map[domain.Channel]provider.Sender),
		Timeout: cfg.DispatchTimeout,
	}
	if cfg.SMTP.Enabled() {
		dcfg.Senders[domain.ChannelEmail] = provider.NewEmailSender(provider.SMTPConfig{
			Host:        cfg.SMTP.Host,
			Port:        strconv.Itoa(cfg.SMTP.Port),
			Username:    cfg.SMTP.Username,
			Password:    cfg.SMTP.Password,
			From:        cfg.SMTP.From,
			ImplicitTLS: cfg.SMTP.ImplicitTLS,
			Timeout:     cfg.SMTP.Timeout,
		})
	}
	if cfg.Telegram.Enabled() {
		dcfg.Senders[domain.ChannelTelegram] = provider.NewTelegramSender(cfg.Telegram.APIURL, cfg.Telegram.Token, cfg.Telegram.Timeout)
	}
	if cfg.VK.Enabled() {
		dcfg.Senders[domain.ChannelVK] = provider.NewVKSender(cfg.VK.APIURL, cfg.VK.Token, cfg.VK.Timeout)
	}
	if cfg.VAPID.Enabled() {
		dcfg.Push = provider.NewWebPushSender(provider.WebPushConfig{
			PublicKey:  cfg.VAPID.PublicKey,
			PrivateKey: cfg.VAPID.PrivateKey,
			Subscriber: cfg.VAPID.Subject,
			TTL:        cfg.VAPID.TTL,
			Timeout:    cfg.VAPID.Timeout,
		})
	}
	for _, ch := range domain.AllChannels {
		_, ok := dcfg.Senders[ch]
		if ch == domain.ChannelPush {
			ok = dcfg.Push != nil
		}
		if !ok {
			logger.Warn("channel not configured, deliveries will report false", zap.String("channel", string(ch)))
		}
	}

	onDelivered, onPruned := m.DispatchHooks()
	dispatcher := dispatch.New(
		repository.NewPgRecipientRepository(pool),
		renderer,
		ratelimiter.New(cfg.RateLimit, cfg.ChannelRates),
		dcfg,
		dispatch.Hooks{OnDelivered: onDelivered, OnPruned: onPruned},
		logger.Named("dispatch"),
	)

	// ---- aggregators ----
	state := repository.NewPgStateRepository(pool)
	now := aggregator.Clock(time.Now)
	chat := aggregator.NewChatBacklog(store, state, dispatcher, cfg.BacklogAge, now, logger)
	moderation := aggregator.NewModeration(store, state, dispatcher, cfg.ModerationAge, now, logger)
	returns := aggregator.NewReturnReminders(store, state, dispatcher, cfg.Location, now, logger)
	reviews := aggregator.NewReviewReminders(store, state, dispatcher, cfg.ReviewDelay, now, logger)
	expiry := aggregator.NewApprovalExpiry(store, repository.NewPgBookingExpirer(pool), dispatcher, now, logger)

	coordinator := trigger.NewCoordinator([]trigger.Stage{
		{Name: trigger.StageChatUnread, Runner: chat},
		{Name: trigger.StageModerationReminders, Runner: moderation},
		{Name: trigger.StageReturnReminders, Runner: returns},
		{Name: trigger.StageReviewReminders, Runner: reviews},
		{Name: trigger.StageAutoRejected, Runner: expiry},
	}, m.StageHooks(), logger.Named("coordinator"))

	// ---- inline checks ----
	var shared trigger.Guard
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("invalid REDIS_URL", zap.Error(err))
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, shared inline throttle will fail open", zap.Error(err))
		}
		shared = trigger.NewRedisGuard(rdb, "", cfg.InlineThrottle, logger)
	}
	inline := trigger.NewInlineChecks(
		chat, moderation,
		trigger.NewLocalGuard(cfg.InlineThrottle), shared,
		cfg.InlineTimeout, m.InlineHook(), logger,
	)

	// Context for background goroutines; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	schedulerDone := make(chan struct{})
	if cfg.ScheduleInterval > 0 {
		scheduler := worker.NewScheduler(coordinator, cfg.ScheduleInterval, logger)
		go func() {
			defer close(schedulerDone)
			scheduler.Run(workerCtx)
		}()
	} else {
		close(schedulerDone)
	}

	// ---- HTTP server ----
	router := api.NewRouter(api.Deps{
		Pass:        coordinator,
		PassTimeout: cfg.PassTimeout,
		Inline:      inline,
		DB:          pool,
		CronSecret:  cfg.CronSecret,
		Registry:    reg,
	}, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests; in-flight cron runs finish.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Stop the in-process scheduler after its current pass.
	cancelWorkers()
	<-schedulerDone

	// 3. Let detached inline checks finish before the pools close.
	inline.Wait()

	logger.Info("server stopped cleanly")
}
