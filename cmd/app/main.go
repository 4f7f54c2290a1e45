package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"telegram-subscription-bot/internal/config"
	"telegram-subscription-bot/internal/domain/model"
	pg "telegram-subscription-bot/internal/infra/db/postgres"
	"telegram-subscription-bot/internal/infra/logging"
	"telegram-subscription-bot/internal/infra/metrics"
	"telegram-subscription-bot/internal/infra/payment"
	red "telegram-subscription-bot/internal/infra/redis"
	"telegram-subscription-bot/internal/infra/sched"
	tele "telegram-subscription-bot/internal/infra/telegram"
	"telegram-subscription-bot/internal/infra/web"
	"telegram-subscription-bot/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (verbose logs, unredacted phone numbers)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection failed")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)
	stateRepo := red.NewStateRepo(redisClient, cfg.Redis.StateTTL)

	// ---- Repositories ----
	accountRepo := pg.NewAccountRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	txRepo := pg.NewTransactionRepo(pool)
	requestRepo := pg.NewAccessRequestRepo(pool)
	jobRepo := pg.NewGroupJobRepo(pool)

	// ---- Telegram transport ----
	tgAdapter, err := tele.NewAdapter(&cfg.Bot, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("telegram adapter failed")
	}

	// ---- Payment gateway ----
	gateway := payment.NewDarajaGateway(cfg.Mpesa, logger, cfg.Runtime.Dev)

	// ---- Use cases ----
	pricing := usecase.TierPricing{
		model.TierShort:  cfg.Pricing.Short,
		model.TierMedium: cfg.Pricing.Medium,
		model.TierLong:   cfg.Pricing.Long,
	}
	userUC := usecase.NewUserUseCase(accountRepo, logger)
	subUC := usecase.NewSubscriptionUseCase(subRepo, accountRepo, logger)
	accessUC := usecase.NewAccessUseCase(tgAdapter, tgAdapter, jobRepo, logger)
	callbackUC := usecase.NewCallbackUseCase(txRepo, accountRepo, subUC, accessUC, tgAdapter, logger)
	paymentUC := usecase.NewPaymentUseCase(gateway, txRepo, userUC, pricing, logger)
	requestUC := usecase.NewRequestUseCase(requestRepo, userUC, subUC, accessUC, tgAdapter, pricing, logger)

	if perms := accessUC.CheckPermissions(ctx); !perms.CanRemove {
		logger.Warn().Err(perms.Err).Msg("bot lacks admin rights in the group; revocation will fail")
	}

	// ---- Bot polling ----
	handler := tele.NewHandler(tgAdapter, &cfg.Bot, userUC, subUC, paymentUC, requestUC, accessUC, stateRepo, rateLimiter, pricing, logger)
	go func() {
		if err := handler.StartPolling(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("telegram polling stopped")
		}
	}()

	// ---- HTTP server ----
	server := web.NewServer(&cfg.Web, callbackUC, requestUC, subUC, accessUC, userUC, logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Scheduler ----
	noticeWindow := time.Duration(cfg.Scheduler.NoticeWindowHours) * time.Hour
	workers := []interface{ Run(context.Context) error }{
		sched.NewExpiryWorker(cfg.Scheduler.ExpirySweep, subUC, accessUC, accountRepo, tgAdapter, logger),
		sched.NewPendingReconciler(cfg.Scheduler.PendingReconcile, txRepo, gateway, callbackUC, logger),
		sched.NewStaleCleanupWorker(cfg.Scheduler.StaleCleanup, txRepo, callbackUC, logger),
		sched.NewExpiryNoticeWorker(cfg.Scheduler.ExpiryNotice, noticeWindow, subUC, accountRepo, tgAdapter, rateLimiter, logger),
		sched.NewGroupJobWorker(cfg.Scheduler.GroupJobDrain, jobRepo, tgAdapter, logger),
	}
	for _, w := range workers {
		w := w
		go func() { _ = w.Run(ctx) }()
	}

	logger.Info().Msg("service started")

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()
	handler.StopPolling()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
}
