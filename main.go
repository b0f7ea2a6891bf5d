package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"options-advisor/config"
	"options-advisor/internal/api"
	"options-advisor/internal/database"
	"options-advisor/internal/engine"
	"options-advisor/internal/events"
	"options-advisor/internal/logging"
	"options-advisor/internal/marketdata"
	"options-advisor/internal/notification"
	"options-advisor/internal/position"
	"options-advisor/internal/roll"
	"options-advisor/internal/scan"
	"options-advisor/internal/snapshot"
	"options-advisor/internal/technical"
	"options-advisor/internal/vault"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(logging.Config{
		Level:   cfg.LoggingConfig.Level,
		Console: cfg.LoggingConfig.Console,
	})
	logger.Info().Msg("Structured logging initialized")

	ctx := context.Background()

	// Resolve secrets from Vault (environment fallback when disabled)
	secrets, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		log.Fatalf("Failed to initialize secrets client: %v", err)
	}
	resolveSecrets(ctx, secrets, cfg)

	// Initialize event bus
	eventBus := events.NewBus()

	// Initialize notification manager
	notifyManager := notification.NewManager(cfg.NotificationConfig.Enabled)
	if cfg.NotificationConfig.Enabled {
		if cfg.NotificationConfig.Telegram.Enabled {
			notifyManager.AddNotifier(notification.NewTelegramNotifier(notification.TelegramConfig{
				BotToken: cfg.NotificationConfig.Telegram.BotToken,
				ChatID:   cfg.NotificationConfig.Telegram.ChatID,
				Enabled:  cfg.NotificationConfig.Telegram.Enabled,
			}))
			logger.Info().Msg("Telegram notifications enabled")
		}
		if cfg.NotificationConfig.Discord.Enabled {
			notifyManager.AddNotifier(notification.NewDiscordNotifier(notification.DiscordConfig{
				WebhookURL: cfg.NotificationConfig.Discord.WebhookURL,
				Enabled:    cfg.NotificationConfig.Discord.Enabled,
			}))
			logger.Info().Msg("Discord notifications enabled")
		}
	}

	// Initialize database
	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	repo := database.NewRepository(db)

	// Scan-state store: Redis when configured, in-memory otherwise
	var redisClient *redis.Client
	if cfg.RedisConfig.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Addr,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		})
	}
	loc, err := time.LoadLocation(cfg.ScanConfig.Timezone)
	if err != nil {
		log.Fatalf("Invalid scan timezone: %v", err)
	}
	stateStore := scan.NewStateStore(redisClient, loc, logger)

	// Market data gateway: Yahoo first, Finnhub as fallback when keyed
	providers := []marketdata.Provider{marketdata.NewYahooProvider()}
	if cfg.MarketDataConfig.FinnhubAPIKey != "" {
		providers = append(providers, marketdata.NewFinnhubProvider(marketdata.FinnhubConfig{
			APIKey:  cfg.MarketDataConfig.FinnhubAPIKey,
			BaseURL: cfg.MarketDataConfig.FinnhubBaseURL,
			Timeout: cfg.MarketDataConfig.CallTimeout,
		}))
	}
	market := marketdata.NewGateway(marketdata.GatewayConfig{
		CallTimeout:           cfg.MarketDataConfig.CallTimeout,
		MarketHoursTTL:        cfg.MarketDataConfig.MarketHoursTTL,
		OffHoursTTL:           cfg.MarketDataConfig.OffHoursTTL,
		BreakerFailures:       cfg.MarketDataConfig.BreakerFailures,
		BreakerCooldown:       cfg.MarketDataConfig.BreakerCooldown,
		OnProviderStateChange: eventBus.PublishProviderDegraded,
	}, logger, providers...)
	logger.Info().Int("providers", len(providers)).Msg("Market data gateway initialized")

	// Decision pipeline
	tech := technical.NewService(market, logger)
	finder := roll.NewFinder(market, tech, logger)
	evaluator := engine.NewEvaluator(finder, tech, market, cfg.PolicyConfig, logger)

	book := position.NewBook()
	snapshots := snapshot.NewFileSource(cfg.ScanConfig.PositionsFile, logger)

	sink := &scanSink{
		repo:   repo,
		bus:    eventBus,
		notify: notifyManager,
		logger: logger.With().Str("component", "sink").Logger(),
	}

	scheduler, err := scan.NewScheduler(snapshots, evaluator, book, stateStore, sink, cfg.ScanConfig, logger)
	if err != nil {
		log.Fatalf("Failed to initialize scan scheduler: %v", err)
	}

	// Initialize web server
	server := api.NewServer(repo, book, scheduler, market, eventBus, cfg.ServerConfig, logger)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("Failed to start web server: %v", err)
		}
	}()

	if cfg.ScanConfig.Enabled {
		scheduler.Start()
		logger.Info().
			Str("timezone", cfg.ScanConfig.Timezone).
			Str("positions_file", cfg.ScanConfig.PositionsFile).
			Msg("Scan scheduler started")
	} else {
		logger.Warn().Msg("Scan scheduler disabled, scans run on demand only")
	}

	logger.Info().
		Str("host", cfg.ServerConfig.Host).
		Int("port", cfg.ServerConfig.Port).
		Msg("Options advisor running")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer cancel()

	scheduler.Stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error shutting down web server")
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}

	logger.Info().Msg("Shutdown complete")
}

// resolveSecrets overlays Vault-managed credentials onto the config.
// Each falls back to its environment variable when Vault has no value.
func resolveSecrets(ctx context.Context, secrets *vault.Client, cfg *config.Config) {
	if v := secrets.SecretOrEmpty(ctx, "finnhub_api_key"); v != "" {
		cfg.MarketDataConfig.FinnhubAPIKey = v
	}
	if v := secrets.SecretOrEmpty(ctx, "db_password"); v != "" {
		cfg.DatabaseConfig.Password = v
	}
	if v := secrets.SecretOrEmpty(ctx, "redis_password"); v != "" {
		cfg.RedisConfig.Password = v
	}
	if v := secrets.SecretOrEmpty(ctx, "telegram_bot_token"); v != "" {
		cfg.NotificationConfig.Telegram.BotToken = v
	}
	if v := secrets.SecretOrEmpty(ctx, "discord_webhook_url"); v != "" {
		cfg.NotificationConfig.Discord.WebhookURL = v
	}
}

// scanSink fans scan output out to persistence, the event bus and the
// notification manager. Failures in any one surface are logged and do
// not block the others.
type scanSink struct {
	repo   *database.Repository
	bus    *events.Bus
	notify *notification.Manager
	logger zerolog.Logger
}

func (s *scanSink) Recommendation(ctx context.Context, res *engine.EvaluationResult) {
	rec := &database.Recommendation{
		PositionID: res.PositionID,
		Symbol:     res.Symbol,
		Account:    res.Account,
		Action:     string(res.Action),
		Priority:   string(res.Priority),
		Reason:     res.Reason,
	}
	if res.ProposedStrike > 0 {
		strike := res.ProposedStrike
		rec.ProposedStrike = &strike
	}
	if !res.ProposedExpiration.IsZero() {
		exp := res.ProposedExpiration
		rec.ProposedExpiration = &exp
	}
	if res.Candidate != nil {
		netCost := res.NetCost
		rec.NetCost = &netCost
	}
	if res.ITMPercent != 0 {
		itm := res.ITMPercent
		rec.ITMPercent = &itm
	}

	if err := s.repo.CreateRecommendation(ctx, rec); err != nil {
		s.logger.Error().Err(err).
			Str("symbol", res.Symbol).
			Msg("Failed to persist recommendation")
		s.bus.PublishError("sink", "failed to persist recommendation", err)
	}

	s.bus.Publish(events.Event{
		Type: events.EventRecommendation,
		Data: map[string]interface{}{
			"recommendation": res,
		},
	})

	if err := s.notify.SendRecommendation(res); err != nil {
		s.logger.Warn().Err(err).
			Str("symbol", res.Symbol).
			Msg("Failed to send recommendation notification")
	}
}

func (s *scanSink) Resolution(ctx context.Context, pos position.Position) {
	ev := &database.ResolutionEvent{
		PositionID: pos.ID,
		Symbol:     pos.Symbol,
		Account:    pos.Account,
		Kind:       string(pos.Kind),
		ResolvedAt: time.Now(),
	}
	if pos.IsOption() {
		strike := pos.Strike
		exp := pos.Expiration
		ev.Strike = &strike
		ev.Expiration = &exp
	}

	if err := s.repo.CreateResolutionEvent(ctx, ev); err != nil {
		s.logger.Error().Err(err).
			Str("symbol", pos.Symbol).
			Msg("Failed to persist resolution event")
		s.bus.PublishError("sink", "failed to persist resolution event", err)
	}

	s.bus.Publish(events.Event{
		Type: events.EventPositionResolved,
		Data: map[string]interface{}{
			"position": pos,
		},
	})

	if err := s.notify.SendResolution(pos); err != nil {
		s.logger.Warn().Err(err).
			Str("symbol", pos.Symbol).
			Msg("Failed to send resolution notification")
	}
}

func (s *scanSink) ScanCompleted(ctx context.Context, report scan.Report) {
	run := &database.ScanRun{
		ID:        report.ID,
		Kind:      string(report.Kind),
		StartedAt: report.StartedAt,
		Duration:  report.Duration,
		Evaluated: report.Evaluated,
		Emitted:   report.Emitted,
		Resolved:  report.Resolved,
		Skipped:   report.Skipped,
	}
	if err := s.repo.CreateScanRun(ctx, run); err != nil {
		s.logger.Error().Err(err).
			Str("kind", string(report.Kind)).
			Msg("Failed to persist scan run")
	}

	s.bus.Publish(events.Event{
		Type: events.EventScanCompleted,
		Data: map[string]interface{}{
			"report": report,
		},
	})

	if err := s.notify.SendScanSummary(string(report.Kind), report.Evaluated, report.Emitted, report.Resolved, report.Duration); err != nil {
		s.logger.Warn().Err(err).
			Str("kind", string(report.Kind)).
			Msg("Failed to send scan summary")
	}
}
