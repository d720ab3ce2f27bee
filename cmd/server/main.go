package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hearthplan/hearthplan/internal/api"
	"github.com/hearthplan/hearthplan/internal/auth"
	"github.com/hearthplan/hearthplan/internal/automation"
	"github.com/hearthplan/hearthplan/internal/calendar"
	"github.com/hearthplan/hearthplan/internal/classify"
	"github.com/hearthplan/hearthplan/internal/config"
	"github.com/hearthplan/hearthplan/internal/database"
	"github.com/hearthplan/hearthplan/internal/filter"
	"github.com/hearthplan/hearthplan/internal/logging"
	"github.com/hearthplan/hearthplan/internal/merge"
	"github.com/hearthplan/hearthplan/internal/metrics"
	"github.com/hearthplan/hearthplan/internal/models"
	"github.com/hearthplan/hearthplan/internal/notify"
	"github.com/hearthplan/hearthplan/internal/pipeline"
	"github.com/hearthplan/hearthplan/internal/registration"
	"github.com/hearthplan/hearthplan/internal/scheduler"
	"github.com/hearthplan/hearthplan/internal/scoring"
	"github.com/hearthplan/hearthplan/internal/server"
	"github.com/hearthplan/hearthplan/internal/tokenstore"
	"github.com/hearthplan/hearthplan/internal/weather"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	logger.Info("starting hearthplan")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.Database.URL

	logger.Info("connecting to database")
	db, err := database.Connect(ctx, dbCfg)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("database connected")

	if err := database.RunMigrations(db, cfg.Database.MigrationsDir, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Repositories
	eventRepo := database.NewEventRepository(db)
	mergeRepo := database.NewMergeRecordRepository(db)
	notificationRepo := database.NewNotificationRepository(db)
	registrationRepo := database.NewRegistrationRepository(db)
	householdRepo := database.NewHouseholdRepository(db)
	tokenRepo := database.NewTokenRepository(db)

	collector, err := metrics.NewCollector()
	if err != nil {
		logger.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}

	// Token store backing email and calendar access.
	refresher := tokenstore.NewOAuthRefresher(cfg.OAuth.TokenURL, cfg.OAuth.ClientID, cfg.OAuth.ClientSecret)
	tokens := tokenstore.New(tokenRepo, refresher, logger)

	// Classifier: OpenAI when configured, rule-based fallback otherwise.
	var classifier classify.Classifier
	if cfg.OpenAI.APIKey != "" {
		openaiCfg := classify.DefaultOpenAIConfig()
		openaiCfg.APIKey = cfg.OpenAI.APIKey
		if cfg.OpenAI.Model != "" {
			openaiCfg.Model = cfg.OpenAI.Model
		}
		classifier = classify.NewOpenAIClassifier(openaiCfg, logger)
		logger.Info("using OpenAI age classifier", "model", openaiCfg.Model)
	} else {
		classifier = classify.NewRuleBased()
		logger.Warn("OPENAI_API_KEY not set, using rule-based age classification")
	}

	forecaster := weather.NewCache(
		weather.NewHTTPProvider(cfg.Weather.APIURL, cfg.Weather.APIKey),
		weather.DefaultCacheTTL,
	)

	var calendars calendar.Checker
	if cfg.Calendar.APIURL != "" {
		calendars = calendar.NewHTTPChecker(cfg.Calendar.APIURL, cfg.Calendar.UserID, tokens)
		logger.Info("calendar conflict checking enabled")
	} else {
		logger.Warn("CALENDAR_API_URL not set, skipping calendar conflict checks")
	}

	// Core engines
	merger := merge.NewEngine(cfg.Pipeline.FuzzyThreshold, logger)
	filterEngine := filter.NewEngine(classifier, forecaster, calendars, eventRepo, logger)
	configCache := filter.NewConfigCache(householdRepo, filter.DefaultConfigTTL)
	history := scoring.NewFeedbackScorer(eventRepo, func(event *models.CanonicalEvent) string {
		return merge.VenueToken(event.Location)
	})
	scorer := scoring.NewScorer(history, logger)

	senders := map[models.NotificationChannel]notify.Sender{
		models.ChannelSMS: notify.NewSMSSender(
			cfg.Notify.SMSAPIURL,
			cfg.Notify.SMSAccountSID,
			cfg.Notify.SMSAuthToken,
			cfg.Notify.SMSFromNumber,
		),
		models.ChannelEmail: notify.NewEmailSender(
			cfg.Notify.EmailAPIURL,
			cfg.Notify.EmailTokenUser,
			"email",
			cfg.Notify.EmailFrom,
			tokens,
		),
	}
	notifier := notify.NewService(notificationRepo, eventRepo, senders, cfg.Notify.ResponseWindow, collector, logger)

	registrar := registration.NewRegistrar(
		automation.NewHTTPDriver(cfg.Registration.AutomationURL),
		registrationRepo,
		eventRepo,
		householdRepo,
		int(cfg.Registration.EmergencyThreshold),
		collector,
		logger,
	)

	// The emergency stop must survive restarts.
	if count, err := registrationRepo.ViolationCount(ctx); err != nil {
		logger.Error("failed to load violation count", "error", err)
	} else {
		registrar.SeedViolations(count)
	}

	var connectors []pipeline.Connector
	for name, feedURL := range cfg.Pipeline.Sources {
		connectors = append(connectors, pipeline.NewHTTPConnector(name, feedURL))
	}
	if len(connectors) == 0 {
		logger.Warn("no sources configured, discovery runs will find nothing")
	}

	runner := pipeline.NewRunner(
		connectors,
		eventRepo,
		mergeRepo,
		merger,
		filterEngine,
		configCache,
		scorer,
		notifier,
		collector,
		pipeline.Config{
			FetchConcurrency:  cfg.Pipeline.FetchConcurrency,
			FilterConcurrency: cfg.Pipeline.FilterConcurrency,
			ProposeLimit:      cfg.Pipeline.ProposeLimit,
			FetchWindow:       cfg.Pipeline.FetchWindow,
			Recipient:         cfg.Notify.Recipient,
			Channel:           models.NotificationChannel(cfg.Notify.Channel),
			OrderMode:         scoring.OrderMode(cfg.Pipeline.OrderMode),
		},
		logger,
	)

	authConfig := auth.Config{
		JWTSecret:         cfg.Auth.JWTSecret,
		AdminUser:         cfg.Auth.AdminUser,
		AdminPasswordHash: cfg.Auth.AdminPasswordHash,
		TokenLifetime:     cfg.Auth.TokenLifetime,
	}
	if authConfig.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set, authenticated endpoints will reject all tokens")
	}

	mux := http.NewServeMux()
	api.SetupRoutes(mux, db, eventRepo, mergeRepo, householdRepo, registrar,
		notifier, runner, authConfig, collector.Handler(), logger)

	srv := server.New(cfg.Server, logger, collector.InstrumentHandler(mux))

	// Background loops
	discoverySched := scheduler.NewDiscoveryScheduler(runner, cfg.Pipeline.Interval, logger)
	timeoutSched := scheduler.NewTimeoutScheduler(notifier, 15*time.Minute, logger)
	retentionSched := scheduler.NewRetentionScheduler(eventRepo, registrationRepo, cfg.Pipeline.RetentionAge, logger)

	go discoverySched.Start(ctx)
	go timeoutSched.Start(ctx)
	go retentionSched.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "error", err)
		}
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	}

	cancel()
	discoverySched.Stop()
	timeoutSched.Stop()
	retentionSched.Stop()

	shutdownCtx := context.Background()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("hearthplan stopped")
}
