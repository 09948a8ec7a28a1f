package main

import (
	"context"
	"fmt"
	"time"

	"github.com/xaenox/chat-gateway/internal/bot"
	"github.com/xaenox/chat-gateway/internal/completion"
	"github.com/xaenox/chat-gateway/internal/events"
	"github.com/xaenox/chat-gateway/internal/media"
	"github.com/xaenox/chat-gateway/internal/server"
	"github.com/xaenox/chat-gateway/internal/storage"
	"github.com/xaenox/chat-gateway/internal/telegram"
	"github.com/xaenox/chat-gateway/pkg/config"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func runServe(ctx context.Context, configPath string) error {
	cfg, logger, err := setup(configPath)
	if err != nil {
		return err
	}
	defer logger.Sync()

	store, err := newStorage(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("Failed to initialize storage", zap.Error(err))
		return err
	}
	defer store.Close()

	tg, err := telegram.New(cfg.Telegram.Token, cfg.Telegram.APITimeout, logger)
	if err != nil {
		logger.Error("Failed to create Telegram client", zap.Error(err))
		return err
	}

	publisher, err := newPublisher(cfg.Events, logger)
	if err != nil {
		logger.Error("Failed to connect event publisher", zap.Error(err))
		return err
	}
	defer publisher.Close()

	transfer := media.NewTransfer(tg, media.Options{
		Timeout:  cfg.Telegram.DownloadTimeout,
		TempDir:  cfg.Media.TempDir,
		MaxBytes: cfg.Media.MaxDocumentBytes,
	}, logger)

	completer := completion.NewOpenAIClient(completion.Config{
		APIKey:      cfg.Completion.APIKey,
		BaseURL:     cfg.Completion.BaseURL,
		Model:       cfg.Completion.Model,
		VisionModel: cfg.Completion.VisionModel,
		MaxTokens:   cfg.Completion.MaxTokens,
		Temperature: cfg.Completion.Temperature,
		Timeout:     cfg.Completion.Timeout,
	}, logger)

	b := bot.New(tg, transfer, store, completer, publisher, bot.Options{
		HistoryLimit:     cfg.Conversation.HistoryLimit,
		ContextMessages:  cfg.Conversation.ContextMessages,
		MaxDocumentBytes: cfg.Media.MaxDocumentBytes,
		TextCharBudget:   cfg.Media.TextCharBudget,
		Provider:         cfg.Completion.ProviderName,
	}, logger)

	logger.Info("Bot initialized", zap.String("username", tg.Username()))

	if webhookURL := cfg.WebhookURL(server.WebhookPath(cfg.Telegram.Token)); webhookURL != "" {
		if err := tg.SetWebhook(webhookURL); err != nil {
			logger.Error("Failed to set webhook", zap.Error(err))
		}
	} else {
		logger.Warn("No webhook URL configured, skipping webhook registration")
	}

	srv := server.NewServer(cfg.Server.Addr(), logger,
		server.NewWebhookHandler(cfg.Telegram.Token, b, logger),
		server.NewStatusHandler(server.StatusOptions{
			BotReady:        true,
			TokenConfigured: cfg.Telegram.Token != "",
			KeyConfigured:   cfg.Completion.APIKey != "",
			Inspector:       tg,
			Storage:         store,
		}, logger),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server stopped", zap.Error(err))
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}

func newStorage(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (storage.Storage, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		logger.Info("Using PostgreSQL storage", zap.String("host", cfg.Host), zap.String("dbname", cfg.DBName))
		return storage.NewPostgresStorage(storage.DatabaseConfig{
			Host:     cfg.Host,
			Port:     cfg.Port,
			User:     cfg.User,
			Password: cfg.Password,
			DBName:   cfg.DBName,
			SSLMode:  cfg.SSLMode,
			URL:      cfg.URL,
		}, logger)
	case config.DriverMongo:
		logger.Info("Using MongoDB storage", zap.String("database", cfg.MongoDatabase))
		return storage.NewMongoStorage(ctx, cfg.URL, cfg.MongoDatabase, logger)
	default:
		logger.Info("Using in-memory storage")
		return storage.NewMemoryStorage(), nil
	}
}

func newPublisher(cfg config.EventsConfig, logger *zap.Logger) (events.Publisher, error) {
	if cfg.NATSURL == "" {
		return events.NopPublisher{}, nil
	}
	return events.NewNATSPublisher(cfg.NATSURL, cfg.Subject, logger)
}
