package server

import (
	"context"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const storagePingTimeout = 3 * time.Second

type WebhookInspector interface {
	WebhookInfo() (tgbotapi.WebhookInfo, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// StatusHandler serves the health and webhook-info endpoints.
type StatusHandler struct {
	botReady        bool
	tokenConfigured bool
	keyConfigured   bool
	inspector       WebhookInspector
	storage         Pinger
	logger          *zap.Logger
}

type StatusOptions struct {
	BotReady        bool
	TokenConfigured bool
	KeyConfigured   bool
	Inspector       WebhookInspector
	Storage         Pinger
}

func NewStatusHandler(opts StatusOptions, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{
		botReady:        opts.BotReady,
		tokenConfigured: opts.TokenConfigured,
		keyConfigured:   opts.KeyConfigured,
		inspector:       opts.Inspector,
		storage:         opts.Storage,
		logger:          logger,
	}
}

func (h *StatusHandler) Register(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.GET("/webhook_info", h.WebhookInfo)
}

type healthResponse struct {
	Status                  string `json:"status"`
	BotInitialized          bool   `json:"bot_initialized"`
	TelegramTokenConfigured bool   `json:"telegram_token_configured"`
	CompletionKeyConfigured bool   `json:"completion_key_configured"`
	StorageReachable        bool   `json:"storage_reachable"`
}

// Health always answers 200; degraded dependencies are reported in the body.
func (h *StatusHandler) Health(c echo.Context) error {
	resp := healthResponse{
		Status:                  "healthy",
		BotInitialized:          h.botReady,
		TelegramTokenConfigured: h.tokenConfigured,
		CompletionKeyConfigured: h.keyConfigured,
	}

	if h.storage != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), storagePingTimeout)
		defer cancel()
		if err := h.storage.Ping(ctx); err != nil {
			h.logger.Warn("Storage ping failed", zap.Error(err))
			resp.Status = "degraded"
		} else {
			resp.StorageReachable = true
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *StatusHandler) WebhookInfo(c echo.Context) error {
	if h.inspector == nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Bot not initialized"})
	}
	info, err := h.inspector.WebhookInfo()
	if err != nil {
		h.logger.Error("Error getting webhook info", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	info.URL = redactToken(info.URL)
	return c.JSON(http.StatusOK, info)
}
