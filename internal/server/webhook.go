package server

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	webhookPrefix = "/webhook/"
	// Telegram updates are small; media arrives by file reference.
	webhookMaxBodyBytes int64 = 1 << 20
)

// UpdateHandler processes one decoded platform update.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update) error
}

// WebhookHandler receives Telegram webhook calls on /webhook/<token>.
type WebhookHandler struct {
	token   string
	updates UpdateHandler
	logger  *zap.Logger
}

func NewWebhookHandler(token string, updates UpdateHandler, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{token: token, updates: updates, logger: logger}
}

// WebhookPath is the path the platform must be configured to call.
func WebhookPath(token string) string {
	return webhookPrefix + token
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST(webhookPrefix+":token", h.Handle)
}

func (h *WebhookHandler) Handle(c echo.Context) error {
	if !h.validToken(c.Param("token")) {
		return echo.NewHTTPError(http.StatusNotFound)
	}
	if h.updates == nil {
		h.logger.Error("Bot not initialized")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Bot not initialized"})
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, webhookMaxBodyBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Failed to read body")
	}
	if int64(len(payload)) > webhookMaxBodyBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "Payload too large")
	}

	update, err := decodeUpdate(payload)
	if err != nil {
		h.logger.Warn("Rejected webhook update", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	// The platform may drop the connection; the update still runs to completion.
	ctx := context.WithoutCancel(c.Request().Context())
	if err := h.updates.HandleUpdate(ctx, update); err != nil {
		h.logger.Error("Failed to process update", zap.Int("update_id", update.UpdateID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to process update"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *WebhookHandler) validToken(token string) bool {
	return h.token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) == 1
}

type decodeError string

func (e decodeError) Error() string { return string(e) }

const (
	errEmptyUpdate   = decodeError("Empty update")
	errInvalidUpdate = decodeError("Invalid JSON")
)

// decodeUpdate rejects empty payloads ("", null, {}) and anything that is not
// a JSON object shaped like an update.
func decodeUpdate(payload []byte) (tgbotapi.Update, error) {
	var update tgbotapi.Update
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return update, errEmptyUpdate
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return update, errInvalidUpdate
	}
	if len(fields) == 0 {
		return update, errEmptyUpdate
	}
	if err := json.Unmarshal(payload, &update); err != nil {
		return update, errInvalidUpdate
	}
	return update, nil
}

// redactToken hides the bot token carried in webhook paths and URLs.
func redactToken(s string) string {
	i := strings.Index(s, webhookPrefix)
	if i < 0 || len(s) == i+len(webhookPrefix) {
		return s
	}
	return s[:i+len(webhookPrefix)] + "***"
}
