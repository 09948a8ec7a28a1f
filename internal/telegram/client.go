package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const (
	DefaultAPITimeout = 10 * time.Second
	maxMessageLength  = 4096
)

// Client wraps the Bot API calls the gateway needs.
type Client struct {
	api    *tgbotapi.BotAPI
	logger *zap.Logger
}

// New connects to the Bot API. Every call, including the file metadata lookup,
// is bounded by apiTimeout.
func New(token string, apiTimeout time.Duration, logger *zap.Logger) (*Client, error) {
	return NewWithEndpoint(token, tgbotapi.APIEndpoint, apiTimeout, logger)
}

func NewWithEndpoint(token, endpoint string, apiTimeout time.Duration, logger *zap.Logger) (*Client, error) {
	if apiTimeout <= 0 {
		apiTimeout = DefaultAPITimeout
	}
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: apiTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	logger.Info("Authorized on Telegram", zap.String("username", api.Self.UserName))
	return &Client{api: api, logger: logger}, nil
}

func (c *Client) Username() string {
	return c.api.Self.UserName
}

// SendText delivers text to the chat. When the platform rejects the markup the
// text is re-sent without a parse mode.
func (c *Client) SendText(ctx context.Context, chatID int64, text string, parseMode string) error {
	msg := tgbotapi.NewMessage(chatID, truncateText(sanitizeText(text)))
	msg.ParseMode = parseMode

	_, err := c.api.Send(msg)
	if err != nil && parseMode != "" && isParseError(err) {
		c.logger.Warn("Markup rejected, resending as plain text",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
		msg.ParseMode = ""
		_, err = c.api.Send(msg)
	}
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (c *Client) SendTyping(ctx context.Context, chatID int64) error {
	action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	if _, err := c.api.Request(action); err != nil {
		return fmt.Errorf("send chat action: %w", err)
	}
	return nil
}

// FileURL resolves a file id through getFile into a direct download URL.
func (c *Client) FileURL(ctx context.Context, fileID string) (string, error) {
	url, err := c.api.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("get file: %w", err)
	}
	return url, nil
}

// SetWebhook registers the webhook target, dropping updates queued while the
// gateway was offline.
func (c *Client) SetWebhook(webhookURL string) error {
	wh, err := tgbotapi.NewWebhook(webhookURL)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	wh.DropPendingUpdates = true

	if _, err := c.api.Request(wh); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	c.logger.Info("Webhook set", zap.String("host", wh.URL.Host))
	return nil
}

func (c *Client) WebhookInfo() (tgbotapi.WebhookInfo, error) {
	info, err := c.api.GetWebhookInfo()
	if err != nil {
		return tgbotapi.WebhookInfo{}, fmt.Errorf("get webhook info: %w", err)
	}
	return info, nil
}

func apiError(err error) (tgbotapi.Error, bool) {
	var ptr *tgbotapi.Error
	if errors.As(err, &ptr) && ptr != nil {
		return *ptr, true
	}
	var val tgbotapi.Error
	if errors.As(err, &val) {
		return val, true
	}
	return tgbotapi.Error{}, false
}

func isParseError(err error) bool {
	apiErr, ok := apiError(err)
	return ok && apiErr.Code == http.StatusBadRequest && strings.Contains(apiErr.Message, "can't parse entities")
}

// sanitizeText drops invalid UTF-8 sequences the Bot API would reject.
func sanitizeText(text string) string {
	if utf8.ValidString(text) {
		return text
	}
	return strings.ToValidUTF8(text, "")
}

// truncateText cuts text to the platform limit on a rune boundary.
func truncateText(text string) string {
	if len(text) <= maxMessageLength {
		return text
	}
	const suffix = "..."
	cut := maxMessageLength - len(suffix)
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + suffix
}
