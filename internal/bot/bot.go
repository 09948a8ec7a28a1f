package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/chat-gateway/internal/completion"
	"github.com/xaenox/chat-gateway/internal/events"
	"github.com/xaenox/chat-gateway/internal/media"
	"github.com/xaenox/chat-gateway/internal/storage"
	"go.uber.org/zap"
)

const (
	DefaultContextMessages  = 10
	DefaultMaxDocumentBytes = 20 * 1024 * 1024
	DefaultTextCharBudget   = 4000
	DefaultProvider         = "Google Gemini AI"
)

// Messenger delivers replies back to the messaging platform.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string, parseMode string) error
	SendTyping(ctx context.Context, chatID int64) error
}

// Downloader fetches a platform file into a scoped temporary location.
type Downloader interface {
	WithFile(ctx context.Context, fileID, name string, fn func(*media.File) error) error
}

type Options struct {
	// HistoryLimit is how many entries are fetched from the store, and
	// ContextMessages how many of those are rendered into the prompt.
	HistoryLimit     int
	ContextMessages  int
	MaxDocumentBytes int64
	TextCharBudget   int
	// Provider names the model vendor in welcome and help texts.
	Provider string
}

func (o Options) withDefaults() Options {
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = storage.DefaultHistoryLimit
	}
	if o.ContextMessages <= 0 {
		o.ContextMessages = DefaultContextMessages
	}
	if o.MaxDocumentBytes <= 0 {
		o.MaxDocumentBytes = DefaultMaxDocumentBytes
	}
	if o.TextCharBudget <= 0 {
		o.TextCharBudget = DefaultTextCharBudget
	}
	if o.Provider == "" {
		o.Provider = DefaultProvider
	}
	return o
}

type Bot struct {
	messenger Messenger
	transfer  Downloader
	storage   storage.Storage
	completer completion.Completer
	events    events.Publisher
	opts      Options
	locks     *userLocks
	logger    *zap.Logger
}

func New(messenger Messenger, transfer Downloader, storage storage.Storage, completer completion.Completer,
	publisher events.Publisher, opts Options, logger *zap.Logger) *Bot {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Bot{
		messenger: messenger,
		transfer:  transfer,
		storage:   storage,
		completer: completer,
		events:    publisher,
		opts:      opts.withDefaults(),
		locks:     newUserLocks(),
		logger:    logger,
	}
}

// result is the outcome of one handling path.
type result struct {
	reply   string
	outcome string
	kind    Kind
	err     error
}

func replied(text string) result {
	return result{reply: text, outcome: events.OutcomeOK}
}

func fellBack(text string, err error) result {
	return result{reply: text, outcome: events.OutcomeFallback, kind: KindOf(err), err: err}
}

func rejected(text string, kind Kind) result {
	return result{reply: text, outcome: events.OutcomeRejected, kind: kind}
}

// HandleUpdate processes one webhook update and sends the reply. Every
// failure is turned into a chat reply except storage unavailability, which is
// returned so the platform sees the update as not handled.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	in := Classify(update)
	if _, ok := in.(*UnknownUpdate); ok {
		b.logger.Warn("Ignoring unhandled update type", zap.Int("update_id", update.UpdateID))
		return nil
	}

	env := in.envelope()
	unlock := b.locks.lock(env.Sender.ID)
	defer unlock()

	start := time.Now()
	if err := b.messenger.SendTyping(ctx, env.ChatID); err != nil {
		b.logger.Warn("Failed to send typing action", zap.Int64("chat_id", env.ChatID), zap.Error(err))
	}

	path, res := b.route(ctx, in)
	b.record(ctx, env, path, res, time.Since(start))

	if errors.Is(res.err, storage.ErrUnavailable) {
		return fmt.Errorf("handle %s update from user %d: %w", path, env.Sender.ID, res.err)
	}

	reply := res.reply
	if env.Edited {
		reply = editedPrefix + reply
	}
	if err := b.messenger.SendText(ctx, env.ChatID, reply, tgbotapi.ModeMarkdown); err != nil {
		b.logger.Error("Failed to send reply",
			zap.Error(err),
			zap.Int64("chat_id", env.ChatID),
			zap.String("path", path))
	}
	return nil
}

func (b *Bot) route(ctx context.Context, in Inbound) (string, result) {
	switch msg := in.(type) {
	case *PhotoMessage:
		return "photo", b.handlePhoto(ctx, msg)
	case *DocumentMessage:
		return "document", b.handleDocument(ctx, msg)
	case *CommandMessage:
		return "command", b.handleCommand(ctx, msg)
	case *TextMessage:
		return "text", b.handleText(ctx, msg)
	default:
		return "empty", replied(replyPromptForInput)
	}
}

func (b *Bot) record(ctx context.Context, env *Envelope, path string, res result, elapsed time.Duration) {
	fields := []zap.Field{
		zap.Int64("user_id", env.Sender.ID),
		zap.Int64("chat_id", env.ChatID),
		zap.String("path", path),
		zap.String("outcome", res.outcome),
		zap.Bool("edited", env.Edited),
		zap.Duration("elapsed", elapsed),
	}
	if res.kind != "" {
		fields = append(fields, zap.String("error_kind", string(res.kind)))
	}

	switch {
	case res.err != nil:
		b.logger.Error("Update handled with fallback", append(fields, zap.Error(res.err))...)
	case res.outcome == events.OutcomeRejected:
		b.logger.Info("Update rejected", fields...)
	default:
		b.logger.Info("Update handled", fields...)
	}

	outcome := res.outcome
	if errors.Is(res.err, storage.ErrUnavailable) {
		outcome = events.OutcomeFailed
	}
	err := b.events.Publish(ctx, events.Exchange{
		UserID:     env.Sender.ID,
		ChatID:     env.ChatID,
		Path:       path,
		Edited:     env.Edited,
		Outcome:    outcome,
		ErrorKind:  string(res.kind),
		DurationMS: elapsed.Milliseconds(),
	})
	if err != nil {
		b.logger.Warn("Failed to publish exchange event", zap.Error(err))
	}
}
