package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/xaenox/chat-gateway/internal/completion"
	"github.com/xaenox/chat-gateway/internal/models"
	"github.com/xaenox/chat-gateway/internal/storage"
	"go.uber.org/zap"
)

func (b *Bot) handleText(ctx context.Context, msg *TextMessage) result {
	messageID := msg.MessageID
	reply, err := b.converse(ctx, msg.Sender, msg.Text, &messageID)
	if err != nil {
		return fellBack(replyTechnicalDifficulties, err)
	}
	return replied(reply)
}

// converse records the user's turn, asks the model with the recent history as
// context and records the answer. The two writes are independent: a failed
// completion leaves the user turn stored without a reply.
func (b *Bot) converse(ctx context.Context, sender models.Profile, text string, messageID *int) (string, error) {
	if _, err := b.storage.UpsertUser(ctx, sender); err != nil {
		return "", fmt.Errorf("upsert user: %w", err)
	}

	entry := storage.NewEntry(sender.ID, models.RoleUser, text, messageID)
	if err := b.storage.AppendEntry(ctx, entry); err != nil {
		return "", fmt.Errorf("save user message: %w", err)
	}

	recent, err := b.storage.RecentEntries(ctx, sender.ID, b.opts.HistoryLimit)
	if err != nil {
		return "", fmt.Errorf("load conversation context: %w", err)
	}
	window := contextWindow(recent, b.opts.ContextMessages)

	prompt := buildPrompt(sender.DisplayName(), b.opts.Provider, text, window, hasPriorEntries(window, entry.ID))
	answer, err := b.completer.Complete(ctx, prompt)
	if errors.Is(err, completion.ErrEmptyCompletion) {
		b.logger.Warn("Empty completion, using canned reply", zap.Int64("user_id", sender.ID))
		answer = replyNoResponse
	} else if err != nil {
		return "", fmt.Errorf("generate response: %w", err)
	}

	if err := b.storage.AppendEntry(ctx, storage.NewEntry(sender.ID, models.RoleAssistant, answer, nil)); err != nil {
		return "", fmt.Errorf("save assistant message: %w", err)
	}
	return answer, nil
}

// contextWindow keeps the newest n entries of a chronological slice.
func contextWindow(entries []*models.ConversationEntry, n int) []*models.ConversationEntry {
	if len(entries) > n {
		return entries[len(entries)-n:]
	}
	return entries
}

func hasPriorEntries(window []*models.ConversationEntry, currentID string) bool {
	for _, entry := range window {
		if entry.ID != currentID {
			return true
		}
	}
	return false
}

func systemPrompt(name, provider string) string {
	return "You are a helpful AI assistant integrated into a Telegram bot. " +
		"Provide helpful, accurate, and concise responses. " +
		"Be friendly and conversational. " +
		"If asked about your capabilities, mention that you're powered by " + provider + " and can process text, images, and files. " +
		"The user's name is " + name + ". " +
		"Keep responses relatively short for chat format unless detailed information is requested."
}

// buildPrompt renders the system instruction followed by either the history
// section or, for a first message, the raw message.
func buildPrompt(name, provider, message string, window []*models.ConversationEntry, withHistory bool) string {
	var sb strings.Builder
	sb.WriteString(systemPrompt(name, provider))

	if !withHistory || len(window) == 0 {
		sb.WriteString("\n\nUser message: ")
		sb.WriteString(message)
		return sb.String()
	}

	sb.WriteString("\n\nConversation history:\n")
	for i, entry := range window {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(capitalize(string(entry.Role)))
		sb.WriteString(": ")
		sb.WriteString(entry.Content)
	}
	sb.WriteString("\n\nPlease respond to the latest user message.")
	return sb.String()
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
