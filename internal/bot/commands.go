package bot

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

func (b *Bot) handleCommand(ctx context.Context, msg *CommandMessage) result {
	switch msg.Name {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return replied(helpText(b.opts.Provider))
	case "clear":
		return b.handleClear(ctx, msg)
	default:
		return replied(replyUnknownCommand)
	}
}

// handleStart asks the model for a personalised welcome and falls back to a
// fixed template when it cannot.
func (b *Bot) handleStart(ctx context.Context, msg *CommandMessage) result {
	name := msg.Sender.FirstName
	fallback := welcomeText(name, b.opts.Provider)

	named := ""
	if name != "" {
		named = "named " + name + " "
	}
	prompt := fmt.Sprintf("Generate a friendly welcome message for a new user %swho just started using "+
		"an AI assistant Telegram bot. Keep it concise and welcoming. "+
		"Mention that you're powered by %s and can help with text, images, and files. Ask how you can help.",
		named, b.opts.Provider)

	welcome, err := b.completer.Complete(ctx, prompt)
	if err != nil {
		return fellBack(fallback, err)
	}
	return replied(welcome)
}

func (b *Bot) handleClear(ctx context.Context, msg *CommandMessage) result {
	count, err := b.storage.ClearEntries(ctx, msg.Sender.ID)
	if err != nil {
		return fellBack(replyProcessingError, fmt.Errorf("clear conversation: %w", err))
	}

	b.logger.Info("Cleared conversation context",
		zap.Int64("user_id", msg.Sender.ID),
		zap.Int64("removed", count))
	return replied(replyCleared)
}
