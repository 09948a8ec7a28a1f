package bot

import "fmt"

const (
	replyTechnicalDifficulties = "I'm experiencing some technical difficulties right now. Please try again later."
	replyNoResponse            = "I'm sorry, I couldn't generate a response right now."
	replyProcessingError       = "Sorry, I encountered an error processing your message. Please try again."
	replyPromptForInput        = "Please send me a message and I'll be happy to help! 😊"

	replyNoPhoto           = "I didn't receive any photo. Please try sending it again."
	replyPhotoDownload     = "Sorry, I couldn't download your image. Please try again."
	replyPhotoFailed       = "I'm sorry, I couldn't analyze this image. Please try again later."
	replyNoImageAnalysis   = "I could not analyze this image."
	replyDocumentDownload  = "Sorry, I couldn't download your file. Please try again."
	replyDocumentFailed    = "I'm sorry, I couldn't analyze this document. Please try again later."
	replyNoDocumentSummary = "I could not analyze this document."

	replyCleared        = "✅ Conversation history cleared! We can start fresh."
	replyUnknownCommand = "❓ Unknown command. Use /help to see available commands or just send me a message to chat!"

	editedPrefix = "📝 *Updated response:*\n\n"
)

func helpText(provider string) string {
	return "🤖 *AI Assistant Bot Help*\n\n" +
		"*Available Commands:*\n" +
		"/start - Start a conversation with the bot\n" +
		"/help - Show this help message\n" +
		"/clear - Clear conversation history\n\n" +
		"*Features:*\n" +
		"• Ask me anything and I'll provide intelligent responses\n" +
		"• I remember our conversation context across sessions\n" +
		"• Send me images and I'll analyze them\n" +
		"• Send me text files and I'll read and analyze them\n" +
		"• Powered by " + provider + "\n\n" +
		"*Examples:*\n" +
		"• \"What's the weather like?\"\n" +
		"• \"Explain quantum physics simply\"\n" +
		"• Send a photo and ask \"What do you see?\"\n" +
		"• Upload a text document for analysis"
}

func welcomeText(name, provider string) string {
	greeting := "Welcome"
	if name != "" {
		greeting += " " + name
	}
	return fmt.Sprintf("%s! I'm an AI assistant powered by %s. I can help with text, images, and files. How can I help you today?",
		greeting, provider)
}

func unreadableDocumentText(name string) string {
	return fmt.Sprintf("I received your document '%s' but couldn't read its content. It might be in a format I can't process yet.", name)
}

func unsupportedDocumentText(name, mimeType string) string {
	if mimeType == "" {
		mimeType = "unknown type"
	}
	return fmt.Sprintf("I received your file '%s' (%s). I can currently analyze text files and images. For other file types, please let me know what you'd like to know about it!",
		name, mimeType)
}
