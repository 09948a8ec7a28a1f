package bot

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/chat-gateway/internal/models"
)

const commandPrefix = "/"

// Envelope carries the fields shared by every routable message.
type Envelope struct {
	ChatID    int64
	MessageID int
	Sender    models.Profile
	Edited    bool
}

// Inbound is the closed set of update shapes the gateway understands:
// *CommandMessage, *TextMessage, *PhotoMessage, *DocumentMessage,
// *EmptyMessage and *UnknownUpdate.
type Inbound interface {
	envelope() *Envelope
}

func (e *Envelope) envelope() *Envelope { return e }

type CommandMessage struct {
	Envelope
	Name string
	Args string
}

type TextMessage struct {
	Envelope
	Text string
}

type PhotoMessage struct {
	Envelope
	Sizes   []tgbotapi.PhotoSize
	Caption string
}

type DocumentMessage struct {
	Envelope
	FileID   string
	FileName string
	MimeType string
	FileSize int64
	Caption  string
}

// EmptyMessage is a message with no media and only whitespace text.
type EmptyMessage struct {
	Envelope
}

// UnknownUpdate is anything without a message or edited_message payload.
type UnknownUpdate struct {
	Envelope
}

// Classify decodes an update into exactly one Inbound variant. Media takes
// precedence over text: photo first, then document, then command, text and
// finally empty.
func Classify(update tgbotapi.Update) Inbound {
	msg, edited := update.Message, false
	if msg == nil {
		msg, edited = update.EditedMessage, true
	}
	if msg == nil || msg.Chat == nil {
		return &UnknownUpdate{}
	}

	env := Envelope{
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		Sender:    senderProfile(msg),
		Edited:    edited,
	}

	switch {
	case msg.Photo != nil:
		return &PhotoMessage{Envelope: env, Sizes: msg.Photo, Caption: msg.Caption}
	case msg.Document != nil:
		return &DocumentMessage{
			Envelope: env,
			FileID:   msg.Document.FileID,
			FileName: msg.Document.FileName,
			MimeType: msg.Document.MimeType,
			FileSize: int64(msg.Document.FileSize),
			Caption:  msg.Caption,
		}
	case strings.HasPrefix(msg.Text, commandPrefix):
		name, args := parseCommand(msg.Text)
		return &CommandMessage{Envelope: env, Name: name, Args: args}
	case strings.TrimSpace(msg.Text) != "":
		return &TextMessage{Envelope: env, Text: msg.Text}
	default:
		return &EmptyMessage{Envelope: env}
	}
}

func senderProfile(msg *tgbotapi.Message) models.Profile {
	if msg.From == nil {
		return models.Profile{ID: msg.Chat.ID}
	}
	return models.Profile{
		ID:        msg.From.ID,
		Username:  msg.From.UserName,
		FirstName: msg.From.FirstName,
		LastName:  msg.From.LastName,
	}
}

// parseCommand splits "/name@bot args" into a lower-cased name and the rest.
func parseCommand(text string) (string, string) {
	text = strings.TrimPrefix(text, commandPrefix)
	name, args, _ := strings.Cut(text, " ")
	if i := strings.IndexAny(name, "@\n"); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name), strings.TrimSpace(args)
}

// largestPhoto picks the best quality variant among the offered sizes.
func largestPhoto(sizes []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	if len(sizes) == 0 {
		return tgbotapi.PhotoSize{}
	}
	best := sizes[0]
	for _, size := range sizes[1:] {
		if size.FileSize > best.FileSize {
			best = size
			continue
		}
		if size.FileSize == best.FileSize && size.Width*size.Height > best.Width*best.Height {
			best = size
		}
	}
	return best
}
