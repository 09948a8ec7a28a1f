package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xaenox/chat-gateway/internal/completion"
	"github.com/xaenox/chat-gateway/internal/media"
	"github.com/xaenox/chat-gateway/internal/models"
	"github.com/xaenox/chat-gateway/internal/storage"
	"go.uber.org/zap"
)

const (
	photoMimeType       = "image/jpeg"
	defaultDocumentName = "document"
)

// imageInput describes an image about to be analysed, whether it arrived as a
// photo or as an image document.
type imageInput struct {
	fileID   string
	kind     models.MediaKind
	fileName string
	fileSize int64
	mimeType string
	caption  string
}

func (b *Bot) handlePhoto(ctx context.Context, msg *PhotoMessage) result {
	if len(msg.Sizes) == 0 {
		return rejected(replyNoPhoto, KindUnsupported)
	}
	best := largestPhoto(msg.Sizes)

	in := imageInput{
		fileID:   best.FileID,
		kind:     models.PhotoMedia,
		fileSize: int64(best.FileSize),
		mimeType: photoMimeType,
		caption:  msg.Caption,
	}

	var analysis string
	err := b.transfer.WithFile(ctx, best.FileID, ".jpg", func(f *media.File) error {
		var err error
		analysis, err = b.analyzeImage(ctx, msg.Sender, in, f)
		return err
	})
	switch {
	case errors.Is(err, media.ErrDownload), errors.Is(err, media.ErrTooLarge):
		return fellBack(replyPhotoDownload, err)
	case err != nil:
		return fellBack(replyPhotoFailed, err)
	}
	return replied(analysis)
}

// analyzeImage runs the vision model over a downloaded image, completes its
// media record and records the exchange in the conversation.
func (b *Bot) analyzeImage(ctx context.Context, sender models.Profile, in imageInput, f *media.File) (string, error) {
	if _, err := b.storage.UpsertUser(ctx, sender); err != nil {
		return "", fmt.Errorf("upsert user: %w", err)
	}

	data, err := f.ReadAll()
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}

	record := &models.MediaRecord{
		UserID:   sender.ID,
		FileID:   in.fileID,
		Kind:     in.kind,
		FileName: in.fileName,
		FileSize: in.fileSize,
		MimeType: in.mimeType,
	}
	if err := b.storage.CreateMediaRecord(ctx, record); err != nil {
		return "", fmt.Errorf("create media record: %w", err)
	}

	prompt := "Analyze this image in detail and describe what you see. " +
		"Include objects, people, setting, colors, mood, and any text if present. " +
		"Be conversational and engaging in your description."
	if in.caption != "" {
		prompt += fmt.Sprintf(" The user also sent this caption: '%s'", in.caption)
	}

	analysis, err := b.completer.CompleteWithAttachment(ctx, prompt, data, in.mimeType)
	if errors.Is(err, completion.ErrEmptyCompletion) {
		analysis = replyNoImageAnalysis
	} else if err != nil {
		return "", fmt.Errorf("analyze image: %w", err)
	}

	userNote := "[Sent an image]"
	if in.caption != "" {
		userNote = fmt.Sprintf("[Sent an image: %s]", in.caption)
	}
	if err := b.completeMedia(ctx, sender.ID, record.ID, userNote, analysis); err != nil {
		return "", err
	}

	b.logger.Info("Analyzed image",
		zap.Int64("user_id", sender.ID),
		zap.String("record_id", record.ID),
		zap.String("kind", string(in.kind)))
	return analysis, nil
}

func (b *Bot) handleDocument(ctx context.Context, msg *DocumentMessage) result {
	if msg.FileSize > b.opts.MaxDocumentBytes {
		return rejected(b.tooLargeText(), KindTooLarge)
	}

	var (
		analysis    string
		unsupported bool
	)
	err := b.transfer.WithFile(ctx, msg.FileID, b.documentName(msg), func(f *media.File) error {
		var err error
		analysis, unsupported, err = b.analyzeDocument(ctx, msg, f)
		return err
	})
	switch {
	case errors.Is(err, media.ErrTooLarge):
		return rejected(b.tooLargeText(), KindTooLarge)
	case errors.Is(err, media.ErrDownload):
		return fellBack(replyDocumentDownload, err)
	case err != nil:
		return fellBack(replyDocumentFailed, err)
	case unsupported:
		return rejected(analysis, KindUnsupported)
	}
	return replied(analysis)
}

// analyzeDocument branches on the declared MIME type. Images reuse the bytes
// already downloaded; types that cannot be analysed are still recorded as
// processed so they are not retried.
func (b *Bot) analyzeDocument(ctx context.Context, msg *DocumentMessage, f *media.File) (string, bool, error) {
	name := b.documentName(msg)
	mimeType := strings.ToLower(strings.TrimSpace(msg.MimeType))

	if strings.HasPrefix(mimeType, "image/") {
		analysis, err := b.analyzeImage(ctx, msg.Sender, imageInput{
			fileID:   msg.FileID,
			kind:     models.DocumentMedia,
			fileName: name,
			fileSize: f.Size,
			mimeType: mimeType,
			caption:  msg.Caption,
		}, f)
		return analysis, false, err
	}

	if _, err := b.storage.UpsertUser(ctx, msg.Sender); err != nil {
		return "", false, fmt.Errorf("upsert user: %w", err)
	}

	record := &models.MediaRecord{
		UserID:   msg.Sender.ID,
		FileID:   msg.FileID,
		Kind:     models.DocumentMedia,
		FileName: name,
		FileSize: f.Size,
		MimeType: msg.MimeType,
	}
	if err := b.storage.CreateMediaRecord(ctx, record); err != nil {
		return "", false, fmt.Errorf("create media record: %w", err)
	}

	var (
		analysis    string
		unsupported bool
	)
	if strings.HasPrefix(mimeType, "text/") {
		var err error
		analysis, err = b.summarizeText(ctx, msg, name, f)
		if err != nil {
			return "", false, err
		}
	} else {
		analysis = unsupportedDocumentText(name, msg.MimeType)
		unsupported = true
	}

	if err := b.completeMedia(ctx, msg.Sender.ID, record.ID, fmt.Sprintf("[Sent a file: %s]", name), analysis); err != nil {
		return "", false, err
	}

	b.logger.Info("Analyzed document",
		zap.Int64("user_id", msg.Sender.ID),
		zap.String("record_id", record.ID),
		zap.String("mime_type", msg.MimeType),
		zap.Bool("unsupported", unsupported))
	return analysis, unsupported, nil
}

func (b *Bot) summarizeText(ctx context.Context, msg *DocumentMessage, name string, f *media.File) (string, error) {
	data, err := f.ReadAll()
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	if !utf8.Valid(data) {
		b.logger.Warn("Document is not valid UTF-8", zap.String("file_name", name))
		return unreadableDocumentText(name), nil
	}

	prompt := fmt.Sprintf("Analyze this %s document and provide a helpful summary or analysis. "+
		"The filename is '%s'. Here's the content:\n\n%s",
		msg.MimeType, name, truncateRunes(string(data), b.opts.TextCharBudget))
	if msg.Caption != "" {
		prompt += fmt.Sprintf("\n\nThe user also wrote: '%s'", msg.Caption)
	}

	summary, err := b.completer.Complete(ctx, prompt)
	if errors.Is(err, completion.ErrEmptyCompletion) {
		return replyNoDocumentSummary, nil
	}
	if err != nil {
		return "", fmt.Errorf("summarize document: %w", err)
	}
	return summary, nil
}

// completeMedia flips the record to processed and appends the synthetic user
// note plus the analysis to the conversation.
func (b *Bot) completeMedia(ctx context.Context, userID int64, recordID, userNote, analysis string) error {
	if err := b.storage.MarkMediaProcessed(ctx, recordID, analysis); err != nil {
		return fmt.Errorf("mark media processed: %w", err)
	}
	if err := b.storage.AppendEntry(ctx, storage.NewEntry(userID, models.RoleUser, userNote, nil)); err != nil {
		return fmt.Errorf("save media note: %w", err)
	}
	if err := b.storage.AppendEntry(ctx, storage.NewEntry(userID, models.RoleAssistant, analysis, nil)); err != nil {
		return fmt.Errorf("save media analysis: %w", err)
	}
	return nil
}

func (b *Bot) documentName(msg *DocumentMessage) string {
	if msg.FileName == "" {
		return defaultDocumentName
	}
	return msg.FileName
}

func (b *Bot) tooLargeText() string {
	return fmt.Sprintf("Sorry, the file is too large. Please send files smaller than %dMB.", b.opts.MaxDocumentBytes/(1024*1024))
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
