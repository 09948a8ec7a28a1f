package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/chat-gateway/internal/models"
)

// DefaultHistoryLimit is the number of entries fetched for prompt context.
const DefaultHistoryLimit = 20

var (
	// ErrUnavailable marks failures caused by the backing store being
	// unreachable. Callers must not mask it as a user-facing fallback.
	ErrUnavailable = errors.New("storage unavailable")

	ErrNotFound         = errors.New("not found")
	ErrAlreadyProcessed = errors.New("media record already processed")
)

type Storage interface {
	UserStorage
	ConversationStorage
	MediaStorage

	Ping(ctx context.Context) error
	Close() error
}

type UserStorage interface {
	// UpsertUser creates the user if absent. An existing user has all display
	// fields overwritten and UpdatedAt touched only when any of them differ.
	UpsertUser(ctx context.Context, profile models.Profile) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

type ConversationStorage interface {
	AppendEntry(ctx context.Context, entry *models.ConversationEntry) error
	// RecentEntries returns at most limit of the user's newest entries,
	// oldest first.
	RecentEntries(ctx context.Context, userID int64, limit int) ([]*models.ConversationEntry, error)
	// ClearEntries deletes every entry of the user and returns how many were removed.
	ClearEntries(ctx context.Context, userID int64) (int64, error)
}

type MediaStorage interface {
	CreateMediaRecord(ctx context.Context, record *models.MediaRecord) error
	// MarkMediaProcessed sets the analysis text and flips the processed flag in
	// one update. It fails with ErrAlreadyProcessed on a second call.
	MarkMediaProcessed(ctx context.Context, id string, analysis string) error
	GetMediaRecord(ctx context.Context, id string) (*models.MediaRecord, error)
}

// NewEntry builds a conversation entry ready to be appended.
func NewEntry(userID int64, role models.Role, content string, messageID *int) *models.ConversationEntry {
	return &models.ConversationEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Role:      role,
		Content:   content,
		MessageID: messageID,
		CreatedAt: time.Now().UTC(),
	}
}

func prepareEntry(entry *models.ConversationEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
}

func prepareMediaRecord(record *models.MediaRecord) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	record.Processed = false
	record.AnalysisResult = ""
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return limit
}

func reverseEntries(entries []*models.ConversationEntry) {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
}
