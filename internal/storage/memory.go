package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xaenox/chat-gateway/internal/models"
)

type MemoryStorage struct {
	mu      sync.RWMutex
	users   map[int64]*models.User
	entries map[int64][]*models.ConversationEntry
	media   map[string]*models.MediaRecord
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:   make(map[int64]*models.User),
		entries: make(map[int64][]*models.ConversationEntry),
		media:   make(map[string]*models.MediaRecord),
	}
}

// User methods
func (s *MemoryStorage) UpsertUser(ctx context.Context, profile models.Profile) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	user, exists := s.users[profile.ID]
	if !exists {
		user = &models.User{
			ID:        profile.ID,
			Username:  profile.Username,
			FirstName: profile.FirstName,
			LastName:  profile.LastName,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.users[profile.ID] = user
	} else if user.Differs(profile) {
		user.Username = profile.Username
		user.FirstName = profile.FirstName
		user.LastName = profile.LastName
		user.UpdatedAt = now
	}

	copied := *user
	return &copied, nil
}

func (s *MemoryStorage) GetUser(ctx context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[id]
	if !exists {
		return nil, ErrNotFound
	}
	copied := *user
	return &copied, nil
}

// Conversation methods
func (s *MemoryStorage) AppendEntry(ctx context.Context, entry *models.ConversationEntry) error {
	prepareEntry(entry)
	copied := *entry

	s.mu.Lock()
	defer s.mu.Unlock()

	// Keep entries sorted by CreatedAt; equal timestamps stay in insertion order.
	entries := s.entries[entry.UserID]
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].CreatedAt.After(copied.CreatedAt)
	})
	entries = append(entries, nil)
	copy(entries[i+1:], entries[i:])
	entries[i] = &copied
	s.entries[entry.UserID] = entries
	return nil
}

func (s *MemoryStorage) RecentEntries(ctx context.Context, userID int64, limit int) ([]*models.ConversationEntry, error) {
	limit = normalizeLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	// Entries are kept sorted, so the tail is the newest window.
	all := s.entries[userID]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	result := make([]*models.ConversationEntry, 0, len(all))
	for _, entry := range all {
		copied := *entry
		result = append(result, &copied)
	}
	return result, nil
}

func (s *MemoryStorage) ClearEntries(ctx context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := int64(len(s.entries[userID]))
	delete(s.entries, userID)
	return count, nil
}

// Media methods
func (s *MemoryStorage) CreateMediaRecord(ctx context.Context, record *models.MediaRecord) error {
	prepareMediaRecord(record)
	copied := *record

	s.mu.Lock()
	defer s.mu.Unlock()

	s.media[record.ID] = &copied
	return nil
}

func (s *MemoryStorage) MarkMediaProcessed(ctx context.Context, id string, analysis string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.media[id]
	if !exists {
		return ErrNotFound
	}
	if record.Processed {
		return ErrAlreadyProcessed
	}
	record.AnalysisResult = analysis
	record.Processed = true
	return nil
}

func (s *MemoryStorage) GetMediaRecord(ctx context.Context, id string) (*models.MediaRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.media[id]
	if !exists {
		return nil, ErrNotFound
	}
	copied := *record
	return &copied, nil
}

func (s *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
