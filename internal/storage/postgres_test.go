package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/chat-gateway/internal/models"
	"go.uber.org/zap"
)

func TestClassifyPostgresError(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		unavailable bool
	}{
		{name: "bad connection", err: driver.ErrBadConn, unavailable: true},
		{name: "deadline", err: fmt.Errorf("query: %w", context.DeadlineExceeded), unavailable: true},
		{name: "network", err: &net.OpError{Op: "dial", Err: errors.New("connection refused")}, unavailable: true},
		{name: "connection failure code", err: &pq.Error{Code: "08006"}, unavailable: true},
		{name: "admin shutdown code", err: &pq.Error{Code: "57P01"}, unavailable: true},
		{name: "unique violation", err: &pq.Error{Code: "23505"}, unavailable: false},
		{name: "plain", err: errors.New("boom"), unavailable: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classifyPostgresError("op", tc.err)
			assert.Equal(t, tc.unavailable, errors.Is(err, ErrUnavailable))
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestDatabaseConfigDSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", DBName: "chat", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=chat sslmode=disable", cfg.dsn())

	cfg.URL = "postgres://u:p@db/chat"
	assert.Equal(t, "postgres://u:p@db/chat", cfg.dsn())
}

// newIntegrationPostgres connects to TEST_POSTGRES_DSN and returns a user id
// no other run shares.
func newIntegrationPostgres(t *testing.T) (*PostgresStorage, int64) {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("skip integration test: TEST_POSTGRES_DSN is not set")
	}
	s, err := NewPostgresStorage(DatabaseConfig{URL: dsn}, zap.NewNop())
	if err != nil {
		t.Skipf("skip integration test: cannot connect to database: %v", err)
	}

	userID := -time.Now().UnixNano()
	t.Cleanup(func() {
		ctx := context.Background()
		_, _ = s.ClearEntries(ctx, userID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM media_records WHERE user_id = $1`, userID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
		s.Close()
	})
	return s, userID
}

func TestPostgresStorage_UpsertUserConcurrent(t *testing.T) {
	s, userID := newIntegrationPostgres(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpsertUser(ctx, models.Profile{ID: userID, FirstName: "Ann"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var count int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id = $1`, userID).Scan(&count))
	assert.Equal(t, 1, count)

	before, err := s.GetUser(ctx, userID)
	require.NoError(t, err)
	same, err := s.UpsertUser(ctx, models.Profile{ID: userID, FirstName: "Ann"})
	require.NoError(t, err)
	assert.True(t, before.UpdatedAt.Equal(same.UpdatedAt))

	changed, err := s.UpsertUser(ctx, models.Profile{ID: userID, FirstName: "Anna", Username: "ann"})
	require.NoError(t, err)
	assert.Equal(t, "Anna", changed.FirstName)
	assert.Equal(t, "ann", changed.Username)
	assert.True(t, before.CreatedAt.Equal(changed.CreatedAt))
}

func TestPostgresStorage_RecentEntriesOrdering(t *testing.T) {
	s, userID := newIntegrationPostgres(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	late := NewEntry(userID, models.RoleUser, "late", nil)
	late.CreatedAt = now
	early := NewEntry(userID, models.RoleAssistant, "early", nil)
	early.CreatedAt = now.Add(-time.Second)
	tie := NewEntry(userID, models.RoleUser, "tie", nil)
	tie.CreatedAt = now

	require.NoError(t, s.AppendEntry(ctx, late))
	require.NoError(t, s.AppendEntry(ctx, early))
	require.NoError(t, s.AppendEntry(ctx, tie))

	entries, err := s.RecentEntries(ctx, userID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "early", entries[0].Content)
	assert.Equal(t, "late", entries[1].Content)
	assert.Equal(t, "tie", entries[2].Content)

	count, err := s.ClearEntries(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestPostgresStorage_MarkMediaProcessedOnce(t *testing.T) {
	s, userID := newIntegrationPostgres(t)
	ctx := context.Background()

	record := &models.MediaRecord{UserID: userID, FileID: "file-1", Kind: models.PhotoMedia}
	require.NoError(t, s.CreateMediaRecord(ctx, record))

	require.NoError(t, s.MarkMediaProcessed(ctx, record.ID, "a cat"))
	assert.ErrorIs(t, s.MarkMediaProcessed(ctx, record.ID, "a dog"), ErrAlreadyProcessed)

	stored, err := s.GetMediaRecord(ctx, record.ID)
	require.NoError(t, err)
	assert.True(t, stored.Processed)
	assert.Equal(t, "a cat", stored.AnalysisResult)

	assert.ErrorIs(t, s.MarkMediaProcessed(ctx, uuid.NewString(), "x"), ErrNotFound)
}
