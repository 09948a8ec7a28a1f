package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"embed"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/lib/pq"
	"github.com/xaenox/chat-gateway/internal/models"
	"go.uber.org/zap"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	// URL takes precedence over the individual fields when set.
	URL string
}

func (c DatabaseConfig) dsn() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", config.dsn())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db, logger: logger}

	// Initialize database schema
	if err := storage.initializeSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	logger.Info("Connected to PostgreSQL", zap.String("host", config.Host), zap.String("dbname", config.DBName))
	return storage, nil
}

func (s *PostgresStorage) initializeSchema(ctx context.Context) error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}
	return nil
}

const userColumns = `id, username, first_name, last_name, is_active, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.FirstName,
		&user.LastName,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

func (s *PostgresStorage) UpsertUser(ctx context.Context, profile models.Profile) (*models.User, error) {
	// The WHERE clause keeps updated_at untouched when nothing changed; in that
	// case RETURNING yields no row and the current record is read back.
	query := `
		INSERT INTO users (id, username, first_name, last_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET username = EXCLUDED.username,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			updated_at = NOW()
		WHERE users.username <> EXCLUDED.username
			OR users.first_name <> EXCLUDED.first_name
			OR users.last_name <> EXCLUDED.last_name
		RETURNING ` + userColumns

	user, err := scanUser(s.db.QueryRowContext(ctx, query,
		profile.ID, profile.Username, profile.FirstName, profile.LastName))
	if errors.Is(err, sql.ErrNoRows) {
		return s.GetUser(ctx, profile.ID)
	}
	if err != nil {
		return nil, classifyPostgresError("error upserting user", err)
	}
	return user, nil
}

func (s *PostgresStorage) GetUser(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classifyPostgresError("error getting user", err)
	}
	return user, nil
}

func (s *PostgresStorage) AppendEntry(ctx context.Context, entry *models.ConversationEntry) error {
	prepareEntry(entry)

	query := `
		INSERT INTO conversations (id, user_id, role, content, message_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	var messageID sql.NullInt64
	if entry.MessageID != nil {
		messageID = sql.NullInt64{Int64: int64(*entry.MessageID), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.UserID, string(entry.Role), entry.Content, messageID, entry.CreatedAt)
	if err != nil {
		return classifyPostgresError("error appending conversation entry", err)
	}
	return nil
}

func (s *PostgresStorage) RecentEntries(ctx context.Context, userID int64, limit int) ([]*models.ConversationEntry, error) {
	query := `
		SELECT id, user_id, role, content, message_id, created_at
		FROM conversations
		WHERE user_id = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, userID, normalizeLimit(limit))
	if err != nil {
		return nil, classifyPostgresError("error querying conversation entries", err)
	}
	defer rows.Close()

	var entries []*models.ConversationEntry
	for rows.Next() {
		entry := &models.ConversationEntry{}
		var role string
		var messageID sql.NullInt64
		if err := rows.Scan(&entry.ID, &entry.UserID, &role, &entry.Content, &messageID, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning conversation entry: %w", err)
		}
		entry.Role = models.Role(role)
		if messageID.Valid {
			id := int(messageID.Int64)
			entry.MessageID = &id
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPostgresError("error iterating conversation entries", err)
	}

	reverseEntries(entries)
	return entries, nil
}

func (s *PostgresStorage) ClearEntries(ctx context.Context, userID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE user_id = $1`, userID)
	if err != nil {
		return 0, classifyPostgresError("error clearing conversation entries", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error getting rows affected: %w", err)
	}
	return rowsAffected, nil
}

func (s *PostgresStorage) CreateMediaRecord(ctx context.Context, record *models.MediaRecord) error {
	prepareMediaRecord(record)

	query := `
		INSERT INTO media_records (id, user_id, file_id, kind, file_name, file_size, mime_type, processed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8)`

	_, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.UserID,
		record.FileID,
		string(record.Kind),
		record.FileName,
		record.FileSize,
		record.MimeType,
		record.CreatedAt,
	)
	if err != nil {
		return classifyPostgresError("error creating media record", err)
	}
	return nil
}

func (s *PostgresStorage) MarkMediaProcessed(ctx context.Context, id string, analysis string) error {
	query := `
		UPDATE media_records
		SET processed = TRUE, analysis_result = $1
		WHERE id = $2 AND processed = FALSE`

	result, err := s.db.ExecContext(ctx, query, analysis, id)
	if err != nil {
		return classifyPostgresError("error marking media record processed", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if _, err := s.GetMediaRecord(ctx, id); err != nil {
			return err
		}
		return ErrAlreadyProcessed
	}
	return nil
}

func (s *PostgresStorage) GetMediaRecord(ctx context.Context, id string) (*models.MediaRecord, error) {
	query := `
		SELECT id, user_id, file_id, kind, file_name, file_size, mime_type, processed, analysis_result, created_at
		FROM media_records
		WHERE id = $1`

	record := &models.MediaRecord{}
	var kind string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&record.ID,
		&record.UserID,
		&record.FileID,
		&kind,
		&record.FileName,
		&record.FileSize,
		&record.MimeType,
		&record.Processed,
		&record.AnalysisResult,
		&record.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classifyPostgresError("error getting media record", err)
	}
	record.Kind = models.MediaKind(kind)
	return record, nil
}

func (s *PostgresStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return classifyPostgresError("error pinging database", err)
	}
	return nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

// classifyPostgresError wraps connection-level failures with ErrUnavailable.
func classifyPostgresError(msg string, err error) error {
	if isPostgresUnavailable(err) {
		return fmt.Errorf("%s: %w: %w", msg, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func isPostgresUnavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// Class 08: connection exception, class 57: operator intervention.
		class := string(pqErr.Code.Class())
		return class == "08" || class == "57"
	}
	return false
}
