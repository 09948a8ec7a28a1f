package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xaenox/chat-gateway/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	usersCollection         = "users"
	conversationsCollection = "conversations"
	mediaCollection         = "media_records"
)

// entryDocument pairs a conversation entry with an ObjectID, whose embedded
// counter breaks ties between entries created within the same millisecond.
type entryDocument struct {
	OID                      primitive.ObjectID `bson:"_id"`
	models.ConversationEntry `bson:",inline"`
}

type MongoStorage struct {
	client        *mongo.Client
	users         *mongo.Collection
	conversations *mongo.Collection
	media         *mongo.Collection
	logger        *zap.Logger
}

func NewMongoStorage(ctx context.Context, uri, dbName string, logger *zap.Logger) (*MongoStorage, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("error connecting to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("error pinging mongodb: %w", err)
	}

	storage := newMongoStorage(client, client.Database(dbName), logger)
	if err := storage.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("error creating mongodb indexes: %w", err)
	}

	logger.Info("Connected to MongoDB", zap.String("database", dbName))
	return storage, nil
}

func newMongoStorage(client *mongo.Client, db *mongo.Database, logger *zap.Logger) *MongoStorage {
	return &MongoStorage{
		client:        client,
		users:         db.Collection(usersCollection),
		conversations: db.Collection(conversationsCollection),
		media:         db.Collection(mediaCollection),
		logger:        logger,
	}
}

func (s *MongoStorage) ensureIndexes(ctx context.Context) error {
	_, err := s.conversations.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "entry_id", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return err
	}
	_, err = s.media.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "record_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "processed", Value: 1}}},
	})
	return err
}

func (s *MongoStorage) UpsertUser(ctx context.Context, profile models.Profile) (*models.User, error) {
	user, err := s.GetUser(ctx, profile.ID)
	if errors.Is(err, ErrNotFound) {
		now := time.Now().UTC()
		user = &models.User{
			ID:        profile.ID,
			Username:  profile.Username,
			FirstName: profile.FirstName,
			LastName:  profile.LastName,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		_, err = s.users.InsertOne(ctx, user)
		if mongo.IsDuplicateKeyError(err) {
			// Lost a creation race; the winner's record is the identity.
			return s.UpsertUser(ctx, profile)
		}
		if err != nil {
			return nil, classifyMongoError("error creating user", err)
		}
		s.logger.Info("Created new user", zap.Int64("user_id", profile.ID))
		return user, nil
	}
	if err != nil {
		return nil, err
	}

	if !user.Differs(profile) {
		return user, nil
	}
	user.Username = profile.Username
	user.FirstName = profile.FirstName
	user.LastName = profile.LastName
	user.UpdatedAt = time.Now().UTC()

	update := bson.M{"$set": bson.M{
		"username":   user.Username,
		"first_name": user.FirstName,
		"last_name":  user.LastName,
		"updated_at": user.UpdatedAt,
	}}
	if _, err := s.users.UpdateByID(ctx, user.ID, update); err != nil {
		return nil, classifyMongoError("error updating user", err)
	}
	return user, nil
}

func (s *MongoStorage) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classifyMongoError("error getting user", err)
	}
	return &user, nil
}

func (s *MongoStorage) AppendEntry(ctx context.Context, entry *models.ConversationEntry) error {
	prepareEntry(entry)

	doc := entryDocument{OID: primitive.NewObjectID(), ConversationEntry: *entry}
	if _, err := s.conversations.InsertOne(ctx, doc); err != nil {
		return classifyMongoError("error appending conversation entry", err)
	}
	return nil
}

func (s *MongoStorage) RecentEntries(ctx context.Context, userID int64, limit int) ([]*models.ConversationEntry, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(normalizeLimit(limit)))

	cursor, err := s.conversations.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, classifyMongoError("error querying conversation entries", err)
	}
	defer cursor.Close(ctx)

	var docs []entryDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classifyMongoError("error decoding conversation entries", err)
	}

	entries := make([]*models.ConversationEntry, 0, len(docs))
	for i := range docs {
		entries = append(entries, &docs[i].ConversationEntry)
	}
	reverseEntries(entries)
	return entries, nil
}

func (s *MongoStorage) ClearEntries(ctx context.Context, userID int64) (int64, error) {
	result, err := s.conversations.DeleteMany(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, classifyMongoError("error clearing conversation entries", err)
	}
	return result.DeletedCount, nil
}

func (s *MongoStorage) CreateMediaRecord(ctx context.Context, record *models.MediaRecord) error {
	prepareMediaRecord(record)

	if _, err := s.media.InsertOne(ctx, record); err != nil {
		return classifyMongoError("error creating media record", err)
	}
	return nil
}

func (s *MongoStorage) MarkMediaProcessed(ctx context.Context, id string, analysis string) error {
	filter := bson.M{"record_id": id, "processed": false}
	update := bson.M{"$set": bson.M{"processed": true, "analysis_result": analysis}}

	result, err := s.media.UpdateOne(ctx, filter, update)
	if err != nil {
		return classifyMongoError("error marking media record processed", err)
	}
	if result.MatchedCount == 0 {
		if _, err := s.GetMediaRecord(ctx, id); err != nil {
			return err
		}
		return ErrAlreadyProcessed
	}
	return nil
}

func (s *MongoStorage) GetMediaRecord(ctx context.Context, id string) (*models.MediaRecord, error) {
	var record models.MediaRecord
	err := s.media.FindOne(ctx, bson.M{"record_id": id}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classifyMongoError("error getting media record", err)
	}
	return &record, nil
}

func (s *MongoStorage) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("error pinging mongodb: %w: %w", ErrUnavailable, err)
	}
	return nil
}

func (s *MongoStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func classifyMongoError(msg string, err error) error {
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) ||
		errors.Is(err, mongo.ErrClientDisconnected) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", msg, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
