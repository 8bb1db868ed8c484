package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	entriesCollection = "entries"
	usersCollection   = "users"
)

// MongoDatabase keeps entries and users as documents. Live updates come from
// change streams when the deployment supports them and from the notifier otherwise.
type MongoDatabase struct {
	client   *mongo.Client
	db       *mongo.Database
	notifier ChangeNotifier
	now      func() time.Time
}

func NewMongoDatabase(ctx context.Context, connectionString, databaseName string, notifier ChangeNotifier) (*MongoDatabase, error) {
	clientOptions := options.Client().ApplyURI(connectionString)
	clientOptions.SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if databaseName == "" {
		databaseName = "refshelf"
	}
	return newMongoDatabase(client, client.Database(databaseName), notifier), nil
}

func newMongoDatabase(client *mongo.Client, db *mongo.Database, notifier ChangeNotifier) *MongoDatabase {
	if notifier == nil {
		notifier = NewMemoryNotifier()
	}
	return &MongoDatabase{
		client:   client,
		db:       db,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (m *MongoDatabase) CreateDatabase(ctx context.Context) error {
	entryIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "ownerId", Value: 1},
				{Key: "createdAt", Value: -1},
			},
			Options: options.Index().SetName("idx_owner_created"),
		},
	}
	if _, err := m.db.Collection(entriesCollection).Indexes().CreateMany(ctx, entryIndexes); err != nil {
		return fmt.Errorf("failed to create entry indexes: %w", err)
	}

	userIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetName("idx_email").SetUnique(true),
	}
	if _, err := m.db.Collection(usersCollection).Indexes().CreateOne(ctx, userIndex); err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}
	return nil
}

func (m *MongoDatabase) DoesDatabaseExist(ctx context.Context) bool {
	return m.client.Ping(ctx, nil) == nil
}

func (m *MongoDatabase) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *MongoDatabase) CreateEntry(ctx context.Context, entry NewEntry) (*Entry, error) {
	id, err := generateID()
	if err != nil {
		return nil, err
	}
	created := &Entry{
		ID:        id,
		OwnerID:   entry.OwnerID,
		Title:     entry.Title,
		ImageURL:  entry.ImageURL,
		ImagePath: entry.ImagePath,
		Tags:      cloneTags(entry.Tags),
		// BSON dates carry millisecond precision.
		CreatedAt: m.now().Truncate(time.Millisecond),
	}

	if _, err := m.db.Collection(entriesCollection).InsertOne(ctx, created); err != nil {
		return nil, fmt.Errorf("failed to insert entry: %w", err)
	}

	m.publish(ctx, created.OwnerID)
	return created, nil
}

func (m *MongoDatabase) UpdateEntry(ctx context.Context, ownerID, id string, update EntryUpdate) error {
	set := bson.M{
		"title": update.Title,
		"tags":  cloneTags(update.Tags),
	}
	if update.Image != nil {
		set["imageUrl"] = update.Image.URL
		set["imagePath"] = update.Image.Path
	}

	result, err := m.db.Collection(entriesCollection).UpdateOne(ctx,
		bson.M{"_id": id, "ownerId": ownerID},
		bson.M{"$set": set},
	)
	if err != nil {
		return fmt.Errorf("failed to update entry %s: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return ErrEntryNotFound
	}

	m.publish(ctx, ownerID)
	return nil
}

func (m *MongoDatabase) GetEntries(ctx context.Context, ownerID string) ([]*Entry, error) {
	findOptions := options.Find().SetSort(bson.D{
		{Key: "createdAt", Value: -1},
		{Key: "_id", Value: -1},
	})
	cursor, err := m.db.Collection(entriesCollection).Find(ctx, bson.M{"ownerId": ownerID}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	entries := make([]*Entry, 0)
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode entries: %w", err)
	}
	for _, entry := range entries {
		normalizeEntry(entry)
	}
	return entries, nil
}

func (m *MongoDatabase) GetEntryByID(ctx context.Context, ownerID, id string) (*Entry, error) {
	var entry Entry
	err := m.db.Collection(entriesCollection).FindOne(ctx, bson.M{"_id": id, "ownerId": ownerID}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query entry %s: %w", id, err)
	}
	normalizeEntry(&entry)
	return &entry, nil
}

func (m *MongoDatabase) WatchEntries(ctx context.Context, ownerID string) (<-chan []*Entry, error) {
	load := func(ctx context.Context) ([]*Entry, error) {
		return m.GetEntries(ctx, ownerID)
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"fullDocument.ownerId": ownerID}}},
	}
	streamOptions := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	stream, err := m.db.Collection(entriesCollection).Watch(ctx, pipeline, streamOptions)
	if err != nil {
		// Standalone servers have no change streams.
		slog.Warn("MongoDatabase: change streams unavailable, using notifier", "error", err)
		return watchSnapshots(ctx, m.notifier, ownerID, load)
	}

	return watchSnapshots(ctx, &changeStreamNotifier{stream: stream}, ownerID, load)
}

func (m *MongoDatabase) CreateUser(ctx context.Context, email, passwordHash string) (*User, error) {
	id, err := generateID()
	if err != nil {
		return nil, err
	}
	user := &User{ID: id, Email: email, PasswordHash: passwordHash, CreatedAt: m.now().Truncate(time.Millisecond)}

	if _, err := m.db.Collection(usersCollection).InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return user, nil
}

func (m *MongoDatabase) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return m.getUser(ctx, bson.M{"email": email})
}

func (m *MongoDatabase) GetUserByID(ctx context.Context, id string) (*User, error) {
	return m.getUser(ctx, bson.M{"_id": id})
}

func (m *MongoDatabase) getUser(ctx context.Context, filter bson.M) (*User, error) {
	var user User
	err := m.db.Collection(usersCollection).FindOne(ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (m *MongoDatabase) publish(ctx context.Context, ownerID string) {
	if err := m.notifier.Publish(ctx, ownerID); err != nil {
		slog.Warn("MongoDatabase: failed to publish entry change", "owner_id", ownerID, "error", err)
	}
}

func normalizeEntry(entry *Entry) {
	if entry.Tags == nil {
		entry.Tags = []string{}
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
}

// changeStreamNotifier adapts an already opened change stream to a ChangeNotifier
// with a single subscriber.
type changeStreamNotifier struct {
	stream *mongo.ChangeStream
}

func (c *changeStreamNotifier) Publish(context.Context, string) error {
	return nil
}

func (c *changeStreamNotifier) Subscribe(ctx context.Context, ownerID string) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = c.stream.Close(closeCtx)
		}()

		for c.stream.Next(ctx) {
			signal(ch)
		}
		if err := c.stream.Err(); err != nil && ctx.Err() == nil {
			slog.Error("MongoDatabase: change stream stopped", "owner_id", ownerID, "error", err)
		}
	}()
	return ch, nil
}

func (c *changeStreamNotifier) Close() error {
	return nil
}
