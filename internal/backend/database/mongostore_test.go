package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

var mongoNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newMockMongo(mt *mtest.T, notifier ChangeNotifier) *MongoDatabase {
	m := newMongoDatabase(mt.Client, mt.DB, notifier)
	m.now = func() time.Time { return mongoNow }
	return m
}

func entryDocument(id, ownerID, title string, createdAt time.Time, tags ...string) bson.D {
	doc := bson.D{
		{Key: "_id", Value: id},
		{Key: "ownerId", Value: ownerID},
		{Key: "title", Value: title},
		{Key: "imageUrl", Value: "https://blobs.test/" + id + ".png"},
		{Key: "imagePath", Value: "images/" + id + ".png"},
		{Key: "createdAt", Value: createdAt},
	}
	if tags != nil {
		doc = append(doc, bson.E{Key: "tags", Value: tags})
	}
	return doc
}

func entriesNamespace(mt *mtest.T) string {
	return mt.DB.Name() + "." + entriesCollection
}

func TestMongo(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("create database builds indexes", func(mt *mtest.T) {
		m := newMockMongo(mt, nil)
		mt.AddMockResponses(mtest.CreateSuccessResponse(), mtest.CreateSuccessResponse())

		if err := m.CreateDatabase(context.Background()); err != nil {
			mt.Fatalf("CreateDatabase error: %v", err)
		}
		if events := mt.GetAllStartedEvents(); len(events) != 2 || events[0].CommandName != "createIndexes" {
			mt.Fatalf("Expected two createIndexes commands, got %d", len(events))
		}
	})

	mt.Run("create entry assigns id and timestamp", func(mt *mtest.T) {
		notifier := NewMemoryNotifier()
		m := newMockMongo(mt, notifier)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		changes, _ := notifier.Subscribe(ctx, "u1")

		mt.AddMockResponses(mtest.CreateSuccessResponse())
		created, err := m.CreateEntry(ctx, NewEntry{OwnerID: "u1", Title: "Hands", ImageURL: "u", ImagePath: "p", Tags: []string{"anatomy"}})
		if err != nil {
			mt.Fatalf("CreateEntry error: %v", err)
		}
		if created.ID == "" {
			mt.Fatalf("Expected an assigned id")
		}
		if !created.CreatedAt.Equal(mongoNow) {
			mt.Fatalf("Expected createdAt %v, got %v", mongoNow, created.CreatedAt)
		}
		if started := mt.GetStartedEvent(); started == nil || started.CommandName != "insert" {
			mt.Fatalf("Expected an insert command, got %+v", started)
		}
		expectSignal(mt.T, changes)
	})

	mt.Run("get entry by id", func(mt *mtest.T) {
		m := newMockMongo(mt, nil)
		created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, entriesNamespace(mt), mtest.FirstBatch,
			entryDocument("e1", "u1", "Hands", created, "anatomy")))

		entry, err := m.GetEntryByID(context.Background(), "u1", "e1")
		if err != nil {
			mt.Fatalf("GetEntryByID error: %v", err)
		}
		if entry == nil || entry.Title != "Hands" || entry.ImagePath != "images/e1.png" {
			mt.Fatalf("Expected entry Hands, got %+v", entry)
		}
		if len(entry.Tags) != 1 || entry.Tags[0] != "anatomy" {
			mt.Fatalf("Expected tags [anatomy], got %v", entry.Tags)
		}
		if !entry.CreatedAt.Equal(created) || entry.CreatedAt.Location() != time.UTC {
			mt.Fatalf("Expected createdAt %v in UTC, got %v", created, entry.CreatedAt)
		}
	})

	mt.Run("get entry by id returns nil when missing", func(mt *mtest.T) {
		m := newMockMongo(mt, nil)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, entriesNamespace(mt), mtest.FirstBatch))

		entry, err := m.GetEntryByID(context.Background(), "u1", "missing")
		if err != nil {
			mt.Fatalf("Expected no error, got %v", err)
		}
		if entry != nil {
			mt.Fatalf("Expected nil entry, got %+v", entry)
		}
	})

	mt.Run("get entries normalizes missing tags", func(mt *mtest.T) {
		m := newMockMongo(mt, nil)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, entriesNamespace(mt), mtest.FirstBatch,
			entryDocument("e2", "u1", "Newer", mongoNow),
			entryDocument("e1", "u1", "Older", mongoNow.Add(-time.Hour), "a", "b"),
		))

		entries, err := m.GetEntries(context.Background(), "u1")
		if err != nil {
			mt.Fatalf("GetEntries error: %v", err)
		}
		if len(entries) != 2 || entries[0].ID != "e2" || entries[1].ID != "e1" {
			mt.Fatalf("Expected entries in cursor order, got %+v", entries)
		}
		if entries[0].Tags == nil || len(entries[0].Tags) != 0 {
			mt.Fatalf("Expected empty tags, got %#v", entries[0].Tags)
		}
	})

	mt.Run("update entry", func(mt *mtest.T) {
		notifier := NewMemoryNotifier()
		m := newMockMongo(mt, notifier)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		changes, _ := notifier.Subscribe(ctx, "u1")

		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))
		update := EntryUpdate{Title: "Feet", Tags: []string{"anatomy"}, Image: &ImageRef{URL: "u2", Path: "p2"}}
		if err := m.UpdateEntry(ctx, "u1", "e1", update); err != nil {
			mt.Fatalf("UpdateEntry error: %v", err)
		}
		if started := mt.GetStartedEvent(); started == nil || started.CommandName != "update" {
			mt.Fatalf("Expected an update command, got %+v", started)
		}
		expectSignal(mt.T, changes)
	})

	mt.Run("update entry not found", func(mt *mtest.T) {
		notifier := NewMemoryNotifier()
		m := newMockMongo(mt, notifier)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		changes, _ := notifier.Subscribe(ctx, "u1")

		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))
		err := m.UpdateEntry(ctx, "u1", "missing", EntryUpdate{Title: "x"})
		if !errors.Is(err, ErrEntryNotFound) {
			mt.Fatalf("Expected ErrEntryNotFound, got %v", err)
		}
		expectNoSignal(mt.T, changes)
	})

	mt.Run("create user maps duplicate key", func(mt *mtest.T) {
		m := newMockMongo(mt, nil)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: users index: idx_email",
		}))

		if _, err := m.CreateUser(context.Background(), "a@b.c", "hash"); !errors.Is(err, ErrEmailTaken) {
			mt.Fatalf("Expected ErrEmailTaken, got %v", err)
		}
	})

	mt.Run("create user", func(mt *mtest.T) {
		m := newMockMongo(mt, nil)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		user, err := m.CreateUser(context.Background(), "a@b.c", "hash")
		if err != nil {
			mt.Fatalf("CreateUser error: %v", err)
		}
		if user.ID == "" || user.Email != "a@b.c" || !user.CreatedAt.Equal(mongoNow) {
			mt.Fatalf("unexpected user %+v", user)
		}
	})

	mt.Run("get user by email returns nil when missing", func(mt *mtest.T) {
		m := newMockMongo(mt, nil)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, mt.DB.Name()+"."+usersCollection, mtest.FirstBatch))

		user, err := m.GetUserByEmail(context.Background(), "nobody@b.c")
		if err != nil || user != nil {
			mt.Fatalf("Expected (nil, nil), got (%+v, %v)", user, err)
		}
	})

	mt.Run("watch falls back to the notifier without change streams", func(mt *mtest.T) {
		notifier := NewMemoryNotifier()
		m := newMockMongo(mt, notifier)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		mt.AddMockResponses(
			mtest.CreateCommandErrorResponse(mtest.CommandError{
				Code:    40573,
				Name:    "Location40573",
				Message: "The $changeStream stage is only supported on replica sets",
			}),
			mtest.CreateCursorResponse(0, entriesNamespace(mt), mtest.FirstBatch,
				entryDocument("e1", "u1", "Existing", mongoNow)),
		)

		snapshots, err := m.WatchEntries(ctx, "u1")
		if err != nil {
			mt.Fatalf("WatchEntries error: %v", err)
		}
		first := receiveSnapshot(mt.T, snapshots)
		if len(first) != 1 || first[0].Title != "Existing" {
			mt.Fatalf("unexpected initial snapshot: %+v", first)
		}

		mt.AddMockResponses(mtest.CreateCursorResponse(0, entriesNamespace(mt), mtest.FirstBatch,
			entryDocument("e2", "u1", "Added", mongoNow.Add(time.Minute)),
			entryDocument("e1", "u1", "Existing", mongoNow),
		))
		if err := notifier.Publish(ctx, "u1"); err != nil {
			mt.Fatalf("Publish error: %v", err)
		}
		second := receiveSnapshot(mt.T, snapshots)
		if len(second) != 2 || second[0].Title != "Added" {
			mt.Fatalf("unexpected snapshot after publish: %+v", second)
		}
	})
}
