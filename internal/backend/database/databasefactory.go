package database

import (
	"context"
	"fmt"
	"log/slog"
)

func NewDatabase(ctx context.Context, databaseType, connectionString, databaseName string, notifier ChangeNotifier) (database DatabaseService, err error) {
	switch databaseType {
	case "sqlite":
		database, err = NewSQLiteDatabase(connectionString, notifier)
	case "postgres":
		database, err = NewPostgresDatabase(connectionString, notifier)
	case "mongodb":
		database, err = NewMongoDatabase(ctx, connectionString, databaseName, notifier)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", databaseType)
	}
	if err != nil {
		return nil, err
	}

	// Ensure the schema exists (idempotent), important for in-memory SQLite
	slog.Info("initializing database schema", "type", databaseType)
	if err = database.CreateDatabase(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	return database, nil
}
