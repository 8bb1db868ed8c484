package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"
)

// SQLDatabase stores entries and users in a relational database. The same schema
// and queries serve SQLite and PostgreSQL; queries are written with '?' placeholders
// and rebound for PostgreSQL.
type SQLDatabase struct {
	db               *sql.DB
	driver           string
	connectionString string
	notifier         ChangeNotifier
	now              func() time.Time
}

func NewSQLiteDatabase(connectionString string, notifier ChangeNotifier) (*SQLDatabase, error) {
	db, err := sql.Open(driverSQLite, connectionString)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	return newSQLDatabase(db, driverSQLite, connectionString, notifier), nil
}

func NewPostgresDatabase(connectionString string, notifier ChangeNotifier) (*SQLDatabase, error) {
	db, err := sql.Open(driverPostgres, connectionString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return newSQLDatabase(db, driverPostgres, connectionString, notifier), nil
}

func newSQLDatabase(db *sql.DB, driver, connectionString string, notifier ChangeNotifier) *SQLDatabase {
	if notifier == nil {
		notifier = NewMemoryNotifier()
	}
	return &SQLDatabase{
		db:               db,
		driver:           driver,
		connectionString: connectionString,
		notifier:         notifier,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// rebind rewrites '?' placeholders into '$n' for PostgreSQL.
func (s *SQLDatabase) rebind(query string) string {
	if s.driver != driverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLDatabase) CreateDatabase(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS entries (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			title TEXT NOT NULL,
			image_url TEXT NOT NULL,
			image_path TEXT NOT NULL,
			tags TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_owner_created ON entries(owner_id, created_at)`,
	}
	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

func (s *SQLDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLDatabase) DoesDatabaseExist(ctx context.Context) bool {
	return s.db.PingContext(ctx) == nil
}

func (s *SQLDatabase) CreateEntry(ctx context.Context, entry NewEntry) (*Entry, error) {
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
		CreatedAt: s.now(),
	}

	tags, err := json.Marshal(created.Tags)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.rebind(
		"INSERT INTO entries (id, owner_id, title, image_url, image_path, tags, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)"),
		created.ID, created.OwnerID, created.Title, created.ImageURL, created.ImagePath, string(tags), created.CreatedAt.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to insert entry: %w", err)
	}

	s.publish(ctx, created.OwnerID)
	return created, nil
}

func (s *SQLDatabase) UpdateEntry(ctx context.Context, ownerID, id string, update EntryUpdate) error {
	tags, err := json.Marshal(cloneTags(update.Tags))
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	var result sql.Result
	if update.Image != nil {
		result, err = s.db.ExecContext(ctx, s.rebind(
			"UPDATE entries SET title = ?, tags = ?, image_url = ?, image_path = ? WHERE id = ? AND owner_id = ?"),
			update.Title, string(tags), update.Image.URL, update.Image.Path, id, ownerID)
	} else {
		result, err = s.db.ExecContext(ctx, s.rebind(
			"UPDATE entries SET title = ?, tags = ? WHERE id = ? AND owner_id = ?"),
			update.Title, string(tags), id, ownerID)
	}
	if err != nil {
		return fmt.Errorf("failed to update entry %s: %w", id, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrEntryNotFound
	}

	s.publish(ctx, ownerID)
	return nil
}

func (s *SQLDatabase) GetEntries(ctx context.Context, ownerID string) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		"SELECT id, owner_id, title, image_url, image_path, tags, created_at FROM entries WHERE owner_id = ? ORDER BY created_at DESC, id DESC"),
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	entries := make([]*Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}
	return entries, nil
}

func (s *SQLDatabase) GetEntryByID(ctx context.Context, ownerID, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		"SELECT id, owner_id, title, image_url, image_path, tags, created_at FROM entries WHERE id = ? AND owner_id = ?"),
		id, ownerID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return entry, err
}

func (s *SQLDatabase) WatchEntries(ctx context.Context, ownerID string) (<-chan []*Entry, error) {
	return watchSnapshots(ctx, s.notifier, ownerID, func(ctx context.Context) ([]*Entry, error) {
		return s.GetEntries(ctx, ownerID)
	})
}

func (s *SQLDatabase) CreateUser(ctx context.Context, email, passwordHash string) (*User, error) {
	existing, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	id, err := generateID()
	if err != nil {
		return nil, err
	}
	user := &User{ID: id, Email: email, PasswordHash: passwordHash, CreatedAt: s.now()}

	_, err = s.db.ExecContext(ctx, s.rebind(
		"INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)"),
		user.ID, user.Email, user.PasswordHash, user.CreatedAt.UnixNano())
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return user, nil
}

func (s *SQLDatabase) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.getUser(ctx, "SELECT id, email, password_hash, created_at FROM users WHERE email = ?", email)
}

func (s *SQLDatabase) GetUserByID(ctx context.Context, id string) (*User, error) {
	return s.getUser(ctx, "SELECT id, email, password_hash, created_at FROM users WHERE id = ?", id)
}

func (s *SQLDatabase) getUser(ctx context.Context, query string, arg string) (*User, error) {
	var user User
	var createdAt int64
	err := s.db.QueryRowContext(ctx, s.rebind(query), arg).Scan(&user.ID, &user.Email, &user.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	user.CreatedAt = time.Unix(0, createdAt).UTC()
	return &user, nil
}

func (s *SQLDatabase) publish(ctx context.Context, ownerID string) {
	if err := s.notifier.Publish(ctx, ownerID); err != nil {
		slog.Warn("SQLDatabase: failed to publish entry change", "owner_id", ownerID, "error", err)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var entry Entry
	var tags string
	var createdAt int64
	if err := row.Scan(&entry.ID, &entry.OwnerID, &entry.Title, &entry.ImageURL, &entry.ImagePath, &tags, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan entry: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &entry.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags of entry %s: %w", entry.ID, err)
	}
	if entry.Tags == nil {
		entry.Tags = []string{}
	}
	entry.CreatedAt = time.Unix(0, createdAt).UTC()
	return &entry, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
