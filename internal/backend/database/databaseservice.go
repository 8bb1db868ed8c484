package database

import (
	"context"
	"errors"
)

var (
	ErrEntryNotFound = errors.New("entry not found")
	ErrEmailTaken    = errors.New("email is already registered")
)

// EntryStore is the document collection of reference entries.
type EntryStore interface {
	// CreateEntry stores a new entry, assigning its ID and creation timestamp.
	CreateEntry(ctx context.Context, entry NewEntry) (*Entry, error)
	// UpdateEntry replaces title, tags and optionally the image of an entry owned by ownerID.
	UpdateEntry(ctx context.Context, ownerID, id string, update EntryUpdate) error
	// GetEntries returns all entries of ownerID, newest first.
	GetEntries(ctx context.Context, ownerID string) ([]*Entry, error)
	// GetEntryByID returns nil without error when the entry does not exist.
	GetEntryByID(ctx context.Context, ownerID, id string) (*Entry, error)
	// WatchEntries streams full snapshots of ownerID's entries, newest first.
	// The first snapshot is sent right away; later ones follow every change.
	// The channel is closed once ctx is done.
	WatchEntries(ctx context.Context, ownerID string) (<-chan []*Entry, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, email, passwordHash string) (*User, error)
	// GetUserByEmail returns nil without error when no user is registered with email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	// GetUserByID returns nil without error when the user does not exist.
	GetUserByID(ctx context.Context, id string) (*User, error)
}

type DatabaseService interface {
	EntryStore
	UserStore

	// CreateDatabase ensures tables, collections and indexes exist. It is idempotent.
	CreateDatabase(ctx context.Context) error
	DoesDatabaseExist(ctx context.Context) bool
	Close() error
}
