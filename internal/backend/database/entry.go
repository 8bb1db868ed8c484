package database

import "time"

// Entry is one reference item: a titled, tagged image owned by a single user.
type Entry struct {
	ID        string    `db:"id" bson:"_id" json:"id"`
	OwnerID   string    `db:"owner_id" bson:"ownerId" json:"ownerId"`
	Title     string    `db:"title" bson:"title" json:"title"`
	ImageURL  string    `db:"image_url" bson:"imageUrl" json:"imageUrl"`
	ImagePath string    `db:"image_path" bson:"imagePath" json:"imagePath"` // blob store path backing ImageURL
	Tags      []string  `db:"tags" bson:"tags" json:"tags"`
	CreatedAt time.Time `db:"created_at" bson:"createdAt" json:"createdAt"` // assigned by the store, never updated
}

// NewEntry holds the caller supplied fields of an entry. ID and CreatedAt are assigned by the store.
type NewEntry struct {
	OwnerID   string
	Title     string
	ImageURL  string
	ImagePath string
	Tags      []string
}

// ImageRef points at a stored blob and the URL it resolves to.
type ImageRef struct {
	URL  string
	Path string
}

// EntryUpdate replaces the editable fields of an entry. A nil Image keeps the current image.
type EntryUpdate struct {
	Title string
	Tags  []string
	Image *ImageRef
}

type User struct {
	ID           string    `db:"id" bson:"_id" json:"id"`
	Email        string    `db:"email" bson:"email" json:"email"`
	PasswordHash string    `db:"password_hash" bson:"passwordHash" json:"-"`
	CreatedAt    time.Time `db:"created_at" bson:"createdAt" json:"createdAt"`
}

// cloneTags returns a copy that never aliases caller memory and is never nil.
func cloneTags(tags []string) []string {
	out := make([]string, len(tags))
	copy(out, tags)
	return out
}
