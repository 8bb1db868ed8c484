package core

import (
	"context"

	"github.com/jo-hoe/refshelf/internal/backend/database"
)

// EditEntryForm changes an existing entry. Title and tags are replaced as a
// whole; the image is replaced only when a new one is chosen, and the previous
// blob is kept.
type EditEntryForm struct {
	*entryForm
	entryID         string
	currentImageURL string
}

func NewEditEntryForm(deps FormDeps, entry *database.Entry) *EditEntryForm {
	return &EditEntryForm{
		entryForm:       newEntryForm(deps, entry.Title, entry.Tags),
		entryID:         entry.ID,
		currentImageURL: entry.ImageURL,
	}
}

func (f *EditEntryForm) EntryID() string {
	return f.entryID
}

func (f *EditEntryForm) State() FormState {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := f.state()
	state.EntryID = f.entryID
	state.CurrentImageURL = f.currentImageURL
	return state
}

func (f *EditEntryForm) Submit(ctx context.Context) error {
	input, err := f.begin(false)
	if err != nil {
		return err
	}

	update := database.EntryUpdate{Title: input.title, Tags: input.tags}
	if input.image != nil {
		image, err := uploadImage(ctx, f.deps, input.image)
		if err != nil {
			return f.finish(err)
		}
		update.Image = &image
	}

	err = f.deps.Entries.UpdateEntry(ctx, f.deps.OwnerID, f.entryID, update)
	return f.finish(err)
}
