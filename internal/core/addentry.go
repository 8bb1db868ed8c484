package core

import (
	"context"

	"github.com/jo-hoe/refshelf/internal/backend/database"
)

// AddEntryForm collects a new entry: title, one image and tags.
type AddEntryForm struct {
	*entryForm
}

func NewAddEntryForm(deps FormDeps) *AddEntryForm {
	return &AddEntryForm{entryForm: newEntryForm(deps, "", nil)}
}

func (f *AddEntryForm) State() FormState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state()
}

// Submit uploads the image, resolves its URL and creates the entry, in that
// order. Nothing is sent when validation fails. Any failure leaves the form
// open with the error message; an image uploaded before the failure stays stored.
func (f *AddEntryForm) Submit(ctx context.Context) error {
	input, err := f.begin(true)
	if err != nil {
		return err
	}

	image, err := uploadImage(ctx, f.deps, input.image)
	if err != nil {
		return f.finish(err)
	}

	_, err = f.deps.Entries.CreateEntry(ctx, database.NewEntry{
		OwnerID:   f.deps.OwnerID,
		Title:     input.title,
		ImageURL:  image.URL,
		ImagePath: image.Path,
		Tags:      input.tags,
	})
	return f.finish(err)
}
