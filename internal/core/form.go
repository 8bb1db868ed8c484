package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator"
	"github.com/jo-hoe/refshelf/internal/backend/blobstore"
	"github.com/jo-hoe/refshelf/internal/backend/database"
	"github.com/jo-hoe/refshelf/internal/backend/imaging"
)

var (
	ErrTitleRequired = errors.New("title is required")
	ErrImageRequired = errors.New("image is required")
	ErrNotImage      = errors.New("file is not a supported image")
	ErrImageTooLarge = fmt.Errorf("image is larger than %d MB", MaxImageSize>>20)

	// ErrFormBusy is returned when a form is submitted while a submission is
	// running or after it closed.
	ErrFormBusy = errors.New("form is already submitted")
)

// MaxImageSize bounds the bytes of an image chosen in a form.
const MaxImageSize = 32 << 20

var formValidator = validator.New()

// UserMessage is the text shown in a form for err.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTitleRequired):
		return "Please enter a title"
	case errors.Is(err, ErrImageRequired):
		return "Please select an image"
	case errors.Is(err, ErrNotImage):
		return "Please select an image file"
	case errors.Is(err, ErrImageTooLarge):
		return fmt.Sprintf("Please select an image smaller than %d MB", MaxImageSize>>20)
	default:
		return err.Error()
	}
}

// ImageFile is an image chosen in a form.
type ImageFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// EntryWriter is the part of the document store the forms write through.
type EntryWriter interface {
	CreateEntry(ctx context.Context, entry database.NewEntry) (*database.Entry, error)
	UpdateEntry(ctx context.Context, ownerID, id string, update database.EntryUpdate) error
}

type FormDeps struct {
	Entries EntryWriter
	Blobs   blobstore.BlobStore
	OwnerID string
	Now     func() time.Time
}

// FormState is a consistent snapshot of a form for rendering.
type FormState struct {
	EntryID         string
	Title           string
	TagInput        string
	Tags            []string
	ImageName       string
	CurrentImageURL string
	Error           string
	Submitting      bool
	Closed          bool
}

// entryForm carries the fields and rules shared by the add and edit forms.
type entryForm struct {
	deps FormDeps

	mu         sync.Mutex
	title      string
	tagInput   string
	tags       *TagList
	image      *ImageFile
	err        string
	submitting bool
	closed     bool
}

func newEntryForm(deps FormDeps, title string, tags []string) *entryForm {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &entryForm{deps: deps, title: title, tags: NewTagList(tags)}
}

func (f *entryForm) SetTitle(title string) {
	f.mu.Lock()
	f.title = title
	f.mu.Unlock()
}

func (f *entryForm) SetTagInput(input string) {
	f.mu.Lock()
	f.tagInput = input
	f.mu.Unlock()
}

// CommitTag adds the pending tag input and clears it. Blank input is left untouched.
func (f *entryForm) CommitTag() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.TrimSpace(f.tagInput) == "" {
		return
	}
	f.tags.Add(f.tagInput)
	f.tagInput = ""
}

func (f *entryForm) RemoveTag(tag string) {
	f.mu.Lock()
	f.tags.Remove(tag)
	f.mu.Unlock()
}

func (f *entryForm) SetImage(image *ImageFile) {
	f.mu.Lock()
	f.image = image
	f.mu.Unlock()
}

func (f *entryForm) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *entryForm) state() FormState {
	state := FormState{
		Title:      f.title,
		TagInput:   f.tagInput,
		Tags:       f.tags.Tags(),
		Error:      f.err,
		Submitting: f.submitting,
		Closed:     f.closed,
	}
	if f.image != nil {
		state.ImageName = f.image.Filename
	}
	return state
}

type submission struct {
	title string
	tags  []string
	image *ImageFile
}

// begin validates the form and marks it as submitting.
func (f *entryForm) begin(imageRequired bool) (submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitting || f.closed {
		return submission{}, ErrFormBusy
	}

	if err := validateEntryInput(f.title, f.image, imageRequired); err != nil {
		f.err = UserMessage(err)
		return submission{}, err
	}

	f.submitting = true
	f.err = ""
	return submission{title: f.title, tags: f.tags.Tags(), image: f.image}, nil
}

// finish records the outcome of a submission. Success closes the form, a
// failure keeps it open with the error message.
func (f *entryForm) finish(err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitting = false
	if err != nil {
		f.err = UserMessage(err)
		return err
	}
	f.closed = true
	return nil
}

type entryInput struct {
	Title string `validate:"required"`
}

type imageInput struct {
	Image *ImageFile `validate:"required"`
}

func validateEntryInput(title string, image *ImageFile, imageRequired bool) error {
	if err := formValidator.Struct(entryInput{Title: title}); err != nil {
		return ErrTitleRequired
	}
	if imageRequired {
		if err := formValidator.Struct(imageInput{Image: image}); err != nil {
			return ErrImageRequired
		}
	}
	if image != nil {
		if len(image.Data) > MaxImageSize {
			return ErrImageTooLarge
		}
		if _, ok := imaging.DetectImage(image.Data); !ok {
			return ErrNotImage
		}
	}
	return nil
}

// uploadImage stores image under a time based object name and resolves its URL.
func uploadImage(ctx context.Context, deps FormDeps, image *ImageFile) (database.ImageRef, error) {
	path := blobstore.ObjectName(deps.Now(), image.Filename)
	if err := deps.Blobs.Upload(ctx, path, image.Data, image.ContentType); err != nil {
		return database.ImageRef{}, err
	}
	url, err := deps.Blobs.DownloadURL(ctx, path)
	if err != nil {
		return database.ImageRef{}, err
	}
	return database.ImageRef{URL: url, Path: path}, nil
}
