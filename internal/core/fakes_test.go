package core

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/jo-hoe/refshelf/internal/backend/database"
)

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 60), uint8(y * 60), 200, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode error: %v", err)
	}
	return buf.Bytes()
}

var errBackend = errors.New("backend unavailable")

type fakeBlobs struct {
	mu          sync.Mutex
	uploads     []string
	resolutions []string
	uploadErr   error
	urlErr      error
}

func (f *fakeBlobs) Upload(_ context.Context, blobPath string, _ []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, blobPath)
	return f.uploadErr
}

func (f *fakeBlobs) DownloadURL(_ context.Context, blobPath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolutions = append(f.resolutions, blobPath)
	if f.urlErr != nil {
		return "", f.urlErr
	}
	return "https://blobs.test/" + blobPath, nil
}

func (f *fakeBlobs) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads), len(f.resolutions)
}

type updateCall struct {
	ownerID string
	id      string
	update  database.EntryUpdate
}

// fakeEntries is an EntryStore whose live query is driven by the test.
type fakeEntries struct {
	mu        sync.Mutex
	creates   []database.NewEntry
	updates   []updateCall
	createErr error
	updateErr error
	watchErr  error
	snapshots chan []*database.Entry
}

func newFakeEntries() *fakeEntries {
	return &fakeEntries{snapshots: make(chan []*database.Entry)}
}

func (f *fakeEntries) CreateEntry(_ context.Context, entry database.NewEntry) (*database.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, entry)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &database.Entry{ID: "new", OwnerID: entry.OwnerID, Title: entry.Title, ImageURL: entry.ImageURL, Tags: entry.Tags}, nil
}

func (f *fakeEntries) UpdateEntry(_ context.Context, ownerID, id string, update database.EntryUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, updateCall{ownerID: ownerID, id: id, update: update})
	return f.updateErr
}

func (f *fakeEntries) GetEntries(context.Context, string) ([]*database.Entry, error) {
	return nil, nil
}

func (f *fakeEntries) GetEntryByID(context.Context, string, string) (*database.Entry, error) {
	return nil, nil
}

func (f *fakeEntries) WatchEntries(ctx context.Context, _ string) (<-chan []*database.Entry, error) {
	if f.watchErr != nil {
		return nil, f.watchErr
	}
	out := make(chan []*database.Entry)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case snapshot := <-f.snapshots:
				select {
				case out <- snapshot:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (f *fakeEntries) push(t *testing.T, snapshot []*database.Entry) {
	t.Helper()
	select {
	case f.snapshots <- snapshot:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out pushing snapshot")
	}
}

type fakeFetcher struct {
	data []byte
	err  error
}

func (f *fakeFetcher) Fetch(context.Context, string) ([]byte, error) {
	return f.data, f.err
}

type fakeClipboard struct {
	mu       sync.Mutex
	images   [][]byte
	texts    []string
	err      error
	panicMsg string
}

func (f *fakeClipboard) WriteImage(_ context.Context, png []byte) error {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images = append(f.images, png)
	return f.err
}

func (f *fakeClipboard) WriteText(_ context.Context, text string) error {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return f.err
}

type fakeSessionEnder struct {
	mu     sync.Mutex
	tokens []string
	err    error
}

func (f *fakeSessionEnder) SignOut(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
	return f.err
}

func fixedNow() time.Time {
	return time.UnixMilli(1700000000000)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}
