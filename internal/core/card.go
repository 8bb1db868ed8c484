package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jo-hoe/refshelf/internal/backend/database"
	"github.com/jo-hoe/refshelf/internal/backend/imaging"
)

// DefaultCopyIndicatorDuration is how long the copied and error indicators stay visible.
const DefaultCopyIndicatorDuration = 2 * time.Second

// CopyState is the transient feedback of the copy actions.
type CopyState struct {
	Copied bool
	Error  bool
}

// EntryCard holds the interactive state of one entry in the grid.
type EntryCard struct {
	fetcher   ImageFetcher
	clipboard Clipboard
	indicator time.Duration
	afterFunc func(time.Duration, func())
	onChange  func()

	mu          sync.Mutex
	entry       *database.Entry
	previewOpen bool
	copied      bool
	copyError   bool
}

func newEntryCard(entry *database.Entry, fetcher ImageFetcher, clipboard Clipboard, indicator time.Duration, onChange func()) *EntryCard {
	if indicator <= 0 {
		indicator = DefaultCopyIndicatorDuration
	}
	return &EntryCard{
		entry:     entry,
		fetcher:   fetcher,
		clipboard: clipboard,
		indicator: indicator,
		afterFunc: func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		onChange:  onChange,
	}
}

func (c *EntryCard) Entry() *database.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entry
}

func (c *EntryCard) setEntry(entry *database.Entry) {
	c.mu.Lock()
	c.entry = entry
	c.mu.Unlock()
}

func (c *EntryCard) OpenPreview() {
	c.mu.Lock()
	c.previewOpen = true
	c.mu.Unlock()
}

func (c *EntryCard) ClosePreview() {
	c.mu.Lock()
	c.previewOpen = false
	c.mu.Unlock()
}

func (c *EntryCard) PreviewOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.previewOpen
}

func (c *EntryCard) CopyState() CopyState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CopyState{Copied: c.copied, Error: c.copyError}
}

// IndicatorDuration is how long a copy indicator stays set.
func (c *EntryCard) IndicatorDuration() time.Duration {
	return c.indicator
}

// Copy places the entry's image on the clipboard as PNG. The outcome is
// reported through CopyState and returned; failures are never retried.
func (c *EntryCard) Copy(ctx context.Context) error {
	entry := c.Entry()
	err := c.guard(func() error {
		data, err := c.fetcher.Fetch(ctx, entry.ImageURL)
		if err != nil {
			return err
		}
		png, err := imaging.NewDefaultPngConverterCommand().Execute(data)
		if err != nil {
			return err
		}
		return c.clipboard.WriteImage(ctx, png)
	})
	c.finishCopy(err)
	if err != nil {
		slog.Error("EntryCard: failed to copy image", "entry_id", entry.ID, "error", err)
	}
	return err
}

// CopyLink places the entry's image URL on the clipboard as text.
func (c *EntryCard) CopyLink(ctx context.Context) error {
	entry := c.Entry()
	err := c.guard(func() error {
		return c.clipboard.WriteText(ctx, entry.ImageURL)
	})
	c.finishCopy(err)
	if err != nil {
		slog.Error("EntryCard: failed to copy link", "entry_id", entry.ID, "error", err)
	}
	return err
}

// guard turns a panic inside a clipboard backend into an error.
func (c *EntryCard) guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("copy failed: %v", r)
		}
	}()
	return fn()
}

// finishCopy sets the matching indicator and schedules its reset. Every call
// schedules its own reset, so an earlier timer may clear a later indicator.
func (c *EntryCard) finishCopy(err error) {
	c.mu.Lock()
	if err == nil {
		c.copied = true
		c.copyError = false
	} else {
		c.copyError = true
	}
	c.mu.Unlock()
	c.changed()

	succeeded := err == nil
	c.afterFunc(c.indicator, func() {
		c.mu.Lock()
		if succeeded {
			c.copied = false
		} else {
			c.copyError = false
		}
		c.mu.Unlock()
		c.changed()
	})
}

func (c *EntryCard) changed() {
	if c.onChange != nil {
		c.onChange()
	}
}
