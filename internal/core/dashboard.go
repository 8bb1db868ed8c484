package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jo-hoe/refshelf/internal/backend/blobstore"
	"github.com/jo-hoe/refshelf/internal/backend/database"
)

type EmptyState int

const (
	EmptyNone EmptyState = iota
	EmptyNoEntries
	EmptyNoMatches
)

type ModalKind int

const (
	ModalNone ModalKind = iota
	ModalAdd
	ModalEdit
)

// SessionEnder ends an authenticated session.
type SessionEnder interface {
	SignOut(ctx context.Context, token string) error
}

type DashboardDeps struct {
	Entries               database.EntryStore
	Blobs                 blobstore.BlobStore
	Auth                  SessionEnder
	Fetcher               ImageFetcher
	Clipboard             Clipboard
	CopyIndicatorDuration time.Duration
	Now                   func() time.Time
}

// Dashboard is the signed in view of one user: the live entry list, the
// search filter over it, the entry cards and at most one open modal.
type Dashboard struct {
	deps    DashboardDeps
	ownerID string

	mu       sync.Mutex
	loaded   bool
	entries  []*database.Entry
	search   string
	filtered []*database.Entry
	cards    map[string]*EntryCard
	modal    ModalKind
	addForm  *AddEntryForm
	editForm *EditEntryForm

	subscribers map[chan struct{}]struct{}
	cancel      context.CancelFunc
	done        chan struct{}
}

func NewDashboard(deps DashboardDeps, ownerID string) *Dashboard {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Dashboard{
		deps:        deps,
		ownerID:     ownerID,
		entries:     []*database.Entry{},
		filtered:    []*database.Entry{},
		cards:       make(map[string]*EntryCard),
		subscribers: make(map[chan struct{}]struct{}),
	}
}

func (d *Dashboard) OwnerID() string {
	return d.ownerID
}

// Open starts the live subscription to the owner's entries. Every snapshot
// replaces the entry list. The subscription ends with Close or ctx.
func (d *Dashboard) Open(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	snapshots, err := d.deps.Entries.WatchEntries(ctx, d.ownerID)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to watch entries: %w", err)
	}

	done := make(chan struct{})
	d.mu.Lock()
	d.cancel = cancel
	d.done = done
	d.mu.Unlock()

	go func() {
		defer close(done)
		for snapshot := range snapshots {
			d.ApplySnapshot(snapshot)
		}
	}()
	return nil
}

// Close ends the live subscription and waits for it to stop.
func (d *Dashboard) Close() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel = nil
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Done is closed once the live subscription ended. It is nil before Open.
func (d *Dashboard) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// ApplySnapshot replaces the entry list and re-applies the current search.
func (d *Dashboard) ApplySnapshot(entries []*database.Entry) {
	d.mu.Lock()
	d.loaded = true
	d.entries = append(make([]*database.Entry, 0, len(entries)), entries...)

	present := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		present[entry.ID] = struct{}{}
		if card, ok := d.cards[entry.ID]; ok {
			card.setEntry(entry)
			continue
		}
		d.cards[entry.ID] = newEntryCard(entry, d.deps.Fetcher, d.deps.Clipboard, d.deps.CopyIndicatorDuration, d.notify)
	}
	for id := range d.cards {
		if _, ok := present[id]; !ok {
			delete(d.cards, id)
		}
	}

	d.filtered = FilterEntries(d.entries, d.search)
	d.mu.Unlock()

	d.notify()
}

func (d *Dashboard) SetSearch(search string) {
	d.mu.Lock()
	d.search = search
	d.filtered = FilterEntries(d.entries, search)
	d.mu.Unlock()
}

func (d *Dashboard) Search() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.search
}

// Loaded reports whether the first snapshot arrived.
func (d *Dashboard) Loaded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loaded
}

func (d *Dashboard) Entries() []*database.Entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*database.Entry(nil), d.entries...)
}

// Filtered returns the entries matching the current search, newest first.
func (d *Dashboard) Filtered() []*database.Entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*database.Entry(nil), d.filtered...)
}

// EmptyState tells which placeholder an empty grid shows: a typed search
// means nothing matched, otherwise there are no entries yet.
func (d *Dashboard) EmptyState() EmptyState {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case len(d.filtered) > 0:
		return EmptyNone
	case d.search != "":
		return EmptyNoMatches
	default:
		return EmptyNoEntries
	}
}

// Card returns the card of an entry in the current list, or nil.
func (d *Dashboard) Card(id string) *EntryCard {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cards[id]
}

func (d *Dashboard) formDeps() FormDeps {
	return FormDeps{
		Entries: d.deps.Entries,
		Blobs:   d.deps.Blobs,
		OwnerID: d.ownerID,
		Now:     d.deps.Now,
	}
}

// OpenAdd shows a fresh add form, replacing any open modal.
func (d *Dashboard) OpenAdd() *AddEntryForm {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.modal = ModalAdd
	d.addForm = NewAddEntryForm(d.formDeps())
	d.editForm = nil
	return d.addForm
}

// OpenEdit shows the edit form of an entry, replacing any open modal.
func (d *Dashboard) OpenEdit(id string) (*EditEntryForm, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	card, ok := d.cards[id]
	if !ok {
		return nil, database.ErrEntryNotFound
	}
	d.modal = ModalEdit
	d.editForm = NewEditEntryForm(d.formDeps(), card.Entry())
	d.addForm = nil
	return d.editForm, nil
}

func (d *Dashboard) CloseModal() {
	d.mu.Lock()
	d.closeModalLocked()
	d.mu.Unlock()
}

func (d *Dashboard) closeModalLocked() {
	d.modal = ModalNone
	d.addForm = nil
	d.editForm = nil
}

// Modal returns the open modal and its form. Only the form matching the kind is set.
func (d *Dashboard) Modal() (ModalKind, *AddEntryForm, *EditEntryForm) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.modal, d.addForm, d.editForm
}

// EntryForm is the add or the edit form.
type EntryForm interface {
	SetTitle(title string)
	SetTagInput(input string)
	CommitTag()
	RemoveTag(tag string)
	SetImage(image *ImageFile)
	Submit(ctx context.Context) error
	State() FormState
	Closed() bool
}

// ActiveForm returns the form of the open modal, or nil.
func (d *Dashboard) ActiveForm() EntryForm {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.modal {
	case ModalAdd:
		return d.addForm
	case ModalEdit:
		return d.editForm
	default:
		return nil
	}
}

// SubmitModal submits the open form and closes the modal once the form closed.
func (d *Dashboard) SubmitModal(ctx context.Context) error {
	form := d.ActiveForm()
	if form == nil {
		return fmt.Errorf("no form is open")
	}

	if err := form.Submit(ctx); err != nil {
		return err
	}

	d.mu.Lock()
	if current := d.activeFormLocked(); current == form && form.Closed() {
		d.closeModalLocked()
	}
	d.mu.Unlock()
	return nil
}

func (d *Dashboard) activeFormLocked() EntryForm {
	switch d.modal {
	case ModalAdd:
		return d.addForm
	case ModalEdit:
		return d.editForm
	}
	return nil
}

// SignOut ends the session. Failures are logged and otherwise ignored.
func (d *Dashboard) SignOut(ctx context.Context, token string) {
	if err := d.deps.Auth.SignOut(ctx, token); err != nil {
		slog.Error("Dashboard: failed to sign out", "owner_id", d.ownerID, "error", err)
	}
}

// Subscribe returns a channel signalled after every change of the rendered
// state, and a function ending the subscription.
func (d *Dashboard) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	d.mu.Lock()
	d.subscribers[ch] = struct{}{}
	d.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subscribers, ch)
			d.mu.Unlock()
		})
	}
}

func (d *Dashboard) notify() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for ch := range d.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
