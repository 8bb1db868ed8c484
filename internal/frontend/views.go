package frontend

import (
	"github.com/jo-hoe/refshelf/internal/backend/database"
	"github.com/jo-hoe/refshelf/internal/core"
)

type authView struct {
	Email   string
	Error   string
	SignUp  bool
	Heading string
}

type copyButtonView struct {
	EntryID         string
	Copied          bool
	Error           bool
	IndicatorMillis int64
}

type cardView struct {
	Entry       *database.Entry
	CopyButton  copyButtonView
	PreviewOpen bool
}

type gridView struct {
	Loaded    bool
	Cards     []cardView
	NoEntries bool
	NoMatches bool
	OOB       bool
}

type modalView struct {
	Open   bool
	IsEdit bool
	Form   core.FormState
}

type dashboardView struct {
	Email  string
	Search string
	Grid   gridView
	Modal  modalView
}

func newCopyButtonView(card *core.EntryCard) copyButtonView {
	state := card.CopyState()
	return copyButtonView{
		EntryID:         card.Entry().ID,
		Copied:          state.Copied,
		Error:           state.Error,
		IndicatorMillis: card.IndicatorDuration().Milliseconds(),
	}
}

func newGridView(dashboard *core.Dashboard) gridView {
	filtered := dashboard.Filtered()
	view := gridView{
		Loaded: dashboard.Loaded(),
		Cards:  make([]cardView, 0, len(filtered)),
	}
	for _, entry := range filtered {
		card := dashboard.Card(entry.ID)
		if card == nil {
			continue
		}
		view.Cards = append(view.Cards, cardView{
			Entry:       entry,
			CopyButton:  newCopyButtonView(card),
			PreviewOpen: card.PreviewOpen(),
		})
	}

	switch dashboard.EmptyState() {
	case core.EmptyNoEntries:
		view.NoEntries = true
	case core.EmptyNoMatches:
		view.NoMatches = true
	}
	return view
}

func newModalView(dashboard *core.Dashboard) modalView {
	kind, addForm, editForm := dashboard.Modal()
	switch kind {
	case core.ModalAdd:
		return modalView{Open: true, Form: addForm.State()}
	case core.ModalEdit:
		return modalView{Open: true, IsEdit: true, Form: editForm.State()}
	default:
		return modalView{}
	}
}
