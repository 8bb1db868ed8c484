package core

import (
	"strings"
	"testing"

	"github.com/jo-hoe/refshelf/internal/backend/database"
)

func searchFixture() []*database.Entry {
	return []*database.Entry{
		{ID: "1", Title: "Sunset Beach", Tags: []string{"landscape", "warm"}},
		{ID: "2", Title: "Portrait study", Tags: []string{"Anatomy"}},
		{ID: "3", Title: "Forest", Tags: nil},
		{ID: "4", Title: "Hands", Tags: []string{"anatomy", "reference"}},
	}
}

func ids(entries []*database.Entry) string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return strings.Join(out, ",")
}

func TestFilterEntries(t *testing.T) {
	tests := []struct {
		name   string
		search string
		want   string
	}{
		{"empty keeps all", "", "1,2,3,4"},
		{"whitespace keeps all", "   \t", "1,2,3,4"},
		{"title case insensitive", "sunset", "1"},
		{"tag case insensitive", "ANATOMY", "2,4"},
		{"title substring", "st", "2,3"},
		{"no match", "zebra", ""},
		{"untrimmed term", " beach", "1"},
		{"untrimmed term without match", "forest ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(FilterEntries(searchFixture(), tt.search))
			if got != tt.want {
				t.Fatalf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestFilterEntries_SubsetAndMembership(t *testing.T) {
	entries := searchFixture()
	for _, search := range []string{"", "a", "an", "Or", "e", "ref", "x", " ", "study"} {
		filtered := FilterEntries(entries, search)

		inFiltered := make(map[string]bool)
		for _, e := range filtered {
			inFiltered[e.ID] = true
		}
		for _, e := range entries {
			expected := strings.TrimSpace(search) == "" || matchesSearch(e, strings.ToLower(search))
			if inFiltered[e.ID] != expected {
				t.Fatalf("search %q: entry %s membership expected %v, got %v", search, e.ID, expected, inFiltered[e.ID])
			}
		}
		if len(filtered) > len(entries) {
			t.Fatalf("search %q: filtered list larger than input", search)
		}
	}
}

func TestFilterEntries_KeepsOrderAndReturnsNewSlice(t *testing.T) {
	entries := searchFixture()
	filtered := FilterEntries(entries, "")
	if filtered == nil {
		t.Fatalf("Expected non-nil slice")
	}
	filtered[0] = nil
	if entries[0] == nil {
		t.Fatalf("Expected input to be untouched")
	}

	empty := FilterEntries(nil, "x")
	if empty == nil || len(empty) != 0 {
		t.Fatalf("Expected empty non-nil slice, got %v", empty)
	}
}
