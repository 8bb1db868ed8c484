package core

import (
	"strings"

	"github.com/jo-hoe/refshelf/internal/backend/database"
)

// FilterEntries keeps the entries whose title or any tag contains search,
// ignoring case. A blank search keeps everything. The search text is matched
// as typed, surrounding whitespace included.
func FilterEntries(entries []*database.Entry, search string) []*database.Entry {
	filtered := make([]*database.Entry, 0, len(entries))
	if strings.TrimSpace(search) == "" {
		return append(filtered, entries...)
	}

	needle := strings.ToLower(search)
	for _, entry := range entries {
		if matchesSearch(entry, needle) {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

func matchesSearch(entry *database.Entry, needle string) bool {
	if strings.Contains(strings.ToLower(entry.Title), needle) {
		return true
	}
	for _, tag := range entry.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}
