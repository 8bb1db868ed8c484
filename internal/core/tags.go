package core

import "strings"

// TagList is an ordered set of tags. Tags are compared exactly, so "Go" and
// "go" are different tags.
type TagList struct {
	tags []string
}

func NewTagList(tags []string) *TagList {
	list := &TagList{tags: make([]string, 0, len(tags))}
	for _, tag := range tags {
		list.Add(tag)
	}
	return list
}

// Add appends the trimmed tag unless it is empty or already present.
func (l *TagList) Add(raw string) bool {
	tag := strings.TrimSpace(raw)
	if tag == "" || l.Contains(tag) {
		return false
	}
	l.tags = append(l.tags, tag)
	return true
}

// Remove deletes the first tag equal to tag.
func (l *TagList) Remove(tag string) bool {
	for i, existing := range l.tags {
		if existing == tag {
			l.tags = append(l.tags[:i], l.tags[i+1:]...)
			return true
		}
	}
	return false
}

func (l *TagList) Contains(tag string) bool {
	for _, existing := range l.tags {
		if existing == tag {
			return true
		}
	}
	return false
}

// Tags returns a copy of the tags in insertion order.
func (l *TagList) Tags() []string {
	out := make([]string, len(l.tags))
	copy(out, l.tags)
	return out
}

func (l *TagList) Len() int {
	return len(l.tags)
}
