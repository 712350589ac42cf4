package search

import (
	"strings"

	"libris/api/internal/store"
)

// Local searches the in-memory catalogue mirror with a case-insensitive
// substring match on title and author. It is always healthy; the data is
// whatever the mirror last delivered.
type Local struct {
	snapshot func() []store.Book
}

// NewLocal builds a fallback searcher over a snapshot source, typically
// the book mirror's Snapshot method.
func NewLocal(snapshot func() []store.Book) *Local {
	return &Local{snapshot: snapshot}
}

func (l *Local) Healthy() bool {
	return true
}

// Search filters the current snapshot. A blank query matches nothing.
func (l *Local) Search(q Query) ([]Result, int, error) {
	needle := strings.ToLower(strings.TrimSpace(q.Text))
	if needle == "" {
		return []Result{}, 0, nil
	}

	var matched []Result
	for _, book := range l.snapshot() {
		title := strings.ToLower(book.Title)
		author := strings.ToLower(book.Author)
		if !strings.Contains(title, needle) && !strings.Contains(author, needle) {
			continue
		}
		matched = append(matched, Result{
			ID:     book.ID,
			Title:  book.Title,
			Author: book.Author,
			Cover:  book.Cover,
		})
	}

	total := len(matched)
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []Result{}, total, nil
	}
	matched = matched[offset:]

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}
