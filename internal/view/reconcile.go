// Package view decides what a connected client sees after each mirror
// update, without disturbing whatever the user is in the middle of.
package view

import (
	"strings"
	"sync"

	"libris/api/internal/store"
)

// Renderer receives render directives. Implementations must not call
// back into the Reconciler.
type Renderer interface {
	RenderBookList(books []store.Book)
	RenderSearchResults(books []store.Book)
	// RenderSearchPlaceholder shows the "start typing to search" state,
	// which is distinct from an empty result set.
	RenderSearchPlaceholder()
	CollapseSearch()
	RenderNotices(notices []store.Notice)
	RenderAdminReservations(books []store.Book)
	RenderAdminNotices(notices []store.Notice)
	ShowWarning(message string)
	ScrollNoticesIntoView()
}

// Reconciler projects mirror updates onto a Renderer according to the
// current view state. All methods are safe for concurrent use; render
// calls for one reconciler never interleave.
type Reconciler struct {
	mu       sync.Mutex
	state    state
	renderer Renderer

	books   []store.Book
	notices []store.Notice
}

func New(renderer Renderer) *Reconciler {
	return &Reconciler{
		state:    state{mode: ModeHome, deleteReturn: ModeHome},
		renderer: renderer,
	}
}

func (r *Reconciler) Mode() Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.mode
}

func (r *Reconciler) Query() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.query
}

func (r *Reconciler) AdminOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.adminOpen
}

// OnBooksUpdate applies a new books snapshot. A user mid-search keeps
// their query and sees re-filtered results; everyone else gets the
// default listing in mirror order. The admin lists re-render
// unconditionally while the panel is open.
func (r *Reconciler) OnBooksUpdate(snapshot []store.Book) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.books = snapshot
	if r.state.mode == ModeSearch && strings.TrimSpace(r.state.query) != "" {
		r.renderer.RenderSearchResults(FilterBooks(snapshot, r.state.query))
	} else {
		r.renderer.RenderBookList(snapshot)
	}
	r.renderAdminLocked()
}

// OnNoticesUpdate applies a new notices snapshot: the public feed
// always re-renders, the admin list only while the panel is open.
func (r *Reconciler) OnNoticesUpdate(snapshot []store.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.notices = snapshot
	r.renderer.RenderNotices(snapshot)
	if r.state.adminOpen {
		r.renderer.RenderAdminNotices(snapshot)
	}
}

func (r *Reconciler) renderAdminLocked() {
	if !r.state.adminOpen {
		return
	}
	r.renderer.RenderAdminReservations(ReservedBooks(r.books))
	r.renderer.RenderAdminNotices(r.notices)
}

// Navigate switches the active view. While delete-mode is active every
// switch away is rejected with a warning until ExitDeleteMode. Leaving
// search clears the query and collapses the results.
func (r *Reconciler) Navigate(to Mode) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.navigateLocked(to)
}

func (r *Reconciler) navigateLocked(to Mode) bool {
	if r.state.mode == ModeDelete && to != ModeDelete {
		r.renderer.ShowWarning("Exit delete mode before leaving this screen.")
		return false
	}
	if to == ModeDelete {
		return r.enterDeleteLocked()
	}

	from := r.state.mode
	r.state.mode = to
	if to != ModeSearch && (from == ModeSearch || r.state.query != "") {
		r.state.query = ""
		r.renderer.CollapseSearch()
	}

	switch to {
	case ModeHome:
		r.renderer.RenderBookList(r.books)
	case ModeNotices:
		r.renderer.RenderNotices(r.notices)
	case ModeSearch:
		if strings.TrimSpace(r.state.query) == "" {
			r.renderer.RenderSearchPlaceholder()
		} else {
			r.renderer.RenderSearchResults(FilterBooks(r.books, r.state.query))
		}
	case ModeAdmin:
		// listing handled by the admin panel renders
	}
	return true
}

// SetQuery updates the live search text and re-renders the results
// container. A blank query shows the placeholder, not an empty result
// list.
func (r *Reconciler) SetQuery(query string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state.query = query
	if r.state.mode != ModeSearch {
		return
	}
	if strings.TrimSpace(query) == "" {
		r.renderer.RenderSearchPlaceholder()
		return
	}
	r.renderer.RenderSearchResults(FilterBooks(r.books, query))
}

func (r *Reconciler) enterDeleteLocked() bool {
	if r.state.mode == ModeDelete {
		return true
	}
	r.state.deleteReturn = r.state.mode
	r.state.mode = ModeDelete
	return true
}

// ExitDeleteMode is the only way out of delete-mode; it returns to the
// view that was active when delete-mode started.
func (r *Reconciler) ExitDeleteMode() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.mode != ModeDelete {
		return
	}
	r.state.mode = r.state.deleteReturn
	r.navigateLocked(r.state.deleteReturn)
}

// OpenAdmin marks the admin panel open and renders both admin lists.
// Safe to call repeatedly.
func (r *Reconciler) OpenAdmin() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.adminOpen = true
	r.renderAdminLocked()
}

func (r *Reconciler) CloseAdmin() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.adminOpen = false
}

// OpenNoticePanel reacts to the push-notification click signal: switch
// to the notices view and scroll the feed into view. Delete-mode still
// blocks the switch, like any other navigation.
func (r *Reconciler) OpenNoticePanel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.navigateLocked(ModeNotices) {
		return false
	}
	r.renderer.ScrollNoticesIntoView()
	return true
}

// FilterBooks is the search filter: case-insensitive substring match of
// the trimmed query against title or author.
func FilterBooks(books []store.Book, query string) []store.Book {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return []store.Book{}
	}
	results := make([]store.Book, 0, len(books))
	for _, book := range books {
		if strings.Contains(strings.ToLower(book.Title), needle) ||
			strings.Contains(strings.ToLower(book.Author), needle) {
			results = append(results, book)
		}
	}
	return results
}

// ReservedBooks projects the admin reservation list out of a snapshot,
// preserving mirror order.
func ReservedBooks(books []store.Book) []store.Book {
	reserved := make([]store.Book, 0, len(books))
	for _, book := range books {
		if book.Reserved != nil {
			reserved = append(reserved, book)
		}
	}
	return reserved
}
