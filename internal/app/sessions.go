package app

import (
	"log"
	"net/http"
	"sync"
	"time"

	"libris/api/internal/store"
	"libris/api/internal/util"
	"libris/api/internal/view"
)

// Event is one render directive streamed to a connected client.
type Event struct {
	Type    string         `json:"type"`
	Message string         `json:"message,omitempty"`
	Books   []store.Book   `json:"books,omitempty"`
	Notices []store.Notice `json:"notices,omitempty"`
}

const (
	EventBookList          = "bookList"
	EventSearchResults     = "searchResults"
	EventSearchPlaceholder = "searchPlaceholder"
	EventCollapseSearch    = "collapseSearch"
	EventNotices           = "notices"
	EventAdminReservations = "adminReservations"
	EventAdminNotices      = "adminNotices"
	EventWarning           = "warning"
	EventScrollNotices     = "scrollNotices"
)

// eventRenderer turns reconciler render calls into a stream of Events.
// The channel is buffered; a client that cannot keep up loses events
// rather than stalling the mirror loop.
type eventRenderer struct {
	events chan Event
}

func newEventRenderer() *eventRenderer {
	return &eventRenderer{events: make(chan Event, 64)}
}

func (r *eventRenderer) emit(e Event) {
	select {
	case r.events <- e:
	default:
		log.Printf("app: view session event buffer full, dropping %s", e.Type)
	}
}

func (r *eventRenderer) RenderBookList(books []store.Book) {
	r.emit(Event{Type: EventBookList, Books: books})
}

func (r *eventRenderer) RenderSearchResults(books []store.Book) {
	r.emit(Event{Type: EventSearchResults, Books: books})
}

func (r *eventRenderer) RenderSearchPlaceholder() {
	r.emit(Event{Type: EventSearchPlaceholder})
}

func (r *eventRenderer) CollapseSearch() {
	r.emit(Event{Type: EventCollapseSearch})
}

func (r *eventRenderer) RenderNotices(notices []store.Notice) {
	r.emit(Event{Type: EventNotices, Notices: notices})
}

func (r *eventRenderer) RenderAdminReservations(books []store.Book) {
	r.emit(Event{Type: EventAdminReservations, Books: books})
}

func (r *eventRenderer) RenderAdminNotices(notices []store.Notice) {
	r.emit(Event{Type: EventAdminNotices, Notices: notices})
}

func (r *eventRenderer) ShowWarning(message string) {
	r.emit(Event{Type: EventWarning, Message: message})
}

func (r *eventRenderer) ScrollNoticesIntoView() {
	r.emit(Event{Type: EventScrollNotices})
}

// ViewSession is one connected client's view state and event stream.
type ViewSession struct {
	ID        string
	CreatedAt time.Time

	rec      *view.Reconciler
	renderer *eventRenderer
}

// Events is the stream the SSE handler drains.
func (v *ViewSession) Events() <-chan Event {
	return v.renderer.events
}

// Command is a state change requested by the client.
type Command struct {
	Action string `json:"action"`
	Mode   string `json:"mode,omitempty"`
	Query  string `json:"query"`
}

// Apply executes one client command against the session's view state.
func (v *ViewSession) Apply(cmd Command) error {
	switch cmd.Action {
	case "navigate":
		mode, ok := view.ParseMode(cmd.Mode)
		if !ok {
			return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown view mode", map[string]any{"mode": cmd.Mode})
		}
		v.rec.Navigate(mode)
	case "search":
		v.rec.SetQuery(cmd.Query)
	case "enterDelete":
		v.rec.Navigate(view.ModeDelete)
	case "exitDelete":
		v.rec.ExitDeleteMode()
	case "openAdmin":
		v.rec.OpenAdmin()
	case "closeAdmin":
		v.rec.CloseAdmin()
	case "openNotices":
		v.rec.OpenNoticePanel()
	default:
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown action", map[string]any{"action": cmd.Action})
	}
	return nil
}

// SessionHub tracks connected view sessions and fans mirror updates out
// to each of them.
type SessionHub struct {
	mu       sync.RWMutex
	sessions map[string]*ViewSession
}

func NewSessionHub() *SessionHub {
	return &SessionHub{sessions: make(map[string]*ViewSession)}
}

// Open creates a session primed with the given snapshots. openNotices
// applies the deferred push-click flag carried by a cold-started
// client.
func (h *SessionHub) Open(books []store.Book, notices []store.Notice, openNotices bool) *ViewSession {
	renderer := newEventRenderer()
	session := &ViewSession{
		ID:        util.NewID("view"),
		CreatedAt: time.Now(),
		rec:       view.New(renderer),
		renderer:  renderer,
	}
	session.rec.OnBooksUpdate(books)
	session.rec.OnNoticesUpdate(notices)
	if openNotices {
		session.rec.OpenNoticePanel()
	}

	h.mu.Lock()
	h.sessions[session.ID] = session
	h.mu.Unlock()
	return session
}

func (h *SessionHub) Get(id string) (*ViewSession, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	session, ok := h.sessions[id]
	return session, ok
}

func (h *SessionHub) Close(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, id)
}

func (h *SessionHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *SessionHub) BroadcastBooks(snapshot []store.Book) {
	for _, session := range h.snapshot() {
		session.rec.OnBooksUpdate(snapshot)
	}
}

func (h *SessionHub) BroadcastNotices(snapshot []store.Notice) {
	for _, session := range h.snapshot() {
		session.rec.OnNoticesUpdate(snapshot)
	}
}

func (h *SessionHub) BroadcastOpenNotices() {
	for _, session := range h.snapshot() {
		session.rec.OpenNoticePanel()
	}
}

func (h *SessionHub) snapshot() []*ViewSession {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sessions := make([]*ViewSession, 0, len(h.sessions))
	for _, session := range h.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}
