package view

import "strings"

// Mode is the single active top-level screen. Exactly one is active at
// a time.
type Mode string

const (
	ModeHome    Mode = "home"
	ModeSearch  Mode = "search"
	ModeNotices Mode = "notices"
	ModeAdmin   Mode = "admin"
	ModeDelete  Mode = "delete"
)

func ParseMode(raw string) (Mode, bool) {
	switch Mode(strings.TrimSpace(strings.ToLower(raw))) {
	case ModeHome:
		return ModeHome, true
	case ModeSearch:
		return ModeSearch, true
	case ModeNotices:
		return ModeNotices, true
	case ModeAdmin:
		return ModeAdmin, true
	case ModeDelete:
		return ModeDelete, true
	}
	return "", false
}

// state is the explicit application state the PWA kept in globals:
// current view, live search query, admin panel flag.
type state struct {
	mode      Mode
	query     string
	adminOpen bool

	// where ExitDeleteMode returns to
	deleteReturn Mode
}
