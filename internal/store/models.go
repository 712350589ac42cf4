package store

import (
	"strings"
	"time"
)

// Book is a catalogue record. Reserved is nil for an available book and
// fully populated otherwise; there is no partial reservation state.
type Book struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Author      string       `json:"author"`
	Description string       `json:"description"`
	Cover       string       `json:"cover"`
	Reserved    *Reservation `json:"reserved"`
	CreatedAt   time.Time    `json:"createdAt"`
}

type Reservation struct {
	Holder     string    `json:"holder"`
	Contact    string    `json:"contact"`
	ReservedOn time.Time `json:"reservedOn"`
	DueDate    time.Time `json:"dueDate"`
}

// ReservationPeriodDays is the fixed loan period.
const ReservationPeriodDays = 7

// NewReservation stamps a reservation for the calendar day of now. The
// due date is exactly seven days later regardless of time-of-day.
func NewReservation(holder, contact string, now time.Time) Reservation {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return Reservation{
		Holder:     holder,
		Contact:    contact,
		ReservedOn: day,
		DueDate:    day.AddDate(0, 0, ReservationPeriodDays),
	}
}

type Notice struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Date      string    `json:"date"`
	DateAdded time.Time `json:"dateAdded"`
}

const (
	UnknownAuthor      = "Unknown"
	DefaultNoticeTitle = "Library Update"
)

// WithDefaults fills the documented substitutes for missing fields.
// Applied once where snapshots enter the mirror, so downstream code
// never re-checks.
func (b Book) WithDefaults(placeholderCover string) Book {
	if strings.TrimSpace(b.Author) == "" {
		b.Author = UnknownAuthor
	}
	if strings.TrimSpace(b.Cover) == "" {
		b.Cover = placeholderCover
	}
	return b
}

func (n Notice) WithDefaults() Notice {
	if strings.TrimSpace(n.Title) == "" {
		n.Title = DefaultNoticeTitle
	}
	return n
}
