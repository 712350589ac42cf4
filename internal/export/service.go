package export

import (
	"context"
	"fmt"
	"time"

	"libris/api/internal/store"
)

// Catalogue supplies the data behind a report, usually the Postgres store.
type Catalogue interface {
	ListBooks(ctx context.Context) ([]store.Book, error)
	ListNotices(ctx context.Context) ([]store.Notice, error)
}

// Service renders catalogue reports.
type Service struct {
	catalogue Catalogue
	now       func() time.Time
}

// NewService creates a new export service.
func NewService(catalogue Catalogue) *Service {
	return &Service{catalogue: catalogue, now: time.Now}
}

// Export generates a PDF report of the catalogue, optionally with the
// notice feed appended.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	title := req.Title
	if title == "" {
		title = "Library Catalogue"
	}

	books, err := s.catalogue.ListBooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}

	data := TemplateData{
		Title:       title,
		GeneratedAt: s.now(),
		Books:       make([]TemplateBook, 0, len(books)),
	}
	for _, book := range books {
		row := TemplateBook{
			Title:  book.Title,
			Author: book.Author,
		}
		if book.Reserved != nil {
			row.Reserved = true
			row.Holder = book.Reserved.Holder
			row.DueDate = book.Reserved.DueDate
		}
		data.Books = append(data.Books, row)
	}

	if req.IncludeNotices {
		notices, err := s.catalogue.ListNotices(ctx)
		if err != nil {
			return nil, fmt.Errorf("list notices: %w", err)
		}
		for _, notice := range notices {
			data.Notices = append(data.Notices, TemplateNotice{
				Title:   notice.Title,
				Content: notice.Content,
				Date:    notice.Date,
			})
		}
	}

	html, err := RenderReportHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	return renderPDF(html, title)
}
