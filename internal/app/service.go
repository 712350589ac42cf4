package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"libris/api/internal/admin"
	"libris/api/internal/cache"
	"libris/api/internal/config"
	"libris/api/internal/export"
	"libris/api/internal/mirror"
	"libris/api/internal/objstore"
	"libris/api/internal/push"
	"libris/api/internal/search"
	"libris/api/internal/store"
	"libris/api/internal/util"
)

type AddBookInput struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description"`
	Cover       string `json:"cover"`
}

type ReserveInput struct {
	Holder  string `json:"holder"`
	Contact string `json:"contact"`
}

type AddNoticeInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Date    string `json:"date"`
}

type catalogueStore interface {
	Ping(ctx context.Context) error
	ListBooks(ctx context.Context) ([]store.Book, error)
	InsertBook(ctx context.Context, item store.Book) error
	DeleteBook(ctx context.Context, bookID string) (bool, error)
	ReserveBook(ctx context.Context, bookID string, reservation store.Reservation) error
	ReleaseBook(ctx context.Context, bookID string) error
	ListNotices(ctx context.Context) ([]store.Notice, error)
	InsertNotice(ctx context.Context, item store.Notice) error
	DeleteNotice(ctx context.Context, noticeID string) (bool, error)
}

type searchService interface {
	Search(q search.Query) search.Response
	IndexBook(b search.BookRecord)
	DeleteBook(id string)
	ReindexAll(books []search.BookRecord)
}

type adminGate interface {
	Unlock(ctx context.Context, password string) (string, error)
	Check(ctx context.Context, token string) error
	Lock(ctx context.Context, token string) error
}

type pushPublisher interface {
	Publish(ctx context.Context, sig push.Signal) error
}

type coverStore interface {
	Save(ctx context.Context, filename, contentType string, r io.Reader, size int64) (string, error)
}

type reportExporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

type Service struct {
	cfg      config.Config
	store    catalogueStore
	search   searchService
	gate     adminGate
	pusher   pushPublisher
	covers   coverStore
	exporter reportExporter
	shell    *cache.Worker

	books    *mirror.Mirror[store.Book]
	notices  *mirror.Mirror[store.Notice]
	sessions *SessionHub

	reindexOnce sync.Once
	now         func() time.Time
}

func New(
	cfg config.Config,
	dataStore *store.PostgresStore,
	searchSvc *search.Service,
	gate *admin.Service,
	pusher *push.Broker,
	covers *objstore.Store,
	exporter *export.Service,
	shell *cache.Worker,
) *Service {
	s := &Service{
		cfg:      cfg,
		store:    dataStore,
		search:   searchSvc,
		gate:     gate,
		pusher:   pusher,
		covers:   covers,
		exporter: exporter,
		shell:    shell,
		sessions: NewSessionHub(),
		now:      time.Now,
	}
	s.initMirrors()
	return s
}

func (s *Service) initMirrors() {
	s.books = mirror.New(s.onBooksUpdate,
		mirror.WithTransform[store.Book](func(b store.Book) store.Book {
			return b.WithDefaults(s.cfg.PlaceholderCoverURL)
		}),
		mirror.WithErrorHandler[store.Book](func(err error) {
			log.Printf("app: book feed error, serving last snapshot: %v", err)
		}),
	)
	s.notices = mirror.New(s.onNoticesUpdate,
		mirror.WithTransform[store.Notice](store.Notice.WithDefaults),
		mirror.WithErrorHandler[store.Notice](func(err error) {
			log.Printf("app: notice feed error, serving last snapshot: %v", err)
		}),
	)
}

func (s *Service) onBooksUpdate(snapshot []store.Book) {
	s.sessions.BroadcastBooks(snapshot)
	s.reindexOnce.Do(func() {
		records := make([]search.BookRecord, 0, len(snapshot))
		for _, book := range snapshot {
			records = append(records, bookRecord(book))
		}
		s.search.ReindexAll(records)
	})
}

func (s *Service) onNoticesUpdate(snapshot []store.Notice) {
	s.sessions.BroadcastNotices(snapshot)
}

// Bootstrap brings the shell cache generation live and starts both
// mirror loops. It returns once the loops are running; they stop when
// ctx is cancelled.
func (s *Service) Bootstrap(ctx context.Context, bookFeed mirror.Subscription[store.Book], noticeFeed mirror.Subscription[store.Notice]) {
	if s.shell != nil {
		s.shell.Install(ctx)
		if err := s.shell.Activate(ctx); err != nil {
			log.Printf("app: shell cache activation: %v", err)
		}
	}
	go s.books.Run(ctx, bookFeed)
	go s.notices.Run(ctx, noticeFeed)
}

// ListenPush forwards push signals to every connected view session
// until ctx is cancelled.
func (s *Service) ListenPush(ctx context.Context, signals <-chan push.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			if sig.Action == push.ActionOpenNoticePanel {
				s.sessions.BroadcastOpenNotices()
			}
		}
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Sessions() *SessionHub {
	return s.sessions
}

// Books returns the current catalogue snapshot in mirror order.
func (s *Service) Books() []store.Book {
	return s.books.Snapshot()
}

func (s *Service) Notices() []store.Notice {
	return s.notices.Snapshot()
}

func (s *Service) AddBook(ctx context.Context, input AddBookInput) (store.Book, error) {
	if strings.TrimSpace(input.Title) == "" {
		return store.Book{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}

	book := store.Book{
		ID:          util.NewID("book"),
		Title:       strings.TrimSpace(input.Title),
		Author:      strings.TrimSpace(input.Author),
		Description: strings.TrimSpace(input.Description),
		Cover:       strings.TrimSpace(input.Cover),
		CreatedAt:   s.now(),
	}
	if err := s.store.InsertBook(ctx, book); err != nil {
		return store.Book{}, fmt.Errorf("insert book: %w", err)
	}

	s.search.IndexBook(bookRecord(book.WithDefaults(s.cfg.PlaceholderCoverURL)))
	return book, nil
}

// UploadCover streams a cover image to object storage and returns its
// download URL. A failed upload degrades to the placeholder cover so
// the book save never blocks on storage.
func (s *Service) UploadCover(ctx context.Context, filename, contentType string, r io.Reader, size int64) string {
	url, err := s.covers.Save(ctx, filename, contentType, r, size)
	if err != nil {
		log.Printf("app: cover upload failed, using placeholder: %v", err)
		return s.cfg.PlaceholderCoverURL
	}
	return url
}

func (s *Service) DeleteBook(ctx context.Context, bookID string) error {
	deleted, err := s.store.DeleteBook(ctx, bookID)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if !deleted {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Book not found", nil)
	}
	s.search.DeleteBook(bookID)
	return nil
}

// Reserve places a seven-day hold. A book already on hold stays with
// its current holder; the caller gets ErrAlreadyReserved.
func (s *Service) Reserve(ctx context.Context, bookID string, input ReserveInput) (store.Reservation, error) {
	if strings.TrimSpace(input.Holder) == "" {
		return store.Reservation{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "holder is required", nil)
	}

	reservation := store.NewReservation(strings.TrimSpace(input.Holder), strings.TrimSpace(input.Contact), s.now())
	if err := s.store.ReserveBook(ctx, bookID, reservation); err != nil {
		return store.Reservation{}, err
	}
	return reservation, nil
}

func (s *Service) Release(ctx context.Context, bookID string) error {
	return s.store.ReleaseBook(ctx, bookID)
}

func (s *Service) AddNotice(ctx context.Context, input AddNoticeInput) (store.Notice, error) {
	if strings.TrimSpace(input.Content) == "" {
		return store.Notice{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content is required", nil)
	}

	date := strings.TrimSpace(input.Date)
	if date == "" {
		date = s.now().Format("2006-01-02")
	}
	notice := store.Notice{
		ID:        util.NewID("ntc"),
		Title:     strings.TrimSpace(input.Title),
		Content:   strings.TrimSpace(input.Content),
		Date:      date,
		DateAdded: s.now(),
	}.WithDefaults()

	if err := s.store.InsertNotice(ctx, notice); err != nil {
		return store.Notice{}, fmt.Errorf("insert notice: %w", err)
	}

	if err := s.pusher.Publish(ctx, push.Signal{Action: push.ActionOpenNoticePanel}); err != nil {
		log.Printf("app: publish notice signal: %v", err)
	}
	return notice, nil
}

func (s *Service) DeleteNotice(ctx context.Context, noticeID string) error {
	deleted, err := s.store.DeleteNotice(ctx, noticeID)
	if err != nil {
		return fmt.Errorf("delete notice: %w", err)
	}
	if !deleted {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Notice not found", nil)
	}
	return nil
}

func (s *Service) Search(q search.Query) search.Response {
	return s.search.Search(q)
}

func (s *Service) ExportReport(ctx context.Context, req export.Request) (*export.Result, error) {
	return s.exporter.Export(ctx, req)
}

func (s *Service) UnlockAdmin(ctx context.Context, password string) (string, error) {
	return s.gate.Unlock(ctx, password)
}

func (s *Service) CheckAdmin(ctx context.Context, token string) error {
	return s.gate.Check(ctx, token)
}

func (s *Service) LockAdmin(ctx context.Context, token string) error {
	return s.gate.Lock(ctx, token)
}

// Shell serves a request through the cached application shell.
func (s *Service) Shell(ctx context.Context, rawURL string) (cache.Entry, error) {
	return s.shell.HandleFetch(ctx, rawURL)
}

func bookRecord(b store.Book) search.BookRecord {
	return search.BookRecord{
		ID:     b.ID,
		Title:  b.Title,
		Author: b.Author,
		Cover:  b.Cover,
	}
}
