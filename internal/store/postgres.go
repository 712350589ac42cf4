package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrAlreadyReserved reports a reserve against a book that already
	// carries a reservation. Double-submits land here instead of
	// overwriting the first holder.
	ErrAlreadyReserved = errors.New("book already reserved")
	// ErrNotReserved reports a release against an available book.
	ErrNotReserved = errors.New("book not reserved")
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ListBooks returns the full books collection ordered by descending
// creation time. This is the snapshot the mirror works from; it is
// never paginated or diffed.
func (s *PostgresStore) ListBooks(ctx context.Context) ([]Book, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, author, description, cover, reserved, created_at
		FROM books
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	items := make([]Book, 0)
	for rows.Next() {
		item, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate books: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetBook(ctx context.Context, bookID string) (Book, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, author, description, cover, reserved, created_at
		FROM books
		WHERE id=$1
	`, bookID)
	return scanBook(row)
}

// InsertBook persists the caller's created_at stamp so the record the
// API returns matches every mirror snapshot that follows.
func (s *PostgresStore) InsertBook(ctx context.Context, item Book) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO books (id, title, author, description, cover, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, item.ID, item.Title, item.Author, item.Description, item.Cover, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert book: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteBook(ctx context.Context, bookID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM books WHERE id=$1`, bookID)
	if err != nil {
		return false, fmt.Errorf("delete book: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// ReserveBook attaches a reservation only when the book is currently
// available. The WHERE clause is the whole double-submit story: a
// second reserve matches zero rows and reports ErrAlreadyReserved.
func (s *PostgresStore) ReserveBook(ctx context.Context, bookID string, reservation Reservation) error {
	payload, err := json.Marshal(reservation)
	if err != nil {
		return fmt.Errorf("marshal reservation: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE books SET reserved=$2 WHERE id=$1 AND reserved IS NULL
	`, bookID, payload)
	if err != nil {
		return fmt.Errorf("reserve book: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		if _, err := s.GetBook(ctx, bookID); err != nil {
			return err
		}
		return ErrAlreadyReserved
	}
	return nil
}

func (s *PostgresStore) ReleaseBook(ctx context.Context, bookID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE books SET reserved=NULL WHERE id=$1 AND reserved IS NOT NULL
	`, bookID)
	if err != nil {
		return fmt.Errorf("release book: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		if _, err := s.GetBook(ctx, bookID); err != nil {
			return err
		}
		return ErrNotReserved
	}
	return nil
}

// ListNotices returns the full notices collection ordered by descending
// post time.
func (s *PostgresStore) ListNotices(ctx context.Context) ([]Notice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content, date, date_added
		FROM notices
		ORDER BY date_added DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list notices: %w", err)
	}
	defer rows.Close()

	items := make([]Notice, 0)
	for rows.Next() {
		var item Notice
		if err := rows.Scan(&item.ID, &item.Title, &item.Content, &item.Date, &item.DateAdded); err != nil {
			return nil, fmt.Errorf("scan notice: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notices: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertNotice(ctx context.Context, item Notice) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notices (id, title, content, date, date_added)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, item.ID, item.Title, item.Content, item.Date, item.DateAdded)
	if err != nil {
		return fmt.Errorf("insert notice: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteNotice(ctx context.Context, noticeID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM notices WHERE id=$1`, noticeID)
	if err != nil {
		return false, fmt.Errorf("delete notice: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (Book, error) {
	var (
		item     Book
		reserved []byte
	)
	if err := row.Scan(&item.ID, &item.Title, &item.Author, &item.Description, &item.Cover, &reserved, &item.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Book{}, err
		}
		return Book{}, fmt.Errorf("scan book: %w", err)
	}
	if len(reserved) > 0 {
		var r Reservation
		if err := json.Unmarshal(reserved, &r); err != nil {
			return Book{}, fmt.Errorf("decode reservation for %s: %w", item.ID, err)
		}
		item.Reserved = &r
	}
	return item, nil
}
