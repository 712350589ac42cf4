package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const (
	booksChannel   = "books_changed"
	noticesChannel = "notices_changed"
)

// ChangeFeed turns Postgres NOTIFY wakeups into full ordered snapshots
// of one collection. Every delivery is a complete re-query, never a
// delta, so a consumer can swap its state wholesale.
type ChangeFeed[T any] struct {
	dsn     string
	channel string
	load    func(context.Context) ([]T, error)

	conn *pgx.Conn
}

func NewBookFeed(dsn string, s *PostgresStore) *ChangeFeed[Book] {
	return &ChangeFeed[Book]{dsn: dsn, channel: booksChannel, load: s.ListBooks}
}

func NewNoticeFeed(dsn string, s *PostgresStore) *ChangeFeed[Notice] {
	return &ChangeFeed[Notice]{dsn: dsn, channel: noticesChannel, load: s.ListNotices}
}

// Next blocks until the next snapshot is due: immediately whenever a
// listener connection was just (re)established, then once per change
// notification. LISTEN always goes up before the load query runs, so a
// write can never slip between the two unannounced; writes made while
// no listener was attached are covered by the fresh load that follows
// every reconnect. A broken connection is surfaced as an error and
// re-dialed on the following call; the caller keeps whatever snapshot
// it already has until then.
func (f *ChangeFeed[T]) Next(ctx context.Context) ([]T, error) {
	if f.conn == nil {
		conn, err := pgx.Connect(ctx, f.dsn)
		if err != nil {
			return nil, fmt.Errorf("connect %s listener: %w", f.channel, err)
		}
		if _, err := conn.Exec(ctx, "LISTEN "+f.channel); err != nil {
			_ = conn.Close(ctx)
			return nil, fmt.Errorf("listen %s: %w", f.channel, err)
		}
		f.conn = conn
		return f.load(ctx)
	}

	if _, err := f.conn.WaitForNotification(ctx); err != nil {
		_ = f.conn.Close(context.Background())
		f.conn = nil
		return nil, fmt.Errorf("wait on %s: %w", f.channel, err)
	}
	return f.load(ctx)
}

func (f *ChangeFeed[T]) Close(ctx context.Context) error {
	if f.conn == nil {
		return nil
	}
	err := f.conn.Close(ctx)
	f.conn = nil
	return err
}
