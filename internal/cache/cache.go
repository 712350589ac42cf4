// Package cache makes the static UI shell available offline: a
// generation-versioned asset cache with the install/activate/fetch
// lifecycle of a browser service worker.
package cache

import (
	"context"
	"errors"
)

// Entry is one cached response: the bytes served for a request key
// within a generation.
type Entry struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

// ErrShellUnavailable reports a total miss: the network failed and no
// shell page has ever been cached to fall back on.
var ErrShellUnavailable = errors.New("offline and shell page not cached")

// Storage is the cache primitive: named generations of request-key to
// response-entry pairs. At most one generation is current at a time;
// the worker deletes the rest during activation.
type Storage interface {
	// Put stores an entry under a generation, creating the generation
	// if needed.
	Put(ctx context.Context, generation, key string, entry Entry) error
	// Match looks an entry up; the second return reports a hit.
	Match(ctx context.Context, generation, key string) (Entry, bool, error)
	// Delete removes a whole generation and everything in it.
	Delete(ctx context.Context, generation string) error
	// Generations lists every generation present, current included.
	Generations(ctx context.Context) ([]string, error)
}
