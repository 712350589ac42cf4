package cache

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
)

// DefaultAssets is the fixed shell manifest populated during install.
var DefaultAssets = []string{
	"/",
	"/index.html",
	"/style.css",
	"/app.js",
	"/manifest.json",
	"/icons/icon-192.png",
	"/icons/icon-512.png",
}

const shellPath = "/index.html"

// Fetcher retrieves a response from the network. A transport failure is
// an error; an HTTP error status is a normal Entry.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Entry, error)
}

// HTTPFetcher is the production Fetcher.
type HTTPFetcher struct {
	Client *http.Client
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (Entry, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("build request %s: %w", rawURL, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return Entry{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Entry{}, fmt.Errorf("read %s: %w", rawURL, err)
	}
	return Entry{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// Worker owns one cache generation and the fetch policy in front of it.
// Lifecycle: Install populates the new generation, Activate evicts
// every other generation, HandleFetch serves traffic.
type Worker struct {
	generation string
	origin     *url.URL
	assets     []string
	bypass     []string
	storage    Storage
	fetcher    Fetcher
}

// NewWorker builds a worker for one generation tag. origin is the app's
// own base URL; bypassHosts are hostname fragments of dynamic-data
// providers whose requests skip the cache entirely.
func NewWorker(generation, origin string, assets, bypassHosts []string, storage Storage, fetcher Fetcher) (*Worker, error) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("invalid origin %q", origin)
	}
	if len(assets) == 0 {
		assets = DefaultAssets
	}
	return &Worker{
		generation: generation,
		origin:     parsed,
		assets:     assets,
		bypass:     bypassHosts,
		storage:    storage,
		fetcher:    fetcher,
	}, nil
}

func (w *Worker) Generation() string {
	return w.generation
}

// Install populates the new generation with the asset manifest. Each
// asset is attempted independently: a failed fetch or store is logged
// and swallowed so one missing file never aborts the rest. Install
// always completes; activation follows immediately, the worker never
// waits for old clients.
func (w *Worker) Install(ctx context.Context) {
	for _, asset := range w.assets {
		entry, err := w.fetcher.Fetch(ctx, w.origin.ResolveReference(&url.URL{Path: asset}).String())
		if err != nil {
			log.Printf("cache: install failed to fetch %s: %v", asset, err)
			continue
		}
		if entry.Status != http.StatusOK {
			log.Printf("cache: install skipping %s: status %d", asset, entry.Status)
			continue
		}
		if err := w.storage.Put(ctx, w.generation, asset, entry); err != nil {
			log.Printf("cache: install failed to store %s: %v", asset, err)
		}
	}
}

// Activate makes this worker's generation the only one: every
// generation whose tag differs is deleted wholesale. Requests flow
// through the new generation from here on without a reload.
func (w *Worker) Activate(ctx context.Context) error {
	names, err := w.storage.Generations(ctx)
	if err != nil {
		return fmt.Errorf("enumerate generations: %w", err)
	}
	for _, name := range names {
		if name == w.generation {
			continue
		}
		if err := w.storage.Delete(ctx, name); err != nil {
			return fmt.Errorf("delete superseded generation %s: %w", name, err)
		}
		log.Printf("cache: deleted old generation %s", name)
	}
	return nil
}

// HandleFetch applies the runtime policy to one request.
//
//   - Cross-origin to a known dynamic-data provider: straight to
//     network, the cache never sees it.
//   - Any other cross-origin: network, falling back to the cached shell
//     page when unreachable.
//   - Same-origin: cache-first; a network miss that succeeds with a
//     cacheable response (200, same-origin, body available) is stored
//     in the current generation on the way out. Total failure degrades
//     to the shell page.
func (w *Worker) HandleFetch(ctx context.Context, rawURL string) (Entry, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return w.shellFallback(ctx)
	}

	if target.IsAbs() && target.Host != w.origin.Host {
		if w.bypassed(target.Hostname()) {
			return w.fetcher.Fetch(ctx, rawURL)
		}
		entry, err := w.fetcher.Fetch(ctx, rawURL)
		if err != nil {
			return w.shellFallback(ctx)
		}
		return entry, nil
	}

	key := target.Path
	if key == "" {
		key = "/"
	}

	if cached, ok, err := w.storage.Match(ctx, w.generation, key); err == nil && ok {
		return cached, nil
	} else if err != nil {
		log.Printf("cache: match %s: %v", key, err)
	}

	entry, err := w.fetcher.Fetch(ctx, w.origin.ResolveReference(&url.URL{Path: key}).String())
	if err != nil {
		return w.shellFallback(ctx)
	}
	if entry.Status == http.StatusOK {
		if err := w.storage.Put(ctx, w.generation, key, entry); err != nil {
			log.Printf("cache: store %s: %v", key, err)
		}
	}
	return entry, nil
}

// shellFallback is the silent offline degradation: serve the cached
// shell root page, trying the explicit shell path first.
func (w *Worker) shellFallback(ctx context.Context) (Entry, error) {
	for _, key := range []string{shellPath, "/"} {
		if entry, ok, err := w.storage.Match(ctx, w.generation, key); err == nil && ok {
			return entry, nil
		}
	}
	return Entry{}, ErrShellUnavailable
}

func (w *Worker) bypassed(hostname string) bool {
	for _, fragment := range w.bypass {
		if strings.Contains(hostname, fragment) {
			return true
		}
	}
	return false
}
