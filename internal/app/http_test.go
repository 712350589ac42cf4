package app

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"libris/api/internal/cache"
	"libris/api/internal/store"
)

func newTestServer(t *testing.T) (*HTTPServer, *Service, *testDeps) {
	t.Helper()
	service, deps := newTestService(t)
	return NewHTTPServer(service, "*"), service, deps
}

func doJSON(t *testing.T, server *HTTPServer, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return payload
}

func unlock(t *testing.T, server *HTTPServer) string {
	t.Helper()
	rec := doJSON(t, server, http.MethodPost, "/api/admin/unlock", `{"password":"open-sesame"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unlock status %d: %s", rec.Code, rec.Body.String())
	}
	token, _ := decodeResponse(t, rec)["token"].(string)
	if token == "" {
		t.Fatal("no token in unlock response")
	}
	return token
}

func TestHealthEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t)
	rec := doJSON(t, server, http.MethodGet, "/api/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestBooksServedFromMirror(t *testing.T) {
	server, service, _ := newTestServer(t)
	service.books.Apply([]store.Book{
		{ID: "b2", Title: "Emma"},
		{ID: "b1", Title: "Dune"},
	})

	rec := doJSON(t, server, http.MethodGet, "/api/books", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	payload := decodeResponse(t, rec)
	books, _ := payload["books"].([]any)
	if len(books) != 2 {
		t.Fatalf("books = %v", payload["books"])
	}
	first, _ := books[0].(map[string]any)
	if first["id"] != "b2" {
		t.Errorf("mirror order not preserved: %v", books)
	}
}

func TestAdminUnlockRejectsWrongPassword(t *testing.T) {
	server, _, _ := newTestServer(t)
	rec := doJSON(t, server, http.MethodPost, "/api/admin/unlock", `{"password":"nope"}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAddBookRequiresAdminToken(t *testing.T) {
	server, _, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/books", `{"title":"Dune"}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("without token: status = %d", rec.Code)
	}

	token := unlock(t, server)
	rec = doJSON(t, server, http.MethodPost, "/api/books", `{"title":"Dune"}`, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("with token: status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestAddBookMultipartUploadsCover(t *testing.T) {
	server, _, _ := newTestServer(t)
	token := unlock(t, server)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	_ = form.WriteField("title", "Dune")
	_ = form.WriteField("author", "Frank Herbert")
	part, err := form.CreateFormFile("coverFile", "dune.jpg")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write([]byte("jpeg-bytes"))
	_ = form.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/books", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	payload := decodeResponse(t, rec)
	book, _ := payload["book"].(map[string]any)
	if book["cover"] != "https://covers.example/dune.jpg" {
		t.Errorf("cover = %v", book["cover"])
	}
}

func TestReserveIsPublicAndMapsConflict(t *testing.T) {
	server, _, deps := newTestServer(t)
	deps.catalogue.reserveBookFn = func(context.Context, string, store.Reservation) error {
		return store.ErrAlreadyReserved
	}

	rec := doJSON(t, server, http.MethodPost, "/api/books/b1/reserve", `{"holder":"Ada"}`, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if decodeResponse(t, rec)["code"] != "ALREADY_RESERVED" {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestReserveSuccessReturnsReservation(t *testing.T) {
	server, _, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/books/b1/reserve", `{"holder":"Ada","contact":"ada@example.com"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	payload := decodeResponse(t, rec)
	reservation, _ := payload["reservation"].(map[string]any)
	if reservation["holder"] != "Ada" {
		t.Errorf("reservation = %v", reservation)
	}
}

func TestReleaseRequiresAdmin(t *testing.T) {
	server, _, _ := newTestServer(t)
	rec := doJSON(t, server, http.MethodPost, "/api/books/b1/release", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestDeleteBookMapsNotFound(t *testing.T) {
	server, _, deps := newTestServer(t)
	deps.catalogue.deleteBookFn = func(context.Context, string) (bool, error) { return false, nil }
	token := unlock(t, server)

	rec := doJSON(t, server, http.MethodDelete, "/api/books/missing", "", token)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestViewSessionLifecycle(t *testing.T) {
	server, service, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/view", `{}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("open: status = %d", rec.Code)
	}
	id, _ := decodeResponse(t, rec)["id"].(string)
	if id == "" {
		t.Fatal("no session id")
	}

	rec = doJSON(t, server, http.MethodPost, "/api/view/"+id, `{"action":"navigate","mode":"search"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("navigate: status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, server, http.MethodPost, "/api/view/"+id, `{"action":"navigate","mode":"bogus"}`, "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bogus mode: status = %d", rec.Code)
	}

	// The admin panel command is gated even inside an open session.
	rec = doJSON(t, server, http.MethodPost, "/api/view/"+id, `{"action":"openAdmin"}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("openAdmin without token: status = %d", rec.Code)
	}

	rec = doJSON(t, server, http.MethodDelete, "/api/view/"+id, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("close: status = %d", rec.Code)
	}
	if service.sessions.Len() != 0 {
		t.Error("session survived delete")
	}
}

func TestViewCommandOnUnknownSession(t *testing.T) {
	server, _, _ := newTestServer(t)
	rec := doJSON(t, server, http.MethodPost, "/api/view/view_nope", `{"action":"search","query":"du"}`, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

type staticFetcher struct {
	entries map[string]cache.Entry
}

func (f *staticFetcher) Fetch(_ context.Context, rawURL string) (cache.Entry, error) {
	if entry, ok := f.entries[rawURL]; ok {
		return entry, nil
	}
	return cache.Entry{Status: http.StatusNotFound}, nil
}

func TestShellServedThroughCacheWorker(t *testing.T) {
	server, service, _ := newTestServer(t)

	storage := cache.NewMemoryStorage()
	fetcher := &staticFetcher{entries: map[string]cache.Entry{
		"https://shell.internal/index.html": {Status: 200, ContentType: "text/html", Body: []byte("<html>shell</html>")},
	}}
	worker, err := cache.NewWorker("v1", "https://shell.internal", nil, nil, storage, fetcher)
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	service.shell = worker

	rec := doJSON(t, server, http.MethodGet, "/index.html", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "shell") {
		t.Errorf("body = %q", rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != "text/html" {
		t.Errorf("content type = %q", rec.Header().Get("Content-Type"))
	}

	// Second request must come from the cache.
	delete(fetcher.entries, "https://shell.internal/index.html")
	rec = doJSON(t, server, http.MethodGet, "/index.html", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "shell") {
		t.Errorf("cached serve failed: %d %q", rec.Code, rec.Body.String())
	}
}

func TestSearchEndpointEchoesQuery(t *testing.T) {
	server, _, _ := newTestServer(t)
	rec := doJSON(t, server, http.MethodGet, "/api/search?q=dune&limit=5", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if decodeResponse(t, rec)["query"] != "dune" {
		t.Errorf("body = %s", rec.Body.String())
	}

	rec = doJSON(t, server, http.MethodGet, "/api/search?q=x&limit=abc", "", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad limit: status = %d", rec.Code)
	}

	rec = doJSON(t, server, http.MethodGet, "/api/search?q=du&limit=-1", "", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("negative limit: status = %d", rec.Code)
	}

	rec = doJSON(t, server, http.MethodGet, "/api/search?q=du&offset=-2", "", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("negative offset: status = %d", rec.Code)
	}
}
