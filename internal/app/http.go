package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"libris/api/internal/admin"
	"libris/api/internal/cache"
	"libris/api/internal/export"
	"libris/api/internal/search"
	"libris/api/internal/session"
	"libris/api/internal/store"
)

const maxCoverUploadBytes = 10 << 20

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/books" {
		writeJSON(w, http.StatusOK, map[string]any{"books": s.service.Books()})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/notices" {
		writeJSON(w, http.StatusOK, map[string]any{"notices": s.service.Notices()})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		limit := 0
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be a non-negative integer", nil)
				return
			}
			limit = parsed
		}
		offset := 0
		if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be a non-negative integer", nil)
				return
			}
			offset = parsed
		}
		writeJSON(w, http.StatusOK, s.service.Search(search.Query{Text: q, Limit: limit, Offset: offset}))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/admin/unlock" {
		var body struct {
			Password string `json:"password"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		token, err := s.service.UnlockAdmin(r.Context(), body.Password)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"token": token})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/admin/lock" {
		_ = s.service.LockAdmin(r.Context(), bearerToken(r))
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/admin/session" {
		err := s.service.CheckAdmin(r.Context(), bearerToken(r))
		writeJSON(w, http.StatusOK, map[string]any{"unlocked": err == nil})
		return
	}

	if parts := splitPath(r.URL.Path); len(parts) >= 2 && parts[0] == "api" {
		switch parts[1] {
		case "view":
			s.handleView(w, r, parts[2:])
			return
		case "books":
			s.handleBooks(w, r, parts[2:])
			return
		case "notices":
			s.handleNotices(w, r, parts[2:])
			return
		case "covers":
			if r.Method == http.MethodPost && len(parts) == 2 {
				s.handleCoverUpload(w, r)
				return
			}
		case "export":
			if r.Method == http.MethodGet && len(parts) == 3 && parts[2] == "report" {
				s.handleExport(w, r)
				return
			}
		}
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	// Everything outside /api is the application shell, served through
	// the cache worker so it stays available offline.
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		s.handleShell(w, r)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleBooks(w http.ResponseWriter, r *http.Request, parts []string) {
	switch {
	case r.Method == http.MethodPost && len(parts) == 0:
		if !s.requireAdmin(w, r) {
			return
		}
		input, ok := s.decodeBookInput(w, r)
		if !ok {
			return
		}
		book, err := s.service.AddBook(r.Context(), input)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"book": book})

	case r.Method == http.MethodDelete && len(parts) == 1:
		if !s.requireAdmin(w, r) {
			return
		}
		if err := s.service.DeleteBook(r.Context(), parts[0]); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case r.Method == http.MethodPost && len(parts) == 2 && parts[1] == "reserve":
		var input ReserveInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		reservation, err := s.service.Reserve(r.Context(), parts[0], input)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"reservation": reservation})

	case r.Method == http.MethodPost && len(parts) == 2 && parts[1] == "release":
		if !s.requireAdmin(w, r) {
			return
		}
		if err := s.service.Release(r.Context(), parts[0]); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// decodeBookInput accepts the add-book form two ways: a multipart form
// with an optional cover file, matching what the catalogue UI submits,
// or a plain JSON body. A cover file is uploaded before the book write
// and degrades to the placeholder URL on failure.
func (s *HTTPServer) decodeBookInput(w http.ResponseWriter, r *http.Request) (AddBookInput, bool) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		var input AddBookInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return AddBookInput{}, false
		}
		return input, true
	}

	if err := r.ParseMultipartForm(maxCoverUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid multipart form", nil)
		return AddBookInput{}, false
	}
	input := AddBookInput{
		Title:       r.FormValue("title"),
		Author:      r.FormValue("author"),
		Description: r.FormValue("description"),
		Cover:       r.FormValue("cover"),
	}
	if file, header, err := r.FormFile("coverFile"); err == nil {
		defer file.Close()
		input.Cover = s.service.UploadCover(r.Context(), header.Filename, header.Header.Get("Content-Type"), file, header.Size)
	}
	return input, true
}

func (s *HTTPServer) handleNotices(w http.ResponseWriter, r *http.Request, parts []string) {
	switch {
	case r.Method == http.MethodPost && len(parts) == 0:
		if !s.requireAdmin(w, r) {
			return
		}
		var input AddNoticeInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		notice, err := s.service.AddNotice(r.Context(), input)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"notice": notice})

	case r.Method == http.MethodDelete && len(parts) == 1:
		if !s.requireAdmin(w, r) {
			return
		}
		if err := s.service.DeleteNotice(r.Context(), parts[0]); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleView(w http.ResponseWriter, r *http.Request, parts []string) {
	hub := s.service.Sessions()

	switch {
	case r.Method == http.MethodPost && len(parts) == 0:
		var body struct {
			OpenNotice bool `json:"openNotice"`
		}
		// an absent body means a plain cold start
		_ = decodeBody(r, &body)
		viewSession := hub.Open(s.service.Books(), s.service.Notices(), body.OpenNotice)
		writeJSON(w, http.StatusCreated, map[string]any{"id": viewSession.ID})

	case r.Method == http.MethodGet && len(parts) == 2 && parts[1] == "stream":
		viewSession, ok := hub.Get(parts[0])
		if !ok {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "View session not found", nil)
			return
		}
		s.streamEvents(w, r, viewSession)

	case r.Method == http.MethodPost && len(parts) == 1:
		viewSession, ok := hub.Get(parts[0])
		if !ok {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "View session not found", nil)
			return
		}
		var cmd Command
		if err := decodeBody(r, &cmd); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if cmd.Action == "openAdmin" && !s.requireAdmin(w, r) {
			return
		}
		if err := viewSession.Apply(cmd); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case r.Method == http.MethodDelete && len(parts) == 1:
		hub.Close(parts[0])
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// streamEvents drains one view session over server-sent events until
// the client disconnects.
func (s *HTTPServer) streamEvents(w http.ResponseWriter, r *http.Request, viewSession *ViewSession) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Streaming unsupported", nil)
		return
	}

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event := <-viewSession.Events():
			payload, err := json.Marshal(event)
			if err != nil {
				log.Printf("http: encode view event: %v", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload)
			flusher.Flush()
		}
	}
}

func (s *HTTPServer) handleCoverUpload(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}

	file, header, err := r.FormFile("cover")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "cover file is required", nil)
		return
	}
	defer file.Close()

	url := s.service.UploadCover(r.Context(), header.Filename, header.Header.Get("Content-Type"), file, header.Size)
	writeJSON(w, http.StatusOK, map[string]any{"url": url})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}

	req := export.Request{
		Title:          strings.TrimSpace(r.URL.Query().Get("title")),
		IncludeNotices: r.URL.Query().Get("notices") == "true",
	}
	result, err := s.service.ExportReport(r.Context(), req)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}

	header := w.Header()
	header.Set("Content-Type", result.MimeType)
	header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleShell(w http.ResponseWriter, r *http.Request) {
	entry, err := s.service.Shell(r.Context(), r.URL.Path)
	if err != nil {
		if errors.Is(err, cache.ErrShellUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "SHELL_UNAVAILABLE", "Application shell unavailable", nil)
			return
		}
		writeError(w, http.StatusBadGateway, "UPSTREAM_ERROR", "Upstream fetch failed", nil)
		return
	}

	if entry.ContentType != "" {
		w.Header().Set("Content-Type", entry.ContentType)
	}
	w.WriteHeader(entry.Status)
	if r.Method != http.MethodHead {
		_, _ = w.Write(entry.Body)
	}
}

func (s *HTTPServer) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return false
	}
	if err := s.service.CheckAdmin(r.Context(), token); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Admin session lookup failed", nil)
		return false
	}
	return true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush lets the recorder pass through to SSE streaming.
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, store.ErrAlreadyReserved) {
		return http.StatusConflict, "ALREADY_RESERVED", "Book is already reserved", nil
	}
	if errors.Is(err, store.ErrNotReserved) {
		return http.StatusConflict, "NOT_RESERVED", "Book is not reserved", nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, admin.ErrWrongPassword) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Wrong password", nil
	}
	if errors.Is(err, session.ErrNotFound) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	if errors.Is(err, export.ErrPDFDependencyMissing) {
		return http.StatusNotImplemented, "EXPORT_UNAVAILABLE", "PDF export unavailable", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
