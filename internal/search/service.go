package search

import "log"

// Service is the facade that tries Meilisearch first and falls back to
// the local mirror filter.
type Service struct {
	meili *Meili
	local *Local
}

// NewService creates a search service. meili may be nil if Meilisearch
// is not configured.
func NewService(meili *Meili, local *Local) *Service {
	return &Service{meili: meili, local: local}
}

// Search tries Meilisearch if healthy, otherwise filters the local mirror.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to local filter: %v", err)
	}

	results, total, err := s.local.Search(q)
	if err != nil {
		log.Printf("search: local filter error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexBook indexes a book (fire-and-forget to Meilisearch).
func (s *Service) IndexBook(b BookRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexBook(b); err != nil {
			log.Printf("search: index book %s: %v", b.ID, err)
		}
	}()
}

// DeleteBook removes a book from the search index (fire-and-forget).
func (s *Service) DeleteBook(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteBook(id); err != nil {
			log.Printf("search: delete book %s: %v", id, err)
		}
	}()
}

// ReindexAll pushes the whole catalogue to Meilisearch, typically from
// the mirror's first snapshot during bootstrap.
func (s *Service) ReindexAll(books []BookRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	if err := s.meili.IndexBooks(books); err != nil {
		log.Printf("search: reindex books: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
