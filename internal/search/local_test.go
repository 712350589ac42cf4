package search

import (
	"testing"

	"libris/api/internal/store"
)

func snapshotOf(books ...store.Book) func() []store.Book {
	return func() []store.Book { return books }
}

func TestLocalMatchesTitleAndAuthor(t *testing.T) {
	local := NewLocal(snapshotOf(
		store.Book{ID: "b1", Title: "Dune", Author: "Frank Herbert"},
		store.Book{ID: "b2", Title: "Emma", Author: "Jane Austen"},
		store.Book{ID: "b3", Title: "Persuasion", Author: "Jane Austen"},
	))

	results, total, err := local.Search(Query{Text: "AUSTEN"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 2 || len(results) != 2 {
		t.Fatalf("got %d results (total %d), want 2", len(results), total)
	}
	if results[0].ID != "b2" || results[1].ID != "b3" {
		t.Errorf("results = %v, want snapshot order preserved", results)
	}

	results, _, _ = local.Search(Query{Text: "  dune "})
	if len(results) != 1 || results[0].ID != "b1" {
		t.Errorf("trimmed title match failed: %v", results)
	}
}

func TestLocalBlankQueryMatchesNothing(t *testing.T) {
	local := NewLocal(snapshotOf(store.Book{ID: "b1", Title: "Dune"}))

	results, total, err := local.Search(Query{Text: "   "})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 0 || len(results) != 0 {
		t.Errorf("blank query returned %v", results)
	}
}

func TestLocalPagination(t *testing.T) {
	books := []store.Book{
		{ID: "b1", Title: "Go Alpha"},
		{ID: "b2", Title: "Go Beta"},
		{ID: "b3", Title: "Go Gamma"},
	}
	local := NewLocal(snapshotOf(books...))

	results, total, err := local.Search(Query{Text: "go", Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(results) != 2 || results[0].ID != "b2" || results[1].ID != "b3" {
		t.Errorf("page = %v, want b2 b3", results)
	}

	results, total, _ = local.Search(Query{Text: "go", Offset: 10})
	if total != 3 || len(results) != 0 {
		t.Errorf("offset past end returned %v (total %d)", results, total)
	}
}

func TestLocalNegativePaginationClamps(t *testing.T) {
	local := NewLocal(snapshotOf(
		store.Book{ID: "b1", Title: "Dune", Author: "Frank Herbert"},
		store.Book{ID: "b2", Title: "Dust", Author: "Hugh Howey"},
	))

	results, total, err := local.Search(Query{Text: "du", Limit: -1})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 2 || len(results) != 2 {
		t.Errorf("negative limit returned %v (total %d), want full page", results, total)
	}

	results, total, err = local.Search(Query{Text: "du", Offset: -3})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 2 || len(results) != 2 || results[0].ID != "b1" {
		t.Errorf("negative offset returned %v (total %d), want start of page", results, total)
	}
}

func TestServiceFallsBackWithoutMeili(t *testing.T) {
	local := NewLocal(snapshotOf(store.Book{ID: "b1", Title: "Dune", Author: "Frank Herbert"}))
	svc := NewService(nil, local)

	resp := svc.Search(Query{Text: "herbert"})
	if resp.Total != 1 || len(resp.Results) != 1 || resp.Results[0].ID != "b1" {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Query != "herbert" {
		t.Errorf("query echo = %q", resp.Query)
	}

	resp = svc.Search(Query{Text: ""})
	if resp.Results == nil {
		t.Error("results must be non-nil for JSON encoding")
	}
}
