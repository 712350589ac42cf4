package search

// Result is a single catalogue hit returned to the caller.
type Result struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Author  string `json:"author"`
	Cover   string `json:"cover,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// Query describes a catalogue search request.
type Query struct {
	Text   string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a catalogue search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push catalogue entries into a search index.
type Indexer interface {
	IndexBook(b BookRecord) error
	DeleteBook(id string) error
}

// BookRecord is the data we index for a book.
type BookRecord struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
	Cover  string `json:"cover"`
}
