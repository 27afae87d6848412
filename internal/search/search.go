// Package search provides full-text search over articles, outlines, and
// style profiles, backed by Meilisearch with a Postgres FTS fallback.
package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultArticle      ResultType = "article"
	ResultOutline      ResultType = "outline"
	ResultStyleProfile ResultType = "styleProfile"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type    ResultType `json:"type"`
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
	TeamID  string     `json:"teamId"`
	Status  string     `json:"status,omitempty"`
}

// Query describes a search request. TeamID is mandatory; results never
// cross team boundaries.
type Query struct {
	Text         string
	TeamID       string
	FilterType   ResultType // empty = all types
	FilterStatus string     // articles only
	Limit        int
	Offset       int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexArticle(a ArticleRecord) error
	IndexOutline(o OutlineRecord) error
	IndexStyleProfile(p StyleProfileRecord) error
	DeleteArticle(id string) error
	DeleteOutline(id string) error
	DeleteStyleProfile(id string) error
}

// ArticleRecord is the data we index for an article.
type ArticleRecord struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	TeamID  string `json:"teamId"`
	Status  string `json:"status"`
}

// OutlineRecord is the data we index for an outline.
type OutlineRecord struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	TeamID  string `json:"teamId"`
}

// StyleProfileRecord is the data we index for a style profile.
type StyleProfileRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	TeamID      string `json:"teamId"`
}
