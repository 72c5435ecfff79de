package search

import "context"

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultCrag  ResultType = "crag"
	ResultRoute ResultType = "route"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type     ResultType `json:"type"`
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Slug     string     `json:"slug"`
	CragSlug string     `json:"cragSlug,omitempty"`
	Snippet  string     `json:"snippet"`
}

// Query describes a search request.
type Query struct {
	Text            string
	FilterType      ResultType // empty = all types
	FilterCountryID string
	Limit           int
	Offset          int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// CragRecord is the data we index for a published crag.
type CragRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	Type      string `json:"type"`
	CountryID string `json:"countryId"`
}

// RouteRecord is the data we index for a published route.
type RouteRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	CragID    string `json:"cragId"`
	CragName  string `json:"cragName"`
	CragSlug  string `json:"cragSlug"`
	CountryID string `json:"countryId"`
}
