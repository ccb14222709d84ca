package backend

import "fmt"

// SearchRequest is a web search query.
type SearchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

// SearchResult is one web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchResponse carries web search hits in rank order.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

// KnowledgeRequest queries the internal knowledge base.
type KnowledgeRequest struct {
	Query      string `json:"query"`
	Collection string `json:"collection,omitempty"`
	TopK       int    `json:"top_k,omitempty"`
}

// Document is one knowledge-base match.
type Document struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// KnowledgeResponse carries knowledge-base matches by descending score.
type KnowledgeResponse struct {
	Documents []Document `json:"documents"`
}

// APIError is a non-2xx backend reply. The body is truncated for logging.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend API error (status %d): %s", e.StatusCode, e.Body)
}
