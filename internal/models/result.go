package models

// SearchResult is a single visual search hit. It references the snapshot's
// item copy and never outlives the response it was built for.
type SearchResult struct {
	Item *CatalogItem `json:"item"`
	// Score is the similarity in [0,1]; higher is more similar.
	Score float64 `json:"similarity_score"`
	// Rank is the 1-based position in the response.
	Rank int `json:"rank"`
}

// SearchResponse is the response for a visual search request.
type SearchResponse struct {
	Results   []*SearchResult `json:"results"`
	Total     int             `json:"total"`
	QueryTime int64           `json:"query_time_ms"`
}
