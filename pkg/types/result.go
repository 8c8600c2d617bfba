package types

// SearchResult is one ranked hit from the query engine. Score is the
// canonical score for the mode that produced the result; the sub-scores are
// populated when the corresponding search ran, so presentation never needs to
// branch on mode.
type SearchResult struct {
	Chunk *Chunk `json:"chunk"`

	// Canonical score. Text and hybrid scores lie in [0,1]; semantic scores
	// are raw cosine similarity in [-1,1].
	Score float64 `json:"score"`

	// Sub-scores, present when that side of the search was computed
	VectorScore float64 `json:"vector_score,omitempty"`
	TextScore   float64 `json:"text_score,omitempty"`

	// SearchType records which engine actually produced this result. A
	// degraded hybrid query tags its results "text".
	SearchType string `json:"search_type"`
}
