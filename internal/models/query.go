package models

// SearchQuery holds the parameters of one visual search request.
type SearchQuery struct {
	// K is the number of results to return. Zero means use the default.
	K int `json:"k,omitempty"`
}

// Normalize clamps K to [defaultK when unset, maxK]. A negative K becomes 0
// (an empty result set, never an error).
func (q *SearchQuery) Normalize(defaultK, maxK int) {
	if q.K == 0 {
		q.K = defaultK
	}
	if q.K < 0 {
		q.K = 0
	}
	if maxK > 0 && q.K > maxK {
		q.K = maxK
	}
}
