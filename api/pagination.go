package api

import (
	"net/http"
	"strconv"
)

const (
	defaultPageLimit = 500
	maxPageLimit     = 5000
)

// PaginationMeta is embedded in paginated list responses.
type PaginationMeta struct {
	TotalCount int  `json:"total_count"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	HasMore    bool `json:"has_more"`
}

// parsePagination reads "limit" and "offset" from the query string.
// Missing, invalid or non-positive values fall back to the defaults and
// limit is capped at maxPageLimit.
func parsePagination(r *http.Request) (limit, offset int) {
	q := r.URL.Query()

	limit = defaultPageLimit
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		limit = min(n, maxPageLimit)
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n > 0 {
		offset = n
	}
	return limit, offset
}

// paginate returns the requested window of items. The store already sorts
// ids, so pages are stable between calls while the table is unchanged.
func paginate[T any](r *http.Request, items []T) ([]T, PaginationMeta) {
	if items == nil {
		items = []T{}
	}
	limit, offset := parsePagination(r)
	total := len(items)
	start := min(offset, total)
	end := min(start+limit, total)
	return items[start:end], PaginationMeta{
		TotalCount: total,
		Limit:      limit,
		Offset:     offset,
		HasMore:    end < total,
	}
}
