package common

import (
	"net/http"
	"strconv"
)

// ParsePagination extracts page and per-page parameters from query values.
// Both "limit" and "per_page" are accepted; perPage is capped at maxPerPage
// when maxPerPage is positive.
func ParsePagination(r *http.Request, defaultPerPage, maxPerPage int) (page, perPage int) {
	page = 1
	perPage = defaultPerPage
	q := r.URL.Query()
	if p, err := strconv.Atoi(q.Get("page")); err == nil && p > 0 {
		page = p
	}
	for _, name := range []string{"per_page", "limit"} {
		if l, err := strconv.Atoi(q.Get(name)); err == nil && l > 0 {
			perPage = l
			break
		}
	}
	if maxPerPage > 0 && perPage > maxPerPage {
		perPage = maxPerPage
	}
	return
}
