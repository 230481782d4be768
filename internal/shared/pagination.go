package shared

import "math"

const defaultPerPage = 20

// Pagination carries the page window and totals a listing reports back.
type Pagination struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

// NewPagination normalizes raw page inputs against the result total.
// Non-positive values fall back to the first page and the default size.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if page <= 0 {
		page = 1
	}
	return Pagination{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(perPage))),
	}
}

// Offset returns the index of the window's first element.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}
