package shared

import (
	"math"
	"strings"
)

const (
	// DefaultPerPage applies when a listing does not ask for a page size.
	DefaultPerPage = 10
	// MaxPerPage caps the page size of every listing.
	MaxPerPage = 100
)

// SortDirection orders a listing.
type SortDirection string

const (
	SortAsc  SortDirection = "ASC"
	SortDesc SortDirection = "DESC"
)

// ParseSortDirection maps "asc"/"desc" in any case to a direction, defaulting to ascending.
func ParseSortDirection(raw string) SortDirection {
	if strings.EqualFold(strings.TrimSpace(raw), string(SortDesc)) {
		return SortDesc
	}
	return SortAsc
}

// PageRequest selects one page of a listing. Page is 1-based.
type PageRequest struct {
	Page      int
	PerPage   int
	Sort      string
	Direction SortDirection
}

// Normalize clamps the page to at least 1 and the size to [1, MaxPerPage].
func (p PageRequest) Normalize() PageRequest {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.PerPage <= 0 {
		p.PerPage = DefaultPerPage
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	if p.Direction != SortDesc {
		p.Direction = SortAsc
	}
	return p
}

// Offset is the number of rows before the page.
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"perPage"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage int, total int64) Pagination {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// Page is one page of a listing with its metadata.
type Page[T any] struct {
	Pagination
	Data []T `json:"data"`
}
