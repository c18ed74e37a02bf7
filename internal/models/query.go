package models

import "fmt"

// StatusFilter narrows the list by availability.
type StatusFilter string

const (
	StatusAll       StatusFilter = "all"
	StatusAvailable StatusFilter = "available"
	StatusBorrowed  StatusFilter = "borrowed"
)

// StatusFilters lists the filters in the order the toolbar shows them.
var StatusFilters = []StatusFilter{StatusAll, StatusAvailable, StatusBorrowed}

// ParseStatusFilter accepts "" as "all".
func ParseStatusFilter(s string) (StatusFilter, error) {
	switch StatusFilter(s) {
	case "", StatusAll:
		return StatusAll, nil
	case StatusAvailable, StatusBorrowed:
		return StatusFilter(s), nil
	}
	return "", fmt.Errorf("unknown status filter %q", s)
}

// Label is the human-readable option text.
func (f StatusFilter) Label() string {
	switch f {
	case StatusAvailable:
		return "Available"
	case StatusBorrowed:
		return "Borrowed"
	default:
		return "All"
	}
}

// PageSizes are the choices offered by the page size selector.
var PageSizes = []int{5, 10, 20, 50}

const DefaultPageSize = 10

// IsPageSize reports whether n is one of PageSizes.
func IsPageSize(n int) bool {
	for _, size := range PageSizes {
		if size == n {
			return true
		}
	}
	return false
}

// BooksQuery holds the list request parameters. Page is 1-based; empty
// Search and Status are left out of the request.
type BooksQuery struct {
	Page   int
	Limit  int
	Search string
	Status string
}

// Pagination mirrors the pagination block of the list response.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalItems int `json:"totalItems"`
	TotalPages int `json:"totalPages"`
}

// BooksResponse is a single page of the catalog.
type BooksResponse struct {
	Items      []Book     `json:"items"`
	Pagination Pagination `json:"pagination"`
}
