package model

import "math"

// Page is the pagination envelope returned when a listing asks for a page or a limit.
type Page struct {
	Docs          []Product `json:"docs"`
	TotalDocs     int       `json:"totalDocs"`
	Limit         int       `json:"limit"`
	Page          int       `json:"page"`
	TotalPages    int       `json:"totalPages"`
	HasNextPage   bool      `json:"hasNextPage"`
	HasPrevPage   bool      `json:"hasPrevPage"`
	NextPage      *int      `json:"nextPage"`
	PrevPage      *int      `json:"prevPage"`
	PagingCounter int       `json:"pagingCounter"`
}

// NewPage builds the envelope for docs, the page-th slice of size limit over total matches.
// An empty result still reports one page.
func NewPage(docs []Product, total, page, limit int) Page {
	totalPages := 1
	if total > 0 {
		totalPages = (total + limit - 1) / limit
	}
	p := Page{
		Docs:          docs,
		TotalDocs:     total,
		Limit:         limit,
		Page:          page,
		TotalPages:    totalPages,
		HasPrevPage:   page > 1,
		HasNextPage:   page < totalPages,
		PagingCounter: pagingCounter(page, limit),
	}
	if p.HasPrevPage {
		prev := page - 1
		p.PrevPage = &prev
	}
	if p.HasNextPage {
		next := page + 1
		p.NextPage = &next
	}
	return p
}

// pagingCounter is the 1-based position of the first doc on the page, saturated at math.MaxInt.
func pagingCounter(page, limit int) int {
	if page-1 > (math.MaxInt-1)/limit {
		return math.MaxInt
	}
	return (page-1)*limit + 1
}
