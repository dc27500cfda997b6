package utils

import (
	"strconv"
	"strings"
)

// Paginator splits an ordered collection of Total items into pages of PerPage items.
type Paginator struct {
	Total   int64
	PerPage int
}

// Page is one resolved page of a Paginator.
type Page struct {
	Number   int
	NumPages int
	PerPage  int
	Total    int64
}

// NewPaginator returns a paginator; perPage below 1 is treated as 1.
func NewPaginator(total int64, perPage int) Paginator {
	if perPage < 1 {
		perPage = 1
	}
	if total < 0 {
		total = 0
	}
	return Paginator{Total: total, PerPage: perPage}
}

// NumPages is at least 1 so an empty collection still has an (empty) first page.
func (p Paginator) NumPages() int {
	if p.Total == 0 {
		return 1
	}
	return int((p.Total + int64(p.PerPage) - 1) / int64(p.PerPage))
}

// Page resolves a raw page query value. Anything that is not an integer within
// [1, NumPages] falls back to page 1.
func (p Paginator) Page(raw string) Page {
	num := p.NumPages()
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 || n > num {
		n = 1
	}
	return Page{Number: n, NumPages: num, PerPage: p.PerPage, Total: p.Total}
}

func (pg Page) Offset() int { return (pg.Number - 1) * pg.PerPage }

func (pg Page) Limit() int { return pg.PerPage }

func (pg Page) HasPrevious() bool { return pg.Number > 1 }

func (pg Page) HasNext() bool { return pg.Number < pg.NumPages }

func (pg Page) PreviousNumber() int {
	if pg.HasPrevious() {
		return pg.Number - 1
	}
	return pg.Number
}

func (pg Page) NextNumber() int {
	if pg.HasNext() {
		return pg.Number + 1
	}
	return pg.Number
}

// PageRange lists every page number, for rendering page links.
func (pg Page) PageRange() []int {
	out := make([]int, pg.NumPages)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

// ParsePageSize reads an API page_size, keeping it within 1..100.
func ParsePageSize(raw string, def int) int {
	if s, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && s > 0 && s <= 100 {
		return s
	}
	return def
}
