// Package paginate windows an ordered in-memory collection into fixed-size pages.
package paginate

// Paginator holds a collection and a current page. Pages are 1-based. A
// Paginator is not safe for concurrent use; each view owns its own.
type Paginator[T any] struct {
	items   []T
	perPage int
	page    int
}

// New returns a Paginator positioned on page 1. perPage values below 1 are
// treated as 1.
func New[T any](items []T, perPage int) *Paginator[T] {
	if perPage < 1 {
		perPage = 1
	}
	return &Paginator[T]{items: items, perPage: perPage, page: 1}
}

// TotalPages is ceil(len(items)/perPage), zero for an empty collection.
func (p *Paginator[T]) TotalPages() int {
	return (len(p.items) + p.perPage - 1) / p.perPage
}

// CurrentPage returns the 1-based page number.
func (p *Paginator[T]) CurrentPage() int {
	return p.page
}

// PerPage returns the page size.
func (p *Paginator[T]) PerPage() int {
	return p.perPage
}

// Len returns the size of the whole collection.
func (p *Paginator[T]) Len() int {
	return len(p.items)
}

// GoToPage moves to page n. Out-of-range pages are rejected and leave the
// current page unchanged.
func (p *Paginator[T]) GoToPage(n int) bool {
	if n < 1 || n > p.TotalPages() {
		return false
	}
	p.page = n
	return true
}

// NextPage advances one page unless already on the last one.
func (p *Paginator[T]) NextPage() bool {
	return p.GoToPage(p.page + 1)
}

// PrevPage steps back one page unless already on the first one.
func (p *Paginator[T]) PrevPage() bool {
	return p.GoToPage(p.page - 1)
}

// Items returns the window for the current page. The slice aliases the
// underlying collection.
func (p *Paginator[T]) Items() []T {
	start := (p.page - 1) * p.perPage
	if start >= len(p.items) {
		return p.items[len(p.items):]
	}
	end := start + p.perPage
	if end > len(p.items) {
		end = len(p.items)
	}
	return p.items[start:end]
}

// SetItems replaces the collection and returns to page 1.
func (p *Paginator[T]) SetItems(items []T) {
	p.items = items
	p.page = 1
}
