package model

// Page is one page of a paginated listing.
type Page[T any] struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
	Items []T `json:"items"`
}

// NewPage builds a Page, computing the page count and never returning a nil
// Items slice (so it encodes as [] rather than null).
func NewPage[T any](items []T, page, limit, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Page[T]{
		Page:  page,
		Limit: limit,
		Total: total,
		Pages: pages,
		Items: items,
	}
}
