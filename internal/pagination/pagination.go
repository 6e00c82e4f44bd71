package pagination

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// Dataset is a countable, sliceable result set.
type Dataset[T any] interface {
	Count(ctx context.Context) (int, error)
	Slice(ctx context.Context, offset, limit int) ([]T, error)
}

// Page is one window of a dataset as sent to clients. Next is nil on the
// last page.
type Page[T any] struct {
	Count   int  `json:"count"`
	Results []T  `json:"results"`
	Next    *int `json:"next"`
}

// InvalidPageError is returned for non-integer or out of range pages.
type InvalidPageError struct {
	Reason string
}

func (e *InvalidPageError) Error() string {
	return e.Reason
}

func notAnInteger() error {
	return &InvalidPageError{Reason: "Page number must be an integer!"}
}

func outOfRange(n int) error {
	return &InvalidPageError{Reason: fmt.Sprintf("Page %d does not exist!", n)}
}

// Cursor pages through a dataset. The total count is read once and reused
// for every page served by the same cursor.
type Cursor[T any] struct {
	data    Dataset[T]
	perPage int
	orphans int
	count   int
	counted bool
}

// NewCursor creates a cursor. orphans lets the last page absorb up to that
// many trailing items instead of producing a tiny extra page.
func NewCursor[T any](data Dataset[T], perPage, orphans int) *Cursor[T] {
	if perPage <= 0 {
		perPage = 1
	}
	if orphans < 0 {
		orphans = 0
	}
	return &Cursor[T]{data: data, perPage: perPage, orphans: orphans}
}

// Count returns the dataset size, querying it only the first time.
func (c *Cursor[T]) Count(ctx context.Context) (int, error) {
	if c.counted {
		return c.count, nil
	}
	n, err := c.data.Count(ctx)
	if err != nil {
		return 0, err
	}
	c.count, c.counted = n, true
	return n, nil
}

// NumPages is never below one: an empty dataset has a single empty page.
func (c *Cursor[T]) NumPages(ctx context.Context) (int, error) {
	count, err := c.Count(ctx)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 1, nil
	}
	hits := count - c.orphans
	if hits < 1 {
		hits = 1
	}
	return (hits + c.perPage - 1) / c.perPage, nil
}

// Page returns page number n, counting from one.
func (c *Cursor[T]) Page(ctx context.Context, n int) (Page[T], error) {
	if n < 1 {
		return Page[T]{}, outOfRange(n)
	}
	pages, err := c.NumPages(ctx)
	if err != nil {
		return Page[T]{}, err
	}
	if n > pages {
		return Page[T]{}, outOfRange(n)
	}
	count, err := c.Count(ctx)
	if err != nil {
		return Page[T]{}, err
	}

	bottom := (n - 1) * c.perPage
	top := bottom + c.perPage
	if top+c.orphans >= count {
		top = count
	}

	results := []T{}
	if top > bottom {
		results, err = c.data.Slice(ctx, bottom, top-bottom)
		if err != nil {
			return Page[T]{}, err
		}
		if results == nil {
			results = []T{}
		}
	}

	page := Page[T]{Count: count, Results: results}
	if n < pages {
		next := n + 1
		page.Next = &next
	}
	return page, nil
}

// ParsePageNumber decodes the page argument of a listing action. Integers
// and integer strings are accepted; a missing value means the first page.
func ParsePageNumber(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 1, nil
	}

	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(s); err == nil {
			return n, nil
		}
	}
	return 0, notAnInteger()
}
