package pagination

// Cache holds at most one cursor per action for a single connection. It is
// not safe for concurrent use; a connection processes actions sequentially.
type Cache struct {
	cursors map[string]any
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{cursors: make(map[string]any)}
}

// CursorFor returns the cursor cached for action, creating it from data
// when absent.
func CursorFor[T any](c *Cache, action string, data Dataset[T], perPage int) *Cursor[T] {
	if cur, ok := c.cursors[action].(*Cursor[T]); ok {
		return cur
	}
	cur := NewCursor(data, perPage, 0)
	c.cursors[action] = cur
	return cur
}

// Drop forgets the cursor for action.
func (c *Cache) Drop(action string) {
	delete(c.cursors, action)
}

// DropAll forgets every cursor.
func (c *Cache) DropAll() {
	c.cursors = make(map[string]any)
}

// Has reports whether a cursor is cached for action.
func (c *Cache) Has(action string) bool {
	_, ok := c.cursors[action]
	return ok
}

// Len returns the number of cached cursors.
func (c *Cache) Len() int {
	return len(c.cursors)
}
