package collection

import (
	"github.com/tonehq/tonesync/pkg/models"
)

// All returns every record sorted by order, then id.
func (c *Collection[T]) All() []T {
	return c.Filter(nil)
}

func (c *Collection[T]) Get(id string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.items[id]
	return rec, ok
}

func (c *Collection[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Filter returns the records keep accepts, sorted by order, then id. A
// nil keep accepts everything.
func (c *Collection[T]) Filter(keep func(T) bool) []T {
	c.mu.Lock()
	all := make([]T, 0, len(c.items))
	for _, rec := range c.items {
		all = append(all, rec)
	}
	c.mu.Unlock()

	out := all
	if keep != nil {
		out = all[:0]
		for _, rec := range all {
			if keep(rec) {
				out = append(out, rec)
			}
		}
	}
	models.SortByOrder(out)
	return out
}

// OnChange registers fn to run after every change of the mapping. fn runs
// on the goroutine that made the change, without locks held.
func (c *Collection[T]) OnChange(fn func()) (cancel func()) {
	return c.changes.Add(func(struct{}) { fn() })
}

func (c *Collection[T]) notify() {
	c.changes.Emit(struct{}{})
}
