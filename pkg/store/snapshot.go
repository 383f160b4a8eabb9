package store

import (
	"sort"
	"sync"

	"github.com/tonehq/tonesync/pkg/models"
)

type onceFunc struct {
	once sync.Once
}

func (o *onceFunc) do(fn func()) {
	o.once.Do(func() {
		if fn != nil {
			fn()
		}
	})
}

// SortDocuments orders docs by the given field, then by id. Missing or
// non-numeric order values sort as zero.
func SortDocuments(docs []models.Document, orderBy string) {
	sort.SliceStable(docs, func(i, j int) bool {
		if orderBy != "" {
			oi, oj := number(docs[i][orderBy]), number(docs[j][orderBy])
			if oi != oj {
				return oi < oj
			}
		}
		return docs[i].ID() < docs[j].ID()
	})
}

func number(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}

// Merge returns a copy of doc with fields applied on top.
func Merge(doc, fields models.Document) models.Document {
	out := doc.Clone()
	if out == nil {
		out = models.Document{}
	}
	for k, v := range fields.Clone() {
		out[k] = v
	}
	return out
}
