package surrealstore

import (
	"fmt"
	"time"

	sdbmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/tonehq/tonesync/pkg/models"
)

// toSurreal prepares a document for the wire. Timestamps become
// CustomDateTime so they are stored as datetimes rather than strings.
func toSurreal(doc models.Document) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		switch t := v.(type) {
		case time.Time:
			out[k] = sdbmodels.CustomDateTime{Time: t}
		case *time.Time:
			if t == nil {
				out[k] = nil
			} else {
				out[k] = sdbmodels.CustomDateTime{Time: *t}
			}
		default:
			out[k] = v
		}
	}
	return out
}

// fromSurreal turns a decoded row into a Document with plain Go values.
// The record id is reduced to its key.
func fromSurreal(row map[string]any) models.Document {
	doc := make(models.Document, len(row))
	for k, v := range row {
		doc[k] = plain(v)
	}
	if rid, ok := row[models.FieldID]; ok {
		doc[models.FieldID] = recordKey(rid)
	}
	return doc
}

func plain(v any) any {
	switch t := v.(type) {
	case sdbmodels.CustomDateTime:
		return t.Time
	case *sdbmodels.CustomDateTime:
		if t == nil {
			return nil
		}
		return t.Time
	case sdbmodels.CustomNil, *sdbmodels.CustomNil:
		return nil
	case sdbmodels.UUID:
		return t.String()
	case *sdbmodels.UUID:
		if t == nil {
			return nil
		}
		return t.String()
	case sdbmodels.RecordID:
		return recordKey(t)
	case *sdbmodels.RecordID:
		if t == nil {
			return nil
		}
		return recordKey(*t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = plain(e)
		}
		return out
	default:
		return v
	}
}

func recordKey(v any) string {
	switch t := v.(type) {
	case sdbmodels.RecordID:
		return fmt.Sprint(t.ID)
	case *sdbmodels.RecordID:
		if t == nil {
			return ""
		}
		return fmt.Sprint(t.ID)
	case string:
		return t
	default:
		return fmt.Sprint(v)
	}
}
