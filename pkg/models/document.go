package models

import (
	"fmt"
	"time"

	"github.com/tonehq/tonesync/pkg/constants"
)

// Document is the boundary representation of a record as the remote store
// sees it: camelCase field names, absent optional fields written as nil.
type Document map[string]any

// Clone returns a shallow copy of d. Slice values are copied.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		if s, ok := v.([]string); ok {
			v = append([]string(nil), s...)
		}
		out[k] = v
	}
	return out
}

// ID returns the document id or an empty string.
func (d Document) ID() string {
	id, _ := d[FieldID].(string)
	return id
}

func (d Document) str(field Field) (string, error) {
	switch v := d[field].(type) {
	case string:
		return v, nil
	case nil:
		return "", fmt.Errorf("%w: missing %s", constants.ErrInvalidDocument, field)
	default:
		return "", fmt.Errorf("%w: %s is %T, not string", constants.ErrInvalidDocument, field, v)
	}
}

func (d Document) optStr(field Field) (*string, error) {
	switch v := d[field].(type) {
	case nil:
		return nil, nil
	case string:
		return &v, nil
	default:
		return nil, fmt.Errorf("%w: %s is %T, not string", constants.ErrInvalidDocument, field, v)
	}
}

func (d Document) integer(field Field) (int, error) {
	switch v := d[field].(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float64:
		return int(v), nil
	case float32:
		return int(v), nil
	default:
		return 0, fmt.Errorf("%w: %s is %T, not a number", constants.ErrInvalidDocument, field, v)
	}
}

func (d Document) boolean(field Field) (bool, error) {
	switch v := d[field].(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	default:
		return false, fmt.Errorf("%w: %s is %T, not bool", constants.ErrInvalidDocument, field, v)
	}
}

func (d Document) timestamp(field Field) (time.Time, error) {
	t, err := d.optTimestamp(field)
	if err != nil {
		return time.Time{}, err
	}
	if t == nil {
		return time.Time{}, nil
	}
	return *t, nil
}

func (d Document) optTimestamp(field Field) (*time.Time, error) {
	v := d[field]
	if v == nil {
		return nil, nil
	}
	t, ok := AsTime(v)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %T, not a timestamp", constants.ErrInvalidDocument, field, v)
	}
	return &t, nil
}

func (d Document) strings(field Field) ([]string, error) {
	switch v := d[field].(type) {
	case nil:
		return nil, nil
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s contains %T", constants.ErrInvalidDocument, field, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s is %T, not a list", constants.ErrInvalidDocument, field, v)
	}
}

// AsTime converts the timestamp representations produced by the store
// adapters (time.Time, *time.Time, RFC 3339 strings, anything exposing
// Time()) into a time.Time.
func AsTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	case interface{ Time() time.Time }:
		return t.Time(), true
	default:
		return time.Time{}, false
	}
}

func optString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func optTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func optStrings(s []string) any {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func patchString(cur, next *string, clear bool) *string {
	switch {
	case clear:
		return nil
	case next != nil:
		return cloneString(next)
	default:
		return cur
	}
}

func patchTime(cur, next *time.Time, clear bool) *time.Time {
	switch {
	case clear:
		return nil
	case next != nil:
		return cloneTime(next)
	default:
		return cur
	}
}

func putString(d Document, f Field, v *string, clear bool) {
	switch {
	case clear:
		d[f] = nil
	case v != nil:
		d[f] = *v
	}
}

func putTime(d Document, f Field, v *time.Time, clear bool) {
	switch {
	case clear:
		d[f] = nil
	case v != nil:
		d[f] = *v
	}
}
