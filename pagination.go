package baserepo

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PagingMode is the pagination strategy of a finalized query. It is one of
// NoPaging, OffsetPaging or CursorPaging.
type PagingMode interface {
	isPagingMode()
}

// NoPaging returns every matching row.
type NoPaging struct{}

// OffsetPaging selects page Page (1-based) of Size rows.
type OffsetPaging struct {
	Page int
	Size int
}

// Offset returns the number of rows skipped before the page.
func (p OffsetPaging) Offset() int { return (p.Page - 1) * p.Size }

// CursorPaging selects at most Size rows strictly after the After position in
// the query order. An empty After selects the first page.
type CursorPaging struct {
	After Cursor
	Size  int
}

func (NoPaging) isPagingMode()     {}
func (OffsetPaging) isPagingMode() {}
func (CursorPaging) isPagingMode() {}

// CursorEntry is one key of a cursor.
type CursorEntry struct {
	Key   string
	Value any
}

// Cursor is a keyset position: the values of the order columns of the last row
// of the previous page, in order. A nil or empty Cursor means the first page.
type Cursor []CursorEntry

// NewCursor builds a cursor from alternating keys and values:
//
//	baserepo.NewCursor("created_at", ts, "id", 120)
//
// It panics on an odd number of arguments or a non-string key.
func NewCursor(kv ...any) Cursor {
	if len(kv)%2 != 0 {
		panic("baserepo: NewCursor requires key/value pairs")
	}
	c := make(Cursor, 0, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("baserepo: NewCursor key %v is not a string", kv[i]))
		}
		c = append(c, CursorEntry{Key: key, Value: kv[i+1]})
	}
	return c
}

// CursorOf builds a cursor from entries.
func CursorOf(entries ...CursorEntry) Cursor {
	return Cursor(entries)
}

// Keys returns the cursor keys in order.
func (c Cursor) Keys() []string {
	keys := make([]string, len(c))
	for i, e := range c {
		keys[i] = e.Key
	}
	return keys
}

// Get returns the value for key.
func (c Cursor) Get(key string) (any, bool) {
	for _, e := range c {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

func (c Cursor) String() string {
	parts := make([]string, len(c))
	for i, e := range c {
		parts[i] = fmt.Sprintf("%s=%v", e.Key, e.Value)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// CursorAfter builds the cursor that continues after row, using the order of
// a finalized query. It is typically called with the last entity of a page.
func CursorAfter(desc *QueryDescriptor, row Entity) (Cursor, error) {
	order := desc.Order()
	c := make(Cursor, 0, len(order))
	for _, term := range order {
		v, ok := ColumnValue(row, term.Column.Name)
		if !ok {
			return nil, NewConfigurationErrorForField(row.Table().Name, term.Column.Name,
				"entity has no field for order column")
		}
		c = append(c, CursorEntry{Key: term.Column.Name, Value: v})
	}
	return c, nil
}

// EncodeCursor encodes a cursor into an opaque URL-safe token. An empty cursor
// encodes to the empty string.
func EncodeCursor(c Cursor) (string, error) {
	if len(c) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Key)
		if err != nil {
			return "", fmt.Errorf("failed to marshal cursor key: %w", err)
		}
		v := e.Value
		if ts, ok := v.(time.Time); ok {
			v = ts.Format(time.RFC3339Nano)
		}
		val, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to marshal cursor value for %s: %w", e.Key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')

	return base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeCursor decodes a token produced by EncodeCursor. Key order is kept.
// Numbers decode to int64 when integral and float64 otherwise; times decode as
// strings and are coerced by WithCursor using the column type.
func DecodeCursor(token string) (Cursor, error) {
	if token == "" {
		return nil, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(token, "="))
	if err != nil {
		return nil, fmt.Errorf("invalid cursor format: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("invalid cursor content: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("invalid cursor content: expected object")
	}

	var c Cursor
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("invalid cursor content: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("invalid cursor content: key %v is not a string", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("invalid cursor value for %s: %w", key, err)
		}
		if n, ok := v.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				v = i
			} else if f, err := n.Float64(); err == nil {
				v = f
			} else {
				return nil, fmt.Errorf("invalid cursor value for %s: %w", key, err)
			}
		}
		c = append(c, CursorEntry{Key: key, Value: v})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("invalid cursor content: %w", err)
	}
	return c, nil
}

// PaginationConfig bounds the page sizes accepted by GetList.
type PaginationConfig struct {
	// MaxPageSize caps requested sizes. Zero means no cap.
	MaxPageSize int
}

// DefaultPaginationConfig returns the pagination defaults.
func DefaultPaginationConfig() PaginationConfig {
	return PaginationConfig{MaxPageSize: 1000}
}

func (p PaginationConfig) clamp(size int) int {
	if p.MaxPageSize > 0 && size > p.MaxPageSize {
		return p.MaxPageSize
	}
	return size
}
