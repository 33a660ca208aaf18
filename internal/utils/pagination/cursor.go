package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidToken is returned for tokens this package did not produce.
var ErrInvalidToken = errors.New("invalid pagination token")

// DefaultLimit and MaxLimit bound page sizes when the caller asks for nothing or too much.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Cursor is the opaque pagination state we encode/decode.
// ID + UnixMilli establish a stable position in a (time, id) ordered list.
type Cursor struct {
	ID        uint64 `json:"id"`
	UnixMilli int64  `json:"ts,omitempty"`
}

// IsZero reports whether the cursor points at the first page.
func (c Cursor) IsZero() bool { return c.ID == 0 && c.UnixMilli == 0 }

// Time returns the cursor timestamp in UTC.
func (c Cursor) Time() time.Time { return time.UnixMilli(c.UnixMilli).UTC() }

// At builds a cursor for a row positioned at (t, id).
func At(t time.Time, id uint64) Cursor {
	return Cursor{ID: id, UnixMilli: t.UnixMilli()}
}

// Encode converts a Cursor into a Base64 string.
func Encode(c Cursor) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// Decode parses a Base64 string into a Cursor.
// Empty token → empty cursor (first page).
func Decode(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, nil
	}

	b, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, ErrInvalidToken
	}

	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil {
		return Cursor{}, ErrInvalidToken
	}
	return c, nil
}

// Limit clamps a requested page size.
func Limit(n int) int {
	switch {
	case n <= 0:
		return DefaultLimit
	case n > MaxLimit:
		return MaxLimit
	}
	return n
}

// Page is a request for one page of a list.
type Page struct {
	Token string
	Limit int
}
