package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Cursor marks the last item of a page for keyset pagination ordered by (CreatedAt desc, ID desc).
type Cursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
}

// IsZero reports whether the cursor points at the first page.
func (c Cursor) IsZero() bool {
	return c.ID == "" && c.CreatedAt.IsZero()
}

// After reports whether an item sorts after the cursor in newest-first order.
func (c Cursor) After(createdAt time.Time, id string) bool {
	if c.IsZero() {
		return true
	}
	if createdAt.Equal(c.CreatedAt) {
		return id < c.ID
	}
	return createdAt.Before(c.CreatedAt)
}

// EncodeToken serialises the provided cursor into a base64 URL-safe page token.
func EncodeToken(cursor Cursor) (string, error) {
	if cursor.IsZero() {
		return "", nil
	}
	data, err := json.Marshal(cursor)
	if err != nil {
		return "", fmt.Errorf("pagination: encode token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeToken parses the page token produced by EncodeToken back into a cursor.
func DecodeToken(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	var cursor Cursor
	if err := json.Unmarshal(decoded, &cursor); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	if cursor.ID == "" {
		return Cursor{}, fmt.Errorf("%w: missing id", ErrInvalidPageToken)
	}
	return cursor, nil
}
