// Package pagination implements keyset paging over snowflake-keyed rows
// ordered newest first.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

var ErrInvalidToken = errors.New("invalid page token")

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size,default=50"`
}

// Limit clamps PageSize into [1, max], using def when it is unset.
func (p Pagination) Limit(def, max int) int {
	switch {
	case p.PageSize <= 0:
		return def
	case p.PageSize > max:
		return max
	}
	return p.PageSize
}

// Cursor marks the last row of a page. Rows created in the same instant are
// ordered by ID.
type Cursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token"`
	HasMore       bool   `json:"has_more"`
}

type wireCursor struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
}

func EncodeCursor(c Cursor) (string, error) {
	b, err := json.Marshal(wireCursor{
		ID:        c.ID.String(),
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeCursor returns (nil, nil) for an empty token.
func DecodeCursor(token string) (*Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	var wire wireCursor
	if err := json.Unmarshal(b, &wire); err != nil {
		return nil, ErrInvalidToken
	}
	id, err := snowflake.ParseString(wire.ID)
	if err != nil || id <= 0 {
		return nil, ErrInvalidToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, wire.CreatedAt)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return &Cursor{ID: id, CreatedAt: createdAt}, nil
}

// Trim takes rows fetched with limit+1 and cuts them to one page. The extra
// row only signals that another page exists.
func Trim[T any](rows []T, limit int, cursorOf func(T) Cursor) ([]T, PageInfo, error) {
	if len(rows) <= limit {
		return rows, PageInfo{}, nil
	}
	rows = rows[:limit]
	token, err := EncodeCursor(cursorOf(rows[len(rows)-1]))
	if err != nil {
		return nil, PageInfo{}, err
	}
	return rows, PageInfo{NextPageToken: token, HasMore: true}, nil
}
