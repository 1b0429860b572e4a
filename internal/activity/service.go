package activity

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ovaphlow/pitchfork/service-account/internal/activity/entity"
	"github.com/ovaphlow/pitchfork/service-account/internal/activity/repo"
)

const (
	DefaultPageSize   = 50
	MaxPageSize       = 200
	DefaultRecentSize = 10
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Reader is the read side of the event store.
type Reader interface {
	ListByAccount(ctx context.Context, accountID int64, after *repo.Position, limit int) ([]entity.Event, error)
	ListRecent(ctx context.Context, accountID int64, limit int) ([]entity.Event, error)
}

// Page selects a window of an account's history. Cursor is the NextCursor of
// the previous page; empty starts from the oldest event.
type Page struct {
	Limit  int
	Cursor string
}

// PageResult holds one page of events in ascending timestamp order.
// NextCursor is empty once the history is exhausted.
type PageResult struct {
	Items      []entity.Event `json:"items"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

// Service serves activity history.
type Service struct {
	reader Reader
}

func NewService(reader Reader) *Service {
	return &Service{reader: reader}
}

// ListByAccount returns one page of the account's history. The same cursor
// always yields the same page, so iteration can be restarted from any point.
func (s *Service) ListByAccount(ctx context.Context, accountID int64, p Page) (PageResult, error) {
	limit := clampLimit(p.Limit, DefaultPageSize, MaxPageSize)
	var after *repo.Position
	if p.Cursor != "" {
		pos, err := DecodeCursor(p.Cursor)
		if err != nil {
			return PageResult{}, err
		}
		after = &pos
	}
	// fetch one extra row to learn whether another page exists
	items, err := s.reader.ListByAccount(ctx, accountID, after, limit+1)
	if err != nil {
		return PageResult{}, err
	}
	res := PageResult{Items: items}
	if len(items) > limit {
		res.Items = items[:limit]
		last := res.Items[limit-1]
		res.NextCursor = EncodeCursor(repo.Position{TimestampMillis: last.Timestamp.UnixMilli(), ID: last.ID})
	}
	return res, nil
}

// Recent returns the account's newest events, newest first.
func (s *Service) Recent(ctx context.Context, accountID int64, limit int) ([]entity.Event, error) {
	return s.reader.ListRecent(ctx, accountID, clampLimit(limit, DefaultRecentSize, MaxPageSize))
}

func clampLimit(n, def, hi int) int {
	if n <= 0 {
		return def
	}
	if n > hi {
		return hi
	}
	return n
}

// EncodeCursor renders a position as an opaque URL-safe token.
func EncodeCursor(p repo.Position) string {
	raw := strconv.FormatInt(p.TimestampMillis, 10) + ":" + strconv.FormatInt(p.ID, 10)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by EncodeCursor.
func DecodeCursor(s string) (repo.Position, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return repo.Position{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	ts, id, ok := strings.Cut(string(raw), ":")
	if !ok {
		return repo.Position{}, ErrInvalidCursor
	}
	var p repo.Position
	if p.TimestampMillis, err = strconv.ParseInt(ts, 10, 64); err != nil {
		return repo.Position{}, ErrInvalidCursor
	}
	if p.ID, err = strconv.ParseInt(id, 10, 64); err != nil {
		return repo.Position{}, ErrInvalidCursor
	}
	return p, nil
}
