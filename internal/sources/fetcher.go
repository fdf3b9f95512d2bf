package sources

import (
	"context"
	"fmt"

	"github.com/MrSnakeDoc/marksync/internal/domain"
)

// Page is one slice of a paged bookmark listing.
type Page struct {
	Items      []domain.RawBookmark
	NextCursor string // empty on the last page
}

// Fetcher lists bookmarks one page at a time. The first call passes an
// empty cursor.
type Fetcher interface {
	FetchBookmarks(ctx context.Context, cursor string) (Page, error)
}

// FetchAll walks every page of f. Any failure, including a cursor that
// repeats, is returned as *domain.FetchError so callers abort before
// touching state: a partial listing would tombstone what it missed.
func FetchAll(ctx context.Context, f Fetcher) ([]domain.RawBookmark, error) {
	var (
		items  []domain.RawBookmark
		cursor string
		seen   = map[string]struct{}{}
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, &domain.FetchError{Cursor: cursor, Err: err}
		}

		page, err := f.FetchBookmarks(ctx, cursor)
		if err != nil {
			return nil, &domain.FetchError{Cursor: cursor, Err: err}
		}
		items = append(items, page.Items...)

		if page.NextCursor == "" {
			return items, nil
		}
		if _, dup := seen[page.NextCursor]; dup || page.NextCursor == cursor {
			return nil, &domain.FetchError{
				Cursor: cursor,
				Err:    fmt.Errorf("source returned repeated cursor %q", page.NextCursor),
			}
		}
		seen[page.NextCursor] = struct{}{}
		cursor = page.NextCursor
	}
}
