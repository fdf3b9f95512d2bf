package export

import (
	"fmt"
	"strings"

	"github.com/MrSnakeDoc/marksync/internal/domain"
)

// Mapper flattens an export file into raw bookmarks.
type Mapper struct{}

// NewMapper creates a new export mapper
func NewMapper() *Mapper {
	return &Mapper{}
}

// MapBookmarks returns every bookmark in file order, flat entries first.
// Nested entries inherit their folder's id unless they carry one.
//
// An entry without an id fails the whole file: dropping it would make the
// reconciler tombstone a bookmark that still exists.
func (m *Mapper) MapBookmarks(file File) ([]domain.RawBookmark, error) {
	out := make([]domain.RawBookmark, 0, len(file.Bookmarks))

	for i, b := range file.Bookmarks {
		if strings.TrimSpace(b.ID) == "" {
			return nil, fmt.Errorf("bookmark #%d has no id", i+1)
		}
		out = append(out, normalize(b))
	}

	for _, folder := range file.Folders {
		folderID := strings.TrimSpace(folder.ID)
		if folderID == "" {
			return nil, fmt.Errorf("folder %q has no id", folder.Name)
		}
		for i, b := range folder.Bookmarks {
			if strings.TrimSpace(b.ID) == "" {
				return nil, fmt.Errorf("bookmark #%d in folder %s has no id", i+1, folderID)
			}
			if b.FolderID == "" {
				b.FolderID = folderID
			}
			out = append(out, normalize(b))
		}
	}

	return out, nil
}

func normalize(b domain.RawBookmark) domain.RawBookmark {
	b.ID = strings.TrimSpace(b.ID)
	b.FolderID = strings.TrimSpace(b.FolderID)
	b.AuthorHandle = strings.TrimPrefix(strings.TrimSpace(b.AuthorHandle), "@")
	if !b.CreatedAt.IsZero() {
		b.CreatedAt = b.CreatedAt.UTC()
	}
	return b
}
