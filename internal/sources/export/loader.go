package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/sources"
)

// DefaultPageSize is how many bookmarks one FetchBookmarks call returns.
const DefaultPageSize = 200

// Loader serves a local export file as a paged source.
type Loader struct {
	filePath string
	pageSize int
	mapper   *Mapper

	mu    sync.Mutex
	items []domain.RawBookmark
}

// NewLoader creates a new export loader
func NewLoader(filePath string, pageSize int) *Loader {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Loader{
		filePath: filePath,
		pageSize: pageSize,
		mapper:   NewMapper(),
	}
}

// Load reads and parses the export file. Files ending in .json are decoded
// as JSON, anything else as YAML.
func (l *Loader) Load() (File, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return File{}, fmt.Errorf("failed to read export file: %w", err)
	}

	var file File
	if strings.EqualFold(filepath.Ext(l.filePath), ".json") {
		if err := json.Unmarshal(data, &file); err != nil {
			return File{}, fmt.Errorf("failed to parse export json: %w", err)
		}
		return file, nil
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return File{}, fmt.Errorf("failed to parse export yaml: %w", err)
	}
	return file, nil
}

// FetchBookmarks implements sources.Fetcher. The file is read once per
// listing, on the first page, so every page comes from the same version.
func (l *Loader) FetchBookmarks(ctx context.Context, cursor string) (sources.Page, error) {
	if err := ctx.Err(); err != nil {
		return sources.Page{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	offset := 0
	if cursor == "" {
		file, err := l.Load()
		if err != nil {
			return sources.Page{}, err
		}
		items, err := l.mapper.MapBookmarks(file)
		if err != nil {
			return sources.Page{}, fmt.Errorf("invalid export file %s: %w", l.filePath, err)
		}
		l.items = items
	} else {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 || n > len(l.items) {
			return sources.Page{}, fmt.Errorf("invalid cursor %q", cursor)
		}
		offset = n
	}

	end := offset + l.pageSize
	if end > len(l.items) {
		end = len(l.items)
	}
	page := sources.Page{Items: l.items[offset:end]}
	if end < len(l.items) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}
