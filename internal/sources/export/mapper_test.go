package export

import (
	"strings"
	"testing"

	"github.com/MrSnakeDoc/marksync/internal/domain"
)

func TestMapBookmarks(t *testing.T) {
	file := File{
		Bookmarks: []domain.RawBookmark{
			{ID: " 1 ", AuthorHandle: "@gopher"},
		},
		Folders: []Folder{
			{ID: "f1", Bookmarks: []domain.RawBookmark{{ID: "2"}}},
		},
	}

	got, err := NewMapper().MapBookmarks(file)
	if err != nil {
		t.Fatalf("MapBookmarks() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("MapBookmarks() returned %d bookmarks, want 2", len(got))
	}
	if got[0].ID != "1" {
		t.Errorf("ID = %q, want trimmed \"1\"", got[0].ID)
	}
	if got[0].AuthorHandle != "gopher" {
		t.Errorf("AuthorHandle = %q, want gopher", got[0].AuthorHandle)
	}
	if got[1].FolderID != "f1" {
		t.Errorf("FolderID = %q, want inherited f1", got[1].FolderID)
	}
}

func TestMapBookmarksErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    File
		wantErr string
	}{
		{
			name:    "flat bookmark without id",
			file:    File{Bookmarks: []domain.RawBookmark{{ID: "1"}, {Text: "orphan"}}},
			wantErr: "bookmark #2 has no id",
		},
		{
			name:    "folder without id",
			file:    File{Folders: []Folder{{Name: "Reading"}}},
			wantErr: "folder \"Reading\" has no id",
		},
		{
			name:    "nested bookmark without id",
			file:    File{Folders: []Folder{{ID: "f1", Bookmarks: []domain.RawBookmark{{ID: " "}}}}},
			wantErr: "in folder f1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMapper().MapBookmarks(tt.file)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("MapBookmarks() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestMapBookmarksEmpty(t *testing.T) {
	got, err := NewMapper().MapBookmarks(File{})
	if err != nil {
		t.Fatalf("MapBookmarks() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("MapBookmarks() = %d bookmarks, want 0", len(got))
	}
}
