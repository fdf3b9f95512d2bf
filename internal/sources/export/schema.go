package export

import "github.com/MrSnakeDoc/marksync/internal/domain"

// File is the root structure of a bookmark export (YAML or JSON).
//
// Bookmarks may be listed flat, carrying their own folder_id, or nested
// under the folder they were saved into:
//
//	bookmarks:
//	  - id: "1"
//	    text: ...
//	folders:
//	  - id: "f-reading"
//	    name: Reading
//	    bookmarks:
//	      - id: "2"
//	        text: ...
type File struct {
	Bookmarks []domain.RawBookmark `yaml:"bookmarks" json:"bookmarks"`
	Folders   []Folder             `yaml:"folders,omitempty" json:"folders,omitempty"`
}

// Folder groups bookmarks saved into the same source folder.
type Folder struct {
	ID        string               `yaml:"id" json:"id"`
	Name      string               `yaml:"name,omitempty" json:"name,omitempty"`
	Bookmarks []domain.RawBookmark `yaml:"bookmarks" json:"bookmarks"`
}
