package domain

import "strings"

// FolderMapping maps source folder ids to tag names.
//
// Keys are unique by construction. A folder id with no entry is simply
// unmapped: it contributes no tag and is never an error.
type FolderMapping map[string]string

// MapFolder resolves the tag for folderID.
// Empty folder ids, missing entries and blank tag names all yield ("", false).
func MapFolder(folderID string, mapping FolderMapping) (string, bool) {
	if folderID == "" || len(mapping) == 0 {
		return "", false
	}
	tag, ok := mapping[folderID]
	if !ok {
		return "", false
	}
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return "", false
	}
	return tag, true
}
