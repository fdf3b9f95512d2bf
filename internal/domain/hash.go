package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// ContentHash fingerprints a raw bookmark for change detection.
// The hash covers the canonical JSON encoding of every field, so any change
// in the fetched representation (folder moves included) marks the bookmark
// for reprocessing.
func ContentHash(b RawBookmark) string {
	// RawBookmark only holds strings, slices and a time: Marshal cannot fail.
	data, _ := json.Marshal(b.canonical())
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// canonical normalizes representations that carry no content difference.
func (b RawBookmark) canonical() RawBookmark {
	c := b.clone()
	if len(c.URLs) == 0 {
		c.URLs = nil
	}
	if len(c.Media) == 0 {
		c.Media = nil
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return c
}
