package redis

import (
	"crypto/sha256"
	"encoding/hex"
)

const (
	// KeyPrefixLink is the prefix for cached link expansions
	KeyPrefixLink = "marksync:link:"
)

// LinkKey returns the Redis key for a cached link expansion.
// URLs are hashed to keep keys short and free of reserved characters.
func LinkKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return KeyPrefixLink + hex.EncodeToString(sum[:16])
}
