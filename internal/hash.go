package internal

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// FastHash is a non-cryptographic hash used to pseudonymize user identifiers
// in logs and metrics labels. It must never be used where collisions matter.
func FastHash(text string) string {
	h := xxhash.Sum64String(text)
	return strconv.FormatUint(h, 16)
}

// Shard maps text onto one of n buckets. n must be positive.
func Shard(text string, n int) int {
	return int(xxhash.Sum64String(text) % uint64(n))
}
