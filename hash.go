package cachering

import (
	"crypto/md5"
	"encoding/binary"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// HashFunc maps a member identity or a cache key to a point on the ring. It
// must be deterministic and identical on every node evaluating the same view.
type HashFunc func(data []byte) uint64

// TieBreak orders two members whose hash positions collide. It returns a
// negative number when a sorts first, positive when b does, zero when equal.
type TieBreak func(a, b Member) int

// MD5Hash uses the first 8 bytes of the MD5 digest, big endian. It is the
// default ring hash.
func MD5Hash(data []byte) uint64 {
	var sum = md5.Sum(data)
	return binary.BigEndian.Uint64(sum[:8])
}

// XXHash is a faster alternative to MD5Hash with a different distribution.
// All nodes of a cluster must agree on the hash in use.
func XXHash(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// LexicographicTieBreak compares identities byte-wise.
func LexicographicTieBreak(a, b Member) int {
	return strings.Compare(string(a), string(b))
}
