package cachering

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// fixedHash places the given identities at fixed positions and hashes
// everything else with MD5Hash.
func fixedHash(positions map[string]uint64) HashFunc {
	return func(data []byte) uint64 {
		if p, ok := positions[string(data)]; ok {
			return p
		}
		return MD5Hash(data)
	}
}

// newScenarioRing builds a0..a4 in that ring order.
func newScenarioRing(t *testing.T) *Ring {
	t.Helper()

	var ring, err = Build(
		[]Member{"a3", "a0", "a4", "a2", "a1"},
		WithHashFunc(fixedHash(map[string]uint64{
			"a0": 100,
			"a1": 200,
			"a2": 300,
			"a3": 400,
			"a4": 500,
		})),
	)
	require.NoError(t, err)
	require.Equal(t, []Member{"a0", "a1", "a2", "a3", "a4"}, ring.Members())
	return ring
}

// randomMembers returns n distinct identities drawn from r.
func randomMembers(r *rand.Rand, n int) []Member {
	var (
		seen    = make(map[Member]bool, n)
		members = make([]Member, 0, n)
	)
	for len(members) < n {
		var m = Member(fmt.Sprintf("node-%06x", r.Intn(1<<24)))
		if seen[m] {
			continue
		}
		seen[m] = true
		members = append(members, m)
	}
	return members
}
