package cachering

import (
	"fmt"
	"sort"
	"strings"
)

// Ring is an immutable arrangement of members sorted by hash position, ties
// broken by the ring's TieBreak. A Ring is never modified after Build, so it
// can be shared between goroutines without locking.
type Ring struct {
	members  []Member // Sorted by (hash, tieBreak)
	hashes   []uint64 // hashes[i] is the position of members[i]
	index    map[Member]int
	hashFunc HashFunc
	tieBreak TieBreak
}

// Build creates a Ring from a membership view. Duplicate identities collapse
// to one. The result depends only on the set of members, never on the order
// they are given in.
func Build(members []Member, opts ...Option) (*Ring, error) {
	var options = applyOptions(opts)

	var (
		seen   = make(map[Member]struct{}, len(members))
		unique = make([]Member, 0, len(members))
	)
	for _, m := range members {
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		unique = append(unique, m)
	}

	if len(unique) == 0 {
		return nil, ErrEmptyMembership
	}

	var r = &Ring{
		members:  unique,
		hashes:   make([]uint64, len(unique)),
		hashFunc: options.hashFunc,
		tieBreak: options.tieBreak,
	}
	for i, m := range unique {
		r.hashes[i] = r.hashOf(m)
	}

	sort.Sort(byPosition{r})
	r.reindex()

	return r, nil
}

// Without returns the ring that remains after leaver departs. The relative
// order of the remaining members is unchanged.
func (r *Ring) Without(leaver Member) (*Ring, error) {
	var idx, ok = r.index[leaver]
	if !ok {
		return nil, UnknownMemberError{Member: leaver}
	}
	if len(r.members) == 1 {
		return nil, ErrEmptyMembership
	}

	var next = &Ring{
		members:  make([]Member, 0, len(r.members)-1),
		hashes:   make([]uint64, 0, len(r.members)-1),
		hashFunc: r.hashFunc,
		tieBreak: r.tieBreak,
	}
	next.members = append(append(next.members, r.members[:idx]...), r.members[idx+1:]...)
	next.hashes = append(append(next.hashes, r.hashes[:idx]...), r.hashes[idx+1:]...)
	next.reindex()

	return next, nil
}

func (r *Ring) reindex() {
	r.index = make(map[Member]int, len(r.members))
	for i, m := range r.members {
		r.index[m] = i
	}
}

// Size returns the number of members.
func (r *Ring) Size() int { return len(r.members) }

// Members returns the members in ring order. The returned slice must not be
// modified.
func (r *Ring) Members() []Member { return r.members }

// Contains reports whether m is part of the ring.
func (r *Ring) Contains(m Member) bool {
	_, ok := r.index[m]
	return ok
}

// PositionOf returns the ring index of m.
func (r *Ring) PositionOf(m Member) (int, error) {
	var idx, ok = r.index[m]
	if !ok {
		return -1, UnknownMemberError{Member: m}
	}
	return idx, nil
}

// HashOf returns the hash position of m whether or not it is in the ring.
func (r *Ring) HashOf(m Member) uint64 { return r.hashOf(m) }

func (r *Ring) hashOf(m Member) uint64 { return r.hashFunc([]byte(m)) }

// Successor returns the member clockwise after m.
func (r *Ring) Successor(m Member) (Member, error) {
	var idx, err = r.PositionOf(m)
	if err != nil {
		return "", err
	}
	return r.members[(idx+1)%len(r.members)], nil
}

// Predecessor returns the member counter-clockwise before m.
func (r *Ring) Predecessor(m Member) (Member, error) {
	var idx, err = r.PositionOf(m)
	if err != nil {
		return "", err
	}
	return r.members[(idx-1+len(r.members))%len(r.members)], nil
}

// OwnersOf returns the owner set of the slot rooted at root: up to numOwners
// distinct members walking clockwise from root, primary first. root does not
// need to be in the ring; its hash position is used to find the first member
// at or after it.
func (r *Ring) OwnersOf(root Member, numOwners int) ([]Member, error) {
	if numOwners <= 0 {
		return nil, ErrInvalidReplicationFactor
	}

	var start, ok = r.index[root]
	if !ok {
		start = r.search(root)
	}
	return r.walk(start, numOwners), nil
}

// OwnersAt returns the owner set for an arbitrary point on the ring.
func (r *Ring) OwnersAt(position uint64, numOwners int) ([]Member, error) {
	if numOwners <= 0 {
		return nil, ErrInvalidReplicationFactor
	}

	var start = sort.Search(len(r.hashes), func(i int) bool {
		return r.hashes[i] >= position
	})
	if start == len(r.hashes) {
		// Wrap around if we hit the end of the list.
		start = 0
	}
	return r.walk(start, numOwners), nil
}

// OwnersOfKey returns the owners of a cache key.
func (r *Ring) OwnersOfKey(key string, numOwners int) ([]Member, error) {
	return r.OwnersAt(r.hashFunc([]byte(key)), numOwners)
}

// PrimaryOwner returns the first owner of a cache key.
func (r *Ring) PrimaryOwner(key string) Member {
	var owners, _ = r.OwnersOfKey(key, 1)
	return owners[0]
}

// IsOwner reports whether m holds a copy of key.
func (r *Ring) IsOwner(key string, m Member, numOwners int) (bool, error) {
	var owners, err = r.OwnersOfKey(key, numOwners)
	if err != nil {
		return false, err
	}
	for _, o := range owners {
		if o == m {
			return true, nil
		}
	}
	return false, nil
}

// OwnedRoots returns the roots of every slot whose owner set contains m: m
// itself followed by its numOwners-1 ring predecessors, nearest first. On a
// ring smaller than numOwners every member is returned.
func (r *Ring) OwnedRoots(m Member, numOwners int) ([]Member, error) {
	if numOwners <= 0 {
		return nil, ErrInvalidReplicationFactor
	}
	var idx, err = r.PositionOf(m)
	if err != nil {
		return nil, err
	}

	var (
		size  = len(r.members)
		count = min(numOwners, size)
		roots = make([]Member, count)
	)
	for i := 0; i < count; i++ {
		roots[i] = r.members[(idx-i+size)%size]
	}
	return roots, nil
}

// Equal reports whether both rings hold the same members in the same order.
func (r *Ring) Equal(other *Ring) bool {
	if r == nil || other == nil {
		return r == other
	}
	if len(r.members) != len(other.members) {
		return false
	}
	for i := range r.members {
		if r.members[i] != other.members[i] || r.hashes[i] != other.hashes[i] {
			return false
		}
	}
	return true
}

// walk collects min(numOwners, Size()) members clockwise from start.
func (r *Ring) walk(start, numOwners int) []Member {
	var (
		size   = len(r.members)
		count  = min(numOwners, size)
		owners = make([]Member, count)
	)
	for i := 0; i < count; i++ {
		owners[i] = r.members[(start+i)%size]
	}
	return owners
}

// search returns the index of the first member ordered at or after m, wrapping
// to 0.
func (r *Ring) search(m Member) int {
	var h = r.hashOf(m)
	var idx = sort.Search(len(r.members), func(i int) bool {
		return r.compare(r.hashes[i], r.members[i], h, m) >= 0
	})
	if idx == len(r.members) {
		idx = 0
	}
	return idx
}

func (r *Ring) compare(ha uint64, a Member, hb uint64, b Member) int {
	switch {
	case ha < hb:
		return -1
	case ha > hb:
		return 1
	}
	if c := r.tieBreak(a, b); c != 0 {
		return c
	}
	// A TieBreak that reports distinct members as equal would make the order
	// depend on input order.
	return strings.Compare(string(a), string(b))
}

type byPosition struct{ r *Ring }

func (b byPosition) Len() int { return len(b.r.members) }

func (b byPosition) Swap(i, j int) {
	b.r.members[i], b.r.members[j] = b.r.members[j], b.r.members[i]
	b.r.hashes[i], b.r.hashes[j] = b.r.hashes[j], b.r.hashes[i]
}

func (b byPosition) Less(i, j int) bool {
	return b.r.compare(b.r.hashes[i], b.r.members[i], b.r.hashes[j], b.r.members[j]) < 0
}

// String returns a visual representation of the ring.
func (r *Ring) String() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Ring: %d members\n", len(r.members)))
	b.WriteString("┌─────────────────────────────────────────────────────────────┐\n")
	for i, m := range r.members {
		var prev = r.members[(i-1+len(r.members))%len(r.members)]
		b.WriteString(fmt.Sprintf("│ %3d  @%016x  %-20s  pred: %s\n", i, r.hashes[i], m, prev))
	}
	b.WriteString("└─────────────────────────────────────────────────────────────┘\n")

	return b.String()
}
