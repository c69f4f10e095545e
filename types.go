package cachering

import (
	"errors"
	"fmt"
)

// Member identifies one cluster node. It must be unique within a view and
// stable for the lifetime of that node's membership.
type Member string

var (
	// ErrEmptyMembership is returned when a ring is built from no members.
	ErrEmptyMembership = errors.New("membership view is empty")

	// ErrInvalidReplicationFactor is returned when numOwners is not positive.
	ErrInvalidReplicationFactor = errors.New("replication factor must be positive")

	// ErrUnknownMember is the sentinel wrapped by UnknownMemberError.
	ErrUnknownMember = errors.New("member not in ring")

	// ErrLeaverNotInOldRing is the sentinel wrapped by LeaverNotInOldRingError.
	ErrLeaverNotInOldRing = errors.New("leaver not in old ring")

	// ErrRingMismatch is returned when the new ring is not the old ring minus
	// the leaver.
	ErrRingMismatch = errors.New("new ring is not the old ring without the leaver")

	// ErrNilRing is returned when a nil ring is passed to a plan.
	ErrNilRing = errors.New("ring is nil")

	// ErrBatchedViewChange is returned by Tracker when a view adds and removes
	// members at once, or removes more than one.
	ErrBatchedViewChange = errors.New("view change must be a single departure or joins only")
)

// UnknownMemberError is returned when an identity is not part of the ring it
// is looked up in.
type UnknownMemberError struct {
	Member Member
}

// Error implements error.
func (e UnknownMemberError) Error() string {
	return fmt.Sprintf("member %q not in ring", string(e.Member))
}

// Unwrap returns ErrUnknownMember.
func (e UnknownMemberError) Unwrap() error { return ErrUnknownMember }

// LeaverNotInOldRingError is returned when a leave is planned for a member
// the pre-departure ring does not contain.
type LeaverNotInOldRingError struct {
	Leaver Member
}

// Error implements error.
func (e LeaverNotInOldRingError) Error() string {
	return fmt.Sprintf("leaver %q not in old ring", string(e.Leaver))
}

// Unwrap returns ErrLeaverNotInOldRing.
func (e LeaverNotInOldRingError) Unwrap() error { return ErrLeaverNotInOldRing }
