package cachering

import (
	"fmt"
	"slices"
)

// SenderPolicy decides which surviving owner of a slot pushes its data to the
// slot's newly added owner.
type SenderPolicy uint8

const (
	// SenderPrimaryOwner picks the first owner of the slot on the new ring that
	// already held a replica on the old ring. For slots whose primary left,
	// this is the leaver's successor.
	SenderPrimaryOwner SenderPolicy = iota

	// SenderAddedOwnerPredecessor picks the replica holder immediately before
	// the added owner in the slot's new owner list.
	SenderAddedOwnerPredecessor
)

// String returns the string representation of p.
func (p SenderPolicy) String() string {
	switch p {
	case SenderPrimaryOwner:
		return "primary-owner"
	case SenderAddedOwnerPredecessor:
		return "added-owner-predecessor"
	default:
		return fmt.Sprintf("SenderPolicy(%d)", p)
	}
}

// ParseSenderPolicy parses the output of SenderPolicy.String.
func ParseSenderPolicy(s string) (SenderPolicy, error) {
	switch s {
	case "primary-owner":
		return SenderPrimaryOwner, nil
	case "added-owner-predecessor":
		return SenderAddedOwnerPredecessor, nil
	default:
		return 0, fmt.Errorf("unknown sender policy %q", s)
	}
}

// sender returns the member that pushes slot's data to added. ok is false
// when no surviving owner held a replica.
func (p SenderPolicy) sender(slot *SlotChange, added Member) (Member, bool) {
	if p == SenderAddedOwnerPredecessor {
		var before = slot.NewOwners[:slices.Index(slot.NewOwners, added)]
		for i := len(before) - 1; i >= 0; i-- {
			if slices.Contains(slot.OldOwners, before[i]) {
				return before[i], true
			}
		}
		return "", false
	}

	for _, m := range slot.NewOwners {
		if slices.Contains(slot.OldOwners, m) {
			return m, true
		}
	}
	return "", false
}

// Transfer is one push of a slot's data between two survivors.
type Transfer struct {
	Root Member // Slot being copied
	From Member // Survivor already holding a replica
	To   Member // Survivor newly promoted into the slot's owner set
}

// SlotChange describes how the owner set of one affected slot changes when the
// leaver departs.
type SlotChange struct {
	Root      Member
	OldOwners []Member // Owner set on the old ring; contains the leaver
	NewOwners []Member // Owner set on the new ring
	Added     []Member // NewOwners not present in OldOwners
	Transfers []Transfer

	// Orphaned is true when none of the slot's old owners survive, so an added
	// owner has nobody to pull from.
	Orphaned bool
}

// Decision is the rebalance obligation of one survivor.
type Decision struct {
	Member  Member
	Receive bool
	Send    bool
}

// LeavePlan is the ownership delta for a single member's departure. It is
// computed once per leaver and answers the receive/send predicates for any
// survivor.
type LeavePlan struct {
	Leaver    Member
	NumOwners int
	Policy    SenderPolicy
	Slots     []SlotChange // In OwnedRoots order: the leaver's own slot first

	newRing  *Ring
	receives map[Member]struct{}
	sends    map[Member]struct{}
}

// PlanLeave computes which survivors receive and which send state after leaver
// departs from oldRing, leaving newRing.
func PlanLeave(oldRing, newRing *Ring, numOwners int, leaver Member, opts ...Option) (*LeavePlan, error) {
	var options = applyOptions(opts)

	if oldRing == nil || newRing == nil {
		return nil, ErrNilRing
	}
	if numOwners <= 0 {
		return nil, ErrInvalidReplicationFactor
	}
	if !oldRing.Contains(leaver) {
		return nil, LeaverNotInOldRingError{Leaver: leaver}
	}
	if err := checkDeparture(oldRing, newRing, leaver); err != nil {
		return nil, err
	}

	var roots, err = oldRing.OwnedRoots(leaver, numOwners)
	if err != nil {
		return nil, err
	}

	var plan = &LeavePlan{
		Leaver:    leaver,
		NumOwners: numOwners,
		Policy:    options.senderPolicy,
		Slots:     make([]SlotChange, 0, len(roots)),
		newRing:   newRing,
		receives:  make(map[Member]struct{}),
		sends:     make(map[Member]struct{}),
	}

	for _, root := range roots {
		var slot = SlotChange{Root: root}

		// numOwners was validated above; neither call can fail.
		slot.OldOwners, _ = oldRing.OwnersOf(root, numOwners)
		slot.NewOwners, _ = newRing.OwnersOf(root, numOwners)

		slot.Orphaned = true
		for _, m := range slot.NewOwners {
			if slices.Contains(slot.OldOwners, m) {
				slot.Orphaned = false
				continue
			}
			slot.Added = append(slot.Added, m)
		}

		for _, added := range slot.Added {
			plan.receives[added] = struct{}{}

			var from, ok = options.senderPolicy.sender(&slot, added)
			if !ok {
				continue
			}
			plan.sends[from] = struct{}{}
			slot.Transfers = append(slot.Transfers, Transfer{Root: root, From: from, To: added})
		}

		plan.Slots = append(plan.Slots, slot)
	}

	return plan, nil
}

// checkDeparture verifies newRing is oldRing with only leaver removed.
func checkDeparture(oldRing, newRing *Ring, leaver Member) error {
	if newRing.Contains(leaver) {
		return fmt.Errorf("%w: leaver %q still present", ErrRingMismatch, string(leaver))
	}
	if newRing.Size() != oldRing.Size()-1 {
		return fmt.Errorf("%w: expected %d members, have %d", ErrRingMismatch, oldRing.Size()-1, newRing.Size())
	}

	var i = 0
	for _, m := range oldRing.Members() {
		if m == leaver {
			continue
		}
		if newRing.members[i] != m {
			return fmt.Errorf("%w: expected %q at index %d, have %q", ErrRingMismatch, string(m), i, string(newRing.members[i]))
		}
		i++
	}
	return nil
}

// WillReceive reports whether self is newly promoted into at least one slot's
// owner set and must pull state.
func (p *LeavePlan) WillReceive(self Member) (bool, error) {
	if !p.newRing.Contains(self) {
		return false, UnknownMemberError{Member: self}
	}
	_, ok := p.receives[self]
	return ok, nil
}

// WillSend reports whether self must push state to a newly added owner.
func (p *LeavePlan) WillSend(self Member) (bool, error) {
	if !p.newRing.Contains(self) {
		return false, UnknownMemberError{Member: self}
	}
	_, ok := p.sends[self]
	return ok, nil
}

// Decision returns both obligations of self.
func (p *LeavePlan) Decision(self Member) (Decision, error) {
	if !p.newRing.Contains(self) {
		return Decision{}, UnknownMemberError{Member: self}
	}
	var (
		_, receive = p.receives[self]
		_, send    = p.sends[self]
	)
	return Decision{Member: self, Receive: receive, Send: send}, nil
}

// Decisions returns the obligations of every survivor in new ring order.
func (p *LeavePlan) Decisions() []Decision {
	var res = make([]Decision, 0, p.newRing.Size())
	for _, m := range p.newRing.Members() {
		var (
			_, receive = p.receives[m]
			_, send    = p.sends[m]
		)
		res = append(res, Decision{Member: m, Receive: receive, Send: send})
	}
	return res
}

// ReceiveSet returns the survivors that must pull state, in new ring order.
func (p *LeavePlan) ReceiveSet() []Member { return p.filter(p.receives) }

// SendSet returns the survivors that must push state, in new ring order.
func (p *LeavePlan) SendSet() []Member { return p.filter(p.sends) }

func (p *LeavePlan) filter(set map[Member]struct{}) []Member {
	var res = make([]Member, 0, len(set))
	for _, m := range p.newRing.Members() {
		if _, ok := set[m]; ok {
			res = append(res, m)
		}
	}
	return res
}

// Transfers returns every push of every affected slot.
func (p *LeavePlan) Transfers() []Transfer {
	var res []Transfer
	for _, s := range p.Slots {
		res = append(res, s.Transfers...)
	}
	return res
}

// WillReceiveState reports whether self must pull state after leaver departs.
func WillReceiveState(oldRing, newRing *Ring, numOwners int, leaver, self Member, opts ...Option) (bool, error) {
	var plan, err = PlanLeave(oldRing, newRing, numOwners, leaver, opts...)
	if err != nil {
		return false, err
	}
	return plan.WillReceive(self)
}

// WillSendState reports whether self must push state after leaver departs.
func WillSendState(oldRing, newRing *Ring, numOwners int, leaver, self Member, opts ...Option) (bool, error) {
	var plan, err = PlanLeave(oldRing, newRing, numOwners, leaver, opts...)
	if err != nil {
		return false, err
	}
	return plan.WillSend(self)
}
