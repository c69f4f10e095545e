package cachering

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanLeave(t *testing.T) {
	var (
		newRings = func(t *testing.T, leaver Member) (*Ring, *Ring) {
			var oldRing = newScenarioRing(t)
			var newRing, err = oldRing.Without(leaver)
			require.NoError(t, err)
			return oldRing, newRing
		}
	)

	t.Run("should compute slot deltas for a leaver with three owners", func(t *testing.T) {
		// Arrange
		var oldRing, newRing = newRings(t, "a2")

		// Act
		var plan, err = PlanLeave(oldRing, newRing, 3, "a2")

		// Assert
		require.NoError(t, err)
		require.Len(t, plan.Slots, 3)

		assert.Equal(t, Member("a2"), plan.Slots[0].Root)
		assert.Equal(t, []Member{"a2", "a3", "a4"}, plan.Slots[0].OldOwners)
		assert.Equal(t, []Member{"a3", "a4", "a0"}, plan.Slots[0].NewOwners)
		assert.Equal(t, []Member{"a0"}, plan.Slots[0].Added)

		assert.Equal(t, Member("a1"), plan.Slots[1].Root)
		assert.Equal(t, []Member{"a1", "a2", "a3"}, plan.Slots[1].OldOwners)
		assert.Equal(t, []Member{"a1", "a3", "a4"}, plan.Slots[1].NewOwners)
		assert.Equal(t, []Member{"a4"}, plan.Slots[1].Added)

		assert.Equal(t, Member("a0"), plan.Slots[2].Root)
		assert.Equal(t, []Member{"a0", "a1", "a2"}, plan.Slots[2].OldOwners)
		assert.Equal(t, []Member{"a0", "a1", "a3"}, plan.Slots[2].NewOwners)
		assert.Equal(t, []Member{"a3"}, plan.Slots[2].Added)

		assert.Equal(t, []Member{"a0", "a3", "a4"}, plan.ReceiveSet())
		for _, s := range plan.Slots {
			assert.False(t, s.Orphaned)
		}
	})

	t.Run("should replay the recorded receive decisions", func(t *testing.T) {
		// Arrange
		var oldRing, newRing = newRings(t, "a2")

		// Act & Assert
		for self, expected := range map[Member]bool{
			"a0": true,  // second backup for a3's slot
			"a1": false, // not affected
			"a3": true,  // receives the a0 slot
			"a4": true,  // receives the a1 slot
		} {
			var got, err = WillReceiveState(oldRing, newRing, 3, "a2", self)
			require.NoError(t, err)
			assert.Equal(t, expected, got, "receive decision for %s", self)
		}
	})

	t.Run("should replay the recorded send decisions with primary owner senders", func(t *testing.T) {
		// Arrange
		var oldRing, newRing = newRings(t, "a2")

		// Act & Assert
		for self, expected := range map[Member]bool{
			"a0": true,  // sends its own slot to a3
			"a1": true,  // sends its own slot to a4
			"a3": true,  // sends the leaver's slot to a0
			"a4": false, // none of its slots lost a replica it leads
		} {
			var got, err = WillSendState(oldRing, newRing, 3, "a2", self)
			require.NoError(t, err)
			assert.Equal(t, expected, got, "send decision for %s", self)
		}

		var plan, err = PlanLeave(oldRing, newRing, 3, "a2")
		require.NoError(t, err)
		assert.Equal(t, SenderPrimaryOwner, plan.Policy)
		assert.Equal(t, []Transfer{
			{Root: "a2", From: "a3", To: "a0"},
			{Root: "a1", From: "a1", To: "a4"},
			{Root: "a0", From: "a0", To: "a3"},
		}, plan.Transfers())
	})

	t.Run("should pick the added owner's predecessor when configured", func(t *testing.T) {
		// Arrange
		var oldRing, newRing = newRings(t, "a2")

		// Act
		var plan, err = PlanLeave(oldRing, newRing, 3, "a2", WithSenderPolicy(SenderAddedOwnerPredecessor))

		// Assert
		require.NoError(t, err)
		assert.Equal(t, []Member{"a1", "a3", "a4"}, plan.SendSet())
		assert.Equal(t, []Member{"a0", "a3", "a4"}, plan.ReceiveSet(), "receivers do not depend on the policy")
		assert.Equal(t, []Transfer{
			{Root: "a2", From: "a4", To: "a0"},
			{Root: "a1", From: "a3", To: "a4"},
			{Root: "a0", From: "a1", To: "a3"},
		}, plan.Transfers())

		var sendA0, _ = WillSendState(oldRing, newRing, 3, "a2", "a0", WithSenderPolicy(SenderAddedOwnerPredecessor))
		var sendA4, _ = WillSendState(oldRing, newRing, 3, "a2", "a4", WithSenderPolicy(SenderAddedOwnerPredecessor))
		assert.False(t, sendA0)
		assert.True(t, sendA4)
	})

	t.Run("should report decisions for every survivor in ring order", func(t *testing.T) {
		// Arrange
		var oldRing, newRing = newRings(t, "a2")
		var plan, err = PlanLeave(oldRing, newRing, 3, "a2")
		require.NoError(t, err)

		// Act
		var decisions = plan.Decisions()
		var a1, decErr = plan.Decision("a1")

		// Assert
		require.NoError(t, decErr)
		assert.Equal(t, []Decision{
			{Member: "a0", Receive: true, Send: true},
			{Member: "a1", Receive: false, Send: true},
			{Member: "a3", Receive: true, Send: true},
			{Member: "a4", Receive: true, Send: false},
		}, decisions)
		assert.Equal(t, Decision{Member: "a1", Send: true}, a1)
	})

	t.Run("should give the same answers for any member naming", func(t *testing.T) {
		// Arrange
		var oldRing, err = Build([]Member{"node-0", "node-1", "node-2", "node-3", "node-4"})
		require.NoError(t, err)
		var a = oldRing.Members()
		var newRing, _ = oldRing.Without(a[2])

		// Act
		var plan, planErr = PlanLeave(oldRing, newRing, 3, a[2])

		// Assert
		require.NoError(t, planErr)
		assert.Equal(t, []Member{a[0], a[3], a[4]}, plan.ReceiveSet())
		assert.Equal(t, []Member{a[0], a[1], a[3]}, plan.SendSet())
	})

	t.Run("should not move state when every survivor already owns everything", func(t *testing.T) {
		// Arrange
		var oldRing, err = Build([]Member{"x", "y", "z"})
		require.NoError(t, err)
		var newRing, _ = oldRing.Without("y")

		// Act
		var plan, planErr = PlanLeave(oldRing, newRing, 3, "y")

		// Assert
		require.NoError(t, planErr)
		assert.Len(t, plan.Slots, 3)
		assert.Empty(t, plan.ReceiveSet())
		assert.Empty(t, plan.SendSet())
		for _, s := range plan.Slots {
			assert.Empty(t, s.Added)
			assert.Len(t, s.NewOwners, 2)
		}
	})

	t.Run("should leave a sole survivor with nothing to receive", func(t *testing.T) {
		// Arrange
		var oldRing, err = Build([]Member{"x", "y"})
		require.NoError(t, err)
		var newRing, _ = oldRing.Without("x")

		// Act
		var receive, recvErr = WillReceiveState(oldRing, newRing, 2, "x", "y")
		var send, sendErr = WillSendState(oldRing, newRing, 2, "x", "y")

		// Assert
		require.NoError(t, recvErr)
		require.NoError(t, sendErr)
		assert.False(t, receive)
		assert.False(t, send)
	})

	t.Run("should mark slots orphaned with a single owner", func(t *testing.T) {
		// Arrange
		var oldRing, err = Build([]Member{"x", "y", "z"}, WithHashFunc(fixedHash(map[string]uint64{
			"x": 100,
			"y": 200,
			"z": 300,
		})))
		require.NoError(t, err)
		var newRing, _ = oldRing.Without("y")

		// Act
		var plan, planErr = PlanLeave(oldRing, newRing, 1, "y")

		// Assert
		require.NoError(t, planErr)
		require.Len(t, plan.Slots, 1)
		assert.True(t, plan.Slots[0].Orphaned)
		assert.Equal(t, []Member{"z"}, plan.Slots[0].Added)
		assert.Empty(t, plan.Slots[0].Transfers)
		assert.Equal(t, []Member{"z"}, plan.ReceiveSet())
		assert.Empty(t, plan.SendSet())
	})

	t.Run("should reject invalid arguments", func(t *testing.T) {
		// Arrange
		var oldRing, newRing = newRings(t, "a2")
		var other, _ = oldRing.Without("a1")

		// Act
		var _, factorErr = PlanLeave(oldRing, newRing, 0, "a2")
		var _, leaverErr = PlanLeave(oldRing, newRing, 3, "ghost")
		var _, selfErr = WillReceiveState(oldRing, newRing, 3, "a2", "a2")
		var _, sendSelfErr = WillSendState(oldRing, newRing, 3, "a2", "ghost")
		var _, mismatchErr = PlanLeave(oldRing, other, 3, "a2")
		var _, sameErr = PlanLeave(oldRing, oldRing, 3, "a2")
		var _, nilErr = PlanLeave(nil, newRing, 3, "a2")

		// Assert
		assert.ErrorIs(t, factorErr, ErrInvalidReplicationFactor)
		assert.ErrorIs(t, leaverErr, ErrLeaverNotInOldRing)
		var typed LeaverNotInOldRingError
		require.ErrorAs(t, leaverErr, &typed)
		assert.Equal(t, Member("ghost"), typed.Leaver)

		assert.ErrorIs(t, selfErr, ErrUnknownMember)
		assert.ErrorIs(t, sendSelfErr, ErrUnknownMember)
		assert.ErrorIs(t, mismatchErr, ErrRingMismatch)
		assert.ErrorIs(t, sameErr, ErrRingMismatch)
		assert.ErrorIs(t, nilErr, ErrNilRing)
	})
}

func TestPlanLeave_Properties(t *testing.T) {
	var r = rand.New(rand.NewSource(1))

	for size := 2; size <= 12; size++ {
		for numOwners := 1; numOwners <= 5; numOwners++ {
			for _, policy := range []SenderPolicy{SenderPrimaryOwner, SenderAddedOwnerPredecessor} {
				var (
					oldRing, err = Build(randomMembers(r, size))
					leaver       = oldRing.Members()[r.Intn(size)]
				)
				require.NoError(t, err)
				newRing, err := oldRing.Without(leaver)
				require.NoError(t, err)

				plan, err := PlanLeave(oldRing, newRing, numOwners, leaver, WithSenderPolicy(policy))
				require.NoError(t, err)

				var receivers = plan.ReceiveSet()
				assert.NotContains(t, receivers, leaver)
				for _, m := range receivers {
					assert.True(t, newRing.Contains(m))
				}
				assert.NotContains(t, plan.SendSet(), leaver)

				var affected = make(map[Member]bool)
				for _, s := range plan.Slots {
					affected[s.Root] = true

					assert.Contains(t, s.OldOwners, s.Root)
					assert.Contains(t, s.OldOwners, leaver)
					assert.NotContains(t, s.NewOwners, leaver)
					assert.Len(t, s.NewOwners, min(numOwners, size-1))
					assert.LessOrEqual(t, len(s.Added), 1, "a single departure adds at most one owner per slot")

					if !s.Orphaned {
						assert.Len(t, s.Transfers, len(s.Added))
					}
					for _, tr := range s.Transfers {
						assert.Contains(t, s.OldOwners, tr.From, "sender must already hold a replica")
						assert.True(t, newRing.Contains(tr.From))
						assert.Contains(t, s.Added, tr.To)
					}
				}

				// Slots that never included the leaver keep their owners.
				for _, root := range oldRing.Members() {
					if affected[root] {
						continue
					}
					var before, _ = oldRing.OwnersOf(root, numOwners)
					var after, _ = newRing.OwnersOf(root, numOwners)
					assert.Equal(t, before, after, "slot %s changed without containing the leaver", root)
					assert.False(t, slices.Contains(before, leaver))
				}
			}
		}
	}
}
