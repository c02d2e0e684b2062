package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testNow      = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	testTerminal = MustCoordinate(13.1989, 77.7068)
)

func member(id string, seats, luggage int) Membership {
	return Membership{
		PassengerID:  id,
		Pickup:       MustCoordinate(12.97, 77.59),
		Dropoff:      testTerminal,
		TerminalCode: "T1",
		SeatsNeeded:  seats,
		LuggageCount: luggage,
		Fare:         25,
	}
}

func newTestPool(t *testing.T, first Membership) *RidePool {
	t.Helper()
	p, err := NewPool("pool-1", first, 4, 4, testNow)
	require.NoError(t, err)
	return p
}

func TestNewPool_SeedsFirstPassenger(t *testing.T) {
	p := newTestPool(t, member("p1", 1, 1))

	assert.Equal(t, StatusOpen, p.Status())
	assert.Equal(t, 3, p.SeatsRemaining())
	assert.Equal(t, 3, p.LuggageRemaining())
	assert.Equal(t, "T1", p.TerminalCode())
	assert.Equal(t, MustCoordinate(12.97, 77.59), p.StartLocation())
	assert.Equal(t, testNow.Add(24*time.Hour), p.ExpiresAt())
	require.NoError(t, p.CheckInvariants())
}

func TestNewPool_RejectsOversizedFirstPassenger(t *testing.T) {
	_, err := NewPool("pool-1", member("p1", 5, 0), 4, 4, testNow)
	assert.ErrorIs(t, err, ErrInsufficientCapacity)
}

func TestNewPool_FirstPassengerTakingEverySeatLocks(t *testing.T) {
	p := newTestPool(t, member("p1", 4, 1))

	assert.Equal(t, StatusLocked, p.Status())
	assert.Zero(t, p.SeatsRemaining())
	require.NoError(t, p.CheckInvariants())
	assert.ErrorIs(t, p.Join(member("p2", 1, 0)), ErrInvalidTransition)
	require.NoError(t, p.Accept("d1", testNow))
}

func TestJoin_LocksWhenFull(t *testing.T) {
	p := newTestPool(t, member("p1", 2, 1))

	require.NoError(t, p.Join(member("p2", 1, 1)))
	assert.Equal(t, StatusOpen, p.Status())
	assert.Equal(t, 1, p.SeatsRemaining())

	require.NoError(t, p.Join(member("p3", 1, 0)))
	assert.Equal(t, StatusLocked, p.Status())
	assert.Equal(t, 0, p.SeatsRemaining())
	require.NoError(t, p.CheckInvariants())
}

func TestJoin_RejectionsLeavePoolUntouched(t *testing.T) {
	p := newTestPool(t, member("p1", 1, 3))
	before := p.Snapshot()

	assert.ErrorIs(t, p.Join(member("p2", 1, 2)), ErrInsufficientCapacity)
	assert.ErrorIs(t, p.Join(member("p1", 1, 0)), ErrAlreadyMember)
	assert.ErrorIs(t, p.Join(member("p3", 0, 0)), ErrInvalidRequest)

	assert.Equal(t, before, p.Snapshot())
}

func TestJoin_OnlyOpenPools(t *testing.T) {
	p := newTestPool(t, member("p1", 1, 0))
	require.NoError(t, p.Accept("d1", testNow))

	assert.ErrorIs(t, p.Join(member("p2", 1, 0)), ErrInvalidTransition)
}

func TestAccept_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(p *RidePool)
		wantErr error
	}{
		{name: "open", prepare: func(p *RidePool) {}},
		{name: "locked", prepare: func(p *RidePool) { require.NoError(t, p.Join(member("p2", 3, 0))) }},
		{name: "in-progress", prepare: func(p *RidePool) { require.NoError(t, p.Accept("d0", testNow)) }, wantErr: ErrInvalidTransition},
		{name: "completed", prepare: func(p *RidePool) {
			require.NoError(t, p.Accept("d0", testNow))
			require.NoError(t, p.Complete("d0"))
		}, wantErr: ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPool(t, member("p1", 1, 0))
			tt.prepare(p)
			before := p.Snapshot()

			err := p.Accept("d1", testNow)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, before, p.Snapshot())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StatusInProgress, p.Status())
			require.NotNil(t, p.DriverID())
			assert.Equal(t, "d1", *p.DriverID())
		})
	}
}

func TestRemovePassenger_ReopensLockedPool(t *testing.T) {
	p := newTestPool(t, member("p1", 2, 1))
	require.NoError(t, p.Join(member("p2", 2, 1)))
	require.Equal(t, StatusLocked, p.Status())

	removed, err := p.RemovePassenger("p2")
	require.NoError(t, err)

	assert.Equal(t, "p2", removed.PassengerID)
	assert.Equal(t, StatusOpen, p.Status())
	assert.Equal(t, 2, p.SeatsRemaining())
	assert.Equal(t, 3, p.LuggageRemaining())
	require.NoError(t, p.CheckInvariants())
}

func TestRemovePassenger_SoleMemberRestoresFullCapacity(t *testing.T) {
	p := newTestPool(t, member("p1", 2, 2))
	require.NoError(t, p.Accept("d1", testNow))

	_, err := p.RemovePassenger("p1")
	require.NoError(t, err)

	assert.Equal(t, StatusOpen, p.Status())
	assert.Equal(t, p.TotalSeats(), p.SeatsRemaining())
	assert.Equal(t, p.LuggageCapacity(), p.LuggageRemaining())
	assert.Equal(t, 0, p.PassengerCount())
}

func TestAccept_ReopenedPoolKeepsItsDriver(t *testing.T) {
	p := newTestPool(t, member("p1", 1, 0))
	require.NoError(t, p.Accept("d1", testNow))
	_, err := p.RemovePassenger("p1")
	require.NoError(t, err)
	require.Equal(t, StatusOpen, p.Status())
	before := p.Snapshot()

	assert.ErrorIs(t, p.Accept("d2", testNow), ErrInvalidTransition)
	assert.Equal(t, before, p.Snapshot())

	require.NoError(t, p.Accept("d1", testNow))
	assert.Equal(t, StatusInProgress, p.Status())
	assert.Equal(t, "d1", *p.DriverID())
}

func TestSnapshotFor_ContactsOnlyForMembersAndDriver(t *testing.T) {
	first := member("p1", 1, 0)
	first.PassengerName = "Asha"
	first.PassengerPhone = "+91-700"
	p := newTestPool(t, first)
	require.NoError(t, p.Accept("d1", testNow))

	assert.Empty(t, p.Snapshot().Members[0].Phone)
	assert.Empty(t, p.SnapshotFor("stranger").Members[0].Phone)
	assert.Empty(t, p.SnapshotFor("").Members[0].Name)
	assert.Equal(t, "+91-700", p.SnapshotFor("p1").Members[0].Phone)
	assert.Equal(t, "Asha", p.SnapshotFor("d1").Members[0].Name)
}

func TestRemovePassenger_Declines(t *testing.T) {
	p := newTestPool(t, member("p1", 1, 0))

	_, err := p.RemovePassenger("stranger")
	assert.ErrorIs(t, err, ErrNotMember)

	require.NoError(t, p.Accept("d1", testNow))
	require.NoError(t, p.Complete("d1"))
	before := p.Snapshot()

	_, err = p.RemovePassenger("p1")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, before, p.Snapshot())
}

func TestRemovePassenger_DoesNotAliasMembers(t *testing.T) {
	p := newTestPool(t, member("p1", 1, 0))
	require.NoError(t, p.Join(member("p2", 1, 0)))
	require.NoError(t, p.Join(member("p3", 1, 0)))
	members := p.Members()

	_, err := p.RemovePassenger("p2")
	require.NoError(t, err)

	assert.Equal(t, "p2", members[1].PassengerID)
	assert.Equal(t, []string{"p1", "p3"}, []string{p.Members()[0].PassengerID, p.Members()[1].PassengerID})
}

func TestComplete_OnlyAssignedDriver(t *testing.T) {
	p := newTestPool(t, member("p1", 1, 0))
	assert.ErrorIs(t, p.Complete("d1"), ErrInvalidTransition)

	require.NoError(t, p.Accept("d1", testNow))
	assert.ErrorIs(t, p.Complete("d2"), ErrNotAssignedDriver)
	require.NoError(t, p.Complete("d1"))
	assert.Equal(t, StatusCompleted, p.Status())
}

func TestHasRequestKey(t *testing.T) {
	m := member("p1", 1, 0)
	m.RequestKey = "k1"
	p := newTestPool(t, m)

	assert.True(t, p.HasRequestKey("k1"))
	assert.False(t, p.HasRequestKey("k2"))
	assert.False(t, p.HasRequestKey(""))
}

func TestCheckInvariants_DetectsDrift(t *testing.T) {
	p := ReconstructPool("x", []Membership{member("p1", 1, 1)}, StatusOpen, nil,
		MustCoordinate(12.97, 77.59), "T1", 4, 4, 4, 3, nil, testNow, testNow.Add(PoolTTL))

	assert.Error(t, p.CheckInvariants())
}

func TestIsExpired(t *testing.T) {
	p := newTestPool(t, member("p1", 1, 0))

	assert.False(t, p.IsExpired(testNow.Add(23*time.Hour)))
	assert.True(t, p.IsExpired(testNow.Add(24*time.Hour)))
}

func TestClone_IsIndependent(t *testing.T) {
	p := newTestPool(t, member("p1", 1, 0))
	c := p.Clone()

	require.NoError(t, c.Join(member("p2", 1, 0)))

	assert.Equal(t, 1, p.PassengerCount())
	assert.Equal(t, 3, p.SeatsRemaining())
}
