package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoinflip(t *testing.T) (*CoinflipService, *SessionRegistry, *CreditLedger) {
	t.Helper()
	ledger, _ := newTestLedger()
	registry := NewSessionRegistry()
	svc := NewCoinflipService(NewHub(), ledger, &fakeRecorder{})
	return svc, registry, ledger
}

func TestCoinflipCreateRoomDebitsStake(t *testing.T) {
	svc, registry, ledger := newTestCoinflip(t)
	creator := registry.Join("c1", "alice", 1000)

	require.NoError(t, svc.CreateRoom(creator, 500, "Heads"))

	assert.Equal(t, int64(500), ledger.Balance(creator))
	assert.Equal(t, "room-001", creator.RoomID)

	room, ok := svc.Room("room-001")
	require.True(t, ok)
	assert.Equal(t, RoomWaiting, room.Phase)
	assert.Equal(t, "Heads", room.CreatorChoice)
	assert.Len(t, room.Members, 1)
}

func TestCoinflipRoomIDsIncrement(t *testing.T) {
	svc, registry, _ := newTestCoinflip(t)

	a := registry.Join("c1", "alice", 1000)
	b := registry.Join("c2", "bob", 1000)

	require.NoError(t, svc.CreateRoom(a, 100, "Heads"))
	require.NoError(t, svc.CreateRoom(b, 100, "Tails"))

	assert.Equal(t, "room-001", a.RoomID)
	assert.Equal(t, "room-002", b.RoomID)
}

func TestCoinflipCreateRejectsBadInput(t *testing.T) {
	svc, registry, ledger := newTestCoinflip(t)
	creator := registry.Join("c1", "alice", 1000)

	assert.Error(t, svc.CreateRoom(creator, 0, "Heads"))
	assert.Error(t, svc.CreateRoom(creator, -50, "Heads"))
	assert.Error(t, svc.CreateRoom(creator, 100, "heads"))
	assert.Error(t, svc.CreateRoom(creator, 2000, "Heads"))

	assert.Equal(t, int64(1000), ledger.Balance(creator))
	assert.Empty(t, creator.RoomID)
}

func TestCoinflipCreateWhileInRoomRejected(t *testing.T) {
	svc, registry, _ := newTestCoinflip(t)
	creator := registry.Join("c1", "alice", 1000)

	require.NoError(t, svc.CreateRoom(creator, 100, "Heads"))
	assert.Error(t, svc.CreateRoom(creator, 100, "Heads"))
	assert.Equal(t, "room-001", creator.RoomID)
}

// Two players, 500 each side, coin lands Tails: the joiner holds the opposite
// choice and collects both stakes.
func TestCoinflipFullMatchZeroSum(t *testing.T) {
	svc, registry, ledger := newTestCoinflip(t)
	creator := registry.Join("c1", "alice", 1000)
	joiner := registry.Join("c2", "bob", 1000)
	svc.flip = func() string { return "Tails" }

	require.NoError(t, svc.CreateRoom(creator, 500, "Heads"))
	require.NoError(t, svc.JoinRoom(joiner, "room-001"))

	// joining alone moves no money
	assert.Equal(t, int64(1000), ledger.Balance(joiner))

	require.NoError(t, svc.Confirm(joiner, "room-001"))

	assert.Equal(t, int64(500), ledger.Balance(creator))
	assert.Equal(t, int64(1500), ledger.Balance(joiner))

	room, ok := svc.Room("room-001")
	require.True(t, ok)
	assert.Equal(t, RoomFinished, room.Phase)
	assert.Equal(t, "Tails", room.CoinResult)
}

func TestCoinflipCreatorWins(t *testing.T) {
	svc, registry, ledger := newTestCoinflip(t)
	creator := registry.Join("c1", "alice", 1000)
	joiner := registry.Join("c2", "bob", 1000)
	svc.flip = func() string { return "Heads" }

	require.NoError(t, svc.CreateRoom(creator, 300, "Heads"))
	require.NoError(t, svc.JoinRoom(joiner, "room-001"))
	require.NoError(t, svc.Confirm(joiner, "room-001"))

	assert.Equal(t, int64(1300), ledger.Balance(creator))
	assert.Equal(t, int64(700), ledger.Balance(joiner))
}

func TestCoinflipOnlyJoinerConfirms(t *testing.T) {
	svc, registry, ledger := newTestCoinflip(t)
	creator := registry.Join("c1", "alice", 1000)
	joiner := registry.Join("c2", "bob", 1000)

	require.NoError(t, svc.CreateRoom(creator, 100, "Heads"))
	require.NoError(t, svc.JoinRoom(joiner, "room-001"))

	err := svc.Confirm(creator, "room-001")
	require.Error(t, err)

	room, _ := svc.Room("room-001")
	assert.Equal(t, RoomWaiting, room.Phase)
	assert.False(t, room.Confirmed)
	assert.Equal(t, int64(1000), ledger.Balance(joiner))
}

func TestCoinflipConfirmInsufficientCreditsLeavesRoomUntouched(t *testing.T) {
	svc, registry, ledger := newTestCoinflip(t)
	creator := registry.Join("c1", "alice", 1000)
	joiner := registry.Join("c2", "bob", 50)

	require.NoError(t, svc.CreateRoom(creator, 100, "Heads"))
	require.NoError(t, svc.JoinRoom(joiner, "room-001"))

	err := svc.Confirm(joiner, "room-001")
	require.Error(t, err)

	room, ok := svc.Room("room-001")
	require.True(t, ok)
	assert.Equal(t, RoomWaiting, room.Phase)
	assert.False(t, room.Confirmed)
	assert.Equal(t, int64(50), ledger.Balance(joiner))
}

func TestCoinflipJoinRejections(t *testing.T) {
	svc, registry, _ := newTestCoinflip(t)
	creator := registry.Join("c1", "alice", 1000)
	joiner := registry.Join("c2", "bob", 1000)
	third := registry.Join("c3", "carol", 1000)
	svc.flip = func() string { return "Tails" }

	assert.Error(t, svc.JoinRoom(joiner, "room-404"))

	require.NoError(t, svc.CreateRoom(creator, 100, "Heads"))
	require.NoError(t, svc.JoinRoom(joiner, "room-001"))

	assert.Error(t, svc.JoinRoom(third, "room-001"))

	require.NoError(t, svc.Confirm(joiner, "room-001"))
	assert.Error(t, svc.JoinRoom(third, "room-001"))
}

func TestCoinflipCreatorLeaveRefundsOnceAndDestroysRoom(t *testing.T) {
	svc, registry, ledger := newTestCoinflip(t)
	creator := registry.Join("c1", "alice", 1000)
	joiner := registry.Join("c2", "bob", 1000)

	require.NoError(t, svc.CreateRoom(creator, 400, "Heads"))
	require.NoError(t, svc.JoinRoom(joiner, "room-001"))

	svc.Leave(creator)

	assert.Equal(t, int64(1000), ledger.Balance(creator))
	assert.Empty(t, creator.RoomID)
	assert.Empty(t, joiner.RoomID)
	_, ok := svc.Room("room-001")
	assert.False(t, ok)

	// a second departure must not refund again
	svc.HandleDisconnect(creator)
	assert.Equal(t, int64(1000), ledger.Balance(creator))
}

func TestCoinflipCreatorLeaveAfterFinishNoRefund(t *testing.T) {
	svc, registry, ledger := newTestCoinflip(t)
	creator := registry.Join("c1", "alice", 1000)
	joiner := registry.Join("c2", "bob", 1000)
	svc.flip = func() string { return "Tails" }

	require.NoError(t, svc.CreateRoom(creator, 200, "Heads"))
	require.NoError(t, svc.JoinRoom(joiner, "room-001"))
	require.NoError(t, svc.Confirm(joiner, "room-001"))

	svc.Leave(creator)

	// the match was settled, nothing comes back
	assert.Equal(t, int64(800), ledger.Balance(creator))
	_, ok := svc.Room("room-001")
	assert.False(t, ok)
}

func TestCoinflipJoinerLeaveResetsRoomToWaiting(t *testing.T) {
	svc, registry, ledger := newTestCoinflip(t)
	creator := registry.Join("c1", "alice", 1000)
	joiner := registry.Join("c2", "bob", 1000)

	require.NoError(t, svc.CreateRoom(creator, 100, "Heads"))
	require.NoError(t, svc.JoinRoom(joiner, "room-001"))

	svc.HandleDisconnect(joiner)

	room, ok := svc.Room("room-001")
	require.True(t, ok)
	assert.Equal(t, RoomWaiting, room.Phase)
	assert.False(t, room.Confirmed)
	assert.Len(t, room.Members, 1)
	assert.Empty(t, joiner.RoomID)
	assert.Equal(t, "room-001", creator.RoomID)
	assert.Equal(t, int64(1000), ledger.Balance(joiner))

	// the reopened room is joinable again
	third := registry.Join("c3", "carol", 1000)
	require.NoError(t, svc.JoinRoom(third, "room-001"))
}

func TestCoinflipJoinerLeaveAfterFinishKeepsResult(t *testing.T) {
	svc, registry, _ := newTestCoinflip(t)
	creator := registry.Join("c1", "alice", 1000)
	joiner := registry.Join("c2", "bob", 1000)
	svc.flip = func() string { return "Heads" }

	require.NoError(t, svc.CreateRoom(creator, 100, "Heads"))
	require.NoError(t, svc.JoinRoom(joiner, "room-001"))
	require.NoError(t, svc.Confirm(joiner, "room-001"))

	svc.Leave(joiner)

	room, ok := svc.Room("room-001")
	require.True(t, ok)
	assert.Equal(t, RoomFinished, room.Phase)
	assert.Equal(t, "Heads", room.CoinResult)
}

func TestCoinflipDepartureWithoutRoomIsNoop(t *testing.T) {
	svc, registry, ledger := newTestCoinflip(t)
	sess := registry.Join("c1", "alice", 1000)

	svc.Leave(sess)
	svc.HandleDisconnect(sess)

	assert.Equal(t, int64(1000), ledger.Balance(sess))
	assert.Empty(t, sess.RoomID)
}
