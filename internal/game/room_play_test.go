package game

import (
	"testing"
	"time"

	"github.com/JustAnotherDevv/EthGlobalGame-sub000/internal/mapgen"
	"github.com/JustAnotherDevv/EthGlobalGame-sub000/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func moveMsg(t *testing.T, x, z float64) *protocol.Message {
	t.Helper()
	return mustMsg(t, protocol.TypePositionUpdate, &protocol.PositionUpdatePayload{
		Position: protocol.Vec3{X: x, Z: z},
	})
}

// firstResourceAwayFromChest picks a generated placement far enough from
// the chest that digging there can never win.
func firstResourceAwayFromChest(t *testing.T, rules Rules) mapgen.Resource {
	t.Helper()
	chestX, chestZ := mapgen.ChestPosition(rules.Seed)
	for _, res := range mapgen.Resources(rules.Seed, mapgen.DefaultResourceCount) {
		dx := res.X - chestX
		dz := res.Z - chestZ
		if dx*dx+dz*dz > (rules.ChestFindRadius+1)*(rules.ChestFindRadius+1) {
			return res
		}
	}
	t.Fatal("no resource clear of the chest")
	return mapgen.Resource{}
}

func TestFirstPositionUpdatePlacesPlayer(t *testing.T) {
	sink := newFrameSink()
	room := newTestRoom(t, testRules(), sink, newFakeSettler())
	a, b := joinPair(t, room)
	startGameWith(t, room, sink, a, b)

	room.Deliver(a.ID, moveMsg(t, 50, -30))

	fr := sink.next(t, protocol.TypePlayerMoved)
	var pm protocol.PlayerMovedPayload
	decodeFrame(t, fr, &pm)
	assert.Equal(t, "a", pm.PlayerID)
	assert.Equal(t, 50.0, pm.Position.X)
	assert.Equal(t, -30.0, pm.Position.Z)
}

func TestSpeedViolationKeepsOldPosition(t *testing.T) {
	sink := newFrameSink()
	room := newTestRoom(t, testRules(), sink, newFakeSettler())
	a, b := joinPair(t, room)
	startGameWith(t, room, sink, a, b)

	room.Deliver(a.ID, moveMsg(t, 0, 0))
	sink.next(t, protocol.TypePlayerMoved)

	time.Sleep(10 * time.Millisecond)
	room.Deliver(a.ID, moveMsg(t, 1000, 1000))

	fr := sink.next(t, protocol.TypeError)
	assert.Equal(t, []string{"a"}, fr.targets)
	var ep protocol.ErrorPayload
	decodeFrame(t, fr, &ep)
	assert.Equal(t, protocol.ErrTextTooFast, ep.Message)

	// The rejected update must not have moved the player: a small step
	// from the old position still validates.
	time.Sleep(20 * time.Millisecond)
	room.Deliver(a.ID, moveMsg(t, 0.3, 0.3))

	fr = sink.next(t, protocol.TypePlayerMoved)
	var pm protocol.PlayerMovedPayload
	decodeFrame(t, fr, &pm)
	assert.Equal(t, 0.3, pm.Position.X)

	assert.Len(t, sink.framesOfType(protocol.TypePlayerMoved), 2)
}

func TestUpdatesFasterThanMinIntervalAreDropped(t *testing.T) {
	rules := testRules()
	rules.PositionMinInterval = 500 * time.Millisecond

	sink := newFrameSink()
	room := newTestRoom(t, rules, sink, newFakeSettler())
	a, b := joinPair(t, room)
	startGameWith(t, room, sink, a, b)

	room.Deliver(a.ID, moveMsg(t, 1, 1))
	room.Deliver(a.ID, moveMsg(t, 2, 2))
	barrier(t, room, sink, a.ID)

	assert.Len(t, sink.framesOfType(protocol.TypePlayerMoved), 1)
	assert.Empty(t, sink.framesOfType(protocol.TypeError), "rate limited updates drop without an error")
}

func TestHarvestLifecycle(t *testing.T) {
	rules := testRules()
	sink := newFrameSink()
	room := newTestRoom(t, rules, sink, newFakeSettler())
	a, b := joinPair(t, room)
	startGameWith(t, room, sink, a, b)

	res := mapgen.Resources(rules.Seed, mapgen.DefaultResourceCount)[0]
	room.Deliver(a.ID, moveMsg(t, res.X, res.Z))
	sink.next(t, protocol.TypePlayerMoved)

	room.Deliver(a.ID, mustMsg(t, protocol.TypeStartHarvest, &protocol.StartHarvestPayload{ResourceID: res.ID}))

	started := sink.next(t, protocol.TypeHarvestStarted)
	var hs protocol.HarvestStartedPayload
	decodeFrame(t, started, &hs)
	assert.Equal(t, "a", hs.PlayerID)
	assert.Equal(t, res.ID, hs.ResourceID)

	complete := sink.next(t, protocol.TypeHarvestComplete)
	var hc protocol.HarvestCompletePayload
	decodeFrame(t, complete, &hc)
	assert.Equal(t, "a", hc.PlayerID)
	assert.Equal(t, res.ID, hc.ResourceID)
	assert.Equal(t, string(res.Type), hc.ResourceType)
	assert.Equal(t, 1, hc.Inventory.Wood+hc.Inventory.Stone+hc.Inventory.Berry)

	// The node is spent now.
	room.Deliver(a.ID, mustMsg(t, protocol.TypeStartHarvest, &protocol.StartHarvestPayload{ResourceID: res.ID}))
	fr := sink.next(t, protocol.TypeError)
	var ep protocol.ErrorPayload
	decodeFrame(t, fr, &ep)
	assert.Equal(t, protocol.ErrTextInvalidResource, ep.Message)
}

func TestHarvestRejectedOutOfRange(t *testing.T) {
	rules := testRules()
	sink := newFrameSink()
	room := newTestRoom(t, rules, sink, newFakeSettler())
	a, b := joinPair(t, room)
	startGameWith(t, room, sink, a, b)

	res := mapgen.Resources(rules.Seed, mapgen.DefaultResourceCount)[0]
	room.Deliver(a.ID, moveMsg(t, res.X+10, res.Z+10))
	sink.next(t, protocol.TypePlayerMoved)

	room.Deliver(a.ID, mustMsg(t, protocol.TypeStartHarvest, &protocol.StartHarvestPayload{ResourceID: res.ID}))

	fr := sink.next(t, protocol.TypeError)
	var ep protocol.ErrorPayload
	decodeFrame(t, fr, &ep)
	assert.Equal(t, protocol.ErrTextTooFar, ep.Message)
}

func TestUnknownResourceRejected(t *testing.T) {
	sink := newFrameSink()
	room := newTestRoom(t, testRules(), sink, newFakeSettler())
	a, b := joinPair(t, room)
	startGameWith(t, room, sink, a, b)

	room.Deliver(a.ID, mustMsg(t, protocol.TypeStartHarvest, &protocol.StartHarvestPayload{ResourceID: "res_9999"}))

	fr := sink.next(t, protocol.TypeError)
	var ep protocol.ErrorPayload
	decodeFrame(t, fr, &ep)
	assert.Equal(t, protocol.ErrTextInvalidResource, ep.Message)
}

func TestActionsBlockMovementUntilCancelled(t *testing.T) {
	rules := testRules()
	rules.HarvestDuration = 100 * time.Millisecond

	sink := newFrameSink()
	room := newTestRoom(t, rules, sink, newFakeSettler())
	a, b := joinPair(t, room)
	startGameWith(t, room, sink, a, b)

	res := mapgen.Resources(rules.Seed, mapgen.DefaultResourceCount)[0]
	room.Deliver(a.ID, moveMsg(t, res.X, res.Z))
	sink.next(t, protocol.TypePlayerMoved)

	room.Deliver(a.ID, mustMsg(t, protocol.TypeStartHarvest, &protocol.StartHarvestPayload{ResourceID: res.ID}))
	sink.next(t, protocol.TypeHarvestStarted)

	room.Deliver(a.ID, moveMsg(t, res.X+0.5, res.Z))
	fr := sink.next(t, protocol.TypeError)
	var ep protocol.ErrorPayload
	decodeFrame(t, fr, &ep)
	assert.Equal(t, protocol.ErrTextBusy, ep.Message)

	room.Deliver(a.ID, mustMsg(t, protocol.TypeCancelHarvest, nil))
	time.Sleep(10 * time.Millisecond)
	room.Deliver(a.ID, moveMsg(t, res.X+0.3, res.Z))
	sink.next(t, protocol.TypePlayerMoved)

	// The cancelled harvest must never complete.
	time.Sleep(150 * time.Millisecond)
	barrier(t, room, sink, a.ID)
	assert.Empty(t, sink.framesOfType(protocol.TypeHarvestComplete))
}

func TestContestedHarvestGoesToFirstFinisher(t *testing.T) {
	rules := testRules()
	rules.HarvestDuration = 40 * time.Millisecond

	sink := newFrameSink()
	room := newTestRoom(t, rules, sink, newFakeSettler())
	a, b := joinPair(t, room)
	startGameWith(t, room, sink, a, b)

	res := mapgen.Resources(rules.Seed, mapgen.DefaultResourceCount)[0]
	room.Deliver(a.ID, moveMsg(t, res.X, res.Z))
	room.Deliver(b.ID, moveMsg(t, res.X, res.Z))
	sink.next(t, protocol.TypePlayerMoved)
	sink.next(t, protocol.TypePlayerMoved)

	room.Deliver(a.ID, mustMsg(t, protocol.TypeStartHarvest, &protocol.StartHarvestPayload{ResourceID: res.ID}))
	time.Sleep(15 * time.Millisecond)
	room.Deliver(b.ID, mustMsg(t, protocol.TypeStartHarvest, &protocol.StartHarvestPayload{ResourceID: res.ID}))

	complete := sink.next(t, protocol.TypeHarvestComplete)
	var hc protocol.HarvestCompletePayload
	decodeFrame(t, complete, &hc)
	assert.Equal(t, "a", hc.PlayerID)

	// The slower harvester is told the node is gone and goes idle.
	fr := sink.next(t, protocol.TypeError)
	assert.Equal(t, []string{"b"}, fr.targets)
	var ep protocol.ErrorPayload
	decodeFrame(t, fr, &ep)
	assert.Equal(t, protocol.ErrTextInvalidResource, ep.Message)

	time.Sleep(10 * time.Millisecond)
	room.Deliver(b.ID, moveMsg(t, res.X+0.3, res.Z))
	moved := sink.next(t, protocol.TypePlayerMoved)
	var pm protocol.PlayerMovedPayload
	decodeFrame(t, moved, &pm)
	assert.Equal(t, "b", pm.PlayerID)
}

func TestDigMissReportsAndPlayContinues(t *testing.T) {
	rules := testRules()
	sink := newFrameSink()
	room := newTestRoom(t, rules, sink, newFakeSettler())
	a, b := joinPair(t, room)
	startGameWith(t, room, sink, a, b)

	site := firstResourceAwayFromChest(t, rules)
	room.Deliver(a.ID, moveMsg(t, site.X, site.Z))
	sink.next(t, protocol.TypePlayerMoved)

	room.Deliver(a.ID, mustMsg(t, protocol.TypeStartDig, &protocol.StartDigPayload{
		Position: protocol.Vec3{X: site.X, Z: site.Z},
	}))

	started := sink.next(t, protocol.TypeDigStarted)
	var ds protocol.DigStartedPayload
	decodeFrame(t, started, &ds)
	assert.Equal(t, "a", ds.PlayerID)

	miss := sink.next(t, protocol.TypeDigComplete)
	var dc protocol.DigCompletePayload
	decodeFrame(t, miss, &dc)
	assert.Equal(t, "a", dc.PlayerID)
	assert.False(t, dc.Found)

	assert.Empty(t, sink.framesOfType(protocol.TypeGameEnded))

	time.Sleep(10 * time.Millisecond)
	room.Deliver(a.ID, moveMsg(t, site.X+0.3, site.Z))
	sink.next(t, protocol.TypePlayerMoved)
}

func TestDigRejectedOffIsland(t *testing.T) {
	sink := newFrameSink()
	room := newTestRoom(t, testRules(), sink, newFakeSettler())
	a, b := joinPair(t, room)
	startGameWith(t, room, sink, a, b)

	room.Deliver(a.ID, moveMsg(t, 300, 300))
	sink.next(t, protocol.TypePlayerMoved)

	room.Deliver(a.ID, mustMsg(t, protocol.TypeStartDig, &protocol.StartDigPayload{
		Position: protocol.Vec3{X: 300, Z: 300},
	}))

	fr := sink.next(t, protocol.TypeError)
	var ep protocol.ErrorPayload
	decodeFrame(t, fr, &ep)
	assert.Equal(t, protocol.ErrTextOffIsland, ep.Message)
}

func TestChestDigWinsPaysOutAndRetiresRoom(t *testing.T) {
	rules := testRules()
	sink := newFrameSink()
	settle := newFakeSettler()
	room := newTestRoom(t, rules, sink, settle)
	a, b := joinPair(t, room)
	startGameWith(t, room, sink, a, b)

	chestX, chestZ := mapgen.ChestPosition(rules.Seed)
	room.Deliver(a.ID, moveMsg(t, chestX, chestZ))
	sink.next(t, protocol.TypePlayerMoved)

	room.Deliver(a.ID, mustMsg(t, protocol.TypeStartDig, &protocol.StartDigPayload{
		Position: protocol.Vec3{X: chestX, Z: chestZ},
	}))
	sink.next(t, protocol.TypeDigStarted)

	found := sink.next(t, protocol.TypeChestFound)
	var cf protocol.ChestFoundPayload
	decodeFrame(t, found, &cf)
	assert.Equal(t, "a", cf.PlayerID)
	assert.InDelta(t, chestX, cf.Position.X, 1e-9)
	assert.InDelta(t, chestZ, cf.Position.Z, 1e-9)

	ended := sink.next(t, protocol.TypeGameEnded)
	var ge protocol.GameEndedPayload
	decodeFrame(t, ended, &ge)
	require.NotNil(t, ge.WinnerID)
	assert.Equal(t, "a", *ge.WinnerID)
	assert.Equal(t, protocol.ReasonChestFound, ge.Reason)

	paid := sink.next(t, protocol.TypePayoutComplete)
	var pc protocol.PayoutCompletePayload
	decodeFrame(t, paid, &pc)
	require.NotNil(t, pc.WinnerID)
	assert.Equal(t, "a", *pc.WinnerID)
	assert.Equal(t, 10.0, pc.Amount)

	assert.Empty(t, sink.framesOfType(protocol.TypeDigComplete), "the winning dig is announced as ChestFound only")

	require.Equal(t, 1, settle.payoutCount())
	payout := settle.lastPayout()
	assert.Equal(t, room.ID(), payout.roomID)
	assert.Equal(t, a.Addr(), payout.winner)
	assert.Equal(t, 10.0, payout.amount)

	require.Eventually(t, func() bool {
		_, alive := room.Info()
		return !alive
	}, 2*time.Second, 5*time.Millisecond, "room must retire after the grace period")
}

func TestGameEndsAfterTimeoutWithRefunds(t *testing.T) {
	rules := testRules()
	rules.GameTimeout = 50 * time.Millisecond

	sink := newFrameSink()
	settle := newFakeSettler()
	room := newTestRoom(t, rules, sink, settle)
	a, b := joinPair(t, room)
	startGameWith(t, room, sink, a, b)

	ended := sink.next(t, protocol.TypeGameEnded)
	var ge protocol.GameEndedPayload
	decodeFrame(t, ended, &ge)
	assert.Nil(t, ge.WinnerID)
	assert.Equal(t, protocol.ReasonTimeout, ge.Reason)

	paid := sink.next(t, protocol.TypePayoutComplete)
	var pc protocol.PayoutCompletePayload
	decodeFrame(t, paid, &pc)
	assert.Nil(t, pc.WinnerID)
	assert.Equal(t, 0.0, pc.Amount)

	assert.Equal(t, 1, settle.refundCount(room.ID()))
}

func TestAbandonedGameRefundsStakes(t *testing.T) {
	sink := newFrameSink()
	settle := newFakeSettler()
	room := newTestRoom(t, testRules(), sink, settle)
	a, b := joinPair(t, room)
	startGameWith(t, room, sink, a, b)

	room.Deliver(a.ID, mustMsg(t, protocol.TypeLeaveRoom, nil))
	sink.next(t, protocol.TypePlayerLeft)
	room.Deliver(b.ID, mustMsg(t, protocol.TypeLeaveRoom, nil))

	require.Eventually(t, func() bool {
		return settle.refundCount(room.ID()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		_, alive := room.Info()
		return !alive
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPlayContinuesForRemainingPlayer(t *testing.T) {
	sink := newFrameSink()
	room := newTestRoom(t, testRules(), sink, newFakeSettler())
	a, b := joinPair(t, room)
	startGameWith(t, room, sink, a, b)

	room.Deliver(b.ID, mustMsg(t, protocol.TypeLeaveRoom, nil))
	sink.next(t, protocol.TypePlayerLeft)

	room.Deliver(a.ID, moveMsg(t, 5, 5))
	fr := sink.next(t, protocol.TypePlayerMoved)
	var pm protocol.PlayerMovedPayload
	decodeFrame(t, fr, &pm)
	assert.Equal(t, "a", pm.PlayerID)
}

func TestEndedRoomRejectsGameplayUntilRetired(t *testing.T) {
	rules := testRules()
	rules.GameTimeout = 30 * time.Millisecond
	rules.EndGrace = 300 * time.Millisecond

	sink := newFrameSink()
	room := newTestRoom(t, rules, sink, newFakeSettler())
	a, b := joinPair(t, room)
	startGameWith(t, room, sink, a, b)

	sink.next(t, protocol.TypeGameEnded)
	sink.next(t, protocol.TypePayoutComplete)

	room.Deliver(a.ID, mustMsg(t, protocol.TypeStartDig, &protocol.StartDigPayload{
		Position: protocol.Vec3{},
	}))

	fr := sink.next(t, protocol.TypeError)
	var ep protocol.ErrorPayload
	decodeFrame(t, fr, &ep)
	assert.Equal(t, protocol.ErrTextWrongPhase, ep.Message)
}

func TestPlayersSyncCarriesRoomSnapshot(t *testing.T) {
	rules := testRules()
	rules.SyncInterval = 20 * time.Millisecond

	sink := newFrameSink()
	room := newTestRoom(t, rules, sink, newFakeSettler())
	a, b := joinPair(t, room)
	startGameWith(t, room, sink, a, b)

	fr := sink.next(t, protocol.TypePlayersSync)
	var ps protocol.PlayersSyncPayload
	decodeFrame(t, fr, &ps)
	require.Len(t, ps.Players, 2)

	ids := []string{ps.Players[0].ID, ps.Players[1].ID}
	assert.Contains(t, ids, a.ID)
	assert.Contains(t, ids, b.ID)
}
