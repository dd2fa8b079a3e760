package game

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/JustAnotherDevv/EthGlobalGame-sub000/internal/mapgen"
	"github.com/JustAnotherDevv/EthGlobalGame-sub000/internal/protocol"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newSyncRoom assembles a room without starting its loop, so handlers can
// be driven synchronously against a hand-built game state.
func newSyncRoom(sink *frameSink, settle Settler, rules Rules) *Room {
	return &Room{
		id:            "room-sync",
		seed:          rules.Seed,
		rules:         rules,
		log:           logrus.WithFields(logrus.Fields{"room_id": "room-sync"}),
		broadcastFunc: sink.broadcast,
		settle:        settle,
		events:        make(chan interface{}, 64),
		done:          make(chan struct{}),
		phase:         PhaseLobby,
		members:       make(map[string]*PlayerSession),
		resourceByID:  make(map[string]*Resource),
		scheduler:     NewActionScheduler(),
		createdAt:     time.Now(),
		hintRand:      rand.New(rand.NewSource(1)),
	}
}

func placeDigger(s *PlayerSession, now time.Time, site protocol.Vec3, startedAgo, deadlineAgo time.Duration) {
	s.CurrentAction = ActionDigging
	s.DigPosition = site
	s.ActionStartedAt = now.Add(-startedAgo)
	s.ActionDeadline = now.Add(-deadlineAgo)
}

func TestSimultaneousDigsResolveByDeadline(t *testing.T) {
	sink := newFrameSink()
	settle := newFakeSettler()
	rules := testRules()
	r := newSyncRoom(sink, settle, rules)

	a := NewSession("a", addrA)
	b := NewSession("b", addrB)
	r.members["a"] = a
	r.members["b"] = b
	r.order = []string{"a", "b"}
	r.phase = PhasePlaying
	r.chest = protocol.Vec3{X: 10, Z: -4}
	settle.Record(r.id, "a", a.Addr(), rules.WagerAmount)
	settle.Record(r.id, "b", b.Addr(), rules.WagerAmount)

	// Both sites are inside the find radius. a's timer event arrived
	// first, but b's dig deadline was earlier, so b must win.
	now := time.Now()
	placeDigger(a, now, protocol.Vec3{X: r.chest.X + 1, Z: r.chest.Z}, 30*time.Millisecond, 5*time.Millisecond)
	placeDigger(b, now, r.chest, 40*time.Millisecond, 10*time.Millisecond)

	r.events <- actionCompletedEvent{sessionID: "b"}
	r.handleActionCompleted("a")

	require.Equal(t, []protocol.MessageType{
		protocol.TypeDigComplete,
		protocol.TypeChestFound,
		protocol.TypeGameEnded,
	}, sink.typeSequence())

	var miss protocol.DigCompletePayload
	decodeFrame(t, sink.framesOfType(protocol.TypeDigComplete)[0], &miss)
	assert.Equal(t, "a", miss.PlayerID)
	assert.False(t, miss.Found)

	var found protocol.ChestFoundPayload
	decodeFrame(t, sink.framesOfType(protocol.TypeChestFound)[0], &found)
	assert.Equal(t, "b", found.PlayerID)

	var ended protocol.GameEndedPayload
	decodeFrame(t, sink.framesOfType(protocol.TypeGameEnded)[0], &ended)
	require.NotNil(t, ended.WinnerID)
	assert.Equal(t, "b", *ended.WinnerID)

	require.Eventually(t, func() bool {
		return settle.payoutCount() == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, b.Addr(), settle.lastPayout().winner)
}

func TestDigDeadlineTieBreaksOnActionStart(t *testing.T) {
	sink := newFrameSink()
	settle := newFakeSettler()
	rules := testRules()
	r := newSyncRoom(sink, settle, rules)

	a := NewSession("a", addrA)
	b := NewSession("b", addrB)
	r.members["a"] = a
	r.members["b"] = b
	r.order = []string{"a", "b"}
	r.phase = PhasePlaying
	r.chest = protocol.Vec3{X: -20, Z: 35}

	now := time.Now()
	deadline := 5 * time.Millisecond
	placeDigger(a, now, r.chest, 30*time.Millisecond, deadline)
	placeDigger(b, now, r.chest, 45*time.Millisecond, deadline)
	// Equal deadlines: b started digging earlier and takes it.

	r.events <- actionCompletedEvent{sessionID: "b"}
	r.handleActionCompleted("a")

	var found protocol.ChestFoundPayload
	decodeFrame(t, sink.framesOfType(protocol.TypeChestFound)[0], &found)
	assert.Equal(t, "b", found.PlayerID)
}

func TestQueuedDigMissesResolveWithoutEndingGame(t *testing.T) {
	sink := newFrameSink()
	settle := newFakeSettler()
	rules := testRules()
	r := newSyncRoom(sink, settle, rules)

	a := NewSession("a", addrA)
	b := NewSession("b", addrB)
	r.members["a"] = a
	r.members["b"] = b
	r.order = []string{"a", "b"}
	r.phase = PhasePlaying
	r.chest = protocol.Vec3{X: 50, Z: 50}

	now := time.Now()
	placeDigger(a, now, protocol.Vec3{X: -10, Z: -10}, 30*time.Millisecond, 5*time.Millisecond)
	placeDigger(b, now, protocol.Vec3{X: 12, Z: 0}, 40*time.Millisecond, 10*time.Millisecond)

	r.events <- actionCompletedEvent{sessionID: "b"}
	r.handleActionCompleted("a")

	misses := sink.framesOfType(protocol.TypeDigComplete)
	require.Len(t, misses, 2)
	assert.Empty(t, sink.framesOfType(protocol.TypeChestFound))
	assert.Empty(t, sink.framesOfType(protocol.TypeGameEnded))

	assert.Equal(t, PhasePlaying, r.phase)
	assert.False(t, a.Busy())
	assert.False(t, b.Busy())
}

func TestHarvestCrossingWoodThresholdRevealsMap(t *testing.T) {
	sink := newFrameSink()
	rules := testRules()
	r := newSyncRoom(sink, newFakeSettler(), rules)

	a := NewSession("a", addrA)
	r.members["a"] = a
	r.order = []string{"a"}
	r.phase = PhasePlaying
	r.chest = protocol.Vec3{X: 25, Z: 13}

	node := &Resource{Resource: mapgen.Resource{ID: "res_50", Type: mapgen.ResourceWood, X: 1, Z: 1}}
	r.resources = append(r.resources, node)
	r.resourceByID[node.ID] = node

	a.Inventory = Inventory{Wood: MapWoodCost - 1}
	a.Upgrades = DeriveUpgrades(a.Inventory, Upgrades{})

	r.resolveHarvest(a, node.ID)

	require.Equal(t, []protocol.MessageType{
		protocol.TypeMapRevealed,
		protocol.TypeUpgradeUnlocked,
		protocol.TypeHarvestComplete,
	}, sink.typeSequence())

	hint := sink.framesOfType(protocol.TypeMapRevealed)[0]
	assert.Equal(t, []string{"a"}, hint.targets, "the map is the finder's alone")

	var mp protocol.MapRevealedPayload
	decodeFrame(t, hint, &mp)
	assert.Equal(t, rules.MapRevealRadius, mp.Radius)

	dx := mp.Center.X - r.chest.X
	dz := mp.Center.Z - r.chest.Z
	assert.LessOrEqual(t, math.Sqrt(dx*dx+dz*dz), mp.Radius,
		"the chest must lie inside the revealed disc")

	var up protocol.UpgradeUnlockedPayload
	decodeFrame(t, sink.framesOfType(protocol.TypeUpgradeUnlocked)[0], &up)
	assert.Equal(t, protocol.UpgradeMap, up.Upgrade)

	var hc protocol.HarvestCompletePayload
	decodeFrame(t, sink.framesOfType(protocol.TypeHarvestComplete)[0], &hc)
	assert.Equal(t, MapWoodCost, hc.Inventory.Wood)
	assert.True(t, hc.Upgrades.HasMap)
}

func TestMapRevealsOnlyOnce(t *testing.T) {
	sink := newFrameSink()
	rules := testRules()
	r := newSyncRoom(sink, newFakeSettler(), rules)

	a := NewSession("a", addrA)
	r.members["a"] = a
	r.order = []string{"a"}
	r.phase = PhasePlaying
	r.chest = protocol.Vec3{X: 25, Z: 13}

	for _, id := range []string{"res_1", "res_2"} {
		node := &Resource{Resource: mapgen.Resource{ID: id, Type: mapgen.ResourceWood, X: 1, Z: 1}}
		r.resources = append(r.resources, node)
		r.resourceByID[id] = node
	}

	a.Inventory = Inventory{Wood: MapWoodCost - 1}
	a.Upgrades = DeriveUpgrades(a.Inventory, Upgrades{})

	r.resolveHarvest(a, "res_1")
	r.resolveHarvest(a, "res_2")

	assert.Len(t, sink.framesOfType(protocol.TypeMapRevealed), 1)
	assert.Len(t, sink.framesOfType(protocol.TypeHarvestComplete), 2)
}

func TestDigDurationScalesAndFloors(t *testing.T) {
	r := &Room{rules: Rules{DigDuration: 3 * time.Second}}

	assert.Equal(t, 3*time.Second, r.digDuration(1.0))
	assert.Equal(t, 1500*time.Millisecond, r.digDuration(0.5))
	assert.Equal(t, 2430*time.Millisecond, r.digDuration(0.81))
	assert.Equal(t, 10*time.Millisecond, r.digDuration(0.000001))
}
