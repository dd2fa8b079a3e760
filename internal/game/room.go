package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/JustAnotherDevv/EthGlobalGame-sub000/internal/mapgen"
	"github.com/JustAnotherDevv/EthGlobalGame-sub000/internal/protocol"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

var (
	ErrRoomClosed  = errors.New("room closed")
	ErrRoomFull    = errors.New("room is full")
	ErrRoomStarted = errors.New("room already started")
)

// BroadcastFunc delivers an encoded frame to the given client ids.
type BroadcastFunc func(data []byte, targets ...string)

// Settler is the slice of the wager ledger a room drives. Record and the
// reads are cheap; Payout and RefundAll talk to the broker and are only
// ever called off the room's loop.
type Settler interface {
	Record(roomID, playerID string, address common.Address, amount float64) bool
	AllStaked(roomID string, playerIDs []string) bool
	Pot(roomID string) float64
	Payout(ctx context.Context, roomID string, winner common.Address) (float64, error)
	RefundAll(ctx context.Context, roomID string) (float64, error)
}

// Resource is a room's mutable copy of a generated placement.
type Resource struct {
	mapgen.Resource
	Harvested bool
}

// Everything that mutates a room arrives on its queue as one of these.
type (
	joinEvent struct {
		session *PlayerSession
		reply   chan error
	}
	clientMsgEvent struct {
		sessionID string
		msg       *protocol.Message
	}
	leaveEvent struct {
		sessionID    string
		disconnected bool
	}
	actionCompletedEvent struct {
		sessionID string
	}
	countdownFiredEvent struct {
		seq uint64
	}
	timeoutFiredEvent struct{}
	payoutDoneEvent   struct {
		amount float64
		err    error
	}
	infoEvent struct {
		reply chan RoomInfo
	}
)

// RoomInfo is the thread-safe view served by the status API.
type RoomInfo struct {
	ID        string    `json:"id"`
	Phase     string    `json:"phase"`
	Players   int       `json:"players"`
	Pot       float64   `json:"pot"`
	Seed      uint32    `json:"seed"`
	CreatedAt time.Time `json:"createdAt"`
}

// Room runs one match from lobby to payout. All state below the events
// channel is owned by the run loop; external callers go through Join,
// Deliver, Disconnect, Info and Stop.
type Room struct {
	id    string
	seed  uint32
	rules Rules
	log   *logrus.Entry

	broadcastFunc BroadcastFunc
	settle        Settler
	onRetire      func(roomID string)
	onDetach      func(sessionID string)

	events   chan interface{}
	done     chan struct{}
	stopOnce sync.Once

	phase        Phase
	members      map[string]*PlayerSession
	order        []string
	resources    []*Resource
	resourceByID map[string]*Resource
	chest        protocol.Vec3
	createdAt    time.Time
	startedAt    time.Time

	scheduler    *ActionScheduler
	countdownSeq uint64
	countdownOn  bool
	syncTicker   *time.Ticker
	tickC        <-chan time.Time
	hintRand     *rand.Rand

	winnerID  *string
	endReason string
}

func NewRoom(id string, seed uint32, rules Rules, broadcast BroadcastFunc, settle Settler, onRetire, onDetach func(string)) *Room {
	r := &Room{
		id:            id,
		seed:          seed,
		rules:         rules,
		log:           logrus.WithFields(logrus.Fields{"room_id": id, "seed": seed}),
		broadcastFunc: broadcast,
		settle:        settle,
		onRetire:      onRetire,
		onDetach:      onDetach,
		events:        make(chan interface{}, 256),
		done:          make(chan struct{}),
		phase:         PhaseLobby,
		members:       make(map[string]*PlayerSession),
		resourceByID:  make(map[string]*Resource),
		scheduler:     NewActionScheduler(),
		createdAt:     time.Now(),
		hintRand:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	go r.run()
	return r
}

func (r *Room) ID() string {
	return r.id
}

// enqueue delivers an event unless the room is stopped.
func (r *Room) enqueue(ev interface{}) bool {
	select {
	case <-r.done:
		return false
	case r.events <- ev:
		return true
	}
}

// Join adds a session, round-tripping the loop so the capacity check is
// serialized with everything else the room does.
func (r *Room) Join(session *PlayerSession) error {
	reply := make(chan error, 1)
	if !r.enqueue(joinEvent{session: session, reply: reply}) {
		return ErrRoomClosed
	}

	select {
	case err := <-reply:
		return err
	case <-r.done:
		return ErrRoomClosed
	}
}

// Deliver routes a decoded client frame into the room.
func (r *Room) Deliver(sessionID string, msg *protocol.Message) {
	if !r.enqueue(clientMsgEvent{sessionID: sessionID, msg: msg}) {
		r.log.WithField("player_id", sessionID).Debug("Dropped message for stopped room")
	}
}

// Disconnect removes a session whose connection died.
func (r *Room) Disconnect(sessionID string) {
	r.enqueue(leaveEvent{sessionID: sessionID, disconnected: true})
}

// Info snapshots the room for the status API.
func (r *Room) Info() (RoomInfo, bool) {
	reply := make(chan RoomInfo, 1)
	if !r.enqueue(infoEvent{reply: reply}) {
		return RoomInfo{}, false
	}

	select {
	case info := <-reply:
		return info, true
	case <-r.done:
		return RoomInfo{}, false
	}
}

// Stop halts the loop. In-flight broker transfers are not rolled back;
// custody remains the source of truth for funds.
func (r *Room) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
		r.scheduler.StopAll()
	})
}

func (r *Room) run() {
	defer func() {
		if r.syncTicker != nil {
			r.syncTicker.Stop()
		}
	}()

	for {
		select {
		case <-r.done:
			return
		case ev := <-r.events:
			r.dispatch(ev)
		case <-r.tickC:
			r.broadcastSync()
		}
	}
}

// dispatch recovers panics so one poisoned event cannot kill the room.
func (r *Room) dispatch(ev interface{}) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.WithField("event", fmt.Sprintf("%T", ev)).Errorf("Recovered panic in room handler: %v", rec)
		}
	}()

	switch e := ev.(type) {
	case joinEvent:
		e.reply <- r.handleJoin(e.session)
	case clientMsgEvent:
		r.handleClientMessage(e.sessionID, e.msg)
	case leaveEvent:
		r.handleLeave(e.sessionID, e.disconnected)
	case actionCompletedEvent:
		r.handleActionCompleted(e.sessionID)
	case countdownFiredEvent:
		r.handleCountdownFired(e.seq)
	case timeoutFiredEvent:
		r.handleTimeoutFired()
	case payoutDoneEvent:
		r.handlePayoutDone(e.amount, e.err)
	case infoEvent:
		e.reply <- r.buildInfo()
	}
}

func (r *Room) handleJoin(session *PlayerSession) error {
	if r.phase != PhaseLobby {
		return ErrRoomStarted
	}
	if len(r.members) >= r.rules.MaxPlayers {
		return ErrRoomFull
	}

	session.resetForRoom(r.id)
	r.members[session.ID] = session
	r.order = append(r.order, session.ID)

	r.log.WithFields(logrus.Fields{
		"player_id": session.ID,
		"address":   session.Address,
		"players":   len(r.members),
	}).Info("Player joined room")

	r.send(protocol.TypeRoomJoined, &protocol.RoomJoinedPayload{
		RoomID:   r.id,
		PlayerID: session.ID,
		Phase:    r.phase.String(),
		Players:  r.snapshots(),
	}, session.ID)

	r.send(protocol.TypeWagerRequired, &protocol.WagerRequiredPayload{
		Amount:        r.rules.WagerAmount,
		ServerAddress: r.rules.ServerAddress,
		Asset:         r.rules.Asset,
	}, session.ID)

	return nil
}

func (r *Room) startGame() {
	r.phase = PhasePlaying
	r.startedAt = time.Now()

	chestX, chestZ := mapgen.ChestPosition(r.seed)
	r.chest = protocol.Vec3{X: chestX, Z: chestZ}

	generated := mapgen.Resources(r.seed, mapgen.DefaultResourceCount)
	r.resources = make([]*Resource, 0, len(generated))
	r.resourceByID = make(map[string]*Resource, len(generated))
	for _, res := range generated {
		tracked := &Resource{Resource: res}
		r.resources = append(r.resources, tracked)
		r.resourceByID[tracked.ID] = tracked
	}

	r.log.WithFields(logrus.Fields{
		"players":   len(r.members),
		"resources": len(r.resources),
		"pot":       r.settle.Pot(r.id),
	}).Info("Game started")

	r.send(protocol.TypeGameStarted, &protocol.GameStartedPayload{
		Seed:      r.seed,
		Resources: r.resourceStates(),
	})

	r.syncTicker = time.NewTicker(r.rules.SyncInterval)
	r.tickC = r.syncTicker.C

	time.AfterFunc(r.rules.GameTimeout, func() {
		r.enqueue(timeoutFiredEvent{})
	})
}

func (r *Room) handleTimeoutFired() {
	if r.phase != PhasePlaying {
		return
	}
	r.log.Info("Game timed out with the chest unfound")
	r.endGame(protocol.ReasonTimeout, nil)
}

// endGame is the single exit from play: it freezes gameplay, announces the
// outcome, and hands settlement to a background task whose result returns
// as a payoutDoneEvent.
func (r *Room) endGame(reason string, winner *PlayerSession) {
	if r.phase == PhaseEnded {
		return
	}
	r.phase = PhaseEnded
	r.endReason = reason
	r.cancelCountdown()
	r.stopSync()
	r.scheduler.StopAll()
	for _, s := range r.members {
		s.clearAction()
	}

	if winner != nil {
		id := winner.ID
		r.winnerID = &id
	}

	fields := logrus.Fields{"reason": reason, "pot": r.settle.Pot(r.id)}
	if winner != nil {
		fields["winner"] = winner.ID
	}
	r.log.WithFields(fields).Info("Game ended")

	r.send(protocol.TypeGameEnded, &protocol.GameEndedPayload{
		WinnerID: r.winnerID,
		Reason:   reason,
	})

	if reason == protocol.ReasonChestFound && winner != nil {
		winnerAddr := common.HexToAddress(winner.Address)
		go func() {
			amount, err := r.settle.Payout(context.Background(), r.id, winnerAddr)
			r.enqueue(payoutDoneEvent{amount: amount, err: err})
		}()
		return
	}

	go func() {
		_, err := r.settle.RefundAll(context.Background(), r.id)
		r.enqueue(payoutDoneEvent{amount: 0, err: err})
	}()
}

func (r *Room) handlePayoutDone(amount float64, err error) {
	if err != nil {
		r.log.Errorf("Settlement finished with errors: %v", err)
	}

	r.send(protocol.TypePayoutComplete, &protocol.PayoutCompletePayload{
		WinnerID: r.winnerID,
		Amount:   amount,
	})

	r.log.WithFields(logrus.Fields{
		"amount": amount,
		"reason": r.endReason,
	}).Info("Settlement complete, room retires after grace")

	time.AfterFunc(r.rules.EndGrace, func() {
		r.Stop()
		if r.onRetire != nil {
			r.onRetire(r.id)
		}
	})
}

func (r *Room) broadcastSync() {
	if r.phase != PhasePlaying {
		return
	}
	r.send(protocol.TypePlayersSync, &protocol.PlayersSyncPayload{Players: r.snapshots()})
}

func (r *Room) stopSync() {
	if r.syncTicker != nil {
		r.syncTicker.Stop()
		r.syncTicker = nil
		r.tickC = nil
	}
}

// send encodes and routes one frame. No targets means the whole room.
func (r *Room) send(msgType protocol.MessageType, payload interface{}, targets ...string) {
	if len(targets) == 0 {
		targets = r.memberIDs()
		if len(targets) == 0 {
			return
		}
	}

	data, err := protocol.Encode(msgType, payload)
	if err != nil {
		r.log.Errorf("Failed to encode %s: %v", msgType, err)
		return
	}

	if r.broadcastFunc != nil {
		r.broadcastFunc(data, targets...)
	}
}

func (r *Room) sendError(sessionID, text string) {
	r.send(protocol.TypeError, &protocol.ErrorPayload{Message: text}, sessionID)
}

func (r *Room) memberIDs() []string {
	ids := make([]string, 0, len(r.members))
	for _, id := range r.order {
		if _, ok := r.members[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *Room) snapshots() []protocol.PlayerSnapshot {
	out := make([]protocol.PlayerSnapshot, 0, len(r.members))
	for _, id := range r.order {
		if s, ok := r.members[id]; ok {
			out = append(out, s.Snapshot())
		}
	}
	return out
}

func (r *Room) resourceStates() []protocol.ResourceState {
	out := make([]protocol.ResourceState, len(r.resources))
	for i, res := range r.resources {
		out[i] = protocol.ResourceState{
			ID:        res.ID,
			Type:      string(res.Type),
			Position:  protocol.Vec3{X: res.X, Z: res.Z},
			Harvested: res.Harvested,
		}
	}
	return out
}

func (r *Room) buildInfo() RoomInfo {
	return RoomInfo{
		ID:        r.id,
		Phase:     r.phase.String(),
		Players:   len(r.members),
		Pot:       r.settle.Pot(r.id),
		Seed:      r.seed,
		CreatedAt: r.createdAt,
	}
}
