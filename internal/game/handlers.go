package game

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/JustAnotherDevv/EthGlobalGame-sub000/internal/mapgen"
	"github.com/JustAnotherDevv/EthGlobalGame-sub000/internal/protocol"
	"github.com/sirupsen/logrus"
)

func (r *Room) handleClientMessage(sessionID string, msg *protocol.Message) {
	session, ok := r.members[sessionID]
	if !ok {
		// The session left between gateway routing and processing.
		return
	}

	switch msg.Type {
	case protocol.TypeLeaveRoom:
		r.handleLeave(sessionID, false)

	case protocol.TypeWagerConfirmed:
		r.handleWagerConfirmed(session)

	case protocol.TypeReady:
		session.Ready = true
		r.log.WithField("player_id", sessionID).Debug("Player ready")

	case protocol.TypePositionUpdate:
		var payload protocol.PositionUpdatePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			r.sendError(sessionID, protocol.ErrTextBadPayload)
			return
		}
		r.handlePositionUpdate(session, payload)

	case protocol.TypeStartHarvest:
		var payload protocol.StartHarvestPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			r.sendError(sessionID, protocol.ErrTextBadPayload)
			return
		}
		r.handleStartHarvest(session, payload)

	case protocol.TypeCancelHarvest:
		r.handleCancelAction(session, ActionHarvesting)

	case protocol.TypeStartDig:
		var payload protocol.StartDigPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			r.sendError(sessionID, protocol.ErrTextBadPayload)
			return
		}
		r.handleStartDig(session, payload)

	case protocol.TypeCancelDig:
		r.handleCancelAction(session, ActionDigging)

	case protocol.TypePing:
		var payload protocol.PingPayload
		if len(msg.Payload) > 0 {
			_ = json.Unmarshal(msg.Payload, &payload)
		}
		r.send(protocol.TypePong, &protocol.PongPayload{T: payload.T}, sessionID)

	default:
		r.log.WithFields(logrus.Fields{
			"player_id": sessionID,
			"type":      msg.Type,
		}).Warn("Unhandled message type")
		r.sendError(sessionID, protocol.ErrTextUnknownType)
	}
}

func (r *Room) handleWagerConfirmed(session *PlayerSession) {
	if r.phase != PhaseLobby {
		r.sendError(session.ID, protocol.ErrTextWrongPhase)
		return
	}

	recorded := r.settle.Record(r.id, session.ID, session.Addr(), r.rules.WagerAmount)
	session.Wagered = true
	if !recorded {
		// Duplicate confirm, the first one already counted.
		return
	}

	r.log.WithFields(logrus.Fields{
		"player_id": session.ID,
		"amount":    r.rules.WagerAmount,
		"pot":       r.settle.Pot(r.id),
	}).Info("Wager recorded")

	r.send(protocol.TypeWagerAccepted, &protocol.WagerAcceptedPayload{
		PlayerID: session.ID,
		Amount:   r.rules.WagerAmount,
	})

	r.maybeStartCountdown()
}

func (r *Room) maybeStartCountdown() {
	if r.phase != PhaseLobby || r.countdownOn {
		return
	}
	if len(r.members) < r.rules.MinPlayers {
		return
	}
	if !r.settle.AllStaked(r.id, r.memberIDs()) {
		return
	}

	r.countdownOn = true
	r.countdownSeq++
	seq := r.countdownSeq

	r.log.WithField("countdown_ms", r.rules.Countdown.Milliseconds()).Info("All players staked, starting countdown")
	r.send(protocol.TypeGameStarting, &protocol.GameStartingPayload{
		Countdown: r.rules.Countdown.Milliseconds(),
	})

	time.AfterFunc(r.rules.Countdown, func() {
		r.enqueue(countdownFiredEvent{seq: seq})
	})
}

// cancelCountdown invalidates a pending countdown without touching stakes.
func (r *Room) cancelCountdown() {
	if r.countdownOn {
		r.countdownOn = false
		r.countdownSeq++
	}
}

func (r *Room) handleCountdownFired(seq uint64) {
	if r.phase != PhaseLobby || !r.countdownOn || seq != r.countdownSeq {
		return
	}
	r.countdownOn = false

	// The lobby may have changed while the clock ran; the start condition
	// must still hold. If it does not, the next stake re-arms the clock.
	if len(r.members) < r.rules.MinPlayers || !r.settle.AllStaked(r.id, r.memberIDs()) {
		r.log.Info("Countdown elapsed but the lobby is no longer ready")
		return
	}

	r.startGame()
}

// abortCountdown rolls the lobby back to the staking step: stakes go back
// to their owners and everyone must confirm again.
func (r *Room) abortCountdown() {
	r.cancelCountdown()
	r.log.Info("Countdown aborted, refunding stakes")

	for _, s := range r.members {
		s.Wagered = false
	}

	roomID := r.id
	log := r.log
	go func() {
		if _, err := r.settle.RefundAll(context.Background(), roomID); err != nil {
			log.Errorf("Lobby refund finished with errors: %v", err)
		}
	}()

	r.send(protocol.TypeWagerRequired, &protocol.WagerRequiredPayload{
		Amount:        r.rules.WagerAmount,
		ServerAddress: r.rules.ServerAddress,
		Asset:         r.rules.Asset,
	})
}

func (r *Room) handlePositionUpdate(session *PlayerSession, payload protocol.PositionUpdatePayload) {
	if r.phase != PhasePlaying {
		r.sendError(session.ID, protocol.ErrTextWrongPhase)
		return
	}
	if session.Busy() {
		r.sendError(session.ID, protocol.ErrTextBusy)
		return
	}
	if protocol.ValidateVec3(payload.Position) != nil {
		r.sendError(session.ID, protocol.ErrTextBadPayload)
		return
	}

	now := time.Now()
	if !session.LastMoveAt.IsZero() {
		dt := now.Sub(session.LastMoveAt)
		if dt <= 0 || dt < r.rules.PositionMinInterval {
			return
		}

		dist := horizontalDistance(session.Position, payload.Position)
		allowed := r.rules.MaxSpeed * session.Upgrades.SpeedMultiplier * r.rules.SpeedTolerance
		if dist/dt.Seconds() > allowed {
			r.log.WithFields(logrus.Fields{
				"player_id": session.ID,
				"speed":     dist / dt.Seconds(),
				"allowed":   allowed,
			}).Warn("Rejected position update")
			r.sendError(session.ID, protocol.ErrTextTooFast)
			return
		}
	}

	session.Position = payload.Position
	session.LastMoveAt = now

	r.send(protocol.TypePlayerMoved, &protocol.PlayerMovedPayload{
		PlayerID: session.ID,
		Position: session.Position,
	})
}

func (r *Room) handleStartHarvest(session *PlayerSession, payload protocol.StartHarvestPayload) {
	if r.phase != PhasePlaying {
		r.sendError(session.ID, protocol.ErrTextWrongPhase)
		return
	}
	if session.Busy() {
		r.sendError(session.ID, protocol.ErrTextBusy)
		return
	}
	if protocol.ValidateResourceID(payload.ResourceID) != nil {
		r.sendError(session.ID, protocol.ErrTextBadPayload)
		return
	}

	resource, ok := r.resourceByID[payload.ResourceID]
	if !ok || resource.Harvested {
		r.sendError(session.ID, protocol.ErrTextInvalidResource)
		return
	}

	if horizontalDistance(session.Position, protocol.Vec3{X: resource.X, Z: resource.Z}) > r.rules.HarvestProximity {
		r.sendError(session.ID, protocol.ErrTextTooFar)
		return
	}

	r.beginAction(session, ActionHarvesting, r.rules.HarvestDuration)
	session.ActionTarget = payload.ResourceID

	r.send(protocol.TypeHarvestStarted, &protocol.HarvestStartedPayload{
		PlayerID:   session.ID,
		ResourceID: payload.ResourceID,
	})
}

func (r *Room) handleStartDig(session *PlayerSession, payload protocol.StartDigPayload) {
	if r.phase != PhasePlaying {
		r.sendError(session.ID, protocol.ErrTextWrongPhase)
		return
	}
	if session.Busy() {
		r.sendError(session.ID, protocol.ErrTextBusy)
		return
	}
	if protocol.ValidateVec3(payload.Position) != nil {
		r.sendError(session.ID, protocol.ErrTextBadPayload)
		return
	}
	if !mapgen.IsOnIsland(payload.Position.X, payload.Position.Z, r.seed, false) {
		r.sendError(session.ID, protocol.ErrTextOffIsland)
		return
	}

	r.beginAction(session, ActionDigging, r.digDuration(session.Upgrades.DigMultiplier))
	session.DigPosition = payload.Position

	r.send(protocol.TypeDigStarted, &protocol.DigStartedPayload{
		PlayerID: session.ID,
		Position: payload.Position,
	})
}

func (r *Room) handleCancelAction(session *PlayerSession, kind ActionKind) {
	if session.CurrentAction != kind {
		return
	}

	r.scheduler.Cancel(session.ID)
	session.clearAction()

	r.log.WithFields(logrus.Fields{
		"player_id": session.ID,
		"action":    kind.String(),
	}).Debug("Action cancelled")
}

func (r *Room) beginAction(session *PlayerSession, kind ActionKind, d time.Duration) {
	now := time.Now()
	session.CurrentAction = kind
	session.ActionStartedAt = now
	session.ActionDeadline = now.Add(d)

	id := session.ID
	r.scheduler.Start(id, d, func() {
		r.enqueue(actionCompletedEvent{sessionID: id})
	})
}

// digDuration scales the base duration by the player's dig multiplier,
// floored so an upgraded dig still takes observable time.
func (r *Room) digDuration(multiplier float64) time.Duration {
	ms := int64(float64(r.rules.DigDuration.Milliseconds()) * multiplier)
	if ms < 10 {
		ms = 10
	}
	return time.Duration(ms) * time.Millisecond
}

func (r *Room) handleActionCompleted(sessionID string) {
	if r.phase != PhasePlaying {
		return
	}
	session, ok := r.members[sessionID]
	if !ok || !session.Busy() {
		return
	}

	switch session.CurrentAction {
	case ActionHarvesting:
		target := session.ActionTarget
		session.clearAction()
		r.resolveHarvest(session, target)
	case ActionDigging:
		r.resolveDigs(session)
	}
}

func (r *Room) resolveHarvest(session *PlayerSession, resourceID string) {
	resource, ok := r.resourceByID[resourceID]
	if !ok || resource.Harvested {
		// Someone else finished the same node first.
		r.sendError(session.ID, protocol.ErrTextInvalidResource)
		return
	}

	resource.Harvested = true
	session.Inventory.Add(resource.Type)

	prev := session.Upgrades
	session.Upgrades = DeriveUpgrades(session.Inventory, prev)

	if session.Upgrades.HasMap && !prev.HasMap {
		r.sendMapHint(session)
	}
	for _, kind := range UpgradeDeltas(prev, session.Upgrades) {
		r.send(protocol.TypeUpgradeUnlocked, &protocol.UpgradeUnlockedPayload{
			PlayerID: session.ID,
			Upgrade:  kind,
		})
	}

	r.send(protocol.TypeHarvestComplete, &protocol.HarvestCompletePayload{
		PlayerID:     session.ID,
		ResourceID:   resource.ID,
		ResourceType: string(resource.Type),
		Inventory:    session.Inventory.State(),
		Upgrades:     session.Upgrades.State(),
	})

	r.log.WithFields(logrus.Fields{
		"player_id": session.ID,
		"resource":  resource.ID,
		"type":      resource.Type,
	}).Debug("Harvest complete")
}

// sendMapHint unicasts the treasure map: a disc that contains the chest,
// centered a random offset away so the hint never pinpoints it.
func (r *Room) sendMapHint(session *PlayerSession) {
	angle := r.hintRand.Float64() * 2 * math.Pi
	dist := r.hintRand.Float64() * r.rules.MapRevealRadius / 2

	r.send(protocol.TypeMapRevealed, &protocol.MapRevealedPayload{
		Center: protocol.Vec3{
			X: r.chest.X + math.Cos(angle)*dist,
			Z: r.chest.Z + math.Sin(angle)*dist,
		},
		Radius: r.rules.MapRevealRadius,
	}, session.ID)
}

// resolveDigs settles the dig whose timer fired plus any dig completions
// already queued behind it, so simultaneous finds resolve in one
// deterministic pass: earliest deadline wins, action start breaks ties.
func (r *Room) resolveDigs(first *PlayerSession) {
	diggers := []*PlayerSession{first}
	var deferred []interface{}

drain:
	for {
		select {
		case ev := <-r.events:
			if ac, ok := ev.(actionCompletedEvent); ok {
				if s, present := r.members[ac.sessionID]; present && s != first && s.CurrentAction == ActionDigging {
					diggers = append(diggers, s)
					continue
				}
			}
			deferred = append(deferred, ev)
		default:
			break drain
		}
	}

	sort.SliceStable(diggers, func(i, j int) bool {
		if !diggers[i].ActionDeadline.Equal(diggers[j].ActionDeadline) {
			return diggers[i].ActionDeadline.Before(diggers[j].ActionDeadline)
		}
		return diggers[i].ActionStartedAt.Before(diggers[j].ActionStartedAt)
	})

	var winner *PlayerSession
	for _, digger := range diggers {
		site := digger.DigPosition
		digger.clearAction()

		if winner == nil && horizontalDistance(site, r.chest) <= r.rules.ChestFindRadius {
			winner = digger
			continue
		}

		r.send(protocol.TypeDigComplete, &protocol.DigCompletePayload{
			PlayerID: digger.ID,
			Found:    false,
		})
	}

	if winner != nil {
		r.send(protocol.TypeChestFound, &protocol.ChestFoundPayload{
			PlayerID: winner.ID,
			Position: r.chest,
		})
		r.endGame(protocol.ReasonChestFound, winner)
	}

	// Events dequeued while draining still run, in their original order.
	for _, ev := range deferred {
		r.dispatch(ev)
	}
}

func (r *Room) handleLeave(sessionID string, disconnected bool) {
	session, ok := r.members[sessionID]
	if !ok {
		return
	}

	r.scheduler.Cancel(sessionID)
	session.clearAction()
	session.RoomID = ""
	delete(r.members, sessionID)
	r.removeFromOrder(sessionID)
	if r.onDetach != nil {
		r.onDetach(sessionID)
	}

	r.log.WithFields(logrus.Fields{
		"player_id":    sessionID,
		"disconnected": disconnected,
		"players":      len(r.members),
	}).Info("Player left room")

	r.send(protocol.TypePlayerLeft, &protocol.PlayerLeftPayload{PlayerID: sessionID})

	if len(r.members) == 0 {
		if r.phase != PhaseEnded {
			r.endGame(protocol.ReasonAbandoned, nil)
		}
		return
	}

	if r.phase == PhaseLobby {
		if r.countdownOn && len(r.members) < r.rules.MinPlayers {
			r.abortCountdown()
		} else {
			// The leaver may have been the only member still unstaked.
			r.maybeStartCountdown()
		}
	}
}

func (r *Room) removeFromOrder(sessionID string) {
	for i, id := range r.order {
		if id == sessionID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}
