package game

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrAlreadyInRoom rejects a second JoinRoom from a session that has not
// left its current room.
var ErrAlreadyInRoom = errors.New("already in a room")

// MatchMaker owns the room registry and the session-to-room routing table.
// Its mutex guards only the maps; it is never held across a room call, so
// room loops can call back into detach and retire without deadlocking.
type MatchMaker struct {
	mu        sync.Mutex
	rules     Rules
	settle    Settler
	broadcast BroadcastFunc
	rooms     map[string]*Room
	roomOrder []string
	bySession map[string]*Room
}

func NewMatchMaker(rules Rules, settle Settler, broadcast BroadcastFunc) *MatchMaker {
	return &MatchMaker{
		rules:     rules,
		settle:    settle,
		broadcast: broadcast,
		rooms:     make(map[string]*Room),
		bySession: make(map[string]*Room),
	}
}

// Join places the session in the oldest joinable room, opening a fresh one
// when every candidate is full or already playing.
func (m *MatchMaker) Join(session *PlayerSession) (*Room, error) {
	m.mu.Lock()
	if _, exists := m.bySession[session.ID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("session %s: %w", session.ID, ErrAlreadyInRoom)
	}
	candidates := make([]*Room, 0, len(m.roomOrder))
	for _, id := range m.roomOrder {
		candidates = append(candidates, m.rooms[id])
	}
	m.mu.Unlock()

	for _, room := range candidates {
		if err := room.Join(session); err == nil {
			m.attach(session.ID, room)
			return room, nil
		}
	}

	room := m.openRoom()
	if err := room.Join(session); err != nil {
		room.Stop()
		m.retire(room.ID())
		return nil, err
	}
	m.attach(session.ID, room)
	return room, nil
}

func (m *MatchMaker) openRoom() *Room {
	id := uuid.New().String()
	seed := m.rules.Seed
	if seed == 0 {
		seed = randomSeed()
	}

	room := NewRoom(id, seed, m.rules, m.broadcast, m.settle, m.retire, m.detach)

	m.mu.Lock()
	m.rooms[id] = room
	m.roomOrder = append(m.roomOrder, id)
	total := len(m.rooms)
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"room_id": id,
		"seed":    seed,
		"rooms":   total,
	}).Info("Opened new room")

	return room
}

func randomSeed() uint32 {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return uint32(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint32(buf[:])
}

func (m *MatchMaker) attach(sessionID string, room *Room) {
	m.mu.Lock()
	m.bySession[sessionID] = room
	m.mu.Unlock()
}

// detach drops a session's route. Called from room loops when a member
// leaves.
func (m *MatchMaker) detach(sessionID string) {
	m.mu.Lock()
	delete(m.bySession, sessionID)
	m.mu.Unlock()
}

// Route finds the room currently holding a session.
func (m *MatchMaker) Route(sessionID string) (*Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.bySession[sessionID]
	return room, ok
}

// Disconnect pulls a dead connection out of its room, if it is in one.
func (m *MatchMaker) Disconnect(sessionID string) {
	if room, ok := m.Route(sessionID); ok {
		room.Disconnect(sessionID)
	}
}

// retire removes a finished room and any routes still pointing at it.
func (m *MatchMaker) retire(roomID string) {
	m.mu.Lock()
	room, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.rooms, roomID)
	for i, id := range m.roomOrder {
		if id == roomID {
			m.roomOrder = append(m.roomOrder[:i], m.roomOrder[i+1:]...)
			break
		}
	}
	for sid, rm := range m.bySession {
		if rm == room {
			delete(m.bySession, sid)
		}
	}
	total := len(m.rooms)
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"rooms":   total,
	}).Info("Room retired")
}

// Rooms lists live rooms for the status API, oldest first.
func (m *MatchMaker) Rooms() []RoomInfo {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.roomOrder))
	for _, id := range m.roomOrder {
		rooms = append(rooms, m.rooms[id])
	}
	m.mu.Unlock()

	infos := make([]RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		if info, ok := room.Info(); ok {
			infos = append(infos, info)
		}
	}
	return infos
}

func (m *MatchMaker) RoomCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

// Shutdown stops every room. Settlements already handed to the broker run
// to completion on their own goroutines.
func (m *MatchMaker) Shutdown() {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, room)
	}
	m.mu.Unlock()

	for _, room := range rooms {
		room.Stop()
	}
}
