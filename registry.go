package main

import (
	"crypto/rand"
	"sync"
	"time"
)

// Registry owns the mapping of room ids to live rooms. Rooms are
// created empty by an explicit create command; membership begins with
// the first join. Emptied rooms are deleted by the room itself, and a
// reaper sweeps rooms that were created but never used.
type Registry struct {
	mu          sync.Mutex
	rooms       map[string]*Room
	idleTimeout time.Duration
}

func newRegistry(idleTimeout time.Duration) *Registry {
	reg := &Registry{
		rooms:       make(map[string]*Room),
		idleTimeout: idleTimeout,
	}
	if idleTimeout > 0 {
		go reg.reaperLoop()
	}
	return reg
}

const roomIDLength = 8

// newRoomID generates a crypto-random room id and ensures it doesn't
// collide with existing rooms.
func (reg *Registry) newRoomID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, roomIDLength)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, roomIDLength)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		reg.mu.Lock()
		_, exists := reg.rooms[id]
		reg.mu.Unlock()

		if !exists {
			return id
		}
	}
}

// CreateRoom allocates an empty room under a fresh id.
func (reg *Registry) CreateRoom() *Room {
	id := reg.newRoomID()

	room := newRoom(id, reg)

	reg.mu.Lock()
	reg.rooms[id] = room
	reg.mu.Unlock()

	return room
}

func (reg *Registry) Get(id string) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.rooms[id]
	return room, ok
}

func (reg *Registry) Delete(id string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	delete(reg.rooms, id)
}

// reaperLoop periodically removes rooms that have been idle longer than
// idleTimeout.
func (reg *Registry) reaperLoop() {
	ticker := time.NewTicker(reg.idleTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-reg.idleTimeout)

		reg.mu.Lock()
		for id, room := range reg.rooms {
			room.mu.RLock()
			last := room.lastActive
			room.mu.RUnlock()

			if last.Before(cutoff) {
				delete(reg.rooms, id)
				go room.closeAll()
			}
		}
		reg.mu.Unlock()
	}
}
