package main

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRoomIDFormat(t *testing.T) {
	reg := newRegistry(0)
	alnum := regexp.MustCompile(`^[A-Za-z0-9]{8}$`)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := reg.newRoomID()
		assert.Regexp(t, alnum, id)
		assert.False(t, seen[id], "id %q generated twice", id)
		seen[id] = true
	}
}

func TestCreateGetDelete(t *testing.T) {
	reg := newRegistry(0)

	room := reg.CreateRoom()
	require.NotNil(t, room)
	assert.Empty(t, room.members, "created room must have no members until the first join")

	got, ok := reg.Get(room.id)
	require.True(t, ok)
	assert.Same(t, room, got)

	_, ok = reg.Get("missing")
	assert.False(t, ok)

	reg.Delete(room.id)
	_, ok = reg.Get(room.id)
	assert.False(t, ok)
}

func TestRegistriesAreIsolated(t *testing.T) {
	regA := newRegistry(0)
	regB := newRegistry(0)

	room := regA.CreateRoom()

	_, ok := regB.Get(room.id)
	assert.False(t, ok, "registries must not share state")
}
