// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lockchat

import (
	"testing"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

func TestStateCacheIdempotentApply(t *testing.T) {
	require := require.New(t)

	cache := NewStateCache(time.Minute)
	ev := RoomCreated{RoomID: 7, Creator: testSender, RoomName: "general"}

	cache.Apply(ev)
	cache.Apply(ev)

	rooms := cache.Rooms()
	require.Len(rooms, 1)
	require.Equal(uint64(7), rooms[0].ID)
	require.Equal(StateConfirmed, rooms[0].State)
}

func TestStateCacheConfirmOverwritesProvisional(t *testing.T) {
	require := require.New(t)

	cache := NewStateCache(time.Minute)
	ev := MessageSent{MessageID: 3, RoomID: 1, Sender: testSender}

	cache.ApplyProvisional(ev)
	msg, ok := cache.Message(3)
	require.True(ok)
	require.Equal(StateProvisional, msg.State)

	cache.Apply(ev)
	msg, ok = cache.Message(3)
	require.True(ok)
	require.Equal(StateConfirmed, msg.State)

	// A late provisional replay does not demote the confirmed entry
	cache.ApplyProvisional(ev)
	msg, _ = cache.Message(3)
	require.Equal(StateConfirmed, msg.State)
}

func TestStateCacheExpiresProvisional(t *testing.T) {
	require := require.New(t)

	window := 50 * time.Millisecond
	cache := NewStateCache(window)

	cache.ApplyProvisional(RoomCreated{RoomID: 1, Creator: testSender, RoomName: "general"})
	cache.ApplyProvisional(MessageSent{MessageID: 1, RoomID: 1, Sender: testSender})

	cache.Expire(time.Now().Add(2 * window))

	room, ok := cache.Room(1)
	require.True(ok)
	require.Equal(StateUnconfirmedTimedOut, room.State)

	msg, ok := cache.Message(1)
	require.True(ok)
	require.Equal(StateUnconfirmedTimedOut, msg.State)

	// A confirming event still rescues the entry afterwards
	cache.Apply(RoomCreated{RoomID: 1, Creator: testSender, RoomName: "general"})
	room, _ = cache.Room(1)
	require.Equal(StateConfirmed, room.State)
}

func TestStateCacheMembership(t *testing.T) {
	require := require.New(t)

	cache := NewStateCache(time.Minute)

	cache.Apply(UserJoined{RoomID: 1, User: testSender})
	cache.Apply(UserJoined{RoomID: 1, User: testOther})
	cache.Apply(UserJoined{RoomID: 1, User: testOther}) // duplicate delivery
	require.Equal(2, cache.Members(1).Len())

	cache.Apply(UserLeft{RoomID: 1, User: testOther})
	members := cache.Members(1)
	require.Equal(1, members.Len())
	require.True(members.Contains(testSender))

	// Leaving a room the cache never saw is tolerated
	cache.Apply(UserLeft{RoomID: 9, User: testSender})
	require.Zero(cache.Members(9).Len())
}

func TestStateCacheReputationSkeleton(t *testing.T) {
	require := require.New(t)

	cache := NewStateCache(time.Minute)
	sealed := Int64(105).Encode()

	// The profile was created before this client subscribed; the event alone
	// must still land somewhere readable.
	cache.Apply(ReputationUpdated{User: testOther, Reputation: sealed})

	profile, ok := cache.Profile(testOther)
	require.True(ok)
	require.Equal(testOther, profile.Address)
	require.True(profile.Reputation.Present())
	require.Equal(sealed, profile.Reputation.Ciphertext)
}

func TestStateCacheReadsReturnCopies(t *testing.T) {
	require := require.New(t)

	cache := NewStateCache(time.Minute)
	cache.Apply(RoomCreated{RoomID: 1, Creator: testSender, RoomName: "general"})

	room, _ := cache.Room(1)
	room.Name = "mutated"

	fresh, _ := cache.Room(1)
	require.Equal("general", fresh.Name)
}

func TestStateCachePutProfile(t *testing.T) {
	require := require.New(t)

	cache := NewStateCache(time.Minute)
	cache.PutProfile(&UserProfile{
		Address:  common.HexToAddress("0x01"),
		Username: "alice",
		State:    StateProvisional,
	})

	profile, ok := cache.Profile(common.HexToAddress("0x01"))
	require.True(ok)
	require.Equal("alice", profile.Username)
	require.Equal(StateProvisional, profile.State)
}
