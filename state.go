// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lockchat

import (
	"sort"
	"sync"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/math/set"
)

// StateCache is a read-optimized, possibly stale shadow of ledger state. The
// ledger remains the sole source of truth; the cache never originates
// authoritative state and can be rebuilt at any time by re-subscribing.
//
// Event application is idempotent per event identity: applying the same event
// twice yields the same cache state as applying it once. A confirming event
// always overwrites a provisional entry with the same id. Provisional entries
// that outlive the configured window are flagged unconfirmed, never silently
// promoted.
type StateCache struct {
	lock   sync.RWMutex
	window time.Duration

	rooms    map[uint64]*Room
	messages map[uint64]*Message
	profiles map[common.Address]*UserProfile
	members  map[uint64]set.Set[common.Address]

	// pendingAt records when a provisional entry was applied.
	pendingRooms    map[uint64]time.Time
	pendingMessages map[uint64]time.Time
}

// NewStateCache returns an empty cache. Provisional entries older than
// window are reported as unconfirmed.
func NewStateCache(window time.Duration) *StateCache {
	return &StateCache{
		window:          window,
		rooms:           make(map[uint64]*Room),
		messages:        make(map[uint64]*Message),
		profiles:        make(map[common.Address]*UserProfile),
		members:         make(map[uint64]set.Set[common.Address]),
		pendingRooms:    make(map[uint64]time.Time),
		pendingMessages: make(map[uint64]time.Time),
	}
}

// Apply reconciles a ledger-confirmed event into the cache. Duplicate
// delivery (e.g. after a reconnect) is tolerated.
func (c *StateCache) Apply(ev Event) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.apply(ev, StateConfirmed)
}

// ApplyProvisional records a locally observed, not yet stream-confirmed
// event, e.g. one extracted from a receipt by the originating session. If a
// confirmed entry with the same id already exists, this is a no-op.
func (c *StateCache) ApplyProvisional(ev Event) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.apply(ev, StateProvisional)
}

func (c *StateCache) apply(ev Event, state EntryState) {
	now := time.Now()
	switch e := ev.(type) {
	case RoomCreated:
		room, ok := c.rooms[e.RoomID]
		if ok && room.State == StateConfirmed && state == StateProvisional {
			// The confirming event already won the race.
			return
		}
		if !ok {
			room = &Room{ID: e.RoomID}
			c.rooms[e.RoomID] = room
		}
		room.Name = e.RoomName
		room.Creator = e.Creator
		c.transition(room.ID, &room.State, state, c.pendingRooms, now)
	case MessageSent:
		msg, ok := c.messages[e.MessageID]
		if ok && msg.State == StateConfirmed && state == StateProvisional {
			return
		}
		if !ok {
			msg = &Message{ID: e.MessageID}
			c.messages[e.MessageID] = msg
		}
		msg.RoomID = e.RoomID
		msg.Sender = e.Sender
		c.transition(msg.ID, &msg.State, state, c.pendingMessages, now)
	case UserJoined:
		members, ok := c.members[e.RoomID]
		if !ok {
			members = set.NewSet[common.Address](1)
			c.members[e.RoomID] = members
		}
		members.Add(e.User)
	case UserLeft:
		if members, ok := c.members[e.RoomID]; ok {
			members.Remove(e.User)
		}
	case ReputationUpdated:
		profile, ok := c.profiles[e.User]
		if !ok {
			profile = &UserProfile{Address: e.User}
			c.profiles[e.User] = profile
		}
		profile.Reputation = Sealed{Ciphertext: e.Reputation}
	}
}

func (c *StateCache) transition(id uint64, cur *EntryState, next EntryState, pending map[uint64]time.Time, now time.Time) {
	if next == StateProvisional {
		*cur = StateProvisional
		pending[id] = now
		return
	}
	*cur = StateConfirmed
	delete(pending, id)
}

// PutProfile stores a locally learned profile projection, e.g. from a
// confirmed createUserProfile call or a read query.
func (c *StateCache) PutProfile(p *UserProfile) {
	c.lock.Lock()
	defer c.lock.Unlock()
	cp := *p
	c.profiles[p.Address] = &cp
}

// Expire flags provisional entries applied before asOf minus the window as
// unconfirmed. It is called periodically and before reads.
func (c *StateCache) Expire(asOf time.Time) {
	c.lock.Lock()
	defer c.lock.Unlock()
	cutoff := asOf.Add(-c.window)
	for id, at := range c.pendingRooms {
		if at.Before(cutoff) {
			c.rooms[id].State = StateUnconfirmedTimedOut
			delete(c.pendingRooms, id)
		}
	}
	for id, at := range c.pendingMessages {
		if at.Before(cutoff) {
			c.messages[id].State = StateUnconfirmedTimedOut
			delete(c.pendingMessages, id)
		}
	}
}

// Room returns a copy of the cached room, if present.
func (c *StateCache) Room(id uint64) (*Room, bool) {
	c.Expire(time.Now())
	c.lock.RLock()
	defer c.lock.RUnlock()
	room, ok := c.rooms[id]
	if !ok {
		return nil, false
	}
	cp := *room
	return &cp, true
}

// Rooms returns a snapshot of all cached rooms ordered by id.
func (c *StateCache) Rooms() []*Room {
	c.Expire(time.Now())
	c.lock.RLock()
	defer c.lock.RUnlock()
	rooms := make([]*Room, 0, len(c.rooms))
	for _, room := range c.rooms {
		cp := *room
		rooms = append(rooms, &cp)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	return rooms
}

// Message returns a copy of the cached message, if present.
func (c *StateCache) Message(id uint64) (*Message, bool) {
	c.Expire(time.Now())
	c.lock.RLock()
	defer c.lock.RUnlock()
	msg, ok := c.messages[id]
	if !ok {
		return nil, false
	}
	cp := *msg
	return &cp, true
}

// RoomMessages returns a snapshot of the cached messages for a room ordered
// by message id, which matches ledger confirmation order.
func (c *StateCache) RoomMessages(roomID uint64) []*Message {
	c.Expire(time.Now())
	c.lock.RLock()
	defer c.lock.RUnlock()
	var msgs []*Message
	for _, msg := range c.messages {
		if msg.RoomID == roomID {
			cp := *msg
			msgs = append(msgs, &cp)
		}
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
	return msgs
}

// Profile returns a copy of the cached profile, if present.
func (c *StateCache) Profile(addr common.Address) (*UserProfile, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	profile, ok := c.profiles[addr]
	if !ok {
		return nil, false
	}
	cp := *profile
	return &cp, true
}

// Members returns a copy of the known membership set of a room.
func (c *StateCache) Members(roomID uint64) set.Set[common.Address] {
	c.lock.RLock()
	defer c.lock.RUnlock()
	members := set.NewSet[common.Address](c.members[roomID].Len())
	for member := range c.members[roomID] {
		members.Add(member)
	}
	return members
}
