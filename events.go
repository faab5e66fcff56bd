// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lockchat

import "github.com/luxfi/geth/common"

// Event names emitted by the chat contract.
const (
	EventRoomCreated       = "RoomCreated"
	EventMessageSent       = "MessageSent"
	EventUserJoined        = "UserJoined"
	EventUserLeft          = "UserLeft"
	EventReputationUpdated = "ReputationUpdated"
)

// EventNames lists every contract event the client subscribes to.
var EventNames = []string{
	EventRoomCreated,
	EventMessageSent,
	EventUserJoined,
	EventUserLeft,
	EventReputationUpdated,
}

// Event is a decoded, contract-emitted notification attached to a confirmed
// transaction. Events are immutable and may be delivered more than once.
type Event interface {
	Name() string
}

// RoomCreated is emitted when a chat room is created.
type RoomCreated struct {
	RoomID   uint64
	Creator  common.Address
	RoomName string
}

func (RoomCreated) Name() string { return EventRoomCreated }

// MessageSent is emitted when a message is recorded in a room. MessageID is
// globally unique across rooms and monotonically increasing.
type MessageSent struct {
	MessageID uint64
	RoomID    uint64
	Sender    common.Address
}

func (MessageSent) Name() string { return EventMessageSent }

// UserJoined is emitted when a user joins a room.
type UserJoined struct {
	RoomID uint64
	User   common.Address
}

func (UserJoined) Name() string { return EventUserJoined }

// UserLeft is emitted when a user leaves a room.
type UserLeft struct {
	RoomID uint64
	User   common.Address
}

func (UserLeft) Name() string { return EventUserLeft }

// ReputationUpdated is emitted when a moderator adjusts a user's reputation.
// The new reputation is carried as a ciphertext; it is never revealed on-chain.
type ReputationUpdated struct {
	User       common.Address
	Reputation []byte
}

func (ReputationUpdated) Name() string { return EventReputationUpdated }
