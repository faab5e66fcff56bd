// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lockchat

import "github.com/luxfi/geth/common"

// Sealed is an encrypted field as observed by a client without decryption
// capability. The zero value means the ciphertext was not available to this
// client at all; either way the plaintext is unknown and must never be
// guessed or zero-filled.
type Sealed struct {
	Ciphertext []byte
}

// Present reports whether a ciphertext was observed for the field.
func (s Sealed) Present() bool { return len(s.Ciphertext) > 0 }

func (s Sealed) String() string {
	if !s.Present() {
		return "<requires decryption>"
	}
	return "<encrypted>"
}

// EntryState tags a cached entity with how it was learned.
type EntryState uint8

const (
	// StateConfirmed means the entry was produced by a ledger-emitted event.
	StateConfirmed EntryState = iota

	// StateProvisional means the entry was applied optimistically from a
	// locally observed receipt and the confirming event has not arrived yet.
	StateProvisional

	// StateUnconfirmedTimedOut means no confirming event arrived within the
	// bounded waiting window. The entry must not be trusted as confirmed.
	StateUnconfirmedTimedOut
)

func (s EntryState) String() string {
	switch s {
	case StateConfirmed:
		return "confirmed"
	case StateProvisional:
		return "provisional"
	case StateUnconfirmedTimedOut:
		return "unconfirmed"
	default:
		return "unknown"
	}
}

// Room is the client-side projection of an on-chain chat room. The id is
// ledger-assigned, unique, and never reused. A room transitions
// Active -> Inactive exactly once; there is no reactivation path.
type Room struct {
	ID          uint64
	Name        string
	Description string
	Creator     common.Address

	// Confidential fields, delivered as ciphertexts only.
	Private      Sealed
	Active       Sealed
	MemberCount  Sealed
	MessageCount Sealed

	CreatedAt uint64

	State EntryState
}

// Message is an immutable, confirmed chat message. There is no edit or
// delete operation in this model.
type Message struct {
	ID     uint64
	RoomID uint64
	Sender common.Address

	Content       Sealed
	EncryptedFlag Sealed

	SentAt uint64

	State EntryState
}

// UserProfile is the client-side projection of an on-chain profile. At most
// one profile exists per address.
type UserProfile struct {
	Address  common.Address
	Username string

	Active       Sealed
	MessageCount Sealed
	Reputation   Sealed

	JoinedAt uint64

	State EntryState
}
