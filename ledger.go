// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lockchat

import (
	"context"

	"github.com/luxfi/geth/common"
)

// Contract function names on the chat contract surface.
const (
	FnCreateChatRoom    = "createChatRoom"
	FnSendMessage       = "sendMessage"
	FnJoinRoom          = "joinRoom"
	FnLeaveRoom         = "leaveRoom"
	FnCreateUserProfile = "createUserProfile"
	FnGetRoomInfo       = "getRoomInfo"
	FnGetUserProfile    = "getUserProfile"
	FnUpdateReputation  = "updateReputation"
	FnDeactivateRoom    = "deactivateRoom"
)

// Receipt is the confirmation record of a submitted transaction, carrying
// the events the contract emitted during execution, already decoded.
type Receipt struct {
	TxHash common.Hash
	Events []Event
}

// FindEvent returns the first event in the receipt with the given name.
func (r *Receipt) FindEvent(name string) (Event, bool) {
	for _, ev := range r.Events {
		if ev.Name() == name {
			return ev, true
		}
	}
	return nil, false
}

// Subscription is an active event listener registration. Unsubscribe is
// consumed exactly once at teardown; calling it again is a no-op.
type Subscription interface {
	Unsubscribe()
}

// Ledger is the capability the session uses to interact with the chain. A
// production implementation speaks to a real node (see package evm); a
// deterministic in-memory implementation backs tests and demos. Business
// logic never branches on which one it holds.
//
// Submit broadcasts a signed transaction invoking fn and returns its hash;
// once submitted, a transaction is not revocable. AwaitConfirmation blocks
// until the transaction is confirmed, the ledger reports a revert, or ctx
// expires; abandoning the wait does not abort the transaction. Query is a
// read-only call with no transaction and no confirmation wait.
type Ledger interface {
	Submit(ctx context.Context, fn string, args ...interface{}) (common.Hash, error)
	AwaitConfirmation(ctx context.Context, txHash common.Hash) (*Receipt, error)
	Query(ctx context.Context, fn string, args ...interface{}) ([]interface{}, error)
	Subscribe(eventName string, callback func(Event)) (Subscription, error)

	// ContractAddress is the chat contract this ledger client is bound to.
	ContractAddress() common.Address

	// SenderAddress is the identity submitting transactions.
	SenderAddress() common.Address
}
