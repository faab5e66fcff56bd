// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lockchat

import (
	"context"
	"sync"
	"testing"
	"time"

	log "github.com/luxfi/log"
	"github.com/stretchr/testify/require"
)

// recordingLedger tracks subscription registrations, optionally failing
// after a number of successes.
type recordingLedger struct {
	Ledger

	mu           sync.Mutex
	subscribed   []string
	unsubscribed int
	failAfter    int // 0 means never fail
}

func (l *recordingLedger) Subscribe(eventName string, callback func(Event)) (Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failAfter > 0 && len(l.subscribed) >= l.failAfter {
		return nil, errSubscribeFailed
	}
	l.subscribed = append(l.subscribed, eventName)
	return &recordingSub{ledger: l}, nil
}

var errSubscribeFailed = &Error{Code: ErrCodeRevert, Message: "subscribe failed"}

type recordingSub struct {
	once   sync.Once
	ledger *recordingLedger
}

func (s *recordingSub) Unsubscribe() {
	s.once.Do(func() {
		s.ledger.mu.Lock()
		defer s.ledger.mu.Unlock()
		s.ledger.unsubscribed++
	})
}

func TestSubscriptionManagerStartRegistersAllEvents(t *testing.T) {
	require := require.New(t)

	ledger := &recordingLedger{}
	manager := NewSubscriptionManager(log.NewNoOpLogger(), ledger, NewStateCache(time.Minute))

	require.NoError(manager.Start())
	require.ElementsMatch(EventNames, ledger.subscribed)

	// Double start is a caller error
	require.ErrorIs(manager.Start(), errAlreadyStarted)

	manager.Close()
	require.Equal(len(EventNames), ledger.unsubscribed)

	// Close is idempotent
	manager.Close()
	require.Equal(len(EventNames), ledger.unsubscribed)
}

func TestSubscriptionManagerRollsBackPartialStart(t *testing.T) {
	require := require.New(t)

	ledger := &recordingLedger{failAfter: 2}
	manager := NewSubscriptionManager(log.NewNoOpLogger(), ledger, NewStateCache(time.Minute))

	require.Error(manager.Start())
	require.Equal(2, ledger.unsubscribed)

	// A failed start leaves the manager restartable
	ledger.failAfter = 0
	ledger.subscribed = nil
	ledger.unsubscribed = 0
	require.NoError(manager.Start())
	require.ElementsMatch(EventNames, ledger.subscribed)
	manager.Close()
}

func TestSubscriptionManagerForwardsToCache(t *testing.T) {
	require := require.New(t)

	mem := NewMemoryLedger(testContract, testSender)
	cache := NewStateCache(time.Minute)
	manager := NewSubscriptionManager(log.NewNoOpLogger(), mem, cache)
	require.NoError(manager.Start())
	defer manager.Close()

	gateway := LocalGateway{}
	enc, err := gateway.Encrypt(context.Background(), Bool(false), testContract, testSender)
	require.NoError(err)
	_, err = mem.Submit(context.Background(), FnCreateChatRoom, "general", "chat", enc.Ciphertext, enc.Proof)
	require.NoError(err)

	room, ok := cache.Room(1)
	require.True(ok)
	require.Equal("general", room.Name)
	require.Equal(StateConfirmed, room.State)

	// After Close the stream no longer reaches the cache
	manager.Close()
	_, err = mem.Submit(context.Background(), FnCreateChatRoom, "second", "chat", enc.Ciphertext, enc.Proof)
	require.NoError(err)
	_, ok = cache.Room(2)
	require.False(ok)
}
