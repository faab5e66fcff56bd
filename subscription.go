// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lockchat

import (
	"errors"
	"sync"

	log "github.com/luxfi/log"
)

var errAlreadyStarted = errors.New("subscription manager already started")

// SubscriptionManager owns the lifecycle of the contract event listeners:
// all event types are registered on Start and every registration handle is
// consumed exactly once on Close. Decoded events are forwarded to the cache
// in delivery order; duplicates are not filtered here, the cache applies
// them idempotently.
type SubscriptionManager struct {
	logger log.Logger
	ledger Ledger
	cache  *StateCache

	lock    sync.Mutex
	started bool
	subs    []Subscription
}

// NewSubscriptionManager returns a manager in the unsubscribed state.
func NewSubscriptionManager(logger log.Logger, ledger Ledger, cache *StateCache) *SubscriptionManager {
	return &SubscriptionManager{
		logger: logger,
		ledger: ledger,
		cache:  cache,
	}
}

// Start registers a decode-and-forward callback for every contract event
// type. Re-subscribing without a prior Close is a caller error. On partial
// failure every registration made so far is rolled back.
func (m *SubscriptionManager) Start() error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.started {
		return errAlreadyStarted
	}

	for _, name := range EventNames {
		sub, err := m.ledger.Subscribe(name, m.cache.Apply)
		if err != nil {
			m.logger.Error(
				"failed to subscribe to contract event",
				log.String("event", name),
				log.Err(err),
			)
			// Roll back the registrations that succeeded
			for _, s := range m.subs {
				s.Unsubscribe()
			}
			m.subs = nil
			return err
		}
		m.subs = append(m.subs, sub)
	}

	m.started = true
	m.logger.Debug("subscribed to contract events", log.Int("count", len(m.subs)))
	return nil
}

// Close unregisters every listener. Safe to call multiple times.
func (m *SubscriptionManager) Close() {
	m.lock.Lock()
	defer m.lock.Unlock()

	for _, sub := range m.subs {
		sub.Unsubscribe()
	}
	m.subs = nil
	m.started = false
}
