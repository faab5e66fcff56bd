// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lockchat

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/math/set"
)

// MemoryLedger is a deterministic in-memory implementation of Ledger and
// Gateway, executing the chat contract surface faithfully: monotonic
// ledger-assigned ids, profile uniqueness, moderator-only reputation
// updates, terminal room deactivation, and event emission to subscribers.
// It backs tests and demo runs; production sessions hold an evm.Client
// behind the same interfaces.
//
// Sealing is transparent by construction: ciphertexts carry the canonical
// plaintext encoding and the proof commits to (ciphertext, contract,
// submitter) so the ledger can verify well-formedness and operate on the
// value the way the real chain's FHE coprocessor would.
type MemoryLedger struct {
	core   *memCore
	sender common.Address
}

type memCore struct {
	lock sync.Mutex

	contract  common.Address
	owner     common.Address
	moderator common.Address

	rooms    map[uint64]*memRoom
	profiles map[common.Address]*memProfile

	nextRoomID    uint64
	nextMessageID uint64
	txCounter     uint64

	results map[common.Hash]*txResult

	subsLock  sync.Mutex
	subs      map[string]map[uint64]func(Event)
	nextSubID uint64
}

type memRoom struct {
	id          uint64
	name        string
	description string
	creator     common.Address
	privateCt   []byte
	active      bool
	members     set.Set[common.Address]
	// Encrypted counters, adjusted homomorphically on-chain.
	memberCount  uint256.Int
	messageCount uint256.Int
	createdAt    uint64
}

type memProfile struct {
	username     string
	active       bool
	messageCount uint256.Int
	reputation   int64
	joinedAt     uint64
}

type txResult struct {
	receipt *Receipt
	err     error
}

// NewMemoryLedger returns a fresh ledger bound to contract, submitting as
// sender. The sender is also the contract owner and moderator; use
// SetModerator to hand the role elsewhere.
func NewMemoryLedger(contract, sender common.Address) *MemoryLedger {
	return &MemoryLedger{
		core: &memCore{
			contract:      contract,
			owner:         sender,
			moderator:     sender,
			rooms:         make(map[uint64]*memRoom),
			profiles:      make(map[common.Address]*memProfile),
			nextRoomID:    1,
			nextMessageID: 1,
			results:       make(map[common.Hash]*txResult),
			subs:          make(map[string]map[uint64]func(Event)),
		},
		sender: sender,
	}
}

// WithSender returns a view over the same chain state submitting as a
// different address, e.g. a second participant in a test.
func (l *MemoryLedger) WithSender(sender common.Address) *MemoryLedger {
	return &MemoryLedger{core: l.core, sender: sender}
}

// SetModerator reassigns the moderator role.
func (l *MemoryLedger) SetModerator(addr common.Address) {
	l.core.lock.Lock()
	defer l.core.lock.Unlock()
	l.core.moderator = addr
}

func (l *MemoryLedger) ContractAddress() common.Address { return l.core.contract }
func (l *MemoryLedger) SenderAddress() common.Address   { return l.sender }

// LocalGateway is a deterministic Gateway producing the transparent sealing
// MemoryLedger verifies. It stands in for a deployment's FHE coprocessor in
// tests and demos.
type LocalGateway struct{}

func (LocalGateway) Encrypt(
	_ context.Context,
	value Plaintext,
	contract common.Address,
	submitter common.Address,
) (EncryptedInput, error) {
	ciphertext := value.Encode()
	if ciphertext == nil {
		return EncryptedInput{}, fmt.Errorf("unsupported plaintext kind %d", value.Kind)
	}
	return EncryptedInput{
		Ciphertext: ciphertext,
		Proof:      sealProof(ciphertext, contract, submitter),
	}, nil
}

// Encrypt implements Gateway so a MemoryLedger can back a session on its own.
func (l *MemoryLedger) Encrypt(
	ctx context.Context,
	value Plaintext,
	contract common.Address,
	submitter common.Address,
) (EncryptedInput, error) {
	return LocalGateway{}.Encrypt(ctx, value, contract, submitter)
}

func sealProof(ciphertext []byte, contract, submitter common.Address) []byte {
	return crypto.Keccak256(ciphertext, contract.Bytes(), submitter.Bytes())
}

func unseal(ciphertext []byte) (Plaintext, bool) {
	if len(ciphertext) < 1 {
		return Plaintext{}, false
	}
	switch PlainKind(ciphertext[0]) {
	case KindBool:
		if len(ciphertext) != 2 {
			return Plaintext{}, false
		}
		return Bool(ciphertext[1] == 1), true
	case KindUint64:
		if len(ciphertext) != 9 {
			return Plaintext{}, false
		}
		return Uint64(binary.BigEndian.Uint64(ciphertext[1:])), true
	case KindInt64:
		if len(ciphertext) != 9 {
			return Plaintext{}, false
		}
		return Int64(int64(binary.BigEndian.Uint64(ciphertext[1:]))), true
	case KindBytes:
		return Bytes(ciphertext[1:]), true
	default:
		return Plaintext{}, false
	}
}

// Submit executes fn immediately and records the outcome under a fresh
// transaction hash. Reverts are not returned here; they surface on
// AwaitConfirmation, mirroring how a real chain reports execution results.
func (l *MemoryLedger) Submit(_ context.Context, fn string, args ...interface{}) (common.Hash, error) {
	l.core.lock.Lock()

	l.core.txCounter++
	var counter [8]byte
	binary.BigEndian.PutUint64(counter[:], l.core.txCounter)
	txHash := common.BytesToHash(crypto.Keccak256(counter[:], []byte(fn), l.sender.Bytes()))

	events, err := l.execute(fn, args)
	l.core.results[txHash] = &txResult{
		receipt: &Receipt{TxHash: txHash, Events: events},
		err:     err,
	}
	l.core.lock.Unlock()

	if err == nil {
		for _, ev := range events {
			l.emit(ev)
		}
	}
	return txHash, nil
}

// AwaitConfirmation reports the recorded outcome of txHash, honoring
// context cancellation so callers can abandon the wait.
func (l *MemoryLedger) AwaitConfirmation(ctx context.Context, txHash common.Hash) (*Receipt, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	l.core.lock.Lock()
	result, ok := l.core.results[txHash]
	l.core.lock.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown transaction %s", txHash)
	}
	if result.err != nil {
		return nil, result.err
	}
	return result.receipt, nil
}

func (l *MemoryLedger) execute(fn string, args []interface{}) ([]Event, error) {
	c := l.core
	now := uint64(time.Now().Unix())

	switch fn {
	case FnCreateChatRoom:
		name, ok0 := arg[string](args, 0)
		description, ok1 := arg[string](args, 1)
		ciphertext, ok2 := arg[[]byte](args, 2)
		proof, ok3 := arg[[]byte](args, 3)
		if !ok0 || !ok1 || !ok2 || !ok3 {
			return nil, revert("invalid arguments to createChatRoom")
		}
		if err := l.verifyProof(ciphertext, proof); err != nil {
			return nil, err
		}
		room := &memRoom{
			id:          c.nextRoomID,
			name:        name,
			description: description,
			creator:     l.sender,
			privateCt:   ciphertext,
			active:      true,
			members:     set.Of(l.sender),
			createdAt:   now,
		}
		room.memberCount.AddUint64(&room.memberCount, 1)
		c.rooms[room.id] = room
		c.nextRoomID++
		return []Event{RoomCreated{RoomID: room.id, Creator: l.sender, RoomName: name}}, nil

	case FnSendMessage:
		roomID, ok0 := arg[uint64](args, 0)
		ciphertext, ok1 := arg[[]byte](args, 1)
		flagCiphertext, ok2 := arg[[]byte](args, 2)
		proof, ok3 := arg[[]byte](args, 3)
		if !ok0 || !ok1 || !ok2 || !ok3 {
			return nil, revert("invalid arguments to sendMessage")
		}
		room, ok := c.rooms[roomID]
		if !ok {
			return nil, revert("room does not exist")
		}
		if !room.active {
			return nil, revert("room is not active")
		}
		if err := l.verifyProof(ciphertext, proof); err != nil {
			return nil, err
		}
		if _, ok := unseal(flagCiphertext); !ok {
			return nil, revert("malformed flag ciphertext")
		}
		messageID := c.nextMessageID
		c.nextMessageID++
		room.messageCount.AddUint64(&room.messageCount, 1)
		if profile, ok := c.profiles[l.sender]; ok {
			profile.messageCount.AddUint64(&profile.messageCount, 1)
		}
		return []Event{MessageSent{MessageID: messageID, RoomID: roomID, Sender: l.sender}}, nil

	case FnJoinRoom:
		roomID, ok := arg[uint64](args, 0)
		if !ok {
			return nil, revert("invalid arguments to joinRoom")
		}
		room, exists := c.rooms[roomID]
		if !exists {
			return nil, revert("room does not exist")
		}
		if !room.active {
			return nil, revert("room is not active")
		}
		if room.members.Contains(l.sender) {
			return nil, revert("already a member")
		}
		room.members.Add(l.sender)
		room.memberCount.AddUint64(&room.memberCount, 1)
		return []Event{UserJoined{RoomID: roomID, User: l.sender}}, nil

	case FnLeaveRoom:
		roomID, ok := arg[uint64](args, 0)
		if !ok {
			return nil, revert("invalid arguments to leaveRoom")
		}
		room, exists := c.rooms[roomID]
		if !exists {
			return nil, revert("room does not exist")
		}
		if !room.members.Contains(l.sender) {
			return nil, revert("not a member")
		}
		room.members.Remove(l.sender)
		room.memberCount.SubUint64(&room.memberCount, 1)
		return []Event{UserLeft{RoomID: roomID, User: l.sender}}, nil

	case FnCreateUserProfile:
		username, ok := arg[string](args, 0)
		if !ok || username == "" {
			return nil, revert("invalid arguments to createUserProfile")
		}
		if _, exists := c.profiles[l.sender]; exists {
			return nil, revert("profile already exists")
		}
		c.profiles[l.sender] = &memProfile{
			username:   username,
			active:     true,
			reputation: 100,
			joinedAt:   now,
		}
		return nil, nil

	case FnUpdateReputation:
		target, ok0 := arg[common.Address](args, 0)
		ciphertext, ok1 := arg[[]byte](args, 1)
		proof, ok2 := arg[[]byte](args, 2)
		if !ok0 || !ok1 || !ok2 {
			return nil, revert("invalid arguments to updateReputation")
		}
		if l.sender != c.moderator {
			return nil, revert("caller is not the moderator")
		}
		profile, exists := c.profiles[target]
		if !exists {
			return nil, revert("profile does not exist")
		}
		if err := l.verifyProof(ciphertext, proof); err != nil {
			return nil, err
		}
		delta, ok := unseal(ciphertext)
		if !ok || delta.Kind != KindInt64 {
			return nil, revert("malformed reputation delta")
		}
		profile.reputation += delta.Int
		return []Event{ReputationUpdated{
			User:       target,
			Reputation: Int64(profile.reputation).Encode(),
		}}, nil

	case FnDeactivateRoom:
		roomID, ok := arg[uint64](args, 0)
		if !ok {
			return nil, revert("invalid arguments to deactivateRoom")
		}
		room, exists := c.rooms[roomID]
		if !exists {
			return nil, revert("room does not exist")
		}
		if l.sender != room.creator && l.sender != c.owner {
			return nil, revert("caller is not authorized to deactivate")
		}
		if !room.active {
			return nil, revert("room is not active")
		}
		room.active = false
		return nil, nil

	default:
		return nil, revert("unknown function " + fn)
	}
}

// Query implements the read-only contract surface.
func (l *MemoryLedger) Query(_ context.Context, fn string, args ...interface{}) ([]interface{}, error) {
	c := l.core
	c.lock.Lock()
	defer c.lock.Unlock()

	switch fn {
	case FnGetRoomInfo:
		roomID, ok := arg[uint64](args, 0)
		if !ok {
			return nil, revert("invalid arguments to getRoomInfo")
		}
		room, exists := c.rooms[roomID]
		if !exists {
			return nil, revert("room does not exist")
		}
		return []interface{}{room.name, room.description, room.creator, room.createdAt}, nil

	case FnGetUserProfile:
		addr, ok := arg[common.Address](args, 0)
		if !ok {
			return nil, revert("invalid arguments to getUserProfile")
		}
		profile, exists := c.profiles[addr]
		if !exists {
			return nil, revert("profile does not exist")
		}
		return []interface{}{profile.username, profile.joinedAt}, nil

	default:
		return nil, revert("unknown function " + fn)
	}
}

// Subscribe registers a callback for eventName and returns its handle.
func (l *MemoryLedger) Subscribe(eventName string, callback func(Event)) (Subscription, error) {
	known := false
	for _, name := range EventNames {
		if name == eventName {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("unknown event %q", eventName)
	}

	c := l.core
	c.subsLock.Lock()
	defer c.subsLock.Unlock()

	if c.subs[eventName] == nil {
		c.subs[eventName] = make(map[uint64]func(Event))
	}
	id := c.nextSubID
	c.nextSubID++
	c.subs[eventName][id] = callback

	return &memSubscription{
		unregister: func() {
			c.subsLock.Lock()
			defer c.subsLock.Unlock()
			delete(c.subs[eventName], id)
		},
	}, nil
}

func (l *MemoryLedger) emit(ev Event) {
	c := l.core
	c.subsLock.Lock()
	callbacks := make([]func(Event), 0, len(c.subs[ev.Name()]))
	for _, cb := range c.subs[ev.Name()] {
		callbacks = append(callbacks, cb)
	}
	c.subsLock.Unlock()

	for _, cb := range callbacks {
		cb(ev)
	}
}

func (l *MemoryLedger) verifyProof(ciphertext, proof []byte) error {
	if _, ok := unseal(ciphertext); !ok {
		return revert("malformed ciphertext")
	}
	expected := sealProof(ciphertext, l.core.contract, l.sender)
	if string(proof) != string(expected) {
		return revert("invalid input proof")
	}
	return nil
}

type memSubscription struct {
	once       sync.Once
	unregister func()
}

func (s *memSubscription) Unsubscribe() {
	s.once.Do(s.unregister)
}

func revert(reason string) error {
	return newError(ErrCodeRevert, reason, nil)
}

// arg extracts args[i] as T.
func arg[T any](args []interface{}, i int) (T, bool) {
	var zero T
	if i >= len(args) {
		return zero, false
	}
	v, ok := args[i].(T)
	if !ok {
		return zero, false
	}
	return v, true
}
