// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lockchat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"
	"github.com/stretchr/testify/require"
)

var (
	testContract = common.HexToAddress("0x0c7a7a7a0000000000000000000000000000c4a7")
	testSender   = common.HexToAddress("0xa11ce00000000000000000000000000000000001")
	testOther    = common.HexToAddress("0xb0b0000000000000000000000000000000000002")
)

func newTestSession(t *testing.T, ledger Ledger, gateway Gateway) *Session {
	t.Helper()
	session, err := NewSession(log.NewNoOpLogger(), gateway, ledger, SessionConfig{
		ConfirmationTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(session.Close)
	return session
}

func TestCreateRoomRoundTrip(t *testing.T) {
	require := require.New(t)

	ledger := NewMemoryLedger(testContract, testSender)
	session := newTestSession(t, ledger, ledger)

	roomID, err := session.CreateRoom(context.Background(), "Team Alpha", "internal", true)
	require.NoError(err)
	require.NotZero(roomID)

	room, err := session.GetRoomInfo(context.Background(), roomID)
	require.NoError(err)
	require.Equal("Team Alpha", room.Name)
	require.Equal("internal", room.Description)
	require.Equal(testSender, room.Creator)
	require.NotZero(room.CreatedAt)

	// Encrypted fields stay sealed until a decryption capability is used
	require.False(room.Private.Present())
	require.False(room.MemberCount.Present())

	// The event stream reconciled the cache
	cached, ok := session.State().Room(roomID)
	require.True(ok)
	require.Equal(StateConfirmed, cached.State)
	require.Equal("Team Alpha", cached.Name)
}

func TestCreateRoomValidation(t *testing.T) {
	require := require.New(t)

	ledger := NewMemoryLedger(testContract, testSender)
	session := newTestSession(t, ledger, ledger)

	_, err := session.CreateRoom(context.Background(), "", "desc", false)
	require.Error(err)

	long := make([]byte, MaxRoomNameLen+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = session.CreateRoom(context.Background(), string(long), "desc", false)
	require.Error(err)
}

// failingGateway fails the nth Encrypt call.
type failingGateway struct {
	inner   Gateway
	failOn  int
	calls   int
	gateErr error
}

func (g *failingGateway) Encrypt(ctx context.Context, value Plaintext, contract, submitter common.Address) (EncryptedInput, error) {
	g.calls++
	if g.calls == g.failOn {
		return EncryptedInput{}, g.gateErr
	}
	return g.inner.Encrypt(ctx, value, contract, submitter)
}

// countingLedger records Submit invocations.
type countingLedger struct {
	Ledger
	mu      sync.Mutex
	submits int
}

func (l *countingLedger) Submit(ctx context.Context, fn string, args ...interface{}) (common.Hash, error) {
	l.mu.Lock()
	l.submits++
	l.mu.Unlock()
	return l.Ledger.Submit(ctx, fn, args...)
}

func TestSendMessagePartialEncryptionAborts(t *testing.T) {
	require := require.New(t)

	mem := NewMemoryLedger(testContract, testSender)
	ledger := &countingLedger{Ledger: mem}
	gateway := &failingGateway{
		inner:   mem,
		failOn:  3, // CreateRoom encrypts once; the flag is the third call
		gateErr: errors.New("prover unavailable"),
	}
	session := newTestSession(t, ledger, gateway)

	roomID, err := session.CreateRoom(context.Background(), "general", "chat", false)
	require.NoError(err)
	submitsAfterCreate := ledger.submits

	// Content encryption succeeds, flag encryption fails: nothing submitted
	_, err = session.SendMessage(context.Background(), roomID, "hello", true)
	require.Equal(ErrCodeEncryption, CodeOf(err))
	require.Equal(submitsAfterCreate, ledger.submits)
}

func TestSendMessageRoomStates(t *testing.T) {
	require := require.New(t)

	ledger := NewMemoryLedger(testContract, testSender)
	session := newTestSession(t, ledger, ledger)

	_, err := session.SendMessage(context.Background(), 42, "hello", true)
	require.Equal(ErrCodeRoomNotFound, CodeOf(err))

	roomID, err := session.CreateRoom(context.Background(), "general", "chat", false)
	require.NoError(err)
	require.NoError(session.DeactivateRoom(context.Background(), roomID))

	_, err = session.SendMessage(context.Background(), roomID, "hello", true)
	require.Equal(ErrCodeRoomInactive, CodeOf(err))
	require.Empty(session.State().RoomMessages(roomID))
}

func TestDeactivateRoomTerminal(t *testing.T) {
	require := require.New(t)

	ledger := NewMemoryLedger(testContract, testSender)
	session := newTestSession(t, ledger, ledger)

	roomID, err := session.CreateRoom(context.Background(), "general", "chat", false)
	require.NoError(err)

	require.NoError(session.DeactivateRoom(context.Background(), roomID))

	// No reactivation path: a second deactivation fails
	err = session.DeactivateRoom(context.Background(), roomID)
	require.Equal(ErrCodeRoomInactive, CodeOf(err))

	// Only the creator may deactivate
	otherSession := newTestSession(t, ledger.WithSender(testOther), ledger)
	otherRoom, err := session.CreateRoom(context.Background(), "second", "chat", false)
	require.NoError(err)
	err = otherSession.DeactivateRoom(context.Background(), otherRoom)
	require.Equal(ErrCodeAuthorization, CodeOf(err))
}

func TestJoinRoomBestEffort(t *testing.T) {
	require := require.New(t)

	ledger := NewMemoryLedger(testContract, testSender)
	session := newTestSession(t, ledger, ledger)

	// Unknown room: false, not an error
	joined, err := session.JoinRoom(context.Background(), 99)
	require.NoError(err)
	require.False(joined)

	roomID, err := session.CreateRoom(context.Background(), "general", "chat", false)
	require.NoError(err)

	otherLedger := ledger.WithSender(testOther)
	otherSession := newTestSession(t, otherLedger, otherLedger)
	joined, err = otherSession.JoinRoom(context.Background(), roomID)
	require.NoError(err)
	require.True(joined)

	// Joining again reverts on-chain and reports false
	joined, err = otherSession.JoinRoom(context.Background(), roomID)
	require.NoError(err)
	require.False(joined)
}

func TestLeaveRoomPropagates(t *testing.T) {
	require := require.New(t)

	ledger := NewMemoryLedger(testContract, testSender)
	session := newTestSession(t, ledger, ledger)

	roomID, err := session.CreateRoom(context.Background(), "general", "chat", false)
	require.NoError(err)

	// Not a member yet
	otherLedger := ledger.WithSender(testOther)
	otherSession := newTestSession(t, otherLedger, otherLedger)
	err = otherSession.LeaveRoom(context.Background(), roomID)
	require.Error(err)
	require.Equal(ErrCodeRevert, CodeOf(err))

	joined, err := otherSession.JoinRoom(context.Background(), roomID)
	require.NoError(err)
	require.True(joined)
	require.NoError(otherSession.LeaveRoom(context.Background(), roomID))
}

func TestCreateUserProfileUniqueness(t *testing.T) {
	require := require.New(t)

	ledger := NewMemoryLedger(testContract, testSender)
	session := newTestSession(t, ledger, ledger)

	require.NoError(session.CreateUserProfile(context.Background(), "alice"))

	err := session.CreateUserProfile(context.Background(), "alice2")
	require.Equal(ErrCodeAlreadyExists, CodeOf(err))

	// The first profile is unchanged
	profile, err := session.GetUserProfile(context.Background(), testSender)
	require.NoError(err)
	require.Equal("alice", profile.Username)
	require.NotZero(profile.JoinedAt)
	require.False(profile.Reputation.Present())

	// The confirmed receipt is the profile's only confirmation; the cached
	// entry must not linger provisional
	cached, ok := session.State().Profile(testSender)
	require.True(ok)
	require.Equal(StateConfirmed, cached.State)
	require.Equal("alice", cached.Username)
}

func TestUpdateReputationAuthorization(t *testing.T) {
	require := require.New(t)

	ledger := NewMemoryLedger(testContract, testSender)
	session := newTestSession(t, ledger, ledger)

	otherLedger := ledger.WithSender(testOther)
	otherSession := newTestSession(t, otherLedger, otherLedger)
	require.NoError(otherSession.CreateUserProfile(context.Background(), "bob"))

	// testSender is the moderator
	require.NoError(session.UpdateReputation(context.Background(), testOther, 5))

	// The emitted event reconciles the sealed reputation into the cache
	cached, ok := session.State().Profile(testOther)
	require.True(ok)
	require.True(cached.Reputation.Present())

	// Everyone else is denied
	err := otherSession.UpdateReputation(context.Background(), testSender, -5)
	require.Equal(ErrCodeAuthorization, CodeOf(err))
}

// stalledLedger never observes confirmations.
type stalledLedger struct {
	Ledger
}

func (l *stalledLedger) AwaitConfirmation(ctx context.Context, txHash common.Hash) (*Receipt, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestConfirmationTimeout(t *testing.T) {
	require := require.New(t)

	mem := NewMemoryLedger(testContract, testSender)
	ledger := &stalledLedger{Ledger: mem}
	session, err := NewSession(log.NewNoOpLogger(), mem, ledger, SessionConfig{
		ConfirmationTimeout: 50 * time.Millisecond,
	})
	require.NoError(err)
	defer session.Close()

	_, err = session.CreateRoom(context.Background(), "general", "chat", false)
	require.Equal(ErrCodeTimeout, CodeOf(err))

	// The transaction's fate is unknown to the caller; re-querying ledger
	// state reveals it actually executed
	room, err := session.GetRoomInfo(context.Background(), 1)
	require.NoError(err)
	require.Equal("general", room.Name)

	// Join treats a confirmation timeout as "did not join"
	joined, err := session.JoinRoom(context.Background(), 1)
	require.NoError(err)
	require.False(joined)
}

// eventlessLedger strips events from receipts, simulating a contract/client
// version skew.
type eventlessLedger struct {
	Ledger
}

func (l *eventlessLedger) AwaitConfirmation(ctx context.Context, txHash common.Hash) (*Receipt, error) {
	receipt, err := l.Ledger.AwaitConfirmation(ctx, txHash)
	if err != nil {
		return nil, err
	}
	return &Receipt{TxHash: receipt.TxHash}, nil
}

func TestProtocolMismatchSurfaced(t *testing.T) {
	require := require.New(t)

	mem := NewMemoryLedger(testContract, testSender)
	session := newTestSession(t, &eventlessLedger{Ledger: mem}, mem)

	_, err := session.CreateRoom(context.Background(), "general", "chat", false)
	require.Equal(ErrCodeProtocolMismatch, CodeOf(err))

	roomID := uint64(1) // executed on-chain despite the missing event
	_, err = session.SendMessage(context.Background(), roomID, "hello", true)
	require.Equal(ErrCodeProtocolMismatch, CodeOf(err))
}

func TestConcurrentSendsDistinctIDs(t *testing.T) {
	require := require.New(t)

	ledger := NewMemoryLedger(testContract, testSender)
	session := newTestSession(t, ledger, ledger)

	roomID, err := session.CreateRoom(context.Background(), "general", "chat", false)
	require.NoError(err)

	const n = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ids  = make(map[uint64]struct{}, n)
		errs []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			messageID, err := session.SendMessage(context.Background(), roomID, "hello", true)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			ids[messageID] = struct{}{}
		}()
	}
	wg.Wait()

	require.Empty(errs)

	require.Len(ids, n)
	for id := range ids {
		require.GreaterOrEqual(id, uint64(1))
		require.LessOrEqual(id, uint64(n))
	}
	require.Len(session.State().RoomMessages(roomID), n)
}

func TestGetRoomInfoUnknownRoom(t *testing.T) {
	require := require.New(t)

	ledger := NewMemoryLedger(testContract, testSender)
	session := newTestSession(t, ledger, ledger)

	_, err := session.GetRoomInfo(context.Background(), 404)
	require.Equal(ErrCodeRoomNotFound, CodeOf(err))
}
