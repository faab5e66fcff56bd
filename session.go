// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lockchat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/lockchat/cache"
	log "github.com/luxfi/log"
)

const (
	// MaxRoomNameLen bounds the plaintext room name.
	MaxRoomNameLen = 64

	defaultConfirmationTimeout = 30 * time.Second
	defaultProvisionalWindow   = time.Minute
	defaultReadCacheTTL        = 10 * time.Second
)

var (
	errEmptyRoomName = errors.New("room name must not be empty")
	errRoomNameLen   = fmt.Errorf("room name exceeds %d bytes", MaxRoomNameLen)
	errEmptyMessage  = errors.New("message content must not be empty")
	errEmptyUsername = errors.New("username must not be empty")
)

// SessionConfig bounds the session's waiting behavior. Zero fields fall back
// to defaults.
type SessionConfig struct {
	// ConfirmationTimeout bounds every transaction-confirmation wait.
	ConfirmationTimeout time.Duration

	// ProvisionalWindow bounds how long an optimistic cache entry may wait
	// for its confirming event before being flagged unconfirmed.
	ProvisionalWindow time.Duration

	// ReadCacheTTL bounds staleness of read-query results served from cache.
	ReadCacheTTL time.Duration
}

func (c *SessionConfig) applyDefaults() {
	if c.ConfirmationTimeout <= 0 {
		c.ConfirmationTimeout = defaultConfirmationTimeout
	}
	if c.ProvisionalWindow <= 0 {
		c.ProvisionalWindow = defaultProvisionalWindow
	}
	if c.ReadCacheTTL <= 0 {
		c.ReadCacheTTL = defaultReadCacheTTL
	}
}

// Session orchestrates plaintext user intent into encrypted on-chain state:
// it encrypts outbound sensitive fields through the gateway, submits exactly
// one transaction per logical operation, interprets receipts and emitted
// events, and keeps a local cache reconciled against the event stream.
//
// A session is safe for concurrent use. Two in-flight operations have no
// guaranteed relative confirmation order; the ledger's serialization is the
// sole consistency mechanism.
type Session struct {
	logger  log.Logger
	gateway Gateway
	ledger  Ledger
	state   *StateCache
	subs    *SubscriptionManager

	confirmationTimeout time.Duration

	roomInfoCache *cache.TTLCache[uint64, *Room]
	profileCache  *cache.TTLCache[common.Address, *UserProfile]
}

// NewSession wires a session over the given capabilities and subscribes to
// the contract event stream. The caller must Close the session to tear the
// subscriptions down.
func NewSession(
	logger log.Logger,
	gateway Gateway,
	ledger Ledger,
	config SessionConfig,
) (*Session, error) {
	config.applyDefaults()

	state := NewStateCache(config.ProvisionalWindow)
	subs := NewSubscriptionManager(logger, ledger, state)
	if err := subs.Start(); err != nil {
		return nil, err
	}

	return &Session{
		logger:              logger,
		gateway:             gateway,
		ledger:              ledger,
		state:               state,
		subs:                subs,
		confirmationTimeout: config.ConfirmationTimeout,
		roomInfoCache:       cache.NewTTLCache[uint64, *Room](config.ReadCacheTTL),
		profileCache:        cache.NewTTLCache[common.Address, *UserProfile](config.ReadCacheTTL),
	}, nil
}

// Close tears down the event subscriptions. Idempotent. In-flight
// confirmation waits are abandoned by their callers' contexts; submitted
// transactions are not revocable and proceed regardless.
func (s *Session) Close() {
	s.subs.Close()
}

// State returns the session's local cache for read access.
func (s *Session) State() *StateCache {
	return s.state
}

// CreateRoom encrypts the privacy flag, submits a room creation transaction,
// and returns the ledger-assigned room id extracted from the RoomCreated
// event in the receipt.
func (s *Session) CreateRoom(ctx context.Context, name, description string, isPrivate bool) (uint64, error) {
	if name == "" {
		return 0, errEmptyRoomName
	}
	if len(name) > MaxRoomNameLen {
		return 0, errRoomNameLen
	}

	encPrivate, err := encryptField(ctx, s.gateway, Bool(isPrivate), s.ledger.ContractAddress(), s.ledger.SenderAddress(), "privacy flag")
	if err != nil {
		return 0, err
	}

	txHash, err := s.ledger.Submit(ctx, FnCreateChatRoom, name, description, encPrivate.Ciphertext, encPrivate.Proof)
	if err != nil {
		return 0, err
	}
	s.logger.Info(
		"submitted room creation",
		log.Stringer("txID", txHash),
		log.String("name", name),
	)

	receipt, err := s.confirm(ctx, txHash)
	if err != nil {
		return 0, err
	}

	ev, ok := receipt.FindEvent(EventRoomCreated)
	if !ok {
		return 0, newError(ErrCodeProtocolMismatch, "transaction confirmed but RoomCreated event absent", nil)
	}
	created := ev.(RoomCreated)
	s.state.ApplyProvisional(created)

	return created.RoomID, nil
}

// SendMessage encrypts the content and the encrypted-content flag as two
// independent gateway calls, then submits a single transaction carrying
// both ciphertexts. Both encryptions must succeed before anything is
// submitted; a failure on either field aborts with no transaction sent.
func (s *Session) SendMessage(ctx context.Context, roomID uint64, content string, encrypted bool) (uint64, error) {
	if content == "" {
		return 0, errEmptyMessage
	}

	contract := s.ledger.ContractAddress()
	submitter := s.ledger.SenderAddress()

	encContent, err := encryptField(ctx, s.gateway, Bytes([]byte(content)), contract, submitter, "message content")
	if err != nil {
		return 0, err
	}
	encFlag, err := encryptField(ctx, s.gateway, Bool(encrypted), contract, submitter, "encrypted-content flag")
	if err != nil {
		return 0, err
	}

	txHash, err := s.ledger.Submit(ctx, FnSendMessage, roomID, encContent.Ciphertext, encFlag.Ciphertext, encContent.Proof)
	if err != nil {
		return 0, classifyRoomRevert(err)
	}
	s.logger.Info(
		"submitted message",
		log.Stringer("txID", txHash),
		log.Uint64("roomID", roomID),
	)

	receipt, err := s.confirm(ctx, txHash)
	if err != nil {
		return 0, classifyRoomRevert(err)
	}

	ev, ok := receipt.FindEvent(EventMessageSent)
	if !ok {
		return 0, newError(ErrCodeProtocolMismatch, "transaction confirmed but MessageSent event absent", nil)
	}
	sent := ev.(MessageSent)
	s.state.ApplyProvisional(sent)

	return sent.MessageID, nil
}

// JoinRoom attempts to join a room. It returns false, not an error, when
// the ledger rejects the transaction or the confirmation wait fails; an
// error indicates an infrastructure fault such as an unreachable endpoint.
// UI flows are expected to retry joins freely.
func (s *Session) JoinRoom(ctx context.Context, roomID uint64) (bool, error) {
	txHash, err := s.ledger.Submit(ctx, FnJoinRoom, roomID)
	if err != nil {
		if IsRejection(err) {
			s.logger.Debug("join rejected", log.Uint64("roomID", roomID), log.Err(err))
			return false, nil
		}
		return false, err
	}

	receipt, err := s.confirm(ctx, txHash)
	if err != nil {
		if IsRejection(err) || CodeOf(err) == ErrCodeTimeout {
			s.logger.Debug("join not confirmed", log.Uint64("roomID", roomID), log.Err(err))
			return false, nil
		}
		return false, err
	}

	if ev, ok := receipt.FindEvent(EventUserJoined); ok {
		s.state.ApplyProvisional(ev.(UserJoined))
	}
	return true, nil
}

// LeaveRoom leaves a room. Unlike JoinRoom, every failure propagates.
func (s *Session) LeaveRoom(ctx context.Context, roomID uint64) error {
	txHash, err := s.ledger.Submit(ctx, FnLeaveRoom, roomID)
	if err != nil {
		return err
	}

	receipt, err := s.confirm(ctx, txHash)
	if err != nil {
		return err
	}

	if ev, ok := receipt.FindEvent(EventUserLeft); ok {
		s.state.ApplyProvisional(ev.(UserLeft))
	}
	return nil
}

// CreateUserProfile registers a profile for the sender's address. Profile
// uniqueness is enforced by the ledger; a duplicate attempt surfaces as an
// Already-Exists error and leaves the first profile unchanged.
func (s *Session) CreateUserProfile(ctx context.Context, username string) error {
	if username == "" {
		return errEmptyUsername
	}

	txHash, err := s.ledger.Submit(ctx, FnCreateUserProfile, username)
	if err != nil {
		return classifyProfileRevert(err)
	}

	if _, err := s.confirm(ctx, txHash); err != nil {
		return classifyProfileRevert(err)
	}

	// No contract event exists for profile creation; the confirmed receipt
	// is the only confirmation the profile will ever get.
	s.state.PutProfile(&UserProfile{
		Address:  s.ledger.SenderAddress(),
		Username: username,
		State:    StateConfirmed,
	})
	return nil
}

// GetRoomInfo queries the publicly decodable room fields. Encrypted fields
// are returned sealed; they require a separate decryption capability and
// are never zero-filled silently.
func (s *Session) GetRoomInfo(ctx context.Context, roomID uint64) (*Room, error) {
	return s.roomInfoCache.Get(roomID, func(id uint64) (*Room, error) {
		values, err := s.ledger.Query(ctx, FnGetRoomInfo, id)
		if err != nil {
			return nil, classifyRoomRevert(err)
		}
		if len(values) < 4 {
			return nil, newError(ErrCodeProtocolMismatch, "getRoomInfo returned short tuple", nil)
		}
		name, _ := values[0].(string)
		description, _ := values[1].(string)
		creator, _ := values[2].(common.Address)
		createdAt, _ := values[3].(uint64)
		return &Room{
			ID:          id,
			Name:        name,
			Description: description,
			Creator:     creator,
			CreatedAt:   createdAt,
			State:       StateConfirmed,
		}, nil
	}, false)
}

// GetUserProfile queries the publicly decodable profile fields for an
// address. Encrypted fields are returned sealed.
func (s *Session) GetUserProfile(ctx context.Context, addr common.Address) (*UserProfile, error) {
	return s.profileCache.Get(addr, func(a common.Address) (*UserProfile, error) {
		values, err := s.ledger.Query(ctx, FnGetUserProfile, a)
		if err != nil {
			return nil, err
		}
		if len(values) < 2 {
			return nil, newError(ErrCodeProtocolMismatch, "getUserProfile returned short tuple", nil)
		}
		username, _ := values[0].(string)
		joinedAt, _ := values[1].(uint64)
		return &UserProfile{
			Address:  a,
			Username: username,
			JoinedAt: joinedAt,
			State:    StateConfirmed,
		}, nil
	}, false)
}

// UpdateReputation encrypts a signed reputation delta and submits it. The
// moderator check is ledger-enforced; a revert surfaces as an Authorization
// error.
func (s *Session) UpdateReputation(ctx context.Context, addr common.Address, delta int64) error {
	encDelta, err := encryptField(ctx, s.gateway, Int64(delta), s.ledger.ContractAddress(), s.ledger.SenderAddress(), "reputation delta")
	if err != nil {
		return err
	}

	txHash, err := s.ledger.Submit(ctx, FnUpdateReputation, addr, encDelta.Ciphertext, encDelta.Proof)
	if err != nil {
		return classifyModeratorRevert(err)
	}

	receipt, err := s.confirm(ctx, txHash)
	if err != nil {
		return classifyModeratorRevert(err)
	}

	if ev, ok := receipt.FindEvent(EventReputationUpdated); ok {
		s.state.ApplyProvisional(ev.(ReputationUpdated))
	}
	return nil
}

// DeactivateRoom performs the terminal Active -> Inactive transition. It
// fails if the caller lacks authorization or the room is already inactive.
func (s *Session) DeactivateRoom(ctx context.Context, roomID uint64) error {
	txHash, err := s.ledger.Submit(ctx, FnDeactivateRoom, roomID)
	if err != nil {
		return classifyRoomRevert(err)
	}

	if _, err := s.confirm(ctx, txHash); err != nil {
		return classifyRoomRevert(err)
	}

	s.logger.Info("room deactivated", log.Uint64("roomID", roomID))
	return nil
}

// confirm waits for the transaction to confirm, bounded by the configured
// timeout. Timeouts are classified distinctly from reverts: on timeout the
// transaction's fate is unknown and the caller must re-query ledger state
// before retrying.
func (s *Session) confirm(ctx context.Context, txHash common.Hash) (*Receipt, error) {
	cctx, cancel := context.WithTimeout(ctx, s.confirmationTimeout)
	defer cancel()

	receipt, err := s.ledger.AwaitConfirmation(cctx, txHash)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn(
				"confirmation wait timed out, transaction fate unknown",
				log.Stringer("txID", txHash),
			)
			return nil, newError(ErrCodeTimeout, "confirmation not observed within bound", err)
		}
		return nil, err
	}
	return receipt, nil
}

// classifyRoomRevert refines a generic revert into Room-Not-Found or
// Room-Inactive when the revert reason identifies one. Errors that already
// carry a specific classification pass through untouched.
func classifyRoomRevert(err error) error {
	var e *Error
	if !errors.As(err, &e) || e.Code != ErrCodeRevert {
		return err
	}
	reason := strings.ToLower(e.Message)
	switch {
	case strings.Contains(reason, "not active"), strings.Contains(reason, "inactive"):
		return newError(ErrCodeRoomInactive, e.Message, e)
	case strings.Contains(reason, "not exist"), strings.Contains(reason, "not found"):
		return newError(ErrCodeRoomNotFound, e.Message, e)
	case strings.Contains(reason, "not authorized"), strings.Contains(reason, "creator"):
		return newError(ErrCodeAuthorization, e.Message, e)
	default:
		return err
	}
}

// classifyProfileRevert maps a createUserProfile revert to Already-Exists,
// the only revert the contract emits for that call.
func classifyProfileRevert(err error) error {
	var e *Error
	if !errors.As(err, &e) || e.Code != ErrCodeRevert {
		return err
	}
	return newError(ErrCodeAlreadyExists, e.Message, e)
}

// classifyModeratorRevert maps an updateReputation revert to Authorization.
func classifyModeratorRevert(err error) error {
	var e *Error
	if !errors.As(err, &e) || e.Code != ErrCodeRevert {
		return err
	}
	return newError(ErrCodeAuthorization, e.Message, e)
}
