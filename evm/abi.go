// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package evm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
	"github.com/luxfi/lockchat"
)

// chatContractABI is the ABI of the confidential chat contract surface the
// client consumes. Ciphertexts and input proofs travel as opaque bytes.
const chatContractABI = `[
	{"type":"function","name":"createChatRoom","stateMutability":"nonpayable","inputs":[{"name":"name","type":"string"},{"name":"description","type":"string"},{"name":"encryptedIsPrivate","type":"bytes"},{"name":"inputProof","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"sendMessage","stateMutability":"nonpayable","inputs":[{"name":"roomId","type":"uint256"},{"name":"encryptedContent","type":"bytes"},{"name":"encryptedFlag","type":"bytes"},{"name":"inputProof","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"joinRoom","stateMutability":"nonpayable","inputs":[{"name":"roomId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"leaveRoom","stateMutability":"nonpayable","inputs":[{"name":"roomId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"createUserProfile","stateMutability":"nonpayable","inputs":[{"name":"username","type":"string"}],"outputs":[]},
	{"type":"function","name":"getRoomInfo","stateMutability":"view","inputs":[{"name":"roomId","type":"uint256"}],"outputs":[{"name":"name","type":"string"},{"name":"description","type":"string"},{"name":"creator","type":"address"},{"name":"createdAt","type":"uint256"}]},
	{"type":"function","name":"getUserProfile","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"username","type":"string"},{"name":"joinedAt","type":"uint256"}]},
	{"type":"function","name":"updateReputation","stateMutability":"nonpayable","inputs":[{"name":"user","type":"address"},{"name":"encryptedDelta","type":"bytes"},{"name":"inputProof","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"deactivateRoom","stateMutability":"nonpayable","inputs":[{"name":"roomId","type":"uint256"}],"outputs":[]},
	{"type":"event","name":"RoomCreated","anonymous":false,"inputs":[{"name":"roomId","type":"uint256","indexed":false},{"name":"creator","type":"address","indexed":false},{"name":"name","type":"string","indexed":false}]},
	{"type":"event","name":"MessageSent","anonymous":false,"inputs":[{"name":"messageId","type":"uint256","indexed":false},{"name":"roomId","type":"uint256","indexed":false},{"name":"sender","type":"address","indexed":false}]},
	{"type":"event","name":"UserJoined","anonymous":false,"inputs":[{"name":"roomId","type":"uint256","indexed":false},{"name":"user","type":"address","indexed":false}]},
	{"type":"event","name":"UserLeft","anonymous":false,"inputs":[{"name":"roomId","type":"uint256","indexed":false},{"name":"user","type":"address","indexed":false}]},
	{"type":"event","name":"ReputationUpdated","anonymous":false,"inputs":[{"name":"user","type":"address","indexed":false},{"name":"reputation","type":"bytes","indexed":false}]}
]`

func loadChatABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(chatContractABI))
}

// normalizeArgs converts the session's native argument types to the types
// the ABI packer expects; room and message ids travel as uint256.
func normalizeArgs(args []interface{}) []interface{} {
	normalized := make([]interface{}, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case uint64:
			normalized[i] = new(big.Int).SetUint64(v)
		default:
			normalized[i] = a
		}
	}
	return normalized
}

// normalizeValues converts ABI-decoded values back to the session's native
// types.
func normalizeValues(values []interface{}) []interface{} {
	normalized := make([]interface{}, len(values))
	for i, v := range values {
		switch t := v.(type) {
		case *big.Int:
			normalized[i] = t.Uint64()
		default:
			normalized[i] = v
		}
	}
	return normalized
}

// decodeEvent converts a contract log into a typed event, or (nil, nil) if
// the log does not match any known event.
func (c *Client) decodeEvent(logEntry types.Log) (lockchat.Event, error) {
	if len(logEntry.Topics) == 0 {
		return nil, nil
	}
	var matched *abi.Event
	for i := range c.contractABI.Events {
		ev := c.contractABI.Events[i]
		if ev.ID == logEntry.Topics[0] {
			matched = &ev
			break
		}
	}
	if matched == nil {
		return nil, nil
	}

	values, err := matched.Inputs.Unpack(logEntry.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s log: %w", matched.Name, err)
	}
	values = normalizeValues(values)

	switch matched.Name {
	case lockchat.EventRoomCreated:
		return lockchat.RoomCreated{
			RoomID:   values[0].(uint64),
			Creator:  values[1].(common.Address),
			RoomName: values[2].(string),
		}, nil
	case lockchat.EventMessageSent:
		return lockchat.MessageSent{
			MessageID: values[0].(uint64),
			RoomID:    values[1].(uint64),
			Sender:    values[2].(common.Address),
		}, nil
	case lockchat.EventUserJoined:
		return lockchat.UserJoined{
			RoomID: values[0].(uint64),
			User:   values[1].(common.Address),
		}, nil
	case lockchat.EventUserLeft:
		return lockchat.UserLeft{
			RoomID: values[0].(uint64),
			User:   values[1].(common.Address),
		}, nil
	case lockchat.EventReputationUpdated:
		return lockchat.ReputationUpdated{
			User:       values[0].(common.Address),
			Reputation: values[1].([]byte),
		}, nil
	default:
		return nil, nil
	}
}
