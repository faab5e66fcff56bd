// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lockchat

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/luxfi/geth/common"
)

// PlainKind is the declared type of a plaintext submitted for encryption.
// The accompanying proof attests the ciphertext encrypts a value consistent
// with this kind and its range.
type PlainKind uint8

const (
	KindBool PlainKind = iota + 1
	KindUint64
	KindInt64
	KindBytes
)

// Plaintext is a typed value handed to the encryption gateway.
type Plaintext struct {
	Kind  PlainKind
	Bool  bool
	Uint  uint64
	Int   int64
	Bytes []byte
}

// Bool wraps a boolean plaintext.
func Bool(b bool) Plaintext { return Plaintext{Kind: KindBool, Bool: b} }

// Uint64 wraps an unsigned integer plaintext.
func Uint64(u uint64) Plaintext { return Plaintext{Kind: KindUint64, Uint: u} }

// Int64 wraps a signed integer plaintext, e.g. a reputation delta.
func Int64(i int64) Plaintext { return Plaintext{Kind: KindInt64, Int: i} }

// Bytes wraps an opaque byte-string plaintext, e.g. message content.
func Bytes(b []byte) Plaintext { return Plaintext{Kind: KindBytes, Bytes: b} }

// Encode returns a canonical byte representation of the plaintext, used by
// local gateway implementations. Kind byte first, then the value.
func (p Plaintext) Encode() []byte {
	switch p.Kind {
	case KindBool:
		if p.Bool {
			return []byte{byte(KindBool), 1}
		}
		return []byte{byte(KindBool), 0}
	case KindUint64:
		buf := make([]byte, 9)
		buf[0] = byte(KindUint64)
		binary.BigEndian.PutUint64(buf[1:], p.Uint)
		return buf
	case KindInt64:
		buf := make([]byte, 9)
		buf[0] = byte(KindInt64)
		binary.BigEndian.PutUint64(buf[1:], uint64(p.Int))
		return buf
	case KindBytes:
		return append([]byte{byte(KindBytes)}, p.Bytes...)
	default:
		return nil
	}
}

// EncryptedInput is a ciphertext together with its validity proof, ready to
// be attached to a contract call.
type EncryptedInput struct {
	Ciphertext []byte
	Proof      []byte
}

// Valid reports whether both the ciphertext and its proof are present.
func (e EncryptedInput) Valid() bool {
	return len(e.Ciphertext) > 0 && len(e.Proof) > 0
}

// Gateway produces ciphertexts and validity proofs for sensitive fields.
// Implementations are stateless and may be slow; each call is independent
// and callers may encrypt multiple fields concurrently.
type Gateway interface {
	Encrypt(
		ctx context.Context,
		value Plaintext,
		contract common.Address,
		submitter common.Address,
	) (EncryptedInput, error)
}

// encryptField wraps a gateway call, classifying any failure (including a
// structurally invalid result) as an encryption failure so that no
// transaction is attempted afterwards.
func encryptField(
	ctx context.Context,
	gateway Gateway,
	value Plaintext,
	contract common.Address,
	submitter common.Address,
	field string,
) (EncryptedInput, error) {
	input, err := gateway.Encrypt(ctx, value, contract, submitter)
	if err != nil {
		return EncryptedInput{}, newError(ErrCodeEncryption, fmt.Sprintf("failed to encrypt %s", field), err)
	}
	if !input.Valid() {
		return EncryptedInput{}, newError(ErrCodeEncryption, fmt.Sprintf("gateway returned incomplete ciphertext for %s", field), nil)
	}
	return input, nil
}
