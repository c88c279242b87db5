// Copyright 2024 The PolliNet Authors
// This file is part of the PolliNet core.
//
// The PolliNet core is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The PolliNet core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the PolliNet core. If not, see <http://www.gnu.org/licenses/>.

package common

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/mr-tron/base58"
)

// TxID is the SHA-256 digest over a complete, signed transaction's wire
// bytes. It is stable across reassembly, dedup, and mesh forwarding.
type TxID [32]byte

// ComputeTxID hashes the full (pre-fragmentation) transaction bytes.
func ComputeTxID(txBytes []byte) TxID {
	return TxID(sha256.Sum256(txBytes))
}

func (id TxID) String() string { return hex.EncodeToString(id[:]) }

func (id TxID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

func (id *TxID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 32 {
		return errors.New("common: invalid TxID hex")
	}
	copy(id[:], b)
	return nil
}

// Pubkey is a Solana ed25519 public key (32 bytes), rendered base58 like
// every other Solana address in the ecosystem.
type Pubkey [32]byte

func (p Pubkey) String() string { return base58.Encode(p[:]) }

func (p Pubkey) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Pubkey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePubkey(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePubkey decodes a base58-encoded Solana public key.
func ParsePubkey(s string) (Pubkey, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return Pubkey{}, err
	}
	if len(b) != 32 {
		return Pubkey{}, errors.New("common: pubkey must be 32 bytes")
	}
	var p Pubkey
	copy(p[:], b)
	return p, nil
}

// Signature is a 64-byte ed25519 signature.
type Signature [64]byte

func (s Signature) String() string { return base58.Encode(s[:]) }

func (s Signature) IsZero() bool {
	for _, b := range s {
		if b != 0 {
			return false
		}
	}
	return true
}

// ParseSignature decodes a base58-encoded ed25519 signature.
func ParseSignature(str string) (Signature, error) {
	b, err := base58.Decode(str)
	if err != nil {
		return Signature{}, err
	}
	if len(b) != 64 {
		return Signature{}, errors.New("common: signature must be 64 bytes")
	}
	var sig Signature
	copy(sig[:], b)
	return sig, nil
}

// Hash32 is a generic 32-byte hash, used for blockhash / nonce values.
type Hash32 [32]byte

func (h Hash32) String() string { return base58.Encode(h[:]) }

// ParseHash32 decodes a base58-encoded 32-byte hash.
func ParseHash32(s string) (Hash32, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return Hash32{}, err
	}
	if len(b) != 32 {
		return Hash32{}, errors.New("common: hash must be 32 bytes")
	}
	var h Hash32
	copy(h[:], b)
	return h, nil
}

// ByteSliceEqual reports whether a and b hold the same bytes, including
// the nil/non-nil distinction, as the teacher's common package does.
func ByteSliceEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	if (a == nil) != (b == nil) {
		return false
	}
	for i, v := range a {
		if v != b[i] {
			return false
		}
	}
	return true
}
