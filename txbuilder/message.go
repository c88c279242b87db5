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

// Package txbuilder builds and signs Solana transactions against a
// durable-nonce blockhash (§4.5). The wire shape follows Solana's legacy
// transaction layout (compact-array-prefixed signatures, then a message
// of header + account keys + blockhash + instructions); no Solana SDK
// exists in the example pack, so the shortvec/message encoding is
// hand-written the same way wire/ hand-writes the fragment codec.
package txbuilder

import (
	"encoding/binary"

	"github.com/pollinet/pollinet-core/common"
)

// SystemProgramID is Solana's native System Program, the all-zero pubkey.
var SystemProgramID common.Pubkey

// TokenProgramID is the well-known SPL Token program id placeholder used
// by build_spl_transfer.
var TokenProgramID = common.Pubkey{0x06, 0xdd, 0xf6, 0xe1, 0xd7, 0x65, 0xa1, 0x93, 0xd9, 0xcb, 0xe1, 0x46, 0xce, 0xeb, 0x79, 0xac, 0x1c, 0xb4, 0x85, 0xed, 0x5f, 0x5b, 0x37, 0x91, 0x3a, 0x8c, 0xf5, 0x85, 0x7e, 0xff, 0x00, 0xa9}

// VoteProgramID is the well-known Vote program id placeholder used by build_vote.
var VoteProgramID = common.Pubkey{0x07, 0x61, 0x81, 0xd8, 0x17, 0x98, 0x62, 0x32, 0x86, 0x9c, 0x36, 0xfe, 0x9d, 0x3e, 0xc6, 0x08, 0x3f, 0xc5, 0xd7, 0xc2, 0x1c, 0x1f, 0x5c, 0x5f, 0x2d, 0x19, 0xac, 0xe9, 0xd4, 0x14, 0xc2, 0x78}

const (
	systemInstructionAdvanceNonceAccount uint32 = 4
	systemInstructionTransfer             uint32 = 2
	tokenInstructionTransfer              uint8  = 3
)

// MessageHeader mirrors Solana's three-byte transaction message header.
type MessageHeader struct {
	NumRequiredSignatures uint8
	NumReadonlySigned     uint8
	NumReadonlyUnsigned   uint8
}

// CompiledInstruction references account keys by index into AccountKeys.
type CompiledInstruction struct {
	ProgramIDIndex uint8
	Accounts       []uint8
	Data           []byte
}

// Message is the unsigned body of a transaction: everything that gets
// hashed/signed.
type Message struct {
	Header          MessageHeader
	AccountKeys     []common.Pubkey
	RecentBlockhash common.Hash32
	Instructions    []CompiledInstruction
}

// putCompactU16 appends x using Solana's shortvec (compact-u16) varint
// encoding: 7 bits per byte, high bit set while more bytes follow.
func putCompactU16(buf []byte, x uint16) []byte {
	for {
		b := byte(x & 0x7f)
		x >>= 7
		if x != 0 {
			buf = append(buf, b|0x80)
		} else {
			buf = append(buf, b)
			return buf
		}
	}
}

// Serialize encodes the message per Solana's legacy wire layout:
// header(3) | compact-array(account_keys) | blockhash(32) | compact-array(instructions).
func (m Message) Serialize() []byte {
	buf := make([]byte, 0, 256)
	buf = append(buf, m.Header.NumRequiredSignatures, m.Header.NumReadonlySigned, m.Header.NumReadonlyUnsigned)

	buf = putCompactU16(buf, uint16(len(m.AccountKeys)))
	for _, k := range m.AccountKeys {
		buf = append(buf, k[:]...)
	}

	buf = append(buf, m.RecentBlockhash[:]...)

	buf = putCompactU16(buf, uint16(len(m.Instructions)))
	for _, ix := range m.Instructions {
		buf = append(buf, ix.ProgramIDIndex)
		buf = putCompactU16(buf, uint16(len(ix.Accounts)))
		buf = append(buf, ix.Accounts...)
		buf = putCompactU16(buf, uint16(len(ix.Data)))
		buf = append(buf, ix.Data...)
	}
	return buf
}

// indexOfAccount returns the index of key within keys, appending it if
// not already present (deduping signer/program accounts as Solana does).
func indexOfAccount(keys []common.Pubkey, key common.Pubkey) ([]common.Pubkey, uint8) {
	for i, k := range keys {
		if k == key {
			return keys, uint8(i)
		}
	}
	keys = append(keys, key)
	return keys, uint8(len(keys) - 1)
}

func le64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}
