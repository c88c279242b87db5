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

// Package wire implements the bit-exact encode/decode for the two
// on-the-air structures: transaction Fragments and MeshPackets. The
// layout is fixed by the protocol (little-endian, length-prefixed) and
// is deliberately hand-rolled rather than built on a general codec, so
// that every byte matches the reference layout exactly.
package wire

import (
	"encoding/binary"

	"github.com/pollinet/pollinet-core/common"
	"github.com/pollinet/pollinet-core/params"
)

// FragmentKind identifies a fragment's position within its group.
type FragmentKind uint8

const (
	KindStart    FragmentKind = 0
	KindContinue FragmentKind = 1
	KindEnd      FragmentKind = 2
)

// Fragment is one piece of a fragmented transaction.
type Fragment struct {
	TxID     common.TxID
	Index    uint16
	Total    uint16
	Kind     FragmentKind
	Checksum [32]byte
	Data     []byte
}

// fragmentHeaderSize is the byte length of every field preceding the
// variable-length data: tx_id(32) + index(2) + total(2) + kind(1) + checksum(32) + data_len(4).
const fragmentHeaderSize = 32 + 2 + 2 + 1 + 32 + 4

// EncodeFragment serializes f per the wire layout in spec §6:
// tx_id[32] | index[u16] | total[u16] | kind[u8] | checksum[32] | data_len[u32] | data[data_len].
func EncodeFragment(f Fragment) []byte {
	buf := make([]byte, fragmentHeaderSize+len(f.Data))
	off := 0
	copy(buf[off:], f.TxID[:])
	off += 32
	binary.LittleEndian.PutUint16(buf[off:], f.Index)
	off += 2
	binary.LittleEndian.PutUint16(buf[off:], f.Total)
	off += 2
	buf[off] = byte(f.Kind)
	off++
	copy(buf[off:], f.Checksum[:])
	off += 32
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(f.Data)))
	off += 4
	copy(buf[off:], f.Data)
	return buf
}

// DecodeFragment parses a wire-encoded fragment. No allocation beyond the
// returned Data slice occurs before the header has been fully validated.
func DecodeFragment(b []byte) (Fragment, error) {
	if len(b) < fragmentHeaderSize {
		return Fragment{}, common.ErrMalformedHeader
	}
	var f Fragment
	off := 0
	copy(f.TxID[:], b[off:off+32])
	off += 32
	f.Index = binary.LittleEndian.Uint16(b[off:])
	off += 2
	f.Total = binary.LittleEndian.Uint16(b[off:])
	off += 2
	kind := b[off]
	off++
	if kind > byte(KindEnd) {
		return Fragment{}, common.ErrUnknownType
	}
	f.Kind = FragmentKind(kind)
	copy(f.Checksum[:], b[off:off+32])
	off += 32
	dataLen := binary.LittleEndian.Uint32(b[off:])
	off += 4
	if uint64(off)+uint64(dataLen) != uint64(len(b)) {
		return Fragment{}, common.ErrLengthMismatch
	}
	if f.Total == 0 || f.Total > params.MaxFragmentsPerTx || f.Index >= f.Total {
		return Fragment{}, common.ErrMalformedHeader
	}
	f.Data = append([]byte(nil), b[off:off+int(dataLen)]...)
	return f, nil
}

// Split breaks a transaction into an ordered list of Fragments whose Data
// length never exceeds maxPayload. It is the inverse of reassembly.
func Split(txBytes []byte, checksum [32]byte, txID common.TxID, maxPayload int) []Fragment {
	if maxPayload < params.MinPayload {
		maxPayload = params.MinPayload
	}
	total := (len(txBytes) + maxPayload - 1) / maxPayload
	if total == 0 {
		total = 1
	}
	frags := make([]Fragment, 0, total)
	for i := 0; i < total; i++ {
		start := i * maxPayload
		end := start + maxPayload
		if end > len(txBytes) {
			end = len(txBytes)
		}
		kind := KindContinue
		if i == 0 {
			kind = KindStart
		}
		if i == total-1 {
			kind = KindEnd
		}
		frags = append(frags, Fragment{
			TxID:     txID,
			Index:    uint16(i),
			Total:    uint16(total),
			Kind:     kind,
			Checksum: checksum,
			Data:     txBytes[start:end],
		})
	}
	return frags
}
