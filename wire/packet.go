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

package wire

import (
	"github.com/google/uuid"
	"github.com/pollinet/pollinet-core/common"
	"github.com/pollinet/pollinet-core/params"
)

// PacketType identifies a MeshPacket's payload semantics.
type PacketType uint8

const (
	PacketPing             PacketType = 0
	PacketPong             PacketType = 1
	PacketTxFragment       PacketType = 2
	PacketTxAck            PacketType = 3
	PacketTopologyQuery    PacketType = 4
	PacketTopologyResponse PacketType = 5
	PacketText             PacketType = 6
)

func validPacketType(t PacketType) bool {
	return t <= PacketText
}

// MeshPacket is the flood-routing envelope carried on top of fragments.
type MeshPacket struct {
	Type     PacketType
	Version  uint8
	TTL      uint8
	HopCount uint8
	MsgID    [16]byte
	SenderID [16]byte
	Payload  []byte
}

// NewOriginPacket builds a packet as it looks leaving its originating
// device: ttl = InitialTTL, hop_count = 0, a fresh random msg_id.
func NewOriginPacket(typ PacketType, sender [16]byte, payload []byte) MeshPacket {
	id, _ := uuid.NewRandom()
	var msgID [16]byte
	copy(msgID[:], id[:])
	return MeshPacket{
		Type:     typ,
		Version:  params.ProtocolVersion,
		TTL:      params.InitialTTL,
		HopCount: 0,
		MsgID:    msgID,
		SenderID: sender,
		Payload:  payload,
	}
}

// WithHop returns a copy of p as it looks after one more relay hop:
// ttl strictly decreases, hop_count strictly increases.
func (p MeshPacket) WithHop() MeshPacket {
	hopped := p
	if hopped.TTL > 0 {
		hopped.TTL--
	}
	hopped.HopCount++
	return hopped
}

// CanForward reports whether p still has budget to be re-broadcast.
func (p MeshPacket) CanForward() bool {
	return p.TTL > 0 && p.HopCount < params.MaxHops
}

const packetHeaderSize = params.MeshHeaderSize + params.MeshMsgIDSize + params.MeshSenderIDSize

// EncodePacket serializes p per spec §6:
// type[u8] | version[u8] | ttl[u8] | hop_count[u8] | reserved[6]=0 | msg_id[16] | sender_id[16] | payload.
func EncodePacket(p MeshPacket) []byte {
	buf := make([]byte, packetHeaderSize+len(p.Payload))
	buf[0] = byte(p.Type)
	buf[1] = p.Version
	buf[2] = p.TTL
	buf[3] = p.HopCount
	// bytes 4..9 are the zeroed reserved field.
	off := params.MeshHeaderSize
	copy(buf[off:], p.MsgID[:])
	off += params.MeshMsgIDSize
	copy(buf[off:], p.SenderID[:])
	off += params.MeshSenderIDSize
	copy(buf[off:], p.Payload)
	return buf
}

// DecodePacket parses a wire-encoded MeshPacket.
func DecodePacket(b []byte) (MeshPacket, error) {
	if len(b) < packetHeaderSize {
		return MeshPacket{}, common.ErrMalformedHeader
	}
	typ := PacketType(b[0])
	if !validPacketType(typ) {
		return MeshPacket{}, common.ErrUnknownType
	}
	version := b[1]
	if version != params.ProtocolVersion {
		return MeshPacket{}, common.ErrVersionUnsupported
	}
	for _, reserved := range b[4:params.MeshHeaderSize] {
		if reserved != 0 {
			return MeshPacket{}, common.ErrMalformedHeader
		}
	}
	if len(b)-packetHeaderSize > params.MaxMeshPayload {
		return MeshPacket{}, common.ErrLengthMismatch
	}
	p := MeshPacket{
		Type:     typ,
		Version:  version,
		TTL:      b[2],
		HopCount: b[3],
	}
	off := params.MeshHeaderSize
	copy(p.MsgID[:], b[off:off+params.MeshMsgIDSize])
	off += params.MeshMsgIDSize
	copy(p.SenderID[:], b[off:off+params.MeshSenderIDSize])
	off += params.MeshSenderIDSize
	p.Payload = append([]byte(nil), b[off:]...)
	return p, nil
}
