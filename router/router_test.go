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

package router

import (
	"crypto/sha256"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollinet/pollinet-core/common"
	"github.com/pollinet/pollinet-core/params"
	"github.com/pollinet/pollinet-core/queue"
	"github.com/pollinet/pollinet-core/reassembly"
	"github.com/pollinet/pollinet-core/wire"
)

func fragmentPacket(t *testing.T, sender [16]byte, txBytes []byte) wire.MeshPacket {
	t.Helper()
	checksum := sha256.Sum256(txBytes)
	var txID common.TxID
	copy(txID[:], txBytes[:32])
	frags := wire.Split(txBytes, checksum, txID, 4096)
	require.Len(t, frags, 1)
	return wire.NewOriginPacket(wire.PacketTxFragment, sender, wire.EncodeFragment(frags[0]))
}

func newTestRouter(selfID [16]byte) (*Router, *reassembly.Buffer, *queue.ReceivedQueue) {
	reasm := reassembly.New()
	recv := queue.NewReceivedQueue()
	var selfAddr common.Pubkey
	return New(selfID, selfAddr, reasm, recv), reasm, recv
}

func TestHandlePacketCompletesReassemblyAndRebroadcastsFromPeer(t *testing.T) {
	var self, peer [16]byte
	self[0], peer[0] = 1, 2

	r, _, recv := newTestRouter(self)
	txBytes := make([]byte, 64)
	copy(txBytes, "a transaction originated by a remote peer on the mesh")
	p := fragmentPacket(t, peer, txBytes)

	r.HandlePacket(wire.EncodePacket(p), time.Now())

	item, ok := recv.Pop()
	require.True(t, ok)
	assert.Equal(t, txBytes, item.TxBytes)

	out := r.DrainOutbound()
	require.Len(t, out, 1)
	hopped, err := wire.DecodePacket(out[0])
	require.NoError(t, err)
	assert.Equal(t, p.TTL-1, hopped.TTL)
	assert.Equal(t, p.HopCount+1, hopped.HopCount)
}

func TestHandlePacketDoesNotRebroadcastSelfOriginatedFragment(t *testing.T) {
	var self [16]byte
	self[0] = 1

	r, _, recv := newTestRouter(self)
	txBytes := make([]byte, 64)
	copy(txBytes, "a transaction this very device originated")
	p := fragmentPacket(t, self, txBytes)

	r.HandlePacket(wire.EncodePacket(p), time.Now())

	_, ok := recv.Pop()
	assert.True(t, ok)
	assert.Empty(t, r.DrainOutbound())
}

func TestHandlePacketDropsDuplicateMessageID(t *testing.T) {
	var self, peer [16]byte
	self[0], peer[0] = 1, 2

	r, _, _ := newTestRouter(self)
	p := wire.NewOriginPacket(wire.PacketPing, peer, nil)
	raw := wire.EncodePacket(p)

	r.HandlePacket(raw, time.Now())
	r.DrainOutbound() // clear the PONG from the first delivery
	r.HandlePacket(raw, time.Now())

	assert.Empty(t, r.DrainOutbound())
	assert.Equal(t, 1, r.Metrics().PacketsSeenDuplicate)
}

func TestHandlePacketDropsExpiredTTL(t *testing.T) {
	var self, peer [16]byte
	self[0], peer[0] = 1, 2

	r, _, _ := newTestRouter(self)
	p := wire.NewOriginPacket(wire.PacketText, peer, make([]byte, 40))
	p.TTL = 0

	r.HandlePacket(wire.EncodePacket(p), time.Now())
	assert.Empty(t, r.DrainOutbound())
	assert.Equal(t, 1, r.Metrics().PacketsExpired)
}

func TestHandlePacketPingEnqueuesPongWithoutRebroadcast(t *testing.T) {
	var self, peer [16]byte
	self[0], peer[0] = 1, 2

	r, _, _ := newTestRouter(self)
	p := wire.NewOriginPacket(wire.PacketPing, peer, nil)

	r.HandlePacket(wire.EncodePacket(p), time.Now())

	out := r.DrainOutbound()
	require.Len(t, out, 1)
	pong, err := wire.DecodePacket(out[0])
	require.NoError(t, err)
	assert.Equal(t, wire.PacketPong, pong.Type)
	assert.Equal(t, self, pong.SenderID)
	assert.Equal(t, p.MsgID[:], pong.Payload)
}

func TestHandlePacketDeliversAddressedTextLocally(t *testing.T) {
	var self, peer [16]byte
	self[0], peer[0] = 1, 2

	r, _, _ := newTestRouter(self)
	var selfAddr common.Pubkey
	selfAddr[0] = 0xAA
	r.selfAddress = selfAddr

	payload := make([]byte, 48)
	copy(payload, selfAddr[:])
	p := wire.NewOriginPacket(wire.PacketText, peer, payload)

	r.HandlePacket(wire.EncodePacket(p), time.Now())

	delivered := r.DrainDelivered()
	require.Len(t, delivered, 1)
	assert.Equal(t, wire.PacketText, delivered[0].Type)
	assert.Len(t, r.DrainOutbound(), 1) // still rebroadcast, a peer originated it
}

func TestHandlePacketTopologyPacketsAreBookkeepingOnly(t *testing.T) {
	var self, peer [16]byte
	self[0], peer[0] = 1, 2

	r, _, _ := newTestRouter(self)
	p := wire.NewOriginPacket(wire.PacketTopologyQuery, peer, nil)

	now := time.Now()
	r.HandlePacket(wire.EncodePacket(p), now)

	neighbors := r.Neighbors()
	require.Len(t, neighbors, 1)
	assert.Equal(t, peer, neighbors[0].SenderID)
	assert.Empty(t, r.DrainOutbound())
}

func TestHandlePacketRateLimitsHighVolumeSender(t *testing.T) {
	var self, peer [16]byte
	self[0], peer[0] = 1, 2

	r, _, _ := newTestRouter(self)
	now := time.Now()
	for i := 0; i < params.MaxPeerRate; i++ {
		p := wire.NewOriginPacket(wire.PacketText, peer, make([]byte, 40))
		r.HandlePacket(wire.EncodePacket(p), now)
	}
	r.DrainOutbound()

	over := wire.NewOriginPacket(wire.PacketText, peer, make([]byte, 40))
	r.HandlePacket(wire.EncodePacket(over), now)

	assert.Equal(t, 1, r.Metrics().RateLimitRejections)
}

func TestCleanupTickResetsRateLimiterAndPurgesSeenCache(t *testing.T) {
	var self, peer [16]byte
	self[0], peer[0] = 1, 2

	r, _, _ := newTestRouter(self)
	now := time.Now()
	for i := 0; i < params.MaxPeerRate; i++ {
		p := wire.NewOriginPacket(wire.PacketText, peer, make([]byte, 40))
		r.HandlePacket(wire.EncodePacket(p), now)
	}
	r.DrainOutbound()

	r.CleanupTick(now.Add(params.SeenCacheTTL + time.Minute))
	assert.Equal(t, 0, r.seen.Len())

	fresh := wire.NewOriginPacket(wire.PacketText, peer, make([]byte, 40))
	r.HandlePacket(wire.EncodePacket(fresh), now)
	assert.Equal(t, 0, r.Metrics().RateLimitRejections)
}
