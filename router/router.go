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
	"sync"
	"time"

	"github.com/pollinet/pollinet-core/common"
	"github.com/pollinet/pollinet-core/log"
	"github.com/pollinet/pollinet-core/queue"
	"github.com/pollinet/pollinet-core/reassembly"
	"github.com/pollinet/pollinet-core/wire"
)

// DeliveredMessage is a TX_ACK or TEXT packet addressed to this device,
// surfaced to callers via DrainDelivered.
type DeliveredMessage struct {
	Type     wire.PacketType
	SenderID [16]byte
	Payload  []byte
}

// Neighbor tracks the last time a sender was heard from via a
// TOPOLOGY_QUERY or TOPOLOGY_RESPONSE packet.
type Neighbor struct {
	SenderID [16]byte
	LastSeen time.Time
}

// Metrics summarizes router activity for observability.
type Metrics struct {
	PacketsSeenDuplicate int
	PacketsExpired       int
	PacketsRebroadcast   int
	RateLimitRejections  int
}

// Router implements the mesh router of spec §4.7: seen-message dedup,
// per-sender rate limiting, and TTL-flood dispatch by packet type.
type Router struct {
	mu sync.Mutex

	selfID      [16]byte
	selfAddress common.Pubkey

	seen    *SeenMessageCache
	limiter *PeerRateLimiter
	reasm   *reassembly.Buffer
	recv    *queue.ReceivedQueue

	neighbors map[[16]byte]time.Time
	delivered []DeliveredMessage
	outbound  [][]byte

	seenDuplicate int
	expired       int
	rebroadcast   int

	log *log.Logger
}

// New constructs a Router. selfID identifies this device's own packets
// (so reassembly-completed fragments it originated are not rebroadcast
// back onto the mesh); selfAddress is compared against the addressee
// embedded in TX_ACK/TEXT payloads (first 32 bytes) to decide whether a
// message is "addressed to us" per spec §4.7.
func New(selfID [16]byte, selfAddress common.Pubkey, reasm *reassembly.Buffer, recv *queue.ReceivedQueue) *Router {
	return &Router{
		selfID:      selfID,
		selfAddress: selfAddress,
		seen:        NewSeenMessageCache(),
		limiter:     NewPeerRateLimiter(),
		reasm:       reasm,
		recv:        recv,
		neighbors:   make(map[[16]byte]time.Time),
		log:         log.New("router"),
	}
}

// HandlePacket processes one inbound wire-encoded MeshPacket per the
// spec §4.7 algorithm. Malformed packets are dropped silently
// (core.PushInbound already decodes the envelope before calling here, so
// a decode failure indicates a corrupt or hostile peer).
func (r *Router) HandlePacket(raw []byte, now time.Time) {
	p, err := wire.DecodePacket(raw)
	if err != nil {
		r.log.Debug("dropping malformed mesh packet", "err", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.limiter.Allow(p.SenderID) {
		return
	}

	if r.seen.SeenAndMark(p.MsgID, now) {
		r.seenDuplicate++
		return
	}

	if !p.CanForward() {
		r.expired++
		return
	}

	switch p.Type {
	case wire.PacketTxFragment:
		r.handleFragment(p, now)
	case wire.PacketTxAck, wire.PacketText:
		r.handleAddressed(p)
	case wire.PacketPing:
		r.handlePing(p)
	case wire.PacketPong:
		// No further action: a PONG is terminal, consumed by whichever
		// higher layer correlates it with an outstanding PING.
	case wire.PacketTopologyQuery, wire.PacketTopologyResponse:
		r.neighbors[p.SenderID] = now
	}
}

func (r *Router) handleFragment(p wire.MeshPacket, now time.Time) {
	frag, err := wire.DecodeFragment(p.Payload)
	if err != nil {
		r.log.Debug("dropping malformed fragment payload", "err", err)
		return
	}

	txBytes, complete, err := r.reasm.Push(frag, now)
	if err != nil {
		r.log.Debug("reassembly rejected fragment", "err", err)
	}
	if complete {
		r.recv.Push(queue.ReceivedItem{TxID: frag.TxID, TxBytes: txBytes})
	}

	if p.SenderID != r.selfID {
		r.rebroadcastLocked(p)
	}
}

func (r *Router) handleAddressed(p wire.MeshPacket) {
	if r.addressedToSelf(p.Payload) {
		r.delivered = append(r.delivered, DeliveredMessage{
			Type:     p.Type,
			SenderID: p.SenderID,
			Payload:  append([]byte(nil), p.Payload...),
		})
	}
	if p.SenderID != r.selfID {
		r.rebroadcastLocked(p)
	}
}

func (r *Router) handlePing(p wire.MeshPacket) {
	pong := wire.NewOriginPacket(wire.PacketPong, r.selfID, append([]byte(nil), p.MsgID[:]...))
	r.outbound = append(r.outbound, wire.EncodePacket(pong))
}

func (r *Router) rebroadcastLocked(p wire.MeshPacket) {
	hopped := p.WithHop()
	r.outbound = append(r.outbound, wire.EncodePacket(hopped))
	r.rebroadcast++
}

// addressedToSelf reports whether payload names selfAddress in its
// first 32 bytes. Payloads shorter than a pubkey are never addressed to
// anyone in particular and are treated as broadcast-to-all.
func (r *Router) addressedToSelf(payload []byte) bool {
	if len(payload) < len(r.selfAddress) {
		return true
	}
	var addressee common.Pubkey
	copy(addressee[:], payload[:len(addressee)])
	return addressee == r.selfAddress
}

// DrainOutbound returns and clears packets queued for rebroadcast or
// origination (PONG replies) since the last drain.
func (r *Router) DrainOutbound() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.outbound
	r.outbound = nil
	return out
}

// DrainDelivered returns and clears locally-addressed messages received
// since the last drain.
func (r *Router) DrainDelivered() []DeliveredMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.delivered
	r.delivered = nil
	return out
}

// Neighbors returns a snapshot of senders heard from via topology
// packets.
func (r *Router) Neighbors() []Neighbor {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Neighbor, 0, len(r.neighbors))
	for id, seen := range r.neighbors {
		out = append(out, Neighbor{SenderID: id, LastSeen: seen})
	}
	return out
}

// Metrics reports router counters for observability.
func (r *Router) Metrics() Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Metrics{
		PacketsSeenDuplicate: r.seenDuplicate,
		PacketsExpired:       r.expired,
		PacketsRebroadcast:   r.rebroadcast,
		RateLimitRejections:  r.limiter.TotalRejected(),
	}
}

// CleanupTick implements the "rate-limit window reset" portion of the
// relay worker's periodic cleanup (spec §4.8); seen-cache TTL pruning
// also happens here since both are router-owned state.
func (r *Router) CleanupTick(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiter.Reset()
	r.seen.Purge(now)
}
