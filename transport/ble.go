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

// Package transport is the host-driven BLE boundary (§4.3). The OS BLE
// stack is external to this module; Transport only produces and consumes
// already-framed bytes and never performs I/O itself.
//
// Inbound bytes are always mesh-enveloped (router owns decoding, TTL
// dispatch, and fragment reassembly per §4.7); Transport's remaining
// responsibility is the outbound side of the boundary — staging
// already-fragmented payloads for the host to drain over BLE writes —
// plus the periodic reassembly sweep, since that timeout is framed as
// part of the transport tick in §4.3.
package transport

import (
	"sync"
	"time"

	"github.com/pollinet/pollinet-core/log"
	"github.com/pollinet/pollinet-core/params"
	"github.com/pollinet/pollinet-core/reassembly"
)

// Metrics mirrors §4.3's metrics() return shape.
type Metrics struct {
	FragmentsBuffered    int
	TransactionsComplete int
	ReassemblyFailures   int
	LastError            error
	UpdatedAt            time.Time
}

// Transport is the single mutex-guarded boundary between host BLE I/O and
// the relay core. No call ever blocks and no lock is held across a
// call-out to the reassembly buffer's event log or the caller.
type Transport struct {
	mu         sync.Mutex
	reassembly *reassembly.Buffer
	outbound   [][]byte
	lastError  error
	updatedAt  time.Time
	log        *log.Logger

	outboundDropped int
}

// New constructs a Transport backed by the given reassembly buffer.
func New(rb *reassembly.Buffer) *Transport {
	return &Transport{
		reassembly: rb,
		log:        log.New("transport"),
		updatedAt:  time.Now(),
	}
}

// QueueOutboundFragments appends already-fragmented payloads to the
// outbound byte queue in index order. Overflow drops the oldest entry
// (FIFO-drop-oldest) and logs a warning, per §4.3's invariant.
func (t *Transport) QueueOutboundFragments(frags [][]byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, f := range frags {
		if len(t.outbound) >= params.MaxOutboundFragments {
			t.outbound = t.outbound[1:]
			t.outboundDropped++
			t.log.Warn("Outbound fragment queue full, dropping oldest")
		}
		t.outbound = append(t.outbound, f)
	}
}

// NextOutbound pops one queued payload whose length is <= maxLen, or
// returns (nil, false) when none fits or the queue is empty.
func (t *Transport) NextOutbound(maxLen int) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, f := range t.outbound {
		if len(f) <= maxLen {
			t.outbound = append(t.outbound[:i], t.outbound[i+1:]...)
			return f, true
		}
	}
	return nil, false
}

// Tick advances time-based state: the reassembly sweep. No BLE I/O
// happens inside Tick. It always returns nil: no frames (such as a PING
// when nothing else is outbound) are synthesized here.
func (t *Transport) Tick(now time.Time) [][]byte {
	t.reassembly.Sweep(now)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.updatedAt = now
	if len(t.outbound) == 0 {
		return nil
	}
	return nil
}

// Metrics reports the subset of §4.3's metrics() owned by this layer,
// folded together with the reassembly buffer's counters.
func (t *Transport) Metrics() Metrics {
	rm := t.reassembly.Metrics()

	t.mu.Lock()
	defer t.mu.Unlock()
	return Metrics{
		FragmentsBuffered:    rm.FragmentsBuffered,
		TransactionsComplete: rm.TransactionsComplete,
		ReassemblyFailures:   rm.ReassemblyFailures,
		LastError:            t.lastError,
		UpdatedAt:            t.updatedAt,
	}
}

// OutboundDepth reports the current outbound fragment queue length, for
// observability and tests.
func (t *Transport) OutboundDepth() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.outbound)
}
