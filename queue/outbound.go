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

// Package queue implements the four persisted queues and the submission
// dedup set behind the queue manager (§4.6): outbound (priority),
// received (FIFO), retry (indexed by next_retry_at), and confirmation
// (FIFO), plus the SubmittedHashSet.
package queue

import (
	"sync"

	"github.com/pollinet/pollinet-core/common"
	"github.com/pollinet/pollinet-core/log"
	"github.com/pollinet/pollinet-core/params"
	"github.com/pollinet/pollinet-core/wire"
)

// Priority is an outbound item's relative urgency.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// OutboundItem is a transaction queued for fragmentation and BLE emission.
type OutboundItem struct {
	TxID      common.TxID
	TxBytes   []byte
	Fragments []wire.Fragment
	Priority  Priority
}

// OutboundQueue is three FIFO sub-queues (HIGH, NORMAL, LOW); Pop drains
// HIGH fully before NORMAL, NORMAL before LOW.
type OutboundQueue struct {
	mu      sync.Mutex
	high    []OutboundItem
	normal  []OutboundItem
	low     []OutboundItem
	log     *log.Logger
	dropped int
}

// NewOutboundQueue constructs an empty outbound priority queue.
func NewOutboundQueue() *OutboundQueue {
	return &OutboundQueue{log: log.New("queue.outbound")}
}

func (q *OutboundQueue) subqueue(p Priority) *[]OutboundItem {
	switch p {
	case PriorityHigh:
		return &q.high
	case PriorityNormal:
		return &q.normal
	default:
		return &q.low
	}
}

// Push inserts item at the tail of its priority sub-queue. On overflow
// (total depth >= MAX_OUTBOUND_TX) the oldest item in the lowest
// non-empty priority sub-queue is dropped to make room.
func (q *OutboundQueue) Push(item OutboundItem) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.depthLocked() >= params.MaxOutboundTx {
		q.dropLowestOldestLocked()
	}
	sub := q.subqueue(item.Priority)
	*sub = append(*sub, item)
}

func (q *OutboundQueue) depthLocked() int {
	return len(q.high) + len(q.normal) + len(q.low)
}

func (q *OutboundQueue) dropLowestOldestLocked() {
	for _, sub := range []*[]OutboundItem{&q.low, &q.normal, &q.high} {
		if len(*sub) > 0 {
			*sub = (*sub)[1:]
			q.dropped++
			q.log.Warn("Outbound queue full, dropped lowest-priority oldest item")
			return
		}
	}
}

// Pop removes and returns the head item: all of HIGH, then all of
// NORMAL, then all of LOW.
func (q *OutboundQueue) Pop() (OutboundItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, sub := range []*[]OutboundItem{&q.high, &q.normal, &q.low} {
		if len(*sub) > 0 {
			item := (*sub)[0]
			*sub = (*sub)[1:]
			return item, true
		}
	}
	return OutboundItem{}, false
}

// Depth returns the combined length of all three sub-queues.
func (q *OutboundQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.depthLocked()
}

// Dropped returns the cumulative count of overflow-dropped items.
func (q *OutboundQueue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Snapshot returns a shallow copy of every queued item, HIGH first, for
// persistence (§4.9).
func (q *OutboundQueue) Snapshot() []OutboundItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]OutboundItem, 0, q.depthLocked())
	out = append(out, q.high...)
	out = append(out, q.normal...)
	out = append(out, q.low...)
	return out
}

// Restore replaces the queue's contents from a persisted snapshot,
// re-sorting each item into its recorded priority sub-queue.
func (q *OutboundQueue) Restore(items []OutboundItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.high, q.normal, q.low = nil, nil, nil
	for _, item := range items {
		sub := q.subqueue(item.Priority)
		*sub = append(*sub, item)
	}
}
