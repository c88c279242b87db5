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

package queue

import (
	"sync"

	"github.com/pollinet/pollinet-core/common"
	"github.com/pollinet/pollinet-core/log"
	"github.com/pollinet/pollinet-core/params"
)

// ReceivedItem is a fully reassembled transaction awaiting RPC submission.
type ReceivedItem struct {
	TxID    common.TxID
	TxBytes []byte
}

// ReceivedQueue is a bounded FIFO of reassembled transactions.
type ReceivedQueue struct {
	mu    sync.Mutex
	items []ReceivedItem
	log   *log.Logger
}

// NewReceivedQueue constructs an empty received queue.
func NewReceivedQueue() *ReceivedQueue {
	return &ReceivedQueue{log: log.New("queue.received")}
}

// Push appends item; on overflow (depth >= MAX_RECEIVED) the oldest item
// is dropped.
func (q *ReceivedQueue) Push(item ReceivedItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= params.MaxReceived {
		q.items = q.items[1:]
		q.log.Warn("Received queue full, dropping oldest item")
	}
	q.items = append(q.items, item)
}

// Pop removes and returns the oldest item.
func (q *ReceivedQueue) Pop() (ReceivedItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return ReceivedItem{}, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

func (q *ReceivedQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *ReceivedQueue) Snapshot() []ReceivedItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]ReceivedItem, len(q.items))
	copy(out, q.items)
	return out
}

func (q *ReceivedQueue) Restore(items []ReceivedItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append([]ReceivedItem(nil), items...)
}
