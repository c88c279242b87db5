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

// ConfirmationStatus is the outcome carried back along the mesh to the
// originating device.
type ConfirmationStatus int

const (
	ConfirmationSuccess ConfirmationStatus = iota
	ConfirmationFailed
)

// ConfirmationItem is a submission outcome awaiting mesh relay back to
// its origin.
type ConfirmationItem struct {
	TxID      common.TxID
	Status    ConfirmationStatus
	Signature common.Signature // valid only when Status == ConfirmationSuccess
	Code      string           // failure reason when Status == ConfirmationFailed
}

// ConfirmationQueue is a bounded FIFO of confirmations.
type ConfirmationQueue struct {
	mu    sync.Mutex
	items []ConfirmationItem
	log   *log.Logger
}

// NewConfirmationQueue constructs an empty confirmation queue.
func NewConfirmationQueue() *ConfirmationQueue {
	return &ConfirmationQueue{log: log.New("queue.confirm")}
}

// Push appends item; on overflow (depth >= MAX_CONFIRM) the oldest item
// is dropped.
func (q *ConfirmationQueue) Push(item ConfirmationItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= params.MaxConfirm {
		q.items = q.items[1:]
		q.log.Warn("Confirmation queue full, dropping oldest item")
	}
	q.items = append(q.items, item)
}

// Pop removes and returns the oldest confirmation.
func (q *ConfirmationQueue) Pop() (ConfirmationItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return ConfirmationItem{}, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

func (q *ConfirmationQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *ConfirmationQueue) Snapshot() []ConfirmationItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]ConfirmationItem, len(q.items))
	copy(out, q.items)
	return out
}

func (q *ConfirmationQueue) Restore(items []ConfirmationItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append([]ConfirmationItem(nil), items...)
}
