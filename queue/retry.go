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
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/pollinet/pollinet-core/common"
	"github.com/pollinet/pollinet-core/log"
	"github.com/pollinet/pollinet-core/params"
)

// RetryItem is a transaction awaiting re-submission, indexed by
// next_retry_at.
type RetryItem struct {
	TxID        common.TxID
	TxBytes     []byte
	Attempts    int
	FirstQueued time.Time
	NextRetryAt time.Time
}

// RetryQueue holds items indexed by next_retry_at and applies the
// backoff/age-out schedule from §4.6.
type RetryQueue struct {
	mu      sync.Mutex
	items   []RetryItem
	log     *log.Logger
	rand    *rand.Rand
	dropped []DroppedRetry
}

// DroppedRetry records a permanently abandoned retry item for metrics.
type DroppedRetry struct {
	TxID   common.TxID
	Reason string // "RetryExhausted" (max attempts or max age) or "QueueFull" (overflow eviction)
}

// NewRetryQueue constructs an empty retry queue with its own backoff PRNG.
func NewRetryQueue() *RetryQueue {
	return &RetryQueue{
		log:  log.New("queue.retry"),
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// nextDelay computes a full-jitter exponential backoff:
// rand(0, base * 2^min(attempts, cap_exp)).
func (q *RetryQueue) nextDelay(attempts int) time.Duration {
	exp := attempts
	if exp > params.RetryCapExponent {
		exp = params.RetryCapExponent
	}
	maxDelay := params.RetryBase * time.Duration(1<<uint(exp))
	if maxDelay <= 0 {
		return 0
	}
	return time.Duration(q.rand.Int63n(int64(maxDelay)))
}

// Push enqueues txBytes for its first retry attempt. On overflow (depth
// >= MAX_RETRY) the oldest item (by FirstQueued) is dropped.
func (q *RetryQueue) Push(txID common.TxID, txBytes []byte, now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= params.MaxRetry {
		q.evictOldestLocked()
	}
	item := RetryItem{
		TxID:        txID,
		TxBytes:     txBytes,
		Attempts:    0,
		FirstQueued: now,
		NextRetryAt: now.Add(q.nextDelay(0)),
	}
	q.items = append(q.items, item)
}

func (q *RetryQueue) evictOldestLocked() {
	if len(q.items) == 0 {
		return
	}
	oldest := 0
	for i, it := range q.items {
		if it.FirstQueued.Before(q.items[oldest].FirstQueued) {
			oldest = i
		}
	}
	q.dropped = append(q.dropped, DroppedRetry{TxID: q.items[oldest].TxID, Reason: "QueueFull"})
	q.items = append(q.items[:oldest], q.items[oldest+1:]...)
	q.log.Warn("Retry queue full, dropping oldest item")
}

// Remove drops txID from the retry queue unconditionally, e.g. on
// successful submission.
func (q *RetryQueue) Remove(txID common.TxID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.items {
		if q.items[i].TxID == txID {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return
		}
	}
}

// PopReady returns all items with NextRetryAt <= now, in chronological
// (NextRetryAt-ascending) order, removing them from the queue. Callers
// whose re-submission attempt fails hand the item back through
// ReinsertAfterAttempt, as the relay worker does.
func (q *RetryQueue) PopReady(now time.Time) []RetryItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	var ready []RetryItem
	var remaining []RetryItem
	for _, it := range q.items {
		if !it.NextRetryAt.After(now) {
			ready = append(ready, it)
		} else {
			remaining = append(remaining, it)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].NextRetryAt.Before(ready[j].NextRetryAt) })
	q.items = remaining
	return ready
}

// ReinsertAfterAttempt re-adds an item to the queue after PopReady
// removed it and a retry attempt failed: it increments Attempts, drops
// the item as RetryExhausted once Attempts reaches RETRY_MAX_ATTEMPTS or
// the item is older than RETRY_MAX_AGE, and otherwise schedules the next
// attempt with a fresh backoff delay.
func (q *RetryQueue) ReinsertAfterAttempt(item RetryItem, now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item.Attempts++
	if item.Attempts >= params.RetryMaxAttempts || now.Sub(item.FirstQueued) > params.RetryMaxAge {
		q.dropped = append(q.dropped, DroppedRetry{TxID: item.TxID, Reason: "RetryExhausted"})
		q.log.Warn("Retry exhausted, dropping item", "tx_id", item.TxID)
		return
	}
	item.NextRetryAt = now.Add(q.nextDelay(item.Attempts))
	q.items = append(q.items, item)
}

// PruneExpired drops every item older than RetryMaxAge without waiting
// for its next scheduled attempt, per the relay worker's periodic
// Cleanup ("retry-queue age-out", spec §4.8).
func (q *RetryQueue) PruneExpired(now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var kept []RetryItem
	for _, it := range q.items {
		if now.Sub(it.FirstQueued) > params.RetryMaxAge {
			q.dropped = append(q.dropped, DroppedRetry{TxID: it.TxID, Reason: "RetryExhausted"})
			continue
		}
		kept = append(kept, it)
	}
	q.items = kept
}

func (q *RetryQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *RetryQueue) DrainDropped() []DroppedRetry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.dropped
	q.dropped = nil
	return out
}

func (q *RetryQueue) Snapshot() []RetryItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]RetryItem, len(q.items))
	copy(out, q.items)
	return out
}

func (q *RetryQueue) Restore(items []RetryItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append([]RetryItem(nil), items...)
}
