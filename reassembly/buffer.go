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

// Package reassembly groups inbound fragments by transaction ID into an
// arena indexed by tx_id, emitting a completed transaction once every
// index is present and its checksum verifies.
package reassembly

import (
	"crypto/sha256"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/VictoriaMetrics/fastcache"

	"github.com/pollinet/pollinet-core/common"
	"github.com/pollinet/pollinet-core/log"
	"github.com/pollinet/pollinet-core/params"
	"github.com/pollinet/pollinet-core/wire"
)

// EventKind enumerates the observability events §4.2 names.
type EventKind int

const (
	EventChecksumFailed EventKind = iota
	EventTooManyIncomplete
	EventReassemblyTimeout
)

// Event is an observability record kept in the buffer's event log until
// a caller reads it with DrainEvents.
type Event struct {
	Kind EventKind
	TxID common.TxID
}

// GroupInfo is the read-only introspection record returned by Info.
type GroupInfo struct {
	TxID              common.TxID
	ReceivedIndices    []uint16
	FragmentSizes      map[uint16]int
	TotalBytesReceived int
	Total              uint16
	FirstSeen          time.Time
	LastSeen           time.Time
}

type group struct {
	txID      common.TxID
	total     uint16
	checksum  [32]byte
	fragments map[uint16][]byte
	firstSeen time.Time
	lastSeen  time.Time
}

func newGroup(f wire.Fragment, now time.Time) *group {
	g := &group{
		txID:      f.TxID,
		total:     f.Total,
		checksum:  f.Checksum,
		fragments: make(map[uint16][]byte, f.Total),
		firstSeen: now,
		lastSeen:  now,
	}
	return g
}

func (g *group) complete() bool {
	return uint16(len(g.fragments)) == g.total
}

func (g *group) assemble() []byte {
	out := make([]byte, 0, g.totalBytes())
	for i := uint16(0); i < g.total; i++ {
		out = append(out, g.fragments[i]...)
	}
	return out
}

func (g *group) totalBytes() int {
	n := 0
	for _, d := range g.fragments {
		n += len(d)
	}
	return n
}

// Buffer is the fragment reassembly arena. One Buffer serves an entire
// device; groups are keyed by tx_id.
type Buffer struct {
	mu     sync.Mutex
	groups map[common.TxID]*group
	order  *lru.Cache // tx_id -> struct{}; recency proxy for oldest-last_seen eviction
	bytes  *fastcache.Cache
	events []Event
	log    *log.Logger

	fragmentsBuffered   int
	transactionsComplete int
	reassemblyFailures  int
}

// New constructs an empty reassembly buffer bounded by MAX_INCOMPLETE
// groups and a fastcache byte budget for in-flight fragment data.
func New() *Buffer {
	b := &Buffer{
		groups: make(map[common.TxID]*group),
		bytes:  fastcache.New(params.FragmentByteBudget),
		log:    log.New("reassembly"),
	}
	cache, err := lru.NewWithEvict(params.MaxIncomplete, b.onEvict)
	if err != nil {
		// Only returns an error for a non-positive size, which MaxIncomplete never is.
		panic(err)
	}
	b.order = cache
	return b
}

func (b *Buffer) onEvict(key interface{}, _ interface{}) {
	txID := key.(common.TxID)
	if g, ok := b.groups[txID]; ok {
		b.releaseBytes(g)
		delete(b.groups, txID)
		b.events = append(b.events, Event{Kind: EventTooManyIncomplete, TxID: txID})
		b.log.Warn("Evicted reassembly group", "tx_id", txID)
	}
}

// evictOldestLocked drops the single oldest-last_seen group to bring the
// buffer back under its fastcache byte budget. Caller holds b.mu.
func (b *Buffer) evictOldestLocked() {
	var oldestID common.TxID
	var oldest time.Time
	found := false
	for txID, g := range b.groups {
		if !found || g.lastSeen.Before(oldest) {
			oldestID, oldest, found = txID, g.lastSeen, true
		}
	}
	if !found {
		return
	}
	g := b.groups[oldestID]
	b.releaseBytes(g)
	delete(b.groups, oldestID)
	b.order.Remove(oldestID)
	b.events = append(b.events, Event{Kind: EventTooManyIncomplete, TxID: oldestID})
}

func (b *Buffer) releaseBytes(g *group) {
	for idx := range g.fragments {
		b.bytes.Del(fragmentCacheKey(g.txID, idx))
	}
}

func fragmentCacheKey(txID common.TxID, idx uint16) []byte {
	key := make([]byte, 34)
	copy(key, txID[:])
	key[32] = byte(idx >> 8)
	key[33] = byte(idx)
	return key
}

// Push inserts f into the group for f.TxID, creating one if needed. It
// returns the assembled transaction bytes and true once every index is
// present and the checksum verifies; the group is then removed. On a
// checksum mismatch the group is discarded and an EventChecksumFailed is
// recorded, returned error is common.ErrChecksumFailed.
func (b *Buffer) Push(f wire.Fragment, now time.Time) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	g, ok := b.groups[f.TxID]
	if !ok {
		g = newGroup(f, now)
		b.groups[f.TxID] = g
		b.order.Add(f.TxID, struct{}{}) // may trigger onEvict synchronously
		// onEvict may have deleted a different, unrelated group; re-fetch ours.
		g = b.groups[f.TxID]
		if g == nil {
			// Our own brand-new group was the one evicted (capacity 0 edge case).
			return nil, false, common.ErrTooManyIncomplete
		}
	} else {
		b.order.Get(f.TxID) // touch recency; last_seen update happens below
	}

	if _, had := g.fragments[f.Index]; had {
		b.bytes.Del(fragmentCacheKey(f.TxID, f.Index))
	} else {
		b.fragmentsBuffered++
	}
	g.fragments[f.Index] = f.Data
	b.bytes.Set(fragmentCacheKey(f.TxID, f.Index), f.Data)
	g.lastSeen = now

	var stats fastcache.Stats
	b.bytes.UpdateStats(&stats)
	if stats.BytesSize > params.FragmentByteBudget {
		b.log.Warn("Fragment byte budget exceeded, sweeping oldest groups", "bytes", stats.BytesSize)
		b.evictOldestLocked()
	}

	if !g.complete() {
		return nil, false, nil
	}

	assembled := g.assemble()
	sum := sha256.Sum256(assembled)
	delete(b.groups, f.TxID)
	b.order.Remove(f.TxID)
	b.releaseBytes(g)

	if sum != g.checksum {
		b.reassemblyFailures++
		b.events = append(b.events, Event{Kind: EventChecksumFailed, TxID: f.TxID})
		b.log.Warn("Reassembly checksum mismatch", "tx_id", f.TxID)
		return nil, false, common.ErrChecksumFailed
	}

	b.transactionsComplete++
	return assembled, true, nil
}

// Sweep drops every group whose last_seen is older than
// params.ReassemblyTimeout, recording an EventReassemblyTimeout for each.
func (b *Buffer) Sweep(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for txID, g := range b.groups {
		if now.Sub(g.lastSeen) > params.ReassemblyTimeout {
			b.releaseBytes(g)
			delete(b.groups, txID)
			b.order.Remove(txID)
			b.events = append(b.events, Event{Kind: EventReassemblyTimeout, TxID: txID})
			b.log.Debug("Reassembly group timed out", "tx_id", txID)
		}
	}
}

// ClearTransaction purges all reassembly state for tx_id, per the
// host-invocable clear_transaction operation.
func (b *Buffer) ClearTransaction(txID common.TxID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if g, ok := b.groups[txID]; ok {
		b.releaseBytes(g)
		delete(b.groups, txID)
		b.order.Remove(txID)
	}
}

// DrainEvents returns and clears the buffer's pending observability events.
func (b *Buffer) DrainEvents() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	events := b.events
	b.events = nil
	return events
}

// Metrics mirrors the subset of §4.3's metrics() this component owns.
type Metrics struct {
	FragmentsBuffered    int
	TransactionsComplete int
	ReassemblyFailures   int
}

func (b *Buffer) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Metrics{
		FragmentsBuffered:    b.fragmentsBuffered,
		TransactionsComplete: b.transactionsComplete,
		ReassemblyFailures:   b.reassemblyFailures,
	}
}

// Info returns per-group introspection records, per reassembly_info().
func (b *Buffer) Info() []GroupInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	infos := make([]GroupInfo, 0, len(b.groups))
	for txID, g := range b.groups {
		sizes := make(map[uint16]int, len(g.fragments))
		indices := make([]uint16, 0, len(g.fragments))
		for idx, data := range g.fragments {
			sizes[idx] = len(data)
			indices = append(indices, idx)
		}
		infos = append(infos, GroupInfo{
			TxID:               txID,
			ReceivedIndices:    indices,
			FragmentSizes:      sizes,
			TotalBytesReceived: g.totalBytes(),
			Total:              g.total,
			FirstSeen:          g.firstSeen,
			LastSeen:           g.lastSeen,
		})
	}
	return infos
}
