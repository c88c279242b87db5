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
	"encoding/binary"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/pollinet/pollinet-core/common"
	"github.com/pollinet/pollinet-core/log"
	"github.com/pollinet/pollinet-core/params"
)

// SubmittedHashSet tracks transaction ids already submitted to the RPC
// endpoint, so duplicate reassemblies arriving from other mesh paths are
// not resubmitted. Entries are bounded by SUBMISSION_DEDUP_TTL.
//
// Unlike the other queues, this set is backed by an embedded LevelDB
// store so it survives a process restart (spec §9 open question,
// resolved in DESIGN.md): without that, a restart immediately after
// submitting, but before the confirmation round-trips the mesh, reopens
// the duplicate-resubmission window.
type SubmittedHashSet struct {
	mu  sync.Mutex
	mem map[common.TxID]time.Time
	db  *leveldb.DB
	log *log.Logger
}

// OpenSubmittedHashSet opens (creating if absent) the LevelDB store at
// dbPath and loads any unexpired entries into memory.
func OpenSubmittedHashSet(dbPath string) (*SubmittedHashSet, error) {
	db, err := leveldb.OpenFile(dbPath, nil)
	if err != nil {
		return nil, common.ErrPersistenceIO
	}
	s := &SubmittedHashSet{
		mem: make(map[common.TxID]time.Time),
		db:  db,
		log: log.New("queue.dedup"),
	}
	if err := s.loadLocked(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SubmittedHashSet) loadLocked() error {
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()
	now := time.Now()
	for iter.Next() {
		key := iter.Key()
		if len(key) != 32 {
			continue
		}
		var txID common.TxID
		copy(txID[:], key)

		val := iter.Value()
		if len(val) != 8 {
			continue
		}
		submittedAt := time.Unix(0, int64(binary.LittleEndian.Uint64(val)))
		if now.Sub(submittedAt) <= params.SubmissionDedupTTL {
			s.mem[txID] = submittedAt
		}
	}
	return iter.Error()
}

// Contains reports whether txID has already been submitted and not yet
// aged out.
func (s *SubmittedHashSet) Contains(txID common.TxID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.mem[txID]
	return ok
}

// Insert records txID as submitted at now, persisting it immediately.
func (s *SubmittedHashSet) Insert(txID common.TxID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(now.UnixNano()))
	if err := s.db.Put(txID[:], buf, nil); err != nil {
		return common.ErrPersistenceIO
	}
	s.mem[txID] = now
	return nil
}

// EvictExpired drops every entry older than SUBMISSION_DEDUP_TTL from
// both the in-memory view and the LevelDB store.
func (s *SubmittedHashSet) EvictExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for txID, submittedAt := range s.mem {
		if now.Sub(submittedAt) > params.SubmissionDedupTTL {
			delete(s.mem, txID)
			if err := s.db.Delete(txID[:], nil); err != nil {
				s.log.Warn("Failed to evict expired dedup entry", "tx_id", txID, "err", err)
			}
		}
	}
}

// Remove drops txID unconditionally, for clear_transaction.
func (s *SubmittedHashSet) Remove(txID common.TxID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.mem, txID)
	if err := s.db.Delete(txID[:], nil); err != nil {
		s.log.Warn("Failed to remove dedup entry", "tx_id", txID, "err", err)
	}
}

// Len returns the current number of live (non-expired) entries.
func (s *SubmittedHashSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mem)
}

// Close releases the underlying LevelDB handle.
func (s *SubmittedHashSet) Close() error {
	return s.db.Close()
}
