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

package persistence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/snappy"

	"github.com/pollinet/pollinet-core/common"
	"github.com/pollinet/pollinet-core/queue"
)

// queueFileMagic identifies a queues.bin file: "PNQ1" followed by a
// version byte, ahead of a snappy-compressed JSON body. The magic/version
// prefix is never compressed, so a corrupt or truncated file is
// rejected before the decompressor ever runs.
var queueFileMagic = [4]byte{'P', 'N', 'Q', '1'}

const queueFileVersion = 1

// queueSnapshot is the on-disk shape of queues.bin: one section per
// queue owned by queue.Manager.
type queueSnapshot struct {
	Outbound []queue.OutboundItem     `json:"outbound"`
	Received []queue.ReceivedItem     `json:"received"`
	Retry    []queue.RetryItem        `json:"retry"`
	Confirm  []queue.ConfirmationItem `json:"confirm"`
}

// QueueStore persists a queue.Manager's four in-memory queues to
// storage_directory/queues.bin (§4.9). The SubmittedHashSet is not part
// of this file: it already persists itself incrementally to its own
// LevelDB store (see queue.SubmittedHashSet).
type QueueStore struct {
	path string
}

// NewQueueStore returns a store writing to storageDir/queues.bin.
func NewQueueStore(storageDir string) *QueueStore {
	return &QueueStore{path: filepath.Join(storageDir, "queues.bin")}
}

// Save snapshots every queue in m and writes them atomically.
func (s *QueueStore) Save(m *queue.Manager) error {
	snap := queueSnapshot{
		Outbound: m.Outbound.Snapshot(),
		Received: m.Received.Snapshot(),
		Retry:    m.Retry.Snapshot(),
		Confirm:  m.Confirm.Snapshot(),
	}
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrPersistenceIO, err)
	}

	var buf bytes.Buffer
	buf.Write(queueFileMagic[:])
	buf.WriteByte(queueFileVersion)
	buf.Write(snappy.Encode(nil, body))

	return AtomicWriteFile(s.path, buf.Bytes(), 0o600)
}

// Load reads storage_directory/queues.bin, if present, and restores its
// contents into m. A missing file is not an error: it means this is the
// first run and every queue starts empty.
func (s *QueueStore) Load(m *queue.Manager) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: %v", common.ErrPersistenceIO, err)
	}
	return decodeQueueSnapshot(data, m)
}

// LoadMapped behaves like Load but memory-maps queues.bin rather than
// copying it onto the heap, for the low-memory path described in
// ReadFileMapped.
func (s *QueueStore) LoadMapped(m *queue.Manager) error {
	if _, err := os.Stat(s.path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: %v", common.ErrPersistenceIO, err)
	}
	data, unmap, err := ReadFileMapped(s.path)
	if err != nil {
		return err
	}
	defer unmap()
	return decodeQueueSnapshot(data, m)
}

func decodeQueueSnapshot(data []byte, m *queue.Manager) error {
	if len(data) < 5 || !bytes.Equal(data[:4], queueFileMagic[:]) {
		return fmt.Errorf("%w: queues.bin missing magic header", common.ErrPersistenceCorrupt)
	}
	version := data[4]
	if version != queueFileVersion {
		return fmt.Errorf("%w: queues.bin version %d unsupported", common.ErrPersistenceCorrupt, version)
	}

	body, err := snappy.Decode(nil, data[5:])
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrPersistenceCorrupt, err)
	}

	var snap queueSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return fmt.Errorf("%w: %v", common.ErrPersistenceCorrupt, err)
	}

	m.Outbound.Restore(snap.Outbound)
	m.Received.Restore(snap.Received)
	m.Retry.Restore(snap.Retry)
	m.Confirm.Restore(snap.Confirm)
	return nil
}
