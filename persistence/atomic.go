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

// Package persistence implements the atomic, single-writer file stores
// backing the durable-nonce bundle and the four queues (§4.9).
package persistence

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"

	"github.com/pollinet/pollinet-core/common"
)

// AtomicWriteFile writes data to path via a temp-file-write, fsync,
// rename sequence so a crash never leaves a partially-written file in
// path's place.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrPersistenceIO, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", common.ErrPersistenceIO, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", common.ErrPersistenceIO, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrPersistenceIO, err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("%w: %v", common.ErrPersistenceIO, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("%w: %v", common.ErrPersistenceIO, err)
	}
	return nil
}

// ReadFile loads path's bytes, wrapping a missing or unreadable file in
// common.ErrPersistenceIO.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrPersistenceIO, err)
	}
	return data, nil
}

// ReadFileMapped memory-maps path read-only instead of copying its
// entire contents onto the heap. bundle.json/queues.bin can grow large
// on a device with many pending fragments; on memory-constrained
// hardware (spec §2) the caller can choose this path over ReadFile. The
// returned unmap function must be called once done with the bytes.
func ReadFileMapped(path string) ([]byte, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", common.ErrPersistenceIO, err)
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("%w: %v", common.ErrPersistenceIO, err)
	}
	unmap := func() error {
		if err := m.Unmap(); err != nil {
			f.Close()
			return fmt.Errorf("%w: %v", common.ErrPersistenceIO, err)
		}
		return f.Close()
	}
	return []byte(m), unmap, nil
}

// WriterLock is the single-writer invariant from §5: "the bundle file
// and queues file are single-writer; readers outside the worker are
// forbidden." It flocks a sentinel file under storage_directory for the
// process's lifetime.
type WriterLock struct {
	file *os.File
}

// AcquireWriterLock takes an exclusive, non-blocking flock on
// storageDir/.pollinet.lock. It fails immediately if another process
// (or another WriterLock in this process) already holds it.
func AcquireWriterLock(storageDir string) (*WriterLock, error) {
	if err := os.MkdirAll(storageDir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrPersistenceIO, err)
	}
	lockPath := filepath.Join(storageDir, ".pollinet.lock")
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrPersistenceIO, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: storage directory already locked by another writer: %v", common.ErrPersistenceIO, err)
	}
	return &WriterLock{file: f}, nil
}

// Release drops the flock and closes the sentinel file.
func (w *WriterLock) Release() error {
	if w == nil || w.file == nil {
		return nil
	}
	if err := unix.Flock(int(w.file.Fd()), unix.LOCK_UN); err != nil {
		w.file.Close()
		return fmt.Errorf("%w: %v", common.ErrPersistenceIO, err)
	}
	return w.file.Close()
}
