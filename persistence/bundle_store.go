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

import "path/filepath"

// BundleStore persists the durable-nonce bundle as bundle.json under
// storage_directory, via the atomic tmp-write+fsync+rename sequence.
// It implements nonce.Store.
type BundleStore struct {
	path string
}

// NewBundleStore returns a store rooted at storageDir/bundle.json.
func NewBundleStore(storageDir string) *BundleStore {
	return &BundleStore{path: filepath.Join(storageDir, "bundle.json")}
}

func (s *BundleStore) Load() ([]byte, error) {
	return ReadFile(s.path)
}

func (s *BundleStore) Save(data []byte) error {
	return AtomicWriteFile(s.path, data, 0o600)
}
