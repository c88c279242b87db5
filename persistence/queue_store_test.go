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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollinet/pollinet-core/common"
	"github.com/pollinet/pollinet-core/queue"
)

func TestQueueStoreLoadOnMissingFileLeavesQueuesEmpty(t *testing.T) {
	dir := t.TempDir()
	m, err := queue.NewManager(dir)
	require.NoError(t, err)
	defer m.Close()

	s := NewQueueStore(dir)
	require.NoError(t, s.Load(m))
	assert.Equal(t, 0, m.Outbound.Depth())
}

func TestQueueStoreSaveAndLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	m, err := queue.NewManager(dir)
	require.NoError(t, err)
	defer m.Close()

	txBytes := make([]byte, 40)
	copy(txBytes, "persisted across a simulated restart")
	txID := m.QueueTransaction(txBytes, 20, queue.PriorityHigh)

	var confirmed common.TxID
	confirmed[0] = 0xEE
	m.Confirm.Push(queue.ConfirmationItem{TxID: confirmed, Status: queue.ConfirmationSuccess})
	m.Retry.Push(confirmed, txBytes, time.Now())

	s := NewQueueStore(dir)
	require.NoError(t, s.Save(m))

	reloaded, err := queue.NewManager(t.TempDir())
	require.NoError(t, err)
	defer reloaded.Close()
	require.NoError(t, s.Load(reloaded))

	item, ok := reloaded.Outbound.Pop()
	require.True(t, ok)
	assert.Equal(t, txID, item.TxID)
	assert.Greater(t, len(item.Fragments), 0)

	assert.Equal(t, 1, reloaded.Retry.Depth())

	conf, ok := reloaded.Confirm.Pop()
	require.True(t, ok)
	assert.Equal(t, confirmed, conf.TxID)
}

func TestQueueStoreLoadMappedRoundTrips(t *testing.T) {
	dir := t.TempDir()
	m, err := queue.NewManager(dir)
	require.NoError(t, err)
	defer m.Close()

	var txID common.TxID
	txID[0] = 1
	m.Confirm.Push(queue.ConfirmationItem{TxID: txID, Status: queue.ConfirmationSuccess})

	s := NewQueueStore(dir)
	require.NoError(t, s.Save(m))

	reloaded, err := queue.NewManager(t.TempDir())
	require.NoError(t, err)
	defer reloaded.Close()
	require.NoError(t, s.LoadMapped(reloaded))

	conf, ok := reloaded.Confirm.Pop()
	require.True(t, ok)
	assert.Equal(t, txID, conf.TxID)
}

func TestQueueStoreRejectsCorruptMagic(t *testing.T) {
	dir := t.TempDir()
	m, err := queue.NewManager(dir)
	require.NoError(t, err)
	defer m.Close()

	path := filepath.Join(dir, "queues.bin")
	require.NoError(t, os.WriteFile(path, []byte("not a queues file"), 0o600))

	s := NewQueueStore(dir)
	err = s.Load(m)
	require.Error(t, err)
}
