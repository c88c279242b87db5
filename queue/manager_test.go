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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerQueueTransactionFragmentsAndEnqueues(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)
	defer m.Close()

	txBytes := make([]byte, 60)
	copy(txBytes, "queued through the manager facade for fragmentation")
	txID := m.QueueTransaction(txBytes, 20, PriorityHigh)

	item, ok := m.Outbound.Pop()
	require.True(t, ok)
	assert.Equal(t, txID, item.TxID)
	assert.Greater(t, len(item.Fragments), 1)
}

func TestManagerClearTransactionPurgesRetryAndDedup(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)
	defer m.Close()

	txBytes := []byte("clear me")
	txID := m.QueueTransaction(txBytes, 20, PriorityNormal)
	m.Retry.Push(txID, txBytes, time.Now())
	require.NoError(t, m.Dedup.Insert(txID, time.Now()))

	m.ClearTransaction(txID)

	assert.Equal(t, 0, m.Retry.Depth())
	assert.False(t, m.Dedup.Contains(txID))
}

func TestManagerCleanupEvictsExpiredDedup(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)
	defer m.Close()

	var txID [32]byte
	txID[0] = 9
	past := time.Now().Add(-time.Hour)
	require.NoError(t, m.Dedup.Insert(txID, past))

	m.Cleanup(time.Now())
	assert.False(t, m.Dedup.Contains(txID))
}
