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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollinet/pollinet-core/common"
	"github.com/pollinet/pollinet-core/params"
)

func item(id byte, p Priority) OutboundItem {
	var txID common.TxID
	txID[0] = id
	return OutboundItem{TxID: txID, Priority: p}
}

func TestOutboundQueueDrainsHighBeforeNormalBeforeLow(t *testing.T) {
	q := NewOutboundQueue()
	q.Push(item(1, PriorityLow))
	q.Push(item(2, PriorityNormal))
	q.Push(item(3, PriorityHigh))
	q.Push(item(4, PriorityHigh))
	q.Push(item(5, PriorityNormal))

	var order []byte
	for {
		it, ok := q.Pop()
		if !ok {
			break
		}
		order = append(order, it.TxID[0])
	}
	assert.Equal(t, []byte{3, 4, 2, 5, 1}, order)
}

func TestOutboundQueueOverflowDropsLowestPriorityOldest(t *testing.T) {
	q := NewOutboundQueue()
	for i := 0; i < params.MaxOutboundTx; i++ {
		q.Push(item(byte(i%256), PriorityLow))
	}
	require.Equal(t, params.MaxOutboundTx, q.Depth())

	q.Push(item(0xFF, PriorityHigh))
	assert.Equal(t, params.MaxOutboundTx, q.Depth())
	assert.Equal(t, 1, q.Dropped())

	// The high-priority item must still be served first despite the drop.
	it, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, byte(0xFF), it.TxID[0])
}

func TestOutboundQueueSnapshotRestoreRoundTrip(t *testing.T) {
	q := NewOutboundQueue()
	q.Push(item(1, PriorityHigh))
	q.Push(item(2, PriorityLow))

	snap := q.Snapshot()
	restored := NewOutboundQueue()
	restored.Restore(snap)
	assert.Equal(t, q.Depth(), restored.Depth())

	it, ok := restored.Pop()
	require.True(t, ok)
	assert.Equal(t, byte(1), it.TxID[0])
}
