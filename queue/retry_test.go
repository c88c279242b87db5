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

	"github.com/pollinet/pollinet-core/common"
	"github.com/pollinet/pollinet-core/params"
)

func TestRetryQueuePopReadyOnlyReturnsDueItems(t *testing.T) {
	q := NewRetryQueue()
	now := time.Now()
	var txID common.TxID
	txID[0] = 1
	q.Push(txID, []byte("tx"), now)

	// NextRetryAt is somewhere within [now, now+base*2^0); it may already
	// be due. Use a window guaranteed to be before any possible delay.
	ready := q.PopReady(now.Add(-time.Millisecond))
	assert.Empty(t, ready)

	ready = q.PopReady(now.Add(params.RetryBase + time.Second))
	require.Len(t, ready, 1)
	assert.Equal(t, txID, ready[0].TxID)
	assert.Equal(t, 0, q.Depth())
}

func TestRetryQueueReinsertExhaustsAfterMaxAttempts(t *testing.T) {
	q := NewRetryQueue()
	now := time.Now()
	var txID common.TxID
	txID[0] = 2
	q.Push(txID, []byte("tx"), now)

	item := q.PopReady(now.Add(time.Hour))[0]
	item.Attempts = params.RetryMaxAttempts - 1 // the next failed attempt crosses the limit
	q.ReinsertAfterAttempt(item, now)

	assert.Equal(t, 0, q.Depth())
	dropped := q.DrainDropped()
	require.Len(t, dropped, 1)
	assert.Equal(t, "RetryExhausted", dropped[0].Reason)
}

func TestRetryQueueReinsertExhaustsAfterMaxAge(t *testing.T) {
	q := NewRetryQueue()
	start := time.Now()
	var txID common.TxID
	txID[0] = 3
	q.Push(txID, []byte("tx"), start)

	item := q.PopReady(start.Add(time.Hour))[0]
	q.ReinsertAfterAttempt(item, start.Add(params.RetryMaxAge+time.Second))

	assert.Equal(t, 0, q.Depth())
	dropped := q.DrainDropped()
	require.Len(t, dropped, 1)
	assert.Equal(t, "RetryExhausted", dropped[0].Reason)
}

func TestRetryQueueOverflowDropsOldest(t *testing.T) {
	q := NewRetryQueue()
	base := time.Now()
	for i := 0; i < params.MaxRetry+5; i++ {
		var txID common.TxID
		txID[0] = byte(i % 256)
		txID[1] = byte(i / 256)
		q.Push(txID, nil, base.Add(time.Duration(i)*time.Millisecond))
	}
	assert.Equal(t, params.MaxRetry, q.Depth())
}

func TestRetryQueuePruneExpiredDropsOldItemsWithoutAnAttempt(t *testing.T) {
	q := NewRetryQueue()
	now := time.Now()
	var stale, fresh common.TxID
	stale[0], fresh[0] = 1, 2
	q.Push(stale, []byte("tx"), now.Add(-params.RetryMaxAge-time.Second))
	q.Push(fresh, []byte("tx"), now)

	q.PruneExpired(now)

	assert.Equal(t, 1, q.Depth())
	snap := q.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, fresh, snap[0].TxID)

	dropped := q.DrainDropped()
	require.Len(t, dropped, 1)
	assert.Equal(t, stale, dropped[0].TxID)
}

func TestRetryQueueRemove(t *testing.T) {
	q := NewRetryQueue()
	now := time.Now()
	var txID common.TxID
	txID[0] = 9
	q.Push(txID, nil, now)
	q.Remove(txID)
	assert.Equal(t, 0, q.Depth())
}
