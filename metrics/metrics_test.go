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

package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollinet/pollinet-core/common"
	"github.com/pollinet/pollinet-core/params"
	"github.com/pollinet/pollinet-core/queue"
	"github.com/pollinet/pollinet-core/reassembly"
	"github.com/pollinet/pollinet-core/router"
)

func newTestComponents(t *testing.T) Components {
	t.Helper()
	m, err := queue.NewManager(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })

	reasm := reassembly.New()
	var selfID [16]byte
	var selfAddr common.Pubkey
	rtr := router.New(selfID, selfAddr, reasm, m.Received)

	return Components{Reassembly: reasm, Router: rtr, Queues: m}
}

func TestRegistryCollectReflectsQueueDepths(t *testing.T) {
	c := newTestComponents(t)
	reg := NewRegistry(c)

	var txID common.TxID
	txID[0] = 1
	c.Queues.Outbound.Push(queue.OutboundItem{TxID: txID})
	c.Queues.Received.Push(queue.ReceivedItem{TxID: txID})

	snap := reg.Collect()
	assert.Equal(t, 1, snap.OutboundDepth)
	assert.Equal(t, 1, snap.ReceivedDepth)
}

func TestRegistryCollectAccumulatesRetryExhaustedAcrossCalls(t *testing.T) {
	c := newTestComponents(t)
	reg := NewRegistry(c)

	var txID common.TxID
	txID[0] = 2
	now := time.Now()
	c.Queues.Retry.Push(txID, []byte("tx"), now)
	item := c.Queues.Retry.PopReady(now.Add(time.Hour))[0]
	item.Attempts = params.RetryMaxAttempts - 1
	c.Queues.Retry.ReinsertAfterAttempt(item, now)

	first := reg.Collect()
	assert.Equal(t, 1, first.RetryExhaustedTotal)

	second := reg.Collect()
	assert.Equal(t, 1, second.RetryExhaustedTotal, "must not double count once drained")
}

func TestRegistryRecordDuplicateSubmissionIncrementsCounter(t *testing.T) {
	c := newTestComponents(t)
	reg := NewRegistry(c)

	reg.RecordDuplicateSubmission()
	reg.RecordDuplicateSubmission()

	assert.Equal(t, 2, reg.Collect().DuplicateSubmissions)
}

func TestMemoryReportProducesNonEmptyString(t *testing.T) {
	c := newTestComponents(t)
	report := MemoryReport(c)
	assert.NotEmpty(t, report)
}
