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

package transport

import (
	"crypto/sha256"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollinet/pollinet-core/common"
	"github.com/pollinet/pollinet-core/params"
	"github.com/pollinet/pollinet-core/reassembly"
	"github.com/pollinet/pollinet-core/wire"
)

func encodedFragments(t *testing.T, txBytes []byte, maxPayload int) []wire.Fragment {
	t.Helper()
	sum := sha256.Sum256(txBytes)
	txID := common.ComputeTxID(txBytes)
	return wire.Split(txBytes, sum, txID, maxPayload)
}

func TestQueueAndNextOutboundOrderAndSizeFilter(t *testing.T) {
	tr := New(reassembly.New())
	tr.QueueOutboundFragments([][]byte{
		[]byte("aaaa"),
		[]byte("bbbbbbbb"),
	})

	// NextOutbound scans the queue in order for the first fragment that
	// fits; with maxLen 4 only "aaaa" does.
	got, ok := tr.NextOutbound(4)
	require.True(t, ok)
	assert.Equal(t, []byte("aaaa"), got)

	got, ok = tr.NextOutbound(4)
	assert.False(t, ok)
	assert.Nil(t, got)

	got, ok = tr.NextOutbound(8)
	require.True(t, ok)
	assert.Equal(t, []byte("bbbbbbbb"), got)

	_, ok = tr.NextOutbound(100)
	assert.False(t, ok)
}

func TestQueueOutboundFragmentsDropsOldestOnOverflow(t *testing.T) {
	tr := New(reassembly.New())
	for i := 0; i < params.MaxOutboundFragments+10; i++ {
		tr.QueueOutboundFragments([][]byte{{byte(i)}})
	}
	assert.Equal(t, params.MaxOutboundFragments, tr.OutboundDepth())

	// The oldest entries (low byte values) should have been dropped; the
	// first remaining entry should be fairly late in the sequence.
	first, ok := tr.NextOutbound(1)
	require.True(t, ok)
	assert.Greater(t, int(first[0]), 5)
}

func TestTickSweepsReassembly(t *testing.T) {
	rb := reassembly.New()
	tr := New(rb)
	start := time.Now()

	txBytes := make([]byte, 60)
	copy(txBytes, "never finishes so it should be swept away eventually")
	frags := encodedFragments(t, txBytes, 20)
	_, _, err := rb.Push(frags[0], start)
	require.NoError(t, err)

	tr.Tick(start.Add(params.ReassemblyTimeout + time.Second))
	assert.Empty(t, rb.Info())
}
