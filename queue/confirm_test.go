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
)

func TestConfirmationQueueFIFO(t *testing.T) {
	q := NewConfirmationQueue()
	var a common.TxID
	a[0] = 1
	q.Push(ConfirmationItem{TxID: a, Status: ConfirmationSuccess})

	got, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, a, got.TxID)
	assert.Equal(t, ConfirmationSuccess, got.Status)

	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestConfirmationQueueSnapshotRestore(t *testing.T) {
	q := NewConfirmationQueue()
	var a common.TxID
	a[0] = 2
	q.Push(ConfirmationItem{TxID: a, Status: ConfirmationFailed, Code: "TxTooLarge"})

	restored := NewConfirmationQueue()
	restored.Restore(q.Snapshot())
	got, ok := restored.Pop()
	require.True(t, ok)
	assert.Equal(t, "TxTooLarge", got.Code)
}
